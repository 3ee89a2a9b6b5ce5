package history

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/model"
)

// Document is the persisted output: the latest snapshot plus the history log.
type Document struct {
	model.Snapshot
	History []Entry `json:"history"`
}

// Empty reports whether the document holds no snapshot.
func (d *Document) Empty() bool {
	return d == nil || d.AsOf == ""
}

// FileStore persists a Document as a JSON file.
type FileStore struct {
	Path   string
	Window int
}

// NewFileStore creates a store for path keeping window history entries.
func NewFileStore(path string, window int) *FileStore {
	if window <= 0 {
		window = RetentionWindow
	}
	return &FileStore{Path: path, Window: window}
}

// Load reads the previous document. A missing, unreadable or corrupt file
// yields an empty document so a run can always proceed.
func (s *FileStore) Load() *Document {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			zap.L().Info("history: no previous document", zap.String("path", s.Path))
		} else {
			zap.L().Warn("history: read failed, starting empty", zap.String("path", s.Path), zap.Error(err))
		}
		return &Document{}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		zap.L().Warn("history: corrupt document, starting empty", zap.String("path", s.Path), zap.Error(err))
		return &Document{}
	}
	doc.History = Normalize(doc.History, s.Window)
	return &doc
}

// Save writes doc atomically: the JSON goes to a temporary file in the same
// directory, which is synced and renamed over the target. Readers see either
// the old or the new document, never a partial one.
func (s *FileStore) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "history: marshal document")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "history: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "history: create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "history: write temp file")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "history: sync temp file")
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrap(err, "history: close temp file")
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrap(err, "history: chmod temp file")
	}
	if err = os.Rename(tmpName, s.Path); err != nil {
		return eris.Wrapf(err, "history: replace %s", s.Path)
	}

	// Persist the rename itself. Some filesystems refuse to sync a directory.
	if d, derr := os.Open(dir); derr == nil {
		if serr := d.Sync(); serr != nil {
			zap.L().Debug("history: dir sync failed", zap.String("dir", dir), zap.Error(serr))
		}
		_ = d.Close()
	}

	zap.L().Info("history: document saved",
		zap.String("path", s.Path),
		zap.Int("entries", len(doc.History)),
	)
	return nil
}
