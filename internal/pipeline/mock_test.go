package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/spreadwatch/internal/history"
	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/store"
	"github.com/sells-group/spreadwatch/internal/waterfall"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) RecordRun(ctx context.Context, run *model.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Acquirer Mock ---

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) Run(ctx context.Context) (*waterfall.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*waterfall.Result), args.Error(1)
}

// --- Document store that fails to save ---

type failingDocs struct {
	history.FileStore
	err error
}

func (f *failingDocs) Save(*history.Document) error { return f.err }

// --- Provider stub ---

type stubProvider struct {
	name   string
	tier   int
	fields []model.FieldKey
	result model.FieldMap
	err    error
}

func (s *stubProvider) Name() string             { return s.name }
func (s *stubProvider) Tier() int                { return s.tier }
func (s *stubProvider) Fields() []model.FieldKey { return s.fields }
func (s *stubProvider) Query(context.Context) (model.FieldMap, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result.Clone(), nil
}
