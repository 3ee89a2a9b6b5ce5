package provider

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spreadwatch/internal/extract"
	"github.com/sells-group/spreadwatch/internal/fetcher"
	"github.com/sells-group/spreadwatch/internal/model"
	"github.com/sells-group/spreadwatch/internal/scrape"
)

// Definition describes an HTTP quote source.
type Definition struct {
	Name    string
	Tier    int
	URL     string
	Headers map[string]string
	Fields  []model.FieldKey
	// HTMLText converts the page to plain text before extraction.
	HTMLText bool
	// Strategies are tried in order until every field is filled.
	Strategies []extract.Strategy
}

// HTTPProvider fetches one URL and runs an extraction chain over the body.
type HTTPProvider struct {
	def     Definition
	fetcher fetcher.Fetcher
	chain   *extract.Chain
}

// NewHTTPProvider validates def and builds the provider.
func NewHTTPProvider(def Definition, f fetcher.Fetcher) (*HTTPProvider, error) {
	if err := def.validate(); err != nil {
		return nil, &ConfigError{Source: def.Name, Err: err}
	}
	if f == nil {
		return nil, &ConfigError{Source: def.Name, Err: eris.New("nil fetcher")}
	}
	return &HTTPProvider{
		def:     def,
		fetcher: f,
		chain:   extract.NewChain(def.Fields, def.Strategies...),
	}, nil
}

func (d Definition) validate() error {
	if d.Name == "" {
		return eris.New("missing name")
	}
	if d.Name == model.SourceBaseline {
		return eris.Errorf("name %q is reserved", d.Name)
	}
	u, err := url.Parse(d.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return eris.Errorf("invalid url %q", d.URL)
	}
	if len(d.Fields) == 0 {
		return eris.New("no fields declared")
	}
	for _, k := range d.Fields {
		if !k.Valid() {
			return eris.Errorf("unknown field %q", k)
		}
	}
	if len(d.Strategies) == 0 {
		return eris.New("no extraction strategies")
	}
	return nil
}

func (p *HTTPProvider) Name() string             { return p.def.Name }
func (p *HTTPProvider) Tier() int                { return p.def.Tier }
func (p *HTTPProvider) Fields() []model.FieldKey { return p.def.Fields }

// URL returns the endpoint the provider queries.
func (p *HTTPProvider) URL() string { return p.def.URL }

// Query fetches the source and extracts its fields.
func (p *HTTPProvider) Query(ctx context.Context) (model.FieldMap, error) {
	body, err := p.fetcher.Get(ctx, p.def.URL, p.def.Headers)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: %s", p.def.Name)
	}

	raw := body
	if p.def.HTMLText {
		raw = []byte(scrape.HTMLToText(string(body)))
	}

	fields := p.chain.Extract(raw)
	if len(fields) == 0 {
		return nil, eris.Wrapf(ErrNoFields, "provider: %s (%s, %d bytes)", p.def.Name, p.chain.Name(), len(body))
	}
	return fields, nil
}
