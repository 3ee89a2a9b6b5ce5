package waterfall

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spreadwatch/internal/fetcher"
	"github.com/sells-group/spreadwatch/internal/waterfall/provider"
)

// Config is the top-level waterfall configuration.
type Config struct {
	Defaults DefaultConfig  `yaml:"defaults"`
	Sources  []SourceConfig `yaml:"sources"`
}

// DefaultConfig holds global defaults.
type DefaultConfig struct {
	// PolitenessDelayMs is the minimum gap between two outbound requests.
	PolitenessDelayMs int `yaml:"politeness_delay_ms"`
	// SourceTimeoutSecs bounds a single source attempt, retries included.
	SourceTimeoutSecs int `yaml:"source_timeout_secs"`
}

// SourceConfig overrides a built-in source. Zero values keep the built-in
// setting.
type SourceConfig struct {
	Name        string `yaml:"name"`
	Tier        int    `yaml:"tier,omitempty"`
	URL         string `yaml:"url,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
}

// Defaults returns the configuration used when no sources file is set.
func Defaults() *Config {
	return &Config{
		Defaults: DefaultConfig{
			PolitenessDelayMs: 1000,
			SourceTimeoutSecs: 20,
		},
	}
}

// LoadConfig reads waterfall config from a YAML file. An empty path returns
// the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	def := Defaults().Defaults
	if cfg.Defaults.PolitenessDelayMs == 0 {
		cfg.Defaults.PolitenessDelayMs = def.PolitenessDelayMs
	}
	if cfg.Defaults.SourceTimeoutSecs == 0 {
		cfg.Defaults.SourceTimeoutSecs = def.SourceTimeoutSecs
	}
	return cfg, nil
}

// PolitenessDelay returns the configured inter-request delay. A negative
// value disables the delay.
func (c *Config) PolitenessDelay() time.Duration {
	if c.Defaults.PolitenessDelayMs < 0 {
		return 0
	}
	return time.Duration(c.Defaults.PolitenessDelayMs) * time.Millisecond
}

// TimeoutFor returns the attempt timeout for a source.
func (c *Config) TimeoutFor(name string) time.Duration {
	if sc, ok := c.source(name); ok && sc.TimeoutSecs > 0 {
		return time.Duration(sc.TimeoutSecs) * time.Second
	}
	if c.Defaults.SourceTimeoutSecs > 0 {
		return time.Duration(c.Defaults.SourceTimeoutSecs) * time.Second
	}
	return 20 * time.Second
}

func (c *Config) source(name string) (SourceConfig, bool) {
	for _, sc := range c.Sources {
		if sc.Name == name {
			return sc, true
		}
	}
	return SourceConfig{}, false
}

// BuildRegistry applies the source overrides to defs and registers the
// enabled sources. Overrides naming an unknown source are configuration
// errors.
func BuildRegistry(cfg *Config, defs []provider.Definition, f fetcher.Fetcher) (*provider.Registry, error) {
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Name] = true
	}
	for _, sc := range cfg.Sources {
		if !known[sc.Name] {
			return nil, &provider.ConfigError{Source: sc.Name, Err: eris.New("override for unknown source")}
		}
	}

	reg := provider.NewRegistry()
	for _, d := range defs {
		if sc, ok := cfg.source(d.Name); ok {
			if sc.Enabled != nil && !*sc.Enabled {
				continue
			}
			if sc.Tier > 0 {
				d.Tier = sc.Tier
			}
			if sc.URL != "" {
				d.URL = sc.URL
			}
		}
		p, err := provider.NewHTTPProvider(d, f)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
