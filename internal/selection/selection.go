package selection

import (
	"fmt"
	"os"

	"github.com/paulmach/osm"
	"gopkg.in/yaml.v3"
)

// Config decides which OSM objects become named places and which
// relations are treated as administrative boundaries
type Config struct {
	// Features selects nodes and ways whose names are emitted
	Features *FilterConfig `yaml:"features,omitempty"`
	// Boundaries selects relations that are assembled into polygons
	Boundaries *FilterConfig `yaml:"boundaries,omitempty"`
}

// FilterConfig defines tag rules for one object class
type FilterConfig struct {
	// Include specifies which tag keys/values to include
	// If empty, all tags are included (no filtering)
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude specifies which tag keys/values to exclude
	// Applied after include rules
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny specifies that at least one of these tags must be present
	RequireAny []string `yaml:"require_any,omitempty"`
}

// DefaultConfig returns the stock rules: features carry an amenity or
// building tag, boundaries are boundary=administrative relations
func DefaultConfig() *Config {
	return &Config{
		Features: &FilterConfig{
			RequireAny: []string{"amenity", "building"},
		},
		Boundaries: &FilterConfig{
			Include: map[string][]string{"boundary": {"administrative"}},
		},
	}
}

// LoadConfig loads a selection configuration from a YAML file.
// Sections missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse selection YAML: %w", err)
	}

	def := DefaultConfig()
	if cfg.Features == nil {
		cfg.Features = def.Features
	}
	if cfg.Boundaries == nil {
		cfg.Boundaries = def.Boundaries
	}

	return &cfg, nil
}

// Selection holds the compiled filters
type Selection struct {
	Features   *Filter
	Boundaries *Filter
}

// New compiles a configuration. A nil config means DefaultConfig.
func New(cfg *Config) *Selection {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Selection{
		Features:   NewFilter(cfg.Features),
		Boundaries: NewFilter(cfg.Boundaries),
	}
}

// Default returns the stock selection
func Default() *Selection {
	return New(nil)
}

// Filter checks tags against one FilterConfig
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match checks a tag map against the filter rules
func (f *Filter) Match(tags map[string]string) bool {
	return f.match(func(key string) (string, bool) {
		v, ok := tags[key]
		return v, ok
	})
}

// MatchOSM checks decoder tags without building a map
func (f *Filter) MatchOSM(tags osm.Tags) bool {
	return f.match(func(key string) (string, bool) {
		for _, t := range tags {
			if t.Key == key {
				return t.Value, true
			}
		}
		return "", false
	})
}

// HasFilter returns true if any rule is configured
func (f *Filter) HasFilter() bool {
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}

func (f *Filter) match(lookup func(string) (string, bool)) bool {
	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if _, ok := lookup(key); ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 {
		matched := false
		for key, values := range f.cfg.Include {
			if tagValue, ok := lookup(key); ok && valueListed(values, tagValue) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for key, values := range f.cfg.Exclude {
		if tagValue, ok := lookup(key); ok && valueListed(values, tagValue) {
			return false
		}
	}

	return true
}

// valueListed reports whether value matches a rule's value list.
// An empty list or "*" matches any value.
func valueListed(values []string, value string) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if v == value || v == "*" {
			return true
		}
	}
	return false
}
