package selection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"
)

func TestDefaultFeatures(t *testing.T) {
	sel := Default()

	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"amenity", map[string]string{"amenity": "post_office", "name": "Main"}, true},
		{"building", map[string]string{"building": "yes"}, true},
		{"shop only", map[string]string{"shop": "bakery", "name": "Bread"}, false},
		{"no tags", map[string]string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sel.Features.Match(tt.tags); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultBoundaries(t *testing.T) {
	sel := Default()

	admin := osm.Tags{{Key: "type", Value: "boundary"}, {Key: "boundary", Value: "administrative"}}
	if !sel.Boundaries.MatchOSM(admin) {
		t.Error("expected administrative boundary to match")
	}

	postal := osm.Tags{{Key: "boundary", Value: "postal_code"}}
	if sel.Boundaries.MatchOSM(postal) {
		t.Error("postal boundary should not match")
	}
}

func TestExcludeRules(t *testing.T) {
	f := NewFilter(&FilterConfig{
		RequireAny: []string{"amenity"},
		Exclude:    map[string][]string{"amenity": {"bench", "waste_basket"}, "disused": nil},
	})

	if f.Match(map[string]string{"amenity": "bench"}) {
		t.Error("bench should be excluded")
	}
	if f.Match(map[string]string{"amenity": "school", "disused": "yes"}) {
		t.Error("any disused value should be excluded")
	}
	if !f.Match(map[string]string{"amenity": "school"}) {
		t.Error("school should match")
	}
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f := NewFilter(nil)
	if f.HasFilter() {
		t.Error("empty filter should report no rules")
	}
	if !f.Match(map[string]string{"anything": "x"}) {
		t.Error("empty filter should match")
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selection.yaml")
	content := `
features:
  require_any: [tourism]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	sel := New(cfg)
	if !sel.Features.Match(map[string]string{"tourism": "museum"}) {
		t.Error("configured feature rule should apply")
	}
	if sel.Features.Match(map[string]string{"amenity": "cafe"}) {
		t.Error("configured rule replaces the default feature rule")
	}
	if !sel.Boundaries.Match(map[string]string{"boundary": "administrative"}) {
		t.Error("boundary section should fall back to default")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("features: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
