// Package features holds the catalogue of tumor-measurement features accepted by the
// diagnosis service, together with the validation metadata used to check caller input.
//
// A Registry is immutable once built and safe for concurrent use.
package features

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive numeric interval.
type Range struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// Contains reports whether v lies in [Low, High].
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Spec describes one supported feature. Min and Max are hard bounds; TypicalRange is a
// soft band whose violation only produces an advisory.
type Spec struct {
	Name         string  `yaml:"name" json:"name"`
	DisplayName  string  `yaml:"displayName" json:"display_name"`
	Description  string  `yaml:"description" json:"description"`
	Unit         string  `yaml:"unit" json:"unit"`
	Min          float64 `yaml:"min" json:"min"`
	Max          float64 `yaml:"max" json:"max"`
	TypicalRange Range   `yaml:"typicalRange" json:"typical_range"`
}

// InBounds reports whether v is inside the hard [Min, Max] interval.
func (s Spec) InBounds(v float64) bool {
	return v >= s.Min && v <= s.Max
}

// InTypicalRange reports whether v is inside the soft typical band.
func (s Spec) InTypicalRange(v float64) bool {
	return s.TypicalRange.Contains(v)
}

// Registry maps feature names to their Spec.
type Registry struct {
	specs map[string]Spec
	names []string
}

// NewRegistry builds a registry, rejecting duplicate names and inconsistent bounds.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{
		specs: make(map[string]Spec, len(specs)),
		names: make([]string, 0, len(specs)),
	}
	for _, s := range specs {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("feature spec with empty name")
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate feature spec %q", s.Name)
		}
		if s.Min > s.Max {
			return nil, fmt.Errorf("feature %q: min %v greater than max %v", s.Name, s.Min, s.Max)
		}
		if s.TypicalRange.Low > s.TypicalRange.High {
			return nil, fmt.Errorf("feature %q: typical range low %v greater than high %v",
				s.Name, s.TypicalRange.Low, s.TypicalRange.High)
		}
		if s.DisplayName == "" {
			s.DisplayName = s.Name
		}
		r.specs[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns the registered feature names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Specs returns all specs sorted by name.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.specs[n])
	}
	return out
}

// Len returns the number of registered features.
func (r *Registry) Len() int {
	return len(r.names)
}

// Default returns the built-in catalogue of the five reference features.
func Default() *Registry {
	r, err := NewRegistry(defaultSpecs()...)
	if err != nil {
		panic(fmt.Sprintf("features: invalid built-in catalogue: %v", err))
	}
	return r
}

func defaultSpecs() []Spec {
	return []Spec{
		{
			Name:         "mean radius",
			DisplayName:  "Mean Radius",
			Description:  "Mean of distances from center to points on the perimeter",
			Unit:         "units",
			Min:          0,
			Max:          50,
			TypicalRange: Range{Low: 6.0, High: 28.0},
		},
		{
			Name:         "mean texture",
			DisplayName:  "Mean Texture",
			Description:  "Standard deviation of gray-scale values",
			Unit:         "units",
			Min:          0,
			Max:          50,
			TypicalRange: Range{Low: 9.0, High: 40.0},
		},
		{
			Name:         "mean perimeter",
			DisplayName:  "Mean Perimeter",
			Description:  "Mean size of the core tumor",
			Unit:         "units",
			Min:          0,
			Max:          200,
			TypicalRange: Range{Low: 43.0, High: 188.0},
		},
		{
			Name:         "mean compactness",
			DisplayName:  "Mean Compactness",
			Description:  "Perimeter² / Area - 1.0",
			Unit:         "units",
			Min:          0,
			Max:          1,
			TypicalRange: Range{Low: 0.02, High: 0.35},
		},
		{
			Name:         "mean concavity",
			DisplayName:  "Mean Concavity",
			Description:  "Severity of concave portions of the contour",
			Unit:         "units",
			Min:          0,
			Max:          1,
			TypicalRange: Range{Low: 0.0, High: 0.43},
		},
	}
}

type catalogueFile struct {
	Features []Spec `yaml:"features"`
}

// LoadFile reads a YAML feature catalogue of the form
//
//	features:
//	  - name: mean radius
//	    displayName: Mean Radius
//	    min: 0
//	    max: 50
//	    typicalRange: {low: 6, high: 28}
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature catalogue %s: %w", path, err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feature catalogue: %w", err)
	}
	if len(file.Features) == 0 {
		return nil, fmt.Errorf("feature catalogue %s defines no features", path)
	}

	return NewRegistry(file.Features...)
}
