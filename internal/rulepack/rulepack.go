// Package rulepack supplies the named numeric constants the engine treats
// as read-only configuration: the gravitational constant, default orbital
// boundary altitudes, and the star-type table used for luminosity and
// habitable-zone lookups. A pack ships with built-in defaults and can be
// replaced wholesale from a YAML file.
package rulepack

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/orrery/orrery/internal/zone"
)

// Physical constants. The engine never hard-codes these elsewhere; callers
// take them from the active pack.
const (
	GravitationalConstant = 6.674e-11      // m^3 kg^-1 s^-2
	AstronomicalUnit      = 1.495978707e11 // meters
	SolarMass             = 1.98892e30     // kg
	SolarMu               = 1.32712440018e20
)

// StarType is one spectral class row of the star-type table.
type StarType struct {
	Class      string  `yaml:"class" json:"class"`
	Luminosity float64 `yaml:"luminosity" json:"luminosity"` // solar luminosities
	MassSolar  float64 `yaml:"massSolar" json:"massSolar"`
}

// Pack is a complete rule pack.
type Pack struct {
	Name              string          `yaml:"name" json:"name"`
	DefaultBoundaries zone.Boundaries `yaml:"defaultBoundaries" json:"defaultBoundaries"`
	StarTypes         []StarType      `yaml:"starTypes" json:"starTypes"`
}

// Default returns the built-in rule pack: earthlike boundary altitudes and
// main-sequence spectral classes.
func Default() *Pack {
	return &Pack{
		Name: "default",
		DefaultBoundaries: zone.Boundaries{
			MinLEO:         160e3,
			LEOMEOBoundary: 2_000e3,
			MEOHEOBoundary: 35_000e3,
			HEOUpper:       1_500_000e3,
		},
		StarTypes: []StarType{
			{Class: "O", Luminosity: 100_000, MassSolar: 30},
			{Class: "B", Luminosity: 1_000, MassSolar: 10},
			{Class: "A", Luminosity: 20, MassSolar: 2},
			{Class: "F", Luminosity: 4, MassSolar: 1.3},
			{Class: "G", Luminosity: 1, MassSolar: 1},
			{Class: "K", Luminosity: 0.2, MassSolar: 0.7},
			{Class: "M", Luminosity: 0.01, MassSolar: 0.3},
		},
	}
}

// Load parses a pack from YAML and validates it.
func Load(r io.Reader) (*Pack, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading rule pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parsing rule pack: %w", err)
	}
	if err := pack.Validate(); err != nil {
		return nil, err
	}
	return &pack, nil
}

// Validate checks boundary ordering and star-type rows.
func (p *Pack) Validate() error {
	if err := p.DefaultBoundaries.Validate(); err != nil {
		return fmt.Errorf("rule pack %q: %w", p.Name, err)
	}
	seen := make(map[string]bool, len(p.StarTypes))
	for _, st := range p.StarTypes {
		if st.Class == "" {
			return fmt.Errorf("rule pack %q: star type with empty class", p.Name)
		}
		if seen[st.Class] {
			return fmt.Errorf("rule pack %q: duplicate star class %q", p.Name, st.Class)
		}
		seen[st.Class] = true
		if st.Luminosity <= 0 || st.MassSolar <= 0 {
			return fmt.Errorf("rule pack %q: star class %q has non-positive luminosity or mass", p.Name, st.Class)
		}
	}
	return nil
}

// StarType returns the row for a spectral class.
func (p *Pack) StarType(class string) (StarType, bool) {
	for _, st := range p.StarTypes {
		if st.Class == class {
			return st, true
		}
	}
	return StarType{}, false
}

// MuForMass converts a mass in kilograms to a gravitational parameter.
func MuForMass(massKg float64) float64 {
	return GravitationalConstant * massKg
}
