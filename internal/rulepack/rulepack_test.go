package rulepack

import (
	"math"
	"strings"
	"testing"
)

func TestDefaultPackIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default pack invalid: %v", err)
	}
}

func TestStarTypeLookup(t *testing.T) {
	p := Default()

	g, ok := p.StarType("G")
	if !ok || g.Luminosity != 1 {
		t.Errorf("StarType(G) = %+v, %v", g, ok)
	}

	if _, ok := p.StarType("Z"); ok {
		t.Error("StarType(Z) should not exist")
	}
}

func TestLoadPack(t *testing.T) {
	doc := `
name: homebrew
defaultBoundaries:
  minLeo: 1.0e5
  leoMeoBoundary: 1.0e6
  meoHeoBoundary: 1.0e7
  heoUpper: 1.0e8
starTypes:
  - {class: G, luminosity: 1.0, massSolar: 1.0}
  - {class: M, luminosity: 0.04, massSolar: 0.5}
`
	p, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "homebrew" || len(p.StarTypes) != 2 {
		t.Errorf("pack = %+v", p)
	}
}

func TestLoadRejectsBadPacks(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			"non-monotonic boundaries",
			`
name: bad
defaultBoundaries: {minLeo: 1.0e6, leoMeoBoundary: 1.0e5, meoHeoBoundary: 1.0e7, heoUpper: 1.0e8}
`,
		},
		{
			"duplicate star class",
			`
name: bad
defaultBoundaries: {minLeo: 1.0e5, leoMeoBoundary: 1.0e6, meoHeoBoundary: 1.0e7, heoUpper: 1.0e8}
starTypes:
  - {class: G, luminosity: 1.0, massSolar: 1.0}
  - {class: G, luminosity: 2.0, massSolar: 2.0}
`,
		},
		{
			"non-positive luminosity",
			`
name: bad
defaultBoundaries: {minLeo: 1.0e5, leoMeoBoundary: 1.0e6, meoHeoBoundary: 1.0e7, heoUpper: 1.0e8}
starTypes:
  - {class: G, luminosity: 0, massSolar: 1.0}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// TestMuForMass pins the solar gravitational parameter to within the
// precision of the packaged constants.
func TestMuForMass(t *testing.T) {
	mu := MuForMass(SolarMass)
	if math.Abs(mu-SolarMu)/SolarMu > 1e-3 {
		t.Errorf("MuForMass(SolarMass) = %g, want ~%g", mu, SolarMu)
	}
}
