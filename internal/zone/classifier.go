// Package zone classifies orbital placements against a host's ordered
// altitude thresholds and, when luminosity is known, the star's habitable
// zone. Classification is a pure lookup over caller-supplied boundaries;
// the package holds no state.
package zone

import (
	"fmt"
	"math"
)

// Zone is a named orbital region.
type Zone string

const (
	Surface            Zone = "Surface"
	LowOrbit           Zone = "LowOrbit"
	MidOrbit           Zone = "MidOrbit"
	GeostationaryOrbit Zone = "GeostationaryOrbit"
	HighOrbit          Zone = "HighOrbit"
	BeyondHighOrbit    Zone = "BeyondHighOrbit"
	HabitableZone      Zone = "HabitableZone"
	InnerSystem        Zone = "InnerSystem"
	OuterSystem        Zone = "OuterSystem"
)

// Boundaries holds a host's ordered altitude thresholds in meters.
// Geostationary is optional; zero means the host defines no geostationary
// altitude (e.g. tidally locked bodies) and the band is never reported.
type Boundaries struct {
	MinLEO         float64 `yaml:"minLeo" json:"minLeo"`
	LEOMEOBoundary float64 `yaml:"leoMeoBoundary" json:"leoMeoBoundary"`
	MEOHEOBoundary float64 `yaml:"meoHeoBoundary" json:"meoHeoBoundary"`
	HEOUpper       float64 `yaml:"heoUpper" json:"heoUpper"`
	Geostationary  float64 `yaml:"geostationary,omitempty" json:"geostationary,omitempty"`
}

// geoBandFraction is the half-width of the geostationary band as a fraction
// of the geostationary altitude. Placements within the band classify as
// geostationary rather than by the surrounding threshold.
const geoBandFraction = 0.01

// Validate rejects boundary sets whose thresholds are not strictly
// increasing, or whose geostationary altitude (when present) is not positive.
func (b Boundaries) Validate() error {
	if !(b.MinLEO < b.LEOMEOBoundary && b.LEOMEOBoundary < b.MEOHEOBoundary && b.MEOHEOBoundary < b.HEOUpper) {
		return fmt.Errorf("boundaries not monotonically increasing: %g, %g, %g, %g",
			b.MinLEO, b.LEOMEOBoundary, b.MEOHEOBoundary, b.HEOUpper)
	}
	if b.Geostationary < 0 {
		return fmt.Errorf("geostationary altitude %g is negative", b.Geostationary)
	}
	return nil
}

// ClassifyAltitude maps an altitude above the host surface to a zone.
func (b Boundaries) ClassifyAltitude(altitude float64) Zone {
	if altitude <= 0 {
		return Surface
	}
	if b.Geostationary > 0 {
		band := b.Geostationary * geoBandFraction
		if math.Abs(altitude-b.Geostationary) <= band {
			return GeostationaryOrbit
		}
	}
	switch {
	case altitude < b.MinLEO:
		return Surface
	case altitude < b.LEOMEOBoundary:
		return LowOrbit
	case altitude < b.MEOHEOBoundary:
		return MidOrbit
	case altitude < b.HEOUpper:
		return HighOrbit
	default:
		return BeyondHighOrbit
	}
}

// HabitableBounds returns the inner and outer habitable-zone radii in meters
// for a star of the given luminosity (in solar luminosities). The classical
// conservative bounds 0.95 and 1.37 AU scale with sqrt(L).
func HabitableBounds(luminosity float64) (inner, outer float64) {
	const (
		au         = 1.495978707e11
		innerAtSun = 0.95
		outerAtSun = 1.37
	)
	if luminosity <= 0 {
		return 0, 0
	}
	scale := math.Sqrt(luminosity)
	return innerAtSun * scale * au, outerAtSun * scale * au
}

// ClassifyStellarOrbit maps a semi-major axis around a star of the given
// luminosity to HabitableZone, InnerSystem, or OuterSystem.
func ClassifyStellarOrbit(semiMajorAxis, luminosity float64) Zone {
	inner, outer := HabitableBounds(luminosity)
	if inner <= 0 {
		// No luminosity data: everything is inner system by convention.
		return InnerSystem
	}
	switch {
	case semiMajorAxis < inner:
		return InnerSystem
	case semiMajorAxis <= outer:
		return HabitableZone
	default:
		return OuterSystem
	}
}
