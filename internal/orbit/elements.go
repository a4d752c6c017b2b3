// Package orbit implements Keplerian two-body propagation for star-system
// bodies: orbital element validation, a Newton-Raphson Kepler solver, the
// perifocal-to-reference-frame rotation, and the L4/L5 co-orbital calculator.
//
// All functions are pure: elements, the host gravitational parameter and the
// query time come in, a finite position comes out. Numerical edge cases
// (solver iteration cap, non-positive mu) degrade to a best-effort result
// plus a Warning instead of failing the caller's whole frame.
package orbit

import (
	"fmt"
	"math"
)

// Vec3 is a position in the host's reference frame, meters.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Elements is a Keplerian orbital element set. Angles are radians.
// A = 0 denotes a surface-fixed placement with no propagation.
type Elements struct {
	A                  float64 // semi-major axis, meters
	E                  float64 // eccentricity, [0, 1)
	I                  float64 // inclination
	ArgPeriapsis       float64
	LongAscNode        float64
	MeanAnomalyAtEpoch float64
}

// Orbit binds an element set to a host body.
// HostID is normally the node's parent but may be overridden for
// Lagrange-anchored placements, where the host is the anchor's host body.
type Orbit struct {
	HostID    string
	HostMu    float64 // gravitational parameter G*M of the host, m^3/s^2
	EpochTime int64   // master-clock seconds at which MeanAnomalyAtEpoch holds
	Elements  Elements
}

// Warning reports a non-fatal numerical degradation during propagation.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Warning codes.
const (
	WarnSolverCap     = "solver_cap"     // Kepler solver hit the iteration cap
	WarnNonPositiveMu = "nonpositive_mu" // host mu <= 0, zero offset returned
)

// ValidateElements rejects element sets that propagation must never see:
// non-finite values, negative semi-major axis, or e outside [0, 1).
// Hyperbolic and parabolic orbits (e >= 1) are unsupported.
func ValidateElements(el Elements) error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"a", el.A},
		{"e", el.E},
		{"i", el.I},
		{"argPeriapsis", el.ArgPeriapsis},
		{"longAscNode", el.LongAscNode},
		{"meanAnomalyAtEpoch", el.MeanAnomalyAtEpoch},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return fmt.Errorf("element %s is not finite", v.name)
		}
	}
	if el.A < 0 {
		return fmt.Errorf("semi-major axis %g is negative", el.A)
	}
	if el.E < 0 || el.E >= 1 {
		return fmt.Errorf("eccentricity %g outside [0, 1): unbound orbits are not supported", el.E)
	}
	return nil
}
