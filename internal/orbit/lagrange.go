package orbit

import (
	"fmt"
	"math"
)

// LagrangePoint identifies one of the co-orbital triangular points.
type LagrangePoint string

const (
	L4 LagrangePoint = "L4" // leading, +60 degrees
	L5 LagrangePoint = "L5" // trailing, -60 degrees
)

// phaseOffset is the in-plane angular offset of the triangular points.
const phaseOffset = math.Pi / 3

// ParseLagrangePoint maps a placement string to a LagrangePoint.
func ParseLagrangePoint(s string) (LagrangePoint, error) {
	switch LagrangePoint(s) {
	case L4:
		return L4, nil
	case L5:
		return L5, nil
	}
	return "", fmt.Errorf("unknown lagrange point %q", s)
}

// LagrangePosition returns the position of the given triangular point of the
// anchor orbit at master-clock time t, relative to the anchor's host.
//
// This is the co-orbital approximation, not a restricted three-body solution:
// the point sits at the anchor's current orbital radius, exactly 60 degrees
// of phase ahead (L4) or behind (L5) along the anchor's orbit.
func LagrangePosition(anchor Orbit, point LagrangePoint, t int64) (Vec3, []Warning) {
	el := anchor.Elements
	if el.A == 0 {
		return Vec3{}, nil
	}
	if anchor.HostMu <= 0 {
		return Vec3{}, []Warning{{
			Code:   WarnNonPositiveMu,
			Detail: fmt.Sprintf("host %s has non-positive mu %g", anchor.HostID, anchor.HostMu),
		}}
	}

	var warnings []Warning
	meanAnomaly := anchor.MeanAnomalyAt(t)
	eccAnomaly, converged := SolveKepler(meanAnomaly, el.E)
	if !converged {
		warnings = append(warnings, Warning{
			Code:   WarnSolverCap,
			Detail: fmt.Sprintf("kepler solver hit %d iterations for e=%g M=%g", solverMaxIterations, el.E, meanAnomaly),
		})
	}

	trueAnomaly := 2 * math.Atan2(
		math.Sqrt(1+el.E)*math.Sin(eccAnomaly/2),
		math.Sqrt(1-el.E)*math.Cos(eccAnomaly/2),
	)
	// Same radius as the anchor; only the phase shifts.
	r := el.A * (1 - el.E*math.Cos(eccAnomaly))

	offset := phaseOffset
	if point == L5 {
		offset = -phaseOffset
	}
	return rotateToReferenceFrame(r, trueAnomaly+offset, el), warnings
}
