package orbit

import (
	"fmt"
	"math"
)

const (
	// solverTolerance is the Newton-Raphson convergence threshold in radians.
	solverTolerance = 1e-10
	// solverMaxIterations caps the solver so a pathological input can never
	// stall a frame. On cap, the best estimate is returned with a warning.
	solverMaxIterations = 50

	twoPi = 2 * math.Pi
)

// wrapAngle normalizes an angle into [0, 2pi).
func wrapAngle(theta float64) float64 {
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	return theta
}

// SolveKepler solves Kepler's equation E - e*sin(E) = M for the eccentric
// anomaly by Newton-Raphson starting from E0 = M. Returns the eccentric
// anomaly and whether the solver converged within the iteration cap.
// e = 0 is exact without iteration: E = M.
func SolveKepler(meanAnomaly, e float64) (float64, bool) {
	if e == 0 {
		return meanAnomaly, true
	}

	ecc := meanAnomaly
	for i := 0; i < solverMaxIterations; i++ {
		f := ecc - e*math.Sin(ecc) - meanAnomaly
		fPrime := 1 - e*math.Cos(ecc)
		delta := f / fPrime
		ecc -= delta
		if math.Abs(delta) < solverTolerance {
			return ecc, true
		}
	}
	return ecc, false
}

// MeanAnomalyAt returns the mean anomaly of o at master-clock time t,
// wrapped into [0, 2pi). Mean motion is n = sqrt(mu / a^3).
func (o Orbit) MeanAnomalyAt(t int64) float64 {
	n := math.Sqrt(o.HostMu / (o.Elements.A * o.Elements.A * o.Elements.A))
	return wrapAngle(o.Elements.MeanAnomalyAtEpoch + n*float64(t-o.EpochTime))
}

// Period returns the orbital period in seconds, or 0 for surface placements.
func (o Orbit) Period() float64 {
	if o.Elements.A <= 0 || o.HostMu <= 0 {
		return 0
	}
	n := math.Sqrt(o.HostMu / (o.Elements.A * o.Elements.A * o.Elements.A))
	return twoPi / n
}

// RelativePosition propagates o to master-clock time t and returns the
// position relative to the host. The returned position is always finite.
//
// Surface placements (a = 0) and non-positive mu both return the zero
// offset; non-positive mu additionally carries a warning because it means
// the host record is misconfigured rather than the body being landed.
func (o Orbit) RelativePosition(t int64) (Vec3, []Warning) {
	el := o.Elements
	if el.A == 0 {
		return Vec3{}, nil
	}
	if o.HostMu <= 0 {
		return Vec3{}, []Warning{{
			Code:   WarnNonPositiveMu,
			Detail: fmt.Sprintf("host %s has non-positive mu %g", o.HostID, o.HostMu),
		}}
	}

	var warnings []Warning
	meanAnomaly := o.MeanAnomalyAt(t)
	eccAnomaly, converged := SolveKepler(meanAnomaly, el.E)
	if !converged {
		warnings = append(warnings, Warning{
			Code:   WarnSolverCap,
			Detail: fmt.Sprintf("kepler solver hit %d iterations for e=%g M=%g", solverMaxIterations, el.E, meanAnomaly),
		})
	}

	// True anomaly and orbital-plane radius from the eccentric anomaly.
	trueAnomaly := 2 * math.Atan2(
		math.Sqrt(1+el.E)*math.Sin(eccAnomaly/2),
		math.Sqrt(1-el.E)*math.Cos(eccAnomaly/2),
	)
	r := el.A * (1 - el.E*math.Cos(eccAnomaly))

	return rotateToReferenceFrame(r, trueAnomaly, el), warnings
}

// rotateToReferenceFrame places a point at radius r and in-plane angle theta
// (measured from periapsis) and applies the classical 3-1-3 rotation:
// argument of periapsis, inclination, longitude of ascending node.
func rotateToReferenceFrame(r, theta float64, el Elements) Vec3 {
	// Perifocal coordinates.
	xp := r * math.Cos(theta)
	yp := r * math.Sin(theta)

	cosW, sinW := math.Cos(el.ArgPeriapsis), math.Sin(el.ArgPeriapsis)
	cosI, sinI := math.Cos(el.I), math.Sin(el.I)
	cosO, sinO := math.Cos(el.LongAscNode), math.Sin(el.LongAscNode)

	// Rotate by argument of periapsis within the orbital plane.
	x1 := xp*cosW - yp*sinW
	y1 := xp*sinW + yp*cosW

	// Incline the plane, then rotate by the ascending node.
	x2 := x1
	y2 := y1 * cosI
	z2 := y1 * sinI

	return Vec3{
		X: x2*cosO - y2*sinO,
		Y: x2*sinO + y2*cosO,
		Z: z2,
	}
}
