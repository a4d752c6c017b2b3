package hierarchy

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/orrery/orrery/internal/orbit"
	"github.com/orrery/orrery/internal/system"
)

const (
	au    = 1.495978707e11
	muSun = 1.32712440018e20
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func loadSystem(t *testing.T, doc string) *system.System {
	t.Helper()
	sys, err := system.Load(strings.NewReader(doc), "test", testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if report := system.Validate(sys); !report.Valid() {
		t.Fatalf("test system invalid: %+v", report.Issues)
	}
	return sys
}

const chainYAML = `
name: chain
nodes:
  - id: sol
    kind: body
    luminosity: 1.0
  - id: terra
    parent: sol
    kind: body
    orbit:
      hostMu: 1.32712440018e20
      elements: {a: 1.495978707e11, e: 0.0}
  - id: luna
    parent: terra
    kind: body
    orbit:
      hostMu: 3.986004418e14
      elements: {a: 3.844e8, e: 0.0}
  - id: relay
    parent: sol
    kind: construct
    placement: L5
    anchor: terra
  - id: ground-array
    parent: luna
    kind: construct
    orbit:
      hostMu: 4.9048695e12
      elements: {a: 0}
`

// TestRootsResolveToOrigin verifies roots sit at the origin at every time.
func TestRootsResolveToOrigin(t *testing.T) {
	sys := loadSystem(t, chainYAML)
	for _, tt := range []int64{0, 86_400, 31_536_000, 999_999_999} {
		frame, err := Resolve(sys, tt)
		if err != nil {
			t.Fatalf("Resolve(%d) failed: %v", tt, err)
		}
		if frame.Positions["sol"] != (orbit.Vec3{}) {
			t.Errorf("t=%d: root position = %+v, want origin", tt, frame.Positions["sol"])
		}
	}
}

// TestAncestorChainSummation verifies a moon's absolute position is the sum
// of its own offset and its planet's offset.
func TestAncestorChainSummation(t *testing.T) {
	sys := loadSystem(t, chainYAML)
	const queryTime = 5_000_000

	frame, err := Resolve(sys, queryTime)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	terra, _ := sys.Node("terra")
	luna, _ := sys.Node("luna")
	terraOffset, _ := terra.Orbit.RelativePosition(queryTime)
	lunaOffset, _ := luna.Orbit.RelativePosition(queryTime)

	want := orbit.Vec3{
		X: terraOffset.X + lunaOffset.X,
		Y: terraOffset.Y + lunaOffset.Y,
		Z: terraOffset.Z + lunaOffset.Z,
	}
	got := frame.Positions["luna"]
	if math.Abs(got.X-want.X) > 1e-3 || math.Abs(got.Y-want.Y) > 1e-3 || math.Abs(got.Z-want.Z) > 1e-3 {
		t.Errorf("luna = %+v, want %+v", got, want)
	}
}

// TestSurfacePlacementTracksParent verifies an a=0 construct rides along at
// its parent's absolute position.
func TestSurfacePlacementTracksParent(t *testing.T) {
	sys := loadSystem(t, chainYAML)
	frame, err := Resolve(sys, 7_777_777)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if frame.Positions["ground-array"] != frame.Positions["luna"] {
		t.Errorf("ground-array = %+v, luna = %+v, want identical", frame.Positions["ground-array"], frame.Positions["luna"])
	}
}

// TestLagrangePlacementGeometry verifies the relay sits at terra's orbital
// radius from sol, 60 degrees behind (L5).
func TestLagrangePlacementGeometry(t *testing.T) {
	sys := loadSystem(t, chainYAML)
	const queryTime = 3_000_000

	frame, err := Resolve(sys, queryTime)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	terra := frame.Positions["terra"]
	relay := frame.Positions["relay"]

	terraR := math.Hypot(terra.X, terra.Y)
	relayR := math.Hypot(relay.X, relay.Y)
	if math.Abs(relayR-terraR)/terraR > 1e-9 {
		t.Errorf("relay radius = %g, terra radius = %g", relayR, terraR)
	}

	phase := math.Atan2(relay.Y, relay.X) - math.Atan2(terra.Y, terra.X)
	phase = math.Mod(phase+4*math.Pi, 2*math.Pi)
	want := 2*math.Pi - math.Pi/3 // trailing by 60 degrees
	if math.Abs(phase-want) > 1e-9 {
		t.Errorf("relay phase offset = %g rad, want %g", phase, want)
	}
}

// TestMemoNotSharedAcrossCalls verifies two resolves at different times give
// different positions, i.e. no state leaks between calls.
func TestMemoNotSharedAcrossCalls(t *testing.T) {
	sys := loadSystem(t, chainYAML)

	frameA, err := Resolve(sys, 0)
	if err != nil {
		t.Fatalf("Resolve(0) failed: %v", err)
	}
	frameB, err := Resolve(sys, 10_000_000)
	if err != nil {
		t.Fatalf("Resolve(10M) failed: %v", err)
	}

	if frameA.Positions["terra"] == frameB.Positions["terra"] {
		t.Error("terra did not move between query times; memo leaked across calls")
	}
}

// TestCycleIsFatal verifies a parent cycle fails the entire resolution.
func TestCycleIsFatal(t *testing.T) {
	// Built by hand: the loader's validation would reject this file.
	sys, err := system.Load(strings.NewReader(`
name: tangled
nodes:
  - {id: a, kind: body, parent: b}
  - {id: b, kind: body, parent: a}
`), "test", testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err = Resolve(sys, 0)
	if !errors.Is(err, system.ErrCyclicGraph) {
		t.Errorf("Resolve error = %v, want ErrCyclicGraph", err)
	}
}

// TestWarningsDoNotFailFrame verifies a node with non-positive host mu
// degrades to a warning while the rest of the frame resolves.
func TestWarningsDoNotFailFrame(t *testing.T) {
	sys := loadSystem(t, `
name: degraded
nodes:
  - id: sol
    kind: body
  - id: wanderer
    parent: sol
    kind: body
    orbit:
      hostMu: 0
      elements: {a: 1.0e11}
  - id: terra
    parent: sol
    kind: body
    orbit:
      hostMu: 1.32712440018e20
      elements: {a: 1.495978707e11}
`)

	frame, err := Resolve(sys, 1_000)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(frame.Warnings) != 1 || frame.Warnings[0].NodeID != "wanderer" || frame.Warnings[0].Code != orbit.WarnNonPositiveMu {
		t.Errorf("warnings = %+v, want one nonpositive_mu for wanderer", frame.Warnings)
	}
	if frame.Positions["terra"] == (orbit.Vec3{}) {
		t.Error("terra failed to resolve alongside the degraded node")
	}
}

// BenchmarkResolveDeepChain benchmarks a 50-level parent chain, the
// worst-case hierarchy depth for one frame.
func BenchmarkResolveDeepChain(b *testing.B) {
	nodes := make([]system.Node, 50)
	nodes[0] = system.Node{ID: "n0", Kind: system.KindBody}
	for i := 1; i < 50; i++ {
		id := "n" + strconv.Itoa(i)
		parent := "n" + strconv.Itoa(i-1)
		nodes[i] = system.Node{
			ID:       id,
			ParentID: parent,
			Kind:     system.KindBody,
			Orbit: &orbit.Orbit{
				HostID:   parent,
				HostMu:   muSun,
				Elements: orbit.Elements{A: au / float64(i), E: 0.1},
			},
		}
	}
	sys := system.New("deep", nodes)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Resolve(sys, int64(i)*3600); err != nil {
			b.Fatal(err)
		}
	}
}
