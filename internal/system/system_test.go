package system

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const solSystemYAML = `
name: Sol
nodes:
  - id: sol
    kind: body
    radius: 6.96e8
    luminosity: 1.0
    boundaries:
      minLeo: 1.0e9
      leoMeoBoundary: 5.0e9
      meoHeoBoundary: 2.0e10
      heoUpper: 1.0e12
  - id: terra
    parent: sol
    kind: body
    radius: 6.371e6
    orbit:
      host: sol
      hostMu: 1.32712440018e20
      epochTime: "0"
      elements:
        a: 1.495978707e11
        e: 0.0167
        i: 0.0
        argPeriapsis: 102.9
        longAscNode: 0.0
        meanAnomalyAtEpoch: 0.0
  - id: luna
    parent: terra
    kind: body
    orbit:
      hostMu: 3.986004418e14
      epochTime: "0"
      elements:
        a: 3.844e8
        e: 0.0549
        i: 5.145
        argPeriapsis: 0.0
        longAscNode: 0.0
        meanAnomalyAtEpoch: 0.0
  - id: watcher-station
    parent: sol
    kind: construct
    roleHint: relay
    placement: L4
    anchor: terra
    orbit:
      host: sol
      hostMu: 1.32712440018e20
      epochTime: "0"
      elements:
        a: 1.495978707e11
        e: 0.0167
`

func loadTestSystem(t *testing.T, doc string) *System {
	t.Helper()
	sys, err := Load(strings.NewReader(doc), "test", testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return sys
}

func TestLoadSolSystem(t *testing.T) {
	sys := loadTestSystem(t, solSystemYAML)

	if sys.Name != "Sol" || sys.Len() != 4 {
		t.Fatalf("name = %q len = %d, want Sol with 4 nodes", sys.Name, sys.Len())
	}

	terra, ok := sys.Node("terra")
	if !ok || terra.Orbit == nil {
		t.Fatal("terra missing or without orbit")
	}
	if terra.Orbit.HostID != "sol" {
		t.Errorf("terra host = %q, want sol", terra.Orbit.HostID)
	}
	// Angles arrive in degrees and are stored in radians.
	wantArgP := 102.9 * math.Pi / 180
	if math.Abs(terra.Orbit.Elements.ArgPeriapsis-wantArgP) > 1e-12 {
		t.Errorf("argPeriapsis = %g rad, want %g", terra.Orbit.Elements.ArgPeriapsis, wantArgP)
	}

	// Host defaults to the parent when omitted.
	luna, _ := sys.Node("luna")
	if luna.Orbit.HostID != "terra" {
		t.Errorf("luna host = %q, want terra (defaulted from parent)", luna.Orbit.HostID)
	}

	station, _ := sys.Node("watcher-station")
	if !station.IsLagrange() || station.AnchorID != "terra" {
		t.Errorf("station placement = %q anchor = %q", station.Placement, station.AnchorID)
	}

	if report := Validate(sys); !report.Valid() {
		t.Errorf("expected valid system, got issues: %+v", report.Issues)
	}
}

func TestLoadRejectsEmptyAndMalformed(t *testing.T) {
	if _, err := Load(strings.NewReader("name: empty\nnodes: []\n"), "test", testLogger()); err == nil {
		t.Error("empty node list: expected error")
	}
	if _, err := Load(strings.NewReader("{not yaml"), "test", testLogger()); err == nil {
		t.Error("malformed yaml: expected error")
	}
}

func TestValidateStructuralIssues(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantIssue  string
		wantNodeID string
	}{
		{
			name: "duplicate id",
			doc: `
name: t
nodes:
  - {id: a, kind: body}
  - {id: a, kind: body}
`,
			wantIssue:  "duplicate node id",
			wantNodeID: "a",
		},
		{
			name: "missing parent",
			doc: `
name: t
nodes:
  - {id: a, kind: body, parent: ghost}
`,
			wantIssue:  `parent "ghost" does not exist`,
			wantNodeID: "a",
		},
		{
			name: "unknown kind",
			doc: `
name: t
nodes:
  - {id: a, kind: megastructure}
`,
			wantIssue:  `unknown kind "megastructure"`,
			wantNodeID: "a",
		},
		{
			name: "anchor without placement",
			doc: `
name: t
nodes:
  - {id: a, kind: body}
  - {id: b, kind: construct, parent: a, anchor: a}
`,
			wantIssue:  `anchor "a" set without a lagrange placement`,
			wantNodeID: "b",
		},
		{
			name: "lagrange without anchor",
			doc: `
name: t
nodes:
  - {id: a, kind: body}
  - {id: b, kind: construct, parent: a, placement: L4}
`,
			wantIssue:  "lagrange placement L4 requires an anchor",
			wantNodeID: "b",
		},
		{
			name: "unknown lagrange point",
			doc: `
name: t
nodes:
  - {id: a, kind: body}
  - {id: b, kind: construct, parent: a, placement: L2, anchor: a}
`,
			wantIssue:  `placement: unknown lagrange point "L2"`,
			wantNodeID: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := loadTestSystem(t, tt.doc)
			report := Validate(sys)
			if report.Valid() {
				t.Fatal("expected issues, got valid report")
			}
			found := false
			for _, issue := range report.Issues {
				if issue.NodeID == tt.wantNodeID && strings.Contains(issue.Reason, tt.wantIssue) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues = %+v, want node %q reason containing %q", report.Issues, tt.wantNodeID, tt.wantIssue)
			}
		})
	}
}

// TestValidateCycleIsFatal verifies parent cycles reject the whole graph.
func TestValidateCycleIsFatal(t *testing.T) {
	sys := loadTestSystem(t, `
name: t
nodes:
  - {id: a, kind: body, parent: c}
  - {id: b, kind: body, parent: a}
  - {id: c, kind: body, parent: b}
`)
	report := Validate(sys)
	if report.Valid() {
		t.Fatal("expected cycle to be reported")
	}
	if err := report.Err(); err == nil || !strings.Contains(err.Error(), "cyclic") {
		t.Errorf("report error = %v, want cyclic parent reference", err)
	}
}

// TestValidateInvalidElements verifies element validation gates the load,
// so propagation never sees invalid elements.
func TestValidateInvalidElements(t *testing.T) {
	sys := loadTestSystem(t, `
name: t
nodes:
  - {id: a, kind: body}
  - id: b
    kind: body
    parent: a
    orbit:
      hostMu: 1.0e20
      elements: {a: 1.0e11, e: 1.5}
`)
	report := Validate(sys)
	if report.Valid() {
		t.Fatal("expected eccentricity issue")
	}
	if report.Issues[0].NodeID != "b" || !strings.Contains(report.Issues[0].Reason, "eccentricity") {
		t.Errorf("issues = %+v", report.Issues)
	}
}

func TestStore(t *testing.T) {
	store := NewStore()
	if store.Get() != nil {
		t.Fatal("empty store should return nil")
	}
	if age := store.AgeSeconds(); age != -1 {
		t.Errorf("empty store age = %g, want -1", age)
	}

	sys := loadTestSystem(t, solSystemYAML)
	store.Set(sys)

	got := store.Get()
	if got != sys {
		t.Error("Get returned a different snapshot")
	}
	if age := store.AgeSeconds(); age < 0 {
		t.Errorf("age = %g, want >= 0", age)
	}
}
