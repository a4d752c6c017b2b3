package system

import (
	"errors"
	"fmt"

	"github.com/orrery/orrery/internal/orbit"
)

// ErrCyclicGraph marks a parent cycle. Cycles are a structural invariant
// violation: the whole graph is rejected, never individual nodes dropped.
var ErrCyclicGraph = errors.New("cyclic parent reference")

// Issue is one validation finding attached to a node.
type Issue struct {
	NodeID string `json:"nodeId"`
	Reason string `json:"reason"`
}

// Report accumulates validation findings for a whole system. A system with
// any issue must not be stored or resolved.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Valid reports whether the system passed validation.
func (r *Report) Valid() bool {
	return len(r.Issues) == 0
}

func (r *Report) add(nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)})
}

// Err returns a summary error when the report has issues, nil otherwise.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	first := r.Issues[0]
	if len(r.Issues) == 1 {
		return fmt.Errorf("system validation failed: node %q: %s", first.NodeID, first.Reason)
	}
	return fmt.Errorf("system validation failed: %d issues, first: node %q: %s", len(r.Issues), first.NodeID, first.Reason)
}

// Validate checks the structural invariants of a loaded system: unique ids,
// a proper acyclic forest, resolvable anchor references, valid orbital
// elements, and monotonic zone boundaries. All findings are collected so a
// user can fix a file in one pass.
func Validate(sys *System) *Report {
	report := &Report{}

	seen := make(map[string]bool, len(sys.Nodes))
	for i := range sys.Nodes {
		n := &sys.Nodes[i]

		if n.ID == "" {
			report.add("", "node %d has no id", i)
			continue
		}
		if seen[n.ID] {
			report.add(n.ID, "duplicate node id")
			continue
		}
		seen[n.ID] = true

		if !validKinds[n.Kind] {
			report.add(n.ID, "unknown kind %q", n.Kind)
		}

		if n.ParentID != "" {
			if _, ok := sys.Node(n.ParentID); !ok {
				report.add(n.ID, "parent %q does not exist", n.ParentID)
			}
			if n.ParentID == n.ID {
				report.add(n.ID, "node is its own parent")
			}
		}

		validateOrbit(sys, n, report)
		validatePlacement(sys, n, report)

		if n.Boundaries != nil {
			if err := n.Boundaries.Validate(); err != nil {
				report.add(n.ID, "orbital boundaries: %v", err)
			}
		}
	}

	detectCycles(sys, report)
	return report
}

func validateOrbit(sys *System, n *Node, report *Report) {
	if n.Orbit == nil {
		return
	}
	if err := orbit.ValidateElements(n.Orbit.Elements); err != nil {
		report.add(n.ID, "orbital elements: %v", err)
	}
	if n.Orbit.HostID != "" {
		if _, ok := sys.Node(n.Orbit.HostID); !ok {
			report.add(n.ID, "orbit host %q does not exist", n.Orbit.HostID)
		}
	}
}

func validatePlacement(sys *System, n *Node, report *Report) {
	if n.Placement == "" {
		if n.AnchorID != "" {
			report.add(n.ID, "anchor %q set without a lagrange placement", n.AnchorID)
		}
		return
	}

	if _, err := orbit.ParseLagrangePoint(n.Placement); err != nil {
		report.add(n.ID, "placement: %v", err)
		return
	}

	if n.AnchorID == "" {
		report.add(n.ID, "lagrange placement %s requires an anchor", n.Placement)
		return
	}
	if n.AnchorID == n.ID {
		report.add(n.ID, "node anchors to itself")
		return
	}
	anchor, ok := sys.Node(n.AnchorID)
	if !ok {
		report.add(n.ID, "anchor %q does not exist", n.AnchorID)
		return
	}
	if anchor.Orbit == nil {
		report.add(n.ID, "anchor %q has no orbit to co-orbit", n.AnchorID)
	}
}

// detectCycles walks every parent chain with three-color marking. Any cycle
// rejects the graph as a whole.
func detectCycles(sys *System, report *Report) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current chain
		black = 2 // known acyclic
	)
	color := make(map[string]int, len(sys.Nodes))

	for i := range sys.Nodes {
		start := sys.Nodes[i].ID
		if color[start] != white {
			continue
		}

		var chain []string
		id := start
		for id != "" {
			if color[id] == black {
				break
			}
			if color[id] == gray {
				report.add(id, "%v", ErrCyclicGraph)
				break
			}
			color[id] = gray
			chain = append(chain, id)

			node, ok := sys.Node(id)
			if !ok {
				break // dangling parent, already reported
			}
			id = node.ParentID
		}

		for _, c := range chain {
			color[c] = black
		}
	}
}
