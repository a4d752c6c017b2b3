// Package hierarchy resolves absolute positions for every node of a star
// system at a single query time. A node's absolute position is its parent's
// absolute position plus its own propagated relative offset; Lagrange-placed
// nodes take the co-orbital point of their anchor instead of evaluating
// their own ellipse.
//
// Resolution memoizes within one call only. The memo must never outlive the
// call: a cache crossing query times would serve stale positions, which is a
// correctness bug, not a lost optimization.
package hierarchy

import (
	"fmt"

	"github.com/orrery/orrery/internal/orbit"
	"github.com/orrery/orrery/internal/system"
)

// Frame is the result of resolving a whole system at one query time.
type Frame struct {
	Time      int64                 `json:"time"`
	Positions map[string]orbit.Vec3 `json:"positions"`
	Warnings  []NodeWarning         `json:"warnings,omitempty"`
}

// NodeWarning attributes a propagation warning to a node.
type NodeWarning struct {
	NodeID string `json:"nodeId"`
	orbit.Warning
}

// resolver carries the per-call state: the immutable system snapshot, the
// query time, the memo, and the visited set for cycle detection.
type resolver struct {
	sys      *system.System
	time     int64
	memo     map[string]orbit.Vec3
	visiting map[string]bool
	warnings []NodeWarning
}

// Resolve computes the absolute position of every node at the query time.
// Parent cycles are fatal for the whole graph; per-node numerical
// degradations accumulate as warnings without failing the frame.
func Resolve(sys *system.System, t int64) (*Frame, error) {
	r := &resolver{
		sys:      sys,
		time:     t,
		memo:     make(map[string]orbit.Vec3, sys.Len()),
		visiting: make(map[string]bool),
	}

	frame := &Frame{
		Time:      t,
		Positions: make(map[string]orbit.Vec3, sys.Len()),
	}
	for _, n := range sys.Nodes {
		pos, err := r.absolute(n.ID)
		if err != nil {
			return nil, err
		}
		frame.Positions[n.ID] = pos
	}
	frame.Warnings = r.warnings
	return frame, nil
}

// absolute resolves one node, recursing through its ancestor chain.
func (r *resolver) absolute(id string) (orbit.Vec3, error) {
	if pos, ok := r.memo[id]; ok {
		return pos, nil
	}
	if r.visiting[id] {
		return orbit.Vec3{}, fmt.Errorf("%w involving node %q", system.ErrCyclicGraph, id)
	}
	r.visiting[id] = true
	defer delete(r.visiting, id)

	node, ok := r.sys.Node(id)
	if !ok {
		return orbit.Vec3{}, fmt.Errorf("node %q does not exist", id)
	}

	// Lagrange placements bypass the parent link: the position is the
	// anchor's co-orbital point, based at the anchor's host.
	if node.IsLagrange() {
		pos, err := r.lagrangeAbsolute(node)
		if err != nil {
			return orbit.Vec3{}, err
		}
		r.memo[id] = pos
		return pos, nil
	}

	// Roots sit at the hierarchy origin at every query time.
	var parentPos orbit.Vec3
	if !node.IsRoot() {
		var err error
		parentPos, err = r.absolute(node.ParentID)
		if err != nil {
			return orbit.Vec3{}, err
		}
	}

	var offset orbit.Vec3
	if node.Orbit != nil {
		var warnings []orbit.Warning
		offset, warnings = node.Orbit.RelativePosition(r.time)
		r.noteWarnings(node.ID, warnings)
	}

	pos := orbit.Vec3{
		X: parentPos.X + offset.X,
		Y: parentPos.Y + offset.Y,
		Z: parentPos.Z + offset.Z,
	}
	r.memo[id] = pos
	return pos, nil
}

// lagrangeAbsolute places the node at its anchor's L4/L5 point. The
// effective host is the anchor's host body, not the node's literal parent:
// the co-orbital offset is added to the host's absolute position.
func (r *resolver) lagrangeAbsolute(node *system.Node) (orbit.Vec3, error) {
	anchor, ok := r.sys.Node(node.AnchorID)
	if !ok {
		return orbit.Vec3{}, fmt.Errorf("node %q: anchor %q does not exist", node.ID, node.AnchorID)
	}
	if anchor.Orbit == nil {
		return orbit.Vec3{}, fmt.Errorf("node %q: anchor %q has no orbit", node.ID, node.AnchorID)
	}

	point, err := orbit.ParseLagrangePoint(node.Placement)
	if err != nil {
		return orbit.Vec3{}, fmt.Errorf("node %q: %w", node.ID, err)
	}

	var hostPos orbit.Vec3
	if anchor.Orbit.HostID != "" {
		hostPos, err = r.absolute(anchor.Orbit.HostID)
		if err != nil {
			return orbit.Vec3{}, err
		}
	}

	offset, warnings := orbit.LagrangePosition(*anchor.Orbit, point, r.time)
	r.noteWarnings(node.ID, warnings)

	return orbit.Vec3{
		X: hostPos.X + offset.X,
		Y: hostPos.Y + offset.Y,
		Z: hostPos.Z + offset.Z,
	}, nil
}

func (r *resolver) noteWarnings(nodeID string, warnings []orbit.Warning) {
	for _, w := range warnings {
		r.warnings = append(r.warnings, NodeWarning{NodeID: nodeID, Warning: w})
	}
}
