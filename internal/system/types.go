// Package system models the star-system node graph: bodies, barycenters and
// constructs in a parent/child forest, each optionally carrying an orbit
// around a host. It provides the YAML loader, structural validation, and a
// lock-free snapshot store for the currently loaded system.
package system

import (
	"time"

	"github.com/orrery/orrery/internal/orbit"
	"github.com/orrery/orrery/internal/zone"
)

// Kind classifies what a node is.
type Kind string

const (
	KindBody       Kind = "body"
	KindBarycenter Kind = "barycenter"
	KindConstruct  Kind = "construct" // stations, habitats, artificial objects
)

// validKinds is the canonical set of accepted node kinds.
var validKinds = map[Kind]bool{
	KindBody:       true,
	KindBarycenter: true,
	KindConstruct:  true,
}

// Node is one entry in the system graph. ParentID empty means root.
//
// Placement distinguishes how the node's position is produced: standard
// ellipse evaluation of Orbit, or the L4/L5 co-orbital calculator anchored
// to AnchorID. For Lagrange placements the effective host is the anchor's
// host, not the node's literal parent.
type Node struct {
	ID       string `yaml:"id" json:"id"`
	ParentID string `yaml:"parent,omitempty" json:"parent,omitempty"`
	Kind     Kind   `yaml:"kind" json:"kind"`
	RoleHint string `yaml:"roleHint,omitempty" json:"roleHint,omitempty"`

	Placement string `yaml:"placement,omitempty" json:"placement,omitempty"` // "", "L4", "L5"
	AnchorID  string `yaml:"anchor,omitempty" json:"anchor,omitempty"`

	Orbit *orbit.Orbit `yaml:"-" json:"-"`

	// Physical properties used for classification. Radius in meters;
	// Luminosity in solar luminosities (stars only).
	Radius     float64          `yaml:"radius,omitempty" json:"radius,omitempty"`
	Luminosity float64          `yaml:"luminosity,omitempty" json:"luminosity,omitempty"`
	Boundaries *zone.Boundaries `yaml:"boundaries,omitempty" json:"boundaries,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// IsLagrange reports whether the node uses a co-orbital placement.
func (n *Node) IsLagrange() bool {
	return n.Placement == string(orbit.L4) || n.Placement == string(orbit.L5)
}

// System is an immutable snapshot of a loaded star system. Built once by the
// loader, never mutated afterwards; safe for concurrent reads.
type System struct {
	Name     string
	Source   string
	LoadedAt time.Time
	Nodes    []Node

	index map[string]int // id -> position in Nodes
}

// New builds a System snapshot from nodes assembled in code. The loader is
// the usual entry point; New serves tests and embedding callers.
func New(name string, nodes []Node) *System {
	s := &System{
		Name:     name,
		Source:   "inline",
		LoadedAt: time.Now(),
		Nodes:    nodes,
	}
	s.buildIndex()
	return s
}

// buildIndex populates the id lookup. Called once at load.
func (s *System) buildIndex() {
	s.index = make(map[string]int, len(s.Nodes))
	for i := range s.Nodes {
		s.index[s.Nodes[i].ID] = i
	}
}

// Node returns the node with the given id.
func (s *System) Node(id string) (*Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

// Len returns the number of nodes.
func (s *System) Len() int {
	return len(s.Nodes)
}
