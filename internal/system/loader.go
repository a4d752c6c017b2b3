package system

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orrery/orrery/internal/orbit"
	"github.com/orrery/orrery/internal/temporal"
)

// File schema. Angles in system files are degrees, the convention of every
// published ephemeris table; they are converted to radians at load so the
// engine only ever sees radians.

type fileSchema struct {
	Name  string       `yaml:"name"`
	Nodes []nodeSchema `yaml:"nodes"`
}

type nodeSchema struct {
	Node  `yaml:",inline"`
	Orbit *orbitSchema `yaml:"orbit,omitempty"`
}

type orbitSchema struct {
	Host      string           `yaml:"host"`
	HostMu    float64          `yaml:"hostMu"`
	EpochTime temporal.Seconds `yaml:"epochTime"`
	Elements  elementsSchema   `yaml:"elements"`
}

type elementsSchema struct {
	A                  float64 `yaml:"a"`
	E                  float64 `yaml:"e"`
	I                  float64 `yaml:"i"`
	ArgPeriapsis       float64 `yaml:"argPeriapsis"`
	LongAscNode        float64 `yaml:"longAscNode"`
	MeanAnomalyAtEpoch float64 `yaml:"meanAnomalyAtEpoch"`
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Load parses a system file from r. Parsing is purely structural; run
// Validate on the result before storing or resolving it.
func Load(r io.Reader, source string, logger *slog.Logger) (*System, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading system file: %w", err)
	}

	var file fileSchema
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing system file: %w", err)
	}
	if len(file.Nodes) == 0 {
		return nil, fmt.Errorf("system file %q contains no nodes", source)
	}

	sys := &System{
		Name:     file.Name,
		Source:   source,
		LoadedAt: time.Now(),
		Nodes:    make([]Node, 0, len(file.Nodes)),
	}

	for _, ns := range file.Nodes {
		node := ns.Node
		if ns.Orbit != nil {
			host := ns.Orbit.Host
			if host == "" {
				// Host defaults to the parent; Lagrange placements
				// override it to the anchor's host during validation.
				host = node.ParentID
			}
			node.Orbit = &orbit.Orbit{
				HostID:    host,
				HostMu:    ns.Orbit.HostMu,
				EpochTime: int64(ns.Orbit.EpochTime),
				Elements: orbit.Elements{
					A:                  ns.Orbit.Elements.A,
					E:                  ns.Orbit.Elements.E,
					I:                  degToRad(ns.Orbit.Elements.I),
					ArgPeriapsis:       degToRad(ns.Orbit.Elements.ArgPeriapsis),
					LongAscNode:        degToRad(ns.Orbit.Elements.LongAscNode),
					MeanAnomalyAtEpoch: degToRad(ns.Orbit.Elements.MeanAnomalyAtEpoch),
				},
			}
		}
		sys.Nodes = append(sys.Nodes, node)
	}

	sys.buildIndex()
	logger.Info("system file parsed",
		"source", source,
		"name", sys.Name,
		"nodes", len(sys.Nodes),
	)
	return sys, nil
}
