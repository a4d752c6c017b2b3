package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/orrery/orrery/internal/hierarchy"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
)

// offlineLogger keeps the one-shot commands quiet; stdout is reserved for
// their output.
func offlineLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func loadSystemFile(path string, logger *slog.Logger) (*system.System, *system.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sys, err := system.Load(f, path, logger)
	if err != nil {
		return nil, nil, err
	}
	return sys, system.Validate(sys), nil
}

func runValidate(path string) error {
	sys, report, err := loadSystemFile(path, offlineLogger())
	if err != nil {
		return err
	}

	if report.Valid() {
		fmt.Printf("%s: valid (%d nodes)\n", sys.Name, sys.Len())
		return nil
	}

	fmt.Printf("%s: %d issue(s)\n", sys.Name, len(report.Issues))
	for _, issue := range report.Issues {
		fmt.Printf("  %s: %s\n", issue.NodeID, issue.Reason)
	}
	os.Exit(1)
	return nil
}

func runResolve(path string, t int64, jsonOut bool) error {
	sys, report, err := loadSystemFile(path, offlineLogger())
	if err != nil {
		return err
	}
	if !report.Valid() {
		for _, issue := range report.Issues {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", issue.NodeID, issue.Reason)
		}
		return fmt.Errorf("system %q has validation issues; fix before resolving", sys.Name)
	}

	frame, err := hierarchy.Resolve(sys, t)
	if err != nil {
		return fmt.Errorf("resolving %q at t=%d: %w", sys.Name, t, err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	}

	ids := make([]string, 0, len(frame.Positions))
	for id := range frame.Positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%s at t=%d (%d nodes)\n", sys.Name, t, len(ids))
	for _, id := range ids {
		p := frame.Positions[id]
		fmt.Printf("  %-20s x=%14.4e  y=%14.4e  z=%14.4e\n", id, p.X, p.Y, p.Z)
	}
	for _, w := range frame.Warnings {
		fmt.Printf("  warning %s: %s (%s)\n", w.NodeID, w.Code, w.Detail)
	}
	return nil
}

func loadStateFile(path string) (*temporal.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return temporal.LoadState(f)
}

// pickCalendar returns the requested definition, defaulting to the state's
// active calendar when key is empty.
func pickCalendar(state *temporal.State, key string) (string, temporal.Definition, error) {
	if key == "" {
		key = state.ActiveCalendarKey
	}
	def, err := state.Lookup(key)
	return key, def, err
}

func runCalendarRender(statePath, key string, t int64, timeGiven bool) error {
	state, err := loadStateFile(statePath)
	if err != nil {
		return err
	}
	if !timeGiven {
		t = int64(state.MasterTimeSeconds)
	}

	key, def, err := pickCalendar(state, key)
	if err != nil {
		return err
	}

	rendering, err := temporal.Resolve(def, t)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s) at t=%d: %s\n", key, def.Math, t, rendering.Display)
	return nil
}

func runCalendarConvertFields(statePath, key, fieldsJSON string) error {
	state, err := loadStateFile(statePath)
	if err != nil {
		return err
	}
	key, def, err := pickCalendar(state, key)
	if err != nil {
		return err
	}

	var fields temporal.Fields
	dec := json.NewDecoder(strings.NewReader(fieldsJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("parsing --fields: %w", err)
	}

	master, err := temporal.ConvertFields(def, fields)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d\n", key, master)
	return nil
}

func runCalendarConvertValue(statePath, key string, value float64) error {
	state, err := loadStateFile(statePath)
	if err != nil {
		return err
	}
	key, def, err := pickCalendar(state, key)
	if err != nil {
		return err
	}

	master, err := temporal.ConvertValue(def, value)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d\n", key, master)
	return nil
}
