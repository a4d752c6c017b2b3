package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/orrery/orrery/internal/metrics"
	"github.com/orrery/orrery/internal/system"
	"github.com/orrery/orrery/internal/temporal"
	"github.com/orrery/orrery/internal/zone"
)

// maxLoadBytes caps the system document body on POST /api/v1/system/load.
const maxLoadBytes = 2 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// timeParam parses the optional ?t= master time, defaulting to the clock.
func timeParam(r *http.Request, d Deps) (int64, error) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return d.Clock.Now(), nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// systemSummaryHandler serves GET /api/v1/system.
func systemSummaryHandler(d Deps) http.HandlerFunc {
	type nodeSummary struct {
		ID        string `json:"id"`
		Parent    string `json:"parent,omitempty"`
		Kind      string `json:"kind"`
		Placement string `json:"placement,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sys := d.Systems.Get()
		if sys == nil {
			writeError(w, http.StatusNotFound, "no system loaded")
			return
		}

		nodes := make([]nodeSummary, len(sys.Nodes))
		for i, n := range sys.Nodes {
			nodes[i] = nodeSummary{
				ID:        n.ID,
				Parent:    n.ParentID,
				Kind:      string(n.Kind),
				Placement: n.Placement,
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"name":       sys.Name,
			"source":     sys.Source,
			"loadedAt":   sys.LoadedAt.UTC().Format(time.RFC3339),
			"ageSeconds": int(d.Systems.AgeSeconds()),
			"nodeCount":  sys.Len(),
			"nodes":      nodes,
		})
	}
}

// systemLoadHandler serves POST /api/v1/system/load: parse, validate, and
// swap in a new system snapshot. The frame cache notices the swap on its
// next tick and rebuilds.
func systemLoadHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := io.LimitReader(r.Body, maxLoadBytes)
		sys, err := system.Load(body, "api", d.Logger)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		report := system.Validate(sys)
		if !report.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "system failed validation",
				"issues": report.Issues,
			})
			return
		}

		d.Systems.Set(sys)
		metrics.SetSystemNodeCount(sys.Len())
		d.Logger.Info("system loaded via api",
			"system", sys.Name,
			"nodes", sys.Len(),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"name":      sys.Name,
			"nodeCount": sys.Len(),
		})
	}
}

// positionsHandler serves GET /api/v1/positions?t=1234. Cache hits serve
// directly; misses fall through to a fresh resolution.
func positionsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := timeParam(r, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be integer seconds")
			return
		}

		if d.Cache != nil {
			if frame := d.Cache.Get(t); frame != nil {
				writeJSON(w, http.StatusOK, frame)
				return
			}
		}

		frame, err := d.Engine.FrameAt(r.Context(), t)
		if err != nil {
			if errors.Is(err, system.ErrCyclicGraph) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, frame)
	}
}

// zonesHandler serves GET /api/v1/zones/{node_id}?t=1234. Nodes orbiting a
// star classify by semi-major axis against the habitable band; nodes
// orbiting a body classify by altitude against the host's boundaries.
func zonesHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := r.PathValue("node_id")

		t, err := timeParam(r, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be integer seconds")
			return
		}

		sys := d.Systems.Get()
		if sys == nil {
			writeError(w, http.StatusNotFound, "no system loaded")
			return
		}

		node, ok := sys.Node(nodeID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown node: "+nodeID)
			return
		}

		// Lagrange nodes share their anchor's orbit for classification.
		orb := node.Orbit
		if node.IsLagrange() {
			if anchor, ok := sys.Node(node.AnchorID); ok {
				orb = anchor.Orbit
			}
		}
		if orb == nil {
			writeError(w, http.StatusUnprocessableEntity, "node has no orbit to classify")
			return
		}

		host, ok := sys.Node(orb.HostID)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "orbit host not in system: "+orb.HostID)
			return
		}

		resp := map[string]any{
			"nodeId": nodeID,
			"host":   host.ID,
			"time":   t,
		}

		if host.Luminosity > 0 {
			z := zone.ClassifyStellarOrbit(orb.Elements.A, host.Luminosity)
			inner, outer := zone.HabitableBounds(host.Luminosity)
			resp["zone"] = z
			resp["semiMajorAxis"] = orb.Elements.A
			resp["habitableInner"] = inner
			resp["habitableOuter"] = outer
			writeJSON(w, http.StatusOK, resp)
			return
		}

		boundaries := d.Rules.DefaultBoundaries
		if host.Boundaries != nil {
			boundaries = *host.Boundaries
		}

		rel, _ := orb.RelativePosition(t)
		radius := math.Sqrt(rel.X*rel.X + rel.Y*rel.Y + rel.Z*rel.Z)
		altitude := radius - host.Radius

		resp["zone"] = boundaries.ClassifyAltitude(altitude)
		resp["orbitalRadius"] = radius
		resp["altitude"] = altitude
		writeJSON(w, http.StatusOK, resp)
	}
}

// calendarListHandler serves GET /api/v1/calendar.
func calendarListHandler(d Deps) http.HandlerFunc {
	type calendarSummary struct {
		Key  string            `json:"key"`
		Name string            `json:"name"`
		Math temporal.MathType `json:"mathType"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		keys := d.Temporal.Keys()
		sort.Strings(keys)

		calendars := make([]calendarSummary, 0, len(keys))
		for _, key := range keys {
			def, err := d.Temporal.Lookup(key)
			if err != nil {
				continue
			}
			calendars = append(calendars, calendarSummary{Key: key, Name: def.Name, Math: def.Math})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"activeKey": d.Temporal.ActiveKey(),
			"calendars": calendars,
		})
	}
}

// renderCalendar resolves key at master time t and writes the response.
func renderCalendar(w http.ResponseWriter, d Deps, key string, t int64) {
	def, err := d.Temporal.Lookup(key)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	rendering, err := temporal.Resolve(def, t)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	metrics.IncCalendarResolutions(string(def.Math))

	writeJSON(w, http.StatusOK, map[string]any{
		"masterTimeSeconds": temporal.Seconds(t),
		"rendering":         rendering,
	})
}

// calendarNowHandler serves GET /api/v1/calendar/now: the active calendar
// at the current (or given) master time.
func calendarNowHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := timeParam(r, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be integer seconds")
			return
		}
		renderCalendar(w, d, d.Temporal.ActiveKey(), t)
	}
}

// calendarRenderHandler serves GET /api/v1/calendar/{key}/render?t=1234.
func calendarRenderHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := timeParam(r, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid t parameter, must be integer seconds")
			return
		}
		renderCalendar(w, d, r.PathValue("key"), t)
	}
}

// convertRequest carries either calendar fields or a ratio-linear value.
type convertRequest struct {
	Fields *temporal.Fields `json:"fields,omitempty"`
	Value  *float64         `json:"value,omitempty"`
}

// calendarConvertHandler serves POST /api/v1/calendar/{key}/convert: fields
// or value back to master seconds.
func calendarConvertHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		def, err := d.Temporal.Lookup(r.PathValue("key"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		var req convertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		var master int64
		switch {
		case req.Fields != nil:
			master, err = temporal.ConvertFields(def, *req.Fields)
		case req.Value != nil:
			master, err = temporal.ConvertValue(def, *req.Value)
		default:
			writeError(w, http.StatusBadRequest, "request must carry fields or value")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		metrics.IncCalendarResolutions(string(def.Math))

		writeJSON(w, http.StatusOK, map[string]any{
			"masterTimeSeconds": temporal.Seconds(master),
		})
	}
}

// overrideRequest picks a new epoch anchoring: a target year for
// bucket-drain calendars or a target value for ratio-linear ones.
type overrideRequest struct {
	TargetYear  *int64   `json:"targetYear,omitempty"`
	TargetValue *float64 `json:"targetValue,omitempty"`
}

// calendarOverrideHandler serves POST /api/v1/calendar/{key}/override.
func calendarOverrideHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		def, err := d.Temporal.Lookup(key)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		var req overrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		master := d.Clock.Now()

		var ov temporal.Override
		switch {
		case req.TargetYear != nil:
			ov, err = temporal.SolveYearOverride(def, master, *req.TargetYear)
		case req.TargetValue != nil:
			ov, err = temporal.SolveValueOverride(def, master, *req.TargetValue)
		default:
			writeError(w, http.StatusBadRequest, "request must carry targetYear or targetValue")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		if err := d.Temporal.Apply(master, key, ov); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		d.Logger.Info("epoch override applied",
			"calendar", key,
			"new_epoch_offset", ov.NewEpochOffset,
			"clamped", ov.Clamped,
		)

		// Render with the updated definition.
		updated, err := d.Temporal.Lookup(key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rendering, err := temporal.Resolve(updated, master)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"newEpochOffset": ov.NewEpochOffset,
			"clamped":        ov.Clamped,
			"rendering":      rendering,
		})
	}
}

// clockGetHandler serves GET /api/v1/clock.
func clockGetHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"masterTimeSeconds": temporal.Seconds(d.Clock.Now()),
			"rate":              d.Clock.Rate(),
			"running":           d.Clock.Running(),
		})
	}
}

// clockRequest adjusts the simulation clock. All fields optional.
type clockRequest struct {
	Master  *temporal.Seconds `json:"masterTimeSeconds,omitempty"`
	Rate    *float64          `json:"rate,omitempty"`
	Running *bool             `json:"running,omitempty"`
}

// clockSetHandler serves POST /api/v1/clock.
func clockSetHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		if req.Rate != nil {
			if *req.Rate <= 0 {
				writeError(w, http.StatusBadRequest, "rate must be positive")
				return
			}
			d.Clock.SetRate(*req.Rate)
		}
		if req.Master != nil {
			d.Clock.SetMaster(int64(*req.Master))
		}
		if req.Running != nil {
			if *req.Running {
				d.Clock.Resume()
			} else {
				d.Clock.Pause()
			}
		}

		d.Logger.Info("clock adjusted",
			"master", d.Clock.Now(),
			"rate", d.Clock.Rate(),
			"running", d.Clock.Running(),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"masterTimeSeconds": temporal.Seconds(d.Clock.Now()),
			"rate":              d.Clock.Rate(),
			"running":           d.Clock.Running(),
		})
	}
}

// cacheStatsHandler serves GET /api/v1/cache/stats.
func cacheStatsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Cache == nil {
			writeError(w, http.StatusNotFound, "frame cache disabled")
			return
		}
		writeJSON(w, http.StatusOK, d.Cache.Stats())
	}
}
