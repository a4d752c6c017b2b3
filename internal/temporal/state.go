package temporal

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Seconds is an int64 second count that serializes as a decimal string.
// JSON numbers round-trip through float64 in most consumers, which silently
// corrupts values above 2^53; the string form survives any magnitude.
type Seconds int64

// MarshalJSON encodes the value as a quoted decimal string.
func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(s), 10))
}

// UnmarshalJSON accepts a quoted decimal string or, leniently, a bare
// integer literal written by hand.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// Bare number form.
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("seconds value %s is neither a decimal string nor an integer", data)
		}
		*s = Seconds(n)
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing seconds value %q: %w", str, err)
	}
	*s = Seconds(n)
	return nil
}

// MarshalYAML encodes the value as a decimal string.
func (s Seconds) MarshalYAML() (any, error) {
	return strconv.FormatInt(int64(s), 10), nil
}

// UnmarshalYAML accepts a decimal string or a bare integer scalar.
func (s *Seconds) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		var n int64
		if err := unmarshal(&n); err != nil {
			return fmt.Errorf("seconds value is neither a decimal string nor an integer")
		}
		*s = Seconds(n)
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing seconds value %q: %w", str, err)
	}
	*s = Seconds(n)
	return nil
}

// State is the temporal state of one star system: the authoritative master
// clock, the denormalized display clock, the active calendar key, and the
// calendar registry. The engine never holds a State of its own; callers own
// it and pass it into every conversion.
type State struct {
	MasterTimeSeconds  Seconds               `yaml:"masterTimeSeconds" json:"masterTimeSeconds"`
	DisplayTimeSeconds Seconds               `yaml:"displayTimeSeconds" json:"displayTimeSeconds"`
	ActiveCalendarKey  string                `yaml:"activeCalendarKey" json:"activeCalendarKey"`
	Registry           map[string]Definition `yaml:"registry" json:"registry"`
}

// Validate checks every registered definition and the active key.
func (st *State) Validate() error {
	if len(st.Registry) == 0 {
		return fmt.Errorf("calendar registry is empty")
	}
	for key := range st.Registry {
		def := st.Registry[key]
		if err := def.Validate(); err != nil {
			return fmt.Errorf("registry key %q: %w", key, err)
		}
	}
	if st.ActiveCalendarKey != "" {
		if _, ok := st.Registry[st.ActiveCalendarKey]; !ok {
			return fmt.Errorf("%w: active key %q", ErrUnknownCalendar, st.ActiveCalendarKey)
		}
	}
	return nil
}

// Active returns the active calendar definition.
func (st *State) Active() (Definition, error) {
	return st.Lookup(st.ActiveCalendarKey)
}

// Lookup returns a copy of the definition for key. The registry entry and
// its Bucket/Ratio sections never escape, so a concurrent override cannot
// mutate a definition a caller is reading.
func (st *State) Lookup(key string) (Definition, error) {
	def, ok := st.Registry[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownCalendar, key)
	}
	return def.clone(), nil
}
