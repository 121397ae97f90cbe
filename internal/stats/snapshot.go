// Package stats provides the daily statistics snapshot model and the pure
// functions that fold partial snapshots together and derive their ratios.
//
// The package is organized into focused modules:
//   - snapshot.go: current (V3) snapshot model and lenient numeric decoding
//   - versions.go: V1/V2 schemas, version detection and upgrades
//   - aggregator.go: Empty, Merge, ComputeRatios and the keyed Aggregator
//   - keys.go: period key formatting and parsing
//   - store.go: Store interface, GORM-backed store and Ingest
package stats

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// HoursPerDay is the length of Sessions.Hours.
const HoursPerDay = 24

// Number is a numeric snapshot field. It decodes leniently: null, booleans,
// objects, arrays, non-numeric strings, negative and non-finite values all
// read as 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil
	}

	switch v := value.(type) {
	case float64:
		*n = sanitize(Number(v))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*n = sanitize(Number(f))
		}
	}
	return nil
}

// sanitize returns x when it is finite and not negative, and 0 otherwise.
// Counters only ever accumulate.
func sanitize(x Number) Number {
	f := float64(x)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return x
}

// Date is the calendar day a snapshot covers. It marshals as a period key
// ("2006-01-02") and also accepts RFC 3339 timestamps.
type Date struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(KeyFor(d.Time))
}

// UnmarshalJSON implements json.Unmarshaler. Unparsable values leave the zero date.
func (d *Date) UnmarshalJSON(data []byte) error {
	d.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if t, err := ParseKey(raw); err == nil {
		d.Time = t
	}
	return nil
}

// RelativeStats is a total together with its derived share of a parent total.
type RelativeStats struct {
	Total Number `json:"total"`
	Ratio Number `json:"ratio"`
}

// UserStats counts users for the period.
type UserStats struct {
	New       Number `json:"new"`
	Active    Number `json:"active"`
	Returning Number `json:"returning"`
}

// SessionStats describes session activity. AverageTime is in seconds.
type SessionStats struct {
	Active      Number   `json:"active"`
	AverageTime Number   `json:"averageTime"`
	Hours       []Number `json:"hours"`
}

// FormFactorStats breaks devices down by form factor.
type FormFactorStats struct {
	Mobile  RelativeStats `json:"mobile"`
	Tablet  RelativeStats `json:"tablet"`
	Desktop RelativeStats `json:"desktop"`
}

// SystemStats breaks devices down by operating system family.
type SystemStats struct {
	Android RelativeStats `json:"android"`
	Apple   RelativeStats `json:"apple"`
	Windows RelativeStats `json:"windows"`
	Others  RelativeStats `json:"others"`
}

// DeviceStats counts devices seen in the period.
type DeviceStats struct {
	Total      Number          `json:"total"`
	FormFactor FormFactorStats `json:"formFactor"`
	Systems    SystemStats     `json:"systems"`
}

// GameStats counts games. Ratio is completed/new.
type GameStats struct {
	New       Number `json:"new"`
	Completed Number `json:"completed"`
	Abandoned Number `json:"abandoned"`
	Ratio     Number `json:"ratio"`
}

// AnswerStats counts answers. Ratio is right/total.
type AnswerStats struct {
	Total Number `json:"total"`
	Right Number `json:"right"`
	Wrong Number `json:"wrong"`
	Ratio Number `json:"ratio"`
}

// QuizStats counts quizzes, their answers and per-question answers.
type QuizStats struct {
	New       Number              `json:"new"`
	Completed Number              `json:"completed"`
	Abandoned Number              `json:"abandoned"`
	Ratio     Number              `json:"ratio"`
	Answers   AnswerStats         `json:"answers"`
	Questions map[int]AnswerStats `json:"questions"`
}

// Snapshot is one period's statistics in the current schema version.
type Snapshot struct {
	Date     Date              `json:"date"`
	Users    UserStats         `json:"users"`
	Sessions SessionStats      `json:"sessions"`
	Devices  DeviceStats       `json:"devices"`
	Games    GameStats         `json:"games"`
	Quizzes  QuizStats         `json:"quizzes"`
	Events   map[string]Number `json:"events"`
	Version  SchemaVersion     `json:"version"`
}

// SchemaVersion implements Record.
func (s *Snapshot) SchemaVersion() SchemaVersion { return SchemaV3 }

// Upgrade implements Record. For a current snapshot it returns a deep copy.
func (s *Snapshot) Upgrade() *Snapshot {
	c := s.Clone()
	c.normalize()
	return c
}

func (s *Snapshot) record() {}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	c := *s
	c.Sessions.Hours = append([]Number(nil), s.Sessions.Hours...)

	c.Quizzes.Questions = make(map[int]AnswerStats, len(s.Quizzes.Questions))
	for id, q := range s.Quizzes.Questions {
		c.Quizzes.Questions[id] = q
	}

	c.Events = make(map[string]Number, len(s.Events))
	for name, count := range s.Events {
		c.Events[name] = count
	}
	return &c
}

// normalize fills the containers a decoded or hand-built snapshot may lack.
func (s *Snapshot) normalize() {
	if len(s.Sessions.Hours) != HoursPerDay {
		hours := make([]Number, HoursPerDay)
		copy(hours, s.Sessions.Hours)
		s.Sessions.Hours = hours
	}
	if s.Quizzes.Questions == nil {
		s.Quizzes.Questions = make(map[int]AnswerStats)
	}
	if s.Events == nil {
		s.Events = make(map[string]Number)
	}
	s.Version = SchemaV3
}
