package stats

import (
	"fmt"
	"time"
)

// KeyLayout formats period keys. Keys sort in chronological order.
const KeyLayout = "2006-01-02"

var keyLayouts = []string{
	KeyLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// KeyFor returns the period key of the UTC day containing t.
func KeyFor(t time.Time) string {
	return t.UTC().Format(KeyLayout)
}

// ParseKey parses a period key. Full timestamps are accepted and truncated to
// their UTC day.
func ParseKey(key string) (time.Time, error) {
	for _, layout := range keyLayouts {
		if t, err := time.Parse(layout, key); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid period key %q", key)
}
