package utils

import (
	"time"
)

// Layouts we have observed in the legacy collections. The predecessor
// system wrote timestamps from several client versions, so anything from
// RFC3339 to a bare date can show up.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// NormalizeLegacyTimestamp converts the timestamp encodings found in legacy
// records into a UTC time. Supported shapes: RFC3339-ish strings, numeric
// epochs (seconds or milliseconds), and document-store timestamp objects
// ({"_seconds": ..., "_nanoseconds": ...} or {"seconds": ...}). Unparseable
// values return nil instead of an error so one bad field never kills a record.
func NormalizeLegacyTimestamp(raw interface{}) *time.Time {
	switch v := raw.(type) {
	case nil:
		return nil
	case time.Time:
		t := v.UTC()
		return &t
	case *time.Time:
		if v == nil {
			return nil
		}
		t := v.UTC()
		return &t
	case string:
		for _, layout := range legacyTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	case float64:
		return epochToTime(v)
	case int64:
		return epochToTime(float64(v))
	case int:
		return epochToTime(float64(v))
	case map[string]interface{}:
		// document-store native timestamp object
		if secs, ok := numberField(v, "_seconds"); ok {
			return epochToTime(secs)
		}
		if secs, ok := numberField(v, "seconds"); ok {
			return epochToTime(secs)
		}
		return nil
	default:
		return nil
	}
}

func epochToTime(epoch float64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	// values past the year ~5138 in seconds are millisecond epochs
	if epoch > 1e11 {
		epoch = epoch / 1000
	}
	t := time.Unix(int64(epoch), 0).UTC()
	return &t
}

func numberField(m map[string]interface{}, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
