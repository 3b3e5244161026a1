// Package timestamp coerces the timestamp encodings used by market-data
// vendors and API callers into epoch milliseconds.
package timestamp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"qyquant/internal/ports"
)

// millisThreshold separates second-epoch from millisecond-epoch values.
// Anything above it is already in milliseconds.
const millisThreshold = 1_000_000_000_000

// minSeconds is the smallest second-epoch value whose millisecond form fits
// in an int64.
const minSeconds = math.MinInt64 / 1000

// isoLayouts are tried in order once a string fails to parse as a number.
// Layouts without a zone are interpreted as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ToMillis converts value to epoch milliseconds.
//
// ok is false (with a nil error) when value is nil or a blank string.
// Numbers above 10^12 are taken as milliseconds and truncated; smaller
// numbers are seconds. Strings are parsed as numbers first, then as
// ISO-8601. Anything else yields an error wrapping ports.ErrMalformedTimestamp.
func ToMillis(value any) (ms int64, ok bool, err error) {
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case string:
		return fromString(v)
	case *string:
		if v == nil {
			return 0, false, nil
		}
		return fromString(*v)
	case json.Number:
		return fromString(v.String())
	case time.Time:
		if v.IsZero() {
			return 0, false, nil
		}
		return v.UnixMilli(), true, nil
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return fromInt(int64(v))
	case int8:
		return fromInt(int64(v))
	case int16:
		return fromInt(int64(v))
	case int32:
		return fromInt(int64(v))
	case int64:
		return fromInt(v)
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false, fmt.Errorf("%w: %d overflows int64", ports.ErrMalformedTimestamp, v)
		}
		return fromInt(int64(v))
	case uint8:
		return fromInt(int64(v))
	case uint16:
		return fromInt(int64(v))
	case uint32:
		return fromInt(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return 0, false, fmt.Errorf("%w: %d overflows int64", ports.ErrMalformedTimestamp, v)
		}
		return fromInt(int64(v))
	default:
		return 0, false, fmt.Errorf("%w: unsupported type %T", ports.ErrMalformedTimestamp, value)
	}
}

// DateToMillis parses a calendar date (YYYY-MM-DD) or ISO-8601 datetime and
// returns midnight UTC (or the instant itself) in epoch milliseconds.
func DateToMillis(date string) (int64, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0, fmt.Errorf("%w: missing date value", ports.ErrMalformedTimestamp)
	}
	t, err := parseISO(date)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func fromString(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromFloat(f)
	}
	t, err := parseISO(s)
	if err != nil {
		return 0, false, err
	}
	return t.UnixMilli(), true, nil
}

func fromFloat(f float64) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: non-finite value %v", ports.ErrMalformedTimestamp, f)
	}
	if f > millisThreshold {
		if f >= math.MaxInt64 {
			return 0, false, fmt.Errorf("%w: %v overflows int64", ports.ErrMalformedTimestamp, f)
		}
		return int64(f), true, nil
	}
	if f < minSeconds {
		return 0, false, fmt.Errorf("%w: %v seconds overflows int64 milliseconds", ports.ErrMalformedTimestamp, f)
	}
	return int64(f * 1000), true, nil
}

func fromInt(v int64) (int64, bool, error) {
	if v > millisThreshold {
		return v, true, nil
	}
	if v < minSeconds {
		return 0, false, fmt.Errorf("%w: %d seconds overflows int64 milliseconds", ports.ErrMalformedTimestamp, v)
	}
	return v * 1000, true, nil
}

func parseISO(s string) (time.Time, error) {
	// a trailing Z is an explicit UTC offset
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported timestamp value %q", ports.ErrMalformedTimestamp, s)
}
