package marketapi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

const (
	countdownTBD    = "TBD"
	countdownClosed = "Closed"
)

// closeLayouts are tried in order when a close time arrives as a string.
// Layouts without a zone are read as UTC.
var closeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatCountdown renders the time left until closeAt as
// "<d>days <h>hr <m>min <s>sec", omitting zero components. A close time at or
// before now is "Closed"; less than one whole second left is "0sec".
func FormatCountdown(closeAt, now time.Time) string {
	left := closeAt.Sub(now)
	if left <= 0 {
		return countdownClosed
	}
	secs := int64(left / time.Second)

	days := secs / 86400
	secs -= days * 86400
	hours := secs / 3600
	secs -= hours * 3600
	minutes := secs / 60
	secs -= minutes * 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"days")
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"hr")
	}
	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+"min")
	}
	if secs > 0 {
		parts = append(parts, strconv.FormatInt(secs, 10)+"sec")
	}
	if len(parts) == 0 {
		return "0sec"
	}
	return strings.Join(parts, " ")
}

// Countdown recomputes a market's countdown text from its absolute close
// time. Markets without a close time read "TBD"; unparseable close values
// are shown verbatim.
func Countdown(m domain.Market, now time.Time) string {
	switch {
	case m.ClosingAt != nil:
		return FormatCountdown(*m.ClosingAt, now)
	case m.ClosingRaw != "":
		return m.ClosingRaw
	default:
		return countdownTBD
	}
}

// ParseCloseTime parses a close-time string. ok is false when s is not a
// recognizable timestamp.
func ParseCloseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range closeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(f), true
	}
	return time.Time{}, false
}

// parseCloseValue decodes a close-time field. Numbers are Unix epochs in
// milliseconds, or seconds when too small to be milliseconds.
func parseCloseValue(v json.RawMessage) (*time.Time, string) {
	var s string
	if json.Unmarshal(v, &s) == nil {
		if s == "" {
			return nil, ""
		}
		if t, ok := ParseCloseTime(s); ok {
			return &t, ""
		}
		return nil, s
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		if f == 0 {
			return nil, ""
		}
		t := epochTime(f)
		return &t, ""
	}
	return nil, strings.TrimSpace(string(v))
}

func epochTime(f float64) time.Time {
	if math.Abs(f) < 1e11 {
		return time.Unix(0, int64(f*float64(time.Second))).UTC()
	}
	return time.UnixMilli(int64(f)).UTC()
}
