package marketapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// Field aliases in priority order. The backend has renamed most fields at
// least once; the first present, non-null alias wins.
var (
	idKeys          = []string{"id", "_id", "slug", "marketId", "polymarket_id"}
	questionKeys    = []string{"question", "title", "name"}
	categoryKeys    = []string{"category", "tags", "topic"}
	probabilityKeys = []string{"yesPercent", "yes_price", "probability", "lastPrice"}
	closeKeys       = []string{"end_date", "closingIn", "time_to_close", "expires", "closes_in"}
	volumeKeys      = []string{"volume", "volume_usd"}
	priceKeys       = []string{"price", "stake", "lastPrice"}
	highlightKeys   = []string{"highlightWords", "highlights"}
)

const (
	defaultQuestion = "Untitled"
	defaultCategory = "General"
	defaultPrice    = 100
)

// rawRecord is one undecoded element of the market array.
type rawRecord struct {
	raw    json.RawMessage
	fields map[string]json.RawMessage
}

// first returns the first alias present with a non-null value.
func (r rawRecord) first(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := r.fields[k]
		if !ok || isNull(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// defaultMarket is what a record degrades to when nothing usable is present.
func defaultMarket() domain.Market {
	return domain.Market{
		Question:      defaultQuestion,
		Category:      defaultCategory,
		ClosingInText: countdownTBD,
		Volume:        "$0",
		Price:         defaultPrice,
	}
}

// normalizeRecord maps a raw record into a Market. A malformed record never
// aborts the page: decoding failures and panics degrade the record to
// defaults and are reported through the returned error.
func normalizeRecord(rec rawRecord, now time.Time) (m domain.Market, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = defaultMarket()
			err = fmt.Errorf("marketapi: normalize panic: %v", r)
		}
	}()

	if err := json.Unmarshal(rec.raw, &rec.fields); err != nil {
		return defaultMarket(), fmt.Errorf("marketapi: record is not an object: %w", err)
	}

	m = defaultMarket()

	if v, ok := rec.first(idKeys...); ok {
		if s, ok := scalarString(v); ok {
			m.ID = s
		}
	}
	if v, ok := rec.first(questionKeys...); ok {
		if s, ok := scalarString(v); ok {
			m.Question = s
		}
	}
	if v, ok := rec.first(categoryKeys...); ok {
		if s, ok := categoryString(v); ok {
			m.Category = s
		}
	}

	prob := 0.0
	if v, ok := rec.first(probabilityKeys...); ok {
		if f, ok := scalarFloat(v); ok {
			prob = f
		}
	}
	m.YesPercent = NormalizeProbability(prob)

	if v, ok := rec.first(closeKeys...); ok {
		at, rawText := parseCloseValue(v)
		m.ClosingAt = at
		m.ClosingRaw = rawText
	}
	m.ClosingInText = Countdown(m, now)

	m.Volume = volumeString(rec)

	if v, ok := rec.first(priceKeys...); ok {
		if f, ok := scalarFloat(v); ok {
			m.Price = f
		}
	}

	if v, ok := rec.first(highlightKeys...); ok {
		var words []string
		if json.Unmarshal(v, &words) == nil {
			m.HighlightWords = words
		}
	}

	if v, ok := rec.fields["yesPayout"]; ok {
		if f, ok := scalarFloat(v); ok {
			m.YesPayout = int(f)
		}
	}
	if v, ok := rec.fields["noPayout"]; ok {
		if f, ok := scalarFloat(v); ok {
			m.NoPayout = int(f)
		}
	}

	return m, nil
}

// NormalizeProbability converts a probability into a whole yes percentage.
// Values at or below 1 are fractions and are scaled by 100; larger values are
// already percentages. The result is rounded half up and clamped to 0..100.
func NormalizeProbability(p float64) int {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	if p <= 1 {
		p *= 100
	}
	pct := int(math.Floor(p + 0.5))
	return min(max(pct, 0), 100)
}

// volumeString keeps a string volume as-is and renders numbers with a
// leading "$".
func volumeString(rec rawRecord) string {
	if v, ok := rec.fields["volume"]; ok && !isNull(v) {
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
	}
	if v, ok := rec.first(volumeKeys...); ok {
		if s, ok := scalarString(v); ok {
			return "$" + s
		}
	}
	return "$0"
}

// categoryString accepts a scalar or a list of tags, using the first tag.
func categoryString(v json.RawMessage) (string, bool) {
	if s, ok := scalarString(v); ok {
		return s, true
	}
	var tags []json.RawMessage
	if json.Unmarshal(v, &tags) == nil && len(tags) > 0 {
		if s, ok := scalarString(tags[0]); ok {
			return s, true
		}
		var tag struct {
			Label string `json:"label"`
			Name  string `json:"name"`
		}
		if json.Unmarshal(tags[0], &tag) == nil {
			if tag.Label != "" {
				return tag.Label, true
			}
			if tag.Name != "" {
				return tag.Name, true
			}
		}
	}
	return "", false
}

// scalarString renders a JSON string, number or bool as text.
func scalarString(v json.RawMessage) (string, bool) {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s, true
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return n.String(), true
	}
	var b bool
	if json.Unmarshal(v, &b) == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}

// scalarFloat reads a JSON number or numeric string.
func scalarFloat(v json.RawMessage) (float64, bool) {
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return f, true
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(f) {
			return f, true
		}
	}
	return 0, false
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}
