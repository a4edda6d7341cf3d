package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestFilterCategory(t *testing.T) {
	markets := []domain.Market{
		{ID: "1", Category: "Crypto"},
		{ID: "2", Category: "US Politics"},
		{ID: "3", Category: "crypto-defi"},
		{ID: "4", Category: "Sports"},
	}

	ids := func(ms []domain.Market) []string {
		out := make([]string, 0, len(ms))
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(FilterCategory(markets, "All")))
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(FilterCategory(markets, "")))
	assert.Equal(t, []string{"1", "3"}, ids(FilterCategory(markets, "CRYPTO")))
	assert.Equal(t, []string{"2"}, ids(FilterCategory(markets, "politic")))
	assert.Empty(t, FilterCategory(markets, "weather"))

	// The input is never mutated.
	filtered := FilterCategory(markets, "All")
	filtered[0].ID = "changed"
	assert.Equal(t, "1", markets[0].ID)
}

func TestSnapshotCategories(t *testing.T) {
	st := state{
		markets: []domain.Market{
			{ID: "1", Category: "Sports"},
			{ID: "2", Category: "Crypto"},
			{ID: "3", Category: "Sports"},
		},
		excluded: map[string]struct{}{"2": {}},
		page:     0,
	}
	snap := st.snapshot()
	assert.Equal(t, []string{"All", "Crypto", "Sports"}, snap.Categories(), "swiped markets still contribute tabs")

	top, ok := snap.Top("sports")
	assert.True(t, ok)
	assert.Equal(t, "1", top.ID)

	_, ok = snap.Top("crypto")
	assert.False(t, ok)
}
