package marketapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/hunch/internal/domain"
)

func TestPayouts(t *testing.T) {
	tests := []struct {
		yes             int
		wantYes, wantNo int
	}{
		{50, 150, 150},
		{30, 190, 110},
		{70, 110, 190},
		{10, 230, 105},
		{95, 105, 240},
		{0, 248, 105},
		{100, 105, 248},
	}
	for _, tt := range tests {
		yes, no := Payouts(tt.yes)
		assert.Equal(t, tt.wantYes, yes, "yes payout at %d%%", tt.yes)
		assert.Equal(t, tt.wantNo, no, "no payout at %d%%", tt.yes)
	}
}

func TestDisplayPercents(t *testing.T) {
	yes, no := DisplayPercents(0)
	assert.Equal(t, 1, yes)
	assert.Equal(t, 99, no)
	yes, no = DisplayPercents(100)
	assert.Equal(t, 99, yes)
	assert.Equal(t, 1, no)
}

func TestHighlightToken(t *testing.T) {
	h := HighlightToken("Will ETH hit $5K before 2027?")
	assert.Equal(t, Highlight{Pre: "Will ETH hit $5K before ", Mid: "2027", Post: "?"}, h)

	h = HighlightToken("Will gold trade above $750.50?")
	assert.Equal(t, "$750.50?", h.Mid)

	h = HighlightToken("Will it rain?")
	assert.Equal(t, Highlight{Pre: "Will it rain?"}, h)
}

func TestNewCardPayoutOverrides(t *testing.T) {
	c := NewCard(domain.Market{YesPercent: 50, YesPayout: 175})
	assert.Equal(t, 175, c.YesPayout)
	assert.Equal(t, 150, c.NoPayout)
}
