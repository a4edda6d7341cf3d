package marketapi

import (
	"math"
	"regexp"

	"github.com/alanyoungcy/hunch/internal/domain"
)

const (
	payoutBase  = 150
	payoutFloor = 105
)

// Card is the presentation of a market on a deck card.
type Card struct {
	domain.Market
	DisplayYes int       `json:"displayYes"`
	DisplayNo  int       `json:"displayNo"`
	YesPayout  int       `json:"yesPayout"`
	NoPayout   int       `json:"noPayout"`
	Highlight  Highlight `json:"highlight"`
}

// Highlight splits a question around its emphasized token.
type Highlight struct {
	Pre  string `json:"pre"`
	Mid  string `json:"mid"`
	Post string `json:"post"`
}

// NewCard builds the card view of m.
func NewCard(m domain.Market) Card {
	yes, no := DisplayPercents(m.YesPercent)
	yesPay, noPay := Payouts(m.YesPercent)
	if m.YesPayout > 0 {
		yesPay = m.YesPayout
	}
	if m.NoPayout > 0 {
		noPay = m.NoPayout
	}
	return Card{
		Market:     m,
		DisplayYes: yes,
		DisplayNo:  no,
		YesPayout:  yesPay,
		NoPayout:   noPay,
		Highlight:  HighlightToken(m.Question),
	}
}

// DisplayPercents clamps yes to 1..99 so neither side reads as certain.
func DisplayPercents(yesPercent int) (yes, no int) {
	yes = min(max(yesPercent, 1), 99)
	return yes, 100 - yes
}

// Payouts returns the synthetic payout per 100 staked on each side. The
// cheaper side pays less, never below 105.
func Payouts(yesPercent int) (yes, no int) {
	_, noPct := DisplayPercents(yesPercent)
	swing := int(math.Floor(float64(noPct-50)*2 + 0.5))
	return max(payoutFloor, payoutBase+swing), max(payoutFloor, payoutBase-swing)
}

var (
	yearToken  = regexp.MustCompile(`\b\d{4}\b`)
	moneyToken = regexp.MustCompile(`(?i)\$\d+(?:\.\d+)?K?\??`)
)

// HighlightToken picks the first 4-digit year in question, falling back to
// the first dollar amount.
func HighlightToken(question string) Highlight {
	for _, re := range []*regexp.Regexp{yearToken, moneyToken} {
		if loc := re.FindStringIndex(question); loc != nil {
			return Highlight{
				Pre:  question[:loc[0]],
				Mid:  question[loc[0]:loc[1]],
				Post: question[loc[1]:],
			}
		}
	}
	return Highlight{Pre: question}
}
