package deck

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// AllCategories is the tab that bypasses category filtering.
const AllCategories = "All"

// Snapshot is an immutable view of a deck at one point in time.
type Snapshot struct {
	visible    []domain.Market
	categories []string

	Total    int  `json:"total"`
	Excluded int  `json:"excluded"`
	Page     int  `json:"page"`
	HasMore  bool `json:"hasMore"`
	Loading  bool `json:"loading"`
}

// Visible returns the undecided markets in fetch order, filtered to
// category. "All" or an empty category returns every undecided market;
// otherwise a market matches when its category contains the filter,
// case-insensitively. The returned slice is a fresh copy.
func (s Snapshot) Visible(category string) []domain.Market {
	return FilterCategory(s.visible, category)
}

// VisibleCount is the number of undecided markets across all categories.
func (s Snapshot) VisibleCount() int {
	return len(s.visible)
}

// Top returns the market on top of the deck for category.
func (s Snapshot) Top(category string) (domain.Market, bool) {
	v := s.Visible(category)
	if len(v) == 0 {
		return domain.Market{}, false
	}
	return v[0], true
}

// Categories returns "All" followed by the sorted distinct categories of
// every loaded market, swiped or not.
func (s Snapshot) Categories() []string {
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// FilterCategory applies the category view transform without mutating
// markets.
func FilterCategory(markets []domain.Market, category string) []domain.Market {
	if category == "" || category == AllCategories {
		out := make([]domain.Market, len(markets))
		copy(out, markets)
		return out
	}
	key := strings.ToLower(category)
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Category), key) {
			out = append(out, m)
		}
	}
	return out
}

func categories(markets []domain.Market) []string {
	seen := make(map[string]struct{}, len(markets))
	uniq := make([]string, 0, len(markets))
	for _, m := range markets {
		if _, ok := seen[m.Category]; ok {
			continue
		}
		seen[m.Category] = struct{}{}
		uniq = append(uniq, m.Category)
	}
	sort.Strings(uniq)
	return append([]string{AllCategories}, uniq...)
}
