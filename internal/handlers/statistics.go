package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
)

// StatsCategoryItem represents a category with its spending statistics.
type StatsCategoryItem struct {
	Category      string
	Total         decimal.Decimal
	Count         int
	Percentage    float64
	CategoryStyle CategoryStyle
}

// StatsViewModel is the data passed to the statistics view template.
type StatsViewModel struct {
	Total      decimal.Decimal
	Categories []StatsCategoryItem
}

// Statistics renders the per-category breakdown of the user's expenses.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	totals, total, err := h.ledger.Statistics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]StatsCategoryItem, 0, len(totals))
	for _, ct := range totals {
		percentage := 0.0
		if total.IsPositive() {
			percentage = ct.Total.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		items = append(items, StatsCategoryItem{
			Category:      ct.Category,
			Total:         ct.Total,
			Count:         ct.Count,
			Percentage:    percentage,
			CategoryStyle: getCategoryStyle(ct.Category),
		})
	}

	h.render(w, r, http.StatusOK, "stats.html", StatsViewModel{Total: total, Categories: items})
}
