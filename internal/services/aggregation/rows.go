package aggregation

import (
	"sort"

	"github.com/BearBump/SellerFlow/internal/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// sortRows: название карточки (русская коллация), затем id заказа.
func sortRows(rows []models.CombinedRow) {
	// Collator не потокобезопасен, создаём на каждый вызов.
	col := collate.New(language.Russian, collate.IgnoreCase)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := col.CompareString(a.Title, b.Title); c != 0 {
			return c < 0
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		if a.SupplyID != b.SupplyID {
			return a.SupplyID < b.SupplyID
		}
		return a.ShopID < b.ShopID
	})
}
