package stock

import (
	"math"
	"strings"
)

// DefaultSortField is used whenever the requested sort field is not whitelisted.
const DefaultSortField = "SNo"

// sortColumns maps the sortable item fields to their fixed column names.
var sortColumns = map[string]string{
	"SNo":            "sno",
	"ItemName":       "item_name",
	"NameOfDealer":   "name_of_dealer",
	"CostPrice":      "cost_price",
	"SellingPrice":   "selling_price",
	"Profit":         "profit",
	"Loss":           "loss",
	"GST":            "gst",
	"StockBought":    "stock_bought",
	"StockSold":      "stock_sold",
	"StockRemaining": "stock_remaining",
	"DateOfPurchase": "date_of_purchase",
}

// SortFields lists the whitelisted sort fields in display order.
var SortFields = []string{
	"SNo", "ItemName", "NameOfDealer", "CostPrice", "SellingPrice", "Profit",
	"Loss", "GST", "StockBought", "StockSold", "StockRemaining", "DateOfPurchase",
}

// Normalize applies the whitelist and paging rules: unknown sort fields fall
// back to SNo, any direction other than "desc" is ascending, and page and
// page size are at least 1. Page is capped so Page*PageSize fits in an int.
func (q ListQuery) Normalize() ListQuery {
	if _, ok := sortColumns[q.SortField]; !ok {
		q.SortField = DefaultSortField
	}
	if strings.EqualFold(q.SortDir, "desc") {
		q.SortDir = "desc"
	} else {
		q.SortDir = "asc"
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if maxPage := math.MaxInt / q.PageSize; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}

// Offset is the number of rows skipped before the page starts.
func (q ListQuery) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.PageSize
}

// sortColumn returns the column for a normalized query.
func (q ListQuery) sortColumn() string {
	return sortColumns[q.SortField]
}

func (q ListQuery) sortDirection() string {
	if q.SortDir == "desc" {
		return "DESC"
	}
	return "ASC"
}

// likePattern wraps search text for a case-insensitive substring match with
// LIKE metacharacters escaped.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(search)) + "%"
}

// MatchesSearch reports whether item matches search the way the stores do.
func (i Item) MatchesSearch(search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(i.ItemName), needle) ||
		strings.Contains(strings.ToLower(i.NameOfDealer), needle)
}
