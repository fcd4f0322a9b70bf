package stock

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/stockbill/internal/shared"
)

// GSTRate is the fixed tax rate applied to the selling price.
const GSTRate = 0.18

// Item is one inventory record identified by SNo within its dataset.
type Item struct {
	SNo            int64      `json:"sno" validate:"gte=0"`
	ItemName       string     `json:"item_name" validate:"required,max=20"`
	NameOfDealer   string     `json:"name_of_dealer" validate:"required,max=20"`
	CostPrice      float64    `json:"cost_price" validate:"gte=0"`
	SellingPrice   float64    `json:"selling_price" validate:"gte=0"`
	Profit         float64    `json:"profit"`
	Loss           float64    `json:"loss"`
	GST            float64    `json:"gst"`
	StockBought    int64      `json:"stock_bought" validate:"gte=0"`
	StockSold      int64      `json:"stock_sold" validate:"gte=0,ltefield=StockBought"`
	StockRemaining int64      `json:"stock_remaining"`
	DateOfPurchase *time.Time `json:"date_of_purchase,omitempty"`
}

// ListQuery describes a paged, searchable and sortable listing request.
type ListQuery struct {
	Search    string
	SortField string
	SortDir   string
	Page      int
	PageSize  int
}

// Page is one page of items plus the total number of matches.
type Page struct {
	Items      []Item
	Total      int
	Pagination shared.Pagination
	Query      ListQuery
}

// Sale is the outcome of a successful sale.
type Sale struct {
	Before  Item
	After   Item
	Receipt Receipt
}

var (
	// ErrInvalidIdentifier indicates a dataset name outside the allowed pattern.
	ErrInvalidIdentifier = fmt.Errorf("stock: invalid identifier: %w", shared.ErrValidation)
	// ErrItemNotFound indicates no item matched the lookup.
	ErrItemNotFound = fmt.Errorf("stock: item %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a non-positive sale quantity.
	ErrInvalidQuantity = fmt.Errorf("stock: quantity must be positive: %w", shared.ErrValidation)
	// ErrInsufficientStock indicates the requested quantity exceeds remaining stock.
	ErrInsufficientStock = fmt.Errorf("stock: insufficient stock: %w", shared.ErrConflict)
	// ErrConstraintViolation indicates a store integrity failure such as a duplicate SNo.
	ErrConstraintViolation = fmt.Errorf("stock: constraint violation: %w", shared.ErrConflict)
	// ErrInvalidItem indicates item fields failed validation.
	ErrInvalidItem = fmt.Errorf("stock: invalid item: %w", shared.ErrValidation)
)
