package stock

import (
	"time"

	"github.com/google/uuid"
)

// Receipt confirms a completed sale.
type Receipt struct {
	ID             string    `json:"id"`
	ItemName       string    `json:"name"`
	SNo            int64     `json:"sno"`
	Quantity       int64     `json:"qty"`
	UnitPrice      float64   `json:"unit_price"`
	TotalPrice     float64   `json:"total"`
	Timestamp      time.Time `json:"time"`
	RemainingStock int64     `json:"remaining"`
}

// BuildReceipt assembles a receipt from the pre-sale snapshot and the updated item.
// The unit price is the selling price at the time of sale.
func BuildReceipt(before Item, quantity int64, after Item, at time.Time) Receipt {
	return Receipt{
		ID:             uuid.NewString(),
		ItemName:       before.ItemName,
		SNo:            before.SNo,
		Quantity:       quantity,
		UnitPrice:      before.SellingPrice,
		TotalPrice:     before.SellingPrice * float64(quantity),
		Timestamp:      at,
		RemainingStock: after.StockRemaining,
	}
}
