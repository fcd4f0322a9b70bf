package stock

import "math"

// Derived holds the fields computed from prices and stock counts.
type Derived struct {
	Profit         float64
	Loss           float64
	GST            float64
	StockRemaining int64
}

// ComputeDerived returns profit, loss, GST and remaining stock for the raw inputs.
func ComputeDerived(costPrice, sellingPrice float64, stockBought, stockSold int64) Derived {
	return Derived{
		Profit:         math.Max(sellingPrice-costPrice, 0),
		Loss:           math.Max(costPrice-sellingPrice, 0),
		GST:            sellingPrice * GSTRate,
		StockRemaining: stockBought - stockSold,
	}
}

// WithDerived returns a copy of item with every derived field recomputed.
func (i Item) WithDerived() Item {
	d := ComputeDerived(i.CostPrice, i.SellingPrice, i.StockBought, i.StockSold)
	i.Profit = d.Profit
	i.Loss = d.Loss
	i.GST = d.GST
	i.StockRemaining = d.StockRemaining
	return i
}
