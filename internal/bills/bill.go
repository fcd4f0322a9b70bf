// Package bills builds printable bills and exports from stock items.
package bills

import (
	"time"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

// Line is one item row on a bill.
type Line struct {
	Item       stock.Item
	SoldValue  float64
	GSTValue   float64
	StockValue float64
}

// Totals sums the monetary columns of a bill.
type Totals struct {
	UnitsSold      int64
	UnitsRemaining int64
	SoldValue      float64
	GSTValue       float64
	StockValue     float64
	Profit         float64
	Loss           float64
}

// Bill is a timestamped statement for one or more items of a dataset.
type Bill struct {
	Dataset     string
	GeneratedAt time.Time
	Lines       []Line
	Totals      Totals
}

// NewLine values item sales at the selling price and remaining stock at cost.
func NewLine(item stock.Item) Line {
	sold := float64(item.StockSold)
	return Line{
		Item:       item,
		SoldValue:  item.SellingPrice * sold,
		GSTValue:   item.GST * sold,
		StockValue: item.CostPrice * float64(item.StockRemaining),
	}
}

// Build assembles a bill for items in the given order.
func Build(dataset string, items []stock.Item, at time.Time) Bill {
	bill := Bill{Dataset: dataset, GeneratedAt: at, Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		line := NewLine(item)
		bill.Lines = append(bill.Lines, line)
		t := &bill.Totals
		t.UnitsSold += item.StockSold
		t.UnitsRemaining += item.StockRemaining
		t.SoldValue += line.SoldValue
		t.GSTValue += line.GSTValue
		t.StockValue += line.StockValue
		t.Profit += item.Profit * float64(item.StockSold)
		t.Loss += item.Loss * float64(item.StockSold)
	}
	return bill
}

// Single reports whether the bill covers exactly one item.
func (b Bill) Single() bool {
	return len(b.Lines) == 1
}
