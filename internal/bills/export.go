package bills

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/stockbill/internal/view"
)

var csvHeader = []string{
	"SNo", "ItemName", "NameOfDealer", "CostPrice", "SellingPrice", "GST",
	"StockBought", "StockSold", "StockRemaining", "DateOfPurchase",
	"SoldValue", "StockValue",
}

// WriteCSV serialises the bill lines followed by a totals row.
func WriteCSV(w io.Writer, bill Bill) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, line := range bill.Lines {
		item := line.Item
		if err := writer.Write([]string{
			strconv.FormatInt(item.SNo, 10),
			item.ItemName,
			item.NameOfDealer,
			formatFloat(item.CostPrice),
			formatFloat(item.SellingPrice),
			formatFloat(item.GST),
			strconv.FormatInt(item.StockBought, 10),
			strconv.FormatInt(item.StockSold, 10),
			strconv.FormatInt(item.StockRemaining, 10),
			view.FormatDate(item.DateOfPurchase),
			formatFloat(line.SoldValue),
			formatFloat(line.StockValue),
		}); err != nil {
			return err
		}
	}
	t := bill.Totals
	if err := writer.Write([]string{
		"", "Total", "", "", "", formatFloat(t.GSTValue),
		"", strconv.FormatInt(t.UnitsSold, 10), strconv.FormatInt(t.UnitsRemaining, 10), "",
		formatFloat(t.SoldValue), formatFloat(t.StockValue),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
