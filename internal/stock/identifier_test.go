package stock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

func TestParseDataset(t *testing.T) {
	for _, name := range []string{"Stationery", "books_2024", "_", "A1"} {
		ds, err := stock.ParseDataset(name)
		require.NoError(t, err, name)
		require.Equal(t, name, ds.Name())
		require.True(t, ds.Valid())
	}
	for _, name := range []string{"", "Stationery;", "a b", "drop-table", `x"y`, "naïve", "`t`"} {
		_, err := stock.ParseDataset(name)
		require.ErrorIs(t, err, stock.ErrInvalidIdentifier, name)
	}
}

func TestMustDatasetPanicsOnInvalid(t *testing.T) {
	require.Panics(t, func() { stock.MustDataset("bad name") })
	require.False(t, stock.Dataset{}.Valid())
}
