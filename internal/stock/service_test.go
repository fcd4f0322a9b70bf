package stock_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/internal/stock"
	"github.com/odyssey-erp/stockbill/internal/stock/stocktest"
)

var fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

type recordedSale struct {
	dataset  string
	quantity int64
	err      error
}

type saleRecorder struct {
	mu    sync.Mutex
	sales []recordedSale
}

func (r *saleRecorder) ObserveSale(dataset string, quantity int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, recordedSale{dataset: dataset, quantity: quantity, err: err})
}

func newService(t *testing.T) (*stock.Service, *stocktest.Store, *saleRecorder) {
	t.Helper()
	store := stocktest.New()
	rec := &saleRecorder{}
	svc := stock.NewService(store, stock.ServiceConfig{
		Observer: rec,
		Clock:    func() time.Time { return fixedNow },
	})
	return svc, store, rec
}

func pen() stock.Item {
	return stock.Item{SNo: 1, ItemName: "Pen", NameOfDealer: "Acme", CostPrice: 5, SellingPrice: 8, StockBought: 100}
}

func TestSellStationeryScenario(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	sale, err := svc.Sell(ctx, "Stationery", 1, 30)
	require.NoError(t, err)
	require.EqualValues(t, 30, sale.After.StockSold)
	require.EqualValues(t, 70, sale.After.StockRemaining)
	require.EqualValues(t, 100, sale.Before.StockRemaining)
	require.InDelta(t, 240.0, sale.Receipt.TotalPrice, 1e-9)
	require.InDelta(t, 8.0, sale.Receipt.UnitPrice, 1e-9)
	require.Equal(t, "Pen", sale.Receipt.ItemName)
	require.EqualValues(t, 1, sale.Receipt.SNo)
	require.EqualValues(t, 30, sale.Receipt.Quantity)
	require.EqualValues(t, 70, sale.Receipt.RemainingStock)
	require.Equal(t, fixedNow, sale.Receipt.Timestamp)
	require.NotEmpty(t, sale.Receipt.ID)

	stored, ok := store.Snapshot("Stationery", 1)
	require.True(t, ok)
	require.EqualValues(t, 70, stored.StockRemaining)
	require.InDelta(t, 3.0, stored.Profit, 1e-9)
	require.InDelta(t, 8*stock.GSTRate, stored.GST, 1e-9)

	require.Len(t, rec.sales, 1)
	require.NoError(t, rec.sales[0].err)
}

func TestSellInsufficientStockLeavesStateUnchanged(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)
	before, _ := store.Snapshot("Stationery", 1)

	_, err = svc.Sell(ctx, "Stationery", 1, 1000)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrConflict)

	after, _ := store.Snapshot("Stationery", 1)
	require.Equal(t, before, after)
	require.Len(t, rec.sales, 1)
	require.ErrorIs(t, rec.sales[0].err, stock.ErrInsufficientStock)
}

func TestSellRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	for _, qty := range []int64{0, -1} {
		_, err := svc.Sell(ctx, "Stationery", 1, qty)
		require.ErrorIs(t, err, stock.ErrInvalidQuantity, "qty %d", qty)
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestSellChecksExistenceBeforeQuantity(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Sell(context.Background(), "Stationery", 42, 0)
	require.ErrorIs(t, err, stock.ErrItemNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSellExactRemainingEmptiesStock(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	sale, err := svc.Sell(ctx, "Stationery", 1, 100)
	require.NoError(t, err)
	require.Zero(t, sale.After.StockRemaining)

	_, err = svc.Sell(ctx, "Stationery", 1, 1)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	item := pen()
	item.StockBought = 10
	_, err := svc.Insert(ctx, "Stationery", item)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sell(ctx, "Stationery", 1, 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, stock.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	stored, _ := store.Snapshot("Stationery", 1)
	require.Zero(t, stored.StockRemaining)
	require.EqualValues(t, 10, stored.StockSold)
}

func TestNextSno(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	next, err := svc.NextSno(ctx, "Stationery")
	require.NoError(t, err)
	require.EqualValues(t, 1, next)

	first := pen()
	_, err = svc.Insert(ctx, "Stationery", first)
	require.NoError(t, err)
	fifth := pen()
	fifth.SNo = 5
	fifth.ItemName = "Pencil"
	_, err = svc.Insert(ctx, "Stationery", fifth)
	require.NoError(t, err)

	next, err = svc.NextSno(ctx, "Stationery")
	require.NoError(t, err)
	require.EqualValues(t, 6, next)
}

func TestInsertRoundTrip(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	item := pen()
	item.DateOfPurchase = &day

	saved, err := svc.Insert(ctx, "Stationery", item)
	require.NoError(t, err)

	loaded, err := svc.GetBySno(ctx, "Stationery", 1)
	require.NoError(t, err)
	require.Equal(t, saved, loaded)
	require.EqualValues(t, 100, loaded.StockRemaining)
	require.True(t, day.Equal(*loaded.DateOfPurchase))
}

func TestInsertKeepsCalendarDayOfZonedDate(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	cases := map[string]time.Time{
		"East": time.Date(2024, 1, 5, 0, 0, 0, 0, time.FixedZone("IST", 5*3600+1800)),
		"West": time.Date(2024, 1, 5, 23, 30, 0, 0, time.FixedZone("PST", -8*3600)),
	}
	for dataset, purchased := range cases {
		item := pen()
		item.DateOfPurchase = &purchased
		saved, err := svc.Insert(ctx, dataset, item)
		require.NoError(t, err)

		loaded, err := svc.GetBySno(ctx, dataset, 1)
		require.NoError(t, err)
		require.Equal(t, saved, loaded)
		require.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *loaded.DateOfPurchase, dataset)
	}
}

func TestInsertDuplicateSnoIsConstraintViolation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	_, err = svc.Insert(ctx, "Stationery", pen())
	require.ErrorIs(t, err, stock.ErrConstraintViolation)
}

func TestInsertValidatesFields(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	item := pen()
	item.ItemName = ""
	item.StockSold = 101
	_, err := svc.Insert(ctx, "Stationery", item)
	require.ErrorIs(t, err, stock.ErrInvalidItem)
	var verr *stock.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "ItemName")
	require.Contains(t, verr.Fields, "StockSold")

	item = pen()
	item.CostPrice = -1
	_, err = svc.Insert(ctx, "Stationery", item)
	require.ErrorIs(t, err, stock.ErrInvalidItem)
}

func TestInvalidDatasetNeverReachesStore(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	for _, name := range []string{"", "Stationery; DROP TABLE x", "a-b", "name with space"} {
		_, err := svc.ListPage(ctx, name, stock.ListQuery{})
		require.ErrorIs(t, err, stock.ErrInvalidIdentifier, name)
		_, err = svc.Sell(ctx, name, 1, 1)
		require.ErrorIs(t, err, stock.ErrInvalidIdentifier, name)
	}
	require.Empty(t, store.Ensured)
}

func TestDatasetIsCreatedLazily(t *testing.T) {
	svc, store, _ := newService(t)
	require.False(t, store.Exists("Books_2024"))

	page, err := svc.ListPage(context.Background(), "Books_2024", stock.ListQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.True(t, store.Exists("Books_2024"))
}

func TestCreateAllocatesSequentialSno(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	item := pen()
	item.SNo = 0
	first, err := svc.Create(ctx, "Stationery", item)
	require.NoError(t, err)
	require.EqualValues(t, 1, first.SNo)

	second, err := svc.Create(ctx, "Stationery", item)
	require.NoError(t, err)
	require.EqualValues(t, 2, second.SNo)

	explicit := item
	explicit.SNo = 10
	third, err := svc.Create(ctx, "Stationery", explicit)
	require.NoError(t, err)
	require.EqualValues(t, 10, third.SNo)
}

func TestConcurrentCreateAssignsUniqueSno(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	const n = 20
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := pen()
			item.SNo = 0
			created, err := svc.Create(ctx, "Stationery", item)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			results <- created.SNo
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for sno := range results {
		require.False(t, seen[sno], "duplicate sno %d", sno)
		seen[sno] = true
	}
	require.Len(t, seen, n)
}

func TestUpdateRecomputesDerivedFields(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	edit := pen()
	edit.CostPrice = 10
	edit.SellingPrice = 7
	edit.StockBought = 50
	edit.StockSold = 20
	edit.Profit = 999
	updated, err := svc.Update(ctx, "Stationery", 1, edit)
	require.NoError(t, err)
	require.Zero(t, updated.Profit)
	require.InDelta(t, 3.0, updated.Loss, 1e-9)
	require.InDelta(t, 7*stock.GSTRate, updated.GST, 1e-9)
	require.EqualValues(t, 30, updated.StockRemaining)

	stored, _ := store.Snapshot("Stationery", 1)
	require.Equal(t, updated, stored)
}

func TestUpdateAfterSaleTakesSubmittedStock(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)
	_, err = svc.Sell(ctx, "Stationery", 1, 30)
	require.NoError(t, err)

	// the form was loaded before the sale
	updated, err := svc.Update(ctx, "Stationery", 1, pen())
	require.NoError(t, err)
	require.Zero(t, updated.StockSold)
	require.EqualValues(t, 100, updated.StockRemaining)
}

func TestUpdateAndDeleteMissingAreNoOps(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "Stationery", 7, pen())
	require.NoError(t, err)
	_, ok := store.Snapshot("Stationery", 7)
	require.False(t, ok)

	require.NoError(t, svc.Delete(ctx, "Stationery", 7))
}

func TestDeleteRemovesItem(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "Stationery", 1))
	_, err = svc.GetBySno(ctx, "Stationery", 1)
	require.ErrorIs(t, err, stock.ErrItemNotFound)
}

func TestLookupByNameAndDealer(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Insert(ctx, "Stationery", pen())
	require.NoError(t, err)

	item, err := svc.GetByNameAndDealer(ctx, "Stationery", "Pen", "Acme")
	require.NoError(t, err)
	require.EqualValues(t, 1, item.SNo)

	_, err = svc.GetByNameAndDealer(ctx, "Stationery", "Pen", "OtherCo")
	require.ErrorIs(t, err, stock.ErrItemNotFound)

	item, err = svc.GetByName(ctx, "Stationery", "Pen")
	require.NoError(t, err)
	require.EqualValues(t, 1, item.SNo)
}

func TestSellByNameResolutionOrder(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	acme := pen()
	_, err := svc.Insert(ctx, "Stationery", acme)
	require.NoError(t, err)
	other := pen()
	other.SNo = 2
	other.NameOfDealer = "OtherCo"
	_, err = svc.Insert(ctx, "Stationery", other)
	require.NoError(t, err)

	sale, err := svc.SellByName(ctx, "Stationery", "Pen", "OtherCo", 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, sale.Receipt.SNo)

	sale, err = svc.SellByName(ctx, "Stationery", "Pen", "Nobody", 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, sale.Receipt.SNo)

	_, err = svc.SellByName(ctx, "Stationery", "Stapler", "Acme", 1)
	require.ErrorIs(t, err, stock.ErrItemNotFound)
}

func seedListing(t *testing.T, svc *stock.Service) {
	t.Helper()
	ctx := context.Background()
	rows := []stock.Item{
		{SNo: 1, ItemName: "Pen", NameOfDealer: "Acme", CostPrice: 5, SellingPrice: 8, StockBought: 100},
		{SNo: 2, ItemName: "Pencil", NameOfDealer: "Bolt", CostPrice: 2, SellingPrice: 3, StockBought: 50},
		{SNo: 3, ItemName: "Eraser", NameOfDealer: "acme corp", CostPrice: 1, SellingPrice: 1, StockBought: 10},
		{SNo: 4, ItemName: "Notebook", NameOfDealer: "Zed", CostPrice: 30, SellingPrice: 25, StockBought: 5},
	}
	for _, row := range rows {
		_, err := svc.Insert(ctx, "Stationery", row)
		require.NoError(t, err)
	}
}

func snos(items []stock.Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, item.SNo)
	}
	return out
}

func TestListPageSearchSortAndPaging(t *testing.T) {
	svc, _, _ := newService(t)
	seedListing(t, svc)
	ctx := context.Background()

	page, err := svc.ListPage(ctx, "Stationery", stock.ListQuery{Search: "ACME", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, []int64{1, 3}, snos(page.Items))

	page, err = svc.ListPage(ctx, "Stationery", stock.ListQuery{SortField: "SellingPrice", SortDir: "DeSc", Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.Equal(t, []int64{4, 1}, snos(page.Items))
	require.Equal(t, 2, page.Pagination.TotalPages)

	page, err = svc.ListPage(ctx, "Stationery", stock.ListQuery{SortField: "SellingPrice", SortDir: "desc", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, snos(page.Items))

	page, err = svc.ListPage(ctx, "Stationery", stock.ListQuery{Page: 0, PageSize: 0})
	require.NoError(t, err)
	require.Equal(t, 1, page.Query.Page)
	require.Equal(t, 1, page.Query.PageSize)
	require.Equal(t, []int64{1}, snos(page.Items))

	page, err = svc.ListPage(ctx, "Stationery", stock.ListQuery{Page: 9, PageSize: 10})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, 4, page.Total)
}

func TestListPageHugePageNumberIsEmpty(t *testing.T) {
	svc, _, _ := newService(t)
	seedListing(t, svc)

	page, err := svc.ListPage(context.Background(), "Stationery", stock.ListQuery{Page: math.MaxInt / 2, PageSize: 4})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, 4, page.Total)
	require.False(t, page.Pagination.HasNext())
	require.Equal(t, 4, page.Pagination.Last())
}

func TestListPageUnknownSortFieldFallsBackToSno(t *testing.T) {
	svc, _, _ := newService(t)
	seedListing(t, svc)
	ctx := context.Background()

	hostile, err := svc.ListPage(ctx, "Stationery", stock.ListQuery{SortField: "DROP TABLE x", Page: 1, PageSize: 10})
	require.NoError(t, err)
	bySno, err := svc.ListPage(ctx, "Stationery", stock.ListQuery{SortField: "SNo", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, bySno.Items, hostile.Items)
	require.Equal(t, "SNo", hostile.Query.SortField)
	require.Equal(t, "asc", hostile.Query.SortDir)
}
