// Package stocktest provides an in-memory stock store for tests.
package stocktest

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

// Store keeps datasets in memory and serialises transactions behind one mutex.
type Store struct {
	mu       sync.Mutex
	datasets map[string]map[int64]stock.Item

	// Ensured counts EnsureDataset calls per dataset.
	Ensured map[string]int
}

var _ stock.RepositoryPort = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		datasets: make(map[string]map[int64]stock.Item),
		Ensured:  make(map[string]int),
	}
}

// Seed writes items directly, bypassing validation and derived field calculation.
func (s *Store) Seed(dataset string, items ...stock.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.table(dataset)
	for _, item := range items {
		rows[item.SNo] = item
	}
}

// Snapshot returns a copy of the stored item.
func (s *Store) Snapshot(dataset string, sno int64) (stock.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.datasets[dataset][sno]
	return item, ok
}

// Exists reports whether the dataset has been created.
func (s *Store) Exists(dataset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.datasets[dataset]
	return ok
}

func (s *Store) table(name string) map[int64]stock.Item {
	rows, ok := s.datasets[name]
	if !ok {
		rows = make(map[int64]stock.Item)
		s.datasets[name] = rows
	}
	return rows
}

func (s *Store) EnsureDataset(_ context.Context, ds stock.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(ds.Name())
	s.Ensured[ds.Name()]++
	return nil
}

func (s *Store) ListPage(_ context.Context, ds stock.Dataset, query stock.ListQuery) ([]stock.Item, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := query.Normalize()
	var matched []stock.Item
	for _, item := range s.table(ds.Name()) {
		if item.MatchesSearch(q.Search) {
			matched = append(matched, item)
		}
	}
	sortItems(matched, q.SortField, q.SortDir == "desc")
	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := total
	if q.PageSize < total-start {
		end = start + q.PageSize
	}
	return append([]stock.Item(nil), matched[start:end]...), total, nil
}

func (s *Store) ListAll(_ context.Context, ds stock.Dataset) ([]stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]stock.Item, 0, len(s.datasets[ds.Name()]))
	for _, item := range s.table(ds.Name()) {
		items = append(items, item)
	}
	sortItems(items, stock.DefaultSortField, false)
	return items, nil
}

func (s *Store) GetBySno(_ context.Context, ds stock.Dataset, sno int64) (stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBySno(ds, sno)
}

func (s *Store) getBySno(ds stock.Dataset, sno int64) (stock.Item, error) {
	item, ok := s.table(ds.Name())[sno]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) GetByName(_ context.Context, ds stock.Dataset, name string) (stock.Item, error) {
	return s.first(ds, func(item stock.Item) bool { return item.ItemName == name })
}

func (s *Store) GetByNameAndDealer(_ context.Context, ds stock.Dataset, name, dealer string) (stock.Item, error) {
	return s.first(ds, func(item stock.Item) bool {
		return item.ItemName == name && item.NameOfDealer == dealer
	})
}

func (s *Store) first(ds stock.Dataset, match func(stock.Item) bool) (stock.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []stock.Item
	for _, item := range s.table(ds.Name()) {
		items = append(items, item)
	}
	sortItems(items, stock.DefaultSortField, false)
	for _, item := range items {
		if match(item) {
			return item, nil
		}
	}
	return stock.Item{}, stock.ErrItemNotFound
}

func (s *Store) Insert(_ context.Context, ds stock.Dataset, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(ds, item)
}

func (s *Store) insert(ds stock.Dataset, item stock.Item) error {
	rows := s.table(ds.Name())
	if _, exists := rows[item.SNo]; exists {
		return fmt.Errorf("%w: duplicate sno %d", stock.ErrConstraintViolation, item.SNo)
	}
	rows[item.SNo] = item
	return nil
}

func (s *Store) Update(_ context.Context, ds stock.Dataset, sno int64, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.table(ds.Name())
	if _, ok := rows[sno]; !ok {
		return nil
	}
	item.SNo = sno
	rows[sno] = item
	return nil
}

func (s *Store) Delete(_ context.Context, ds stock.Dataset, sno int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(ds.Name()), sno)
	return nil
}

func (s *Store) NextSno(_ context.Context, ds stock.Dataset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSno(ds), nil
}

func (s *Store) nextSno(ds stock.Dataset) int64 {
	var highest int64
	for sno := range s.table(ds.Name()) {
		if sno > highest {
			highest = sno
		}
	}
	return highest + 1
}

// WithTx runs fn while holding the store lock; a failed fn restores the prior state.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := make(map[string]map[int64]stock.Item, len(s.datasets))
	for name, rows := range s.datasets {
		copied := make(map[int64]stock.Item, len(rows))
		for k, v := range rows {
			copied[k] = v
		}
		backup[name] = copied
	}
	if err := fn(ctx, &txStore{store: s}); err != nil {
		s.datasets = backup
		return err
	}
	return nil
}

type txStore struct {
	store *Store
}

func (t *txStore) LockDataset(context.Context, stock.Dataset) error { return nil }

func (t *txStore) NextSno(_ context.Context, ds stock.Dataset) (int64, error) {
	return t.store.nextSno(ds), nil
}

func (t *txStore) Insert(_ context.Context, ds stock.Dataset, item stock.Item) error {
	return t.store.insert(ds, item)
}

func (t *txStore) GetBySnoForUpdate(_ context.Context, ds stock.Dataset, sno int64) (stock.Item, error) {
	return t.store.getBySno(ds, sno)
}

func (t *txStore) ApplySale(_ context.Context, ds stock.Dataset, sno, quantity int64) (stock.Item, error) {
	rows := t.store.table(ds.Name())
	item, ok := rows[sno]
	if !ok || item.StockRemaining < quantity {
		return stock.Item{}, stock.ErrInsufficientStock
	}
	item.StockSold += quantity
	item.StockRemaining -= quantity
	rows[sno] = item
	return item, nil
}

func sortItems(items []stock.Item, field string, desc bool) {
	order := func(a, b stock.Item) int {
		switch field {
		case "ItemName":
			return cmp.Compare(a.ItemName, b.ItemName)
		case "NameOfDealer":
			return cmp.Compare(a.NameOfDealer, b.NameOfDealer)
		case "CostPrice":
			return cmp.Compare(a.CostPrice, b.CostPrice)
		case "SellingPrice":
			return cmp.Compare(a.SellingPrice, b.SellingPrice)
		case "Profit":
			return cmp.Compare(a.Profit, b.Profit)
		case "Loss":
			return cmp.Compare(a.Loss, b.Loss)
		case "GST":
			return cmp.Compare(a.GST, b.GST)
		case "StockBought":
			return cmp.Compare(a.StockBought, b.StockBought)
		case "StockSold":
			return cmp.Compare(a.StockSold, b.StockSold)
		case "StockRemaining":
			return cmp.Compare(a.StockRemaining, b.StockRemaining)
		case "DateOfPurchase":
			switch {
			case a.DateOfPurchase == nil && b.DateOfPurchase == nil:
				return 0
			case a.DateOfPurchase == nil:
				return -1
			case b.DateOfPurchase == nil:
				return 1
			}
			return a.DateOfPurchase.Compare(*b.DateOfPurchase)
		default:
			return cmp.Compare(a.SNo, b.SNo)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := order(items[i], items[j])
		if desc {
			c = -c
		}
		if c == 0 {
			return items[i].SNo < items[j].SNo
		}
		return c < 0
	})
}
