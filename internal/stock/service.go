package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockbill/internal/shared"
)

// RepositoryPort abstracts the per-dataset item store.
type RepositoryPort interface {
	EnsureDataset(ctx context.Context, ds Dataset) error
	ListPage(ctx context.Context, ds Dataset, q ListQuery) ([]Item, int, error)
	ListAll(ctx context.Context, ds Dataset) ([]Item, error)
	GetBySno(ctx context.Context, ds Dataset, sno int64) (Item, error)
	GetByName(ctx context.Context, ds Dataset, name string) (Item, error)
	GetByNameAndDealer(ctx context.Context, ds Dataset, name, dealer string) (Item, error)
	Insert(ctx context.Context, ds Dataset, item Item) error
	Update(ctx context.Context, ds Dataset, sno int64, item Item) error
	Delete(ctx context.Context, ds Dataset, sno int64) error
	NextSno(ctx context.Context, ds Dataset) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	LockDataset(ctx context.Context, ds Dataset) error
	NextSno(ctx context.Context, ds Dataset) (int64, error)
	Insert(ctx context.Context, ds Dataset, item Item) error
	GetBySnoForUpdate(ctx context.Context, ds Dataset, sno int64) (Item, error)
	ApplySale(ctx context.Context, ds Dataset, sno, quantity int64) (Item, error)
}

// SaleObserver is notified about every sale attempt.
type SaleObserver interface {
	ObserveSale(dataset string, quantity int64, err error)
}

// Service coordinates dataset resolution, item writes and sales.
type Service struct {
	repo       RepositoryPort
	validate   *validator.Validate
	observer   SaleObserver
	logger     *slog.Logger
	now        func() time.Time
	allocTries int
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Observer SaleObserver
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		validate:   validator.New(),
		observer:   cfg.Observer,
		logger:     logger,
		now:        clock,
		allocTries: 3,
	}
}

// EnsureDataset validates the dataset name and creates the dataset if needed.
func (s *Service) EnsureDataset(ctx context.Context, dataset string) (Dataset, error) {
	ds, err := ParseDataset(dataset)
	if err != nil {
		return Dataset{}, err
	}
	if err := s.repo.EnsureDataset(ctx, ds); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}

// ListPage returns a page of items matching the query.
func (s *Service) ListPage(ctx context.Context, dataset string, query ListQuery) (Page, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Page{}, err
	}
	q := query.Normalize()
	items, total, err := s.repo.ListPage(ctx, ds, q)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Items:      items,
		Total:      total,
		Pagination: shared.NewPagination(q.Page, q.PageSize, total),
		Query:      q,
	}, nil
}

// ListAll returns every item of the dataset ordered by SNo.
func (s *Service) ListAll(ctx context.Context, dataset string) ([]Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, ds)
}

// GetBySno loads an item or returns ErrItemNotFound.
func (s *Service) GetBySno(ctx context.Context, dataset string, sno int64) (Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	return s.repo.GetBySno(ctx, ds, sno)
}

// GetByName loads the first item with the given name.
func (s *Service) GetByName(ctx context.Context, dataset, name string) (Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	return s.repo.GetByName(ctx, ds, name)
}

// GetByNameAndDealer loads the first item with the given name and dealer.
func (s *Service) GetByNameAndDealer(ctx context.Context, dataset, name, dealer string) (Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	return s.repo.GetByNameAndDealer(ctx, ds, name, dealer)
}

// NextSno suggests the next free sequence number. Two concurrent callers may
// receive the same value; Create allocates under a lock instead.
func (s *Service) NextSno(ctx context.Context, dataset string) (int64, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return 0, err
	}
	return s.repo.NextSno(ctx, ds)
}

// Insert stores item with its caller supplied SNo after recomputing derived fields.
func (s *Service) Insert(ctx context.Context, dataset string, item Item) (Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	item, err = s.prepare(item)
	if err != nil {
		return Item{}, err
	}
	if item.SNo < 1 {
		return Item{}, fmt.Errorf("%w: sno must be positive", ErrInvalidItem)
	}
	if err := s.repo.Insert(ctx, ds, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Create inserts item, allocating the next SNo under a dataset lock when item.SNo is zero.
func (s *Service) Create(ctx context.Context, dataset string, item Item) (Item, error) {
	if item.SNo != 0 {
		return s.Insert(ctx, dataset, item)
	}
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	item, err = s.prepare(item)
	if err != nil {
		return Item{}, err
	}
	for attempt := 1; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LockDataset(ctx, ds); err != nil {
				return err
			}
			next, err := tx.NextSno(ctx, ds)
			if err != nil {
				return err
			}
			item.SNo = next
			return tx.Insert(ctx, ds, item)
		})
		if err == nil || !errors.Is(err, ErrConstraintViolation) || attempt >= s.allocTries {
			break
		}
		s.logger.Warn("sno allocation collided, retrying", slog.String("dataset", ds.Name()), slog.Int("attempt", attempt))
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// Update overwrites every field of the item at sno and recomputes derived
// fields. Submitted stock values take precedence over any interleaved sale.
// A missing sno is a silent no-op.
func (s *Service) Update(ctx context.Context, dataset string, sno int64, item Item) (Item, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Item{}, err
	}
	item.SNo = sno
	item, err = s.prepare(item)
	if err != nil {
		return Item{}, err
	}
	if err := s.repo.Update(ctx, ds, sno, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Delete removes the item at sno; a missing sno is a no-op.
func (s *Service) Delete(ctx context.Context, dataset string, sno int64) error {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, ds, sno)
}

// Sell records a sale of quantity units of the item at sno.
func (s *Service) Sell(ctx context.Context, dataset string, sno, quantity int64) (Sale, error) {
	sale, err := s.sell(ctx, dataset, sno, quantity)
	if s.observer != nil {
		s.observer.ObserveSale(dataset, quantity, err)
	}
	return sale, err
}

// SellByName resolves the item by exact name and dealer, falling back to name
// only, and then sells it.
func (s *Service) SellByName(ctx context.Context, dataset, name, dealer string, quantity int64) (Sale, error) {
	item, err := s.Resolve(ctx, dataset, name, dealer)
	if err != nil {
		if s.observer != nil {
			s.observer.ObserveSale(dataset, quantity, err)
		}
		return Sale{}, err
	}
	return s.Sell(ctx, dataset, item.SNo, quantity)
}

// Resolve applies the sale lookup order: name and dealer, then name alone.
func (s *Service) Resolve(ctx context.Context, dataset, name, dealer string) (Item, error) {
	name = strings.TrimSpace(name)
	dealer = strings.TrimSpace(dealer)
	if name == "" {
		return Item{}, ErrItemNotFound
	}
	if dealer != "" {
		item, err := s.GetByNameAndDealer(ctx, dataset, name, dealer)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrItemNotFound) {
			return Item{}, err
		}
	}
	return s.GetByName(ctx, dataset, name)
}

func (s *Service) sell(ctx context.Context, dataset string, sno, quantity int64) (Sale, error) {
	ds, err := s.EnsureDataset(ctx, dataset)
	if err != nil {
		return Sale{}, err
	}
	var sale Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.GetBySnoForUpdate(ctx, ds, sno)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		if quantity > before.StockRemaining {
			return ErrInsufficientStock
		}
		after, err := tx.ApplySale(ctx, ds, sno, quantity)
		if err != nil {
			return err
		}
		sale = Sale{Before: before, After: after, Receipt: BuildReceipt(before, quantity, after, s.now())}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.logger.Info("sale recorded",
		slog.String("dataset", ds.Name()),
		slog.Int64("sno", sno),
		slog.Int64("quantity", quantity),
		slog.Int64("remaining", sale.After.StockRemaining))
	return sale, nil
}

// prepare validates item and fills derived fields.
func (s *Service) prepare(item Item) (Item, error) {
	item.ItemName = strings.TrimSpace(item.ItemName)
	item.NameOfDealer = strings.TrimSpace(item.NameOfDealer)
	if item.DateOfPurchase != nil {
		// keep the calendar day as written, whatever the zone
		y, m, d := item.DateOfPurchase.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		item.DateOfPurchase = &day
	}
	if err := s.validate.Struct(item); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return Item{}, &ValidationError{Fields: fieldMessages(fieldErrs)}
		}
		return Item{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return item.WithDerived(), nil
}
