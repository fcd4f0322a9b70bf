package bills

import (
	"context"
	"time"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

// ItemSource is the part of the stock service bills read from.
type ItemSource interface {
	ListAll(ctx context.Context, dataset string) ([]stock.Item, error)
	GetBySno(ctx context.Context, dataset string, sno int64) (stock.Item, error)
}

// Service assembles bills from the stock core.
type Service struct {
	items ItemSource
	now   func() time.Time
}

// NewService constructs a bill service. A nil clock uses time.Now.
func NewService(items ItemSource, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{items: items, now: clock}
}

// All bills every item of dataset in SNo order.
func (s *Service) All(ctx context.Context, dataset string) (Bill, error) {
	items, err := s.items.ListAll(ctx, dataset)
	if err != nil {
		return Bill{}, err
	}
	return Build(dataset, items, s.now()), nil
}

// Single bills one item.
func (s *Service) Single(ctx context.Context, dataset string, sno int64) (Bill, error) {
	item, err := s.items.GetBySno(ctx, dataset, sno)
	if err != nil {
		return Bill{}, err
	}
	return Build(dataset, []stock.Item{item}, s.now()), nil
}
