package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/stockbill/internal/platform/db"
	"github.com/odyssey-erp/stockbill/internal/stock"
)

// OpenStore connects the repository selected by STORE_DRIVER. The returned
// close function releases the connection pool.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (stock.RepositoryPort, func(), error) {
	switch cfg.StoreDriver {
	case DriverMySQL:
		handle, err := db.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := handle.Close(); err != nil {
				logger.Warn("mysql close", slog.Any("error", err))
			}
		}
		return stock.NewMySQLRepository(handle), closeFn, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, 0)
		if err != nil {
			return nil, nil, err
		}
		return stock.NewRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
