package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockbill/internal/platform/db"
)

const itemColumns = `sno, item_name, name_of_dealer, cost_price, selling_price, profit, loss, gst, stock_bought, stock_sold, stock_remaining, date_of_purchase`

// Repository persists items in PostgreSQL, one table per dataset.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*pgTxRepository)(nil)
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxRepository struct {
	tx pgx.Tx
}

func pgTable(ds Dataset) string {
	return pgx.Identifier{ds.Name()}.Sanitize()
}

// EnsureDataset creates the dataset table when it does not exist.
func (r *Repository) EnsureDataset(ctx context.Context, ds Dataset) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sno BIGINT PRIMARY KEY,
	item_name VARCHAR(20) NOT NULL,
	name_of_dealer VARCHAR(20) NOT NULL,
	cost_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	selling_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	loss DOUBLE PRECISION NOT NULL DEFAULT 0,
	gst DOUBLE PRECISION NOT NULL DEFAULT 0,
	stock_bought BIGINT NOT NULL DEFAULT 0,
	stock_sold BIGINT NOT NULL DEFAULT 0,
	stock_remaining BIGINT NOT NULL DEFAULT 0,
	date_of_purchase DATE
)`, pgTable(ds)))
	if err != nil {
		var pgErr *pgconn.PgError
		// Two sessions racing on CREATE TABLE IF NOT EXISTS can collide on the catalog.
		if errors.As(err, &pgErr) && (pgErr.Code == "42P07" || pgErr.Code == "23505") {
			return nil
		}
		return fmt.Errorf("stock: ensure dataset %s: %w", ds, err)
	}
	return nil
}

// buildListQueries renders the count and page statements for a normalized query.
func buildListQueries(table string, q ListQuery) (string, string, []any) {
	var where string
	var args []any
	if q.Search != "" {
		args = append(args, likePattern(q.Search))
		where = ` WHERE (item_name ILIKE $1 OR name_of_dealer ILIKE $1)`
	}
	countSQL := `SELECT COUNT(*) FROM ` + table + where

	order := q.sortColumn() + " " + q.sortDirection()
	if q.sortColumn() != "sno" {
		order += ", sno ASC"
	}
	limitPos := len(args) + 1
	listSQL := `SELECT ` + itemColumns + ` FROM ` + table + where +
		` ORDER BY ` + order +
		` LIMIT $` + strconv.Itoa(limitPos) + ` OFFSET $` + strconv.Itoa(limitPos+1)
	return countSQL, listSQL, args
}

// ListPage returns one page of matching items and the total match count.
func (r *Repository) ListPage(ctx context.Context, ds Dataset, query ListQuery) ([]Item, int, error) {
	if r == nil {
		return nil, 0, errors.New("stock repository not initialised")
	}
	q := query.Normalize()
	countSQL, listSQL, args := buildListQueries(pgTable(ds), q)
	listArgs := append(append([]any{}, args...), q.PageSize, q.Offset())

	var (
		total int
		items []Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.pool.QueryRow(gctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("stock: count items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = queryItems(gctx, r.pool, listSQL, listArgs...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAll returns every item of the dataset ordered by SNo.
func (r *Repository) ListAll(ctx context.Context, ds Dataset) ([]Item, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	return queryItems(ctx, r.pool, `SELECT `+itemColumns+` FROM `+pgTable(ds)+` ORDER BY sno ASC`)
}

// GetBySno loads a single item.
func (r *Repository) GetBySno(ctx context.Context, ds Dataset, sno int64) (Item, error) {
	return queryItem(ctx, r.pool, `SELECT `+itemColumns+` FROM `+pgTable(ds)+` WHERE sno=$1`, sno)
}

// GetByName loads the first item with the given name.
func (r *Repository) GetByName(ctx context.Context, ds Dataset, name string) (Item, error) {
	return queryItem(ctx, r.pool, `SELECT `+itemColumns+` FROM `+pgTable(ds)+` WHERE item_name=$1 LIMIT 1`, name)
}

// GetByNameAndDealer loads the first item with the given name and dealer.
func (r *Repository) GetByNameAndDealer(ctx context.Context, ds Dataset, name, dealer string) (Item, error) {
	return queryItem(ctx, r.pool, `SELECT `+itemColumns+` FROM `+pgTable(ds)+` WHERE item_name=$1 AND name_of_dealer=$2 LIMIT 1`, name, dealer)
}

// Insert stores a new item; a duplicate SNo yields ErrConstraintViolation.
func (r *Repository) Insert(ctx context.Context, ds Dataset, item Item) error {
	return insertItem(ctx, r.pool, ds, item)
}

// Update overwrites every field except SNo. A missing row is not an error.
func (r *Repository) Update(ctx context.Context, ds Dataset, sno int64, item Item) error {
	_, err := r.pool.Exec(ctx, `UPDATE `+pgTable(ds)+` SET item_name=$1, name_of_dealer=$2, cost_price=$3, selling_price=$4, profit=$5, loss=$6, gst=$7, stock_bought=$8, stock_sold=$9, stock_remaining=$10, date_of_purchase=$11 WHERE sno=$12`,
		item.ItemName, item.NameOfDealer, item.CostPrice, item.SellingPrice, item.Profit, item.Loss, item.GST,
		item.StockBought, item.StockSold, item.StockRemaining, item.DateOfPurchase, sno)
	if err != nil {
		return pgError("update", err)
	}
	return nil
}

// Delete removes an item. A missing row is not an error.
func (r *Repository) Delete(ctx context.Context, ds Dataset, sno int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM `+pgTable(ds)+` WHERE sno=$1`, sno); err != nil {
		return pgError("delete", err)
	}
	return nil
}

// NextSno returns one past the highest SNo, or 1 for an empty dataset.
func (r *Repository) NextSno(ctx context.Context, ds Dataset) (int64, error) {
	return nextSno(ctx, r.pool, ds)
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

// LockDataset serialises sequence allocation for the dataset until the transaction ends.
func (t *pgTxRepository) LockDataset(ctx context.Context, ds Dataset) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "stock:"+ds.Name()); err != nil {
		return fmt.Errorf("stock: lock dataset %s: %w", ds, err)
	}
	return nil
}

func (t *pgTxRepository) NextSno(ctx context.Context, ds Dataset) (int64, error) {
	return nextSno(ctx, t.tx, ds)
}

func (t *pgTxRepository) Insert(ctx context.Context, ds Dataset, item Item) error {
	return insertItem(ctx, t.tx, ds, item)
}

func (t *pgTxRepository) GetBySnoForUpdate(ctx context.Context, ds Dataset, sno int64) (Item, error) {
	return queryItem(ctx, t.tx, `SELECT `+itemColumns+` FROM `+pgTable(ds)+` WHERE sno=$1 FOR UPDATE`, sno)
}

// ApplySale decrements remaining stock only while enough is left.
func (t *pgTxRepository) ApplySale(ctx context.Context, ds Dataset, sno, quantity int64) (Item, error) {
	item, err := queryItem(ctx, t.tx, `UPDATE `+pgTable(ds)+` SET stock_sold = stock_sold + $1, stock_remaining = stock_remaining - $1
WHERE sno=$2 AND stock_remaining >= $1
RETURNING `+itemColumns, quantity, sno)
	if errors.Is(err, ErrItemNotFound) {
		return Item{}, ErrInsufficientStock
	}
	return item, err
}

func insertItem(ctx context.Context, q pgQuerier, ds Dataset, item Item) error {
	_, err := q.Exec(ctx, `INSERT INTO `+pgTable(ds)+` (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.SNo, item.ItemName, item.NameOfDealer, item.CostPrice, item.SellingPrice, item.Profit, item.Loss, item.GST,
		item.StockBought, item.StockSold, item.StockRemaining, item.DateOfPurchase)
	if err != nil {
		return pgError("insert", err)
	}
	return nil
}

func nextSno(ctx context.Context, q pgQuerier, ds Dataset) (int64, error) {
	var next int64
	if err := q.QueryRow(ctx, `SELECT COALESCE(MAX(sno), 0) + 1 FROM `+pgTable(ds)).Scan(&next); err != nil {
		return 0, fmt.Errorf("stock: next sno: %w", err)
	}
	return next, nil
}

func queryItem(ctx context.Context, q pgQuerier, sql string, args ...any) (Item, error) {
	var item Item
	err := q.QueryRow(ctx, sql, args...).Scan(&item.SNo, &item.ItemName, &item.NameOfDealer, &item.CostPrice, &item.SellingPrice,
		&item.Profit, &item.Loss, &item.GST, &item.StockBought, &item.StockSold, &item.StockRemaining, &item.DateOfPurchase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, pgError("query item", err)
	}
	return item, nil
}

func queryItems(ctx context.Context, q pgQuerier, sql string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: query items: %w", err)
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.SNo, &item.ItemName, &item.NameOfDealer, &item.CostPrice, &item.SellingPrice,
			&item.Profit, &item.Loss, &item.GST, &item.StockBought, &item.StockSold, &item.StockRemaining, &item.DateOfPurchase); err != nil {
			return nil, fmt.Errorf("stock: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stock: query items: %w", err)
	}
	return items, nil
}

// pgError maps integrity violations (SQLSTATE class 23) to ErrConstraintViolation.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.Message)
	}
	return fmt.Errorf("stock: %s: %w", op, err)
}
