package stock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockbill/internal/platform/db"
)

// MySQL error numbers treated as integrity violations.
const (
	mysqlErrDupEntry    = 1062
	mysqlErrBadNull     = 1048
	mysqlErrCheckFailed = 3819
)

// Named locks are per server and capped at 64 characters.
const (
	mysqlLockPrefix      = "stock:"
	mysqlLockMaxLen      = 64
	mysqlLockWaitSeconds = 10
)

// MySQLRepository persists items in MySQL, one table per dataset.
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository constructs MySQLRepository.
func NewMySQLRepository(handle *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: handle}
}

var (
	_ RepositoryPort = (*MySQLRepository)(nil)
	_ TxRepository   = (*mysqlTxRepository)(nil)
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type mysqlTxRepository struct {
	tx    *sql.Tx
	locks []string
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mysqlTable quotes an already validated dataset name.
func mysqlTable(ds Dataset) string {
	return "`" + ds.Name() + "`"
}

// EnsureDataset creates the dataset table when it does not exist.
func (r *MySQLRepository) EnsureDataset(ctx context.Context, ds Dataset) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sno BIGINT PRIMARY KEY,
	item_name VARCHAR(20) NOT NULL,
	name_of_dealer VARCHAR(20) NOT NULL,
	cost_price DOUBLE NOT NULL DEFAULT 0,
	selling_price DOUBLE NOT NULL DEFAULT 0,
	profit DOUBLE NOT NULL DEFAULT 0,
	loss DOUBLE NOT NULL DEFAULT 0,
	gst DOUBLE NOT NULL DEFAULT 0,
	stock_bought BIGINT NOT NULL DEFAULT 0,
	stock_sold BIGINT NOT NULL DEFAULT 0,
	stock_remaining BIGINT NOT NULL DEFAULT 0,
	date_of_purchase DATE NULL
) ENGINE=InnoDB`, mysqlTable(ds)))
	if err != nil {
		return fmt.Errorf("stock: ensure dataset %s: %w", ds, err)
	}
	return nil
}

// buildMySQLListQueries renders the count and page statements for a normalized query.
func buildMySQLListQueries(table string, q ListQuery) (string, string, []any) {
	var where string
	var args []any
	if q.Search != "" {
		pattern := likePattern(q.Search)
		where = ` WHERE (LOWER(item_name) LIKE ? OR LOWER(name_of_dealer) LIKE ?)`
		args = append(args, pattern, pattern)
	}
	countSQL := `SELECT COUNT(*) FROM ` + table + where

	order := q.sortColumn() + " " + q.sortDirection()
	if q.sortColumn() != "sno" {
		order += ", sno ASC"
	}
	listSQL := `SELECT ` + itemColumns + ` FROM ` + table + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	return countSQL, listSQL, args
}

// ListPage returns one page of matching items and the total match count.
func (r *MySQLRepository) ListPage(ctx context.Context, ds Dataset, query ListQuery) ([]Item, int, error) {
	if r == nil {
		return nil, 0, errors.New("stock repository not initialised")
	}
	q := query.Normalize()
	countSQL, listSQL, args := buildMySQLListQueries(mysqlTable(ds), q)
	listArgs := append(append([]any{}, args...), q.PageSize, q.Offset())

	var (
		total int
		items []Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.db.QueryRowContext(gctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("stock: count items: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = mysqlQueryItems(gctx, r.db, listSQL, listArgs...)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAll returns every item of the dataset ordered by SNo.
func (r *MySQLRepository) ListAll(ctx context.Context, ds Dataset) ([]Item, error) {
	return mysqlQueryItems(ctx, r.db, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` ORDER BY sno ASC`)
}

// GetBySno loads a single item.
func (r *MySQLRepository) GetBySno(ctx context.Context, ds Dataset, sno int64) (Item, error) {
	return mysqlQueryItem(ctx, r.db, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` WHERE sno=?`, sno)
}

// GetByName loads the first item with the given name.
func (r *MySQLRepository) GetByName(ctx context.Context, ds Dataset, name string) (Item, error) {
	return mysqlQueryItem(ctx, r.db, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` WHERE item_name=? LIMIT 1`, name)
}

// GetByNameAndDealer loads the first item with the given name and dealer.
func (r *MySQLRepository) GetByNameAndDealer(ctx context.Context, ds Dataset, name, dealer string) (Item, error) {
	return mysqlQueryItem(ctx, r.db, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` WHERE item_name=? AND name_of_dealer=? LIMIT 1`, name, dealer)
}

// Insert stores a new item; a duplicate SNo yields ErrConstraintViolation.
func (r *MySQLRepository) Insert(ctx context.Context, ds Dataset, item Item) error {
	return mysqlInsertItem(ctx, r.db, ds, item)
}

// Update overwrites every field except SNo. A missing row is not an error.
func (r *MySQLRepository) Update(ctx context.Context, ds Dataset, sno int64, item Item) error {
	_, err := r.db.ExecContext(ctx, `UPDATE `+mysqlTable(ds)+` SET item_name=?, name_of_dealer=?, cost_price=?, selling_price=?, profit=?, loss=?, gst=?, stock_bought=?, stock_sold=?, stock_remaining=?, date_of_purchase=? WHERE sno=?`,
		item.ItemName, item.NameOfDealer, item.CostPrice, item.SellingPrice, item.Profit, item.Loss, item.GST,
		item.StockBought, item.StockSold, item.StockRemaining, item.DateOfPurchase, sno)
	if err != nil {
		return mysqlError("update", err)
	}
	return nil
}

// Delete removes an item. A missing row is not an error.
func (r *MySQLRepository) Delete(ctx context.Context, ds Dataset, sno int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+mysqlTable(ds)+` WHERE sno=?`, sno); err != nil {
		return mysqlError("delete", err)
	}
	return nil
}

// NextSno returns one past the highest SNo, or 1 for an empty dataset.
func (r *MySQLRepository) NextSno(ctx context.Context, ds Dataset) (int64, error) {
	return mysqlNextSno(ctx, r.db, ds, "")
}

// WithTx executes the callback inside a transaction on a pinned connection.
// Named locks taken by LockDataset belong to that connection and are released
// once the transaction has ended.
func (r *MySQLRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("stock: acquire connection: %w", err)
	}
	defer conn.Close()

	txRepo := &mysqlTxRepository{}
	err = db.WithSQLTx(ctx, conn, nil, func(tx *sql.Tx) error {
		txRepo.tx = tx
		return fn(ctx, txRepo)
	})
	releaseLocks(context.WithoutCancel(ctx), conn, txRepo.locks)
	return err
}

// releaseLocks frees named locks; on failure the connection is discarded,
// which drops its locks on the server.
func releaseLocks(ctx context.Context, conn *sql.Conn, names []string) {
	for _, name := range names {
		if _, err := conn.ExecContext(ctx, `SELECT RELEASE_LOCK(?)`, name); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			return
		}
	}
}

// mysqlLockName derives the named lock guarding a dataset's sequence.
func mysqlLockName(ds Dataset) string {
	name := mysqlLockPrefix + ds.Name()
	if len(name) > mysqlLockMaxLen {
		name = name[:mysqlLockMaxLen]
	}
	return name
}

// LockDataset serialises sequence allocation for the dataset with a named
// lock, the counterpart of the PostgreSQL advisory lock.
func (t *mysqlTxRepository) LockDataset(ctx context.Context, ds Dataset) error {
	name := mysqlLockName(ds)
	var acquired sql.NullInt64
	if err := t.tx.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, mysqlLockWaitSeconds).Scan(&acquired); err != nil {
		return fmt.Errorf("stock: lock dataset %s: %w", ds, err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		return fmt.Errorf("stock: lock dataset %s: timed out after %ds", ds, mysqlLockWaitSeconds)
	}
	t.locks = append(t.locks, name)
	return nil
}

func (t *mysqlTxRepository) NextSno(ctx context.Context, ds Dataset) (int64, error) {
	return mysqlNextSno(ctx, t.tx, ds, " FOR UPDATE")
}

func (t *mysqlTxRepository) Insert(ctx context.Context, ds Dataset, item Item) error {
	return mysqlInsertItem(ctx, t.tx, ds, item)
}

func (t *mysqlTxRepository) GetBySnoForUpdate(ctx context.Context, ds Dataset, sno int64) (Item, error) {
	return mysqlQueryItem(ctx, t.tx, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` WHERE sno=? FOR UPDATE`, sno)
}

// ApplySale decrements remaining stock only while enough is left.
func (t *mysqlTxRepository) ApplySale(ctx context.Context, ds Dataset, sno, quantity int64) (Item, error) {
	res, err := t.tx.ExecContext(ctx, `UPDATE `+mysqlTable(ds)+` SET stock_sold = stock_sold + ?, stock_remaining = stock_remaining - ?
WHERE sno=? AND stock_remaining >= ?`, quantity, quantity, sno, quantity)
	if err != nil {
		return Item{}, mysqlError("apply sale", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Item{}, fmt.Errorf("stock: apply sale: %w", err)
	}
	if affected == 0 {
		return Item{}, ErrInsufficientStock
	}
	return mysqlQueryItem(ctx, t.tx, `SELECT `+itemColumns+` FROM `+mysqlTable(ds)+` WHERE sno=?`, sno)
}

func mysqlInsertItem(ctx context.Context, q sqlQuerier, ds Dataset, item Item) error {
	_, err := q.ExecContext(ctx, `INSERT INTO `+mysqlTable(ds)+` (`+itemColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		item.SNo, item.ItemName, item.NameOfDealer, item.CostPrice, item.SellingPrice, item.Profit, item.Loss, item.GST,
		item.StockBought, item.StockSold, item.StockRemaining, item.DateOfPurchase)
	if err != nil {
		return mysqlError("insert", err)
	}
	return nil
}

func mysqlNextSno(ctx context.Context, q sqlQuerier, ds Dataset, suffix string) (int64, error) {
	var next int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(sno), 0) + 1 FROM `+mysqlTable(ds)+suffix).Scan(&next); err != nil {
		return 0, fmt.Errorf("stock: next sno: %w", err)
	}
	return next, nil
}

func mysqlScanItem(row rowScanner) (Item, error) {
	var item Item
	var purchased sql.NullTime
	if err := row.Scan(&item.SNo, &item.ItemName, &item.NameOfDealer, &item.CostPrice, &item.SellingPrice,
		&item.Profit, &item.Loss, &item.GST, &item.StockBought, &item.StockSold, &item.StockRemaining, &purchased); err != nil {
		return Item{}, err
	}
	if purchased.Valid {
		d := purchased.Time
		item.DateOfPurchase = &d
	}
	return item, nil
}

func mysqlQueryItem(ctx context.Context, q sqlQuerier, query string, args ...any) (Item, error) {
	item, err := mysqlScanItem(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, mysqlError("query item", err)
	}
	return item, nil
}

func mysqlQueryItems(ctx context.Context, q sqlQuerier, query string, args ...any) ([]Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: query items: %w", err)
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := mysqlScanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("stock: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stock: query items: %w", err)
	}
	return items, nil
}

func mysqlError(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDupEntry, mysqlErrBadNull, mysqlErrCheckFailed:
			return fmt.Errorf("%w: %s", ErrConstraintViolation, myErr.Message)
		}
	}
	return fmt.Errorf("stock: %s: %w", op, err)
}
