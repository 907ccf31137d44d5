package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/verdantx/carbon-exchange/internal/domain"
	"github.com/verdantx/carbon-exchange/internal/port"
)

var _ port.Repository = (*Repo)(nil)

// Repo is the Postgres order/trade store. Orders and trades are NUMERIC
// columns; no rounding is applied on the way in or out, values keep the
// precision they were submitted with.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo creates the pool. Call Close when done.
func NewRepo(ctx context.Context, dsn string) (*Repo, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func NewRepoWithPool(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id          UUID PRIMARY KEY,
	account     TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	quantity    NUMERIC NOT NULL,
	filled      NUMERIC NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_matching
	ON orders (symbol, side, status, price, created_at);

CREATE TABLE IF NOT EXISTS trades (
	id          UUID PRIMARY KEY,
	account     TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	price       NUMERIC NOT NULL,
	quantity    NUMERIC NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades (symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_account ON trades (account, symbol);
`

// Migrate creates the schema when it does not exist yet.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: migrate: %w", err)
	}
	return nil
}

const saveOrderQuery = `
INSERT INTO orders (id, account, symbol, side, kind, price, quantity, filled, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	price      = EXCLUDED.price,
	quantity   = EXCLUDED.quantity,
	filled     = EXCLUDED.filled,
	status     = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`

func (r *Repo) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := r.pool.Exec(ctx, saveOrderQuery,
		o.ID, o.Account, o.Symbol, string(o.Side), string(o.Kind),
		o.Price, o.Quantity, o.Filled, string(o.Status), o.CreatedAt, o.UpdatedAt)
	return err
}

const loadOrderQuery = `
SELECT id, account, symbol, side, kind, price, quantity, filled, status, created_at, updated_at
FROM orders WHERE id = $1`

func (r *Repo) LoadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := r.pool.QueryRow(ctx, loadOrderQuery, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

const candidatesBaseQuery = `
SELECT id, account, symbol, side, kind, price, quantity, filled, status, created_at, updated_at
FROM orders
WHERE symbol = $1 AND side = $2 AND status IN ('open','partial')`

func (r *Repo) LoadCandidates(ctx context.Context, symbol string, side domain.Side, limitPrice *decimal.Decimal) ([]*domain.Order, error) {
	query := candidatesBaseQuery
	args := []any{symbol, string(side)}

	if limitPrice != nil {
		if side == domain.Sell {
			query += " AND price <= $3"
		} else {
			query += " AND price >= $3"
		}
		args = append(args, *limitPrice)
	}
	// best price for the incoming side first, FIFO at equal price
	if side == domain.Sell {
		query += " ORDER BY price ASC, created_at ASC"
	} else {
		query += " ORDER BY price DESC, created_at ASC"
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

const applyFillQuery = `
UPDATE orders
SET filled = $2, status = $3, updated_at = $4
WHERE id = $1 AND filled = $5 AND filled <= quantity AND $2 <= quantity`

const insertTradeQuery = `
INSERT INTO trades (id, account, symbol, side, price, quantity, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`

// ExecuteFill applies one settlement step in a single transaction: the
// conditional fill update followed by the trade pair. A zero-row update
// means the fill state moved under us; nothing is written.
func (r *Repo) ExecuteFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus, trades []*domain.Trade) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, applyFillQuery, orderID, newFilled, string(status), time.Now().UTC(), expectedFilled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFillConflict
	}

	for _, t := range trades {
		if _, err := tx.Exec(ctx, insertTradeQuery,
			t.ID, t.Account, t.Symbol, string(t.Side), t.Price, t.Quantity, t.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ApplyFill(ctx context.Context, orderID string, expectedFilled, newFilled decimal.Decimal, status domain.OrderStatus) error {
	tag, err := r.pool.Exec(ctx, applyFillQuery, orderID, newFilled, string(status), time.Now().UTC(), expectedFilled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFillConflict
	}
	return nil
}

const cancelOrderQuery = `
UPDATE orders
SET status = 'cancelled', updated_at = $3
WHERE id = $1 AND account = $2 AND status IN ('open','partial')`

func (r *Repo) CancelOrder(ctx context.Context, orderID, account string) error {
	tag, err := r.pool.Exec(ctx, cancelOrderQuery, orderID, account, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 AND account = $2`, orderID, account).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrNotCancelable
}

const openLevelsQuery = `
SELECT price, SUM(quantity - filled) AS open_qty
FROM orders
WHERE symbol = $1 AND side = $2 AND status IN ('open','partial') AND quantity > filled
GROUP BY price
ORDER BY price %s`

func (r *Repo) LoadOpenLevels(ctx context.Context, symbol string) ([]domain.BookLevel, []domain.BookLevel, error) {
	bids, err := r.loadLevels(ctx, symbol, domain.Buy, "DESC")
	if err != nil {
		return nil, nil, err
	}
	asks, err := r.loadLevels(ctx, symbol, domain.Sell, "ASC")
	if err != nil {
		return nil, nil, err
	}
	return bids, asks, nil
}

func (r *Repo) loadLevels(ctx context.Context, symbol string, side domain.Side, dir string) ([]domain.BookLevel, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(openLevelsQuery, dir), symbol, string(side))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []domain.BookLevel
	for rows.Next() {
		var l domain.BookLevel
		if err := rows.Scan(&l.Price, &l.Quantity); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

const recentTradesQuery = `
SELECT id, account, symbol, side, price, quantity, created_at
FROM trades
WHERE symbol = $1
ORDER BY created_at DESC
LIMIT $2`

func (r *Repo) LoadRecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	rows, err := r.pool.Query(ctx, recentTradesQuery, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Account, &t.Symbol, &side, &t.Price, &t.Quantity, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		res = append(res, &t)
	}
	return res, rows.Err()
}

// candlesQuery buckets the trade ledger by interval. First/last price per
// bucket come from ordered array aggregates, the rest are plain aggregates.
const candlesQuery = `
SELECT
	to_timestamp(floor(extract(epoch FROM created_at) / $2) * $2) AS bucket,
	(array_agg(price ORDER BY created_at ASC))[1]  AS open,
	MAX(price)                                     AS high,
	MIN(price)                                     AS low,
	(array_agg(price ORDER BY created_at DESC))[1] AS close,
	SUM(quantity)                                  AS volume
FROM trades
WHERE symbol = $1
GROUP BY bucket
ORDER BY bucket DESC
LIMIT $3`

func (r *Repo) LoadCandles(ctx context.Context, symbol string, interval time.Duration, limit int) ([]domain.Candle, error) {
	rows, err := r.pool.Query(ctx, candlesQuery, symbol, int64(interval.Seconds()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		c := domain.Candle{Symbol: symbol}
		if err := rows.Scan(&c.Bucket, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// the query returns newest buckets first; callers want ascending
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

const accountBalanceQuery = `
SELECT COALESCE(SUM(CASE WHEN side = 'buy' THEN quantity ELSE -quantity END), 0)
FROM trades
WHERE account = $1 AND symbol = $2`

func (r *Repo) AccountBalance(ctx context.Context, account, symbol string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := r.pool.QueryRow(ctx, accountBalanceQuery, account, symbol).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

const accountBalancesQuery = `
SELECT symbol, SUM(CASE WHEN side = 'buy' THEN quantity ELSE -quantity END) AS balance
FROM trades
WHERE account = $1
GROUP BY symbol
HAVING SUM(CASE WHEN side = 'buy' THEN quantity ELSE -quantity END) <> 0`

func (r *Repo) AccountBalances(ctx context.Context, account string) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, accountBalancesQuery, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol string
		var balance decimal.Decimal
		if err := rows.Scan(&symbol, &balance); err != nil {
			return nil, err
		}
		balances[symbol] = balance
	}
	return balances, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var side, kind, status string
	if err := row.Scan(&o.ID, &o.Account, &o.Symbol, &side, &kind,
		&o.Price, &o.Quantity, &o.Filled, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
