package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS leaps (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	strike NUMERIC NOT NULL,
	expiration TEXT NOT NULL,
	entry_price NUMERIC NOT NULL,
	quantity BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT '',
	adjusted_cost_basis NUMERIC NOT NULL
);

CREATE TABLE IF NOT EXISTS short_calls (
	id TEXT PRIMARY KEY,
	leaps_id TEXT NOT NULL REFERENCES leaps(id),
	symbol TEXT NOT NULL,
	strike NUMERIC NOT NULL,
	expiration TEXT NOT NULL,
	entry_price NUMERIC NOT NULL,
	quantity BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	closed_at TIMESTAMPTZ,
	exit_price NUMERIC,
	profit NUMERIC,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	short_call_id TEXT NOT NULL REFERENCES short_calls(id),
	alert_type TEXT NOT NULL,
	message TEXT NOT NULL,
	triggered_at TIMESTAMPTZ NOT NULL,
	acknowledged BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS cost_basis_history (
	id TEXT PRIMARY KEY,
	leaps_id TEXT NOT NULL REFERENCES leaps(id),
	short_call_id TEXT NOT NULL REFERENCES short_calls(id),
	adjustment_amount NUMERIC NOT NULL,
	adjusted_cost NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore creates a PostgreSQL-backed store and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateLeaps(ctx context.Context, p *model.LeapsPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leaps (id, symbol, strike, expiration, entry_price, quantity,
		                    created_at, closed_at, status, notes, adjusted_cost_basis)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11::NUMERIC)`,
		p.ID, p.Symbol, p.Strike.String(), p.Expiration, p.EntryPrice.String(),
		p.Quantity, p.CreatedAt, p.ClosedAt, p.Status, p.Notes,
		p.AdjustedCostBasis.String(),
	)
	return err
}

func (s *PostgresStore) GetLeaps(ctx context.Context, id string) (*model.LeapsPosition, error) {
	rows, err := s.pool.Query(ctx, leapsSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return one(scanLeapsPG(rows))
}

func (s *PostgresStore) ListActiveLeaps(ctx context.Context) ([]model.LeapsPosition, error) {
	rows, err := s.pool.Query(ctx, leapsSelect+` WHERE status = 'active' ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeapsPG(rows)
}

func (s *PostgresStore) CloseLeaps(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leaps SET status = 'closed', closed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateShortCall(ctx context.Context, sc *model.ShortCall) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO short_calls (id, leaps_id, symbol, strike, expiration, entry_price,
		                          quantity, created_at, closed_at, exit_price, profit, status, notes)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7, $8, $9, $10::NUMERIC, $11::NUMERIC, $12, $13)`,
		sc.ID, sc.LeapsID, sc.Symbol, sc.Strike.String(), sc.Expiration,
		sc.EntryPrice.String(), sc.Quantity, sc.CreatedAt, sc.ClosedAt,
		decimalPtr(sc.ExitPrice), decimalPtr(sc.Profit), sc.Status, sc.Notes,
	)
	return err
}

func (s *PostgresStore) GetShortCall(ctx context.Context, id string) (*model.ShortCall, error) {
	rows, err := s.pool.Query(ctx, shortCallSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return one(scanShortCallsPG(rows))
}

func (s *PostgresStore) ListActiveShortCalls(ctx context.Context) ([]model.ShortCall, error) {
	rows, err := s.pool.Query(ctx,
		shortCallSelect+` WHERE status = 'active' ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanShortCallsPG(rows)
}

func (s *PostgresStore) ListActiveShortCallsByLeaps(ctx context.Context, leapsID string) ([]model.ShortCall, error) {
	rows, err := s.pool.Query(ctx,
		shortCallSelect+` WHERE status = 'active' AND leaps_id = $1 ORDER BY created_at, id`, leapsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanShortCallsPG(rows)
}

func (s *PostgresStore) ApplyShortCallClose(ctx context.Context, sc *model.ShortCall, entry *model.CostBasisEntry, newBasis decimal.Decimal) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE short_calls
			 SET status = $2, closed_at = $3, exit_price = $4::NUMERIC, profit = $5::NUMERIC
			 WHERE id = $1 AND status = 'active'`,
			sc.ID, sc.Status, sc.ClosedAt, decimalPtr(sc.ExitPrice), decimalPtr(sc.Profit))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO cost_basis_history (id, leaps_id, short_call_id, adjustment_amount, adjusted_cost, created_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)`,
			entry.ID, entry.LeapsID, entry.ShortCallID,
			entry.Adjustment.String(), entry.AdjustedCost.String(), entry.CreatedAt); err != nil {
			return err
		}

		tag, err = tx.Exec(ctx,
			`UPDATE leaps SET adjusted_cost_basis = $2::NUMERIC WHERE id = $1`,
			sc.LeapsID, newBasis.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, short_call_id, alert_type, message, triggered_at, acknowledged)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.ShortCallID, string(a.Type), a.Message, a.TriggeredAt, a.Acknowledged)
	return err
}

func (s *PostgresStore) LatestAlert(ctx context.Context, shortCallID string, t model.AlertType) (*model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, short_call_id, alert_type, message, triggered_at, acknowledged
		 FROM alerts WHERE short_call_id = $1 AND alert_type = $2
		 ORDER BY triggered_at DESC LIMIT 1`, shortCallID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return one(scanAlertsPG(rows))
}

func (s *PostgresStore) ListUnacknowledgedAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, short_call_id, alert_type, message, triggered_at, acknowledged
		 FROM alerts WHERE NOT acknowledged ORDER BY triggered_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlertsPG(rows)
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListCostBasisHistory(ctx context.Context, leapsID string) ([]model.CostBasisEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, leaps_id, short_call_id, adjustment_amount::TEXT, adjusted_cost::TEXT, created_at
		 FROM cost_basis_history WHERE leaps_id = $1 ORDER BY created_at, id`, leapsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CostBasisEntry
	for rows.Next() {
		var e model.CostBasisEntry
		var adj, cost string
		if err := rows.Scan(&e.ID, &e.LeapsID, &e.ShortCallID, &adj, &cost, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Adjustment, _ = decimal.NewFromString(adj)
		e.AdjustedCost, _ = decimal.NewFromString(cost)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- pgx scan helpers: NUMERIC columns come back as TEXT and are parsed
// into decimals ---

const leapsSelect = `SELECT id, symbol, strike::TEXT, expiration, entry_price::TEXT, quantity,
	created_at, closed_at, status, notes, adjusted_cost_basis::TEXT FROM leaps`

const shortCallSelect = `SELECT id, leaps_id, symbol, strike::TEXT, expiration, entry_price::TEXT,
	quantity, created_at, closed_at, exit_price::TEXT, profit::TEXT, status, notes FROM short_calls`

func scanLeapsPG(rows pgx.Rows) ([]model.LeapsPosition, error) {
	var out []model.LeapsPosition
	for rows.Next() {
		var p model.LeapsPosition
		var strike, entry, basis string
		if err := rows.Scan(&p.ID, &p.Symbol, &strike, &p.Expiration, &entry,
			&p.Quantity, &p.CreatedAt, &p.ClosedAt, &p.Status, &p.Notes, &basis); err != nil {
			return nil, err
		}
		p.Strike, _ = decimal.NewFromString(strike)
		p.EntryPrice, _ = decimal.NewFromString(entry)
		p.AdjustedCostBasis, _ = decimal.NewFromString(basis)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanShortCallsPG(rows pgx.Rows) ([]model.ShortCall, error) {
	var out []model.ShortCall
	for rows.Next() {
		var sc model.ShortCall
		var strike, entry string
		var exitPrice, profit *string
		if err := rows.Scan(&sc.ID, &sc.LeapsID, &sc.Symbol, &strike, &sc.Expiration,
			&entry, &sc.Quantity, &sc.CreatedAt, &sc.ClosedAt, &exitPrice, &profit,
			&sc.Status, &sc.Notes); err != nil {
			return nil, err
		}
		sc.Strike, _ = decimal.NewFromString(strike)
		sc.EntryPrice, _ = decimal.NewFromString(entry)
		if exitPrice != nil {
			d, _ := decimal.NewFromString(*exitPrice)
			sc.ExitPrice = &d
		}
		if profit != nil {
			d, _ := decimal.NewFromString(*profit)
			sc.Profit = &d
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanAlertsPG(rows pgx.Rows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var alertType string
		if err := rows.Scan(&a.ID, &a.ShortCallID, &alertType, &a.Message,
			&a.TriggeredAt, &a.Acknowledged); err != nil {
			return nil, err
		}
		a.Type = model.AlertType(alertType)
		out = append(out, a)
	}
	return out, rows.Err()
}

// one narrows a slice scan to a single-row lookup.
func one[T any](items []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}
