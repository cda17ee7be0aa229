package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/model"
)

// SQLiteStore implements Store on an embedded single-file database.
// Monetary values are stored as TEXT and parsed back into decimals.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leaps (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	strike TEXT NOT NULL,
	expiration TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT '',
	adjusted_cost_basis TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS short_calls (
	id TEXT PRIMARY KEY,
	leaps_id TEXT NOT NULL REFERENCES leaps(id),
	symbol TEXT NOT NULL,
	strike TEXT NOT NULL,
	expiration TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP,
	exit_price TEXT,
	profit TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	short_call_id TEXT NOT NULL REFERENCES short_calls(id),
	alert_type TEXT NOT NULL,
	message TEXT NOT NULL,
	triggered_at TIMESTAMP NOT NULL,
	acknowledged INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cost_basis_history (
	id TEXT PRIMARY KEY,
	leaps_id TEXT NOT NULL REFERENCES leaps(id),
	short_call_id TEXT NOT NULL REFERENCES short_calls(id),
	adjustment_amount TEXT NOT NULL,
	adjusted_cost TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the database file at path and
// initializes the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under concurrency.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateLeaps(ctx context.Context, p *model.LeapsPosition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaps (id, symbol, strike, expiration, entry_price, quantity,
		                    created_at, closed_at, status, notes, adjusted_cost_basis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, p.Strike.String(), p.Expiration, p.EntryPrice.String(),
		p.Quantity, p.CreatedAt, p.ClosedAt, p.Status, p.Notes,
		p.AdjustedCostBasis.String(),
	)
	return err
}

func (s *SQLiteStore) GetLeaps(ctx context.Context, id string) (*model.LeapsPosition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, strike, expiration, entry_price, quantity,
		        created_at, closed_at, status, notes, adjusted_cost_basis
		 FROM leaps WHERE id = ?`, id)
	return scanLeapsRow(row)
}

func (s *SQLiteStore) ListActiveLeaps(ctx context.Context) ([]model.LeapsPosition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, strike, expiration, entry_price, quantity,
		        created_at, closed_at, status, notes, adjusted_cost_basis
		 FROM leaps WHERE status = 'active' ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LeapsPosition
	for rows.Next() {
		p, err := scanLeapsRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CloseLeaps(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leaps SET status = 'closed', closed_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) CreateShortCall(ctx context.Context, sc *model.ShortCall) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO short_calls (id, leaps_id, symbol, strike, expiration, entry_price,
		                          quantity, created_at, closed_at, exit_price, profit, status, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.LeapsID, sc.Symbol, sc.Strike.String(), sc.Expiration,
		sc.EntryPrice.String(), sc.Quantity, sc.CreatedAt, sc.ClosedAt,
		decimalPtr(sc.ExitPrice), decimalPtr(sc.Profit), sc.Status, sc.Notes,
	)
	return err
}

func (s *SQLiteStore) GetShortCall(ctx context.Context, id string) (*model.ShortCall, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, leaps_id, symbol, strike, expiration, entry_price, quantity,
		        created_at, closed_at, exit_price, profit, status, notes
		 FROM short_calls WHERE id = ?`, id)
	return scanShortCallRow(row)
}

func (s *SQLiteStore) ListActiveShortCalls(ctx context.Context) ([]model.ShortCall, error) {
	return s.listShortCalls(ctx,
		`SELECT id, leaps_id, symbol, strike, expiration, entry_price, quantity,
		        created_at, closed_at, exit_price, profit, status, notes
		 FROM short_calls WHERE status = 'active' ORDER BY created_at, id`)
}

func (s *SQLiteStore) ListActiveShortCallsByLeaps(ctx context.Context, leapsID string) ([]model.ShortCall, error) {
	return s.listShortCalls(ctx,
		`SELECT id, leaps_id, symbol, strike, expiration, entry_price, quantity,
		        created_at, closed_at, exit_price, profit, status, notes
		 FROM short_calls WHERE status = 'active' AND leaps_id = ? ORDER BY created_at, id`, leapsID)
}

func (s *SQLiteStore) listShortCalls(ctx context.Context, query string, args ...any) ([]model.ShortCall, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ShortCall
	for rows.Next() {
		sc, err := scanShortCallRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ApplyShortCallClose(ctx context.Context, sc *model.ShortCall, entry *model.CostBasisEntry, newBasis decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE short_calls
		 SET status = ?, closed_at = ?, exit_price = ?, profit = ?
		 WHERE id = ? AND status = 'active'`,
		sc.Status, sc.ClosedAt, decimalPtr(sc.ExitPrice), decimalPtr(sc.Profit), sc.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cost_basis_history (id, leaps_id, short_call_id, adjustment_amount, adjusted_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.LeapsID, entry.ShortCallID,
		entry.Adjustment.String(), entry.AdjustedCost.String(), entry.CreatedAt); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE leaps SET adjusted_cost_basis = ? WHERE id = ?`,
		newBasis.String(), sc.LeapsID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, short_call_id, alert_type, message, triggered_at, acknowledged)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ShortCallID, string(a.Type), a.Message, a.TriggeredAt, a.Acknowledged)
	return err
}

func (s *SQLiteStore) LatestAlert(ctx context.Context, shortCallID string, t model.AlertType) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, short_call_id, alert_type, message, triggered_at, acknowledged
		 FROM alerts WHERE short_call_id = ? AND alert_type = ?
		 ORDER BY triggered_at DESC LIMIT 1`, shortCallID, string(t))
	return scanAlertRow(row)
}

func (s *SQLiteStore) ListUnacknowledgedAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, short_call_id, alert_type, message, triggered_at, acknowledged
		 FROM alerts WHERE acknowledged = 0 ORDER BY triggered_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListCostBasisHistory(ctx context.Context, leapsID string) ([]model.CostBasisEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, leaps_id, short_call_id, adjustment_amount, adjusted_cost, created_at
		 FROM cost_basis_history WHERE leaps_id = ? ORDER BY created_at, id`, leapsID)
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

// --- scan helpers shared with no other backend; sqlite stores decimals as
// TEXT and booleans as INTEGER ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeapsRow(row rowScanner) (*model.LeapsPosition, error) {
	var p model.LeapsPosition
	var strike, entry, basis string
	var closedAt sql.NullTime

	err := row.Scan(&p.ID, &p.Symbol, &strike, &p.Expiration, &entry,
		&p.Quantity, &p.CreatedAt, &closedAt, &p.Status, &p.Notes, &basis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Strike, _ = decimal.NewFromString(strike)
	p.EntryPrice, _ = decimal.NewFromString(entry)
	p.AdjustedCostBasis, _ = decimal.NewFromString(basis)
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return &p, nil
}

func scanShortCallRow(row rowScanner) (*model.ShortCall, error) {
	var sc model.ShortCall
	var strike, entry string
	var closedAt sql.NullTime
	var exitPrice, profit sql.NullString

	err := row.Scan(&sc.ID, &sc.LeapsID, &sc.Symbol, &strike, &sc.Expiration,
		&entry, &sc.Quantity, &sc.CreatedAt, &closedAt, &exitPrice, &profit,
		&sc.Status, &sc.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sc.Strike, _ = decimal.NewFromString(strike)
	sc.EntryPrice, _ = decimal.NewFromString(entry)
	if closedAt.Valid {
		t := closedAt.Time
		sc.ClosedAt = &t
	}
	if exitPrice.Valid {
		d, _ := decimal.NewFromString(exitPrice.String)
		sc.ExitPrice = &d
	}
	if profit.Valid {
		d, _ := decimal.NewFromString(profit.String)
		sc.Profit = &d
	}
	return &sc, nil
}

func scanAlertRow(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var alertType string

	err := row.Scan(&a.ID, &a.ShortCallID, &alertType, &a.Message,
		&a.TriggeredAt, &a.Acknowledged)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Type = model.AlertType(alertType)
	return &a, nil
}

func decimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
