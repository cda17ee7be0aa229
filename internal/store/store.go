// Package store defines the persistence interface for the position engine.
// Implementations include PostgreSQL (networked), SQLite (embedded
// single-file), and in-memory (for testing). Selection happens once at
// process start: a connection string picks Postgres, a local path picks
// SQLite.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/model"
)

// ErrNotFound is returned by lookups when no record matches. Callers map
// it into the engine error taxonomy.
var ErrNotFound = errors.New("store: not found")

// Store is the durable record repository. The four tables mirror the
// domain model exactly; no business logic lives here.
type Store interface {
	// --- LEAPS positions ---

	// CreateLeaps persists a new LEAPS position.
	CreateLeaps(ctx context.Context, p *model.LeapsPosition) error

	// GetLeaps retrieves a LEAPS position by ID.
	GetLeaps(ctx context.Context, id string) (*model.LeapsPosition, error)

	// ListActiveLeaps returns active LEAPS positions in insertion order.
	ListActiveLeaps(ctx context.Context) ([]model.LeapsPosition, error)

	// CloseLeaps marks a LEAPS position closed.
	CloseLeaps(ctx context.Context, id string) error

	// --- Short calls ---

	// CreateShortCall persists a new short call.
	CreateShortCall(ctx context.Context, sc *model.ShortCall) error

	// GetShortCall retrieves a short call by ID.
	GetShortCall(ctx context.Context, id string) (*model.ShortCall, error)

	// ListActiveShortCalls returns all active short calls in insertion order.
	ListActiveShortCalls(ctx context.Context) ([]model.ShortCall, error)

	// ListActiveShortCallsByLeaps returns the active short calls under one
	// LEAPS position in insertion order.
	ListActiveShortCallsByLeaps(ctx context.Context, leapsID string) ([]model.ShortCall, error)

	// ApplyShortCallClose commits a short-call close atomically: the short
	// call's terminal fields, the appended cost-basis entry, and the
	// parent's new adjusted cost basis either all commit or none do.
	ApplyShortCallClose(ctx context.Context, sc *model.ShortCall, entry *model.CostBasisEntry, newBasis decimal.Decimal) error

	// --- Alerts ---

	// CreateAlert persists a new alert.
	CreateAlert(ctx context.Context, a *model.Alert) error

	// LatestAlert returns the most recent alert for a (short call, type)
	// pair, or ErrNotFound when none exists. Drives deduplication; the
	// alerts table is the only source of dedup truth.
	LatestAlert(ctx context.Context, shortCallID string, t model.AlertType) (*model.Alert, error)

	// ListUnacknowledgedAlerts returns unacknowledged alerts, newest first.
	ListUnacknowledgedAlerts(ctx context.Context) ([]model.Alert, error)

	// AcknowledgeAlert sets the acknowledged flag, the only mutable alert
	// field.
	AcknowledgeAlert(ctx context.Context, id string) error

	// --- Cost basis history ---

	// ListCostBasisHistory returns the append-only basis audit trail for a
	// LEAPS position, oldest first.
	ListCostBasisHistory(ctx context.Context, leapsID string) ([]model.CostBasisEntry, error)
}
