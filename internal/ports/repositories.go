package ports

import (
	"context"
	"time"

	"github.com/seu-repo/sigec-cms/internal/domain"
)

// TransactionFilter narrows List results. Zero value means no filtering.
type TransactionFilter struct {
	ConnectorID *int
	Status      domain.TransactionStatus // empty = all
}

// TransactionStore is the authoritative mapping from transaction id to
// record. Implementations must return the domain error taxonomy and hand out
// copies: callers never see a pointer into live store state.
type TransactionStore interface {
	// Create inserts a new active transaction. Fails with
	// domain.ErrDuplicateTransaction if the id is already present.
	Create(ctx context.Context, tx *domain.Transaction) error

	// Complete writes the stop-side fields exactly once. Fails with
	// domain.ErrUnknownTransaction, domain.ErrAlreadyStopped,
	// domain.ErrInvalidMeterReading or domain.ErrInvalidTimestamp.
	Complete(ctx context.Context, id int64, meterStop int64, stopTime time.Time, stopIdTag string) (*domain.Transaction, error)

	// FindByID returns the record or domain.ErrUnknownTransaction.
	FindByID(ctx context.Context, id int64) (*domain.Transaction, error)

	// List returns a point-in-time snapshot in insertion order.
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)

	// MaxID returns the highest transaction id ever persisted, or 0 for an
	// empty store. The allocator is seeded from it at startup, so a restart
	// never re-issues an id a previous run already handed out.
	MaxID(ctx context.Context) (int64, error)
}

// ConnectorRegistry is the derived per-connector busy index. It is only ever
// mutated by the lifecycle engine, inside the engine's per-connector
// critical section.
type ConnectorRegistry interface {
	// TryReserve marks txID active on the connector. On conflict it returns
	// the currently active transaction id and false, without mutating.
	TryReserve(connectorID int, txID int64) (active int64, ok bool)

	// Release clears the marker only if it currently equals txID. A false
	// return means the registry disagreed with the caller about which
	// transaction owns the connector.
	Release(connectorID int, txID int64) bool

	// Active returns the transaction currently active on the connector.
	Active(connectorID int) (int64, bool)

	// Known reports whether the connector has ever been referenced or was
	// seeded at construction.
	Known(connectorID int) bool

	// Snapshot returns every known connector and the transaction occupying
	// it, if any, ordered by connector id.
	Snapshot() []domain.Connector
}

// Cache is the shared key/value cache used by the transports (idTag deny
// list, short-lived lookups). Backed by Redis in production, by the local
// in-memory adapter otherwise.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
