package ports

import (
	"context"
	"time"

	"github.com/seu-repo/sigec-cms/internal/domain"
)

// StartRequest is the validated shape of a start intent. Transports must
// deserialize into this before calling the engine; the engine re-checks the
// field constraints and never touches wire bytes.
type StartRequest struct {
	ConnectorID int
	IdTag       string
	MeterStart  int64
	Timestamp   time.Time
}

// StopRequest is the validated shape of a stop intent. IdTag is optional and
// recorded for audit only; transaction identity is authoritative.
type StopRequest struct {
	TransactionID int64
	MeterStop     int64
	Timestamp     time.Time
	IdTag         string
}

// SessionService is the transaction lifecycle engine: the only component
// allowed to mutate both the connector registry and the transaction store
// for a single logical request. Every failure is one of the domain errors;
// operations never panic a caller's worker.
type SessionService interface {
	Start(ctx context.Context, req StartRequest) (*domain.Transaction, error)
	Stop(ctx context.Context, req StopRequest) (*domain.Transaction, error)
	Get(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	Connectors(ctx context.Context) []domain.Connector
}
