package session

import (
	"context"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// Reads go straight to the store, outside the connector critical sections.
// The store hands out copies, so a query observes a transaction either
// before or after a lifecycle operation, never mid-mutation.

func (s *Service) Get(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	return s.store.FindByID(ctx, transactionID)
}

func (s *Service) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	return s.store.List(ctx, filter)
}

// Connectors reports the registry's view of the fleet: every connector seen
// so far and the transaction currently occupying it.
func (s *Service) Connectors(ctx context.Context) []domain.Connector {
	return s.registry.Snapshot()
}
