package mocks

import (
	"context"
	"time"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// MockTransactionStore is a mock implementation of TransactionStore
type MockTransactionStore struct {
	CreateFunc   func(ctx context.Context, tx *domain.Transaction) error
	CompleteFunc func(ctx context.Context, id int64, meterStop int64, stopTime time.Time, stopIdTag string) (*domain.Transaction, error)
	FindByIDFunc func(ctx context.Context, id int64) (*domain.Transaction, error)
	ListFunc     func(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error)
	MaxIDFunc    func(ctx context.Context) (int64, error)
}

func (m *MockTransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionStore) Complete(ctx context.Context, id int64, meterStop int64, stopTime time.Time, stopIdTag string) (*domain.Transaction, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, id, meterStop, stopTime, stopIdTag)
	}
	return nil, nil
}

func (m *MockTransactionStore) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTransactionStore) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockTransactionStore) MaxID(ctx context.Context) (int64, error) {
	if m.MaxIDFunc != nil {
		return m.MaxIDFunc(ctx)
	}
	return 0, nil
}

// MockConnectorRegistry is a mock implementation of ConnectorRegistry
type MockConnectorRegistry struct {
	TryReserveFunc func(connectorID int, txID int64) (int64, bool)
	ReleaseFunc    func(connectorID int, txID int64) bool
	ActiveFunc     func(connectorID int) (int64, bool)
	KnownFunc      func(connectorID int) bool
	SnapshotFunc   func() []domain.Connector
}

func (m *MockConnectorRegistry) TryReserve(connectorID int, txID int64) (int64, bool) {
	if m.TryReserveFunc != nil {
		return m.TryReserveFunc(connectorID, txID)
	}
	return txID, true
}

func (m *MockConnectorRegistry) Release(connectorID int, txID int64) bool {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(connectorID, txID)
	}
	return true
}

func (m *MockConnectorRegistry) Active(connectorID int) (int64, bool) {
	if m.ActiveFunc != nil {
		return m.ActiveFunc(connectorID)
	}
	return 0, false
}

func (m *MockConnectorRegistry) Known(connectorID int) bool {
	if m.KnownFunc != nil {
		return m.KnownFunc(connectorID)
	}
	return true
}

func (m *MockConnectorRegistry) Snapshot() []domain.Connector {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc()
	}
	return nil
}
