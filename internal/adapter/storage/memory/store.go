package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// TransactionStore is the in-process authoritative session log. Records are
// kept forever (completed sessions stay queryable) in insertion order.
type TransactionStore struct {
	mu    sync.RWMutex
	byID  map[int64]*domain.Transaction
	order []int64
	maxID int64
	log   *zap.Logger
}

func NewTransactionStore(log *zap.Logger) *TransactionStore {
	return &TransactionStore{
		byID: make(map[int64]*domain.Transaction),
		log:  log,
	}
}

var _ ports.TransactionStore = (*TransactionStore)(nil)

func (s *TransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[tx.ID]; exists {
		return domain.ErrDuplicateTransaction
	}

	rec := tx.Clone()
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.byID[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	if rec.ID > s.maxID {
		s.maxID = rec.ID
	}
	return nil
}

func (s *TransactionStore) MaxID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxID, nil
}

func (s *TransactionStore) Complete(ctx context.Context, id int64, meterStop int64, stopTime time.Time, stopIdTag string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byID[id]
	if !exists {
		return nil, domain.ErrUnknownTransaction
	}
	if rec.Status() == domain.TransactionStatusCompleted {
		return nil, domain.ErrAlreadyStopped
	}
	if meterStop < rec.MeterStart {
		return nil, domain.ErrInvalidMeterReading
	}
	if stopTime.Before(rec.StartTime) {
		return nil, domain.ErrInvalidTimestamp
	}

	rec.MeterStop = &meterStop
	rec.StopTime = &stopTime
	rec.StopIdTag = stopIdTag
	rec.UpdatedAt = time.Now().UTC()

	return rec.Clone(), nil
}

func (s *TransactionStore) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byID[id]
	if !exists {
		return nil, domain.ErrUnknownTransaction
	}
	return rec.Clone(), nil
}

// List walks the insertion order under the read lock and returns deep
// copies, so the result is a consistent snapshot no later mutation touches.
func (s *TransactionStore) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.order))
	for _, id := range s.order {
		rec := s.byID[id]
		if filter.ConnectorID != nil && rec.ConnectorID != *filter.ConnectorID {
			continue
		}
		if filter.Status != "" && rec.Status() != filter.Status {
			continue
		}
		result = append(result, *rec.Clone())
	}
	return result, nil
}
