package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/adapter/queue"
	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/observability/telemetry"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// Service is the transaction lifecycle engine. It owns the per-connector
// critical sections: the connector registry and the transaction store are
// only ever mutated from inside them, which is what keeps the two views
// consistent without a distributed lock.
type Service struct {
	store    ports.TransactionStore
	registry ports.ConnectorRegistry
	ids      *IDAllocator
	locks    *connectorLocks
	mq       queue.MessageQueue
	log      *zap.Logger
}

func NewService(store ports.TransactionStore, registry ports.ConnectorRegistry, ids *IDAllocator, mq queue.MessageQueue, log *zap.Logger) ports.SessionService {
	return &Service{
		store:    store,
		registry: registry,
		ids:      ids,
		locks:    newConnectorLocks(),
		mq:       mq,
		log:      log,
	}
}

func (s *Service) Start(ctx context.Context, req ports.StartRequest) (*domain.Transaction, error) {
	if req.ConnectorID < 1 {
		telemetry.SessionOperationsTotal.WithLabelValues("start", "invalid").Inc()
		return nil, fmt.Errorf("%w: connector id %d", domain.ErrInvalidRequest, req.ConnectorID)
	}
	if req.IdTag == "" {
		telemetry.SessionOperationsTotal.WithLabelValues("start", "invalid").Inc()
		return nil, fmt.Errorf("%w: empty idTag", domain.ErrInvalidRequest)
	}
	if req.MeterStart < 0 {
		telemetry.SessionOperationsTotal.WithLabelValues("start", "invalid").Inc()
		return nil, fmt.Errorf("%w: negative meterStart %d", domain.ErrInvalidRequest, req.MeterStart)
	}
	if req.Timestamp.IsZero() {
		telemetry.SessionOperationsTotal.WithLabelValues("start", "invalid").Inc()
		return nil, fmt.Errorf("%w: missing timestamp", domain.ErrInvalidRequest)
	}

	// Allocated before the critical section. A start that later fails
	// abandons its id; gaps in the sequence are expected.
	txID := s.ids.Next()

	lock := s.locks.get(req.ConnectorID)
	lock.Lock()
	defer lock.Unlock()

	// Once inside the critical section the operation runs to completion,
	// even if the caller's request context is cancelled mid-flight.
	ctx = context.WithoutCancel(ctx)

	if active, ok := s.registry.TryReserve(req.ConnectorID, txID); !ok {
		telemetry.SessionOperationsTotal.WithLabelValues("start", "conflict").Inc()
		s.log.Info("Start rejected, connector busy",
			zap.Int("connector_id", req.ConnectorID),
			zap.Int64("active_transaction_id", active),
		)
		return nil, &domain.ConnectorBusyError{ConnectorID: req.ConnectorID, ActiveTransactionID: active}
	}

	tx := &domain.Transaction{
		ID:          txID,
		ConnectorID: req.ConnectorID,
		IdTag:       req.IdTag,
		MeterStart:  req.MeterStart,
		StartTime:   req.Timestamp.UTC(),
	}

	if err := s.store.Create(ctx, tx); err != nil {
		// Roll the reservation back so the connector is not stuck busy
		// with a transaction that never existed.
		s.registry.Release(req.ConnectorID, txID)
		telemetry.SessionOperationsTotal.WithLabelValues("start", "error").Inc()
		s.log.Error("Failed to persist transaction",
			zap.Int64("transaction_id", txID),
			zap.Int("connector_id", req.ConnectorID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create transaction %d: %w", txID, err)
	}

	telemetry.ActiveChargingSessions.Inc()
	telemetry.SessionOperationsTotal.WithLabelValues("start", "success").Inc()
	s.log.Info("Transaction started",
		zap.Int64("transaction_id", txID),
		zap.Int("connector_id", req.ConnectorID),
		zap.String("id_tag", req.IdTag),
	)

	s.publish(queue.SubjectTransactionStarted, queue.TransactionEvent{
		TransactionID: tx.ID,
		ConnectorID:   tx.ConnectorID,
		IdTag:         tx.IdTag,
		MeterStart:    tx.MeterStart,
		StartTime:     tx.StartTime,
	})

	return tx, nil
}

func (s *Service) Stop(ctx context.Context, req ports.StopRequest) (*domain.Transaction, error) {
	if req.TransactionID < 1 {
		telemetry.SessionOperationsTotal.WithLabelValues("stop", "invalid").Inc()
		return nil, fmt.Errorf("%w: transaction id %d", domain.ErrInvalidRequest, req.TransactionID)
	}
	if req.MeterStop < 0 {
		telemetry.SessionOperationsTotal.WithLabelValues("stop", "invalid").Inc()
		return nil, fmt.Errorf("%w: negative meterStop %d", domain.ErrInvalidRequest, req.MeterStop)
	}
	if req.Timestamp.IsZero() {
		telemetry.SessionOperationsTotal.WithLabelValues("stop", "invalid").Inc()
		return nil, fmt.Errorf("%w: missing timestamp", domain.ErrInvalidRequest)
	}

	// The stored record decides which connector to lock. The registry is a
	// derived index and never consulted for routing.
	rec, err := s.store.FindByID(ctx, req.TransactionID)
	if err != nil {
		telemetry.SessionOperationsTotal.WithLabelValues("stop", stopStatus(err)).Inc()
		return nil, err
	}

	lock := s.locks.get(rec.ConnectorID)
	lock.Lock()
	defer lock.Unlock()

	ctx = context.WithoutCancel(ctx)

	completed, err := s.store.Complete(ctx, req.TransactionID, req.MeterStop, req.Timestamp.UTC(), req.IdTag)
	if err != nil {
		telemetry.SessionOperationsTotal.WithLabelValues("stop", stopStatus(err)).Inc()
		return nil, err
	}

	// A mismatch here means the registry disagreed with the store about the
	// connector's owner. The stop already happened, so the session outcome
	// stands; the discrepancy is surfaced for operators.
	if !s.registry.Release(completed.ConnectorID, completed.ID) {
		s.log.Error("Registry release mismatch after stop",
			zap.Int64("transaction_id", completed.ID),
			zap.Int("connector_id", completed.ConnectorID),
		)
	}

	telemetry.ActiveChargingSessions.Dec()
	telemetry.EnergyDeliveredTotal.Add(float64(completed.EnergyWh()))
	telemetry.SessionOperationsTotal.WithLabelValues("stop", "success").Inc()
	s.log.Info("Transaction stopped",
		zap.Int64("transaction_id", completed.ID),
		zap.Int("connector_id", completed.ConnectorID),
		zap.Int64("energy_wh", completed.EnergyWh()),
	)

	s.publish(queue.SubjectTransactionCompleted, queue.TransactionEvent{
		TransactionID: completed.ID,
		ConnectorID:   completed.ConnectorID,
		IdTag:         completed.IdTag,
		MeterStart:    completed.MeterStart,
		MeterStop:     completed.MeterStop,
		EnergyWh:      completed.EnergyWh(),
		StartTime:     completed.StartTime,
		StopTime:      completed.StopTime,
	})

	return completed, nil
}

func (s *Service) publish(subject string, event queue.TransactionEvent) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error("Failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Error("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func stopStatus(err error) string {
	switch {
	case domain.IsConflict(err):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownTransaction),
		errors.Is(err, domain.ErrInvalidMeterReading),
		errors.Is(err, domain.ErrInvalidTimestamp):
		return "invalid"
	default:
		return "error"
	}
}
