package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/observability/telemetry"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

// TransactionStore persists sessions in PostgreSQL. The engine still owns
// the per-connector critical sections; the row lock in Complete is a second
// line of defense for deployments that share the database.
type TransactionStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTransactionStore(db *gorm.DB, log *zap.Logger) ports.TransactionStore {
	return &TransactionStore{
		db:  db,
		log: log,
	}
}

func (s *TransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	timer := prometheus.NewTimer(telemetry.DatabaseLatency)
	defer timer.ObserveDuration()

	err := s.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateTransaction
	}
	return err
}

func (s *TransactionStore) Complete(ctx context.Context, id int64, meterStop int64, stopTime time.Time, stopIdTag string) (*domain.Transaction, error) {
	timer := prometheus.NewTimer(telemetry.DatabaseLatency)
	defer timer.ObserveDuration()

	var result *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var rec domain.Transaction
		err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUnknownTransaction
		}
		if err != nil {
			return err
		}
		if rec.Status() == domain.TransactionStatusCompleted {
			return domain.ErrAlreadyStopped
		}
		if meterStop < rec.MeterStart {
			return domain.ErrInvalidMeterReading
		}
		if stopTime.Before(rec.StartTime) {
			return domain.ErrInvalidTimestamp
		}

		rec.MeterStop = &meterStop
		rec.StopTime = &stopTime
		rec.StopIdTag = stopIdTag
		if err := dbtx.Save(&rec).Error; err != nil {
			return err
		}
		result = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *TransactionStore) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	timer := prometheus.NewTimer(telemetry.DatabaseLatency)
	defer timer.ObserveDuration()

	var rec domain.Transaction
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUnknownTransaction
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *TransactionStore) MaxID(ctx context.Context) (int64, error) {
	timer := prometheus.NewTimer(telemetry.DatabaseLatency)
	defer timer.ObserveDuration()

	var maxID int64
	err := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&maxID).Error
	return maxID, err
}

func (s *TransactionStore) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	timer := prometheus.NewTimer(telemetry.DatabaseLatency)
	defer timer.ObserveDuration()

	query := s.db.WithContext(ctx).Order("id asc")
	if filter.ConnectorID != nil {
		query = query.Where("connector_id = ?", *filter.ConnectorID)
	}
	switch filter.Status {
	case domain.TransactionStatusActive:
		query = query.Where("meter_stop IS NULL")
	case domain.TransactionStatusCompleted:
		query = query.Where("meter_stop IS NOT NULL")
	}

	var txs []domain.Transaction
	err := query.Find(&txs).Error
	return txs, err
}
