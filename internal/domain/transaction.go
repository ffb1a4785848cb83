package domain

import (
	"time"
)

type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "Active"
	TransactionStatusCompleted TransactionStatus = "Completed"
)

// Transaction is the authoritative record of one charging session. The
// start-side fields are immutable after creation; the stop-side fields are
// written exactly once, when the session completes.
type Transaction struct {
	ID          int64      `json:"transaction_id" gorm:"primaryKey"`
	ConnectorID int        `json:"connector_id" gorm:"index"`
	IdTag       string     `json:"id_tag"`      // RFID or other auth token
	MeterStart  int64      `json:"meter_start"` // Wh
	StartTime   time.Time  `json:"start_time"`
	MeterStop   *int64     `json:"meter_stop,omitempty"` // Wh, nil while active
	StopTime    *time.Time `json:"stop_time,omitempty"`
	StopIdTag   string     `json:"stop_id_tag,omitempty"` // audit only
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Status is derived, never stored: a transaction is Active until its
// stop-side fields are written.
func (t *Transaction) Status() TransactionStatus {
	if t.MeterStop == nil && t.StopTime == nil {
		return TransactionStatusActive
	}
	return TransactionStatusCompleted
}

// EnergyWh returns the energy delivered, or zero while the session is active.
func (t *Transaction) EnergyWh() int64 {
	if t.MeterStop == nil {
		return 0
	}
	return *t.MeterStop - t.MeterStart
}

// Clone returns a deep copy, so store snapshots never alias live records.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.MeterStop != nil {
		v := *t.MeterStop
		c.MeterStop = &v
	}
	if t.StopTime != nil {
		v := *t.StopTime
		c.StopTime = &v
	}
	return &c
}
