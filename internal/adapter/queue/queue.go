package queue

import (
	"time"
)

// MessageQueue abstracts the event bus the lifecycle engine publishes to.
// The concrete provider (NATS or RabbitMQ) is chosen by configuration.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// Subjects emitted by the lifecycle engine. Downstream consumers (realtime
// hub, external billing, dashboards) subscribe to these.
const (
	SubjectTransactionStarted   = "transaction.started"
	SubjectTransactionCompleted = "transaction.completed"
	SubjectConnectorStatus      = "connector.status"
)

// TransactionEvent is the payload published on transaction.* subjects.
type TransactionEvent struct {
	TransactionID int64      `json:"transaction_id"`
	ConnectorID   int        `json:"connector_id"`
	IdTag         string     `json:"id_tag"`
	MeterStart    int64      `json:"meter_start"`
	MeterStop     *int64     `json:"meter_stop,omitempty"`
	EnergyWh      int64      `json:"energy_wh"`
	StartTime     time.Time  `json:"start_time"`
	StopTime      *time.Time `json:"stop_time,omitempty"`
}

// ConnectorStatusEvent is the payload published on connector.status when a
// charge point reports a StatusNotification.
type ConnectorStatusEvent struct {
	ConnectorID int       `json:"connector_id"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
