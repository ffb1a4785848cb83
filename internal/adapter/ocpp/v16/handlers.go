package v16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/adapter/queue"
	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

var (
	errNotImplemented   = errors.New("action not implemented")
	errMalformedPayload = errors.New("malformed payload")
)

// blockedTagPrefix keys the idTag deny list in the shared cache. An entry
// present under this prefix means the tag must not start sessions.
const blockedTagPrefix = "idtag:blocked:"

// Handlers processes OCPP 1.6 messages from charge points
type Handlers struct {
	sessions ports.SessionService
	cache    ports.Cache
	mq       queue.MessageQueue
	log      *zap.Logger
}

// NewHandlers creates a new OCPP 1.6 message handler
func NewHandlers(sessions ports.SessionService, cache ports.Cache, mq queue.MessageQueue, log *zap.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		cache:    cache,
		mq:       mq,
		log:      log,
	}
}

// HandleMessage routes an OCPP 1.6 action to the appropriate handler
func (h *Handlers) HandleMessage(chargePointID, action string, payload json.RawMessage) (interface{}, error) {
	ctx := context.Background()

	switch action {
	case "BootNotification":
		return h.handleBootNotification(ctx, chargePointID, payload)
	case "Heartbeat":
		return h.handleHeartbeat(ctx, chargePointID)
	case "StatusNotification":
		return h.handleStatusNotification(ctx, chargePointID, payload)
	case "StartTransaction":
		return h.handleStartTransaction(ctx, chargePointID, payload)
	case "StopTransaction":
		return h.handleStopTransaction(ctx, chargePointID, payload)
	case "MeterValues":
		return h.handleMeterValues(ctx, chargePointID, payload)
	case "Authorize":
		return h.handleAuthorize(ctx, chargePointID, payload)
	default:
		h.log.Warn("Unknown OCPP 1.6 action", zap.String("action", action))
		return nil, fmt.Errorf("%w: %s", errNotImplemented, action)
	}
}

// --- OCPP 1.6 Request/Response types ---

type bootNotificationReq struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty"`
}

type bootNotificationResp struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

func (h *Handlers) handleBootNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req bootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: BootNotification: %v", errMalformedPayload, err)
	}

	h.log.Info("OCPP 1.6 BootNotification",
		zap.String("charge_point_id", chargePointID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
	)

	return bootNotificationResp{
		Status:      "Accepted",
		CurrentTime: time.Now().UTC().Format(time.RFC3339),
		Interval:    300,
	}, nil
}

func (h *Handlers) handleHeartbeat(ctx context.Context, chargePointID string) (interface{}, error) {
	h.log.Debug("OCPP 1.6 Heartbeat", zap.String("charge_point_id", chargePointID))

	return map[string]string{
		"currentTime": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type statusNotificationReq struct {
	ConnectorId     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode"`
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

func (h *Handlers) handleStatusNotification(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req statusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: StatusNotification: %v", errMalformedPayload, err)
	}

	h.log.Info("OCPP 1.6 StatusNotification",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", req.Status),
		zap.String("error_code", req.ErrorCode),
	)

	if h.mq != nil {
		event := queue.ConnectorStatusEvent{
			ConnectorID: req.ConnectorId,
			Status:      req.Status,
			ErrorCode:   req.ErrorCode,
			Timestamp:   time.Now().UTC(),
		}
		if data, err := json.Marshal(event); err == nil {
			if err := h.mq.Publish(queue.SubjectConnectorStatus, data); err != nil {
				h.log.Error("Failed to publish connector status", zap.Error(err))
			}
		}
	}

	return map[string]interface{}{}, nil
}

type startTransactionReq struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int64  `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

type idTagInfo struct {
	Status string `json:"status"`
}

type startTransactionResp struct {
	TransactionId int64     `json:"transactionId"`
	IdTagInfo     idTagInfo `json:"idTagInfo"`
}

func (h *Handlers) handleStartTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req startTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: StartTransaction: %v", errMalformedPayload, err)
	}

	h.log.Info("OCPP 1.6 StartTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("id_tag", req.IdTag),
	)

	if h.isTagBlocked(ctx, req.IdTag) {
		return startTransactionResp{
			TransactionId: 0,
			IdTagInfo:     idTagInfo{Status: "Blocked"},
		}, nil
	}

	timestamp, err := parseOCPPTime(req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: StartTransaction timestamp: %v", errMalformedPayload, err)
	}

	tx, err := h.sessions.Start(ctx, ports.StartRequest{
		ConnectorID: req.ConnectorId,
		IdTag:       req.IdTag,
		MeterStart:  req.MeterStart,
		Timestamp:   timestamp,
	})
	if err != nil {
		// A busy connector is a protocol-level rejection, not a fault: the
		// charge point gets a CallResult carrying the conflicting id.
		var busy *domain.ConnectorBusyError
		if errors.As(err, &busy) {
			return startTransactionResp{
				TransactionId: busy.ActiveTransactionID,
				IdTagInfo:     idTagInfo{Status: "Blocked"},
			}, nil
		}
		return nil, err
	}

	return startTransactionResp{
		TransactionId: tx.ID,
		IdTagInfo:     idTagInfo{Status: "Accepted"},
	}, nil
}

type stopTransactionReq struct {
	TransactionId int64  `json:"transactionId"`
	MeterStop     int64  `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	IdTag         string `json:"idTag,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type stopTransactionResp struct {
	IdTagInfo idTagInfo `json:"idTagInfo"`
}

func (h *Handlers) handleStopTransaction(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req stopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: StopTransaction: %v", errMalformedPayload, err)
	}

	h.log.Info("OCPP 1.6 StopTransaction",
		zap.String("charge_point_id", chargePointID),
		zap.Int64("transaction_id", req.TransactionId),
		zap.Int64("meter_stop", req.MeterStop),
	)

	timestamp, err := parseOCPPTime(req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: StopTransaction timestamp: %v", errMalformedPayload, err)
	}

	if _, err := h.sessions.Stop(ctx, ports.StopRequest{
		TransactionID: req.TransactionId,
		MeterStop:     req.MeterStop,
		Timestamp:     timestamp,
		IdTag:         req.IdTag,
	}); err != nil {
		return nil, err
	}

	return stopTransactionResp{
		IdTagInfo: idTagInfo{Status: "Accepted"},
	}, nil
}

type meterValuesReq struct {
	ConnectorId   int             `json:"connectorId"`
	TransactionId *int64          `json:"transactionId,omitempty"`
	MeterValue    json.RawMessage `json:"meterValue"`
}

func (h *Handlers) handleMeterValues(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req meterValuesReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: MeterValues: %v", errMalformedPayload, err)
	}

	h.log.Debug("OCPP 1.6 MeterValues",
		zap.String("charge_point_id", chargePointID),
		zap.Int("connector_id", req.ConnectorId),
	)
	return map[string]interface{}{}, nil
}

type authorizeReq struct {
	IdTag string `json:"idTag"`
}

func (h *Handlers) handleAuthorize(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
	var req authorizeReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: Authorize: %v", errMalformedPayload, err)
	}

	status := "Accepted"
	if h.isTagBlocked(ctx, req.IdTag) {
		status = "Blocked"
	}

	h.log.Info("OCPP 1.6 Authorize",
		zap.String("charge_point_id", chargePointID),
		zap.String("id_tag", req.IdTag),
		zap.String("status", status),
	)

	return map[string]interface{}{
		"idTagInfo": idTagInfo{Status: status},
	}, nil
}

func (h *Handlers) isTagBlocked(ctx context.Context, idTag string) bool {
	if h.cache == nil || idTag == "" {
		return false
	}
	_, err := h.cache.Get(ctx, blockedTagPrefix+idTag)
	return err == nil
}

// parseOCPPTime accepts the RFC3339 timestamps OCPP 1.6 mandates.
func parseOCPPTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	return time.Parse(time.RFC3339, value)
}
