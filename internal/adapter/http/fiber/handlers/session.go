package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/domain"
	"github.com/seu-repo/sigec-cms/internal/ports"
)

type SessionHandler struct {
	service ports.SessionService
	log     *zap.Logger
}

func NewSessionHandler(service ports.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		log:     log,
	}
}

type StartSessionRequest struct {
	ConnectorID int       `json:"connector_id"`
	IdTag       string    `json:"id_tag"`
	MeterStart  int64     `json:"meter_start"`
	Timestamp   time.Time `json:"timestamp"`
}

type StopSessionRequest struct {
	TransactionID int64     `json:"transaction_id"`
	MeterStop     int64     `json:"meter_stop"`
	Timestamp     time.Time `json:"timestamp"`
	IdTag         string    `json:"id_tag,omitempty"`
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	// Operator requests may omit the timestamp; charge points never do.
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	tx, err := h.service.Start(c.Context(), ports.StartRequest{
		ConnectorID: req.ConnectorID,
		IdTag:       req.IdTag,
		MeterStart:  req.MeterStart,
		Timestamp:   req.Timestamp,
	})
	if err != nil {
		return h.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tx)
}

func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	var req StopSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	tx, err := h.service.Stop(c.Context(), ports.StopRequest{
		TransactionID: req.TransactionID,
		MeterStop:     req.MeterStop,
		Timestamp:     req.Timestamp,
		IdTag:         req.IdTag,
	})
	if err != nil {
		return h.renderError(c, err)
	}

	return c.JSON(tx)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid transaction id"})
	}

	tx, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.renderError(c, err)
	}
	return c.JSON(tx)
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	var filter ports.TransactionFilter

	if raw := c.Query("connector_id"); raw != "" {
		connector, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid connector_id"})
		}
		filter.ConnectorID = &connector
	}

	switch status := c.Query("status"); status {
	case "":
	case string(domain.TransactionStatusActive):
		filter.Status = domain.TransactionStatusActive
	case string(domain.TransactionStatusCompleted):
		filter.Status = domain.TransactionStatusCompleted
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	txs, err := h.service.List(c.Context(), filter)
	if err != nil {
		return h.renderError(c, err)
	}
	return c.JSON(fiber.Map{
		"sessions": txs,
		"count":    len(txs),
	})
}

func (h *SessionHandler) Connectors(c *fiber.Ctx) error {
	connectors := h.service.Connectors(c.Context())
	return c.JSON(fiber.Map{
		"connectors": connectors,
		"count":      len(connectors),
	})
}

func (h *SessionHandler) renderError(c *fiber.Ctx, err error) error {
	var busy *domain.ConnectorBusyError
	switch {
	case errors.As(err, &busy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":                 "Connector busy",
			"connector_id":          busy.ConnectorID,
			"active_transaction_id": busy.ActiveTransactionID,
		})
	case errors.Is(err, domain.ErrAlreadyStopped):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Transaction already stopped"})
	case errors.Is(err, domain.ErrUnknownTransaction):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidMeterReading),
		errors.Is(err, domain.ErrInvalidTimestamp):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		h.log.Error("Session operation failed", zap.Error(err), zap.String("path", c.Path()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
