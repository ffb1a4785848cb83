package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig holds the simulator configuration
type SimulatorConfig struct {
	ServerURL       string
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	IdTag           string
	ConnectorCount  int
}

// ConnectorState tracks one simulated connector.
type ConnectorState struct {
	ID            int
	Status        string // Available, Charging, Faulted, Unavailable
	MeterWh       int64
	TransactionID int64 // 0 when idle
}

// Simulator simulates an OCPP 1.6 charge point
type Simulator struct {
	config     *SimulatorConfig
	conn       *websocket.Conn
	log        *zap.Logger
	connectors []ConnectorState

	heartbeatInterval int

	// Message handling
	pendingMsgs map[string]chan []byte
	mu          sync.Mutex

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSimulator creates a new charge point simulator
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := 0; i < config.ConnectorCount; i++ {
		connectors[i] = ConnectorState{
			ID:     i + 1,
			Status: "Available",
		}
	}

	return &Simulator{
		config:            config,
		log:               log,
		connectors:        connectors,
		pendingMsgs:       make(map[string]chan []byte),
		stopChan:          make(chan struct{}),
		heartbeatInterval: 300,
	}
}

// Connect connects to the OCPP server
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", s.config.ServerURL, s.config.ChargePointID)

	dialer := websocket.Dialer{
		Subprotocols: []string{"ocpp1.6"},
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.conn = conn
	s.log.Info("Connected to OCPP server",
		zap.String("url", url),
		zap.String("chargePointID", s.config.ChargePointID),
	)

	// Start message reader
	s.wg.Add(1)
	go s.readMessages()

	// Send BootNotification
	resp, err := s.sendBootNotification()
	if err != nil {
		s.log.Error("BootNotification failed", zap.Error(err))
	} else {
		s.log.Info("BootNotification response", zap.Any("response", resp))
		if interval, ok := resp["interval"].(float64); ok && interval > 0 {
			s.heartbeatInterval = int(interval)
		}
	}

	// Announce every connector as Available
	for _, c := range s.connectors {
		s.sendStatusNotification(c.ID, c.Status)
	}

	// Start heartbeat goroutine
	s.wg.Add(1)
	go s.heartbeatLoop()

	return nil
}

// Stop stops the simulator
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

// readMessages reads and processes incoming messages
func (s *Simulator) readMessages() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				s.log.Error("Read error", zap.Error(err))
				return
			}
			s.handleMessage(message)
		}
	}
}

// handleMessage correlates CallResults and CallErrors with pending requests.
func (s *Simulator) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Error("Invalid message", zap.Error(err))
		return
	}

	if len(raw) < 3 {
		return
	}

	var msgType int
	json.Unmarshal(raw[0], &msgType)

	var msgID string
	json.Unmarshal(raw[1], &msgID)

	switch msgType {
	case 3: // CallResult - response to our request
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			ch <- raw[2]
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()

	case 4: // CallError
		var code, desc string
		json.Unmarshal(raw[2], &code)
		if len(raw) > 3 {
			json.Unmarshal(raw[3], &desc)
		}
		s.log.Warn("CallError received",
			zap.String("unique_id", msgID),
			zap.String("code", code),
			zap.String("description", desc),
		)
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			close(ch)
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()
	}
}

// --- Outgoing Messages ---

func (s *Simulator) sendCall(action string, payload interface{}) (map[string]interface{}, error) {
	msgID := uuid.NewString()

	s.mu.Lock()
	responseChan := make(chan []byte, 1)
	s.pendingMsgs[msgID] = responseChan
	s.mu.Unlock()

	msg := []interface{}{2, msgID, action, payload}
	data, _ := json.Marshal(msg)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, err
	}

	select {
	case respData, ok := <-responseChan:
		if !ok {
			return nil, fmt.Errorf("%s rejected by server", action)
		}
		var result map[string]interface{}
		json.Unmarshal(respData, &result)
		return result, nil
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timeout waiting for %s response", action)
	}
}

func (s *Simulator) sendBootNotification() (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"chargePointVendor":       s.config.Vendor,
		"chargePointModel":        s.config.Model,
		"chargePointSerialNumber": s.config.SerialNumber,
		"firmwareVersion":         s.config.FirmwareVersion,
	}
	return s.sendCall("BootNotification", payload)
}

func (s *Simulator) sendHeartbeat() {
	if _, err := s.sendCall("Heartbeat", map[string]interface{}{}); err != nil {
		s.log.Error("Heartbeat failed", zap.Error(err))
	}
}

func (s *Simulator) sendAuthorize(idTag string) (string, error) {
	resp, err := s.sendCall("Authorize", map[string]interface{}{"idTag": idTag})
	if err != nil {
		return "", err
	}
	if info, ok := resp["idTagInfo"].(map[string]interface{}); ok {
		if status, ok := info["status"].(string); ok {
			return status, nil
		}
	}
	return "", fmt.Errorf("malformed Authorize response")
}

func (s *Simulator) sendStatusNotification(connectorID int, status string) {
	payload := map[string]interface{}{
		"connectorId": connectorID,
		"errorCode":   "NoError",
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if status == "Faulted" {
		payload["errorCode"] = "InternalError"
	}
	if _, err := s.sendCall("StatusNotification", payload); err != nil {
		s.log.Error("StatusNotification failed", zap.Error(err))
	}
}

// startTransaction performs the full OCPP 1.6 start exchange and records the
// assigned transaction id on the connector.
func (s *Simulator) startTransaction(connectorID int, meterStart int64) error {
	conn := s.connector(connectorID)
	if conn == nil {
		return fmt.Errorf("no such connector %d", connectorID)
	}
	if conn.TransactionID != 0 {
		return fmt.Errorf("connector %d already charging (tx %d)", connectorID, conn.TransactionID)
	}

	resp, err := s.sendCall("StartTransaction", map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       s.config.IdTag,
		"meterStart":  meterStart,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	status := ""
	if info, ok := resp["idTagInfo"].(map[string]interface{}); ok {
		status, _ = info["status"].(string)
	}
	txID := int64(0)
	if v, ok := resp["transactionId"].(float64); ok {
		txID = int64(v)
	}

	if status != "Accepted" {
		return fmt.Errorf("start rejected: status=%s conflicting tx=%d", status, txID)
	}

	conn.TransactionID = txID
	conn.MeterWh = meterStart
	conn.Status = "Charging"
	s.sendStatusNotification(connectorID, "Charging")

	s.log.Info("Transaction started",
		zap.Int("connector_id", connectorID),
		zap.Int64("transaction_id", txID),
	)
	return nil
}

// stopTransaction ends the transaction recorded on the connector.
func (s *Simulator) stopTransaction(connectorID int, meterStop int64) error {
	conn := s.connector(connectorID)
	if conn == nil {
		return fmt.Errorf("no such connector %d", connectorID)
	}
	if conn.TransactionID == 0 {
		return fmt.Errorf("connector %d has no active transaction", connectorID)
	}
	if meterStop < conn.MeterWh {
		meterStop = conn.MeterWh
	}

	_, err := s.sendCall("StopTransaction", map[string]interface{}{
		"transactionId": conn.TransactionID,
		"meterStop":     meterStop,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"idTag":         s.config.IdTag,
	})
	if err != nil {
		return err
	}

	s.log.Info("Transaction stopped",
		zap.Int("connector_id", connectorID),
		zap.Int64("transaction_id", conn.TransactionID),
		zap.Int64("energy_wh", meterStop-conn.MeterWh),
	)

	conn.TransactionID = 0
	conn.MeterWh = meterStop
	conn.Status = "Available"
	s.sendStatusNotification(connectorID, "Available")
	return nil
}

func (s *Simulator) sendMeterValues(connectorID int, valueWh int64) {
	conn := s.connector(connectorID)
	payload := map[string]interface{}{
		"connectorId": connectorID,
		"meterValue": []map[string]interface{}{
			{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"sampledValue": []map[string]interface{}{
					{
						"value":     fmt.Sprintf("%d", valueWh),
						"measurand": "Energy.Active.Import.Register",
						"unit":      "Wh",
					},
				},
			},
		},
	}
	if conn != nil && conn.TransactionID != 0 {
		payload["transactionId"] = conn.TransactionID
		conn.MeterWh = valueWh
	}
	if _, err := s.sendCall("MeterValues", payload); err != nil {
		s.log.Error("MeterValues failed", zap.Error(err))
	}
}

func (s *Simulator) connector(id int) *ConnectorState {
	if id < 1 || id > len(s.connectors) {
		return nil
	}
	return &s.connectors[id-1]
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.heartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sendHeartbeat()
		}
	}
}

// RunInteractive runs the simulator in interactive mode
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)

		if len(parts) == 0 {
			fmt.Print("> ")
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "start":
			connID := 1
			if len(args) > 0 {
				connID, _ = strconv.Atoi(args[0])
			}
			meterStart := int64(0)
			if len(args) > 1 {
				meterStart, _ = strconv.ParseInt(args[1], 10, 64)
			} else if conn := s.connector(connID); conn != nil {
				meterStart = conn.MeterWh
			}
			if err := s.startTransaction(connID, meterStart); err != nil {
				fmt.Printf("Start failed: %v\n", err)
			} else {
				fmt.Printf("Started charging on connector %d\n", connID)
			}

		case "stop":
			connID := 1
			if len(args) > 0 {
				connID, _ = strconv.Atoi(args[0])
			}
			meterStop := int64(0)
			if len(args) > 1 {
				meterStop, _ = strconv.ParseInt(args[1], 10, 64)
			} else if conn := s.connector(connID); conn != nil {
				meterStop = conn.MeterWh + 500
			}
			if err := s.stopTransaction(connID, meterStop); err != nil {
				fmt.Printf("Stop failed: %v\n", err)
			} else {
				fmt.Printf("Stopped charging on connector %d\n", connID)
			}

		case "authorize":
			tag := s.config.IdTag
			if len(args) > 0 {
				tag = args[0]
			}
			status, err := s.sendAuthorize(tag)
			if err != nil {
				fmt.Printf("Authorize failed: %v\n", err)
			} else {
				fmt.Printf("Authorize %s: %s\n", tag, status)
			}

		case "status":
			if len(args) < 1 {
				fmt.Println("Usage: status <connector> [status]")
			} else {
				connID, _ := strconv.Atoi(args[0])
				status := "Available"
				if len(args) > 1 {
					status = args[1]
				}
				s.sendStatusNotification(connID, status)
				fmt.Printf("Sent status %s for connector %d\n", status, connID)
			}

		case "meter":
			if len(args) < 2 {
				fmt.Println("Usage: meter <connector> <valueWh>")
			} else {
				connID, _ := strconv.Atoi(args[0])
				value, _ := strconv.ParseInt(args[1], 10, 64)
				s.sendMeterValues(connID, value)
				fmt.Printf("Sent meter value %d Wh for connector %d\n", value, connID)
			}

		case "heartbeat":
			s.sendHeartbeat()
			fmt.Println("Sent heartbeat")

		case "fault":
			connID := 1
			if len(args) > 0 {
				connID, _ = strconv.Atoi(args[0])
			}
			s.sendStatusNotification(connID, "Faulted")
			fmt.Printf("Sent fault status for connector %d\n", connID)

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		fmt.Print("> ")
	}
}
