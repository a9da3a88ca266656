// Package api provides the diagnostics API server for the uartlink
// host. Tooling can query link status over REST or JSON-RPC, inject
// outbound messages, and subscribe to periodic status notifications
// over a WebSocket.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"uartlink/pkg/log"
	"uartlink/pkg/pool"
	"uartlink/pkg/uart"
)

// LinkInterface is the view of the running pipeline the server needs.
type LinkInterface interface {
	// Stats returns the pipeline activity totals.
	Stats() uart.Stats

	// Faults returns the link fault counters.
	Faults() uart.CounterSnapshot

	// Send enqueues an outbound message and reports acceptance.
	Send(text string) bool

	// Commands returns the registered command names.
	Commands() []string

	// Uptime returns the time since the host started.
	Uptime() time.Duration
}

// Config holds server configuration.
type Config struct {
	// Addr is the HTTP address to listen on (e.g. ":7180").
	Addr string

	// Link is the running pipeline view.
	Link LinkInterface
}

// Server exposes link diagnostics over HTTP and WebSocket.
type Server struct {
	link   LinkInterface
	logger *log.Logger

	httpServer *http.Server
	addr       string

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// Status subscriptions: clientID -> subscribed
	subscriptions map[int64]bool
	subMu         sync.RWMutex

	running   atomic.Bool
	startTime time.Time
}

// New creates a diagnostics server.
func New(cfg Config) *Server {
	s := &Server{
		link:          cfg.Link,
		logger:        log.GetLogger("api"),
		addr:          cfg.Addr,
		wsClients:     make(map[int64]*WSClient),
		subscriptions: make(map[int64]bool),
		startTime:     time.Now(),
	}

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return s
}

// Start starts the API server. It blocks until the server stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// JSON-RPC endpoint
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)

	// WebSocket endpoint
	mux.HandleFunc("/websocket", s.handleWebSocket)

	// REST-style endpoints
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/link/info", s.handleLinkInfo)
	mux.HandleFunc("/link/status", s.handleLinkStatus)
	mux.HandleFunc("/link/send", s.handleLinkSend)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	s.running.Store(true)
	s.logger.Info("diagnostics API listening on %s", s.addr)

	go s.statusBroadcastLoop()

	return s.httpServer.ListenAndServe()
}

// Stop stops the API server.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests over plain HTTP.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Parse error")
		return
	}

	result, err := s.dispatchMethod(req.Method, req.Params, nil)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, -32000, err.Error())
		return
	}

	s.writeJSONRPCResult(w, req.ID, result)
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(method string, params map[string]any, client *WSClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "link.info":
		return s.methodLinkInfo()
	case "link.status":
		return s.methodLinkStatus(), nil
	case "link.send":
		return s.methodLinkSend(params)
	case "link.subscribe":
		return s.methodSubscribe(client)
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

// Method implementations

func (s *Server) methodServerInfo() (any, error) {
	hostname, _ := os.Hostname()

	s.wsClientMu.RLock()
	wsCount := len(s.wsClients)
	s.wsClientMu.RUnlock()

	return map[string]any{
		"hostname":        hostname,
		"websocket_count": wsCount,
		"api_version":     []int{1, 0, 0},
		"server_uptime":   time.Since(s.startTime).Seconds(),
	}, nil
}

func (s *Server) methodLinkInfo() (any, error) {
	info := map[string]any{
		"connected": s.link != nil,
	}
	if s.link != nil {
		info["commands"] = s.link.Commands()
		info["uptime"] = s.link.Uptime().Seconds()
	}
	return info, nil
}

func (s *Server) methodLinkStatus() map[string]any {
	status := make(map[string]any, 3)
	s.fillLinkStatus(status)
	return status
}

func (s *Server) fillLinkStatus(status map[string]any) {
	if s.link == nil {
		status["connected"] = false
		return
	}
	status["connected"] = true
	status["stats"] = s.link.Stats()
	status["faults"] = s.link.Faults()
}

func (s *Server) methodLinkSend(params map[string]any) (any, error) {
	if s.link == nil {
		return nil, fmt.Errorf("link not connected")
	}

	text, ok := params["text"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'text' parameter")
	}

	accepted := s.link.Send(text)
	return map[string]any{"accepted": accepted}, nil
}

func (s *Server) methodSubscribe(client *WSClient) (any, error) {
	if client == nil {
		return nil, fmt.Errorf("subscription requires WebSocket connection")
	}

	s.subMu.Lock()
	s.subscriptions[client.id] = true
	s.subMu.Unlock()

	// Return the current status as the initial snapshot.
	return s.methodLinkStatus(), nil
}

// REST endpoint handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	result, _ := s.methodServerInfo()
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleLinkInfo(w http.ResponseWriter, r *http.Request) {
	result, _ := s.methodLinkInfo()
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleLinkStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": s.methodLinkStatus()})
}

func (s *Server) handleLinkSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeJSONError(w, err)
		return
	}

	result, err := s.methodLinkSend(params)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    -32000,
			"message": err.Error(),
		},
	})
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// statusBroadcastLoop periodically notifies subscribed clients.
func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		s.broadcastStatus()
	}
}

// broadcastStatus sends a status notification to all subscribed clients.
// The notification is marshaled once through pooled scratch space and
// the same payload is fanned out to every subscriber.
func (s *Server) broadcastStatus() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	if len(s.subscriptions) == 0 {
		return
	}

	status := pool.GetStatusMap()
	defer pool.PutStatusMap(status)
	s.fillLinkStatus(status)

	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	if err := json.NewEncoder(buf).Encode(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_link_status",
		"params":  []any{status},
	}); err != nil {
		s.logger.Warn("status notification encode error: %v", err)
		return
	}
	payload := buf.CopyBytes()

	for clientID := range s.subscriptions {
		s.wsClientMu.RLock()
		client, ok := s.wsClients[clientID]
		s.wsClientMu.RUnlock()
		if !ok {
			continue
		}
		client.SendRaw(payload)
	}
}
