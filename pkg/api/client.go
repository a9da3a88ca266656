package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient represents one WebSocket client connection.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

// newWSClient creates a client for an upgraded connection.
func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	id := atomic.AddInt64(&s.nextWSID, 1)
	return &WSClient{
		id:     id,
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client without blocking. A slow client
// loses notifications rather than stalling the broadcast loop.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Debug("dropping message to client %d (channel full)", c.id)
	}
}

// SendRaw queues a pre-marshaled JSON message for the client without
// blocking. The caller must not reuse the slice.
func (c *WSClient) SendRaw(data []byte) {
	select {
	case c.sendCh <- json.RawMessage(data):
	case <-c.done:
	default:
		c.server.logger.Debug("dropping message to client %d (channel full)", c.id)
	}
}

// Close closes the client connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}

	c.conn.Close()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			var err error
			if raw, ok := msg.(json.RawMessage); ok {
				err = c.conn.WriteMessage(websocket.TextMessage, raw)
			} else {
				err = c.conn.WriteJSON(msg)
			}
			if err != nil {
				c.server.logger.Warn("websocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage processes one incoming JSON-RPC message.
func (c *WSClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, -32700, "Parse error")
		return
	}

	result, err := c.server.dispatchMethod(req.Method, req.Params, c)
	if err != nil {
		c.sendError(req.ID, -32000, err.Error())
		return
	}

	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// sendError sends a JSON-RPC error response.
func (c *WSClient) sendError(id any, code int, message string) {
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// handleWebSocket upgrades the connection and runs the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error: %v", err)
		return
	}

	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()

	s.logger.Info("websocket client %d connected", client.id)

	go client.writePump()
	client.readPump() // Blocks until the connection closes.
}

// removeClient removes a client and its subscription.
func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.subMu.Lock()
	delete(s.subscriptions, client.id)
	s.subMu.Unlock()

	s.logger.Info("websocket client %d disconnected", client.id)
}
