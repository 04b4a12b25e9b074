package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/dashboard"
	"github.com/zhaobenny/sleepdash/internal/model"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before the connection is dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBufSize  = 8
	maxFrameSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
}

// StreamRequest is one range change sent by a client
type StreamRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StreamMessage is the JSON envelope sent to clients
type StreamMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Stream serves /ws/charts. Every range a client sends is answered with one
// charts (or error) message; requests on a connection are handled in order.
type Stream struct {
	dash   *dashboard.Dashboard
	logger *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewStream creates a chart stream over dash
func NewStream(dash *dashboard.Dashboard, logger *zap.SugaredLogger) *Stream {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stream{
		dash:    dash,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// ServeHTTP upgrades the connection, sends the picker range, then answers
// range requests until the client goes away.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, sendBufSize)}
	s.register(c)
	defer s.unregister(c)

	if rng, err := s.dash.Range(); err == nil {
		c.enqueue(encode(StreamMessage{Event: "range", Data: rng}))
	} else {
		c.enqueue(encode(StreamMessage{Event: "error", Error: err.Error()}))
	}

	go c.writePump()
	s.readPump(c)
}

// Count returns the number of connected clients
func (s *Stream) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.shutdown()
		delete(s.clients, c)
	}
}

// Answer computes the reply to a single request
func (s *Stream) Answer(req StreamRequest) StreamMessage {
	start, err := model.ParseDay(req.Start)
	if err != nil {
		return StreamMessage{Event: "error", Error: "start: " + err.Error()}
	}
	end, err := model.ParseDay(req.End)
	if err != nil {
		return StreamMessage{Event: "error", Error: "end: " + err.Error()}
	}
	charts, err := s.dash.Charts(start, end)
	if err != nil {
		return StreamMessage{Event: "error", Error: err.Error()}
	}
	return StreamMessage{Event: "charts", Data: charts}
}

func (s *Stream) register(c *streamClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) unregister(c *streamClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.shutdown()
	}
	s.mu.Unlock()
}

// readPump handles one request at a time until the connection closes
func (s *Stream) readPump(c *streamClient) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugw("stream read", "error", err)
			}
			return
		}

		var req StreamRequest
		msg := StreamMessage{Event: "error", Error: "invalid request"}
		if err := json.Unmarshal(data, &req); err == nil {
			msg = s.Answer(req)
		}
		if !c.enqueue(encode(msg)) {
			s.logger.Debugw("stream client gone or too slow, disconnecting")
			return
		}
	}
}

// enqueue drops the message and reports false when the buffer is full or
// the client is shut down
func (c *streamClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump forwards queued messages and sends pings
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(msg StreamMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(StreamMessage{Event: "error", Error: err.Error()})
	}
	return data
}
