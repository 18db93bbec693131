package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dronefleet/orchestrator/internal/logx"
)

// wireMessage is the on-the-wire JSON envelope, grounded on
// cklxx-elephant.ai/internal/tools/builtin/chromebridge's hello/welcome
// handshake shape.
type wireMessage struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type helloFrame struct {
	Kind    string `json:"kind"`
	Group   string `json:"group"`
	APIKey  string `json:"apiKey"`
}

// Hub is a websocket-backed Transport. Drones (and operator UIs) dial in,
// send a hello frame naming the group they're joining, and from then on
// exchange wireMessage frames. One Hub process serves every connection; it
// implements http.Handler so the host can mount it on a ServeMux.
type Hub struct {
	apiKey string
	log    *logx.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*hubConn]struct{} // group -> set of connections
	local map[string][]Handler             // group -> in-process handlers (for Subscribe)
}

type hubConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	group   string
}

func (c *hubConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// NewHub constructs a Hub that requires the X-API-Key header to equal
// apiKey; a hello frame that also carries an apiKey field must match it
// too. An empty apiKey disables the check — only appropriate for local
// development.
func NewHub(apiKey string, log *logx.Logger) *Hub {
	if log == nil {
		log = logx.New(nil, "transport", logx.LevelInfo)
	}
	return &Hub{
		apiKey:   apiKey,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]map[*hubConn]struct{}),
		local:    make(map[string][]Handler),
	}
}

// ServeHTTP upgrades the connection and joins it to the group named in its
// initial hello frame after checking X-API-Key.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.apiKey != "" && r.Header.Get("X-API-Key") != h.apiKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket_upgrade_failed remote=%s error=%v", r.RemoteAddr, err)
		return
	}

	conn := &hubConn{ws: ws}
	if err := h.accept(conn); err != nil {
		h.log.Warn("websocket_accept_failed remote=%s error=%v", r.RemoteAddr, err)
		ws.Close()
		return
	}
	go h.readLoop(conn)
}

func (h *Hub) accept(conn *hubConn) error {
	conn.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ws.ReadMessage()
	if err != nil {
		return err
	}
	conn.ws.SetReadDeadline(time.Time{})

	var hello helloFrame
	if err := json.Unmarshal(data, &hello); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}
	if hello.Group == "" {
		return errors.New("hello frame missing group")
	}
	if h.apiKey != "" && hello.APIKey != "" && hello.APIKey != h.apiKey {
		return errors.New("unauthorized")
	}
	conn.group = hello.Group

	h.mu.Lock()
	if h.conns[conn.group] == nil {
		h.conns[conn.group] = make(map[*hubConn]struct{})
	}
	h.conns[conn.group][conn] = struct{}{}
	h.mu.Unlock()

	return nil
}

func (h *Hub) readLoop(conn *hubConn) {
	defer func() {
		h.mu.Lock()
		delete(h.conns[conn.group], conn)
		h.mu.Unlock()
		conn.ws.Close()
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn("websocket_bad_frame group=%s error=%v", conn.group, err)
			continue
		}
		h.dispatchLocal(conn.group, msg)
	}
}

func (h *Hub) dispatchLocal(group string, msg wireMessage) {
	h.mu.RLock()
	handlers := append([]Handler(nil), h.local[group]...)
	h.mu.RUnlock()

	for _, fn := range handlers {
		if fn == nil {
			// Unsubscribed handlers are left as nil placeholders.
			continue
		}
		fn(Message{Kind: msg.Kind, Payload: msg.Payload})
	}
}

// Publish JSON-encodes msg.Payload and writes it to every connection
// currently in group.
func (h *Hub) Publish(ctx context.Context, group string, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("transport: marshal payload: %w", err)
	}
	wire := wireMessage{Kind: msg.Kind, Payload: payload}

	h.mu.RLock()
	targets := make([]*hubConn, 0, len(h.conns[group]))
	for c := range h.conns[group] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeJSON(wire); err != nil {
			h.log.Warn("websocket_publish_failed group=%s error=%v", group, err)
		}
	}
	return nil
}

// Subscribe registers an in-process handler invoked for every message a
// group's connections send. Used for the server side to react to
// AcknowledgeCommand/ReportResult/... frames arriving from drones.
func (h *Hub) Subscribe(group string, fn Handler) func() {
	h.mu.Lock()
	h.local[group] = append(h.local[group], fn)
	idx := len(h.local[group]) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		handlers := h.local[group]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// UnmarshalPayload decodes msg.Payload (expected to be json.RawMessage, as
// produced by Hub) into dst.
func UnmarshalPayload(msg Message, dst any) error {
	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(msg.Payload)
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, dst)
}
