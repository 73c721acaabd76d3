package realtime

import (
	"context"
	"errors"
	"log/slog"
)

// ErrHubStopped is returned when an event is queued after the hub has shut down.
var ErrHubStopped = errors.New("hub stopped")

// Broadcaster delivers outbound events to connections.
type Broadcaster interface {
	// Broadcast queues event for every attached connection.
	Broadcast(event string, data any) error
	// SendTo queues event for a single connection. Unknown ids are ignored.
	SendTo(connectionID, event string, data any) error
}

type opKind int

const (
	opAttach opKind = iota
	opDetach
	opBroadcast
	opDirect
)

type hubOp struct {
	kind    opKind
	client  *Client
	target  string
	payload []byte
}

// Hub owns every connection's outbound queue. A single goroutine applies
// attach, detach and send operations in the order they were queued, which
// is what keeps a roster update ahead of later chat traffic.
type Hub struct {
	ops     chan hubOp
	clients map[string]*Client
	done    chan struct{}
	logger  *slog.Logger
}

var _ Broadcaster = (*Hub)(nil)

// NewHub creates a hub. Call Run before queuing events.
func NewHub() *Hub {
	return &Hub{
		ops:     make(chan hubOp, 256),
		clients: make(map[string]*Client),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "hub"),
	}
}

// Run processes queued operations until ctx is canceled. Remaining clients
// have their queues closed, which makes their write pumps close the socket.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Realtime hub started")
	defer func() {
		close(h.done)
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.logger.Info("Realtime hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			h.apply(op)
		}
	}
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opAttach:
		h.clients[op.client.id] = op.client
	case opDetach:
		if c, ok := h.clients[op.client.id]; ok && c == op.client {
			delete(h.clients, op.client.id)
			close(op.client.send)
		}
	case opBroadcast:
		for _, c := range h.clients {
			h.deliver(c, op.payload)
		}
	case opDirect:
		if c, ok := h.clients[op.target]; ok {
			h.deliver(c, op.payload)
		}
	}
}

func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		// Drop message if client's send buffer is full.
		h.logger.Warn("Client send channel full, dropping message",
			"connection_id", c.id, "account_id", c.session.AccountID)
	}
}

func (h *Hub) enqueue(op hubOp) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.ops <- op:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) attach(c *Client) error { return h.enqueue(hubOp{kind: opAttach, client: c}) }

func (h *Hub) detach(c *Client) error { return h.enqueue(hubOp{kind: opDetach, client: c}) }

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(event string, data any) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	return h.enqueue(hubOp{kind: opBroadcast, payload: payload})
}

// SendTo implements Broadcaster.
func (h *Hub) SendTo(connectionID, event string, data any) error {
	if connectionID == "" {
		return nil
	}
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	return h.enqueue(hubOp{kind: opDirect, target: connectionID, payload: payload})
}
