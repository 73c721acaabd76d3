package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Dispatcher handles the inbound chat events of an authenticated connection.
type Dispatcher interface {
	HandleSend(ctx context.Context, s Session, content string)
	HandleDelete(ctx context.Context, s Session, messageID string)
}

// Client is a single authenticated websocket connection.
type Client struct {
	id      string
	session Session
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	state   atomic.Int32

	hub        *Hub
	dispatcher Dispatcher
	logger     *slog.Logger

	pingInterval time.Duration
	closeOnce    sync.Once
	onClose      func()
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Session returns the identity bound at handshake.
func (c *Client) Session() Session { return c.session }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// readPump decodes inbound frames and hands them to the dispatcher until the
// connection fails. It runs on the handler goroutine.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed normally by client")
			default:
				if !errors.Is(err, context.Canceled) {
					c.logger.Debug("WebSocket read ended", "error", err)
				}
			}
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("Inbound event rate exceeded, dropping event")
			_ = c.hub.SendTo(c.id, EventError, ErrorPayload{Code: CodeRateLimited, Message: "too many events"})
			continue
		}

		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic while dispatching event", "panic", r)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("Ignoring malformed frame", "error", err)
		return
	}

	switch env.Event {
	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("Ignoring malformed sendMessage payload", "error", err)
			return
		}
		c.dispatcher.HandleSend(ctx, c.session, p.Content)
	case EventDeleteMessage:
		var p DeleteMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("Ignoring malformed deleteMessage payload", "error", err)
			return
		}
		c.dispatcher.HandleDelete(ctx, c.session, p.MessageID)
	default:
		c.logger.Debug("Ignoring unknown event", "event", env.Event)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with pings. It exits when the hub closes the queue or a write fails.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				// The hub closed the channel.
				c.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Info("Ping failed, closing connection", "error", err)
				return
			}
		}
	}
}

// close runs the disconnect path exactly once, whichever pump gets there first.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		if c.onClose != nil {
			c.onClose()
		}
		c.conn.CloseNow()
	})
}
