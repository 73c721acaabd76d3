package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relaychat/internal/identity"
	"github.com/nfrund/relaychat/internal/pubsub"
	"golang.org/x/time/rate"
)

// AuthErrorReason is the close reason sent when a handshake is refused.
const AuthErrorReason = "Authentication error"

// ConnectionVerifier resolves a handshake credential to an identity.
type ConnectionVerifier interface {
	VerifyConnection(ctx context.Context, token string) (identity.Principal, error)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithOriginPatterns restricts which browser origins may connect. A "*"
// entry allows any origin.
func WithOriginPatterns(patterns []string) GatewayOption {
	return func(g *Gateway) {
		g.originPatterns = patterns
	}
}

// WithPingInterval sets the keepalive period.
func WithPingInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.sendBuffer = n
		}
	}
}

// WithRateLimit sets the per-connection inbound event budget.
func WithRateLimit(perSecond float64, burst int) GatewayOption {
	return func(g *Gateway) {
		g.eventRate = rate.Limit(perSecond)
		g.eventBurst = burst
	}
}

// WithPublisher publishes roster changes on the internal bus.
func WithPublisher(pub pubsub.Publisher) GatewayOption {
	return func(g *Gateway) {
		g.publisher = pub
	}
}

// Gateway runs the per-connection lifecycle: authenticate, register,
// dispatch inbound events, unregister.
type Gateway struct {
	verifier   ConnectionVerifier
	registry   *Registry
	hub        *Hub
	dispatcher Dispatcher
	publisher  pubsub.Publisher
	logger     *slog.Logger

	// rosterMu pairs each registry mutation with its roster broadcast so
	// snapshots reach the hub in mutation order.
	rosterMu sync.Mutex

	originPatterns []string
	pingInterval   time.Duration
	sendBuffer     int
	eventRate      rate.Limit
	eventBurst     int
}

// NewGateway wires a gateway to its collaborators.
func NewGateway(verifier ConnectionVerifier, registry *Registry, hub *Hub, dispatcher Dispatcher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		verifier:     verifier,
		registry:     registry,
		hub:          hub,
		dispatcher:   dispatcher,
		logger:       slog.Default().With("component", "gateway"),
		pingInterval: 30 * time.Second,
		sendBuffer:   256,
		eventRate:    10,
		eventBurst:   20,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) acceptOptions() *websocket.AcceptOptions {
	if len(g.originPatterns) == 0 || slices.Contains(g.originPatterns, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: g.originPatterns}
}

// tokenFromRequest reads the credential from ?token= or an Authorization bearer header.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get(echo.HeaderAuthorization); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Handler returns the echo handler for the websocket endpoint. It blocks for
// the life of the connection.
func (g *Gateway) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()
		connID := uuid.NewString()
		logger := g.logger.With("connection_id", connID)

		// Connecting: verify before any inbound frame is read.
		principal, authErr := g.verifier.VerifyConnection(ctx, tokenFromRequest(req))

		conn, err := websocket.Accept(c.Response(), req, g.acceptOptions())
		if err != nil {
			logger.Warn("Failed to upgrade connection to WebSocket", "error", err)
			return nil
		}

		if authErr != nil {
			if failure, ok := identity.IsAuthFailure(authErr); ok {
				logger.Info("Rejecting connection", "reason", failure.Reason)
			} else {
				logger.Error("Rejecting connection after verification error", "error", authErr)
			}
			conn.Close(websocket.StatusPolicyViolation, AuthErrorReason)
			return nil
		}

		session := NewSession(connID, principal)
		logger = logger.With("account_id", session.AccountID)

		client := &Client{
			id:           connID,
			session:      session,
			conn:         conn,
			send:         make(chan []byte, g.sendBuffer),
			limiter:      rate.NewLimiter(g.eventRate, g.eventBurst),
			hub:          g.hub,
			dispatcher:   g.dispatcher,
			logger:       logger,
			pingInterval: g.pingInterval,
		}

		if err := g.admit(ctx, client); err != nil {
			logger.Error("Failed to admit connection", "error", err)
			conn.Close(websocket.StatusInternalError, "server unavailable")
			return nil
		}
		client.onClose = func() { g.release(context.WithoutCancel(ctx), client) }

		connCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go client.writePump(connCtx)
		client.readPump(connCtx)
		client.close()
		return nil
	}
}

// admit moves a verified client to Authenticated: registry insert, hub
// attach, then the roster broadcast. The broadcast is queued before the
// client's first frame is read.
func (g *Gateway) admit(ctx context.Context, c *Client) error {
	g.rosterMu.Lock()
	defer g.rosterMu.Unlock()

	if err := g.registry.Register(c.id, c.session); err != nil {
		return err
	}
	if err := g.hub.attach(c); err != nil {
		g.registry.Unregister(c.id)
		return err
	}
	c.setState(StateAuthenticated)
	g.logger.Info("Connection authenticated",
		"connection_id", c.id, "account_id", c.session.AccountID, "username", c.session.Username)

	g.broadcastRoster(ctx, c.session.AccountID, true)
	return nil
}

// release is the Closed transition. Client.close guarantees it runs once.
func (g *Gateway) release(ctx context.Context, c *Client) {
	g.rosterMu.Lock()
	defer g.rosterMu.Unlock()

	removed := g.registry.Unregister(c.id)
	_ = g.hub.detach(c)
	if !removed {
		return
	}
	g.logger.Info("Connection closed", "connection_id", c.id, "account_id", c.session.AccountID)
	g.broadcastRoster(ctx, c.session.AccountID, false)
}

func (g *Gateway) broadcastRoster(ctx context.Context, accountID string, joined bool) {
	roster := g.registry.Snapshot()
	if err := g.hub.Broadcast(EventUsers, roster); err != nil {
		g.logger.Warn("Failed to queue roster broadcast", "error", err)
	}
	if g.publisher == nil {
		return
	}
	event := pubsub.RosterChanged{Connections: len(roster), AccountID: accountID, Joined: joined}
	if err := pubsub.TopicRosterChanged.Publish(ctx, g.publisher, accountID, event); err != nil {
		g.logger.Warn("Failed to publish roster change", "error", err)
	}
}

// Registry exposes the roster for read-only use such as health reporting.
func (g *Gateway) Registry() *Registry { return g.registry }
