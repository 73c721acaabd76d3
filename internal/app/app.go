// Package app is the composition root. It registers every service in a
// samber/do container so the CLI commands resolve only what they need.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/nfrund/relaychat/internal/audit"
	"github.com/nfrund/relaychat/internal/config"
	"github.com/nfrund/relaychat/internal/database"
	"github.com/nfrund/relaychat/internal/database/badgerstore"
	"github.com/nfrund/relaychat/internal/domain"
	"github.com/nfrund/relaychat/internal/identity"
	"github.com/nfrund/relaychat/internal/pubsub"
	"github.com/nfrund/relaychat/internal/realtime"
	"github.com/nfrund/relaychat/internal/relay"
	"github.com/nfrund/relaychat/internal/server"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Stores bundles the repositories of the configured driver.
type Stores struct {
	Accounts domain.AccountRepository
	Messages domain.MessageRepository
	ping     func(ctx context.Context) error
	close    func(ctx context.Context) error
}

// Ping checks that the store is reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Shutdown closes the underlying database. The container calls it on shutdown.
func (s *Stores) Shutdown(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Telemetry owns the tracer used by the bus.
type Telemetry struct {
	Tracer  trace.Tracer
	cleanup func()
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown() {
	if t.cleanup != nil {
		t.cleanup()
	}
}

// New builds the container for cfg. Services are created lazily on first
// Invoke; call Shutdown on the returned scope to release them.
func New(cfg *config.Config) *do.RootScope {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, newStores)
	do.Provide(i, newTelemetry)
	do.Provide(i, newBus)
	do.Provide(i, newTokens)
	do.Provide(i, newIdentityService)
	do.Provide(i, newVerifier)
	do.Provide(i, newRegistry)
	do.Provide(i, newHub)
	do.Provide(i, newRelay)
	do.Provide(i, newGateway)
	do.Provide(i, newAudit)
	do.Provide(i, newServer)
	return i
}

func newStores(i do.Injector) (*Stores, error) {
	cfg := do.MustInvoke[*config.Config](i)

	switch cfg.StoreDriver {
	case config.DriverSurreal:
		return openSurreal(cfg)
	case config.DriverBadger:
		return openBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openSurreal(cfg *config.Config) (*Stores, error) {
	ctx := context.Background()
	conn := database.NewConnection(cfg)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	conn.StartMonitoring()

	return &Stores{
		Accounts: database.NewAccountStore(conn),
		Messages: database.NewMessageStore(conn),
		ping:     conn.Ping,
		close:    conn.Close,
	}, nil
}

func openBadger(path string) (*Stores, error) {
	db, err := badgerstore.Open(path)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Accounts: badgerstore.NewAccountStore(db),
		Messages: badgerstore.NewMessageStore(db),
		ping:     badgerPing(db),
		close:    func(context.Context) error { return db.Close() },
	}, nil
}

func badgerPing(db *badger.DB) func(context.Context) error {
	return func(context.Context) error {
		if db.IsClosed() {
			return fmt.Errorf("badger store is closed")
		}
		return nil
	}
}

func newTelemetry(i do.Injector) (*Telemetry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.TracingServiceName,
		ZipkinURL:   cfg.ZipkinURL,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}
	return &Telemetry{Tracer: tracer, cleanup: cleanup}, nil
}

// bus wraps the watermill bridge so the container can shut it down.
type bus struct {
	*pubsub.WatermillBridge
}

func (b *bus) Shutdown() error { return b.Close() }

func newBus(i do.Injector) (pubsub.Bus, error) {
	tel := do.MustInvoke[*Telemetry](i)
	return &bus{pubsub.NewWatermillBridge(pubsub.WithTracer(tel.Tracer))}, nil
}

func newTokens(i do.Injector) (*identity.Tokens, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return identity.NewTokens(cfg.JWTSecret, cfg.JWTTTL), nil
}

func newIdentityService(i do.Injector) (*identity.Service, error) {
	stores := do.MustInvoke[*Stores](i)
	return identity.NewService(stores.Accounts, do.MustInvoke[*identity.Tokens](i)), nil
}

func newVerifier(i do.Injector) (*identity.Verifier, error) {
	stores := do.MustInvoke[*Stores](i)
	return identity.NewVerifier(do.MustInvoke[*identity.Tokens](i), stores.Accounts), nil
}

func newRegistry(do.Injector) (*realtime.Registry, error) {
	return realtime.NewRegistry(), nil
}

func newHub(do.Injector) (*realtime.Hub, error) {
	return realtime.NewHub(), nil
}

func newRelay(i do.Injector) (*relay.Relay, error) {
	cfg := do.MustInvoke[*config.Config](i)
	stores := do.MustInvoke[*Stores](i)
	return relay.New(stores.Messages, do.MustInvoke[*realtime.Hub](i),
		relay.WithMaxLength(cfg.MaxMessageLength),
		relay.WithPublisher(do.MustInvoke[pubsub.Bus](i)),
	), nil
}

func newGateway(i do.Injector) (*realtime.Gateway, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return realtime.NewGateway(
		do.MustInvoke[*identity.Verifier](i),
		do.MustInvoke[*realtime.Registry](i),
		do.MustInvoke[*realtime.Hub](i),
		do.MustInvoke[*relay.Relay](i),
		realtime.WithOriginPatterns(cfg.OriginPatterns()),
		realtime.WithPingInterval(cfg.WSPingInterval),
		realtime.WithSendBuffer(cfg.WSSendBuffer),
		realtime.WithRateLimit(cfg.WSEventsPerSecond, cfg.WSEventBurst),
		realtime.WithPublisher(do.MustInvoke[pubsub.Bus](i)),
	), nil
}

func newAudit(do.Injector) (*audit.Logger, error) {
	return audit.New(slog.Default()), nil
}

func newServer(i do.Injector) (*server.Server, error) {
	stores := do.MustInvoke[*Stores](i)
	return server.New(server.Deps{
		Config:   do.MustInvoke[*config.Config](i),
		Accounts: stores.Accounts,
		Messages: stores.Messages,
		Ping:     stores.Ping,
		Bus:      do.MustInvoke[pubsub.Bus](i),
		Identity: do.MustInvoke[*identity.Service](i),
		Verifier: do.MustInvoke[*identity.Verifier](i),
		Hub:      do.MustInvoke[*realtime.Hub](i),
		Gateway:  do.MustInvoke[*realtime.Gateway](i),
		Relay:    do.MustInvoke[*relay.Relay](i),
		Audit:    do.MustInvoke[*audit.Logger](i),
	}), nil
}

// Run serves until ctx is canceled, then releases every service.
func Run(ctx context.Context, cfg *config.Config) error {
	injector := New(cfg)
	defer Shutdown(injector)

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	return srv.Start(ctx, cfg.ServerAddr)
}

// Shutdown releases the container's services and logs any that failed to stop.
func Shutdown(injector *do.RootScope) {
	report := injector.Shutdown()
	if report != nil && !report.Succeed {
		for svc, err := range report.Errors {
			slog.Error("Service failed to shut down", "service", svc.Service, "error", err)
		}
	}
}
