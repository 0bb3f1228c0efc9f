package pgportal

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kellerva/pgportal/internal/tunnel"
)

// DB is the slice of pool behavior the engine borrows per call. *pgxpool.Pool
// satisfies it directly; tests substitute in-memory fakes.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// forwarder is the tunnel behavior the lifecycle depends on.
type forwarder interface {
	LocalHost() string
	LocalPort() int
	Close()
}

// initState tracks the lifecycle state machine:
// NotStarted -> Initializing -> Ready, or Initializing -> Failed.
// Ready and Failed are terminal for a run; Close resets to NotStarted.
type initState int

const (
	stateNotStarted initState = iota
	stateInitializing
	stateReady
	stateFailed
)

// dialFunc opens the pool. Injectable for tests.
type dialFunc func(ctx context.Context, connString string, maxConns int) (DB, error)

// tunnelFunc stands up the tunnel. Injectable for tests.
type tunnelFunc func(config tunnel.Config, logger zerolog.Logger) (forwarder, error)

// Lifecycle owns the process-wide pool handle and its optional tunnel. All
// other components borrow the pool transiently per call; only Initialize
// writes it and only Close tears it down.
type Lifecycle struct {
	mu    sync.Mutex
	state initState
	// done is the shared initialization future: closed on transition to
	// Ready or Failed so every waiter observes the same outcome.
	done    chan struct{}
	initErr error

	pool DB
	tun  forwarder

	config Config
	dial   dialFunc
	openTn tunnelFunc
	logger zerolog.Logger
}

// NewLifecycle creates an idle lifecycle manager. Nothing is dialed until
// Initialize.
func NewLifecycle(config Config, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		config: config,
		dial:   dialPgxPool,
		openTn: openTunnel,
		logger: logger,
	}
}

func dialPgxPool(ctx context.Context, connString string, maxConns int) (DB, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	return pgxpool.NewWithConfig(ctx, poolConfig)
}

func openTunnel(config tunnel.Config, logger zerolog.Logger) (forwarder, error) {
	return tunnel.Open(config, logger)
}

// Initialize opens the tunnel (if configured), the pool, and probes
// liveness. Idempotent once Ready. Concurrent callers share one attempt:
// whichever call starts the work, every caller blocks on the same future
// and receives the same outcome. A failed attempt is not retried until
// Close resets the state.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case stateReady:
		l.mu.Unlock()
		return nil
	case stateFailed:
		err := l.initErr
		l.mu.Unlock()
		return err
	case stateInitializing:
		done := l.done
		l.mu.Unlock()
		<-done
		// Re-dispatch on the settled state: a concurrent Close may have
		// already torn down the attempt and reset to NotStarted.
		l.mu.Lock()
		defer l.mu.Unlock()
		switch l.state {
		case stateReady:
			return nil
		case stateFailed:
			return l.initErr
		default:
			return ErrNotInitialized
		}
	}
	l.state = stateInitializing
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	pool, tun, err := l.connect(ctx)

	l.mu.Lock()
	if err != nil {
		l.state = stateFailed
		l.initErr = err
	} else {
		l.state = stateReady
		l.pool = pool
		l.tun = tun
	}
	close(done)
	l.mu.Unlock()
	return err
}

// connect performs the ordered initialization steps. On any failure the
// tunnel, if already opened, is torn down before returning.
func (l *Lifecycle) connect(ctx context.Context) (DB, forwarder, error) {
	var tun forwarder
	conn := l.config.Connection

	if l.config.Tunnel.Enabled {
		t, err := l.openTn(l.config.Tunnel, l.logger)
		if err != nil {
			return nil, nil, &InitError{Step: "tunnel", Err: err}
		}
		tun = t
		conn.Host = t.LocalHost()
		conn.Port = t.LocalPort()
	}

	pool, err := l.dial(ctx, conn.ConnString(), conn.MaxConns)
	if err != nil {
		if tun != nil {
			tun.Close()
		}
		return nil, nil, &InitError{Step: "pool", Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if tun != nil {
			tun.Close()
		}
		return nil, nil, &InitError{Step: "probe", Err: err}
	}

	l.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Str("database", conn.Database).
		Bool("tunneled", tun != nil).
		Msg("database connection established")
	return pool, tun, nil
}

// PoolOrFail returns the pool immediately, or ErrNotInitialized. It never
// blocks; callers that tolerate the startup race use WaitForReady instead.
func (l *Lifecycle) PoolOrFail() (DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateReady {
		return nil, ErrNotInitialized
	}
	return l.pool, nil
}

// WaitForReady blocks until initialization settles or the timeout elapses.
// Called before Initialize it fails immediately with ErrInitNotStarted; this
// closes the startup race where a tool call arrives before the background
// initialization finishes.
func (l *Lifecycle) WaitForReady(timeout time.Duration) (DB, error) {
	l.mu.Lock()
	switch l.state {
	case stateReady:
		pool := l.pool
		l.mu.Unlock()
		return pool, nil
	case stateNotStarted:
		l.mu.Unlock()
		return nil, ErrInitNotStarted
	case stateFailed:
		err := l.initErr
		l.mu.Unlock()
		return nil, err
	}
	done := l.done
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return nil, &TimeoutError{Op: "waiting for database initialization", Limit: timeout}
	}

	// Re-check the state under the lock: a concurrent Close may have won
	// it first and reset the pool.
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case stateReady:
		return l.pool, nil
	case stateFailed:
		return nil, l.initErr
	default:
		return nil, ErrNotInitialized
	}
}

// Ready is a cheap non-blocking projection of the state.
func (l *Lifecycle) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateReady
}

// Close tears down the pool, then the tunnel, and resets the state so a
// later Initialize could run again. Idempotent. If an initialization is in
// flight, Close waits for it to settle first so neither resource is left
// half-closed.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	for l.state == stateInitializing {
		done := l.done
		l.mu.Unlock()
		<-done
		l.mu.Lock()
	}
	pool := l.pool
	tun := l.tun
	l.pool = nil
	l.tun = nil
	l.state = stateNotStarted
	l.done = nil
	l.initErr = nil
	l.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
	if tun != nil {
		tun.Close()
	}
}
