package pgportal

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kellerva/pgportal/internal/errhint"
	"github.com/kellerva/pgportal/internal/redact"
	"github.com/kellerva/pgportal/internal/sqlguard"
	"github.com/kellerva/pgportal/internal/timeout"
)

// Portal exposes a PostgreSQL database to an automated client, restricted
// to read-only statements unless insecure mode is enabled. All exported
// methods are safe for concurrent use from multiple goroutines.
type Portal struct {
	config    Config
	lifecycle *Lifecycle
	guard     *sqlguard.Checker
	timeouts  *timeout.Resolver
	masker    *redact.Masker
	hints     *errhint.Matcher
	logger    zerolog.Logger
}

// New validates config and assembles the engine. It does not touch the
// network; call Initialize (typically in a background goroutine) to connect.
// Panics on invalid static config, returns errors only for rule compilation.
func New(config Config, logger zerolog.Logger) (*Portal, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic("pgportal: " + err.Error())
	}

	guard := sqlguard.NewChecker(sqlguard.Config{
		MaxQueryLength: config.Query.MaxQueryLength,
		Insecure:       config.Insecure,
	}, logger)

	timeouts := timeout.NewResolver(timeout.Config{
		Default: config.Query.Timeout,
		Rules:   config.Query.TimeoutRules,
	})

	masker, err := redact.NewMasker(config.Redaction)
	if err != nil {
		return nil, err
	}
	hints, err := errhint.NewMatcher(config.ErrorHints)
	if err != nil {
		return nil, err
	}

	if config.Insecure {
		logger.Warn().Msg("insecure mode enabled: write statements will not be blocked")
	}

	return &Portal{
		config:    config,
		lifecycle: NewLifecycle(config, logger),
		guard:     guard,
		timeouts:  timeouts,
		masker:    masker,
		hints:     hints,
		logger:    logger,
	}, nil
}

// Initialize connects the pool (and tunnel, if configured). Safe to call
// concurrently; see Lifecycle.Initialize.
func (p *Portal) Initialize(ctx context.Context) error {
	return p.lifecycle.Initialize(ctx)
}

// Ready reports whether the pool is connected and probed.
func (p *Portal) Ready() bool {
	return p.lifecycle.Ready()
}

// Close releases the pool and the tunnel. Idempotent.
func (p *Portal) Close() {
	p.lifecycle.Close()
}
