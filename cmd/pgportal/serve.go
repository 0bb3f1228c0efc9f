package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	pgportal "github.com/kellerva/pgportal"
)

func runServe() error {
	ctx := context.Background()

	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(config.Logging)

	portal, err := pgportal.New(config.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create portal: %w", err)
	}
	defer portal.Close()

	// Connect in the background; tool calls arriving before the pool is
	// ready wait via the lifecycle manager instead of failing.
	go func() {
		if err := portal.Initialize(ctx); err != nil {
			logger.Error().Err(err).Msg("database initialization failed")
		}
	}()

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("pgportal", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	pgportal.RegisterMCPTools(mcpServer, portal)

	if config.Server.HTTPPort > 0 {
		return serveHTTP(mcpServer, config, logger)
	}

	logger.Info().Msg("starting pgportal server on stdio")
	return server.ServeStdio(mcpServer)
}

func serveHTTP(mcpServer *server.MCPServer, config *pgportal.ServerConfig, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", config.Server.HTTPPort)
	mux := http.NewServeMux()

	// Health endpoint reports process liveness only, not DB connectivity.
	if config.Server.HealthCheckPath != "" {
		mux.HandleFunc(config.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Start() does not register the handler when a custom *http.Server is
	// provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", config.Server.HTTPPort).Msg("starting pgportal server on HTTP")
	return streamableServer.Start(addr)
}

// loadConfig reads PGPORTAL_* variables. When the DB password is absent and
// stderr is a terminal, it is prompted instead of failing.
func loadConfig() (*pgportal.ServerConfig, error) {
	getenv := pgportal.Getenv(os.Getenv)
	if os.Getenv("PGPORTAL_DB_PASSWORD") == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		password := promptPassword("Database password: ")
		getenv = func(key string) string {
			if key == "PGPORTAL_DB_PASSWORD" {
				return password
			}
			return os.Getenv(key)
		}
	}
	return pgportal.FromEnv(getenv)
}

func setupLogger(config pgportal.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
