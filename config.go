package pgportal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kellerva/pgportal/internal/errhint"
	"github.com/kellerva/pgportal/internal/redact"
	"github.com/kellerva/pgportal/internal/timeout"
	"github.com/kellerva/pgportal/internal/tunnel"
)

// Fixed query limits. Config zero values fall back to these.
const (
	// MaxQueryLength caps the raw statement length in characters.
	MaxQueryLength = 10000
	// MaxRows caps how many rows a single query may return.
	MaxRows = 1000
	// DefaultQueryTimeout bounds a single statement execution.
	DefaultQueryTimeout = 30 * time.Second
)

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"-"`
	MaxConns int    `json:"max_conns"`
	SSLMode  string `json:"sslmode"`
}

// QueryConfig holds query execution settings. Zero values take the fixed
// limit constants.
type QueryConfig struct {
	Timeout         time.Duration  `json:"timeout"`
	CatalogTimeout  time.Duration  `json:"catalog_timeout"`
	InitWaitTimeout time.Duration  `json:"init_wait_timeout"`
	MaxQueryLength  int            `json:"max_query_length"`
	MaxRows         int            `json:"max_rows"`
	TimeoutRules    []timeout.Rule `json:"timeout_rules"`
}

// Config is the engine configuration.
type Config struct {
	Connection ConnectionConfig `json:"connection"`
	Tunnel     tunnel.Config    `json:"tunnel"`
	Query      QueryConfig      `json:"query"`
	Redaction  []redact.Rule    `json:"redaction"`
	ErrorHints []errhint.Rule   `json:"error_hints"`

	// Insecure disables the read-only safety gate. Set once at startup,
	// read by every validation thereafter.
	Insecure bool `json:"insecure"`
}

// ServerConfig embeds Config and adds process-only settings for the CLI.
type ServerConfig struct {
	Config
	Logging LoggingConfig  `json:"logging"`
	Server  ServerSettings `json:"server"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stderr, stdout, or file path
}

// ServerSettings holds transport settings. HTTPPort 0 means stdio transport.
type ServerSettings struct {
	HTTPPort        int    `json:"http_port"`
	HealthCheckPath string `json:"health_check_path"`
}

// applyDefaults fills zero values from the fixed limits.
func (c *Config) applyDefaults() {
	if c.Connection.Port == 0 {
		c.Connection.Port = 5432
	}
	if c.Connection.MaxConns == 0 {
		c.Connection.MaxConns = 10
	}
	if c.Query.Timeout == 0 {
		c.Query.Timeout = DefaultQueryTimeout
	}
	if c.Query.CatalogTimeout == 0 {
		c.Query.CatalogTimeout = 10 * time.Second
	}
	if c.Query.InitWaitTimeout == 0 {
		c.Query.InitWaitTimeout = 30 * time.Second
	}
	if c.Query.MaxQueryLength == 0 {
		c.Query.MaxQueryLength = MaxQueryLength
	}
	if c.Query.MaxRows == 0 {
		c.Query.MaxRows = MaxRows
	}
	if c.Tunnel.Enabled {
		if c.Tunnel.TargetHost == "" {
			c.Tunnel.TargetHost = c.Connection.Host
		}
		if c.Tunnel.TargetPort == 0 {
			c.Tunnel.TargetPort = c.Connection.Port
		}
	}
}

// validate checks the contract a loaded config must honor. Called by New
// after applyDefaults.
func (c *Config) validate() error {
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection port must be in 1-65535, got %d", c.Connection.Port)
	}
	if c.Connection.MaxConns < 1 {
		return fmt.Errorf("max connections must be >= 1, got %d", c.Connection.MaxConns)
	}
	if c.Tunnel.Enabled {
		if err := c.Tunnel.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Getenv is the lookup used by FromEnv; injectable for tests.
type Getenv func(string) string

// FromEnv loads ServerConfig from PGPORTAL_* environment variables. Every
// missing required variable is reported together in a single error, before
// any initialization begins.
func FromEnv(getenv Getenv) (*ServerConfig, error) {
	var missing, invalid []string

	str := func(key string) string { return strings.TrimSpace(getenv(key)) }
	required := func(key string) string {
		v := str(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	num := func(key string, def int) int {
		v := str(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, fmt.Sprintf("%s=%q", key, v))
			return def
		}
		return n
	}
	boolean := func(key string) bool {
		v := strings.ToLower(str(key))
		return v == "true" || v == "1" || v == "yes"
	}

	cfg := &ServerConfig{}
	cfg.Connection = ConnectionConfig{
		Host:     required("PGPORTAL_DB_HOST"),
		Port:     num("PGPORTAL_DB_PORT", 5432),
		Database: required("PGPORTAL_DB_NAME"),
		User:     required("PGPORTAL_DB_USER"),
		Password: required("PGPORTAL_DB_PASSWORD"),
		MaxConns: num("PGPORTAL_DB_MAX_CONNECTIONS", 10),
		SSLMode:  str("PGPORTAL_DB_SSLMODE"),
	}
	cfg.Insecure = boolean("PGPORTAL_INSECURE")

	if boolean("PGPORTAL_SSH_ENABLED") {
		cfg.Tunnel = tunnel.Config{
			Enabled:        true,
			Host:           required("PGPORTAL_SSH_HOST"),
			Port:           num("PGPORTAL_SSH_PORT", 22),
			User:           required("PGPORTAL_SSH_USER"),
			Password:       str("PGPORTAL_SSH_PASSWORD"),
			PrivateKeyPath: str("PGPORTAL_SSH_KEY_PATH"),
			PrivateKey:     str("PGPORTAL_SSH_KEY"),
			TargetHost:     str("PGPORTAL_SSH_TARGET_HOST"),
			TargetPort:     num("PGPORTAL_SSH_TARGET_PORT", 0),
			LocalPort:      num("PGPORTAL_SSH_LOCAL_PORT", 0),
		}
	}

	cfg.Logging = LoggingConfig{
		Level:  str("PGPORTAL_LOG_LEVEL"),
		Format: str("PGPORTAL_LOG_FORMAT"),
		Output: str("PGPORTAL_LOG_OUTPUT"),
	}
	cfg.Server = ServerSettings{
		HTTPPort:        num("PGPORTAL_HTTP_PORT", 0),
		HealthCheckPath: str("PGPORTAL_HEALTH_PATH"),
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// ConnString builds a pgx key/value connection string.
func (c ConnectionConfig) ConnString() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("user=%s", c.User),
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", c.SSLMode))
	}
	return strings.Join(parts, " ")
}
