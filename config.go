package trackserver

import "time"

// Config consolidates the settings this server needs: the two required
// inputs from §6 (BackendStoreURI, DefaultArtifactRoot) plus the ambient
// database/query/transaction/logging knobs the teacher carries for every
// deployment.
type Config struct {
	BackendStoreURI     string            `json:"backendStoreUri"`
	DefaultArtifactRoot string            `json:"defaultArtifactRoot"`
	Database            DatabaseConfig    `json:"database"`
	Query               QueryConfig       `json:"query"`
	Transaction         TransactionConfig `json:"transaction"`
	Logging             LoggingConfig     `json:"logging"`
}

// DatabaseConfig contains connection-pool settings for the networked backend.
type DatabaseConfig struct {
	MaxConnections  int           `json:"maxConnections"`
	MinConnections  int           `json:"minConnections"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	ConnectTimeout  time.Duration `json:"connectTimeout"`
}

// QueryConfig contains query-execution settings.
type QueryConfig struct {
	DefaultTimeout time.Duration `json:"defaultTimeout"`
	// DefaultMaxResults records the unbounded max_results default (-1). The
	// store does not read this field: search_experiments uses -1 directly
	// whenever the caller omits max_results.
	DefaultMaxResults int64 `json:"defaultMaxResults"`
}

// TransactionConfig holds settings for the composite-write transaction used
// by create_experiment (INSERT, capture id, UPDATE artifact_location, all in
// one transaction). The stores do not read it: both begin that transaction
// with the driver's default options.
type TransactionConfig struct {
	DefaultTimeout  time.Duration `json:"defaultTimeout"`
	IsolationLevel  string        `json:"isolationLevel"`
}

// LoggingConfig holds logger settings. cmd/server does not read it: it
// builds its logger with zap.NewProduction().
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"` // "json" or "console"
	EnableStructured bool   `json:"enableStructured"`
	LogQueries       bool   `json:"logQueries"`
}

// DefaultConfig returns a configuration with the teacher's style of sane
// production defaults; BackendStoreURI and DefaultArtifactRoot are left
// empty since §6 requires callers to supply both.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConnections:  25,
			MinConnections:  2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		Query: QueryConfig{
			DefaultTimeout:    30 * time.Second,
			DefaultMaxResults: -1,
		},
		Transaction: TransactionConfig{
			DefaultTimeout: 30 * time.Second,
			IsolationLevel: "READ_COMMITTED",
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			EnableStructured: true,
			LogQueries:       false,
		},
	}
}

// Validate checks the configuration for the invariants this server depends
// on at startup (§6: "Both are required").
func (c *Config) Validate() error {
	if c.BackendStoreURI == "" {
		return &ConfigError{Field: "backendStoreUri", Message: "must be set"}
	}
	if c.DefaultArtifactRoot == "" {
		return &ConfigError{Field: "defaultArtifactRoot", Message: "must be set"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
