// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/hybrid-bridge/pkg/bridge"
)

const logPrefix = "config:LoadConfig"

// Config holds hybrid-bridge configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"hybrid-bridge"`
	// -1 retries forever
	COMMSMaxReconnects int `envconfig:"COMMS_MAX_RECONNECTS" default:"-1"`

	// Bridge subjects and call handling
	SubjectPrefix  string        `envconfig:"BRIDGE_SUBJECT_PREFIX" default:"bridge.v1"`
	RequestTimeout time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"25s"`
	ManifestFile   string        `envconfig:"BRIDGE_MANIFEST_FILE"`

	// Execution contexts
	DefaultThread   string `envconfig:"BRIDGE_DEFAULT_THREAD" default:"ui"`
	WorkerCount     int    `envconfig:"BRIDGE_WORKER_COUNT" default:"8"`
	WorkerQueueSize int    `envconfig:"BRIDGE_WORKER_QUEUE_SIZE" default:"1024"`
	UIQueueSize     int    `envconfig:"BRIDGE_UI_QUEUE_SIZE" default:"1024"`

	MockEnabled bool `envconfig:"BRIDGE_MOCK_ENABLED" default:"false"`
	LogPhases   bool `envconfig:"BRIDGE_LOG_PHASES" default:"false"`

	// Database (empty = in-memory storage)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP status endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Tracing (empty endpoint = disabled)
	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultThreadType parses DefaultThread. Only ui and worker are meaningful defaults.
func (c *Config) DefaultThreadType() bridge.ThreadType {
	if t := bridge.ParseThreadType(c.DefaultThread); t == bridge.ThreadWorker {
		return t
	}
	return bridge.ThreadUI
}

// TracingEnabled reports whether spans should be exported.
func (c *Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}

// ValidateForServe checks required config when running the bridge server.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - BRIDGE_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%s - BRIDGE_WORKER_COUNT must be positive", logPrefix)
	}
	if c.WorkerQueueSize <= 0 || c.UIQueueSize <= 0 {
		return fmt.Errorf("%s - BRIDGE_WORKER_QUEUE_SIZE and BRIDGE_UI_QUEUE_SIZE must be positive", logPrefix)
	}
	switch bridge.ParseThreadType(c.DefaultThread) {
	case bridge.ThreadUI, bridge.ThreadWorker:
	default:
		return fmt.Errorf("%s - BRIDGE_DEFAULT_THREAD %q must name the ui or worker context", logPrefix, c.DefaultThread)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
