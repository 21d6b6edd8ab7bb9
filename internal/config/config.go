package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/territory-arbiter/internal/arbiter"
	"github.com/feral-file/territory-arbiter/internal/providers/jetstream"
	"github.com/feral-file/territory-arbiter/internal/session"
	"github.com/feral-file/territory-arbiter/internal/territory"
	"github.com/feral-file/territory-arbiter/internal/trust"
)

const (
	STORE_DRIVER_POSTGRES = "postgres"
	STORE_DRIVER_MEMORY   = "memory"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Driver selects the territory store: postgres or memory
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadHost        string        `mapstructure:"read_host"`
	ReadPort        int           `mapstructure:"read_port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// NATSConfig holds NATS JetStream configuration. An empty URL disables cross-instance fan-out.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	ConsumerName   string        `mapstructure:"consumer_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// Enabled reports whether a NATS server is configured
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// JetStream returns the JetStream provider configuration
func (c NATSConfig) JetStream() jetstream.Config {
	return jetstream.Config{
		URL:            c.URL,
		StreamName:     c.StreamName,
		ConsumerName:   c.ConsumerName,
		MaxReconnects:  c.MaxReconnects,
		ReconnectWait:  c.ReconnectWait,
		ConnectionName: c.ConnectionName,
		AckWait:        c.AckWait,
		MaxDeliver:     c.MaxDeliver,
		MaxAge:         c.MaxAge,
		PublishTimeout: c.PublishTimeout,
	}
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int      `mapstructure:"idle_timeout"`  // in seconds
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	WorkerPoolSize  int `mapstructure:"pool_size"`
	WorkerQueueSize int `mapstructure:"queue_size"`
}

// GeoConfig holds the spatial index configuration
type GeoConfig struct {
	Precision     int     `mapstructure:"precision"`
	MaxCoverCells int     `mapstructure:"max_cover_cells"`
	MaxRadius     float64 `mapstructure:"max_radius_meters"`
	DefaultRadius float64 `mapstructure:"default_radius_meters"`
	WarmPageSize  int     `mapstructure:"warm_page_size"`
}

// SessionConfig holds the per-user session tracking configuration
type SessionConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Tracker returns the tracker configuration
func (c SessionConfig) Tracker() session.Config {
	return session.Config{Capacity: c.Capacity, TTL: c.TTL}
}

// EventsConfig holds the in-process ownership event bus configuration
type EventsConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Geo        GeoConfig        `mapstructure:"geo"`
	Session    SessionConfig    `mapstructure:"session"`
	Trust      trust.Config     `mapstructure:"trust"`
	Territory  territory.Config `mapstructure:"territory"`
	Arbiter    arbiter.Config   `mapstructure:"arbiter"`
	Events     EventsConfig     `mapstructure:"events"`
}

// AbandonmentSweeperConfig holds configuration for the abandonment sweeper
type AbandonmentSweeperConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	ListTimeout   time.Duration `mapstructure:"list_timeout"`
	Worker        WorkerConfig  `mapstructure:"worker"`
}

// SweeperConfig holds configuration for the sweeper program
type SweeperConfig struct {
	BaseConfig         `mapstructure:",squash"`
	Database           DatabaseConfig           `mapstructure:"database"`
	NATS               NATSConfig               `mapstructure:"nats"`
	Territory          territory.Config         `mapstructure:"territory"`
	Arbiter            arbiter.Config           `mapstructure:"arbiter"`
	Events             EventsConfig             `mapstructure:"events"`
	AbandonmentSweeper AbandonmentSweeperConfig `mapstructure:"abandonment_sweeper"`
}

// SeederConfig holds configuration for the seeder program
type SeederConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Geo        GeoConfig      `mapstructure:"geo"`
	SeedPath   string         `mapstructure:"seed_path"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.allow_origins", []string{"*"})
	setDatabaseDefaults(v)
	setNATSDefaults(v, "territory-api")
	v.SetDefault("geo.precision", 6)
	v.SetDefault("geo.max_cover_cells", 256)
	v.SetDefault("geo.max_radius_meters", 5000)
	v.SetDefault("geo.default_radius_meters", 500)
	v.SetDefault("geo.warm_page_size", 1000)
	v.SetDefault("session.capacity", session.DEFAULT_CAPACITY)
	v.SetDefault("session.ttl", session.DEFAULT_TTL)
	v.SetDefault("session.sweep_interval", "1m")
	setTrustDefaults(v)
	setTerritoryDefaults(v)
	setArbiterDefaults(v)
	setEventsDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := cfg.Database.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Trust.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust config: %w", err)
	}
	if err := cfg.Arbiter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arbiter config: %w", err)
	}
	if cfg.Geo.MaxRadius <= 0 {
		return nil, errors.New("geo.max_radius_meters must be positive")
	}
	if cfg.Geo.DefaultRadius <= 0 || cfg.Geo.DefaultRadius > cfg.Geo.MaxRadius {
		return nil, errors.New("geo.default_radius_meters must be within (0, geo.max_radius_meters]")
	}

	return &cfg, nil
}

// LoadSweeperConfig loads configuration for the sweeper program
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	setNATSDefaults(v, "territory-sweeper")
	setTerritoryDefaults(v)
	setArbiterDefaults(v)
	setEventsDefaults(v)
	v.SetDefault("abandonment_sweeper.batch_size", 100)
	v.SetDefault("abandonment_sweeper.cycle_interval", "15m")
	v.SetDefault("abandonment_sweeper.list_timeout", "2m")
	v.SetDefault("abandonment_sweeper.worker.pool_size", 10)
	v.SetDefault("abandonment_sweeper.worker.queue_size", 100)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := cfg.Database.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Arbiter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arbiter config: %w", err)
	}
	if cfg.Territory.AbandonAfter <= 0 {
		return nil, errors.New("territory.abandon_after must be positive")
	}

	return &cfg, nil
}

// LoadSeederConfig loads configuration for the seeder program
func LoadSeederConfig(configFile string, envPath string) (*SeederConfig, error) {
	v := configureViper("seeder", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	v.SetDefault("geo.precision", 6)
	v.SetDefault("seed_path", "config/territories.yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg SeederConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Database.validate(); err != nil {
		return nil, err
	}
	if cfg.SeedPath == "" {
		return nil, errors.New("seed_path is required")
	}

	return &cfg, nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", STORE_DRIVER_POSTGRES)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setNATSDefaults(v *viper.Viper, connectionName string) {
	v.SetDefault("nats.stream_name", "TERRITORY_OWNERSHIP")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", connectionName)
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.max_deliver", 5)
	v.SetDefault("nats.max_age", "24h")
	v.SetDefault("nats.publish_timeout", "30s")
}

func setTrustDefaults(v *viper.Viper) {
	d := trust.DefaultConfig()
	v.SetDefault("trust.claim_threshold", d.ClaimThreshold)
	v.SetDefault("trust.reclaim_threshold", d.ReclaimThreshold)
	v.SetDefault("trust.activity_threshold", d.ActivityThreshold)
	v.SetDefault("trust.clean_step", d.CleanStep)
	v.SetDefault("trust.penalty_factor", d.PenaltyFactor)
	v.SetDefault("trust.speed_limit_mps", d.SpeedLimitMetersPerSecond)
	v.SetDefault("trust.speed_consecutive_reports", d.SpeedConsecutiveReports)
	v.SetDefault("trust.teleport_min_interval", d.TeleportMinInterval)
	v.SetDefault("trust.teleport_jitter_meters", d.TeleportJitterMeters)
	v.SetDefault("trust.max_clock_skew", d.MaxClockSkew)
	v.SetDefault("trust.poor_accuracy_meters", d.PoorAccuracyMeters)
	v.SetDefault("trust.accuracy_credit_cap_meters", d.AccuracyCreditCapMeters)
	v.SetDefault("trust.min_confidence", d.MinConfidence)
}

func setTerritoryDefaults(v *viper.Viper) {
	v.SetDefault("territory.grace_period", territory.DEFAULT_GRACE_PERIOD)
	v.SetDefault("territory.abandon_after", territory.DEFAULT_ABANDON_AFTER)
}

func setArbiterDefaults(v *viper.Viper) {
	d := arbiter.DefaultConfig()
	v.SetDefault("arbiter.max_retries", d.MaxRetries)
	v.SetDefault("arbiter.retry_initial_interval", d.RetryInitialInterval)
	v.SetDefault("arbiter.retry_max_interval", d.RetryMaxInterval)
	v.SetDefault("arbiter.idempotency_window", d.IdempotencyWindow)
	v.SetDefault("arbiter.idempotency_cache_size", d.IdempotencyCacheSize)
	v.SetDefault("arbiter.timeout", d.Timeout)
}

func setEventsDefaults(v *viper.Viper) {
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.drain_timeout", "5s")
}

func (c *DatabaseConfig) validate() error {
	switch c.Driver {
	case STORE_DRIVER_MEMORY:
		return nil
	case STORE_DRIVER_POSTGRES:
		if c.Host == "" {
			return errors.New("database.host is required")
		}
		if c.DBName == "" {
			return errors.New("database.dbname is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Driver)
	}
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/sweeper/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("TERRITORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars binds every known key so Unmarshal sees values that only exist in the environment
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"seed_path",
		// Database
		"database.driver",
		"database.host",
		"database.port",
		"database.read_host",
		"database.read_port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.consumer_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		"nats.max_age",
		"nats.publish_timeout",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		"server.allow_origins",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Geo
		"geo.precision",
		"geo.max_cover_cells",
		"geo.max_radius_meters",
		"geo.default_radius_meters",
		"geo.warm_page_size",
		// Session
		"session.capacity",
		"session.ttl",
		"session.sweep_interval",
		// Trust
		"trust.claim_threshold",
		"trust.reclaim_threshold",
		"trust.activity_threshold",
		"trust.clean_step",
		"trust.penalty_factor",
		"trust.speed_limit_mps",
		"trust.speed_consecutive_reports",
		"trust.teleport_min_interval",
		"trust.teleport_jitter_meters",
		"trust.max_clock_skew",
		"trust.poor_accuracy_meters",
		"trust.accuracy_credit_cap_meters",
		"trust.min_confidence",
		// Territory
		"territory.grace_period",
		"territory.abandon_after",
		// Arbiter
		"arbiter.max_retries",
		"arbiter.retry_initial_interval",
		"arbiter.retry_max_interval",
		"arbiter.idempotency_window",
		"arbiter.idempotency_cache_size",
		"arbiter.timeout",
		// Events
		"events.buffer_size",
		"events.drain_timeout",
		// Abandonment sweeper
		"abandonment_sweeper.batch_size",
		"abandonment_sweeper.cycle_interval",
		"abandonment_sweeper.list_timeout",
		"abandonment_sweeper.worker.pool_size",
		"abandonment_sweeper.worker.queue_size",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads the .env files of a service, later files overriding earlier ones
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot moves to the closest parent directory holding config/
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the PostgreSQL connection string of the primary
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ReadDSN returns the PostgreSQL connection string of the read replica
func (c *DatabaseConfig) ReadDSN() string {
	port := c.ReadPort
	if port == 0 {
		port = c.Port
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.ReadHost, port, c.User, c.Password, c.DBName, c.SSLMode)
}
