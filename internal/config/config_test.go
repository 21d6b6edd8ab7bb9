package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	if content == "" {
		return filepath.Join(tmpDir, "nonexistent.yaml")
	}
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0600))
	return configFile
}

func TestLoadAPIConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *APIConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5
  allow_origins:
    - "https://game.example.com"
database:
  host: localhost
  port: 5433
  read_host: replica
  user: testuser
  password: testpass
  dbname: territories
  sslmode: require
nats:
  url: "nats://localhost:4222"
  consumer_name: "api-1"
  publish_timeout: "10s"
auth:
  jwt_public_key: "-----BEGIN PUBLIC KEY-----"
  api_keys:
    - ops-key
geo:
  precision: 7
  max_radius_meters: 2000
  default_radius_meters: 250
session:
  capacity: 30
  ttl: "10m"
trust:
  claim_threshold: 45
  reclaim_threshold: 75
  teleport_min_interval: "2s"
territory:
  grace_period: "10m"
  abandon_after: "72h"
arbiter:
  max_retries: 5
  idempotency_window: "5m"
events:
  buffer_size: 64
`,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 5, cfg.Server.ReadTimeout)
				assert.Equal(t, []string{"https://game.example.com"}, cfg.Server.AllowOrigins)
				assert.Equal(t, STORE_DRIVER_POSTGRES, cfg.Database.Driver)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, "replica", cfg.Database.ReadHost)
				assert.Equal(t, "territories", cfg.Database.DBName)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, "api-1", cfg.NATS.ConsumerName)
				assert.Equal(t, 10*time.Second, cfg.NATS.PublishTimeout)
				assert.Equal(t, []string{"ops-key"}, cfg.Auth.APIKeys)
				assert.Equal(t, 7, cfg.Geo.Precision)
				assert.Equal(t, 2000.0, cfg.Geo.MaxRadius)
				assert.Equal(t, 250.0, cfg.Geo.DefaultRadius)
				assert.Equal(t, 30, cfg.Session.Capacity)
				assert.Equal(t, 10*time.Minute, cfg.Session.Tracker().TTL)
				assert.Equal(t, 45, cfg.Trust.ClaimThreshold)
				assert.Equal(t, 75, cfg.Trust.ReclaimThreshold)
				assert.Equal(t, 2*time.Second, cfg.Trust.TeleportMinInterval)
				assert.Equal(t, 10*time.Minute, cfg.Territory.GracePeriod)
				assert.Equal(t, 72*time.Hour, cfg.Territory.AbandonAfter)
				assert.Equal(t, 5, cfg.Arbiter.MaxRetries)
				assert.Equal(t, 5*time.Minute, cfg.Arbiter.IdempotencyWindow)
				assert.Equal(t, 64, cfg.Events.BufferSize)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  dbname: territories
`,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.False(t, cfg.Debug)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 120, cfg.Server.IdleTimeout)
				assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Empty(t, cfg.NATS.URL)
				assert.Equal(t, "TERRITORY_OWNERSHIP", cfg.NATS.StreamName)
				assert.Equal(t, "2s", cfg.NATS.ReconnectWait.String())
				assert.Equal(t, 6, cfg.Geo.Precision)
				assert.Equal(t, 5000.0, cfg.Geo.MaxRadius)
				assert.Equal(t, 20, cfg.Session.Capacity)
				assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
				assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
				assert.Equal(t, 40, cfg.Trust.ClaimThreshold)
				assert.Equal(t, 70, cfg.Trust.ReclaimThreshold)
				assert.Equal(t, 0.5, cfg.Trust.PenaltyFactor)
				assert.Equal(t, 30*time.Second, cfg.Trust.MaxClockSkew)
				assert.Equal(t, 5*time.Minute, cfg.Territory.GracePeriod)
				assert.Equal(t, 7*24*time.Hour, cfg.Territory.AbandonAfter)
				assert.Equal(t, 3, cfg.Arbiter.MaxRetries)
				assert.Equal(t, 2*time.Minute, cfg.Arbiter.IdempotencyWindow)
				assert.Equal(t, 5*time.Second, cfg.Arbiter.Timeout)
				assert.Equal(t, 1024, cfg.Events.BufferSize)
				assert.Equal(t, 5*time.Second, cfg.Events.DrainTimeout)
			},
		},
		{
			name: "memory store needs no database host",
			configFile: `
database:
  driver: memory
`,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.Equal(t, STORE_DRIVER_MEMORY, cfg.Database.Driver)
				assert.Empty(t, cfg.Database.Host)
			},
		},
		{
			name: "missing database host",
			configFile: `
database:
  dbname: territories
`,
			expectError: true,
		},
		{
			name: "unknown store driver",
			configFile: `
database:
  driver: sqlite
`,
			expectError: true,
		},
		{
			name: "reclaim threshold below claim threshold",
			configFile: `
database:
  driver: memory
trust:
  claim_threshold: 60
  reclaim_threshold: 50
`,
			expectError: true,
		},
		{
			name: "default radius above max radius",
			configFile: `
database:
  driver: memory
geo:
  max_radius_meters: 100
  default_radius_meters: 500
`,
			expectError: true,
		},
		{
			name: "invalid yaml",
			configFile: `
				database:
				  host: localhost
				  port: invalid
			`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadAPIConfig(writeConfig(t, tt.configFile), t.TempDir())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadSweeperConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *SweeperConfig)
	}{
		{
			name: "valid config file",
			configFile: `
database:
  host: localhost
  dbname: territories
nats:
  url: "nats://localhost:4222"
territory:
  abandon_after: "48h"
abandonment_sweeper:
  batch_size: 25
  cycle_interval: "1m"
  worker:
    pool_size: 4
`,
			validate: func(t *testing.T, cfg *SweeperConfig) {
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, 48*time.Hour, cfg.Territory.AbandonAfter)
				assert.Equal(t, 25, cfg.AbandonmentSweeper.BatchSize)
				assert.Equal(t, time.Minute, cfg.AbandonmentSweeper.CycleInterval)
				assert.Equal(t, 4, cfg.AbandonmentSweeper.Worker.WorkerPoolSize)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  dbname: territories
`,
			validate: func(t *testing.T, cfg *SweeperConfig) {
				assert.Equal(t, 5, cfg.Database.MaxOpenConns)
				assert.Equal(t, 2, cfg.Database.MaxIdleConns)
				assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime)
				assert.Equal(t, "territory-sweeper", cfg.NATS.ConnectionName)
				assert.Equal(t, 7*24*time.Hour, cfg.Territory.AbandonAfter)
				assert.Equal(t, 100, cfg.AbandonmentSweeper.BatchSize)
				assert.Equal(t, 15*time.Minute, cfg.AbandonmentSweeper.CycleInterval)
				assert.Equal(t, 2*time.Minute, cfg.AbandonmentSweeper.ListTimeout)
				assert.Equal(t, 10, cfg.AbandonmentSweeper.Worker.WorkerPoolSize)
			},
		},
		{
			name: "missing database name",
			configFile: `
database:
  host: localhost
`,
			expectError: true,
		},
		{
			name: "non-positive abandon timeout",
			configFile: `
database:
  driver: memory
territory:
  abandon_after: "0s"
`,
			expectError: true,
		},
		{
			name:        "missing config file",
			configFile:  "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadSweeperConfig(writeConfig(t, tt.configFile), t.TempDir())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadSeederConfig(t *testing.T) {
	configFile := writeConfig(t, `
database:
  host: localhost
  dbname: territories
geo:
  precision: 5
seed_path: "testdata/territories.yaml"
`)

	cfg, err := LoadSeederConfig(configFile, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Geo.Precision)
	assert.Equal(t, "testdata/territories.yaml", cfg.SeedPath)
	assert.Equal(t, 5432, cfg.Database.Port)

	configFile = writeConfig(t, `
database:
  driver: memory
`)
	cfg, err = LoadSeederConfig(configFile, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "config/territories.yaml", cfg.SeedPath)
	assert.Equal(t, 6, cfg.Geo.Precision)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "complete config",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "testpass",
				DBName:   "testdb",
				SSLMode:  "require",
			},
			expected: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require",
		},
		{
			name: "with special characters in password",
			config: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Password: "p@ssw0rd!",
				DBName:   "testdb",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=testuser password=p@ssw0rd! dbname=testdb sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestDatabaseConfig_ReadDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "primary",
		Port:     5432,
		ReadHost: "replica",
		User:     "user",
		Password: "pass",
		DBName:   "db",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=replica port=5432 user=user password=pass dbname=db sslmode=disable", cfg.ReadDSN())

	cfg.ReadPort = 6432
	assert.Equal(t, "host=replica port=6432 user=user password=pass dbname=db sslmode=disable", cfg.ReadDSN())
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	envDir := filepath.Join(tmpDir, "env")
	require.NoError(t, os.MkdirAll(envDir, 0750))

	// Viper uses the TERRITORY_ prefix, so env vars need the prefix
	envVars := map[string]string{
		"TERRITORY_DEBUG":                   "true",
		"TERRITORY_DATABASE_HOST":           "env-host",
		"TERRITORY_DATABASE_PORT":           "6543",
		"TERRITORY_DATABASE_DBNAME":         "env-db",
		"TERRITORY_TRUST_CLAIM_THRESHOLD":   "35",
		"TERRITORY_TERRITORY_GRACE_PERIOD":  "90s",
		"TERRITORY_AUTH_API_KEYS":           "key-a,key-b",
		"TERRITORY_NATS_URL":                "nats://env:4222",
		"TERRITORY_SESSION_SWEEP_INTERVAL":  "30s",
		"TERRITORY_ARBITER_MAX_RETRIES":     "7",
		"TERRITORY_EVENTS_BUFFER_SIZE":      "32",
		"TERRITORY_GEO_MAX_RADIUS_METERS":   "3000",
		"TERRITORY_SERVER_PORT":             "9000",
		"TERRITORY_DATABASE_SSLMODE":        "require",
		"TERRITORY_NATS_CONSUMER_NAME":      "api-env",
		"TERRITORY_TRUST_RECLAIM_THRESHOLD": "80",
	}
	var envContent string
	for key, value := range envVars {
		envContent += key + "=" + value + "\n"
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env"), []byte(envContent), 0600))

	// The service-local file overrides the shared one
	require.NoError(t, os.WriteFile(filepath.Join(envDir, ".env.api.local"), []byte("TERRITORY_DATABASE_DBNAME=local-db\n"), 0600))

	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
database:
  host: file-host
  port: 5432
  dbname: file-db
  sslmode: disable
trust:
  claim_threshold: 50
`
	require.NoError(t, os.WriteFile(configPath, []byte(configFile), 0600))

	cfg, err := LoadAPIConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "local-db", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 35, cfg.Trust.ClaimThreshold)
	assert.Equal(t, 80, cfg.Trust.ReclaimThreshold)
	assert.Equal(t, 90*time.Second, cfg.Territory.GracePeriod)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Auth.APIKeys)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "api-env", cfg.NATS.ConsumerName)
	assert.Equal(t, 30*time.Second, cfg.Session.SweepInterval)
	assert.Equal(t, 7, cfg.Arbiter.MaxRetries)
	assert.Equal(t, 32, cfg.Events.BufferSize)
	assert.Equal(t, 3000.0, cfg.Geo.MaxRadius)
	assert.Equal(t, 9000, cfg.Server.Port)
}
