package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
)

const ENV_PREFIX = "FF_LEDGER"

// knownNetworks are the network names whose settings can be supplied through the environment alone
var knownNetworks = []string{"mainnet", "sepolia", "base", "base_sepolia"}

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // e.g., "5m", "1h"
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // e.g., "10m", "30m"
}

// NATSConfig holds NATS JetStream configuration.
// An empty URL disables ledger notifications.
type NATSConfig struct {
	URL             string        `mapstructure:"url"`
	StreamName      string        `mapstructure:"stream_name"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName  string        `mapstructure:"connection_name"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// RedisConfig holds leaderboard Redis configuration.
// An empty Addr disables the leaderboard.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NetworkConfig holds the endpoint and contract of one network
type NetworkConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	ChainID         uint64 `mapstructure:"chain_id"`
}

// Chain returns the CAIP-2 identifier of the network
func (n NetworkConfig) Chain() domain.Chain {
	return domain.Chain(fmt.Sprintf("eip155:%d", n.ChainID))
}

// IngestorSettings tunes the marketplace ingestor
type IngestorSettings struct {
	BackfillWindow         uint64        `mapstructure:"backfill_window"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	HandlerRetryInterval   time.Duration `mapstructure:"handler_retry_interval"`
	HandlerRetryMaxElapsed time.Duration `mapstructure:"handler_retry_max_elapsed"`
	ResubscribeInterval    time.Duration `mapstructure:"resubscribe_interval"`
	RPCRequestsPerSecond   float64       `mapstructure:"rpc_requests_per_second"`
	MaxBlockRange          uint64        `mapstructure:"max_block_range"`
	BlockHeadTTL           time.Duration `mapstructure:"block_head_ttl"`
	BlockHeadStaleWindow   time.Duration `mapstructure:"block_head_stale_window"`
}

// LedgerSettings tunes the gamification ledger
type LedgerSettings struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ReconcilerSettings holds configuration for the reconciliation sweeper
type ReconcilerSettings struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	AuditLimit int           `mapstructure:"audit_limit"`
}

// ServerConfig holds ops server configuration
type ServerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// IngestorConfig holds configuration for marketplace-ingestor
type IngestorConfig struct {
	BaseConfig `mapstructure:",squash"`
	// Network selects the entry of Networks this process ingests
	Network    string                   `mapstructure:"network"`
	Networks   map[string]NetworkConfig `mapstructure:"networks"`
	Ingestor   IngestorSettings         `mapstructure:"ingestor"`
	Ledger     LedgerSettings           `mapstructure:"ledger"`
	Database   DatabaseConfig           `mapstructure:"database"`
	NATS       NATSConfig               `mapstructure:"nats"`
	Redis      RedisConfig              `mapstructure:"redis"`
	Reconciler ReconcilerSettings       `mapstructure:"reconciler"`
	Server     ServerConfig             `mapstructure:"server"`
}

// SelectedNetwork returns the settings of the selected network.
// Missing endpoint or contract are reported by the ingestor on start.
func (c *IngestorConfig) SelectedNetwork() (NetworkConfig, error) {
	network, ok := c.Networks[c.Network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: unknown network %q", domain.ErrEndpointUnresolved, c.Network)
	}
	return network, nil
}

// MigrateConfig holds configuration for the migrate program
type MigrateConfig struct {
	BaseConfig     `mapstructure:",squash"`
	Database       DatabaseConfig `mapstructure:"database"`
	MigrationsPath string         `mapstructure:"migrations_path"`
}

// LoadIngestorConfig loads configuration for marketplace-ingestor
func LoadIngestorConfig(configFile string, envPath string) (*IngestorConfig, error) {
	v := configureViper("marketplace-ingestor", configFile, envPath)

	// Set defaults
	v.SetDefault("network", "sepolia")
	v.SetDefault("networks.mainnet.chain_id", 1)
	v.SetDefault("networks.sepolia.chain_id", 11155111)
	v.SetDefault("networks.base.chain_id", 8453)
	v.SetDefault("networks.base_sepolia.chain_id", 84532)
	v.SetDefault("ingestor.backfill_window", domain.DEFAULT_BACKFILL_WINDOW)
	v.SetDefault("ingestor.poll_interval", "12s")
	v.SetDefault("ingestor.handler_retry_interval", "500ms")
	v.SetDefault("ingestor.handler_retry_max_elapsed", "30s")
	v.SetDefault("ingestor.resubscribe_interval", "1s")
	v.SetDefault("ingestor.rpc_requests_per_second", 10)
	v.SetDefault("ingestor.max_block_range", 2000)
	v.SetDefault("ingestor.block_head_stale_window", "1m")
	v.SetDefault("ledger.operation_timeout", "30s")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("nats.stream_name", "MARKETPLACE_LEDGER")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connection_name", "marketplace-ingestor")
	v.SetDefault("nats.duplicate_window", "2m")
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "5m")
	v.SetDefault("reconciler.audit_limit", 100)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg IngestorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}

	return &cfg, nil
}

// LoadMigrateConfig loads configuration for the migrate program
func LoadMigrateConfig(configFile string, envPath string) (*MigrateConfig, error) {
	v := configureViper("migrate", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("migrations_path", "db/migrations")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg MigrateConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}

	return &cfg, nil
}

// readConfig reads the config file; a missing file leaves configuration to the environment
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
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
		// 2. Service-specific directory (e.g., cmd/marketplace-ingestor/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		"debug",
		"sentry_dsn",
		"network",
		// Database
		"database.host",
		"database.port",
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
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.duplicate_window",
		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		// Ingestor
		"ingestor.backfill_window",
		"ingestor.poll_interval",
		"ingestor.handler_retry_interval",
		"ingestor.handler_retry_max_elapsed",
		"ingestor.resubscribe_interval",
		"ingestor.rpc_requests_per_second",
		"ingestor.max_block_range",
		"ingestor.block_head_ttl",
		"ingestor.block_head_stale_window",
		// Ledger
		"ledger.operation_timeout",
		// Reconciler
		"reconciler.enabled",
		"reconciler.interval",
		"reconciler.audit_limit",
		// Server
		"server.enabled",
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Migrate
		"migrations_path",
	}

	for _, network := range knownNetworks {
		commonKeys = append(commonKeys,
			fmt.Sprintf("networks.%s.rpc_url", network),
			fmt.Sprintf("networks.%s.contract_address", network),
			fmt.Sprintf("networks.%s.chain_id", network),
		)
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
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

// ChdirRepoRoot changes the current working directory to the repository root
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

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the database connection string in URL form, as expected by migrate
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
