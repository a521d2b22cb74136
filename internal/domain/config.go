package domain

import "time"

// Config holds the complete Shrike configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines backing services
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Worker     WorkerConfig     `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// PipelineConfig holds matching pipeline settings.
type PipelineConfig struct {
	// TransferWindow is the trailing window the Transaction Oracle checks
	// when classifying ECBT vs ECBNT.
	TransferWindow time.Duration `json:"transferWindow"`

	// MaxIncidents caps incidents per ingest envelope.
	MaxIncidents int `json:"maxIncidents"`

	// IngestTimeout bounds a single ingest request end to end.
	IngestTimeout time.Duration `json:"ingestTimeout"`
}

// WorkerConfig holds async ingest worker settings.
type WorkerConfig struct {
	// Enabled starts the bus-fed ingest worker.
	Enabled bool `json:"enabled"`

	// MaxConcurrent bounds envelopes processed in parallel.
	MaxConcurrent int `json:"maxConcurrent"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the clustered tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// RoleCacheTTL is the staleness bound of the username -> role cache.
// Role changes may take up to this long to be observed.
const RoleCacheTTL = 5 * time.Minute

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:           "sqlite",
			SQLitePath:       "./shrike.db",
			StatementTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     RoleCacheTTL,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Pipeline: PipelineConfig{
			TransferWindow: 90 * 24 * time.Hour,
			MaxIncidents:   25,
			IngestTimeout:  60 * time.Second,
		},
		Worker: WorkerConfig{
			Enabled:       false,
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "shrike",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:           "postgres",
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresDB:       "shrike",
		PostgresSSLMode:  "disable",
		MaxOpenConns:     25,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		StatementTimeout: 30 * time.Second,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		LocalMaxSize:   10000,
		LocalTTL:       RoleCacheTTL,
		EnableTwoPhase: true,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	return cfg
}
