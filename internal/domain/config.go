package domain

// Config holds the complete Falcon configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Decision holds the eligibility engine parameters
	Decision DecisionConfig `json:"decision"`

	// Notify holds notification dispatch limits
	Notify NotifyConfig `json:"notify"`

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

// DecisionConfig holds the parameters of the card and loan eligibility
// engines. The defaults encode the bank's current product terms; every
// value can be overridden per deployment without touching engine code.
type DecisionConfig struct {
	// Shared
	MinSalary        float64 `json:"minSalary"`        // below this: validation error
	DBRRate          float64 `json:"dbrRate"`          // debt-burden ratio applied to salary
	ActiveWindowDays int     `json:"activeWindowDays"` // in-flight application lock window
	AppNoAttempts    int     `json:"appNoAttempts"`    // retries when drawing a unique application number

	// Card
	CardMinLimit       float64 `json:"cardMinLimit"`
	CardMaxLimit       float64 `json:"cardMaxLimit"`
	CardCapacityFactor float64 `json:"cardCapacityFactor"` // monthly capacity -> credit limit multiplier
	CardGoldThreshold  float64 `json:"cardGoldThreshold"`  // final limit at or above this earns GOLD

	// Loan
	LoanTenureMonths int     `json:"loanTenureMonths"`
	LoanFlatRate     float64 `json:"loanFlatRate"` // flat annual rate over the full tenure
	LoanMinPrincipal float64 `json:"loanMinPrincipal"`
	LoanMaxPrincipal float64 `json:"loanMaxPrincipal"`
}

// NotifyConfig holds notification dispatch limits.
type NotifyConfig struct {
	// MaxSendsPerHour caps campaign dispatches per clock hour, counted
	// across all callers. Zero disables the cap.
	MaxSendsPerHour int64 `json:"maxSendsPerHour"`
}

// DefaultNotifyConfig returns the standard dispatch limits.
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		MaxSendsPerHour: 100,
	}
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the production tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDecisionConfig returns the standard product terms.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		MinSalary:          4000,
		DBRRate:            0.15,
		ActiveWindowDays:   5,
		AppNoAttempts:      5,
		CardMinLimit:       2000,
		CardMaxLimit:       50000,
		CardCapacityFactor: 20,
		CardGoldThreshold:  17500,
		LoanTenureMonths:   60,
		LoanFlatRate:       0.16,
		LoanMinPrincipal:   10000,
		LoanMaxPrincipal:   300000,
	}
}

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
			Driver:     "sqlite",
			SQLitePath: "./falcon.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Decision: DefaultDecisionConfig(),
		Notify:   DefaultNotifyConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "falcon",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "falcon",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
