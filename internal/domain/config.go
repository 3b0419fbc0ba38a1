package domain

import "time"

// Config holds the complete PaySentry configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Risk intelligence core
	Risk        RiskConfig       `json:"risk"`
	Geo         GeoConfig        `json:"geo"`
	Suggestions SuggestionConfig `json:"suggestions"`

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
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"` // OTLP gRPC host:port
}

// RiskConfig parameterises the address parser and risk classifier.
type RiskConfig struct {
	// PaymentScheme is the only URI scheme accepted by the parser.
	PaymentScheme string `json:"paymentScheme"`

	TrustedHandles     []string `json:"trustedHandles"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`

	// Score boundaries: below ModerateThreshold is safe,
	// at or above RiskyThreshold is risky.
	ModerateThreshold int `json:"moderateThreshold"`
	RiskyThreshold    int `json:"riskyThreshold"`

	// RiskCacheTTL bounds how long a classification is cached per identifier.
	RiskCacheTTL time.Duration `json:"riskCacheTtl"`
}

// LevelFor derives the risk level for a score.
func (c RiskConfig) LevelFor(score int) RiskLevel {
	switch {
	case score >= c.RiskyThreshold:
		return RiskRisky
	case score >= c.ModerateThreshold:
		return RiskModerate
	default:
		return RiskSafe
	}
}

// GeoConfig parameterises the geo anomaly detector.
type GeoConfig struct {
	// DefaultThresholdKm applies when travel mode is off.
	DefaultThresholdKm float64 `json:"defaultThresholdKm"`

	// TravelThresholdKm applies in travel mode when the user has not set one.
	TravelThresholdKm float64 `json:"travelThresholdKm"`

	// CentroidWindow is how many recent locations form the usual area.
	CentroidWindow int `json:"centroidWindow"`

	// HistoryLimit is how many location records are loaded per check.
	HistoryLimit int `json:"historyLimit"`
}

// SuggestionConfig parameterises the suggestion engine.
type SuggestionConfig struct {
	FavoriteTriggerCount int `json:"favoriteTriggerCount"`

	HighAmountThreshold    float64 `json:"highAmountThreshold"`
	UnusualAmountThreshold float64 `json:"unusualAmountThreshold"`

	SafetyStreakWindow int `json:"safetyStreakWindow"`

	DiversificationMinScans     int `json:"diversificationMinScans"`
	DiversificationMinMerchants int `json:"diversificationMinMerchants"`

	ActiveUserMinScans int           `json:"activeUserMinScans"`
	ActiveUserWindow   int           `json:"activeUserWindow"`
	ActiveUserSpan     time.Duration `json:"activeUserSpan"`

	// HistoryLimit is how many scans are loaded per evaluation.
	HistoryLimit int `json:"historyLimit"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultTrustedHandles are bank handles issued by major PSPs.
var DefaultTrustedHandles = []string{
	"oksbi", "okhdfcbank", "okicici", "okaxis", "ybl", "ibl", "axl",
	"paytm", "apl", "yapl", "ikwik", "freecharge", "jupiteraxis",
	"axisbank", "icici", "hdfcbank", "sbi", "kotak", "pnb", "barodampay",
}

// DefaultSuspiciousKeywords are words fraudsters put in identifiers to
// impersonate support desks or lure victims.
var DefaultSuspiciousKeywords = []string{
	"support", "kyc", "refund", "lottery", "prize", "winner", "helpdesk",
	"customercare", "cashback", "reward", "bonus", "verify", "claim", "official",
}

// DefaultRiskConfig returns classifier defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		PaymentScheme:      "upi",
		TrustedHandles:     append([]string(nil), DefaultTrustedHandles...),
		SuspiciousKeywords: append([]string(nil), DefaultSuspiciousKeywords...),
		ModerateThreshold:  30,
		RiskyThreshold:     60,
		RiskCacheTTL:       10 * time.Minute,
	}
}

// DefaultGeoConfig returns detector defaults.
func DefaultGeoConfig() GeoConfig {
	return GeoConfig{
		DefaultThresholdKm: 10,
		TravelThresholdKm:  100,
		CentroidWindow:     50,
		HistoryLimit:       200,
	}
}

// DefaultSuggestionConfig returns suggestion engine defaults.
func DefaultSuggestionConfig() SuggestionConfig {
	return SuggestionConfig{
		FavoriteTriggerCount:        3,
		HighAmountThreshold:         1000,
		UnusualAmountThreshold:      10000,
		SafetyStreakWindow:          10,
		DiversificationMinScans:     20,
		DiversificationMinMerchants: 5,
		ActiveUserMinScans:          50,
		ActiveUserWindow:            30,
		ActiveUserSpan:              7 * 24 * time.Hour,
		HistoryLimit:                500,
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
			SQLitePath: "./paysentry.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Risk:        DefaultRiskConfig(),
		Geo:         DefaultGeoConfig(),
		Suggestions: DefaultSuggestionConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "paysentry",
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
		PostgresDB:   "paysentry",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}
