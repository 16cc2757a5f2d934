// Package config loads the validated, read-only operational parameters that
// every other NovaOS component consumes (spec §2 component 2, "Secrets &
// Config View").
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the full set of runtime parameters, loaded from environment
// variables the way the teacher's internal/config/config.go does it.
type Config struct {
	Mode string `env:"NOVAOS_MODE" envDefault:"pipeline"`

	Server ServerConfig
	KVS    KVSConfig
	Auth   AuthConfig
	Rate   RateConfig
	SSRF   SSRFConfig
	LLM    LLMConfig
	Sword  SwordConfig
	Reten  RetentionConfig
	Obs    ObservabilityConfig
	CORS   CORSConfig
	Prov   ProvidersConfig
}

// ServerConfig covers the HTTP surface this module owns: /healthz and
// /metrics in every mode, plus POST /v1/pipeline in pipeline mode.
type ServerConfig struct {
	Host               string        `env:"NOVAOS_HOST" envDefault:"0.0.0.0"`
	Port               int           `env:"NOVAOS_PORT" envDefault:"8080"`
	ShutdownTimeout    time.Duration `env:"NOVAOS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustProxy         bool          `env:"NOVAOS_TRUST_PROXY" envDefault:"false"`
	PipelineTimeout    time.Duration `env:"NOVAOS_PIPELINE_TIMEOUT" envDefault:"30s"`
}

// KVSConfig configures the substitutable key-value backend. The default
// implementation is Redis (teacher's internal/platform/redis.go).
type KVSConfig struct {
	Addr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	TLS          bool          `env:"REDIS_TLS" envDefault:"false"`
	KeyPrefix    string        `env:"REDIS_KEY_PREFIX" envDefault:"novaos:"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`

	// ArchiveDSN, when set, enables the Postgres-backed archive store used
	// by retention_enforcement's archive-then-delete branch (spec §4.10).
	ArchiveDSN string `env:"NOVAOS_ARCHIVE_DSN"`
}

// AuthConfig covers the ack-token / envelope-signing secrets (spec §4.3).
type AuthConfig struct {
	JWTSecret           string        `env:"NOVAOS_JWT_SECRET"`
	Issuer              string        `env:"NOVAOS_ISSUER" envDefault:"novaos"`
	Audience            string        `env:"NOVAOS_AUDIENCE" envDefault:"novaos-clients"`
	TokenExpiry         time.Duration `env:"NOVAOS_TOKEN_EXPIRY" envDefault:"15m"`
	AckSecretCurrent    string        `env:"NOVAOS_ACK_SECRET_CURRENT"`
	AckSecretPrevious   string        `env:"NOVAOS_ACK_SECRET_PREVIOUS"`
	AckTokenTTL         time.Duration `env:"NOVAOS_ACK_TOKEN_TTL" envDefault:"30m"`
	EncryptionKeyCurrent  string `env:"NOVAOS_ENC_KEY_CURRENT"`
	EncryptionKeyVersion  uint32 `env:"NOVAOS_ENC_KEY_VERSION" envDefault:"1"`
	EncryptionKeyPrevious string `env:"NOVAOS_ENC_KEY_PREVIOUS"`
}

// RateConfig carries the token-bucket rules referenced in spec §6.
type RateConfig struct {
	APIMaxTokens        int           `env:"NOVAOS_RL_API_MAX" envDefault:"60"`
	APIRefillPerSec     float64       `env:"NOVAOS_RL_API_REFILL" envDefault:"1"`
	SSRFMaxTokens       int           `env:"NOVAOS_RL_SSRF_MAX" envDefault:"20"`
	SSRFRefillPerSec    float64       `env:"NOVAOS_RL_SSRF_REFILL" envDefault:"0.5"`
	GoalCreationMax     int           `env:"NOVAOS_RL_GOAL_MAX" envDefault:"10"`
	GoalCreationRefill  float64       `env:"NOVAOS_RL_GOAL_REFILL" envDefault:"0.01"`
	SparkGenMax         int           `env:"NOVAOS_RL_SPARK_MAX" envDefault:"30"`
	SparkGenRefill      float64       `env:"NOVAOS_RL_SPARK_REFILL" envDefault:"0.1"`
	Multiplier          float64       `env:"NOVAOS_RL_MULTIPLIER" envDefault:"1.0"`
	Window              time.Duration `env:"NOVAOS_RL_WINDOW" envDefault:"1m"`
}

// SSRFConfig is consumed directly by internal/ssrf (spec §4.4, component 4).
type SSRFConfig struct {
	AllowedPorts        []int         `env:"NOVAOS_SSRF_PORTS" envSeparator:"," envDefault:"80,443"`
	ConnectTimeout      time.Duration `env:"NOVAOS_SSRF_CONNECT_TIMEOUT" envDefault:"3s"`
	ReadTimeout         time.Duration `env:"NOVAOS_SSRF_READ_TIMEOUT" envDefault:"5s"`
	MaxResponseBytes    int64         `env:"NOVAOS_SSRF_MAX_BYTES" envDefault:"1048576"`
	MaxRedirects        int           `env:"NOVAOS_SSRF_MAX_REDIRECTS" envDefault:"3"`
	AllowPrivate        bool          `env:"NOVAOS_SSRF_ALLOW_PRIVATE" envDefault:"false"`
	AllowLocalhost      bool          `env:"NOVAOS_SSRF_ALLOW_LOCALHOST" envDefault:"false"`
	ValidateCerts       bool          `env:"NOVAOS_SSRF_VALIDATE_CERTS" envDefault:"true"`
	PreventDNSRebinding bool          `env:"NOVAOS_SSRF_PREVENT_REBINDING" envDefault:"true"`
	BlockedDomains      []string      `env:"NOVAOS_SSRF_BLOCKED_DOMAINS" envSeparator:","`
	DNSTimeout          time.Duration `env:"NOVAOS_SSRF_DNS_TIMEOUT" envDefault:"2s"`
}

// LLMConfig selects and parameterizes the provider chain (spec §4.6).
type LLMConfig struct {
	Provider    string        `env:"NOVAOS_LLM_PROVIDER" envDefault:"mock"`
	Model       string        `env:"NOVAOS_LLM_MODEL" envDefault:"default"`
	Timeout     time.Duration `env:"NOVAOS_LLM_TIMEOUT" envDefault:"15s"`
	MaxTokens   int           `env:"NOVAOS_LLM_MAX_TOKENS" envDefault:"1024"`
	Temperature float64       `env:"NOVAOS_LLM_TEMPERATURE" envDefault:"0.7"`
	AnthropicAPIKey string    `env:"ANTHROPIC_API_KEY"`
}

// SwordConfig bounds the Goal/Quest/Step/Spark domain (spec §4.9).
type SwordConfig struct {
	MaxGoalsPerUser   int `env:"NOVAOS_SWORD_MAX_GOALS" envDefault:"100"`
	MaxActiveGoals    int `env:"NOVAOS_SWORD_MAX_ACTIVE_GOALS" envDefault:"20"`
	SparkMinMinutes   int `env:"NOVAOS_SWORD_SPARK_MIN_MIN" envDefault:"5"`
	SparkMaxMinutes   int `env:"NOVAOS_SWORD_SPARK_MAX_MIN" envDefault:"120"`
	SchedulingHourMin int `env:"NOVAOS_SWORD_SCHED_HOUR_MIN" envDefault:"7"`
	SchedulingHourMax int `env:"NOVAOS_SWORD_SCHED_HOUR_MAX" envDefault:"21"`
}

// RetentionConfig lists (pattern, days, archive) policies for the
// retention_enforcement job (spec §4.10).
type RetentionConfig struct {
	GoalDays   int `env:"NOVAOS_RETAIN_GOAL_DAYS" envDefault:"365"`
	QuestDays  int `env:"NOVAOS_RETAIN_QUEST_DAYS" envDefault:"180"`
	StepDays   int `env:"NOVAOS_RETAIN_STEP_DAYS" envDefault:"180"`
	SparkDays  int `env:"NOVAOS_RETAIN_SPARK_DAYS" envDefault:"7"`
	AuditDays  int `env:"NOVAOS_RETAIN_AUDIT_DAYS" envDefault:"90"`
	ArchiveOldAudit bool `env:"NOVAOS_RETAIN_ARCHIVE_AUDIT" envDefault:"true"`
}

// ObservabilityConfig covers logging/metrics/debug toggles.
type ObservabilityConfig struct {
	DebugMode       bool   `env:"NOVAOS_DEBUG" envDefault:"false"`
	RedactPII       bool   `env:"NOVAOS_REDACT_PII" envDefault:"true"`
	LogLevel        string `env:"NOVAOS_LOG_LEVEL" envDefault:"info"`
	LogFormat       string `env:"NOVAOS_LOG_FORMAT" envDefault:"json"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SlackBotToken   string `env:"NOVAOS_SLACK_BOT_TOKEN"`
	SlackEnabled    bool   `env:"NOVAOS_SLACK_ENABLED" envDefault:"false"`
	SlackChannel    string `env:"NOVAOS_SLACK_CHANNEL" envDefault:"#novaos-reminders"`
}

// CORSConfig sets the allowed origins of the CORS middleware on the
// pipeline-mode router.
type CORSConfig struct {
	AllowedOrigins []string `env:"NOVAOS_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// ProvidersConfig carries the live-data provider endpoints and freshness
// policies consumed by internal/providers and internal/evidence (spec
// §4.5, §2 components 6-7). Every fetch still goes through the SSRF Guard
// regardless of which host is configured here.
type ProvidersConfig struct {
	StockBaseURL    string        `env:"NOVAOS_PROVIDER_STOCK_URL" envDefault:"https://api.example.com/stocks"`
	StockAPIKey     string        `env:"NOVAOS_PROVIDER_STOCK_KEY"`
	FXBaseURL       string        `env:"NOVAOS_PROVIDER_FX_URL" envDefault:"https://api.example.com/fx"`
	FXAPIKey        string        `env:"NOVAOS_PROVIDER_FX_KEY"`
	CryptoBaseURL   string        `env:"NOVAOS_PROVIDER_CRYPTO_URL" envDefault:"https://api.example.com/crypto"`
	CryptoAPIKey    string        `env:"NOVAOS_PROVIDER_CRYPTO_KEY"`
	WeatherBaseURL  string        `env:"NOVAOS_PROVIDER_WEATHER_URL" envDefault:"https://api.example.com/weather"`
	WeatherAPIKey   string        `env:"NOVAOS_PROVIDER_WEATHER_KEY"`
	FetchTimeout    time.Duration `env:"NOVAOS_PROVIDER_FETCH_TIMEOUT" envDefault:"5s"`

	StockFreshness   time.Duration `env:"NOVAOS_FRESHNESS_STOCK" envDefault:"15m"`
	FXFreshness      time.Duration `env:"NOVAOS_FRESHNESS_FX" envDefault:"1h"`
	CryptoFreshness  time.Duration `env:"NOVAOS_FRESHNESS_CRYPTO" envDefault:"5m"`
	WeatherFreshness time.Duration `env:"NOVAOS_FRESHNESS_WEATHER" envDefault:"3h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the few hard range/length requirements spec §6 names
// explicitly; it is not a general schema validator (out of scope per §1).
func (c *Config) validate() error {
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwtSecret must be at least 32 chars")
	}
	if c.Auth.TokenExpiry < 60*time.Second {
		return fmt.Errorf("auth.tokenExpirySeconds must be >= 60")
	}
	if c.Rate.Multiplier < 0.1 || c.Rate.Multiplier > 10 {
		return fmt.Errorf("rate.multiplier must be in [0.1, 10]")
	}
	if c.SSRF.MaxRedirects < 0 || c.SSRF.MaxRedirects > 10 {
		return fmt.Errorf("ssrf.maxRedirects must be in [0, 10]")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2]")
	}
	if c.Sword.MaxGoalsPerUser < 1 || c.Sword.MaxGoalsPerUser > 100 {
		return fmt.Errorf("sword.maxGoalsPerUser must be in [1, 100]")
	}
	if c.Sword.MaxActiveGoals < 1 || c.Sword.MaxActiveGoals > 20 {
		return fmt.Errorf("sword.maxActiveGoals must be in [1, 20]")
	}
	switch c.Obs.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.logLevel must be one of debug,info,warn,error")
	}
	return nil
}

// ListenAddr returns the admin server's bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Snapshot returns the read-only view handed to pipeline components. It is
// a value copy so later config reloads cannot mutate state a gate already
// captured mid-request.
func (c *Config) Snapshot() SecretsView {
	return SecretsView{cfg: *c}
}

// SecretsView is the read-only, validated snapshot of operational
// parameters (spec §2 component 2). Components only ever see this, never
// the mutable *Config.
type SecretsView struct {
	cfg Config
}

func (v SecretsView) Server() ServerConfig               { return v.cfg.Server }
func (v SecretsView) KVS() KVSConfig                      { return v.cfg.KVS }
func (v SecretsView) Auth() AuthConfig                    { return v.cfg.Auth }
func (v SecretsView) Rate() RateConfig                    { return v.cfg.Rate }
func (v SecretsView) SSRF() SSRFConfig                    { return v.cfg.SSRF }
func (v SecretsView) LLM() LLMConfig                      { return v.cfg.LLM }
func (v SecretsView) Sword() SwordConfig                  { return v.cfg.Sword }
func (v SecretsView) Retention() RetentionConfig          { return v.cfg.Reten }
func (v SecretsView) Observability() ObservabilityConfig  { return v.cfg.Obs }
func (v SecretsView) CORS() CORSConfig                    { return v.cfg.CORS }
func (v SecretsView) Providers() ProvidersConfig          { return v.cfg.Prov }
