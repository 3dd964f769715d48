package config

import "github.com/kelseyhightower/envconfig"

type GatewayConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DB pool rails; acquisition beyond the cap surfaces as 503.
	DBPoolMaxConns        int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns        int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBPoolMaxConnIdleTime string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	DBPoolAcquireTimeout  string `envconfig:"DB_POOL_ACQUIRE_TIMEOUT" default:"5s"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Media resolution.
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL"`
	StaticDir       string `envconfig:"STATIC_DIR" default:"./static"`
	MaxDataURIBytes int64  `envconfig:"MAX_DATA_URI_BYTES" default:"10485760"`

	DefaultCountryCode string `envconfig:"DEFAULT_COUNTRY_CODE" default:"55"`
	DefaultTenantSlug  string `envconfig:"DEFAULT_TENANT_SLUG" default:"captar"`

	OptInEnforcement bool `envconfig:"OPTIN_ENFORCEMENT" default:"false"`

	// AES-256 key (hex or raw 32 bytes) for credentials at rest. Absent means
	// plaintext storage, acceptable only for dev.
	CredentialKey string `envconfig:"CREDENTIAL_KEY"`

	// Instance-manager defaults and co-location hints for base-URL rewriting.
	EvolutionBaseURL       string `envconfig:"EVOLUTION_BASE_URL"`
	EvolutionContainerHost string `envconfig:"EVOLUTION_CONTAINER_HOST" default:"evolution-api"`
	EvolutionHostPort      string `envconfig:"EVOLUTION_HOST_PORT" default:"8080"`

	HTTPTimeout string `envconfig:"HTTP_TIMEOUT" default:"30s"`

	RateRPS   float64 `envconfig:"RATE_RPS" default:"10"`
	RateBurst int     `envconfig:"RATE_BURST" default:"20"`
}

func LoadGateway() GatewayConfig {
	var cfg GatewayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
