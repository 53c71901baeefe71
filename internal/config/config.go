package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Auth      AuthConfig
	Payments  PaymentsConfig
	Webhook   WebhookConfig
	Sweeper   SweeperConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

// RabbitMQConfig points at the notification broker. An empty URL disables
// publishing and notifications are only logged.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// AuthConfig covers bearer token verification and the collaborator services
// called with the service token.
type AuthConfig struct {
	JWTKey        string
	Issuer        string
	UsersURL      string
	CatalogURL    string
	ServiceToken  string
	RemoteTimeout time.Duration
}

// PaymentsConfig configures the payment provider, the credential vault and
// the authorization flow that links the seller account.
type PaymentsConfig struct {
	BaseURL           string
	AuthURL           string
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	NotificationURL   string
	BackURL           string
	Currency          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	SellerEmail       string
	VaultSecret       string
	StateKey          string
	StateTTL          time.Duration
}

type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	Window    time.Duration
	BatchSize int
}

const (
	defaultHTTPPort         = 8080
	defaultMetricsPath      = "/metrics"
	defaultShutdownGrace    = 15
	defaultMigrationsPath   = "migrations"
	defaultAutoMigrate      = true
	defaultServiceName      = "orderflow-api"
	defaultServiceVersion   = "0.1.0"
	defaultEnvironment      = "development"
	defaultLogLevel         = "info"
	defaultOTelSampleRate   = 1.0
	defaultExchange         = "orderflow.notifications"
	defaultRemoteTimeout    = 5 * time.Second
	defaultProviderTimeout  = 10 * time.Second
	defaultProviderRPS      = 10.0
	defaultProviderBurst    = 5
	defaultCurrency         = "ARS"
	defaultStateTTL         = 10 * time.Minute
	defaultWebhookTolerance = 5 * time.Minute
	defaultSweepInterval    = 5 * time.Minute
	defaultSweepWindow      = 30 * time.Minute
	defaultSweepBatchSize   = 200
)

// Load reads configuration from environment variables, applying defaults when
// needed. Values from a .env file in the working directory are used for keys
// not already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	authCfg, err := loadAuthConfig()
	if err != nil {
		return nil, fmt.Errorf("loading auth config: %w", err)
	}

	paymentsCfg, err := loadPaymentsConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payments config: %w", err)
	}

	webhookCfg, err := loadWebhookConfig()
	if err != nil {
		return nil, fmt.Errorf("loading webhook config: %w", err)
	}

	sweeperCfg, err := loadSweeperConfig()
	if err != nil {
		return nil, fmt.Errorf("loading sweeper config: %w", err)
	}

	return &Config{
		HTTP:     httpCfg,
		Database: dbCfg,
		RabbitMQ: RabbitMQConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Exchange: getEnvOrDefault("RABBITMQ_EXCHANGE", defaultExchange),
		},
		Telemetry: telCfg,
		Service:   loadServiceConfig(),
		Auth:      authCfg,
		Payments:  paymentsCfg,
		Webhook:   webhookCfg,
		Sweeper:   sweeperCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		MetricsPath:   getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath),
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadAuthConfig() (AuthConfig, error) {
	key := os.Getenv("AUTH_JWT_KEY")
	if key == "" {
		return AuthConfig{}, errors.New("AUTH_JWT_KEY is required")
	}

	timeout, err := getDurationEnv("REMOTE_TIMEOUT", defaultRemoteTimeout)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		JWTKey:        key,
		Issuer:        os.Getenv("AUTH_JWT_ISSUER"),
		UsersURL:      os.Getenv("USERS_SERVICE_URL"),
		CatalogURL:    os.Getenv("CATALOG_SERVICE_URL"),
		ServiceToken:  os.Getenv("SERVICE_TOKEN"),
		RemoteTimeout: timeout,
	}, nil
}

func loadPaymentsConfig() (PaymentsConfig, error) {
	timeout, err := getDurationEnv("PAYMENT_PROVIDER_TIMEOUT", defaultProviderTimeout)
	if err != nil {
		return PaymentsConfig{}, err
	}

	rps := defaultProviderRPS
	if value, ok := os.LookupEnv("PAYMENT_PROVIDER_RPS"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return PaymentsConfig{}, fmt.Errorf("invalid PAYMENT_PROVIDER_RPS: %w", err)
		}
		rps = parsed
	}

	burst, err := getIntEnv("PAYMENT_PROVIDER_BURST", defaultProviderBurst)
	if err != nil {
		return PaymentsConfig{}, err
	}

	stateTTL, err := getDurationEnv("PAYMENT_OAUTH_STATE_TTL", defaultStateTTL)
	if err != nil {
		return PaymentsConfig{}, err
	}

	secret := os.Getenv("PAYMENT_VAULT_SECRET")
	if secret == "" {
		return PaymentsConfig{}, errors.New("PAYMENT_VAULT_SECRET is required")
	}

	return PaymentsConfig{
		BaseURL:           getEnvOrDefault("PAYMENT_PROVIDER_BASE_URL", "https://api.mercadopago.com"),
		AuthURL:           getEnvOrDefault("PAYMENT_PROVIDER_AUTH_URL", "https://auth.mercadopago.com"),
		ClientID:          os.Getenv("PAYMENT_PROVIDER_CLIENT_ID"),
		ClientSecret:      os.Getenv("PAYMENT_PROVIDER_CLIENT_SECRET"),
		RedirectURI:       os.Getenv("PAYMENT_PROVIDER_REDIRECT_URI"),
		NotificationURL:   os.Getenv("PAYMENT_PROVIDER_NOTIFICATION_URL"),
		BackURL:           os.Getenv("PAYMENT_PROVIDER_BACK_URL"),
		Currency:          getEnvOrDefault("PAYMENT_CURRENCY", defaultCurrency),
		Timeout:           timeout,
		RequestsPerSecond: rps,
		Burst:             burst,
		SellerEmail:       os.Getenv("SELLER_EMAIL"),
		VaultSecret:       secret,
		StateKey:          getEnvOrDefault("PAYMENT_OAUTH_STATE_KEY", secret),
		StateTTL:          stateTTL,
	}, nil
}

func loadWebhookConfig() (WebhookConfig, error) {
	tolerance, err := getDurationEnv("WEBHOOK_TOLERANCE", defaultWebhookTolerance)
	if err != nil {
		return WebhookConfig{}, err
	}

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		return WebhookConfig{}, errors.New("WEBHOOK_SECRET is required")
	}

	return WebhookConfig{Secret: secret, Tolerance: tolerance}, nil
}

func loadSweeperConfig() (SweeperConfig, error) {
	interval, err := getDurationEnv("SWEEP_INTERVAL", defaultSweepInterval)
	if err != nil {
		return SweeperConfig{}, err
	}
	window, err := getDurationEnv("SWEEP_WINDOW", defaultSweepWindow)
	if err != nil {
		return SweeperConfig{}, err
	}
	batch, err := getIntEnv("SWEEP_BATCH_SIZE", defaultSweepBatchSize)
	if err != nil {
		return SweeperConfig{}, err
	}

	return SweeperConfig{
		Enabled:   getBoolEnv("SWEEP_ENABLED", true),
		Interval:  interval,
		Window:    window,
		BatchSize: batch,
	}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "orderflow")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
