package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Billing      BillingConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TASKFOLIO_APP_ENV" required:"true"`
	Port         string `envconfig:"TASKFOLIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TASKFOLIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TASKFOLIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TASKFOLIO_DB_DSN"`
	Driver string `envconfig:"TASKFOLIO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TASKFOLIO_DB_HOST"`
	Port     int    `envconfig:"TASKFOLIO_DB_PORT" default:"5432"`
	User     string `envconfig:"TASKFOLIO_DB_USER"`
	Password string `envconfig:"TASKFOLIO_DB_PASSWORD"`
	Name     string `envconfig:"TASKFOLIO_DB_NAME"`
	SSLMode  string `envconfig:"TASKFOLIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TASKFOLIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TASKFOLIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TASKFOLIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TASKFOLIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for key, value := range map[string]string{
		"TASKFOLIO_DB_HOST": db.Host,
		"TASKFOLIO_DB_USER": db.User,
		"TASKFOLIO_DB_NAME": db.Name,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database config incomplete: set TASKFOLIO_DB_DSN or %s", strings.Join(missing, ", "))
	}

	db.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TASKFOLIO_REDIS_URL" required:"true"`
	Password     string        `envconfig:"TASKFOLIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"TASKFOLIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TASKFOLIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TASKFOLIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TASKFOLIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TASKFOLIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TASKFOLIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TASKFOLIO_FEATURE_AUTO_MIGRATE" default:"false"`
}

type BillingConfig struct {
	TrialLengthDays int `envconfig:"TASKFOLIO_TRIAL_LENGTH_DAYS" default:"14"`
}

// TrialLength returns the configured trial window, falling back to 14 days.
func (b BillingConfig) TrialLength() time.Duration {
	days := b.TrialLengthDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}

type StripeConfig struct {
	APIKey         string `envconfig:"TASKFOLIO_STRIPE_API_KEY"`
	Secret         string `envconfig:"TASKFOLIO_STRIPE_SECRET"`
	Env            string `envconfig:"TASKFOLIO_STRIPE_ENV" default:"test"`
	ProPriceID     string `envconfig:"TASKFOLIO_STRIPE_PRICE_ID_PRO"`
	StarterPriceID string `envconfig:"TASKFOLIO_STRIPE_PRICE_ID_STARTER"`
	PortalReturn   string `envconfig:"TASKFOLIO_STRIPE_PORTAL_RETURN_URL"`
	CheckoutOK     string `envconfig:"TASKFOLIO_STRIPE_CHECKOUT_SUCCESS_URL"`
	CheckoutCancel string `envconfig:"TASKFOLIO_STRIPE_CHECKOUT_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TASKFOLIO_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"TASKFOLIO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ScanTopic string `envconfig:"TASKFOLIO_PUBSUB_SCAN_TOPIC" default:"tf-file-scan-requests"`
}
