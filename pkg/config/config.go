package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Storage       StorageConfig
	Purchases     PurchasesConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"BEATSTORE_APP_ENV" required:"true"`
	Port            string        `envconfig:"BEATSTORE_APP_PORT" required:"true"`
	LogLevel        string        `envconfig:"BEATSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"BEATSTORE_LOG_WARN_STACK" default:"false"`
	LogFormat       string        `envconfig:"BEATSTORE_LOG_FORMAT" default:"json"`
	ReadTimeout     time.Duration `envconfig:"BEATSTORE_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"BEATSTORE_HTTP_WRITE_TIMEOUT" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"BEATSTORE_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
	CORSOrigins     []string      `envconfig:"BEATSTORE_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"BEATSTORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"BEATSTORE_DB_DSN"`
	// SlowQuery is the duration above which a statement is logged as a warning.
	SlowQuery time.Duration `envconfig:"BEATSTORE_DB_SLOW_QUERY" default:"500ms"`

	LegacyHost     string `envconfig:"BEATSTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"BEATSTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BEATSTORE_DB_USER"`
	LegacyPassword string `envconfig:"BEATSTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BEATSTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BEATSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEATSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEATSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEATSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEATSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEATSTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BEATSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"BEATSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEATSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEATSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEATSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEATSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEATSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEATSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"BEATSTORE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"BEATSTORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"BEATSTORE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"BEATSTORE_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BEATSTORE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BEATSTORE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BEATSTORE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BEATSTORE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BEATSTORE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"BEATSTORE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// RateLimitConfig throttles the rest of the API per user, or per IP when anonymous.
type RateLimitConfig struct {
	Limit  int           `envconfig:"BEATSTORE_API_RATE_LIMIT" default:"120"`
	Window time.Duration `envconfig:"BEATSTORE_API_RATE_LIMIT_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"BEATSTORE_AUTO_MIGRATE" default:"false"`
	AdminRegister bool `envconfig:"BEATSTORE_FEATURE_ADMIN_REGISTER" default:"false"`
}

type StripeConfig struct {
	APIKey   string        `envconfig:"BEATSTORE_STRIPE_API_KEY"`
	Secret   string        `envconfig:"BEATSTORE_STRIPE_SECRET"`
	Env      string        `envconfig:"BEATSTORE_STRIPE_ENV" default:"test"`
	Currency string        `envconfig:"BEATSTORE_STRIPE_CURRENCY" default:"usd"`
	Timeout  time.Duration `envconfig:"BEATSTORE_STRIPE_TIMEOUT" default:"10s"`
	// WebhookGuardTTL bounds how long the Redis fast path remembers event ids.
	WebhookGuardTTL time.Duration `envconfig:"BEATSTORE_STRIPE_WEBHOOK_GUARD_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type StorageConfig struct {
	Driver    string `envconfig:"BEATSTORE_STORAGE_DRIVER" default:"local"`
	LocalRoot string `envconfig:"BEATSTORE_STORAGE_LOCAL_ROOT" default:"media"`

	S3Bucket         string `envconfig:"BEATSTORE_S3_BUCKET"`
	S3Region         string `envconfig:"BEATSTORE_S3_REGION" default:"us-east-1"`
	S3Endpoint       string `envconfig:"BEATSTORE_S3_ENDPOINT"`
	S3AccessKeyID    string `envconfig:"BEATSTORE_S3_ACCESS_KEY_ID"`
	S3SecretKey      string `envconfig:"BEATSTORE_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle   bool   `envconfig:"BEATSTORE_S3_USE_PATH_STYLE" default:"false"`
	S3KeyPrefix      string `envconfig:"BEATSTORE_S3_KEY_PREFIX"`
	MaxPreviewSizeMB int    `envconfig:"BEATSTORE_STORAGE_MAX_PREVIEW_MB" default:"20"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverLocal:
		if strings.TrimSpace(s.LocalRoot) == "" {
			return fmt.Errorf("%s is required for the local storage driver", EnvStorageLocalRoot)
		}
	case StorageDriverS3:
		if strings.TrimSpace(s.S3Bucket) == "" {
			return fmt.Errorf("%s is required for the s3 storage driver", EnvS3Bucket)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	return nil
}

// HasS3 reports whether enough S3 settings exist to build a bucket client.
func (s StorageConfig) HasS3() bool {
	return strings.TrimSpace(s.S3Bucket) != ""
}

type PurchasesConfig struct {
	PendingTTL     time.Duration `envconfig:"BEATSTORE_PURCHASE_PENDING_TTL" default:"24h"`
	ReconcileBatch int           `envconfig:"BEATSTORE_PURCHASE_RECONCILE_BATCH" default:"100"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"BEATSTORE_CRON_INTERVAL" default:"15m"`
	LockTTL              time.Duration `envconfig:"BEATSTORE_CRON_LOCK_TTL" default:"10m"`
	UnprocessedEventsAge time.Duration `envconfig:"BEATSTORE_CRON_UNPROCESSED_EVENTS_AGE" default:"1h"`
	JobTimeout           time.Duration `envconfig:"BEATSTORE_CRON_JOB_TIMEOUT" default:"4m"`
	// MetricsAddr, when set, serves /metrics from the worker.
	MetricsAddr string `envconfig:"BEATSTORE_CRON_METRICS_ADDR"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
