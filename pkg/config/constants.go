package config

// EnvPrefix is handed to envconfig; every tag spells out its full variable name.
const EnvPrefix = "BEATSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

const (
	EnvAppEnv = "BEATSTORE_APP_ENV"
	EnvPort   = "BEATSTORE_APP_PORT"

	EnvDBDSN  = "BEATSTORE_DB_DSN"
	EnvDBHost = "BEATSTORE_DB_HOST"
	EnvDBUser = "BEATSTORE_DB_USER"
	EnvDBName = "BEATSTORE_DB_NAME"

	EnvRedisURL = "BEATSTORE_REDIS_URL"

	EnvJWTSecret               = "BEATSTORE_JWT_SECRET"
	EnvJWTIssuer               = "BEATSTORE_JWT_ISSUER"
	EnvJWTExpMins              = "BEATSTORE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes  = "BEATSTORE_REFRESH_TOKEN_TTL_MINUTES"
	EnvStripeAPIKey            = "BEATSTORE_STRIPE_API_KEY"
	EnvStripeSecret            = "BEATSTORE_STRIPE_SECRET"
	EnvStorageDriver           = "BEATSTORE_STORAGE_DRIVER"
	EnvStorageLocalRoot        = "BEATSTORE_STORAGE_LOCAL_ROOT"
	EnvS3Bucket                = "BEATSTORE_S3_BUCKET"
	EnvPurchasePendingTTL      = "BEATSTORE_PURCHASE_PENDING_TTL"
	EnvPurchaseReconcileBatch  = "BEATSTORE_PURCHASE_RECONCILE_BATCH"
	EnvCronUnprocessedEventAge = "BEATSTORE_CRON_UNPROCESSED_EVENTS_AGE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
