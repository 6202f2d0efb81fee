package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvEnvFile          = "ENV_FILE"
	EnvModelDir         = "MODEL_DIR"
	EnvClassifierPath   = "CLASSIFIER_PATH"
	EnvScalerPath       = "SCALER_PATH"
	EnvFeatureNamesPath = "FEATURE_NAMES_PATH"
	EnvMetadataPath     = "METADATA_PATH"
	EnvFeaturesFile     = "FEATURES_FILE"
	EnvHost             = "SERVER_HOST"
	EnvPort             = "SERVER_PORT"
	EnvReadTimeout      = "READ_TIMEOUT"
	EnvWriteTimeout     = "WRITE_TIMEOUT"
	EnvIdleTimeout      = "IDLE_TIMEOUT"
	EnvShutdownTimeout  = "SHUTDOWN_TIMEOUT"
	EnvMaxBodyBytes     = "MAX_BODY_BYTES"
	EnvAllowUnready     = "ALLOW_UNREADY"
	EnvWSEnabled        = "WS_ENABLED"
	EnvWSPingInterval   = "WS_PING_INTERVAL"
	EnvDataPath         = "DATA_PATH"
	EnvAuditLimit       = "AUDIT_LIMIT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvLogFile          = "LOG_FILE"
	EnvLogMaxSizeMB     = "LOG_MAX_SIZE_MB"
	EnvLogMaxBackups    = "LOG_MAX_BACKUPS"
	EnvLogMaxAgeDays    = "LOG_MAX_AGE_DAYS"
	EnvPredictdURL      = "PREDICTD_URL"
	EnvDriftWindow      = "DRIFT_WINDOW"
	EnvDriftThreshold   = "DRIFT_THRESHOLD"
)

// Configuration defaults
const (
	DefaultEnvFile        = ".env"
	DefaultModelDir       = "model"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 5000
	DefaultMaxBodyBytes   = 64 * 1024
	DefaultAuditLimit     = 50
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultLogMaxSizeMB   = 100
	DefaultLogMaxBackups  = 5
	DefaultLogMaxAgeDays  = 28
	DefaultPredictdURL    = "http://localhost:5000"
	MaxAuditLimit         = 1000
	ServiceName           = "predictd"
	ProjectName           = "Breast Cancer Prediction System"
	PersistenceMethod     = "JSON artifacts"
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
	ContentTypeJSON       = "application/json"
	HeaderRequestID       = "X-Request-Id"
)

// Response messages
const (
	MsgNoData           = "No data provided"
	MsgInvalidJSON      = "Invalid JSON payload"
	MsgNotFound         = "Endpoint not found"
	MsgMethodNotAllowed = "Method not allowed"
	MsgInternal         = "An unexpected error occurred. Please try again."
	MsgModelNotLoaded   = "Model not loaded"
	MsgAuditDisabled    = "Prediction audit log is not enabled"
	MsgDisclaimer       = "This system is for EDUCATIONAL PURPOSES ONLY"
	MsgBodyTooLarge     = "Request body too large"
	MsgInvalidLimit     = "limit must be a positive integer"
	MsgDriftDisabled    = "Input drift monitoring is not enabled"
	MsgInvalidRange     = "since and until must be RFC3339 timestamps with since before until"

	// MsgArtifactFailed takes the artifact name, never its path.
	MsgArtifactFailed = "%s artifact could not be loaded"
)
