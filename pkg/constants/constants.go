package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "reviewqa"
	AppDescription = "App review data quality and enrichment pipeline"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default configuration values
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Workspace defaults
	DefaultWorkspacePath = "workspace"
	DefaultFileFormat    = FileFormatCSV
	DefaultStorageType   = StorageTypeFile
	DefaultKeyPrefix     = "reviewqa"

	// Engine defaults
	DefaultPartitions = 8
	DefaultMaxWorkers = 4

	// Language defaults
	DefaultTargetLanguage   = "en"
	DefaultFailureWarnRatio = 0.01

	// Strategy defaults
	DefaultShortReviewThreshold = 3
	DefaultZScoreThreshold      = 3.0
	DefaultRobustZThreshold     = 3.5
	DefaultIQRMultiplier        = 1.5
	DefaultCategoryReplacement  = "unknown"

	// Storage defaults
	DefaultStorageTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Data dimensions select the strategy factory family.
const (
	DimensionText        = "text"
	DimensionNumeric     = "numeric"
	DimensionCategorical = "categorical"
	DimensionNominal     = "nominal"
	DimensionInterval    = "interval"
	DimensionDiscrete    = "discrete"
)

// Execution modes
const (
	ModeLocal       = "local"
	ModeDistributed = "distributed"
)

// Anomaly task modes
const (
	TaskModeDetect = "detect"
	TaskModeRepair = "repair"
)

// Detect strategy keys
const (
	DetectRegex          = "regex"
	DetectRegexThreshold = "regex_threshold"
	DetectNonEnglish     = "non_english"
	DetectShortReview    = "short_review"
	DetectUnique         = "unique"
	DetectThreshold      = "threshold"
	DetectZScore         = "zscore"
	DetectRobustZScore   = "robust_zscore"
	DetectIQR            = "iqr"
	DetectNonInteger     = "non_integer"
	DetectCategorical    = "categorical"
)

// Repair strategy keys
const (
	RepairRegexReplace         = "regex_replace"
	RepairRegexRemove          = "regex_remove"
	RepairRegexThresholdRemove = "regex_threshold_remove"
	RepairCustomRemove         = "custom_remove"
	RepairAccent               = "accent"
	RepairNonASCII             = "non_ascii"
	RepairWhitespace           = "whitespace"
	RepairNonEnglish           = "non_english"
	RepairShortReview          = "short_review"
	RepairUnique               = "unique"
	RepairRemove               = "remove"
	RepairClip                 = "clip"
	RepairImputeMean           = "impute_mean"
	RepairImputeMedian         = "impute_median"
	RepairReplace              = "replace"
)

// Threshold types and units
const (
	ThresholdCount      = "count"
	ThresholdProportion = "proportion"
	UnitWord            = "word"
	UnitCharacter       = "character"
)

// Storage backends
const (
	StorageTypeMemory = "memory"
	StorageTypeFile   = "file"
	StorageTypeS3     = "s3"
	StorageTypeRedis  = "redis"
)

// File formats
const (
	FileFormatCSV  = "csv"
	FileFormatJSON = "json"
)

// Engine kinds
const (
	EngineLocal       = "local"
	EngineDistributed = "distributed"
)

// Profile database drivers
const (
	ProfileDriverSQLite   = "sqlite"
	ProfileDriverPostgres = "postgres"
)

// HTTP headers and content types used by the API server
const (
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"
	ContentTypeJSON     = "application/json"
	ContentTypeYAML     = "application/yaml"
	ContentTypeCSV      = "text/csv"
	ContentTypeJSONLine = "application/x-ndjson"
)
