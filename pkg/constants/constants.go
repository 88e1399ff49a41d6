// Package constants provides shared constants for the optinutri application.
package constants

// FilterAll is the sentinel value that disables a catalog filter.
const FilterAll = "All"

// Tolerance and rounding policy. These are defaults; config.OptimizerConfig
// can override the tolerances per deployment.
const (
	// NutrientTolerance is the slack allowed when re-checking kcal, protein
	// and volume bounds against solver totals.
	NutrientTolerance = 0.5

	// CountTolerance is the slack allowed when re-checking the bag cap.
	CountTolerance = 0.01

	// BagEpsilon is the smallest solver value treated as a used formula.
	BagEpsilon = 0.001

	// KcalPlaces is the number of decimals kept for calorie figures.
	KcalPlaces = 1

	// VolumePlaces is the number of decimals kept for volume figures.
	VolumePlaces = 1

	// ProteinPlaces is the number of decimals kept for protein and the other
	// gram-based nutrients.
	ProteinPlaces = 2

	// CostPlaces is the number of decimals kept for costs.
	CostPlaces = 2

	// MillilitersPerLiter converts g/L densities into per-bag grams.
	MillilitersPerLiter = 1000.0
)

// Units reported in violation details.
const (
	UnitKcal    = "kcal"
	UnitGrams   = "g"
	UnitVolume  = "mL"
	DefaultUser = "anonymous"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "optinutri.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "optinutri.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultRateLimit is the sustained number of optimize requests per second
	DefaultRateLimit = 5.0

	// DefaultRateBurst is the number of requests allowed above the sustained rate
	DefaultRateBurst = 10

	// DefaultCacheTTLSeconds is how long identical optimize requests are served from cache
	DefaultCacheTTLSeconds = 300
)

// History defaults
const (
	// HistoryBackendMemory keeps entries in process memory
	HistoryBackendMemory = "memory"

	// HistoryBackendRedis keeps entries in a Redis list per user
	HistoryBackendRedis = "redis"

	// DefaultHistoryEntries is the number of entries kept per user
	DefaultHistoryEntries = 50
)
