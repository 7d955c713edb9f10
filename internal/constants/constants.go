package constants

import "time"

// Common string constants used throughout the codebase
const (
	// Log levels
	ErrorLevel = "error"

	// Environments
	ProdEnvironment = "prod"

	// Currencies
	USDCurrency = "USD"

	// Price cache TTL. Entries older than this are refetched.
	PriceCacheTTL = 5 * time.Minute

	// Permit deadlines are always this far in the future from build time.
	PermitDeadlineWindow = 30 * time.Minute

	// Default ERC-20 domain version when the token exposes no version().
	DefaultPermitVersion = "1"

	// Minimum fiat value for an asset to qualify for a batch transfer.
	DefaultMinBatchValueUSD = 1.0

	// Gas limit assumed for a worst-case batch execution when computing the
	// native fee reserve.
	BatchGasLimitEstimate = 120000
)
