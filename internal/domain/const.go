package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// DEFAULT_BACKFILL_WINDOW is the number of trailing blocks replayed on startup
	DEFAULT_BACKFILL_WINDOW = 1000

	// WEI_DECIMALS is the number of decimals of the native currency
	WEI_DECIMALS = 18
)
