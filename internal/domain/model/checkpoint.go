package model

import "time"

// DefaultHistoricalEpoch (2023-01-01T00:00:00Z) is the window start for a chain
// that has never been synced, so the first pass backfills everything.
const DefaultHistoricalEpoch int64 = 1672531200

// ChainCheckpoint is the per-chain watermark: the exclusive lower bound of the
// next fetch window. It never decreases.
type ChainCheckpoint struct {
	Chain             Chain     `json:"chain"`
	LastProcessedUnix int64     `json:"last_processed_unix"`
	UpdatedAt         time.Time `json:"updated_at"`
}
