package clientdata

import "time"

// TTL constants per cached data type.
// These are added to the current time when storing to calculate expires_at.
const (
	// TTLExchangeRate keeps FX rates for a day. Runs are daily at most and
	// the normalizer uses the current rate anyway.
	TTLExchangeRate = 24 * time.Hour
)
