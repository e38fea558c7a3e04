package models

// TierStats reports activity for one cache tier.
type TierStats struct {
	Name          string `json:"name"`
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	Errors        int64  `json:"errors"`
	WriteFailures int64  `json:"write_failures"`
}

// CacheStats reports two-tier cache performance.
type CacheStats struct {
	Volatile TierStats `json:"volatile"`
	Durable  TierStats `json:"durable"`
	Hits     int64     `json:"hits"`
	Misses   int64     `json:"misses"`
	Warmups  int64     `json:"warmups"`
}
