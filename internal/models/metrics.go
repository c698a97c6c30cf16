package models

import "time"

// SystemMetrics is a JSON-friendly snapshot of the Prometheus counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Acceptances              uint64    `json:"acceptances"`
	Refusals                 uint64    `json:"refusals"`
	Promotions               uint64    `json:"promotions"`
	AutoAssignedPairs        uint64    `json:"auto_assigned_pairs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
