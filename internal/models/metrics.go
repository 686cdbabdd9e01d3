package models

import "time"

// SystemMetrics is a lightweight aggregate snapshot served to dashboards
// without scraping the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ImportRecordsTotal       uint64    `json:"import_records_total"`
	ImportErrorsTotal        uint64    `json:"import_errors_total"`
	CreditRecomputesTotal    uint64    `json:"credit_recomputes_total"`
	QueueDepth               int       `json:"queue_depth"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
