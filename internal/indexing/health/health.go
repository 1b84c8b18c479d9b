// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ScannerHealth contains health metrics for one scanner.
type ScannerHealth struct {
	Name           string        `json:"name"`
	Status         SystemStatus  `json:"status"`
	Running        bool          `json:"running"`
	Phase          string        `json:"phase"`
	Watermark      string        `json:"watermark"`
	Lag            time.Duration `json:"lag_ns"`
	Cycles         uint64        `json:"cycles"`
	LastError      string        `json:"last_error,omitempty"`
	TxPerSecond    float64       `json:"tx_per_second"`
	LastCycleAt    time.Time     `json:"last_cycle_at"`
	WatchedCount   int           `json:"watched_addresses"`
	BoundAddresses int           `json:"bound_addresses"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus             `json:"system_status"`
	Scanners     map[string]ScannerHealth `json:"scanners"`
}

// Worst returns the more severe of two statuses.
func Worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
