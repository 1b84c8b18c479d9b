package cursor

import (
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// commitRecord holds timing data for a committed batch.
type commitRecord struct {
	Processed   int
	Watermark   domain.Position
	CommittedAt time.Time
}

// Metrics holds cursor throughput data.
type Metrics struct {
	TransactionsPerSecond float64
	AverageCommitInterval time.Duration
	LastWatermark         domain.Position
	LastCommitAt          *time.Time
	LastResetAt           *time.Time
}

// MetricsCollector tracks cursor throughput over a window of commits.
type MetricsCollector struct {
	windowSize  int            // number of commits to track
	commits     []commitRecord // ring buffer of commit records
	lastResetAt *time.Time
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		commits:    make([]commitRecord, 0, windowSize),
	}
}

// RecordCommit records timing for a committed batch.
func (mc *MetricsCollector) RecordCommit(processed int, watermark domain.Position, at time.Time) {
	record := commitRecord{
		Processed:   processed,
		Watermark:   watermark,
		CommittedAt: at,
	}

	if len(mc.commits) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.commits, mc.commits[1:])
		mc.commits[len(mc.commits)-1] = record
	} else {
		mc.commits = append(mc.commits, record)
	}
}

// RecordReset records an operator cursor reset.
func (mc *MetricsCollector) RecordReset(at time.Time) {
	mc.lastResetAt = &at
	mc.commits = mc.commits[:0]
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{LastResetAt: mc.lastResetAt}
	if len(mc.commits) == 0 {
		return m
	}

	last := mc.commits[len(mc.commits)-1]
	at := last.CommittedAt
	m.LastCommitAt = &at
	m.LastWatermark = last.Watermark

	if len(mc.commits) >= 2 {
		first := mc.commits[0]
		duration := last.CommittedAt.Sub(first.CommittedAt)

		if duration > 0 {
			// The first commit's transactions were processed before the window opened.
			processed := 0
			for _, c := range mc.commits[1:] {
				processed += c.Processed
			}
			m.TransactionsPerSecond = float64(processed) / duration.Seconds()
			m.AverageCommitInterval = duration / time.Duration(len(mc.commits)-1)
		}
	}

	return m
}
