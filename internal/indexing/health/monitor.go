package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/indexing/scanner"
)

// StatusProvider reports a scanner's status.
type StatusProvider interface {
	GetStatus() scanner.Status
}

// Counter reports a size, such as the watchlist or binding count.
type Counter func() int

// Thresholds decide when watermark lag degrades a scanner. Zero disables a
// threshold.
type Thresholds struct {
	LagDegraded time.Duration
	LagCritical time.Duration
}

// DefaultThresholds suit a ledger that settles transactions every few seconds.
var DefaultThresholds = Thresholds{
	LagDegraded: 2 * time.Minute,
	LagCritical: 15 * time.Minute,
}

// Monitor aggregates health status from the scanners.
type Monitor struct {
	scanners   []StatusProvider
	cursorMgr  cursor.Manager
	watchlist  Counter
	bindings   Counter
	thresholds Thresholds
	cacheTTL   time.Duration
	now        func() time.Time

	lastCheck  time.Time
	lastReport map[string]ScannerHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. watchlist and bindings may be nil.
func NewMonitor(
	scanners []StatusProvider,
	cursorMgr cursor.Manager,
	watchlist Counter,
	bindings Counter,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		scanners:   scanners,
		cursorMgr:  cursorMgr,
		watchlist:  watchlist,
		bindings:   bindings,
		thresholds: thresholds,
		cacheTTL:   5 * time.Second,
		now:        time.Now,
		lastReport: make(map[string]ScannerHealth),
	}
}

// CheckHealth evaluates every scanner. Results are cached briefly so probes
// do not contend with the scan loops.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ScannerHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastCheck) < m.cacheTTL && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ScannerHealth, len(m.scanners))
	for _, s := range m.scanners {
		st := s.GetStatus()
		h := ScannerHealth{
			Name:        st.Name,
			Status:      StatusHealthy,
			Running:     st.Running,
			Phase:       string(st.Phase),
			Watermark:   st.Watermark.String(),
			Cycles:      st.Cycles,
			LastError:   st.LastError,
			LastCycleAt: st.LastCycleAt,
		}
		if st.Watermark > 0 {
			h.Lag = now.Sub(st.Watermark.Time())
		}
		if m.cursorMgr != nil {
			h.TxPerSecond = m.cursorMgr.GetMetrics(st.Name).TransactionsPerSecond
		}
		if m.watchlist != nil {
			h.WatchedCount = m.watchlist()
		}
		if m.bindings != nil {
			h.BoundAddresses = m.bindings()
		}

		// Evaluate Status
		switch {
		case !st.Running:
			h.Status = StatusCritical
		case m.thresholds.LagCritical > 0 && h.Lag > m.thresholds.LagCritical:
			h.Status = StatusCritical
		case st.LastError != "":
			h.Status = StatusDegraded
		case m.thresholds.LagDegraded > 0 && h.Lag > m.thresholds.LagDegraded:
			h.Status = StatusDegraded
		}

		report[st.Name] = h
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

// Report returns the full report with the aggregated status.
func (m *Monitor) Report(ctx context.Context) HealthReport {
	scanners := m.CheckHealth(ctx)
	status := StatusHealthy
	for _, h := range scanners {
		status = Worst(status, h.Status)
	}
	return HealthReport{SystemStatus: status, Scanners: scanners}
}
