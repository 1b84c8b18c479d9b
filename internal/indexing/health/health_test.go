package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/scanner"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// =============================================================================
// Mocks
// =============================================================================

type stubScanner struct {
	status scanner.Status
}

func (s *stubScanner) GetStatus() scanner.Status { return s.status }

var now = time.Unix(1700000600, 0)

func newMonitor(statuses ...scanner.Status) *Monitor {
	providers := make([]StatusProvider, 0, len(statuses))
	for _, st := range statuses {
		providers = append(providers, &stubScanner{status: st})
	}
	m := NewMonitor(providers, nil, func() int { return 3 }, nil, DefaultThresholds)
	m.now = func() time.Time { return now }
	return m
}

func running(name string, lag time.Duration) scanner.Status {
	return scanner.Status{
		Name:      name,
		Running:   true,
		Phase:     scanner.PhaseIdle,
		Watermark: domain.PositionFromTime(now.Add(-lag)),
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	report := newMonitor(running("main", 5*time.Second)).CheckHealth(context.Background())
	health := report["main"]

	if health.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", health.Status)
	}
	if health.Lag != 5*time.Second || health.WatchedCount != 3 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	lagging := running("lagging", 5*time.Minute)
	failing := running("failing", time.Second)
	failing.LastError = "source mock: connection refused"

	report := newMonitor(lagging, failing).CheckHealth(context.Background())
	for _, name := range []string{"lagging", "failing"} {
		if report[name].Status != StatusDegraded {
			t.Errorf("%s: expected degraded, got %s", name, report[name].Status)
		}
	}
}

func TestMonitor_Critical(t *testing.T) {
	stopped := running("stopped", time.Second)
	stopped.Running = false

	report := newMonitor(running("far-behind", time.Hour), stopped).CheckHealth(context.Background())
	for _, name := range []string{"far-behind", "stopped"} {
		if report[name].Status != StatusCritical {
			t.Errorf("%s: expected critical, got %s", name, report[name].Status)
		}
	}
}

func TestMonitor_ReportAggregates(t *testing.T) {
	failing := running("b", time.Second)
	failing.LastError = "boom"

	report := newMonitor(running("a", time.Second), failing).Report(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
}

func TestServer_Health(t *testing.T) {
	stopped := running("main", time.Second)
	stopped.Running = false

	tests := []struct {
		name   string
		status scanner.Status
		code   int
		want   SystemStatus
	}{
		{"healthy", running("main", time.Second), http.StatusOK, StatusHealthy},
		{"critical", stopped, http.StatusServiceUnavailable, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newMonitor(tt.status), 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != string(tt.want) {
				t.Errorf("status = %q", body["status"])
			}
		})
	}
}

func TestServer_Detailed(t *testing.T) {
	srv := NewServer(newMonitor(running("main", time.Second)), 0)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Scanners["main"].Name != "main" || report.SystemStatus != StatusHealthy {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestGRPCServer_Update(t *testing.T) {
	stopped := running("contracts", time.Second)
	stopped.Running = false

	g := NewGRPCServer(newMonitor(running("transfers", time.Second), stopped), 0)
	g.Update(context.Background())

	tests := []struct {
		service string
		want    healthpb.HealthCheckResponse_ServingStatus
	}{
		{"", healthpb.HealthCheckResponse_NOT_SERVING},
		{"transfers", healthpb.HealthCheckResponse_SERVING},
		{"contracts", healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		resp, err := g.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: tt.service})
		if err != nil {
			t.Fatalf("Check(%q): %v", tt.service, err)
		}
		if resp.Status != tt.want {
			t.Errorf("Check(%q) = %s, want %s", tt.service, resp.Status, tt.want)
		}
	}
}
