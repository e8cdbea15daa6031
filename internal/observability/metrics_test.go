package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "ok"},
		{name: "cancelled", err: fmt.Errorf("op: %w", context.Canceled), want: "cancelled"},
		{name: "deadline", err: context.DeadlineExceeded, want: "cancelled"},
		{name: "invariant", err: fmt.Errorf("%w: nope", fault.ErrInvariant), want: "invariant_violation"},
		{name: "transport", err: fmt.Errorf("%w: down", fault.ErrTransport), want: "transport"},
		{name: "untyped", err: errors.New("boom"), want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Result(tt.err); got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.ObserveOperation("adopt", 20*time.Millisecond, nil)
	m.ObserveOperation("adopt", time.Millisecond, fmt.Errorf("%w: x", fault.ErrInvariant))

	if got := testutil.ToFloat64(m.Operations.WithLabelValues("adopt", "ok")); got != 1 {
		t.Errorf("operations_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("adopt", "invariant_violation")); got != 1 {
		t.Errorf("operations_total{invariant_violation} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "netfleet_operation_duration_seconds", map[string]string{"op": "adopt"}); count != 2 {
		t.Errorf("operation_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestSetDeviceCounts_Resets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := NewMetrics(reg)

	m.SetDeviceCounts(map[string]int{"discovered": 3, "adopting": 1})
	m.SetDeviceCounts(map[string]int{"discovered": 2})

	if got := testutil.ToFloat64(m.Devices.WithLabelValues("discovered")); got != 2 {
		t.Errorf("devices{discovered} = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.Devices); got != 1 {
		t.Errorf("devices series = %d, want 1 after reset", got)
	}
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() twice error = %v", err)
	}
	if first.Operations != second.Operations {
		t.Error("second NewMetrics() registered a new operations counter")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("x", time.Second, nil)
	m.ObserveEvents(nil)
	m.SetDeviceCounts(map[string]int{"a": 1})
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/devices/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices/"+id, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/devices/{id}", "404")); got != 2 {
		t.Errorf("http_requests_total = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "netfleet_http_requests_total") {
		t.Error("/metrics does not expose netfleet_http_requests_total")
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nopLogger{})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}

	_, span := Tracer().Start(context.Background(), "orchestrator.adopt")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nopLogger{})

	if !strings.Contains(buf.String(), "orchestrator.adopt") {
		t.Errorf("stdout exporter output missing span name: %s", buf.String())
	}

	// Leave a no-op provider behind for other tests.
	if _, err := InitTracing(context.Background(), TracingConfig{}, nopLogger{}); err != nil {
		t.Fatalf("InitTracing(disabled) error = %v", err)
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nopLogger{})
	if err == nil {
		t.Error("InitTracing() error = nil, want unsupported exporter")
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
