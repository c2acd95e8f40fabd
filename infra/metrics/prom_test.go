package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/bhkw/core/metrics"
)

func TestPromSink_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(PromConfig{}, reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	ev := coremetrics.RunEvent{RunID: "r1", Solver: "branch_and_bound", Status: "optimal", Objective: -7580, OnlineSteps: 1, Runtime: 20 * time.Millisecond}
	if err := sink.RecordRun(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordRun(coremetrics.RunEvent{Solver: "branch_and_bound", Status: "infeasible"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	expected := `
# HELP bhkw_runs_total Total number of optimisation runs by solver and status
# TYPE bhkw_runs_total counter
bhkw_runs_total{solver="branch_and_bound",status="infeasible"} 1
bhkw_runs_total{solver="branch_and_bound",status="optimal"} 1
`
	if err := testutil.CollectAndCompare(sink.runs, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	// Infeasible runs leave the last objective untouched.
	if v := testutil.ToFloat64(sink.objective); v != -7580 {
		t.Fatalf("objective gauge = %v", v)
	}
	if c := testutil.CollectAndCount(sink.duration); c != 1 {
		t.Errorf("duration series = %d", c)
	}
}

func TestPromSink_Reregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(PromConfig{}, reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewPromSinkWithRegistry(PromConfig{}, reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = a.RecordRun(coremetrics.RunEvent{Solver: "cbc", Status: "optimal"})
	if v := testutil.ToFloat64(b.runs.WithLabelValues("cbc", "optimal")); v != 1 {
		t.Fatalf("collectors not shared, got %v", v)
	}
}

func TestPromSink_Push(t *testing.T) {
	var pushes atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewPromSinkWithRegistry(PromConfig{PushURL: srv.URL, Job: "dispatch"}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordRun(coremetrics.RunEvent{RunID: "abc", Solver: "cbc", Status: "optimal"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if pushes.Load() != 1 {
		t.Fatalf("expected one push, got %d", pushes.Load())
	}
	if p := path.Load().(string); !strings.Contains(p, "/job/dispatch") || !strings.Contains(p, "/run_id/abc") {
		t.Fatalf("unexpected push path %s", p)
	}
}
