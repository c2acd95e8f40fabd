package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/bhkw/core/metrics"
	"github.com/kilianp07/bhkw/core/model"
)

type capture struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(data))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestInfluxSink_RecordRun(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.RunEvent{
		RunID: "r1", Solver: "cbc", Status: "optimal", Objective: -7580.12345,
		Nodes: 3, Runtime: 1500 * time.Millisecond, Steps: 24, OnlineSteps: 10,
		FuelCost: 2200, Revenue: 10000, Time: now,
	}
	if err := sink.RecordRun(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("bhkw_run").
		AddTag("unit", "bhkw").
		AddTag("run_id", "r1").
		AddTag("solver", "cbc").
		AddTag("status", "optimal").
		AddField("objective", -7580.123).
		AddField("gap", 0.0).
		AddField("nodes", 3).
		AddField("runtime_ms", 1500.0).
		AddField("steps", 24).
		AddField("online_steps", 10).
		AddField("fuel_cost", 2200.0).
		AddField("revenue", 10000.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if len(c.bodies) != 1 || strings.TrimSpace(c.bodies[0]) != expected {
		t.Errorf("unexpected body: %v", c.bodies)
	}
}

func TestInfluxSink_RecordSchedule(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Org: "org", Bucket: "bucket", Unit: "chp-1"})
	defer sink.Close()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.Row{
		{Step: model.Step{ID: 1}, Time: start},
		{Step: model.Step{ID: 2, PowerPrice: 100}, Time: start.Add(time.Hour), Online: 1, Power: 100, Gas: 220},
	}
	if err := sink.RecordSchedule("r1", rows); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if len(c.bodies) != 1 {
		t.Fatalf("expected one batched write, got %d", len(c.bodies))
	}
	lines := strings.Split(strings.TrimSpace(c.bodies[0]), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 points, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "bhkw_schedule,unit=chp-1,run_id=r1 ") || !strings.Contains(lines[1], "online=true") {
		t.Errorf("unexpected point %s", lines[1])
	}
	if err := sink.RecordSchedule("r1", nil); err != nil {
		t.Fatalf("empty schedule: %v", err)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
