package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/bhkw/core/metrics"
	"github.com/kilianp07/bhkw/core/model"
	"github.com/kilianp07/bhkw/infra/logger"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	Unit   string `json:"unit"`
}

// InfluxSink writes run summaries and solved schedules to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	unit     string
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	unit := cfg.Unit
	if unit == "" {
		unit = "bhkw"
	}
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		unit:     unit,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.RunSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes the run summary.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bhkw_run").
		AddTag("unit", s.unit).
		AddTag("run_id", ev.RunID).
		AddTag("solver", ev.Solver).
		AddTag("status", ev.Status).
		AddField("objective", round3(ev.Objective)).
		AddField("gap", ev.Gap).
		AddField("nodes", ev.Nodes).
		AddField("runtime_ms", round3(ev.Runtime.Seconds()*1000)).
		AddField("steps", ev.Steps).
		AddField("online_steps", ev.OnlineSteps).
		AddField("fuel_cost", round3(ev.FuelCost)).
		AddField("revenue", round3(ev.Revenue)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSchedule writes one point per schedule step. Steps without a wall
// clock time are stamped at now plus their identifier in seconds so they stay
// distinct.
func (s *InfluxSink) RecordSchedule(runID string, rows []model.Row) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	points := make([]*write.Point, 0, len(rows))
	for _, r := range rows {
		ts := r.Time
		if ts.IsZero() {
			ts = now.Add(time.Duration(r.Step.ID) * time.Second)
		}
		p := write.NewPointWithMeasurement("bhkw_schedule").
			AddTag("unit", s.unit).
			AddTag("run_id", runID).
			AddField("t", r.Step.ID).
			AddField("online", r.IsOnline()).
			AddField("power", round3(r.Power)).
			AddField("gas", round3(r.Gas)).
			AddField("heat", round3(r.Heat)).
			AddField("pay_capacity_price", round3(r.PayCapacityPrice)).
			AddField("bank", round3(r.AdditionalCapacityAllowance)).
			AddField("power_price", r.Step.PowerPrice).
			AddField("gas_price", r.Step.GasPrice).
			SetTime(ts)
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
