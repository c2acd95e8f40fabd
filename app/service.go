// Package app wires the dispatch run: input loading, model construction, the
// solve and the fan-out of the solved schedule to files, run history, metrics
// and the unit controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/bhkw/config"
	coremetrics "github.com/kilianp07/bhkw/core/metrics"
	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/model"
	"github.com/kilianp07/bhkw/core/monitoring"
	coremqtt "github.com/kilianp07/bhkw/core/mqtt"
	"github.com/kilianp07/bhkw/core/runlog"
	"github.com/kilianp07/bhkw/core/schedule"
	"github.com/kilianp07/bhkw/infra/loader"
	"github.com/kilianp07/bhkw/infra/logger"
	"github.com/kilianp07/bhkw/infra/metrics"
	"github.com/kilianp07/bhkw/infra/mqtt"
	"github.com/kilianp07/bhkw/infra/solver"
	"github.com/kilianp07/bhkw/pkg/export"
	"github.com/kilianp07/bhkw/pkg/report"
)

// ErrNotSolved is returned when the solver ends without a usable assignment.
// No result file is written in that case.
var ErrNotSolved = errors.New("schedule not solved")

// checkTolerance bounds the residuals accepted by the post-solve row check.
const checkTolerance = 1e-6

// stagePrefix names the temporary directory result files are rendered into.
const stagePrefix = ".staging-"

// Deps are the collaborators of a Service. Nil fields fall back to no-ops,
// except Solver which defaults to the in-process branch and bound.
type Deps struct {
	Solver    milp.Solver
	Store     runlog.Store
	Sink      coremetrics.RunSink
	Publisher coremqtt.Publisher
	Log       logger.Logger
}

// Service runs one dispatch optimisation per call to Run.
type Service struct {
	cfg       *config.Config
	solver    milp.Solver
	store     runlog.Store
	sink      coremetrics.RunSink
	publisher coremqtt.Publisher
	log       logger.Logger

	now   func() time.Time
	newID func() string
}

// Result describes a completed run.
type Result struct {
	RunID    string
	Solution milp.Solution
	Rows     []model.Row
	Cost     schedule.Breakdown
	Files    []string
	Acked    bool
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	s, err := solver.New(cfg.Solver.Module())
	if err != nil {
		return nil, err
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}
	sink, err := coremetrics.NewRunSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	deps := Deps{Solver: s, Store: store, Sink: sink, Log: logger.New("service")}
	if cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		deps.Publisher = client
	}
	return NewWithDeps(cfg, deps), nil
}

// NewWithDeps creates a Service from explicit collaborators.
func NewWithDeps(cfg *config.Config, d Deps) *Service {
	if d.Solver == nil {
		d.Solver = solver.NewBranchAndBound(d.Log)
	}
	if d.Store == nil {
		d.Store = runlog.NopStore{}
	}
	if d.Sink == nil {
		d.Sink = coremetrics.NopSink{}
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	return &Service{
		cfg:       cfg,
		solver:    d.Solver,
		store:     d.Store,
		sink:      d.Sink,
		publisher: d.Publisher,
		log:       d.Log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run loads the inputs, solves the dispatch model and distributes the
// schedule. Runs that end without a usable assignment are still recorded in
// the run history and metrics.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: s.newID()}
	tags := map[string]string{"run_id": res.RunID, "solver": s.solver.Name(), "unit": s.cfg.Unit}
	defer monitoring.Recover(tags)
	log := s.log.With("run_id", res.RunID)
	started := s.now()

	if s.cfg.Metrics.PrometheusPort != "" {
		promCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.StartPromServer(promCtx, s.cfg.Metrics.PrometheusPort, log); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}

	sol, rows, err := s.solve(ctx, res.RunID, log)
	res.Solution, res.Rows = sol, rows
	rec := runlog.RunRecord{
		ID:        res.RunID,
		Timestamp: started,
		Solver:    s.solver.Name(),
		Status:    sol.Status.String(),
		Objective: sol.Objective,
		Gap:       sol.Gap,
		Nodes:     sol.Nodes,
		Runtime:   sol.Runtime,
		Steps:     len(rows),
		InputDir:  s.cfg.Input.Dir,
	}
	if err != nil {
		rec.Error = err.Error()
		s.recordFailure(ctx, rec, log)
		monitoring.CaptureException(err, tags)
		return res, err
	}

	res.Cost = schedule.Cost(rows)
	rec.Cost = res.Cost
	rec.Online = export.CountOnline(rows)
	rec.Output = s.cfg.Output.Dir
	if sol.Status != milp.StatusOptimal {
		log.Warnf("solver stopped with status %s, gap %.4g", sol.Status, sol.Gap)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		files, err := s.writeOutputs(res, started)
		res.Files = files
		return err
	})
	g.Go(func() error {
		if err := s.store.Append(gctx, rec); err != nil {
			return fmt.Errorf("append run: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.recordMetrics(rec, rows, log)
		return nil
	})
	if s.publisher != nil {
		g.Go(func() error {
			acked, err := s.publish(gctx, res, started)
			res.Acked = acked
			return err
		})
	}
	if err := g.Wait(); err != nil {
		monitoring.CaptureException(err, tags)
		return res, err
	}
	log.Infow("run complete", map[string]any{
		"status":    sol.Status.String(),
		"objective": sol.Objective,
		"online":    rec.Online,
		"net_cost":  res.Cost.Net.String(),
		"files":     len(res.Files),
	})
	return res, nil
}

// solve runs the load, build, solve and extract stages.
func (s *Service) solve(ctx context.Context, runID string, log logger.Logger) (milp.Solution, []model.Row, error) {
	sol := milp.Solution{Solver: s.solver.Name()}
	series, env, err := loader.Load(s.cfg.Input.Dir, s.cfg.Input.EnvelopeFile)
	if err != nil {
		return sol, nil, fmt.Errorf("load inputs: %w", err)
	}
	clock, err := s.cfg.Input.Clock()
	if err != nil {
		return sol, nil, err
	}
	m, err := schedule.Build(series, env)
	if err != nil {
		return sol, nil, fmt.Errorf("build model: %w", err)
	}
	log.Infow("model built", map[string]any{"steps": series.Len(), "vars": len(m.Problem.Vars), "rows": len(m.Problem.Constraints)})

	outDir := s.cfg.Output.Dir
	if s.cfg.Output.LPFile {
		path := filepath.Join(outDir, export.LPFile)
		if err := export.WriteFile(path, func(w io.Writer) error { return milp.WriteLP(w, m.Problem) }); err != nil {
			return sol, nil, err
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return sol, nil, fmt.Errorf("create output dir: %w", err)
	}
	logPath := filepath.Join(outDir, export.LogFile)

	sol, err = s.solver.Solve(ctx, m.Problem, s.cfg.Solver.Options(logPath))
	if err != nil {
		return sol, nil, fmt.Errorf("solve: %w", err)
	}
	log.Infow("solve finished", map[string]any{
		"status":    sol.Status.String(),
		"objective": sol.Objective,
		"gap":       sol.Gap,
		"nodes":     sol.Nodes,
		"runtime":   sol.Runtime.String(),
	})
	if !sol.Status.HasSolution() {
		return sol, nil, fmt.Errorf("%w: solver reported %s", ErrNotSolved, sol.Status)
	}
	rows, err := schedule.Extract(m, sol, clock)
	if err != nil {
		return sol, nil, err
	}
	if err := schedule.CheckRows(rows, env, checkTolerance); err != nil {
		log.Warnf("schedule check: %v", err)
	}
	return sol, rows, nil
}

// writeOutputs renders the result files into a staging directory and moves
// them into the output directory once all of them are written. A failed move
// removes the files already moved, so a run leaves either all of its result
// files or none.
func (s *Service) writeOutputs(res *Result, created time.Time) ([]string, error) {
	out := s.cfg.Output
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	stage, err := os.MkdirTemp(out.Dir, stagePrefix)
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stage) }()

	var names []string
	write := func(name string, fn func(io.Writer) error) error {
		if err := export.WriteFile(filepath.Join(stage, name), fn); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	}
	if out.CSV {
		if err := write(export.TimeseriesFile, func(w io.Writer) error { return export.WriteCSV(w, res.Rows) }); err != nil {
			return nil, err
		}
	}
	if out.JSON {
		sum := s.summary(res, created)
		if err := write(export.SummaryFile, func(w io.Writer) error { return export.WriteJSON(w, sum) }); err != nil {
			return nil, err
		}
	}
	if out.Chart {
		title := fmt.Sprintf("%s schedule (%s)", s.cfg.Unit, res.Solution.Status)
		if err := write(export.ChartFile, func(w io.Writer) error { return report.WriteChart(w, title, res.Rows) }); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(out.Dir, name)
		if err := os.Rename(filepath.Join(stage, name), path); err != nil {
			for _, f := range files {
				_ = os.Remove(f)
			}
			return nil, fmt.Errorf("commit %s: %w", name, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (s *Service) summary(res *Result, created time.Time) export.Summary {
	return export.Summary{
		RunID:       res.RunID,
		Solver:      res.Solution.Solver,
		Status:      res.Solution.Status.String(),
		Objective:   res.Solution.Objective,
		Gap:         res.Solution.Gap,
		Nodes:       res.Solution.Nodes,
		Runtime:     res.Solution.Runtime,
		Steps:       len(res.Rows),
		OnlineSteps: export.CountOnline(res.Rows),
		Cost:        res.Cost,
		CreatedAt:   created,
		Rows:        res.Rows,
	}
}

func (s *Service) recordMetrics(rec runlog.RunRecord, rows []model.Row, log logger.Logger) {
	fuel, _ := rec.Cost.FuelCost.Float64()
	revenue, _ := rec.Cost.Revenue.Float64()
	ev := coremetrics.RunEvent{
		RunID:       rec.ID,
		Solver:      rec.Solver,
		Status:      rec.Status,
		Objective:   rec.Objective,
		Gap:         rec.Gap,
		Nodes:       rec.Nodes,
		Runtime:     rec.Runtime,
		Steps:       rec.Steps,
		OnlineSteps: rec.Online,
		FuelCost:    fuel,
		Revenue:     revenue,
		Time:        rec.Timestamp,
	}
	if err := s.sink.RecordRun(ev); err != nil {
		log.Warnf("record run metrics: %v", err)
	}
	if len(rows) == 0 {
		return
	}
	if sr, ok := s.sink.(coremetrics.ScheduleRecorder); ok {
		if err := sr.RecordSchedule(rec.ID, rows); err != nil {
			log.Warnf("record schedule metrics: %v", err)
		}
	}
}

// recordFailure keeps failed runs visible in the history and metrics.
func (s *Service) recordFailure(ctx context.Context, rec runlog.RunRecord, log logger.Logger) {
	if err := s.store.Append(ctx, rec); err != nil {
		log.Warnf("append run: %v", err)
	}
	s.recordMetrics(rec, nil, log)
	log.Errorf("run failed: %s", rec.Error)
}

func (s *Service) publish(ctx context.Context, res *Result, created time.Time) (bool, error) {
	plan := coremqtt.Plan{
		RunID:     res.RunID,
		Unit:      s.cfg.Unit,
		Status:    res.Solution.Status.String(),
		Objective: res.Solution.Objective,
		CreatedAt: created,
		Steps:     make([]coremqtt.PlanStep, len(res.Rows)),
	}
	for i, r := range res.Rows {
		plan.Steps[i] = coremqtt.PlanStep{T: r.Step.ID, Time: r.Time, Online: r.IsOnline(), Power: r.Power, Heat: r.Heat, Gas: r.Gas}
	}
	id, err := s.publisher.PublishPlan(ctx, plan)
	if err != nil {
		return false, fmt.Errorf("publish plan: %w", err)
	}
	if s.cfg.MQTT.AckTopic == "" {
		return false, nil
	}
	timeout := s.cfg.MQTT.AckTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	acked, err := s.publisher.WaitForAck(id, timeout)
	if err != nil {
		if errors.Is(err, coremqtt.ErrAckTimeout) {
			s.log.Warnf("plan %s not acknowledged within %s", id, timeout)
			return false, nil
		}
		return false, err
	}
	return acked, nil
}

// History returns the run store.
func (s *Service) History() runlog.Store { return s.store }

// Close releases the run store, the metrics sinks and the MQTT connection.
func (s *Service) Close() error {
	closeSink(s.sink)
	if d, ok := s.publisher.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	return s.store.Close()
}

func closeSink(sink coremetrics.RunSink) {
	switch c := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range c.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		c.Close()
	case io.Closer:
		_ = c.Close()
	}
}
