// Package optimizer runs optimization requests end to end: validation, model
// construction, solving and interpretation.
package optimizer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridflex/core/asset"
	"github.com/kilianp07/gridflex/core/builder"
	"github.com/kilianp07/gridflex/core/events"
	"github.com/kilianp07/gridflex/core/interpret"
	"github.com/kilianp07/gridflex/core/logger"
	"github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/solver"
	"github.com/kilianp07/gridflex/core/tariff"
	"github.com/kilianp07/gridflex/internal/eventbus"
)

// Config holds solver defaults. Request-level solver settings override them.
type Config struct {
	TimeLimit time.Duration
	Tolerance float64
	MaxNodes  int
	Diagnose  bool
}

// Optimizer is safe for concurrent use; every call builds its own model.
type Optimizer struct {
	solver solver.Solver
	cfg    Config
	log    logger.Logger
	sink   metrics.MetricsSink
	bus    *eventbus.TypedBus[events.OptimizationFinished]
	now    func() time.Time
}

// New returns an Optimizer. Nil logger and sink disable logging and metrics.
func New(s solver.Solver, cfg Config, log logger.Logger, sink metrics.MetricsSink) *Optimizer {
	if log == nil {
		log = logger.Nop{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Optimizer{solver: s, cfg: cfg, log: log, sink: sink, now: time.Now}
}

// SetEventBus publishes an OptimizationFinished event for every request.
func (o *Optimizer) SetEventBus(bus *eventbus.TypedBus[events.OptimizationFinished]) {
	o.bus = bus
}

// prepared holds the validated inputs of a request.
type prepared struct {
	horizon model.TimeHorizon
	rates   []tariff.Rate
	assets  []*asset.Asset
}

// validate runs every input check before anything is built.
func validate(req model.Request) (prepared, error) {
	h, err := req.Horizon.Build()
	if err != nil {
		return prepared{}, err
	}
	if err := req.Validate(h); err != nil {
		return prepared{}, err
	}
	t, err := tariff.FromSpec(req.Tariff)
	if err != nil {
		return prepared{}, err
	}
	rates, err := t.Coverage(h)
	if err != nil {
		return prepared{}, err
	}
	assets := make([]*asset.Asset, len(req.Assets))
	for i, spec := range req.Assets {
		a, err := asset.New(spec, h)
		if err != nil {
			return prepared{}, err
		}
		assets[i] = a
	}
	return prepared{horizon: h, rates: rates, assets: assets}, nil
}

func (o *Optimizer) options(req model.Request) solver.Options {
	opts := solver.Options{
		TimeLimit: o.cfg.TimeLimit,
		Tolerance: o.cfg.Tolerance,
		MaxNodes:  o.cfg.MaxNodes,
		Diagnose:  o.cfg.Diagnose,
	}
	if req.Solver.TimeLimitMS > 0 {
		opts.TimeLimit = req.Solver.TimeLimit()
	}
	if req.Solver.Tolerance > 0 {
		opts.Tolerance = req.Solver.Tolerance
	}
	return opts
}

// Optimize returns the cost-minimizing schedule for req. Every error is a
// *model.OptimizationFailure. Invalid requests never reach the solver.
func (o *Optimizer) Optimize(ctx context.Context, req model.Request) (*model.DispatchSchedule, error) {
	start := o.now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	ev := metrics.OptimizationEvent{RequestID: req.ID, Assets: len(req.Assets), Periods: req.Horizon.Count}

	in, err := validate(req)
	if err != nil {
		o.log.Warnf("request %s rejected: %v", req.ID, err)
		return o.finish(ev, start, nil, &model.OptimizationFailure{RequestID: req.ID, Kind: model.FailureValidation, Err: err})
	}

	m, err := builder.Build(req, in.horizon, in.rates, in.assets)
	if err != nil {
		return o.finish(ev, start, nil, &model.OptimizationFailure{RequestID: req.ID, Kind: model.FailureValidation, Err: err})
	}
	p := m.Problem
	ev.Variables, ev.Constraints, ev.Binaries = p.NumVars(), p.NumConstraints(), len(p.Binaries())
	o.log.Debugw("problem built", map[string]any{
		"request_id":  req.ID,
		"assets":      len(in.assets),
		"periods":     in.horizon.Len(),
		"variables":   ev.Variables,
		"constraints": ev.Constraints,
		"binaries":    ev.Binaries,
	})

	out := o.solver.Solve(ctx, p, o.options(req))
	ev.SolveTime, ev.Nodes = out.Elapsed, out.Nodes

	sched, err := interpret.Interpret(m, out, o.options(req).Tol())
	if err != nil {
		var f *model.OptimizationFailure
		if !errors.As(err, &f) {
			f = &model.OptimizationFailure{RequestID: req.ID, Kind: model.FailureSolverError, Err: err}
		}
		if f.Kind == model.FailureInconsistent {
			o.log.Errorf("request %s: %v", req.ID, err)
		} else {
			o.log.Warnf("request %s: %v", req.ID, err)
		}
		return o.finish(ev, start, nil, f)
	}
	o.log.Infof("request %s optimal: cost %.4f peak %.2f kW in %s", req.ID, sched.Cost.Total, sched.PeakKW, out.Elapsed)
	return o.finish(ev, start, sched, nil)
}

// finish records the run and returns its result. Metrics errors are logged
// and never change the result.
func (o *Optimizer) finish(ev metrics.OptimizationEvent, start time.Time, s *model.DispatchSchedule, f *model.OptimizationFailure) (*model.DispatchSchedule, error) {
	ev.Time = o.now()
	ev.Duration = ev.Time.Sub(start)
	if f != nil {
		ev.Status = string(f.Kind)
	} else {
		ev.Status = metrics.StatusOptimal
		ev.Cost, ev.PeakKW, ev.Summary = s.Cost, s.PeakKW, s.Summary
	}

	if err := o.sink.RecordOptimization(ev); err != nil {
		o.log.Warnf("record optimization %s: %v", ev.RequestID, err)
	}
	if s != nil {
		if r, ok := o.sink.(metrics.ScheduleRecorder); ok {
			if err := r.RecordSchedule(s); err != nil {
				o.log.Warnf("record schedule %s: %v", ev.RequestID, err)
			}
		}
	}
	if o.bus != nil {
		o.bus.Publish(events.OptimizationFinished{Event: ev, Schedule: s, Failure: f})
	}
	if f != nil {
		return nil, f
	}
	return s, nil
}
