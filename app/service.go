package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kilianp07/gridflex/app/plugins"
	"github.com/kilianp07/gridflex/config"
	"github.com/kilianp07/gridflex/core/events"
	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
	coremqtt "github.com/kilianp07/gridflex/core/mqtt"
	"github.com/kilianp07/gridflex/core/optimizer"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/infra/metrics"
	"github.com/kilianp07/gridflex/infra/mqtt"
	"github.com/kilianp07/gridflex/infra/prices"
	"github.com/kilianp07/gridflex/internal/eventbus"
	"github.com/kilianp07/gridflex/internal/solverpool"
)

// Service wires the optimizer to its solver pool, metrics sinks, price store
// and schedule publisher. Finished runs flow through an event bus so that
// recording and publishing never delay the caller.
type Service struct {
	opt       *optimizer.Optimizer
	pool      *solverpool.Pool
	bus       *eventbus.TypedBus[events.OptimizationFinished]
	sink      coremetrics.MetricsSink
	prices    *prices.Store
	source    string
	publisher coremqtt.Publisher
	log       logger.Logger
	listen    string

	cancel  context.CancelFunc
	workers []<-chan struct{}
}

// Options overrides parts of the service built from configuration.
type Options struct {
	// Publish connects to the MQTT broker and forwards every schedule.
	Publish bool
	// Publisher replaces the MQTT publisher when set.
	Publisher coremqtt.Publisher
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts Options) (*Service, error) {
	logg := logger.New("service")
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	backend, err := plugins.NewSolver(cfg.Solver.Backend)
	if err != nil {
		return nil, fmt.Errorf("solver backend: %w", err)
	}

	s := &Service{
		pool:   solverpool.New(backend, cfg.Solver.PoolSize),
		bus:    eventbus.NewTyped[events.OptimizationFinished](),
		sink:   sink,
		source: cfg.Prices.Source,
		log:    logg,
		listen: cfg.Metrics.ListenAddr,
	}
	// sinks are fed by the collector, not by the optimizer itself
	s.opt = optimizer.New(s.pool, cfg.Solver.Optimizer(), logger.New("optimizer"), coremetrics.NopSink{})
	s.opt.SetEventBus(s.bus)

	if cfg.Prices.Enabled() {
		st, err := prices.Open(cfg.Prices.Path)
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("price store: %w", err)
		}
		s.prices = st
	}

	s.publisher = opts.Publisher
	if s.publisher == nil && opts.Publish {
		p, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			s.closeResources()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.publisher = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.workers = append(s.workers, metrics.StartEventCollector(ctx, s.bus, sink, logger.New("collector")))
	if s.publisher != nil {
		s.workers = append(s.workers, startForwarder(ctx, s.bus, s.publisher, logger.New("forwarder")))
	}
	return s, nil
}

// Optimize fills a dynamic tariff without entries from the price store, then
// runs the optimizer.
func (s *Service) Optimize(ctx context.Context, req model.Request) (*model.DispatchSchedule, error) {
	if err := s.fillTariff(ctx, &req); err != nil {
		return nil, &model.OptimizationFailure{RequestID: req.ID, Kind: model.FailureValidation, Err: err}
	}
	return s.opt.Optimize(ctx, req)
}

func (s *Service) fillTariff(ctx context.Context, req *model.Request) error {
	if req.Tariff.Type != model.TariffDynamic || len(req.Tariff.Entries) > 0 || s.prices == nil {
		return nil
	}
	h, err := req.Horizon.Build()
	if err != nil {
		return err
	}
	spec, err := s.prices.TariffSpec(ctx, s.source, h, req.Tariff.NetworkFee)
	if err != nil {
		return fmt.Errorf("tariff from prices: %w", err)
	}
	s.log.Debugf("tariff filled with %d prices of %s", len(spec.Entries), s.source)
	req.Tariff = spec
	return nil
}

// Prices returns the configured price store, nil when none is configured.
func (s *Service) Prices() *prices.Store { return s.prices }

// Run serves Prometheus metrics when a listen address is configured and
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.listen == "" {
		<-ctx.Done()
		return nil
	}
	s.log.Infof("serving metrics on %s", s.listen)
	return metrics.StartPromServer(ctx, s.listen)
}

// Close drains pending events and releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	for _, done := range s.workers {
		<-done
	}
	s.cancel()
	return s.closeResources()
}

func (s *Service) closeResources() error {
	var errs []error
	s.pool.Close()
	if p, ok := s.publisher.(interface{ Disconnect() }); ok {
		p.Disconnect()
	}
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.prices != nil {
		errs = append(errs, s.prices.Close())
	}
	return errors.Join(errs...)
}
