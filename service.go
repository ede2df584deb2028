package fsmflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/policy"
	"github.com/viant/fsmflow/service/container"
	"github.com/viant/fsmflow/service/event"
	"github.com/viant/fsmflow/service/loop"
	"github.com/viant/fsmflow/service/metrics"
	"github.com/viant/fsmflow/tracing"
	"go.uber.org/zap"
)

// Service wires a flow container with its execution loop and observability layers
type Service struct {
	config       *Config
	loop         types.ExecutionLoop
	pool         *loop.Pool
	policy       *policy.Policy
	eventService *event.Service
	ownEvents    bool
	registerer   prometheus.Registerer
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	listeners    []types.StateChangeListener
	builders     []types.ReactorBuilder
	tracing      bool
	loggerSet    bool
	container    *container.Container
}

// Stats is a snapshot of the container counters
type Stats struct {
	Name      string `json:"name" yaml:"name"`
	Created   int64  `json:"created" yaml:"created"`
	Handled   int64  `json:"handled" yaml:"handled"`
	Completed int64  `json:"completed" yaml:"completed"`
	Bypassed  int64  `json:"bypassed" yaml:"bypassed"`
	Rejected  int64  `json:"rejected" yaml:"rejected"`
	Alive     int64  `json:"alive" yaml:"alive"`
}

// New creates a service
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	for _, option := range options {
		option(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if !s.loggerSet && s.config.Logging.Level != "" {
		level, _ := logger.ParseLevel(s.config.Logging.Level)
		logger.Set(logger.New(level))
	}
	if s.policy == nil && s.config.Admission != nil {
		s.policy = policy.FromConfig(s.config.Admission)
	}
	if s.loop == nil {
		s.loop = s.newLoop()
	}
	if s.eventService == nil && s.config.Events.Enabled {
		s.eventService = event.New()
		s.ownEvents = true
	}
	if s.config.Tracing.Enabled && !s.tracing {
		if err := tracing.Init(s.config.Tracing.Service, s.config.Tracing.Version, s.config.Tracing.Output); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		s.tracing = true
	}
	s.container = container.New(s.config.Name,
		container.WithPolicy(s.policy),
		container.WithEventService(s.eventService),
		container.WithTracing(s.tracing))

	if s.config.Metrics.Enabled || s.registerer != nil {
		if s.registerer == nil {
			s.registry = prometheus.NewRegistry()
			s.registerer = s.registry
		}
		s.metrics = metrics.New(s.config.Metrics.Namespace, s.container)
		if err := s.registerer.Register(s.metrics); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		s.container.RegisterStateChangeListener(s.metrics)
	}
	for _, listener := range s.listeners {
		s.container.RegisterStateChangeListener(listener)
	}
	for _, builder := range s.builders {
		s.container.AddReactorBuilder(builder)
	}
	return nil
}

func (s *Service) newLoop() types.ExecutionLoop {
	name := s.config.Name + "-loop"
	switch strings.ToLower(s.config.Loop.Kind) {
	case LoopInline:
		return loop.Inline()
	case LoopSerial:
		s.pool = loop.NewSerial(loop.WithName(name))
	default:
		s.pool = loop.NewPool(loop.WithName(name), loop.WithWorkers(s.config.Loop.Workers))
	}
	return s.pool
}

// Start starts the owned worker loop; it is a no-op for inline or caller supplied loops
func (s *Service) Start(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Start(ctx); err != nil && !errors.Is(err, loop.ErrStarted) {
		return err
	}
	logger.Info("fsmflow: started", zap.String("name", s.container.Name()), zap.Int("workers", s.pool.Workers()))
	return nil
}

// Shutdown stops the owned loop and event service and flushes traces
func (s *Service) Shutdown(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Shutdown()
	}
	var errs []error
	if s.ownEvents {
		errs = append(errs, s.eventService.Close())
	}
	if s.tracing {
		errs = append(errs, tracing.Shutdown(ctx))
	}
	_ = logger.L().Sync()
	return errors.Join(errs...)
}

// Create creates a flow on the service loop with init as its first state
func (s *Service) Create(flow any, init types.EventHandler, reactors ...any) (types.EventReceiver, error) {
	return s.container.Create(flow, init, s.loop, reactors...)
}

// CreateFrom creates a flow from source on the service loop
func (s *Service) CreateFrom(source types.FlowSource, reactors ...any) (types.EventReceiver, error) {
	return s.container.CreateFrom(source, s.loop, reactors...)
}

// Engine returns an event engine bound to the service loop
func (s *Service) Engine() types.EventEngine {
	return s.container.Engine(s.loop)
}

// Container returns the flow container
func (s *Service) Container() *container.Container {
	return s.container
}

// Loop returns the execution loop flows are created on
func (s *Service) Loop() types.ExecutionLoop {
	return s.loop
}

// Events returns the lifecycle event service, nil when disabled
func (s *Service) Events() *event.Service {
	return s.eventService
}

// Metrics returns the Prometheus collector, nil when disabled
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Gatherer returns the service owned registry, nil when metrics are disabled or
// registered with a caller supplied registerer
func (s *Service) Gatherer() prometheus.Gatherer {
	if s.registry == nil {
		return nil
	}
	return s.registry
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Stats returns a snapshot of the container counters
func (s *Service) Stats() Stats {
	c := s.container
	return Stats{
		Name:      c.Name(),
		Created:   c.CreatedCount(),
		Handled:   c.HandledCount(),
		Completed: c.CompletedCount(),
		Bypassed:  c.BypassCount(),
		Rejected:  c.RejectedCount(),
		Alive:     c.AliveCount(),
	}
}
