package fsmflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/fsmflow/internal/logger"
	"github.com/viant/fsmflow/model/types"
	"github.com/viant/fsmflow/policy"
	"github.com/viant/fsmflow/service/event"
	"github.com/viant/fsmflow/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Option customises the service
type Option func(s *Service)

// WithConfig sets the service configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLoop sets the execution loop, overriding the configured loop kind
func WithLoop(loop types.ExecutionLoop) Option {
	return func(s *Service) {
		s.loop = loop
	}
}

// WithPolicy sets the admission policy, overriding the configured one
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithEventService sets the lifecycle event service
func WithEventService(srv *event.Service) Option {
	return func(s *Service) {
		s.eventService = srv
	}
}

// WithMetricsRegisterer sets the registerer metrics are registered with
func WithMetricsRegisterer(registerer prometheus.Registerer) Option {
	return func(s *Service) {
		s.registerer = registerer
	}
}

// WithLogger replaces the process-wide logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		logger.Set(l)
		s.loggerSet = true
	}
}

// WithStateChangeListener registers listeners notified for every flow
func WithStateChangeListener(listeners ...types.StateChangeListener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listeners...)
	}
}

// WithReactorBuilder registers builders contributing reactors to every flow
func WithReactorBuilder(builders ...types.ReactorBuilder) Option {
	return func(s *Service) {
		s.builders = append(s.builders, builders...)
	}
}

// WithTracingExporter configures OpenTelemetry with a custom exporter and enables dispatch spans.
// The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			logger.Warn("fsmflow: failed to init tracing", zap.Error(err))
			return
		}
		s.tracing = true
	}
}
