package eventlog

import (
	"context"
	"log/slog"
	"time"
)

// DrainLoopService periodically drains a Dispatcher. It implements
// github.com/duskfall/eventlog/pkg/runner.Service so the dispatcher can
// be composed alongside a hub or NATS bridge under a single process
// lifecycle (start in order, stop in reverse order).
//
// It calls a plain drain func rather than holding a *Dispatcher
// directly, so a caller can wrap Dispatcher.Drain in an observability
// decorator (tracing/metrics) before handing it to
// NewDrainLoopService, without this package importing anything
// telemetry-related itself.
type DrainLoopService struct {
	name     string
	drain    func(context.Context) (int, error)
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDrainLoopService builds a DrainLoopService that calls drain every
// interval until Stop is called. Pass dispatcher.Drain directly, or a
// wrapper around it.
func NewDrainLoopService(name string, drain func(context.Context) (int, error), interval time.Duration, logger *slog.Logger) *DrainLoopService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainLoopService{
		name:     name,
		drain:    drain,
		interval: interval,
		logger:   logger,
	}
}

// Name implements runner.Service.
func (s *DrainLoopService) Name() string { return s.name }

// Start implements runner.Service: it launches the drain loop in the
// background and returns immediately once the first drain attempt has
// completed (even if that attempt failed - a transient store hiccup at
// startup shouldn't block the rest of the process from starting).
func (s *DrainLoopService) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	if _, err := s.drain(ctx); err != nil && err != ErrAlreadyDraining {
		s.logger.Warn("eventlog: initial drain failed, loop will retry", slog.String("service", s.name), slog.Any("error", err))
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.drain(loopCtx); err != nil && err != ErrAlreadyDraining {
					s.logger.Warn("eventlog: drain failed, will retry next tick", slog.String("service", s.name), slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// Stop implements runner.Service.
func (s *DrainLoopService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// HealthCheck implements runner.HealthChecker. A DrainLoopService is
// always considered healthy once started: a failing drain logs and
// retries rather than marking the process unhealthy, since a store
// outage is transient by nature and the loop already backs off to the
// next tick.
func (s *DrainLoopService) HealthCheck(ctx context.Context) error {
	return nil
}
