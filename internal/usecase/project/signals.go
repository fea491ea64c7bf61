package project

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bnema/flotilla/internal/domain"
)

// CoordinatorState is the phase of a signal-supervised run.
type CoordinatorState int

const (
	StateIdle CoordinatorState = iota
	StateRunning
	// StateStopping means a first signal arrived: the operation's context is
	// canceled and a graceful stop is sweeping the project's containers.
	StateStopping
	// StateForceStopping means a second signal arrived: the sweep is
	// abandoned and containers are killed outright.
	StateForceStopping
	StateDone
)

// SignalCoordinator supervises a foreground operation. The first interrupt
// cancels it and stops the project's containers within their grace periods;
// a second interrupt kills them immediately. Either way the run is reported
// as interrupted.
type SignalCoordinator struct {
	svc     *Service
	timeout *time.Duration
	signals chan os.Signal

	mu    sync.Mutex
	state CoordinatorState
}

// NewSignalCoordinator builds a coordinator for svc. timeout overrides the
// per-service stop grace periods during the sweep when non-nil.
func NewSignalCoordinator(svc *Service, timeout *time.Duration) *SignalCoordinator {
	return &SignalCoordinator{
		svc:     svc,
		timeout: timeout,
		signals: make(chan os.Signal, 2),
	}
}

// Notify subscribes the coordinator to SIGINT and SIGTERM. The returned
// function unsubscribes.
func (c *SignalCoordinator) Notify() func() {
	signal.Notify(c.signals, os.Interrupt, syscall.SIGTERM)
	return func() { signal.Stop(c.signals) }
}

// Deliver injects a signal, for callers that manage their own notification.
func (c *SignalCoordinator) Deliver(sig os.Signal) {
	select {
	case c.signals <- sig:
	default:
	}
}

// State returns the coordinator's current phase.
func (c *SignalCoordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SignalCoordinator) setState(state CoordinatorState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Run executes op under signal supervision and blocks until both the
// operation and any shutdown sweep have finished.
func (c *SignalCoordinator) Run(ctx context.Context, op func(context.Context) *Result) *Result {
	opCtx, cancelOp := context.WithCancel(ctx)
	defer cancelOp()
	c.setState(StateRunning)

	done := make(chan *Result, 1)
	go func() { done <- op(opCtx) }()

	var result *Result
	var sweepCh chan struct{}
	var cancelSweep context.CancelFunc
	interrupted := false

	for result == nil || sweepCh != nil {
		select {
		case r := <-done:
			result = r
			done = nil

		case <-sweepCh:
			sweepCh = nil
			if cancelSweep != nil {
				cancelSweep()
				cancelSweep = nil
			}

		case <-c.signals:
			if !interrupted {
				interrupted = true
				c.setState(StateStopping)
				log.Info().Msg("gracefully stopping, interrupt again to force")
				cancelOp()

				var sweepCtx context.Context
				sweepCtx, cancelSweep = context.WithCancel(context.Background())
				sweepCh = make(chan struct{})
				go func() {
					defer close(sweepCh)
					c.svc.stopAll(sweepCtx, c.timeout)
				}()
			} else {
				c.setState(StateForceStopping)
				log.Warn().Msg("forcing shutdown")
				if cancelSweep != nil {
					cancelSweep()
				}
				c.svc.killAll(context.Background())
			}
		}
	}

	if result == nil {
		result = &Result{}
	}
	if interrupted {
		result.markInterrupted()
	}
	c.setState(StateDone)
	return result
}

// stopAll sweeps a graceful stop over every running project container,
// each with its own service's grace period.
func (s *Service) stopAll(ctx context.Context, timeout *time.Duration) {
	containers, err := s.engine.ListContainers(ctx, false, map[string]string{
		domain.LabelProject: s.project.Name,
	})
	if err != nil {
		log.Warn().Err(err).Msg("listing containers for shutdown")
		return
	}

	var wg sync.WaitGroup
	for _, c := range containers {
		wg.Add(1)
		go func(c *domain.Container) {
			defer wg.Done()
			grace := domain.DefaultStopGracePeriod
			if spec := s.project.Service(c.Service); spec != nil {
				grace = graceFor(spec, timeout)
			} else if timeout != nil {
				grace = *timeout
			}
			if err := s.engine.StopContainer(ctx, c.ID, grace); err != nil {
				log.Warn().Err(err).Str("container", c.Name).Msg("stop failed")
			}
		}(c)
	}
	wg.Wait()
}

// killAll kills every running project container without grace.
func (s *Service) killAll(ctx context.Context) {
	containers, err := s.engine.ListContainers(ctx, false, map[string]string{
		domain.LabelProject: s.project.Name,
	})
	if err != nil {
		log.Warn().Err(err).Msg("listing containers for kill")
		return
	}
	for _, c := range containers {
		if err := s.engine.KillContainer(ctx, c.ID, "SIGKILL"); err != nil {
			log.Warn().Err(err).Str("container", c.Name).Msg("kill failed")
		}
	}
}

// WaitForExit blocks until the targeted services' running containers exit.
// With abortOnExit, the first exit stops the rest of the project and its
// exit code becomes the return value; otherwise the first non-zero code
// observed is returned after all containers have exited.
func (s *Service) WaitForExit(ctx context.Context, services []string, abortOnExit bool, timeout *time.Duration) (int, error) {
	targets, err := s.resolveTargets(services, false)
	if err != nil {
		return 1, err
	}

	type exit struct {
		name string
		code int
		err  error
	}
	var watched []*domain.Container
	for _, name := range targets {
		containers, err := s.containersFor(ctx, name, false, false)
		if err != nil {
			return 1, err
		}
		for _, c := range containers {
			if c.IsRunning() {
				watched = append(watched, c)
			}
		}
	}
	if len(watched) == 0 {
		return 0, nil
	}

	exits := make(chan exit, len(watched))
	for _, c := range watched {
		go func(c *domain.Container) {
			code, err := s.engine.WaitContainer(ctx, c.ID)
			exits <- exit{name: c.Name, code: code, err: err}
		}(c)
	}

	firstNonZero := 0
	for range watched {
		var e exit
		select {
		case <-ctx.Done():
			return 1, ctx.Err()
		case e = <-exits:
		}
		if e.err != nil {
			return 1, e.err
		}
		log.Info().Str("container", e.name).Int("code", e.code).Msg("exited")
		if abortOnExit {
			log.Info().Str("container", e.name).Msg("aborting on container exit")
			s.stopAll(ctx, timeout)
			return e.code, nil
		}
		if e.code != 0 && firstNonZero == 0 {
			firstNonZero = e.code
		}
	}
	return firstNonZero, nil
}
