package project

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/bnema/flotilla/internal/domain"
)

// DefaultMaxParallel bounds how many services an operation converges at
// once when no explicit limit is configured.
const DefaultMaxParallel = 10

// nodeState is the completion record a scheduler node publishes to its
// dependents. done is closed exactly once, after outcome is set.
type nodeState struct {
	done    chan struct{}
	outcome Outcome
}

// walk applies fn to every service in targets, honoring graph order:
// a node runs only after all of its in-target dependencies have converged.
// When reverse is true the edges flip, so a node runs only after all of its
// in-target dependents have completed (the shutdown order). Independent
// branches run in parallel, bounded by the service's semaphore. A failed
// node marks every transitive in-target (reverse-)dependent as skipped.
func (s *Service) walk(ctx context.Context, targets []string, reverse bool, fn func(context.Context, *domain.ServiceSpec) error) *Result {
	result := &Result{RunID: uuid.NewString()}
	log.Debug().Str("run", result.RunID).Int("targets", len(targets)).Bool("reverse", reverse).Msg("walking graph")

	states := make(map[string]*nodeState, len(targets))
	inTarget := make(map[string]bool, len(targets))
	for _, name := range targets {
		states[name] = &nodeState{done: make(chan struct{})}
		inTarget[name] = true
	}

	upstream := func(name string) []string {
		if reverse {
			return s.graph.Dependents(name)
		}
		return s.graph.Dependencies(name)
	}

	var wg sync.WaitGroup
	for _, name := range targets {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			state := states[name]
			defer close(state.done)

			for _, dep := range upstream(name) {
				if !inTarget[dep] {
					continue
				}
				depState := states[dep]
				select {
				case <-depState.done:
				case <-ctx.Done():
					state.outcome = OutcomeSkipped
					result.add(ServiceResult{Service: name, Outcome: OutcomeSkipped, Err: ctx.Err()})
					return
				}
				if depState.outcome != OutcomeConverged {
					state.outcome = OutcomeSkipped
					log.Debug().Str("service", name).Str("dependency", dep).Msg("skipping service, dependency did not converge")
					result.add(ServiceResult{
						Service: name,
						Outcome: OutcomeSkipped,
						Err:     fmt.Errorf("dependency %s did not converge", dep),
					})
					return
				}
			}

			if err := s.sem.Acquire(ctx, 1); err != nil {
				state.outcome = OutcomeSkipped
				result.add(ServiceResult{Service: name, Outcome: OutcomeSkipped, Err: err})
				return
			}
			err := fn(ctx, s.project.Service(name))
			s.sem.Release(1)

			if err != nil {
				state.outcome = OutcomeFailed
				if errors.Is(err, domain.ErrNoContainers) {
					// Nothing to act on is a user error for this service
					// only; its graph neighbors still run.
					state.outcome = OutcomeConverged
				}
				log.Debug().Str("service", name).Err(err).Msg("service did not converge")
				result.add(ServiceResult{Service: name, Outcome: OutcomeFailed, Err: err})
				return
			}
			state.outcome = OutcomeConverged
			result.add(ServiceResult{Service: name, Outcome: OutcomeConverged})
		}(name)
	}
	wg.Wait()

	return result
}

func newSemaphore(maxParallel int) *semaphore.Weighted {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return semaphore.NewWeighted(int64(maxParallel))
}
