// Package project implements the convergence engine: it schedules lifecycle
// operations over the project's dependency graph and reconciles each
// service's containers against the engine.
package project

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bnema/flotilla/internal/domain"
)

// Outcome is the terminal status of one service within an operation.
type Outcome int

const (
	// OutcomeConverged means the service reached its desired state.
	OutcomeConverged Outcome = iota
	// OutcomeFailed means an engine call for the service failed.
	OutcomeFailed
	// OutcomeSkipped means the service was not attempted because one of its
	// transitive dependencies failed.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConverged:
		return "converged"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ServiceResult is the per-service record of one operation.
type ServiceResult struct {
	Service string
	Outcome Outcome
	Err     error
}

// Result aggregates per-service outcomes of one operation. Appends are
// synchronized; reads are only valid after the operation has joined all of
// its workers.
type Result struct {
	// RunID correlates the log lines and events of one operation.
	RunID string

	mu          sync.Mutex
	results     []ServiceResult
	interrupted bool
}

func (r *Result) add(res ServiceResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *Result) markInterrupted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = true
}

// Services returns all per-service results, sorted by service name.
func (r *Result) Services() []ServiceResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServiceResult, len(r.results))
	copy(out, r.results)
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Interrupted reports whether the operation was aborted by a signal.
func (r *Result) Interrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// Err folds the per-service breakdown into one error, or nil when every
// service converged. An interrupted operation yields ErrInterrupted.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interrupted {
		return domain.ErrInterrupted
	}

	var failures []string
	var skipped []string
	for _, res := range r.results {
		switch res.Outcome {
		case OutcomeFailed:
			failures = append(failures, fmt.Sprintf("%s: %v", res.Service, res.Err))
		case OutcomeSkipped:
			skipped = append(skipped, res.Service)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	sort.Strings(failures)
	msg := strings.Join(failures, "; ")
	if len(skipped) > 0 {
		sort.Strings(skipped)
		msg += "; skipped: " + strings.Join(skipped, ", ")
	}
	return errors.New(msg)
}

// ExitCode maps the aggregate result to a process exit status: 0 on full
// success, 1 on any failure, skip or interruption.
func (r *Result) ExitCode() int {
	if r.Err() != nil {
		return 1
	}
	return 0
}
