package project

import (
	"context"

	"github.com/bnema/flotilla/internal/domain"
)

// StreamEvents relays the engine's event feed for this project, filtered to
// services declared in the current configuration. Events from containers
// whose service was removed from the config are dropped. window bounds the
// stream to a historical range; a zero window follows live until ctx is
// canceled. The error channel yields at most one error.
func (s *Service) StreamEvents(ctx context.Context, services []string, window domain.EventWindow) (<-chan domain.Event, <-chan error, error) {
	want := make(map[string]bool, len(services))
	for _, name := range services {
		if s.project.Service(name) == nil {
			return nil, nil, domain.NewConfigError("", "no such service: %s", name)
		}
		want[name] = true
	}

	src, srcErrs := s.engine.Events(ctx, s.project.Name, window)
	events := make(chan domain.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-srcErrs:
				if ok && err != nil && ctx.Err() == nil {
					errs <- err
				}
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				if s.project.Service(ev.Service) == nil {
					continue
				}
				if len(want) > 0 && !want[ev.Service] {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errs, nil
}
