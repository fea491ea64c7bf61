package docker

import (
	"context"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/bnema/flotilla/internal/domain"
)

// Events streams the daemon's container event feed filtered to the project
// label. With a zero window the subscription starts from now and follows;
// Since replays the daemon's retained history and Until closes the stream
// at that point in time.
func (e *Engine) Events(ctx context.Context, projectName string, window domain.EventWindow) (<-chan domain.Event, <-chan error) {
	args := filters.NewArgs(
		filters.Arg("type", string(events.ContainerEventType)),
		filters.Arg("label", domain.LabelProject+"="+projectName),
	)

	opts := events.ListOptions{Filters: args}
	if !window.Since.IsZero() {
		opts.Since = window.Since.Format(time.RFC3339Nano)
	}
	if !window.Until.IsZero() {
		opts.Until = window.Until.Format(time.RFC3339Nano)
	}

	messages, engineErrs := e.client.Events(ctx, opts)

	out := make(chan domain.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- projectEvent(msg):
				case <-ctx.Done():
					return
				}
			case err, ok := <-engineErrs:
				if !ok {
					return
				}
				if err != nil && ctx.Err() == nil {
					errs <- err
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

// projectEvent maps one raw daemon message into the typed event sequence.
func projectEvent(msg events.Message) domain.Event {
	attrs := msg.Actor.Attributes
	instance := 0
	if n, err := strconv.Atoi(attrs[domain.LabelInstance]); err == nil {
		instance = n
	}

	attributes := map[string]string{
		"image": attrs["image"],
		"name":  attrs["name"],
	}

	return domain.Event{
		Timestamp:   time.Unix(0, msg.TimeNano),
		Action:      string(msg.Action),
		ContainerID: msg.Actor.ID,
		Service:     attrs[domain.LabelService],
		Instance:    instance,
		Attributes:  attributes,
	}
}
