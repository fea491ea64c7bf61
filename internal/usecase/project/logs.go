package project

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/flotilla/internal/domain"
)

// LogsOptions controls Logs.
type LogsOptions struct {
	Follow     bool
	Timestamps bool
	// Tail limits each container's output to its last N lines.
	Tail    string
	NoColor bool
}

var prefixColors = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgYellow),
	color.New(color.FgGreen),
	color.New(color.FgMagenta),
	color.New(color.FgBlue),
	color.New(color.FgRed),
}

// Logs streams the targeted services' container output to w, each line
// prefixed with its container name. Streams are interleaved line by line;
// with Follow the call blocks until ctx is canceled.
func (s *Service) Logs(ctx context.Context, services []string, w io.Writer, opts LogsOptions) error {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return err
	}

	var watched []*domain.Container
	for _, name := range targets {
		containers, err := s.containersFor(ctx, name, false, true)
		if err != nil {
			return err
		}
		watched = append(watched, containers...)
	}
	if len(watched) == 0 {
		return domain.ErrNoContainers
	}

	width := 0
	for _, c := range watched {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range watched {
		c := c
		prefix := fmt.Sprintf("%-*s | ", width, c.Name)
		if !opts.NoColor {
			prefix = prefixColors[i%len(prefixColors)].Sprint(prefix)
		}
		g.Go(func() error {
			return s.streamLogs(ctx, c, w, &mu, prefix, opts)
		})
	}
	return g.Wait()
}

func (s *Service) streamLogs(ctx context.Context, c *domain.Container, w io.Writer, mu *sync.Mutex, prefix string, opts LogsOptions) error {
	rc, err := s.engine.ContainerLogs(ctx, c.ID, domain.LogOptions{
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
		Tail:       opts.Tail,
	})
	if err != nil {
		return domain.NewEngineError(c.Service, "logs", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		mu.Lock()
		_, err := fmt.Fprintf(w, "%s%s\n", prefix, scanner.Text())
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return domain.NewEngineError(c.Service, "logs", err)
	}
	return nil
}
