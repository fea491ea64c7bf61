package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/archive"
	"github.com/rs/zerolog/log"

	boundaries "github.com/bnema/flotilla/internal/boundaries/out"
)

// Build constructs an image from a build context directory and returns the
// reference it was tagged with.
func (e *Engine) Build(ctx context.Context, opts boundaries.BuildOptions) (string, error) {
	buildContext, err := archive.TarWithOptions(opts.ContextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to tar build context: %w", err)
	}
	defer buildContext.Close()

	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	args := make(map[string]*string, len(opts.Args))
	for k, v := range opts.Args {
		value := v
		args[k] = &value
	}

	log.Info().Str("context", opts.ContextDir).Strs("tags", opts.Tags).Msg("building image")

	resp, err := e.client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile:  dockerfile,
		Tags:        opts.Tags,
		BuildArgs:   args,
		NoCache:     opts.NoCache,
		PullParent:  opts.Pull,
		ForceRemove: opts.ForceRm,
		Remove:      true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The body is a JSON progress stream; a failed step arrives as an
	// error message inside it, not as a transport error.
	if err := drainBuildOutput(resp.Body); err != nil {
		return "", err
	}

	if len(opts.Tags) > 0 {
		return opts.Tags[0], nil
	}
	return "", nil
}

func drainBuildOutput(body io.Reader) error {
	dec := json.NewDecoder(body)
	for {
		var line struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}
		if line.Error != "" {
			return fmt.Errorf("build failed: %s", line.Error)
		}
	}
}
