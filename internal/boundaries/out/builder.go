package out

import "context"

// BuildOptions parameterize one image build.
type BuildOptions struct {
	ContextDir string
	Dockerfile string
	Tags       []string
	Args       map[string]string
	NoCache    bool
	Pull       bool
	ForceRm    bool
}

// Builder constructs images from build contexts. It returns the reference
// of the built image.
type Builder interface {
	Build(ctx context.Context, opts BuildOptions) (string, error)
}
