// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (the container engine, the image builder).
package out

import (
	"context"
	"io"
	"time"

	"github.com/bnema/flotilla/internal/domain"
)

// Engine is the container-engine collaborator. All calls are blocking I/O
// and honor context cancellation.
type Engine interface {
	// Container lifecycle
	CreateContainer(ctx context.Context, cfg domain.CreateConfig) (*domain.Container, error)
	StartContainer(ctx context.Context, containerID string) error
	// StopContainer asks the container to exit gracefully, escalating to a
	// kill when it has not exited after grace.
	StopContainer(ctx context.Context, containerID string, grace time.Duration) error
	KillContainer(ctx context.Context, containerID, signal string) error
	RestartContainer(ctx context.Context, containerID string, grace time.Duration) error
	PauseContainer(ctx context.Context, containerID string) error
	UnpauseContainer(ctx context.Context, containerID string) error
	// RenameContainer frees a container's name so a replacement can take it
	// before the old container is removed.
	RenameContainer(ctx context.Context, containerID, newName string) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
	WaitContainer(ctx context.Context, containerID string) (int, error)

	// ContainerLogs streams the container's combined stdout and stderr,
	// already demultiplexed. The caller closes the stream.
	ContainerLogs(ctx context.Context, containerID string, opts domain.LogOptions) (io.ReadCloser, error)

	// Container inspection
	InspectContainer(ctx context.Context, containerID string) (*domain.Container, error)
	// ListContainers returns containers matching the label filters, newest
	// first. Keys with empty values filter on label presence.
	ListContainers(ctx context.Context, all bool, labels map[string]string) ([]*domain.Container, error)

	// Image operations
	PullImage(ctx context.Context, imageRef string) error
	RemoveImage(ctx context.Context, imageRef string, force bool) error

	// Network management
	EnsureNetwork(ctx context.Context, projectName string, spec domain.NetworkSpec) error
	RemoveNetwork(ctx context.Context, name string) error
	NetworkExists(ctx context.Context, name string) (bool, error)

	// Volume management
	EnsureVolume(ctx context.Context, projectName string, spec domain.VolumeSpec) error
	RemoveVolume(ctx context.Context, name string, force bool) error
	VolumeExists(ctx context.Context, name string) (bool, error)

	// Events streams the engine event feed filtered to the project's label
	// until ctx is canceled, bounded by window when its fields are set.
	// The error channel yields at most one error.
	Events(ctx context.Context, projectName string, window domain.EventWindow) (<-chan domain.Event, <-chan error)

	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error
}
