package domain

// ContainerState values as reported by the engine.
const (
	StateCreated = "created"
	StateRunning = "running"
	StatePaused  = "paused"
	StateExited  = "exited"
	StateDead    = "dead"
)

// Container is the engine-observed state of one container owned by a
// service. The engine owns the record; the core only ever mutates it through
// engine calls.
type Container struct {
	ID       string
	Name     string
	Service  string
	Instance int
	OneOff   bool
	State    string
	ExitCode int
	Image    string
	Labels   map[string]string
	Mounts   []MountPoint
	Ports    []PortBinding
}

// LogOptions selects the window of a container's log stream.
type LogOptions struct {
	Follow     bool
	Timestamps bool
	// Tail limits output to the last N lines; "" or "all" means everything.
	Tail string
}

// MountPoint is one mounted volume of an existing container, as inspected.
type MountPoint struct {
	Name        string
	Source      string
	Destination string
	Mode        string
}

// IsRunning reports whether the container is currently running.
func (c *Container) IsRunning() bool {
	return c.State == StateRunning
}

// Fingerprint returns the config hash captured at creation time, or "" for
// containers created outside the project.
func (c *Container) Fingerprint() string {
	return c.Labels[LabelConfigHash]
}

// CreateConfig is everything the engine needs to create one container.
type CreateConfig struct {
	Name   string
	Image  string
	Spec   *ServiceSpec
	Labels map[string]string

	// Command and Entrypoint override the spec's values when non-nil,
	// which run-style operations use for ad-hoc commands.
	Command    []string
	Entrypoint []string

	// MountsFrom carries named volumes forward from a container being
	// replaced, so data survives a recreate.
	MountsFrom []MountPoint

	// VolumeNames and NetworkNames map declared resource names to their
	// engine-side names, resolved against the project's declarations.
	VolumeNames  map[string]string
	NetworkNames map[string]string

	// VolumesFrom and Links hold the spec's service references resolved to
	// engine container names ("name" or "name:mode", "name:alias").
	VolumesFrom []string
	Links       []string

	// NetworkMode is the engine-side network mode; a service-scoped mode
	// arrives here already resolved to "container:<id>".
	NetworkMode string

	AutoRemove bool
}
