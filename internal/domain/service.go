// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

import (
	"sort"
	"time"
)

// DefaultStopGracePeriod is how long a container gets to exit after a stop
// request before the engine escalates to SIGKILL.
const DefaultStopGracePeriod = 10 * time.Second

// ServiceSpec is the canonical, fully-merged definition of one service's
// desired container configuration. It is immutable once resolved.
type ServiceSpec struct {
	Name string

	// Exactly one of Image or Build is set after resolution; a service with
	// a build context gets its Image filled in by the builder.
	Image string
	Build *BuildSpec

	Command     []string
	Entrypoint  []string
	Environment map[string]string

	Ports  []PortBinding
	Expose []string

	Volumes     []VolumeMount
	VolumesFrom []VolumesFromRef
	Devices     []DeviceMapping

	Networks    map[string]NetworkAttachment
	NetworkMode NetworkMode

	DependsOn     []string
	Links         []Link
	ExternalLinks []string

	Restart         string
	StopSignal      string
	StopGracePeriod time.Duration

	Labels map[string]string

	// Resource limits, zero means unconstrained.
	MemLimit     int64
	MemSwapLimit int64
	CPUShares    int64

	User       string
	WorkingDir string
	Hostname   string
	Privileged bool
}

// BuildSpec describes how to build the service image from source.
type BuildSpec struct {
	Context    string
	Dockerfile string
	Args       map[string]string
}

// PortBinding maps a container port to an optional host address. Target is
// in "port/proto" form; HostPort empty means the engine picks a free port.
type PortBinding struct {
	Target   string
	HostIP   string
	HostPort string
}

// VolumeMount is one entry of a service's ordered volume list.
// Source is empty for anonymous volumes, a named volume, or a host path.
type VolumeMount struct {
	Source string
	Target string
	Mode   string
}

// IsNamed reports whether the mount refers to a declared named volume
// rather than a host path or an anonymous volume.
func (m VolumeMount) IsNamed() bool {
	return m.Source != "" && m.Source[0] != '/' && m.Source[0] != '.' && m.Source[0] != '~'
}

// VolumesFromRef borrows the volumes of another service's container.
type VolumesFromRef struct {
	Service string
	Mode    string
}

// DeviceMapping exposes a host device inside the container.
type DeviceMapping struct {
	Source string
	Target string
	Mode   string
}

// NetworkAttachment holds per-network endpoint settings for a service.
type NetworkAttachment struct {
	Aliases     []string
	IPv4Address string
	IPv6Address string
}

// Link is a legacy container link to another service in the project.
type Link struct {
	Service string
	Alias   string
}

// DependencyNames returns every service this spec must be reconciled after:
// depends_on, links, volumes_from and a service-scoped network mode.
// The result is sorted and free of duplicates.
func (s *ServiceSpec) DependencyNames() []string {
	seen := make(map[string]struct{})
	for _, name := range s.DependsOn {
		seen[name] = struct{}{}
	}
	for _, link := range s.Links {
		seen[link.Service] = struct{}{}
	}
	for _, ref := range s.VolumesFrom {
		seen[ref.Service] = struct{}{}
	}
	if s.NetworkMode.Kind == NetworkModeService {
		seen[s.NetworkMode.Ref] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GraceOrDefault returns the configured stop grace period, falling back to
// the compose default of 10 seconds.
func (s *ServiceSpec) GraceOrDefault() time.Duration {
	if s.StopGracePeriod > 0 {
		return s.StopGracePeriod
	}
	return DefaultStopGracePeriod
}
