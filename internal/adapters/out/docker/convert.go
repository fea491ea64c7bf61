package docker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/bnema/flotilla/internal/domain"
)

// createParams translates a domain create config into the three Docker
// create payloads.
func createParams(cfg domain.CreateConfig) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	spec := cfg.Spec

	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	for _, p := range spec.Ports {
		port := nat.Port(p.Target)
		exposedPorts[port] = struct{}{}
		portBindings[port] = append(portBindings[port], nat.PortBinding{
			HostIP:   p.HostIP,
			HostPort: p.HostPort,
		})
	}
	for _, raw := range spec.Expose {
		proto := "tcp"
		value := raw
		if p, rest, ok := strings.Cut(raw, "/"); ok {
			value, proto = p, rest
		}
		exposedPorts[nat.Port(value+"/"+proto)] = struct{}{}
	}

	env := make([]string, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}

	command := spec.Command
	if cfg.Command != nil {
		command = cfg.Command
	}
	entrypoint := spec.Entrypoint
	if cfg.Entrypoint != nil {
		entrypoint = cfg.Entrypoint
	}

	containerConfig := &container.Config{
		Image:        cfg.Image,
		Cmd:          command,
		Entrypoint:   entrypoint,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       cfg.Labels,
		User:         spec.User,
		WorkingDir:   spec.WorkingDir,
		Hostname:     spec.Hostname,
		StopSignal:   spec.StopSignal,
	}
	if spec.StopGracePeriod > 0 {
		timeout := int(spec.StopGracePeriod.Seconds())
		containerConfig.StopTimeout = &timeout
	}

	binds := bindsFor(spec, cfg.VolumeNames, cfg.MountsFrom)

	restartPolicy, err := parseRestartPolicy(spec.Restart)
	if err != nil {
		return nil, nil, nil, err
	}

	hostConfig := &container.HostConfig{
		AutoRemove:    cfg.AutoRemove,
		Binds:         binds,
		PortBindings:  portBindings,
		RestartPolicy: restartPolicy,
		Privileged:    spec.Privileged,
		Resources: container.Resources{
			Memory:     spec.MemLimit,
			MemorySwap: spec.MemSwapLimit,
			CPUShares:  spec.CPUShares,
		},
	}
	hostConfig.VolumesFrom = cfg.VolumesFrom
	for _, dev := range spec.Devices {
		hostConfig.Devices = append(hostConfig.Devices, container.DeviceMapping{
			PathOnHost:        dev.Source,
			PathInContainer:   dev.Target,
			CgroupPermissions: dev.Mode,
		})
	}
	hostConfig.Links = append(hostConfig.Links, cfg.Links...)
	hostConfig.Links = append(hostConfig.Links, spec.ExternalLinks...)

	if cfg.NetworkMode != "" {
		hostConfig.NetworkMode = container.NetworkMode(cfg.NetworkMode)
	}

	var networkConfig *network.NetworkingConfig
	if len(spec.Networks) > 0 && spec.NetworkMode.Kind == domain.NetworkModeDefault {
		endpoints := make(map[string]*network.EndpointSettings, len(spec.Networks))
		for name, att := range spec.Networks {
			runtimeName := cfg.NetworkNames[name]
			if runtimeName == "" {
				runtimeName = name
			}
			endpoint := &network.EndpointSettings{Aliases: append([]string{spec.Name}, att.Aliases...)}
			if att.IPv4Address != "" || att.IPv6Address != "" {
				endpoint.IPAMConfig = &network.EndpointIPAMConfig{
					IPv4Address: att.IPv4Address,
					IPv6Address: att.IPv6Address,
				}
			}
			endpoints[runtimeName] = endpoint
		}
		networkConfig = &network.NetworkingConfig{EndpointsConfig: endpoints}
	}

	return containerConfig, hostConfig, networkConfig, nil
}

// bindsFor renders the spec's volume list as engine bind strings, resolving
// named volumes to their engine-side names and laying the carried-over
// volumes from a replaced container on top so data survives a recreate.
func bindsFor(spec *domain.ServiceSpec, volumeNames map[string]string, carryOver []domain.MountPoint) []string {
	var binds []string

	byTarget := make(map[string]domain.MountPoint, len(carryOver))
	for _, m := range carryOver {
		if m.Name != "" {
			byTarget[m.Destination] = m
		}
	}

	for _, mount := range spec.Volumes {
		if mount.Source == "" {
			// Anonymous volume: carry the old instance forward when one
			// occupied the same target, otherwise let the engine create it.
			if old, ok := byTarget[mount.Target]; ok {
				binds = append(binds, bindString(old.Name, mount.Target, mount.Mode))
				continue
			}
			binds = append(binds, mount.Target)
			continue
		}
		source := mount.Source
		if mount.IsNamed() {
			if resolved, ok := volumeNames[mount.Source]; ok {
				source = resolved
			}
		}
		binds = append(binds, bindString(source, mount.Target, mount.Mode))
	}

	return binds
}

func bindString(source, target, mode string) string {
	if mode != "" {
		return source + ":" + target + ":" + mode
	}
	return source + ":" + target
}

// parseRestartPolicy parses "no", "always", "unless-stopped" and
// "on-failure[:retries]".
func parseRestartPolicy(value string) (container.RestartPolicy, error) {
	if value == "" {
		return container.RestartPolicy{}, nil
	}
	name, retries, hasRetries := strings.Cut(value, ":")
	policy := container.RestartPolicy{Name: container.RestartPolicyMode(name)}
	if hasRetries {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return container.RestartPolicy{}, fmt.Errorf("invalid restart policy %q", value)
		}
		policy.MaximumRetryCount = n
	}
	switch policy.Name {
	case container.RestartPolicyDisabled, container.RestartPolicyAlways,
		container.RestartPolicyOnFailure, container.RestartPolicyUnlessStopped:
		return policy, nil
	default:
		return container.RestartPolicy{}, fmt.Errorf("invalid restart policy %q", value)
	}
}
