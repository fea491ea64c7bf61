package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/joho/godotenv"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/pkg/bytesize"
	"github.com/bnema/flotilla/pkg/duration"
)

// converter turns merged raw services into canonical specs, applying
// interpolation to every scalar string field on the way through.
type converter struct {
	interp     *Interpolator
	workingDir string
}

func (c *converter) service(name string, raw *RawService) (domain.ServiceSpec, error) {
	errPath := func(field string) string { return fmt.Sprintf("services.%s.%s", name, field) }

	spec := domain.ServiceSpec{
		Name:          name,
		Image:         c.interp.Apply(raw.Image),
		Command:       c.interp.ApplyAll(raw.Command),
		Entrypoint:    c.interp.ApplyAll(raw.Entrypoint),
		Expose:        c.interp.ApplyAll(raw.Expose),
		DependsOn:     append([]string(nil), raw.DependsOn...),
		ExternalLinks: c.interp.ApplyAll(raw.ExternalLinks),
		Restart:       c.interp.Apply(raw.Restart),
		StopSignal:    c.interp.Apply(raw.StopSignal),
		Labels:        c.interp.ApplyMap(raw.Labels),
		User:          c.interp.Apply(raw.User),
		WorkingDir:    c.interp.Apply(raw.WorkingDir),
		Hostname:      c.interp.Apply(raw.Hostname),
	}
	if raw.Privileged != nil {
		spec.Privileged = *raw.Privileged
	}

	if raw.Build != nil {
		spec.Build = &domain.BuildSpec{
			Context:    c.interp.Apply(raw.Build.Context),
			Dockerfile: c.interp.Apply(raw.Build.Dockerfile),
			Args:       c.interp.ApplyMap(raw.Build.Args),
		}
	}
	if spec.Image == "" && spec.Build == nil {
		return spec, domain.NewConfigError(errPath("image"), "service needs an image or a build context")
	}

	env, err := c.environment(raw)
	if err != nil {
		return spec, domain.NewConfigError(errPath("env_file"), "%v", err)
	}
	spec.Environment = env

	ports, err := c.ports(raw.Ports)
	if err != nil {
		return spec, domain.NewConfigError(errPath("ports"), "%v", err)
	}
	spec.Ports = ports

	for _, entry := range raw.Volumes {
		mount, err := parseMount(c.interp.Apply(entry))
		if err != nil {
			return spec, domain.NewConfigError(errPath("volumes"), "%v", err)
		}
		spec.Volumes = append(spec.Volumes, mount)
	}
	for _, entry := range raw.Devices {
		mount, err := parseMount(c.interp.Apply(entry))
		if err != nil {
			return spec, domain.NewConfigError(errPath("devices"), "%v", err)
		}
		spec.Devices = append(spec.Devices, domain.DeviceMapping(mount))
	}

	for _, entry := range raw.VolumesFrom {
		service, mode, _ := strings.Cut(entry, ":")
		spec.VolumesFrom = append(spec.VolumesFrom, domain.VolumesFromRef{Service: service, Mode: mode})
	}

	for _, entry := range raw.Links {
		service, alias, _ := strings.Cut(entry, ":")
		spec.Links = append(spec.Links, domain.Link{Service: service, Alias: alias})
	}

	if raw.Networks != nil {
		spec.Networks = make(map[string]domain.NetworkAttachment, len(raw.Networks))
		for nwName, att := range raw.Networks {
			spec.Networks[nwName] = domain.NetworkAttachment{
				Aliases:     c.interp.ApplyAll(att.Aliases),
				IPv4Address: c.interp.Apply(att.IPv4Address),
				IPv6Address: c.interp.Apply(att.IPv6Address),
			}
		}
	}

	mode, err := domain.ParseNetworkMode(c.interp.Apply(raw.NetworkMode))
	if err != nil {
		return spec, domain.NewConfigError(errPath("network_mode"), "%v", err)
	}
	spec.NetworkMode = mode
	if mode.Kind != domain.NetworkModeDefault && len(spec.Networks) > 0 {
		return spec, domain.NewConfigError(errPath("network_mode"), "cannot combine network_mode with networks")
	}

	if raw.StopGracePeriod != "" {
		grace, err := duration.Parse(c.interp.Apply(raw.StopGracePeriod))
		if err != nil {
			return spec, domain.NewConfigError(errPath("stop_grace_period"), "%v", err)
		}
		spec.StopGracePeriod = grace
	}

	if raw.MemLimit != "" {
		limit, err := bytesize.Parse(c.interp.Apply(raw.MemLimit))
		if err != nil {
			return spec, domain.NewConfigError(errPath("mem_limit"), "%v", err)
		}
		spec.MemLimit = limit
	}
	if raw.MemSwapLimit != "" {
		limit, err := bytesize.Parse(c.interp.Apply(raw.MemSwapLimit))
		if err != nil {
			return spec, domain.NewConfigError(errPath("memswap_limit"), "%v", err)
		}
		spec.MemSwapLimit = limit
	}
	spec.CPUShares = raw.CPUShares

	return spec, nil
}

// environment folds env_file contents under the explicit environment block.
// A mapping entry with an empty value falls back to the interpolation
// environment, so `- FOO` in list form picks FOO up from the caller.
func (c *converter) environment(raw *RawService) (map[string]string, error) {
	if len(raw.EnvFile) == 0 && raw.Environment == nil {
		return nil, nil
	}

	out := make(map[string]string)
	for _, file := range raw.EnvFile {
		path := c.interp.Apply(file)
		if !strings.HasPrefix(path, "/") {
			path = c.workingDir + "/" + path
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			out[k] = v
		}
	}
	for k, v := range raw.Environment {
		value := c.interp.Apply(v)
		if v == "" {
			if inherited, ok := c.interp.env[k]; ok {
				value = inherited
			}
		}
		out[k] = value
	}
	return out, nil
}

// ports expands every raw port spec, including ranges, into single bindings.
func (c *converter) ports(raw []string) ([]domain.PortBinding, error) {
	var out []domain.PortBinding
	for _, entry := range raw {
		mappings, err := nat.ParsePortSpec(c.interp.Apply(entry))
		if err != nil {
			return nil, err
		}
		for _, m := range mappings {
			out = append(out, domain.PortBinding{
				Target:   string(m.Port),
				HostIP:   m.Binding.HostIP,
				HostPort: m.Binding.HostPort,
			})
		}
	}
	return out, nil
}

// parseMount splits "target", "source:target" or "source:target:mode".
func parseMount(entry string) (domain.VolumeMount, error) {
	parts := strings.Split(entry, ":")
	switch len(parts) {
	case 1:
		return domain.VolumeMount{Target: parts[0]}, nil
	case 2:
		return domain.VolumeMount{Source: parts[0], Target: parts[1]}, nil
	case 3:
		return domain.VolumeMount{Source: parts[0], Target: parts[1], Mode: parts[2]}, nil
	default:
		return domain.VolumeMount{}, fmt.Errorf("invalid volume spec %q", entry)
	}
}

// sortedServiceNames gives a stable resolution order for the service map.
func sortedServiceNames(services map[string]*RawService) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
