package config

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bnema/flotilla/internal/domain"
)

// Render serializes a resolved project back into document syntax, so the
// output of config inspection reads like a configuration file rather than
// a dump of internal types.
func Render(p *domain.Project) ([]byte, error) {
	doc := File{Services: make(map[string]*RawService, len(p.Services))}
	for i := range p.Services {
		spec := &p.Services[i]
		doc.Services[spec.Name] = renderService(spec)
	}

	if len(p.Networks) > 0 {
		doc.Networks = make(map[string]*RawNetwork, len(p.Networks))
		for name, nw := range p.Networks {
			doc.Networks[name] = renderNetwork(nw)
		}
	}
	if len(p.Volumes) > 0 {
		doc.Volumes = make(map[string]*RawVolume, len(p.Volumes))
		for name, vol := range p.Volumes {
			doc.Volumes[name] = &RawVolume{
				Driver:     vol.Driver,
				DriverOpts: vol.DriverOpts,
				External:   vol.External,
			}
		}
	}
	return yaml.Marshal(doc)
}

func renderService(spec *domain.ServiceSpec) *RawService {
	raw := &RawService{
		Image:         spec.Image,
		Command:       Command(spec.Command),
		Entrypoint:    Command(spec.Entrypoint),
		Environment:   StringMap(spec.Environment),
		Expose:        StringList(spec.Expose),
		DependsOn:     StringList(spec.DependsOn),
		ExternalLinks: StringList(spec.ExternalLinks),
		NetworkMode:   spec.NetworkMode.String(),
		Restart:       spec.Restart,
		StopSignal:    spec.StopSignal,
		CPUShares:     spec.CPUShares,
		Labels:        StringMap(spec.Labels),
		User:          spec.User,
		WorkingDir:    spec.WorkingDir,
		Hostname:      spec.Hostname,
	}
	if spec.Build != nil {
		raw.Build = &RawBuild{
			Context:    spec.Build.Context,
			Dockerfile: spec.Build.Dockerfile,
			Args:       spec.Build.Args,
		}
	}
	for _, p := range spec.Ports {
		raw.Ports = append(raw.Ports, renderPort(p))
	}
	for _, m := range spec.Volumes {
		raw.Volumes = append(raw.Volumes, renderMount(m.Source, m.Target, m.Mode))
	}
	for _, ref := range spec.VolumesFrom {
		entry := ref.Service
		if ref.Mode != "" {
			entry += ":" + ref.Mode
		}
		raw.VolumesFrom = append(raw.VolumesFrom, entry)
	}
	for _, d := range spec.Devices {
		raw.Devices = append(raw.Devices, renderMount(d.Source, d.Target, d.Mode))
	}
	for _, link := range spec.Links {
		entry := link.Service
		if link.Alias != "" && link.Alias != link.Service {
			entry += ":" + link.Alias
		}
		raw.Links = append(raw.Links, entry)
	}
	if len(spec.Networks) > 0 {
		raw.Networks = make(NetworksDecl, len(spec.Networks))
		for name, att := range spec.Networks {
			raw.Networks[name] = &RawAttachment{
				Aliases:     att.Aliases,
				IPv4Address: att.IPv4Address,
				IPv6Address: att.IPv6Address,
			}
		}
	}
	if spec.StopGracePeriod > 0 {
		raw.StopGracePeriod = spec.StopGracePeriod.String()
	}
	if spec.MemLimit > 0 {
		raw.MemLimit = strconv.FormatInt(spec.MemLimit, 10)
	}
	if spec.MemSwapLimit > 0 {
		raw.MemSwapLimit = strconv.FormatInt(spec.MemSwapLimit, 10)
	}
	if spec.Privileged {
		t := true
		raw.Privileged = &t
	}
	return raw
}

func renderNetwork(nw domain.NetworkSpec) *RawNetwork {
	raw := &RawNetwork{
		Driver:     nw.Driver,
		DriverOpts: nw.DriverOpts,
		External:   nw.External,
	}
	if nw.IPAM != nil {
		ipam := &RawIPAM{Driver: nw.IPAM.Driver}
		for _, subnet := range nw.IPAM.Subnets {
			ipam.Config = append(ipam.Config, struct {
				Subnet string `yaml:"subnet,omitempty"`
			}{Subnet: subnet})
		}
		raw.IPAM = ipam
	}
	return raw
}

// renderPort writes a binding back in "[ip:][host:]target" form, dropping
// the default tcp protocol suffix.
func renderPort(p domain.PortBinding) string {
	target := strings.TrimSuffix(p.Target, "/tcp")
	switch {
	case p.HostIP != "" && p.HostPort != "":
		return p.HostIP + ":" + p.HostPort + ":" + target
	case p.HostIP != "":
		return p.HostIP + "::" + target
	case p.HostPort != "":
		return p.HostPort + ":" + target
	default:
		return target
	}
}

func renderMount(source, target, mode string) string {
	entry := target
	if source != "" {
		entry = source + ":" + target
	}
	if mode != "" {
		entry += ":" + mode
	}
	return entry
}
