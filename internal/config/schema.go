// Package config resolves layered compose documents into a canonical
// domain.Project: it merges override files and extends references, expands
// variable interpolation and validates cross-references.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is one parsed configuration document.
type File struct {
	Filename string            `yaml:"-"`
	Version  string            `yaml:"version,omitempty"`
	Services map[string]*RawService `yaml:"services"`
	Networks map[string]*RawNetwork `yaml:"networks,omitempty"`
	Volumes  map[string]*RawVolume  `yaml:"volumes,omitempty"`
}

// RawService mirrors one service block as written in a document, before any
// merging or interpolation. Pointer and wrapper types keep "absent" apart
// from zero values so the merge can apply latest-non-absent semantics.
type RawService struct {
	Extends *RawExtends `yaml:"extends,omitempty"`

	Image string    `yaml:"image,omitempty"`
	Build *RawBuild `yaml:"build,omitempty"`

	Command    Command `yaml:"command,omitempty"`
	Entrypoint Command `yaml:"entrypoint,omitempty"`

	Environment StringMap  `yaml:"environment,omitempty"`
	EnvFile     StringList `yaml:"env_file,omitempty"`

	Ports  []string   `yaml:"ports,omitempty"`
	Expose StringList `yaml:"expose,omitempty"`

	Volumes     []string   `yaml:"volumes,omitempty"`
	VolumesFrom StringList `yaml:"volumes_from,omitempty"`
	Devices     []string   `yaml:"devices,omitempty"`

	Networks    NetworksDecl `yaml:"networks,omitempty"`
	NetworkMode string       `yaml:"network_mode,omitempty"`

	DependsOn     StringList `yaml:"depends_on,omitempty"`
	Links         StringList `yaml:"links,omitempty"`
	ExternalLinks StringList `yaml:"external_links,omitempty"`

	Restart         string `yaml:"restart,omitempty"`
	StopSignal      string `yaml:"stop_signal,omitempty"`
	StopGracePeriod string `yaml:"stop_grace_period,omitempty"`

	MemLimit     string `yaml:"mem_limit,omitempty"`
	MemSwapLimit string `yaml:"memswap_limit,omitempty"`
	CPUShares    int64  `yaml:"cpu_shares,omitempty"`

	Labels StringMap `yaml:"labels,omitempty"`

	User       string `yaml:"user,omitempty"`
	WorkingDir string `yaml:"working_dir,omitempty"`
	Hostname   string `yaml:"hostname,omitempty"`
	Privileged *bool  `yaml:"privileged,omitempty"`
}

// RawExtends references a service defined in another (or the same) document.
type RawExtends struct {
	File    string `yaml:"file,omitempty"`
	Service string `yaml:"service"`
}

// RawBuild is the build block; a bare string is shorthand for the context.
type RawBuild struct {
	Context    string            `yaml:"context"`
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Args       map[string]string `yaml:"args,omitempty"`
}

// UnmarshalYAML accepts either `build: ./dir` or the full mapping form.
func (b *RawBuild) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.Context = node.Value
		return nil
	}
	type plain RawBuild
	return node.Decode((*plain)(b))
}

// RawNetwork is a top-level network declaration.
type RawNetwork struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	External   bool              `yaml:"external,omitempty"`
	IPAM       *RawIPAM          `yaml:"ipam,omitempty"`
}

// RawIPAM holds network address management settings.
type RawIPAM struct {
	Driver string `yaml:"driver,omitempty"`
	Config []struct {
		Subnet string `yaml:"subnet,omitempty"`
	} `yaml:"config,omitempty"`
}

// RawVolume is a top-level volume declaration.
type RawVolume struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	External   bool              `yaml:"external,omitempty"`
}

// StringList decodes a scalar or a sequence into a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// Command decodes either a shell string or an argv sequence.
type Command []string

func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		args, err := splitCommand(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*c = args
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := node.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// splitCommand tokenizes a shell-style command string, honoring single and
// double quotes but nothing fancier (no expansion, no escapes inside quotes).
func splitCommand(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune
	inToken := false

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unbalanced quote in %q", s)
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}

// StringMap decodes either a mapping or a list of KEY=VALUE entries.
// A list entry without "=" picks the value up from the interpolation
// environment later, so it is stored with an empty value marker.
type StringMap map[string]string

func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		raw := make(map[string]interface{})
		if err := node.Decode(&raw); err != nil {
			return err
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
				out[k] = ""
			case string:
				out[k] = val
			case bool, int, int64, float64:
				out[k] = fmt.Sprintf("%v", val)
			default:
				return fmt.Errorf("line %d: key %q: expected scalar value", node.Line, k)
			}
		}
		*m = out
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		out := make(map[string]string, len(items))
		for _, item := range items {
			key, value, _ := strings.Cut(item, "=")
			out[key] = value
		}
		*m = out
		return nil
	default:
		return fmt.Errorf("line %d: expected mapping or list", node.Line)
	}
}

// NetworksDecl decodes the per-service networks block: either a plain list
// of network names or a mapping with endpoint settings.
type NetworksDecl map[string]*RawAttachment

// RawAttachment holds per-network endpoint settings.
type RawAttachment struct {
	Aliases     []string `yaml:"aliases,omitempty"`
	IPv4Address string   `yaml:"ipv4_address,omitempty"`
	IPv6Address string   `yaml:"ipv6_address,omitempty"`
}

func (n *NetworksDecl) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		out := make(map[string]*RawAttachment, len(names))
		for _, name := range names {
			out[name] = &RawAttachment{}
		}
		*n = out
		return nil
	case yaml.MappingNode:
		raw := make(map[string]*RawAttachment)
		if err := node.Decode(&raw); err != nil {
			return err
		}
		for name, att := range raw {
			if att == nil {
				raw[name] = &RawAttachment{}
			}
		}
		*n = raw
		return nil
	default:
		return fmt.Errorf("line %d: expected mapping or list", node.Line)
	}
}

// ParseFile decodes one document. A services block that is not a mapping is
// rejected here; field-level shape errors carry their line numbers.
func ParseFile(filename string, data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	f.Filename = filename
	if f.Services == nil {
		f.Services = make(map[string]*RawService)
	}
	for name, svc := range f.Services {
		if svc == nil {
			f.Services[name] = &RawService{}
		}
	}
	return &f, nil
}
