package domain

import (
	"fmt"
	"strings"
)

// NetworkModeKind discriminates the network_mode variants.
type NetworkModeKind int

const (
	// NetworkModeDefault means no explicit mode was configured.
	NetworkModeDefault NetworkModeKind = iota
	NetworkModeBridge
	NetworkModeHost
	NetworkModeNone
	// NetworkModeService shares the network namespace of another service in
	// the same project. Ref holds the service name.
	NetworkModeService
	// NetworkModeContainer shares the namespace of a raw container id that
	// is not managed by the project. Ref holds the id; the engine validates it.
	NetworkModeContainer
)

// NetworkMode is the tagged variant behind a service's network_mode field.
type NetworkMode struct {
	Kind NetworkModeKind
	Ref  string
}

// ParseNetworkMode parses the textual network_mode value from a config file.
func ParseNetworkMode(value string) (NetworkMode, error) {
	switch {
	case value == "":
		return NetworkMode{Kind: NetworkModeDefault}, nil
	case value == "bridge":
		return NetworkMode{Kind: NetworkModeBridge}, nil
	case value == "host":
		return NetworkMode{Kind: NetworkModeHost}, nil
	case value == "none":
		return NetworkMode{Kind: NetworkModeNone}, nil
	case strings.HasPrefix(value, "service:"):
		ref := strings.TrimPrefix(value, "service:")
		if ref == "" {
			return NetworkMode{}, fmt.Errorf("network_mode %q names no service", value)
		}
		return NetworkMode{Kind: NetworkModeService, Ref: ref}, nil
	case strings.HasPrefix(value, "container:"):
		ref := strings.TrimPrefix(value, "container:")
		if ref == "" {
			return NetworkMode{}, fmt.Errorf("network_mode %q names no container", value)
		}
		return NetworkMode{Kind: NetworkModeContainer, Ref: ref}, nil
	default:
		return NetworkMode{}, fmt.Errorf("unsupported network_mode %q", value)
	}
}

// String renders the mode back into its config-file form.
func (m NetworkMode) String() string {
	switch m.Kind {
	case NetworkModeBridge:
		return "bridge"
	case NetworkModeHost:
		return "host"
	case NetworkModeNone:
		return "none"
	case NetworkModeService:
		return "service:" + m.Ref
	case NetworkModeContainer:
		return "container:" + m.Ref
	default:
		return ""
	}
}
