package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// ErrInterrupted marks an operation aborted by a signal. It is reported
	// as a distinct non-zero exit condition, not an ordinary failure.
	ErrInterrupted = errors.New("operation interrupted")

	// ErrNoContainers is a user error: a lifecycle action was requested for
	// a service that has no containers.
	ErrNoContainers = errors.New("no containers")

	// ErrExternalNetworkMissing and ErrExternalVolumeMissing mark resources
	// declared external that do not exist on the engine.
	ErrExternalNetworkMissing = errors.New("external network not found")
	ErrExternalVolumeMissing  = errors.New("external volume not found")
)

// ConfigError is an invalid configuration: a malformed merge target, an
// unresolved reference, a dependency cycle or mutually exclusive options.
// It is always surfaced before any engine call is made.
type ConfigError struct {
	// Path locates the offending key, e.g. "services.web.environment".
	Path string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid config at %s: %s", e.Path, e.Msg)
	}
	return "invalid config: " + e.Msg
}

// NewConfigError builds a ConfigError for the given key path.
func NewConfigError(path, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// NewCycleError builds the ConfigError for a dependency cycle, naming the
// services in traversal order.
func NewCycleError(services []string) *ConfigError {
	return &ConfigError{Msg: "dependency cycle: " + strings.Join(services, " -> ")}
}

// EngineError is a remote engine call failure scoped to one service. It is
// local: independent services continue converging when one of these occurs.
type EngineError struct {
	Service string
	Op      string
	Err     error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps an engine failure with its service and operation.
func NewEngineError(service, op string, err error) *EngineError {
	return &EngineError{Service: service, Op: op, Err: err}
}
