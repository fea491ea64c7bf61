package project

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/bnema/flotilla/internal/boundaries/out"
	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/graph"
)

// Service drives lifecycle operations for one project against a container
// engine. All operations converge toward declared state rather than
// replaying imperative steps, so repeating an operation is safe.
type Service struct {
	engine  out.Engine
	builder out.Builder
	project *domain.Project
	graph   *graph.Graph
	sem     *semaphore.Weighted

	buildMu sync.Mutex
	built   map[string]string
}

// Options tunes a Service.
type Options struct {
	// MaxParallel bounds concurrent per-service convergence work.
	// Zero means DefaultMaxParallel.
	MaxParallel int
}

// New builds a Service for the given project. It fails when the project's
// dependency references do not form a valid acyclic graph.
func New(engine out.Engine, builder out.Builder, p *domain.Project, opts Options) (*Service, error) {
	g, err := graph.Build(p)
	if err != nil {
		return nil, err
	}
	return &Service{
		engine:  engine,
		builder: builder,
		project: p,
		graph:   g,
		sem:     newSemaphore(opts.MaxParallel),
		built:   make(map[string]string),
	}, nil
}

// Project returns the resolved project model.
func (s *Service) Project() *domain.Project {
	return s.project
}

// resolveTargets validates the requested service names and, unless noDeps
// is set, expands them to their transitive dependency closure. An empty
// request targets every service.
func (s *Service) resolveTargets(services []string, noDeps bool) ([]string, error) {
	if len(services) == 0 {
		return s.project.ServiceNames(), nil
	}
	for _, name := range services {
		if s.project.Service(name) == nil {
			return nil, domain.NewConfigError("", "no such service: %s", name)
		}
	}
	if noDeps {
		targets := make([]string, len(services))
		copy(targets, services)
		sort.Strings(targets)
		return targets, nil
	}
	closure := s.graph.Closure(services)
	targets := make([]string, 0, len(closure))
	for name := range closure {
		targets = append(targets, name)
	}
	sort.Strings(targets)
	return targets, nil
}

// UpOptions controls Up.
type UpOptions struct {
	Services       []string
	NoDeps         bool
	ForceRecreate  bool
	NoRecreate     bool
	RemoveOrphans  bool
	Timeout        *time.Duration
	// RecreateDependents recreates services whose dependencies were
	// recreated during the same run, even when their own configuration
	// is unchanged.
	RecreateDependents bool
	// NoStart leaves containers in created state, the create command's
	// behavior.
	NoStart bool
}

// Up converges every targeted service toward created-and-running state:
// missing containers are created, drifted ones are recreated, stopped ones
// are started, and up-to-date running ones are left alone. Dependencies
// converge before their dependents.
func (s *Service) Up(ctx context.Context, opts UpOptions) (*Result, error) {
	if opts.ForceRecreate && opts.NoRecreate {
		return nil, domain.NewConfigError("", "--force-recreate and --no-recreate cannot be combined")
	}
	targets, err := s.resolveTargets(opts.Services, opts.NoDeps)
	if err != nil {
		return nil, err
	}
	if err := s.ensureResources(ctx, targets); err != nil {
		return nil, err
	}
	if opts.RemoveOrphans {
		if err := s.removeOrphans(ctx, opts.Timeout); err != nil {
			return nil, err
		}
	}

	changed := newChangeSet()
	result := s.walk(ctx, targets, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.converge(ctx, spec, convergeOptions{
			forceRecreate: opts.ForceRecreate,
			noRecreate:    opts.NoRecreate,
			timeout:       opts.Timeout,
			changed:       changed,
			cascade:       opts.RecreateDependents,
			noStart:       opts.NoStart,
		})
	})
	return result, nil
}

// DownOptions controls Down.
type DownOptions struct {
	// RemoveImages is "", "local" or "all".
	RemoveImages  string
	RemoveVolumes bool
	RemoveOrphans bool
	Timeout       *time.Duration
}

// Down stops and removes the project's containers in reverse dependency
// order, then removes the project's networks and, when requested, its
// named volumes and images. External resources are never removed.
func (s *Service) Down(ctx context.Context, opts DownOptions) (*Result, error) {
	switch opts.RemoveImages {
	case "", "local", "all":
	default:
		return nil, domain.NewConfigError("", "invalid --rmi value %q, expected \"local\" or \"all\"", opts.RemoveImages)
	}

	targets := s.project.ServiceNames()
	result := s.walk(ctx, targets, true, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.removeServiceContainers(ctx, spec, opts.Timeout)
	})

	if opts.RemoveOrphans {
		if err := s.removeOrphans(ctx, opts.Timeout); err != nil {
			result.add(ServiceResult{Service: "orphans", Outcome: OutcomeFailed, Err: err})
		}
	}
	if err := s.removeResources(ctx, opts); err != nil {
		result.add(ServiceResult{Service: "resources", Outcome: OutcomeFailed, Err: err})
	}
	return result, nil
}

// removeServiceContainers stops and removes every container of one
// service, one-off containers included.
func (s *Service) removeServiceContainers(ctx context.Context, spec *domain.ServiceSpec, timeout *time.Duration) error {
	containers, err := s.containersFor(ctx, spec.Name, true, true)
	if err != nil {
		return err
	}
	grace := graceFor(spec, timeout)
	for _, c := range containers {
		if c.IsRunning() {
			if err := s.engine.StopContainer(ctx, c.ID, grace); err != nil {
				return domain.NewEngineError(spec.Name, "stop", err)
			}
		}
		if err := s.engine.RemoveContainer(ctx, c.ID, false); err != nil {
			return domain.NewEngineError(spec.Name, "remove", err)
		}
		log.Info().Str("container", c.Name).Msg("removed")
	}
	return nil
}

// Remove deletes the targeted services' stopped containers, one-offs
// included. Running containers are left alone.
func (s *Service) Remove(ctx context.Context, services []string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, true, func(ctx context.Context, spec *domain.ServiceSpec) error {
		containers, err := s.containersFor(ctx, spec.Name, true, true)
		if err != nil {
			return err
		}
		for _, c := range containers {
			if c.IsRunning() {
				continue
			}
			if err := s.engine.RemoveContainer(ctx, c.ID, false); err != nil {
				return domain.NewEngineError(spec.Name, "remove", err)
			}
			log.Info().Str("container", c.Name).Msg("removed")
		}
		return nil
	})
	return result, nil
}

// Stop stops the targeted services' running containers in reverse
// dependency order. Containers are kept.
func (s *Service) Stop(ctx context.Context, services []string, timeout *time.Duration) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, true, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "stop", func(c *domain.Container) (bool, error) {
			if !c.IsRunning() {
				return false, nil
			}
			return true, s.engine.StopContainer(ctx, c.ID, graceFor(spec, timeout))
		})
	})
	return result, nil
}

// Start starts the targeted services' existing stopped containers in
// dependency order. It never creates containers.
func (s *Service) Start(ctx context.Context, services []string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "start", func(c *domain.Container) (bool, error) {
			if c.IsRunning() {
				return false, nil
			}
			return true, s.engine.StartContainer(ctx, c.ID)
		})
	})
	return result, nil
}

// Kill sends signal to the targeted services' running containers.
func (s *Service) Kill(ctx context.Context, services []string, signal string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	if signal == "" {
		signal = "SIGKILL"
	}
	result := s.walk(ctx, targets, true, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "kill", func(c *domain.Container) (bool, error) {
			if !c.IsRunning() {
				return false, nil
			}
			return true, s.engine.KillContainer(ctx, c.ID, signal)
		})
	})
	return result, nil
}

// Restart restarts the targeted services' containers in dependency order.
func (s *Service) Restart(ctx context.Context, services []string, timeout *time.Duration) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "restart", func(c *domain.Container) (bool, error) {
			return true, s.engine.RestartContainer(ctx, c.ID, graceFor(spec, timeout))
		})
	})
	return result, nil
}

// Pause pauses the targeted services' running containers.
func (s *Service) Pause(ctx context.Context, services []string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, true, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "pause", func(c *domain.Container) (bool, error) {
			if c.State != domain.StateRunning {
				return false, nil
			}
			return true, s.engine.PauseContainer(ctx, c.ID)
		})
	})
	return result, nil
}

// Unpause resumes the targeted services' paused containers.
func (s *Service) Unpause(ctx context.Context, services []string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.forEachContainer(ctx, spec, "unpause", func(c *domain.Container) (bool, error) {
			if c.State != domain.StatePaused {
				return false, nil
			}
			return true, s.engine.UnpauseContainer(ctx, c.ID)
		})
	})
	return result, nil
}

// forEachContainer applies op to every numbered container of spec. A
// service with no containers at all is a user error, reported without
// aborting the other targets.
func (s *Service) forEachContainer(ctx context.Context, spec *domain.ServiceSpec, op string, fn func(*domain.Container) (bool, error)) error {
	containers, err := s.containersFor(ctx, spec.Name, false, true)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("%w to %s for service %s", domain.ErrNoContainers, op, spec.Name)
	}
	for _, c := range containers {
		applied, err := fn(c)
		if err != nil {
			return domain.NewEngineError(spec.Name, op, err)
		}
		if applied {
			log.Debug().Str("container", c.Name).Str("op", op).Msg("applied")
		}
	}
	return nil
}

// Scale converges each named service to an exact replica count. Growth
// fills the lowest free instance numbers; shrinkage removes the
// highest-numbered containers first.
func (s *Service) Scale(ctx context.Context, counts map[string]int, timeout *time.Duration) (*Result, error) {
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if s.project.Service(name) == nil {
			return nil, domain.NewConfigError("", "no such service: %s", name)
		}
		if n < 0 {
			return nil, domain.NewConfigError("", "invalid scale value for %s: %d", name, n)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if err := s.ensureResources(ctx, names); err != nil {
		return nil, err
	}

	result := s.walk(ctx, names, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		return s.scaleService(ctx, spec, counts[spec.Name], timeout)
	})
	return result, nil
}

func (s *Service) scaleService(ctx context.Context, spec *domain.ServiceSpec, count int, timeout *time.Duration) error {
	containers, err := s.containersFor(ctx, spec.Name, false, true)
	if err != nil {
		return err
	}

	// Shrink from the top so the surviving numbering stays dense from 1.
	sort.Slice(containers, func(i, j int) bool { return containers[i].Instance > containers[j].Instance })
	for _, c := range containers {
		if len(containers) <= count {
			break
		}
		if c.IsRunning() {
			if err := s.engine.StopContainer(ctx, c.ID, graceFor(spec, timeout)); err != nil {
				return domain.NewEngineError(spec.Name, "stop", err)
			}
		}
		if err := s.engine.RemoveContainer(ctx, c.ID, false); err != nil {
			return domain.NewEngineError(spec.Name, "remove", err)
		}
		containers = containers[1:]
	}

	used := make(map[int]bool, len(containers))
	for _, c := range containers {
		used[c.Instance] = true
		if !c.IsRunning() {
			if err := s.engine.StartContainer(ctx, c.ID); err != nil {
				return domain.NewEngineError(spec.Name, "start", err)
			}
		}
	}
	for instance := 1; len(used) < count; instance++ {
		if used[instance] {
			continue
		}
		if err := s.createAndStart(ctx, spec, instance, nil, true); err != nil {
			return err
		}
		used[instance] = true
	}
	return nil
}

// RunOptions controls Run.
type RunOptions struct {
	NoDeps     bool
	AutoRemove bool
	Detached   bool
	Timeout    *time.Duration
}

// Run creates and starts a one-off container for service with an optional
// command override. Dependencies are converged first unless NoDeps is set.
// In attached mode it blocks until the container exits and returns its
// exit code; in detached mode it returns immediately with code 0.
func (s *Service) Run(ctx context.Context, service string, command []string, opts RunOptions) (int, string, error) {
	spec := s.project.Service(service)
	if spec == nil {
		return 1, "", domain.NewConfigError("", "no such service: %s", service)
	}

	if !opts.NoDeps {
		deps := s.graph.Dependencies(service)
		if len(deps) > 0 {
			result, err := s.Up(ctx, UpOptions{Services: deps, Timeout: opts.Timeout})
			if err != nil {
				return 1, "", err
			}
			if err := result.Err(); err != nil {
				return 1, "", err
			}
		}
	}
	if err := s.ensureResources(ctx, []string{service}); err != nil {
		return 1, "", err
	}

	oneOffs, err := s.containersFor(ctx, service, true, true)
	if err != nil {
		return 1, "", err
	}
	run := 1
	for _, c := range oneOffs {
		if c.OneOff && c.Instance >= run {
			run = c.Instance + 1
		}
	}

	runSpec := *spec
	if len(command) > 0 {
		runSpec.Command = command
	}
	cfg, err := s.createConfig(ctx, &runSpec, run, true)
	if err != nil {
		return 1, "", err
	}
	cfg.AutoRemove = opts.AutoRemove

	id, err := s.createContainer(ctx, &runSpec, cfg)
	if err != nil {
		return 1, "", err
	}
	if err := s.engine.StartContainer(ctx, id); err != nil {
		return 1, id, domain.NewEngineError(service, "start", err)
	}
	if opts.Detached {
		return 0, id, nil
	}

	code, err := s.engine.WaitContainer(ctx, id)
	if err != nil {
		return 1, id, domain.NewEngineError(service, "wait", err)
	}
	return code, id, nil
}

// Pull fetches the targeted services' images ahead of any container work.
// A service that declares a build context has no image to pull and is
// skipped.
func (s *Service) Pull(ctx context.Context, services []string) (*Result, error) {
	targets, err := s.resolveTargets(services, true)
	if err != nil {
		return nil, err
	}
	result := s.walk(ctx, targets, false, func(ctx context.Context, spec *domain.ServiceSpec) error {
		if spec.Build != nil {
			log.Info().Str("service", spec.Name).Msg("uses a build context, skipping pull")
			return nil
		}
		log.Info().Str("service", spec.Name).Str("image", spec.Image).Msg("pulling")
		if err := s.engine.PullImage(ctx, spec.Image); err != nil {
			return domain.NewEngineError(spec.Name, "pull", err)
		}
		return nil
	})
	return result, nil
}

// Port reports the public "host:port" address bound to a container port of
// the service. target is engine-form, e.g. "80/tcp"; index selects among
// scaled instances.
func (s *Service) Port(ctx context.Context, service, target string, index int) (string, error) {
	if s.project.Service(service) == nil {
		return "", domain.NewConfigError("", "no such service: %s", service)
	}
	containers, err := s.containersFor(ctx, service, false, true)
	if err != nil {
		return "", err
	}
	var found *domain.Container
	for _, c := range containers {
		if c.Instance == index {
			found = c
			break
		}
	}
	if found == nil {
		return "", fmt.Errorf("%w for service %s index %d", domain.ErrNoContainers, service, index)
	}
	inspected, err := s.engine.InspectContainer(ctx, found.ID)
	if err != nil {
		return "", domain.NewEngineError(service, "inspect", err)
	}
	for _, p := range inspected.Ports {
		if p.Target == target && p.HostPort != "" {
			host := p.HostIP
			if host == "" {
				host = "0.0.0.0"
			}
			return net.JoinHostPort(host, p.HostPort), nil
		}
	}
	return "", domain.NewConfigError("", "no public port %s for %s", target, found.Name)
}

// Containers lists the project's containers, optionally restricted to the
// named services. One-off containers are included.
func (s *Service) Containers(ctx context.Context, services []string, all bool) ([]*domain.Container, error) {
	containers, err := s.engine.ListContainers(ctx, all, map[string]string{
		domain.LabelProject: s.project.Name,
	})
	if err != nil {
		return nil, err
	}
	if len(services) > 0 {
		want := make(map[string]bool, len(services))
		for _, name := range services {
			want[name] = true
		}
		filtered := containers[:0]
		for _, c := range containers {
			if want[c.Service] {
				filtered = append(filtered, c)
			}
		}
		containers = filtered
	}
	sort.Slice(containers, func(i, j int) bool { return containers[i].Name < containers[j].Name })
	return containers, nil
}

// containersFor lists the containers of one service. Numbered and one-off
// containers are separated by the includeOneOff flag.
func (s *Service) containersFor(ctx context.Context, service string, includeOneOff, all bool) ([]*domain.Container, error) {
	containers, err := s.engine.ListContainers(ctx, all, map[string]string{
		domain.LabelProject: s.project.Name,
		domain.LabelService: service,
	})
	if err != nil {
		return nil, domain.NewEngineError(service, "list", err)
	}
	kept := containers[:0]
	for _, c := range containers {
		if c.OneOff && !includeOneOff {
			continue
		}
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Instance < kept[j].Instance })
	return kept, nil
}

// removeOrphans removes project containers whose service is no longer
// declared in the configuration.
func (s *Service) removeOrphans(ctx context.Context, timeout *time.Duration) error {
	containers, err := s.engine.ListContainers(ctx, true, map[string]string{
		domain.LabelProject: s.project.Name,
	})
	if err != nil {
		return err
	}
	for _, c := range containers {
		if s.project.Service(c.Service) != nil {
			continue
		}
		if c.IsRunning() {
			grace := domain.DefaultStopGracePeriod
			if timeout != nil {
				grace = *timeout
			}
			if err := s.engine.StopContainer(ctx, c.ID, grace); err != nil {
				return fmt.Errorf("stopping orphan %s: %w", c.Name, err)
			}
		}
		if err := s.engine.RemoveContainer(ctx, c.ID, false); err != nil {
			return fmt.Errorf("removing orphan %s: %w", c.Name, err)
		}
		log.Info().Str("container", c.Name).Msg("removed orphan")
	}
	return nil
}

// graceFor picks the stop grace period: an explicit operation timeout wins
// over the service's configured period.
func graceFor(spec *domain.ServiceSpec, timeout *time.Duration) time.Duration {
	if timeout != nil {
		return *timeout
	}
	return spec.GraceOrDefault()
}

// ParseScaleArgs parses "service=n" arguments as accepted by the scale
// command.
func ParseScaleArgs(args []string) (map[string]int, error) {
	counts := make(map[string]int, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, domain.NewConfigError("", "invalid scale argument %q, expected service=num", arg)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, domain.NewConfigError("", "invalid scale argument %q, expected service=num", arg)
		}
		counts[name] = n
	}
	return counts, nil
}
