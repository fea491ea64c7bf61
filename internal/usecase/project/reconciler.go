package project

import (
	"context"
	"strconv"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/rs/zerolog/log"

	"github.com/bnema/flotilla/internal/boundaries/out"
	"github.com/bnema/flotilla/internal/domain"
)

// changeSet records which services were created or recreated during one
// run, so dependents can decide whether to follow suit.
type changeSet struct {
	mu      sync.Mutex
	changed map[string]bool
}

func newChangeSet() *changeSet {
	return &changeSet{changed: make(map[string]bool)}
}

func (c *changeSet) mark(name string) {
	c.mu.Lock()
	c.changed[name] = true
	c.mu.Unlock()
}

func (c *changeSet) any(names []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		if c.changed[name] {
			return true
		}
	}
	return false
}

type convergeOptions struct {
	forceRecreate bool
	noRecreate    bool
	timeout       *time.Duration
	changed       *changeSet
	// cascade recreates a service whose dependencies were recreated this
	// run, even if its own fingerprint matches.
	cascade bool
	// noStart leaves containers created but not running.
	noStart bool
}

// converge reconciles one service's containers toward created-and-running
// state. The decision per container is purely a fingerprint comparison:
// matching hash means start-if-stopped, anything else means recreate.
func (s *Service) converge(ctx context.Context, spec *domain.ServiceSpec, opts convergeOptions) error {
	containers, err := s.containersFor(ctx, spec.Name, false, true)
	if err != nil {
		return err
	}

	if len(containers) == 0 {
		if err := s.createAndStart(ctx, spec, 1, nil, !opts.noStart); err != nil {
			return err
		}
		opts.changed.mark(spec.Name)
		return nil
	}

	want := spec.Fingerprint()
	followDeps := opts.cascade && !opts.noRecreate && opts.changed.any(s.graph.Dependencies(spec.Name))

	for _, c := range containers {
		divergent := c.Fingerprint() != want
		switch {
		case opts.forceRecreate || ((divergent || followDeps) && !opts.noRecreate):
			if err := s.recreate(ctx, spec, c, opts.timeout, !opts.noStart); err != nil {
				return err
			}
			opts.changed.mark(spec.Name)
		case !c.IsRunning():
			if opts.noStart {
				log.Debug().Str("container", c.Name).Msg("created, not started")
				continue
			}
			if err := s.engine.StartContainer(ctx, c.ID); err != nil {
				return domain.NewEngineError(spec.Name, "start", err)
			}
			log.Info().Str("container", c.Name).Msg("started")
		default:
			log.Debug().Str("container", c.Name).Msg("up to date")
		}
	}
	return nil
}

// recreate replaces one container with a fresh one built from the current
// spec, carrying its volumes forward so data outlives the swap. The old
// container is renamed out of the way and removed only after the
// replacement has started, so its volumes are still referenced while the
// new container binds them.
func (s *Service) recreate(ctx context.Context, spec *domain.ServiceSpec, c *domain.Container, timeout *time.Duration, start bool) error {
	inspected, err := s.engine.InspectContainer(ctx, c.ID)
	if err != nil {
		return domain.NewEngineError(spec.Name, "inspect", err)
	}
	if c.IsRunning() {
		if err := s.engine.StopContainer(ctx, c.ID, graceFor(spec, timeout)); err != nil {
			return domain.NewEngineError(spec.Name, "stop", err)
		}
	}
	if err := s.engine.RenameContainer(ctx, c.ID, c.Name+"_"+shortID(c.ID)); err != nil {
		return domain.NewEngineError(spec.Name, "rename", err)
	}
	log.Info().Str("container", c.Name).Msg("recreating")
	if err := s.createAndStart(ctx, spec, c.Instance, inspected.Mounts, start); err != nil {
		return err
	}
	if err := s.engine.RemoveContainer(ctx, c.ID, false); err != nil {
		return domain.NewEngineError(spec.Name, "remove", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// createAndStart creates instance n of spec and, when start is set,
// starts it.
func (s *Service) createAndStart(ctx context.Context, spec *domain.ServiceSpec, instance int, mountsFrom []domain.MountPoint, start bool) error {
	cfg, err := s.createConfig(ctx, spec, instance, false)
	if err != nil {
		return err
	}
	cfg.MountsFrom = mountsFrom

	id, err := s.createContainer(ctx, spec, cfg)
	if err != nil {
		return err
	}
	if !start {
		log.Info().Str("container", cfg.Name).Msg("created")
		return nil
	}
	if err := s.engine.StartContainer(ctx, id); err != nil {
		return domain.NewEngineError(spec.Name, "start", err)
	}
	log.Info().Str("container", cfg.Name).Msg("started")
	return nil
}

// createContainer creates a container, pulling the image on demand when the
// engine does not have it yet.
func (s *Service) createContainer(ctx context.Context, spec *domain.ServiceSpec, cfg domain.CreateConfig) (string, error) {
	c, err := s.engine.CreateContainer(ctx, cfg)
	if cerrdefs.IsNotFound(err) {
		log.Info().Str("image", cfg.Image).Msg("pulling image")
		if pullErr := s.engine.PullImage(ctx, cfg.Image); pullErr != nil {
			return "", domain.NewEngineError(spec.Name, "pull", pullErr)
		}
		c, err = s.engine.CreateContainer(ctx, cfg)
	}
	if err != nil {
		return "", domain.NewEngineError(spec.Name, "create", err)
	}
	return c.ID, nil
}

// createConfig assembles the engine-facing create payload for instance n of
// spec: labels, resolved resource names and resolved service references.
func (s *Service) createConfig(ctx context.Context, spec *domain.ServiceSpec, instance int, oneOff bool) (domain.CreateConfig, error) {
	image, err := s.imageFor(ctx, spec)
	if err != nil {
		return domain.CreateConfig{}, err
	}

	effSpec := s.normalizeNetworks(spec)

	cfg := domain.CreateConfig{
		Image:  image,
		Spec:   effSpec,
		Labels: s.labelsFor(spec, instance, oneOff),
	}
	if oneOff {
		cfg.Name = domain.OneOffContainerName(s.project.Name, spec.Name, instance)
	} else {
		cfg.Name = domain.ContainerName(s.project.Name, spec.Name, instance)
	}

	if len(effSpec.Networks) > 0 {
		cfg.NetworkNames = make(map[string]string, len(effSpec.Networks))
		for name := range effSpec.Networks {
			nw, ok := s.project.Networks[name]
			if !ok {
				return domain.CreateConfig{}, domain.NewConfigError("services."+spec.Name+".networks", "undeclared network %s", name)
			}
			cfg.NetworkNames[name] = domain.NetworkRuntimeName(s.project.Name, nw)
		}
	}

	for _, m := range effSpec.Volumes {
		if !m.IsNamed() {
			continue
		}
		vol, ok := s.project.Volumes[m.Source]
		if !ok {
			return domain.CreateConfig{}, domain.NewConfigError("services."+spec.Name+".volumes", "undeclared volume %s", m.Source)
		}
		if cfg.VolumeNames == nil {
			cfg.VolumeNames = make(map[string]string)
		}
		cfg.VolumeNames[m.Source] = domain.VolumeRuntimeName(s.project.Name, vol)
	}

	for _, ref := range effSpec.VolumesFrom {
		entry := domain.ContainerName(s.project.Name, ref.Service, 1)
		if ref.Mode != "" {
			entry += ":" + ref.Mode
		}
		cfg.VolumesFrom = append(cfg.VolumesFrom, entry)
	}

	for _, link := range effSpec.Links {
		alias := link.Alias
		if alias == "" {
			alias = link.Service
		}
		cfg.Links = append(cfg.Links, domain.ContainerName(s.project.Name, link.Service, 1)+":"+alias)
	}

	switch effSpec.NetworkMode.Kind {
	case domain.NetworkModeService:
		cfg.NetworkMode = "container:" + domain.ContainerName(s.project.Name, effSpec.NetworkMode.Ref, 1)
	case domain.NetworkModeDefault:
	default:
		cfg.NetworkMode = effSpec.NetworkMode.String()
	}

	return cfg, nil
}

// normalizeNetworks attaches services with no explicit networks to the
// project's default network, mirroring the implicit attachment the loader's
// declared "default" network exists for.
func (s *Service) normalizeNetworks(spec *domain.ServiceSpec) *domain.ServiceSpec {
	if len(spec.Networks) > 0 || spec.NetworkMode.Kind != domain.NetworkModeDefault {
		return spec
	}
	if _, ok := s.project.Networks["default"]; !ok {
		return spec
	}
	eff := *spec
	eff.Networks = map[string]domain.NetworkAttachment{"default": {}}
	return &eff
}

// labelsFor merges the spec's labels with the ownership labels the engine
// state is rediscovered from.
func (s *Service) labelsFor(spec *domain.ServiceSpec, instance int, oneOff bool) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+5)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[domain.LabelProject] = s.project.Name
	labels[domain.LabelService] = spec.Name
	labels[domain.LabelInstance] = strconv.Itoa(instance)
	labels[domain.LabelConfigHash] = spec.Fingerprint()
	if oneOff {
		labels[domain.LabelOneOff] = "true"
	} else {
		labels[domain.LabelOneOff] = "false"
	}
	return labels
}

// imageFor resolves the image reference for spec, building it once per run
// when the service declares a build context.
func (s *Service) imageFor(ctx context.Context, spec *domain.ServiceSpec) (string, error) {
	if spec.Build == nil {
		return spec.Image, nil
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if ref, ok := s.built[spec.Name]; ok {
		return ref, nil
	}

	tag := spec.Image
	if tag == "" {
		tag = s.project.Name + "_" + spec.Name
	}
	ref, err := s.builder.Build(ctx, out.BuildOptions{
		ContextDir: spec.Build.Context,
		Dockerfile: spec.Build.Dockerfile,
		Args:       spec.Build.Args,
		Tags:       []string{tag},
	})
	if err != nil {
		return "", domain.NewEngineError(spec.Name, "build", err)
	}
	s.built[spec.Name] = ref
	return ref, nil
}
