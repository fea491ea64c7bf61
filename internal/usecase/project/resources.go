package project

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/flotilla/internal/domain"
)

// ensureResources creates the networks and named volumes the targeted
// services reference, before any container work starts. A missing external
// resource aborts here, so no partial container state is produced.
func (s *Service) ensureResources(ctx context.Context, targets []string) error {
	networks := make(map[string]bool)
	volumes := make(map[string]bool)
	for _, name := range targets {
		spec := s.project.Service(name)
		for _, nw := range s.networksUsed(spec) {
			networks[nw] = true
		}
		for _, m := range spec.Volumes {
			if m.IsNamed() {
				volumes[m.Source] = true
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range sortedKeys(networks) {
		nw, ok := s.project.Networks[name]
		if !ok {
			return domain.NewConfigError("networks", "undeclared network %s", name)
		}
		g.Go(func() error { return s.engine.EnsureNetwork(ctx, s.project.Name, nw) })
	}
	for _, name := range sortedKeys(volumes) {
		vol, ok := s.project.Volumes[name]
		if !ok {
			return domain.NewConfigError("volumes", "undeclared volume %s", name)
		}
		g.Go(func() error { return s.engine.EnsureVolume(ctx, s.project.Name, vol) })
	}
	return g.Wait()
}

// networksUsed returns the declared networks a service attaches to. A
// service with no explicit attachment and no special network mode uses the
// project's default network.
func (s *Service) networksUsed(spec *domain.ServiceSpec) []string {
	if spec.NetworkMode.Kind != domain.NetworkModeDefault {
		return nil
	}
	if len(spec.Networks) == 0 {
		if _, ok := s.project.Networks["default"]; ok {
			return []string{"default"}
		}
		return nil
	}
	names := make([]string, 0, len(spec.Networks))
	for name := range spec.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// removeResources tears down the project-owned networks and, per flags, its
// named volumes and images. External resources are left untouched.
func (s *Service) removeResources(ctx context.Context, opts DownOptions) error {
	for _, name := range sortedNetworkNames(s.project.Networks) {
		nw := s.project.Networks[name]
		if nw.External {
			continue
		}
		runtime := domain.NetworkRuntimeName(s.project.Name, nw)
		if err := s.engine.RemoveNetwork(ctx, runtime); err != nil {
			return err
		}
		log.Debug().Str("network", runtime).Msg("removed")
	}

	if opts.RemoveVolumes {
		for _, name := range sortedVolumeNames(s.project.Volumes) {
			vol := s.project.Volumes[name]
			if vol.External {
				continue
			}
			runtime := domain.VolumeRuntimeName(s.project.Name, vol)
			if err := s.engine.RemoveVolume(ctx, runtime, false); err != nil {
				return err
			}
			log.Debug().Str("volume", runtime).Msg("removed")
		}
	}

	if opts.RemoveImages != "" {
		if err := s.removeImages(ctx, opts.RemoveImages); err != nil {
			return err
		}
	}
	return nil
}

// removeImages removes service images after a Down: "local" removes only
// images built for the project, "all" removes every service image.
func (s *Service) removeImages(ctx context.Context, mode string) error {
	for i := range s.project.Services {
		spec := &s.project.Services[i]
		ref := spec.Image
		local := ref == ""
		if local {
			ref = s.project.Name + "_" + spec.Name
		}
		if mode == "local" && !local {
			continue
		}
		if err := s.engine.RemoveImage(ctx, ref, false); err != nil {
			return domain.NewEngineError(spec.Name, "rmi", err)
		}
		log.Debug().Str("image", ref).Msg("removed")
	}
	return nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNetworkNames(m map[string]domain.NetworkSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedVolumeNames(m map[string]domain.VolumeSpec) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
