package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/bnema/flotilla/internal/domain"
)

// Default document names looked up in the working directory when no files
// are given explicitly.
const (
	DefaultFileName     = "docker-compose.yml"
	DefaultOverrideName = "docker-compose.override.yml"
)

// Options control project resolution.
type Options struct {
	// WorkingDir anchors relative paths and derives the project name.
	// Defaults to the process working directory.
	WorkingDir string

	// ProjectName overrides the name derived from WorkingDir.
	ProjectName string

	// Files is the ordered document list, base first. When empty, the
	// default file plus the default override (if present) are used.
	Files []string

	// Env is the variable interpolation environment. When nil it is built
	// from the process environment plus a .env file in WorkingDir.
	Env map[string]string
}

// Load resolves the layered configuration into a canonical project.
func Load(opts Options) (*domain.Project, error) {
	workingDir := opts.WorkingDir
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workingDir = wd
	}

	paths, err := configPaths(workingDir, opts.Files)
	if err != nil {
		return nil, err
	}

	env := opts.Env
	if env == nil {
		env = processEnvironment(workingDir)
	}

	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		f, err := ParseFile(path, data)
		if err != nil {
			return nil, err
		}

		// extends resolves per document, relative to that document's
		// directory, before layering.
		resolver := newExtendsResolver(f, filepath.Dir(path))
		for name, svc := range f.Services {
			resolved, err := resolver.resolve(name, svc)
			if err != nil {
				return nil, err
			}
			f.Services[name] = resolved
		}
		files = append(files, f)
	}

	merged := mergeFiles(files)

	name := opts.ProjectName
	if name == "" {
		name = NormalizeProjectName(filepath.Base(workingDir))
	}

	project := &domain.Project{
		Name:     name,
		Networks: make(map[string]domain.NetworkSpec),
		Volumes:  make(map[string]domain.VolumeSpec),
	}

	conv := &converter{interp: NewInterpolator(env), workingDir: workingDir}

	for nwName, raw := range merged.Networks {
		spec := domain.NetworkSpec{
			Name:       nwName,
			Driver:     raw.Driver,
			DriverOpts: raw.DriverOpts,
			External:   raw.External,
		}
		if raw.IPAM != nil {
			ipam := &domain.IPAMSpec{Driver: raw.IPAM.Driver}
			for _, cfg := range raw.IPAM.Config {
				ipam.Subnets = append(ipam.Subnets, cfg.Subnet)
			}
			spec.IPAM = ipam
		}
		project.Networks[nwName] = spec
	}
	if _, ok := project.Networks["default"]; !ok {
		project.Networks["default"] = domain.NetworkSpec{Name: "default", Driver: "bridge"}
	}

	for volName, raw := range merged.Volumes {
		project.Volumes[volName] = domain.VolumeSpec{
			Name:       volName,
			Driver:     raw.Driver,
			DriverOpts: raw.DriverOpts,
			External:   raw.External,
		}
	}

	for _, svcName := range sortedServiceNames(merged.Services) {
		spec, err := conv.service(svcName, merged.Services[svcName])
		if err != nil {
			return nil, err
		}
		project.Services = append(project.Services, spec)
	}

	if err := validateReferences(project); err != nil {
		return nil, err
	}

	log.Debug().
		Str("project", project.Name).
		Int("services", len(project.Services)).
		Strs("files", paths).
		Msg("project resolved")

	return project, nil
}

// validateReferences enforces the project invariant: every network or named
// volume a service mounts must be declared (or external). An undeclared
// reference is a configuration error, not a runtime error.
func validateReferences(p *domain.Project) error {
	for i := range p.Services {
		svc := &p.Services[i]
		for nwName := range svc.Networks {
			if _, ok := p.Networks[nwName]; !ok {
				return domain.NewConfigError(
					fmt.Sprintf("services.%s.networks", svc.Name),
					"undeclared network %q", nwName)
			}
		}
		for _, mount := range svc.Volumes {
			if !mount.IsNamed() {
				continue
			}
			if _, ok := p.Volumes[mount.Source]; !ok {
				return domain.NewConfigError(
					fmt.Sprintf("services.%s.volumes", svc.Name),
					"undeclared volume %q", mount.Source)
			}
		}
	}
	return nil
}

// configPaths expands the file arguments, falling back to the defaults.
func configPaths(workingDir string, files []string) ([]string, error) {
	if len(files) > 0 {
		out := make([]string, len(files))
		for i, f := range files {
			if filepath.IsAbs(f) {
				out[i] = f
			} else {
				out[i] = filepath.Join(workingDir, f)
			}
		}
		return out, nil
	}

	base := filepath.Join(workingDir, DefaultFileName)
	if _, err := os.Stat(base); err != nil {
		return nil, fmt.Errorf("no configuration file found in %s", workingDir)
	}
	paths := []string{base}

	override := filepath.Join(workingDir, DefaultOverrideName)
	if _, err := os.Stat(override); err == nil {
		paths = append(paths, override)
	}
	return paths, nil
}

// processEnvironment builds the interpolation environment from the process
// environment layered over a .env file (real environment wins).
func processEnvironment(workingDir string) map[string]string {
	env := make(map[string]string)
	if fileEnv, err := godotenv.Read(filepath.Join(workingDir, ".env")); err == nil {
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}

// NormalizeProjectName lowercases and strips everything outside [a-z0-9],
// matching how the project name becomes part of container names.
func NormalizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
