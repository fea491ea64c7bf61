package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/flotilla/internal/domain"
)

// extendsResolver expands `extends` references by merging the referenced
// service under the extending service's own fields. References may point
// into the current document or chain across files, and must be cycle-free.
type extendsResolver struct {
	// current is the document whose services are being resolved; extends
	// without a file reference look up their base here.
	current *File
	// dir anchors relative file references.
	dir string
	// cache keyed by absolute filename, so a shared base file is parsed once.
	files map[string]*File
}

func newExtendsResolver(current *File, dir string) *extendsResolver {
	return &extendsResolver{
		current: current,
		dir:     dir,
		files:   make(map[string]*File),
	}
}

// resolve returns svc with its extends chain folded in.
func (r *extendsResolver) resolve(name string, svc *RawService) (*RawService, error) {
	return r.resolveInner(name, svc, r.current, r.dir, map[string]bool{})
}

func (r *extendsResolver) resolveInner(name string, svc *RawService, doc *File, dir string, visiting map[string]bool) (*RawService, error) {
	if svc.Extends == nil {
		return svc, nil
	}

	ext := svc.Extends
	path := fmt.Sprintf("services.%s.extends", name)
	if ext.Service == "" {
		return nil, domain.NewConfigError(path, "missing service reference")
	}

	baseDoc := doc
	baseDir := dir
	if ext.File != "" {
		filename := ext.File
		if !filepath.IsAbs(filename) {
			filename = filepath.Join(dir, filename)
		}
		loaded, err := r.load(filename)
		if err != nil {
			return nil, err
		}
		baseDoc = loaded
		baseDir = filepath.Dir(filename)
	}

	key := baseDoc.Filename + "::" + ext.Service
	if visiting[key] {
		return nil, domain.NewConfigError(path,
			"circular reference to service %q in %s", ext.Service, baseDoc.Filename)
	}
	visiting[key] = true

	base := baseDoc.Services[ext.Service]
	if base == nil {
		return nil, domain.NewConfigError(path,
			"service %q not found in %s", ext.Service, baseDoc.Filename)
	}

	// The referenced service may itself extend another one.
	base, err := r.resolveInner(ext.Service, base, baseDoc, baseDir, visiting)
	if err != nil {
		return nil, err
	}

	if err := validateExtendedService(path, ext.Service, base); err != nil {
		return nil, err
	}

	merged := mergeServices(base, svc)
	merged.Extends = nil
	return merged, nil
}

// validateExtendedService rejects bases whose meaning depends on services of
// their own project: those relationships cannot be carried into another one.
func validateExtendedService(path, baseName string, base *RawService) error {
	switch {
	case len(base.Links) > 0:
		return domain.NewConfigError(path, "service %q declares links, which are not extendable", baseName)
	case len(base.VolumesFrom) > 0:
		return domain.NewConfigError(path, "service %q declares volumes_from, which is not extendable", baseName)
	case len(base.DependsOn) > 0:
		return domain.NewConfigError(path, "service %q declares depends_on, which is not extendable", baseName)
	}
	return nil
}

func (r *extendsResolver) load(path string) (*File, error) {
	if f, ok := r.files[path]; ok {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extends file: %w", err)
	}
	f, err := ParseFile(path, data)
	if err != nil {
		return nil, err
	}
	r.files[path] = f
	return f, nil
}
