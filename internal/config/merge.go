package config

// Merge rules, applied layer by layer in document order:
//
//   - scalar fields: the latest non-absent value replaces the earlier one
//   - append-only set lists (ports, expose, links, external_links,
//     volumes_from, depends_on): concatenated with duplicates removed
//   - mappings (environment, labels): merged key by key, later layer wins
//   - volumes and devices: merged by target path, a later entry fully
//     replaces an earlier one sharing the same target
//
// mergeServices is a pure function over two raw services so the pipeline can
// be tested without touching the filesystem.
func mergeServices(base, override *RawService) *RawService {
	if base == nil {
		base = &RawService{}
	}
	if override == nil {
		override = &RawService{}
	}

	out := *base

	if override.Image != "" {
		out.Image = override.Image
	}
	if override.Build != nil {
		out.Build = override.Build
	}
	if override.Command != nil {
		out.Command = override.Command
	}
	if override.Entrypoint != nil {
		out.Entrypoint = override.Entrypoint
	}
	if override.NetworkMode != "" {
		out.NetworkMode = override.NetworkMode
	}
	if override.Restart != "" {
		out.Restart = override.Restart
	}
	if override.StopSignal != "" {
		out.StopSignal = override.StopSignal
	}
	if override.StopGracePeriod != "" {
		out.StopGracePeriod = override.StopGracePeriod
	}
	if override.MemLimit != "" {
		out.MemLimit = override.MemLimit
	}
	if override.MemSwapLimit != "" {
		out.MemSwapLimit = override.MemSwapLimit
	}
	if override.CPUShares != 0 {
		out.CPUShares = override.CPUShares
	}
	if override.User != "" {
		out.User = override.User
	}
	if override.WorkingDir != "" {
		out.WorkingDir = override.WorkingDir
	}
	if override.Hostname != "" {
		out.Hostname = override.Hostname
	}
	if override.Privileged != nil {
		out.Privileged = override.Privileged
	}
	if override.Extends != nil {
		out.Extends = override.Extends
	}

	out.Ports = appendUnique(base.Ports, override.Ports)
	out.Expose = appendUnique(base.Expose, override.Expose)
	out.Links = appendUnique(base.Links, override.Links)
	out.ExternalLinks = appendUnique(base.ExternalLinks, override.ExternalLinks)
	out.VolumesFrom = appendUnique(base.VolumesFrom, override.VolumesFrom)
	out.DependsOn = appendUnique(base.DependsOn, override.DependsOn)
	out.EnvFile = appendUnique(base.EnvFile, override.EnvFile)

	out.Environment = mergeStringMaps(base.Environment, override.Environment)
	out.Labels = mergeStringMaps(base.Labels, override.Labels)

	out.Volumes = mergeByTarget(base.Volumes, override.Volumes)
	out.Devices = mergeByTarget(base.Devices, override.Devices)

	out.Networks = mergeNetworks(base.Networks, override.Networks)

	return &out
}

func appendUnique(base, override []string) []string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(base)+len(override))
	out := make([]string, 0, len(base)+len(override))
	for _, lst := range [][]string{base, override} {
		for _, v := range lst {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func mergeStringMaps(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// mountTarget keys a "source:target:mode" entry by its container path. A
// malformed entry keys as itself so it still merges deterministically.
func mountTarget(entry string) string {
	mount, err := parseMount(entry)
	if err != nil {
		return entry
	}
	return mount.Target
}

// mergeByTarget merges "source:target:mode" style entries, keying each entry
// by its target path so an override fully replaces the base entry for the
// same path. Relative document order of the base layer is preserved.
func mergeByTarget(base, override []string) []string {
	if len(base) == 0 {
		return append([]string(nil), override...)
	}
	if len(override) == 0 {
		return append([]string(nil), base...)
	}

	replaced := make(map[string]string, len(override))
	for _, entry := range override {
		replaced[mountTarget(entry)] = entry
	}

	out := make([]string, 0, len(base)+len(override))
	seen := make(map[string]struct{}, len(base))
	for _, entry := range base {
		target := mountTarget(entry)
		seen[target] = struct{}{}
		if repl, ok := replaced[target]; ok {
			out = append(out, repl)
		} else {
			out = append(out, entry)
		}
	}
	for _, entry := range override {
		if _, ok := seen[mountTarget(entry)]; !ok {
			out = append(out, entry)
		}
	}
	return out
}

func mergeNetworks(base, override NetworksDecl) NetworksDecl {
	if base == nil && override == nil {
		return nil
	}
	out := make(NetworksDecl, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// mergeFiles folds override documents onto the base document in order.
// Services, networks and volumes present only in an override are added.
func mergeFiles(files []*File) *File {
	merged := &File{
		Filename: files[0].Filename,
		Version:  files[0].Version,
		Services: make(map[string]*RawService),
		Networks: make(map[string]*RawNetwork),
		Volumes:  make(map[string]*RawVolume),
	}

	for _, f := range files {
		for name, svc := range f.Services {
			merged.Services[name] = mergeServices(merged.Services[name], svc)
		}
		for name, nw := range f.Networks {
			merged.Networks[name] = nw
		}
		for name, vol := range f.Volumes {
			merged.Volumes[name] = vol
		}
	}
	return merged
}
