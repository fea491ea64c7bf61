package domain

import "fmt"

// ContainerName returns the stable name of a numbered service instance:
// <project>_<service>_<n>.
func ContainerName(project, service string, instance int) string {
	return fmt.Sprintf("%s_%s_%d", project, service, instance)
}

// OneOffContainerName returns the name of an ad-hoc run container:
// <project>_<service>_run_<n>.
func OneOffContainerName(project, service string, instance int) string {
	return fmt.Sprintf("%s_%s_run_%d", project, service, instance)
}

// NetworkRuntimeName maps a declared network to its engine-side name.
// External networks keep their declared name.
func NetworkRuntimeName(project string, spec NetworkSpec) string {
	if spec.External {
		return spec.Name
	}
	return project + "_" + spec.Name
}

// VolumeRuntimeName maps a declared volume to its engine-side name.
// External volumes keep their declared name.
func VolumeRuntimeName(project string, spec VolumeSpec) string {
	if spec.External {
		return spec.Name
	}
	return project + "_" + spec.Name
}
