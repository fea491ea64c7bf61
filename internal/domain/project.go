package domain

// Project is the complete set of services, networks and volumes resolved
// from one or more configuration layers, scoped by a name.
type Project struct {
	Name string

	// Services keeps resolution order; graph and scheduler code indexes into
	// this slice instead of holding cross-references between specs.
	Services []ServiceSpec

	Networks map[string]NetworkSpec
	Volumes  map[string]VolumeSpec
}

// NetworkSpec declares a project network.
type NetworkSpec struct {
	Name       string
	Driver     string
	DriverOpts map[string]string
	External   bool
	IPAM       *IPAMSpec
}

// IPAMSpec holds static address management settings for a network.
type IPAMSpec struct {
	Driver  string
	Subnets []string
}

// VolumeSpec declares a project volume.
type VolumeSpec struct {
	Name       string
	Driver     string
	DriverOpts map[string]string
	External   bool
}

// Service returns the spec for name, or nil if the project has no such service.
func (p *Project) Service(name string) *ServiceSpec {
	for i := range p.Services {
		if p.Services[i].Name == name {
			return &p.Services[i]
		}
	}
	return nil
}

// ServiceNames returns the service names in resolution order.
func (p *Project) ServiceNames() []string {
	names := make([]string, len(p.Services))
	for i := range p.Services {
		names[i] = p.Services[i].Name
	}
	return names
}
