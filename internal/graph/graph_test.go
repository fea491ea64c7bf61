package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/flotilla/internal/domain"
)

func project(services ...domain.ServiceSpec) *domain.Project {
	return &domain.Project{Name: "test", Services: services}
}

func TestBuildDerivesEdgesFromAllSources(t *testing.T) {
	p := project(
		domain.ServiceSpec{Name: "db"},
		domain.ServiceSpec{Name: "data"},
		domain.ServiceSpec{Name: "proxy"},
		domain.ServiceSpec{
			Name:        "web",
			DependsOn:   []string{"db"},
			Links:       []domain.Link{{Service: "db"}},
			VolumesFrom: []domain.VolumesFromRef{{Service: "data"}},
			NetworkMode: domain.NetworkMode{Kind: domain.NetworkModeService, Ref: "proxy"},
		},
	)

	g, err := Build(p)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"db", "data", "proxy"}, g.Dependencies("web"))
	assert.Equal(t, []string{"web"}, g.Dependents("db"))
	assert.ElementsMatch(t, []string{"data", "db", "proxy"}, g.Roots())
}

func TestBuildContainerModePassesThrough(t *testing.T) {
	p := project(domain.ServiceSpec{
		Name:        "web",
		NetworkMode: domain.NetworkMode{Kind: domain.NetworkModeContainer, Ref: "raw-id"},
	})

	g, err := Build(p)
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("web"))
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	p := project(domain.ServiceSpec{Name: "web", DependsOn: []string{"ghost"}})

	_, err := Build(p)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "ghost")
}

func TestBuildRejectsCycleNamingServices(t *testing.T) {
	p := project(
		domain.ServiceSpec{Name: "a", DependsOn: []string{"b"}},
		domain.ServiceSpec{Name: "b", DependsOn: []string{"a"}},
	)

	_, err := Build(p)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "a")
	assert.Contains(t, cfgErr.Error(), "b")
	assert.Contains(t, cfgErr.Error(), "cycle")
}

func TestTopoSortRespectsDependencies(t *testing.T) {
	p := project(
		domain.ServiceSpec{Name: "web", DependsOn: []string{"db", "cache"}},
		domain.ServiceSpec{Name: "db", DependsOn: []string{"init"}},
		domain.ServiceSpec{Name: "cache"},
		domain.ServiceSpec{Name: "init"},
	)

	g, err := Build(p)
	require.NoError(t, err)

	order := g.TopoSort()
	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["init"], pos["db"])
	assert.Less(t, pos["db"], pos["web"])
	assert.Less(t, pos["cache"], pos["web"])
}

func TestClosures(t *testing.T) {
	p := project(
		domain.ServiceSpec{Name: "web", DependsOn: []string{"db"}},
		domain.ServiceSpec{Name: "db", DependsOn: []string{"init"}},
		domain.ServiceSpec{Name: "init"},
		domain.ServiceSpec{Name: "lonely"},
	)

	g, err := Build(p)
	require.NoError(t, err)

	deps := g.Closure([]string{"web"})
	assert.Equal(t, map[string]bool{"web": true, "db": true, "init": true}, deps)

	dependents := g.DependentClosure([]string{"init"})
	assert.Equal(t, map[string]bool{"init": true, "db": true, "web": true}, dependents)
}
