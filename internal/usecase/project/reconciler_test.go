package project_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/testutils"
	"github.com/bnema/flotilla/internal/usecase/project"
)

func TestUpRecreatesOnConfigChange(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	before, _ := eng.ContainerByName("proj_web_1")

	changed := webSpec()
	changed.Environment = map[string]string{"MODE": "debug"}
	svc = newService(t, eng, testProject(changed))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	after, ok := eng.ContainerByName("proj_web_1")
	require.True(t, ok)
	assert.NotEqual(t, before.ID, after.ID, "divergent container must be replaced")
	assert.Equal(t, domain.StateRunning, after.State)
	assert.NotEqual(t, before.Fingerprint(), after.Fingerprint())
}

func TestUpNoRecreateKeepsDivergentContainer(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	before, _ := eng.ContainerByName("proj_web_1")

	changed := webSpec()
	changed.Environment = map[string]string{"MODE": "debug"}
	svc = newService(t, eng, testProject(changed))

	result, err := svc.Up(ctx, project.UpOptions{NoRecreate: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	after, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, before.ID, after.ID)
	assert.Empty(t, eng.CallsFor("remove"))
}

func TestUpForceRecreateReplacesMatchingContainer(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	before, _ := eng.ContainerByName("proj_web_1")

	result, err := svc.Up(ctx, project.UpOptions{ForceRecreate: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	after, _ := eng.ContainerByName("proj_web_1")
	assert.NotEqual(t, before.ID, after.ID)
}

func TestUpRecreateCarriesVolumesForward(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("postgres:16")
	db := dbSpec()
	db.Volumes = []domain.VolumeMount{{Target: "/var/lib/postgresql/data"}}
	p := testProject(db)
	svc := newService(t, eng, p)

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	eng.SetMounts("proj_db_1", []domain.MountPoint{
		{Name: "a1b2c3", Destination: "/var/lib/postgresql/data", Mode: "rw"},
	})

	result, err := svc.Up(ctx, project.UpOptions{ForceRecreate: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	after, ok := eng.ContainerByName("proj_db_1")
	require.True(t, ok)
	require.Len(t, after.Mounts, 1)
	assert.Equal(t, "a1b2c3", after.Mounts[0].Name, "anonymous volume must survive the swap")

	// The old container gives up its name before the replacement is
	// created, and is removed only after the replacement exists.
	assert.Equal(t, []string{"proj_db_1"}, eng.CallsFor("rename"))
	assert.Len(t, eng.CallsFor("create"), 2)
	assert.Len(t, eng.CallsFor("remove"), 1)
}

func TestUpRecreatesDependentsWhenDependencyChanges(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}

	svc := newService(t, eng, testProject(web, dbSpec()))
	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	webBefore, _ := eng.ContainerByName("proj_web_1")

	changedDB := dbSpec()
	changedDB.Environment = map[string]string{"POSTGRES_DB": "app"}
	svc = newService(t, eng, testProject(web, changedDB))

	result, err := svc.Up(ctx, project.UpOptions{RecreateDependents: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	webAfter, _ := eng.ContainerByName("proj_web_1")
	assert.NotEqual(t, webBefore.ID, webAfter.ID, "dependent follows a recreated dependency")
}

func TestUpWithoutCascadeLeavesDependentsAlone(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}

	svc := newService(t, eng, testProject(web, dbSpec()))
	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	webBefore, _ := eng.ContainerByName("proj_web_1")

	changedDB := dbSpec()
	changedDB.Environment = map[string]string{"POSTGRES_DB": "app"}
	svc = newService(t, eng, testProject(web, changedDB))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	webAfter, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, webBefore.ID, webAfter.ID)
}

func TestOneOffContainersAreNotConverged(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, _, err := svc.Run(ctx, "web", []string{"sleep"}, project.RunOptions{NoDeps: true, Detached: true})
	require.NoError(t, err)

	result, err := svc.Up(ctx, project.UpOptions{ForceRecreate: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	c, ok := eng.ContainerByName("proj_web_run_1")
	require.True(t, ok, "one-off must survive converge")
	assert.Equal(t, domain.StateRunning, c.State)
}

func TestUpNoDepsSkipsDependencies(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}
	svc := newService(t, eng, testProject(web, dbSpec()))

	result, err := svc.Up(ctx, project.UpOptions{Services: []string{"web"}, NoDeps: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	_, ok := eng.ContainerByName("proj_db_1")
	assert.False(t, ok, "no-deps must not touch dependencies")
}
