package project_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/flotilla/internal/domain"
	"github.com/bnema/flotilla/internal/testutils"
	"github.com/bnema/flotilla/internal/usecase/project"
)

func testProject(services ...domain.ServiceSpec) *domain.Project {
	return &domain.Project{
		Name:     "proj",
		Services: services,
		Networks: map[string]domain.NetworkSpec{
			"default": {Name: "default", Driver: "bridge"},
		},
		Volumes: map[string]domain.VolumeSpec{},
	}
}

func webSpec() domain.ServiceSpec {
	return domain.ServiceSpec{Name: "web", Image: "nginx:latest"}
}

func dbSpec() domain.ServiceSpec {
	return domain.ServiceSpec{Name: "db", Image: "postgres:16"}
}

func newService(t *testing.T, eng *testutils.FakeEngine, p *domain.Project) *project.Service {
	t.Helper()
	svc, err := project.New(eng, eng, p, project.Options{})
	require.NoError(t, err)
	return svc
}

func TestUpCreatesAndStartsAllServices(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}
	svc := newService(t, eng, testProject(web, dbSpec()))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())
	assert.Equal(t, 0, result.ExitCode())

	for _, name := range []string{"proj_web_1", "proj_db_1"} {
		c, ok := eng.ContainerByName(name)
		require.True(t, ok, name)
		assert.Equal(t, domain.StateRunning, c.State)
	}
	assert.True(t, eng.HasNetwork("proj_default"))

	starts := eng.CallsFor("start")
	require.Equal(t, []string{"proj_db_1", "proj_web_1"}, starts)
}

func TestUpIsIdempotent(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	before := len(eng.Calls())
	result, err = svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Empty(t, eng.CallsFor("remove"))
	assert.Equal(t, before, len(eng.Calls()), "second up must be a no-op")
}

func TestUpStartsStoppedContainerWithoutRecreate(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	eng.SetState("proj_web_1", domain.StateExited, 0)

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	c, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, domain.StateRunning, c.State)
	assert.Len(t, eng.CallsFor("create"), 1, "must not recreate a merely stopped container")
}

func TestUpPullsMissingImage(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine()
	svc := newService(t, eng, testProject(webSpec()))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"nginx:latest"}, eng.CallsFor("pull"))
	c, ok := eng.ContainerByName("proj_web_1")
	require.True(t, ok)
	assert.Equal(t, domain.StateRunning, c.State)
}

func TestUpBuildsServiceImage(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine()
	spec := domain.ServiceSpec{Name: "app", Build: &domain.BuildSpec{Context: "."}}
	svc := newService(t, eng, testProject(spec))

	result, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"proj_app"}, eng.CallsFor("build"))
	c, _ := eng.ContainerByName("proj_app_1")
	assert.Equal(t, "proj_app", c.Image)
}

func TestUpRejectsConflictingRecreateFlags(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{ForceRecreate: true, NoRecreate: true})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, eng.Calls(), "validation must precede engine calls")
}

func TestUpUnknownServiceFailsBeforeEngineCalls(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{Services: []string{"nope"}})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, eng.Calls())
}

func TestUpExternalNetworkMissingAborts(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	web := webSpec()
	web.Networks = map[string]domain.NetworkAttachment{"shared": {}}
	p := testProject(web)
	p.Networks["shared"] = domain.NetworkSpec{Name: "backbone", External: true}
	svc := newService(t, eng, p)

	_, err := svc.Up(ctx, project.UpOptions{})
	require.ErrorIs(t, err, domain.ErrExternalNetworkMissing)
	assert.Empty(t, eng.CallsFor("create"), "no containers before resources resolve")
}

func TestUpRemovesOrphans(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "redis:7")
	old := testProject(webSpec(), domain.ServiceSpec{Name: "cache", Image: "redis:7"})
	oldSvc := newService(t, eng, old)
	_, err := oldSvc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	svc := newService(t, eng, testProject(webSpec()))
	result, err := svc.Up(ctx, project.UpOptions{RemoveOrphans: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	_, ok := eng.ContainerByName("proj_cache_1")
	assert.False(t, ok, "orphan must be removed")
	_, ok = eng.ContainerByName("proj_web_1")
	assert.True(t, ok)
}

func TestDownRemovesContainersInReverseOrder(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}
	svc := newService(t, eng, testProject(web, dbSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	result, err := svc.Down(ctx, project.DownOptions{})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"proj_web_1", "proj_db_1"}, eng.CallsFor("remove"))
	assert.False(t, eng.HasNetwork("proj_default"))
}

func TestDownRemoveVolumesSparesExternal(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("postgres:16")
	eng.AddVolume("shared-data")
	db := dbSpec()
	db.Volumes = []domain.VolumeMount{
		{Source: "data", Target: "/var/lib/postgresql/data"},
		{Source: "shared", Target: "/shared"},
	}
	p := testProject(db)
	p.Volumes["data"] = domain.VolumeSpec{Name: "data"}
	p.Volumes["shared"] = domain.VolumeSpec{Name: "shared-data", External: true}
	svc := newService(t, eng, p)

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	require.True(t, eng.HasVolume("proj_data"))

	result, err := svc.Down(ctx, project.DownOptions{RemoveVolumes: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.False(t, eng.HasVolume("proj_data"))
	assert.True(t, eng.HasVolume("shared-data"), "external volume must survive down")
}

func TestDownRejectsUnknownRmiMode(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine()
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Down(ctx, project.DownOptions{RemoveImages: "sometimes"})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDownRemoveImagesLocalOnly(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	built := domain.ServiceSpec{Name: "app", Build: &domain.BuildSpec{Context: "."}}
	svc := newService(t, eng, testProject(webSpec(), built))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	result, err := svc.Down(ctx, project.DownOptions{RemoveImages: "local"})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.False(t, eng.HasImage("proj_app"), "built image is local, must go")
	assert.True(t, eng.HasImage("nginx:latest"), "pulled image survives rmi=local")
}

func TestStopReportsServicesWithoutContainers(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	svc := newService(t, eng, testProject(webSpec(), dbSpec()))

	_, err := svc.Up(ctx, project.UpOptions{Services: []string{"web"}, NoDeps: true})
	require.NoError(t, err)

	result, err := svc.Stop(ctx, nil, nil)
	require.NoError(t, err)
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "no containers")

	// Services that do have containers are still stopped.
	c, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, domain.StateExited, c.State)
}

func TestStopWithoutContainersDoesNotBlockDependencies(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}
	svc := newService(t, eng, testProject(web, dbSpec()))

	_, err := svc.Up(ctx, project.UpOptions{Services: []string{"db"}, NoDeps: true})
	require.NoError(t, err)

	result, err := svc.Stop(ctx, nil, nil)
	require.NoError(t, err)
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "no containers")
	assert.NotContains(t, result.Err().Error(), "skipped")

	// The dependency still stops even though its dependent had nothing
	// to act on.
	c, _ := eng.ContainerByName("proj_db_1")
	assert.Equal(t, domain.StateExited, c.State)
}

func TestStartDoesNotCreate(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	result, err := svc.Start(ctx, nil)
	require.NoError(t, err)
	require.Error(t, result.Err())
	assert.Empty(t, eng.CallsFor("create"))
}

func TestRemoveDeletesOnlyStoppedContainers(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	svc := newService(t, eng, testProject(webSpec(), dbSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)
	eng.SetState("proj_db_1", domain.StateExited, 0)

	result, err := svc.Remove(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	_, ok := eng.ContainerByName("proj_db_1")
	assert.False(t, ok, "stopped container must be removed")
	c, ok := eng.ContainerByName("proj_web_1")
	require.True(t, ok, "running container must survive rm")
	assert.Equal(t, domain.StateRunning, c.State)
}

func TestPullFetchesDeclaredImages(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine()
	built := domain.ServiceSpec{Name: "app", Build: &domain.BuildSpec{Context: "."}}
	svc := newService(t, eng, testProject(webSpec(), dbSpec(), built))

	result, err := svc.Pull(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.ElementsMatch(t, []string{"nginx:latest", "postgres:16"}, eng.CallsFor("pull"))
	assert.Empty(t, eng.CallsFor("create"))
}

func TestPortReportsPublicBinding(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	web := webSpec()
	web.Ports = []domain.PortBinding{{Target: "80/tcp", HostIP: "127.0.0.1", HostPort: "8080"}}
	svc := newService(t, eng, testProject(web))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	addr, err := svc.Port(ctx, "web", "80/tcp", 1)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", addr)

	_, err = svc.Port(ctx, "web", "443/tcp", 1)
	require.Error(t, err)
}

func TestUpNoStartLeavesContainersCreated(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	result, err := svc.Up(ctx, project.UpOptions{NoStart: true})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	c, ok := eng.ContainerByName("proj_web_1")
	require.True(t, ok)
	assert.Equal(t, domain.StateCreated, c.State)
	assert.Empty(t, eng.CallsFor("start"))

	// A second pass must not start or recreate the created container.
	_, err = svc.Up(ctx, project.UpOptions{NoStart: true})
	require.NoError(t, err)
	assert.Empty(t, eng.CallsFor("start"))
	assert.Equal(t, []string{"proj_web_1"}, eng.CallsFor("create"))
}

func TestRestartRoundTrip(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	result, err := svc.Restart(ctx, nil, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	assert.Equal(t, []string{"proj_web_1"}, eng.CallsFor("restart"))
}

func TestPauseUnpause(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	result, err := svc.Pause(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	c, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, domain.StatePaused, c.State)

	result, err = svc.Unpause(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	c, _ = eng.ContainerByName("proj_web_1")
	assert.Equal(t, domain.StateRunning, c.State)
}

func TestKillUsesRequestedSignal(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Up(ctx, project.UpOptions{})
	require.NoError(t, err)

	result, err := svc.Kill(ctx, nil, "SIGUSR1")
	require.NoError(t, err)
	require.NoError(t, result.Err())
	c, _ := eng.ContainerByName("proj_web_1")
	assert.Equal(t, domain.StateExited, c.State)
}

func TestScaleUpAndDown(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	result, err := svc.Scale(ctx, map[string]int{"web": 3}, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())
	for _, name := range []string{"proj_web_1", "proj_web_2", "proj_web_3"} {
		c, ok := eng.ContainerByName(name)
		require.True(t, ok, name)
		assert.Equal(t, domain.StateRunning, c.State)
	}

	result, err = svc.Scale(ctx, map[string]int{"web": 1}, nil)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"proj_web_3", "proj_web_2"}, eng.CallsFor("remove"),
		"shrink removes highest-numbered instances first")
	_, ok := eng.ContainerByName("proj_web_1")
	assert.True(t, ok)
}

func TestScaleRejectsNegativeCount(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, err := svc.Scale(ctx, map[string]int{"web": -1}, nil)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRunOneOffDetached(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest", "postgres:16")
	web := webSpec()
	web.DependsOn = []string{"db"}
	svc := newService(t, eng, testProject(web, dbSpec()))

	code, id, err := svc.Run(ctx, "web", []string{"echo", "hi"}, project.RunOptions{Detached: true})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.NotEmpty(t, id)

	c, ok := eng.ContainerByName("proj_web_run_1")
	require.True(t, ok)
	assert.True(t, c.OneOff)
	assert.Equal(t, domain.StateRunning, c.State)

	// Dependencies converge before the one-off starts.
	dep, ok := eng.ContainerByName("proj_db_1")
	require.True(t, ok)
	assert.Equal(t, domain.StateRunning, dep.State)
}

func TestRunAttachedReturnsExitCode(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	go func() {
		testutils.AssertEventuallyTrue(t, func() bool {
			c, ok := eng.ContainerByName("proj_web_run_1")
			return ok && c.IsRunning()
		}, 5*time.Second, "one-off never started")
		eng.SetState("proj_web_run_1", domain.StateExited, 3)
	}()

	code, _, err := svc.Run(ctx, "web", nil, project.RunOptions{NoDeps: true})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestRunNumbersOneOffsSequentially(t *testing.T) {
	ctx := testutils.TestContext(t)
	eng := testutils.NewFakeEngine("nginx:latest")
	svc := newService(t, eng, testProject(webSpec()))

	_, _, err := svc.Run(ctx, "web", nil, project.RunOptions{NoDeps: true, Detached: true})
	require.NoError(t, err)
	_, _, err = svc.Run(ctx, "web", nil, project.RunOptions{NoDeps: true, Detached: true})
	require.NoError(t, err)

	_, ok := eng.ContainerByName("proj_web_run_2")
	assert.True(t, ok)
}

func TestParseScaleArgs(t *testing.T) {
	counts, err := project.ParseScaleArgs([]string{"web=3", "db=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"web": 3, "db": 1}, counts)

	_, err = project.ParseScaleArgs([]string{"web"})
	require.Error(t, err)
	_, err = project.ParseScaleArgs([]string{"web=many"})
	require.Error(t, err)
}
