package testutils

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/bnema/flotilla/internal/boundaries/out"
	"github.com/bnema/flotilla/internal/domain"
)

// FakeEngine is an in-memory out.Engine and out.Builder for use case tests.
// It records every call, supports scripted failures per operation and
// container, and tracks how many starts run concurrently.
type FakeEngine struct {
	mu         sync.Mutex
	nextID     int
	containers map[string]*fakeContainer
	networks   map[string]bool
	volumes    map[string]bool
	images     map[string]bool

	calls  []string
	failOn map[string]error

	// StartDelay makes StartContainer take real time so concurrency can be
	// observed through MaxInFlight.
	StartDelay  time.Duration
	inFlight    int
	maxInFlight int

	events      chan domain.Event
	eventWindow domain.EventWindow
}

// EventWindow returns the window the last Events subscription asked for.
func (f *FakeEngine) EventWindow() domain.EventWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventWindow
}

type fakeContainer struct {
	c    domain.Container
	cfg  domain.CreateConfig
	logs string
}

// NewFakeEngine returns an engine with the given images already present.
func NewFakeEngine(images ...string) *FakeEngine {
	f := &FakeEngine{
		containers: make(map[string]*fakeContainer),
		networks:   make(map[string]bool),
		volumes:    make(map[string]bool),
		images:     make(map[string]bool),
		failOn:     make(map[string]error),
		events:     make(chan domain.Event, 64),
	}
	for _, img := range images {
		f.images[img] = true
	}
	return f
}

var _ out.Engine = (*FakeEngine)(nil)
var _ out.Builder = (*FakeEngine)(nil)

// FailOn makes the given operation fail for the given target name, e.g.
// FailOn("start", "proj_db_1", err).
func (f *FakeEngine) FailOn(op, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[op+":"+name] = err
}

func (f *FakeEngine) scripted(op, name string) error {
	return f.failOn[op+":"+name]
}

func (f *FakeEngine) record(op, name string) {
	f.calls = append(f.calls, op+" "+name)
}

// Calls returns the ordered operation log, entries like "create proj_web_1".
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the targets of every recorded call of one operation, in
// order.
func (f *FakeEngine) CallsFor(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	prefix := op + " "
	for _, call := range f.calls {
		if len(call) > len(prefix) && call[:len(prefix)] == prefix {
			out = append(out, call[len(prefix):])
		}
	}
	return out
}

// MaxInFlight reports the peak number of concurrent StartContainer calls.
func (f *FakeEngine) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// ContainerByName returns a copy of the named container's state.
func (f *FakeEngine) ContainerByName(name string) (domain.Container, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.containers {
		if fc.c.Name == name {
			return fc.c, true
		}
	}
	return domain.Container{}, false
}

// SetState forces the named container into a state, e.g. to simulate a
// crash between operations.
func (f *FakeEngine) SetState(name, state string, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.containers {
		if fc.c.Name == name {
			fc.c.State = state
			fc.c.ExitCode = exitCode
		}
	}
}

// SetMounts attaches inspected mounts to the named container, simulating
// engine-created anonymous volumes.
func (f *FakeEngine) SetMounts(name string, mounts []domain.MountPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.containers {
		if fc.c.Name == name {
			fc.c.Mounts = mounts
		}
	}
}

// AddImage marks an image as present.
func (f *FakeEngine) AddImage(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = true
}

// HasImage reports whether an image is present.
func (f *FakeEngine) HasImage(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[ref]
}

// AddNetwork and AddVolume pre-create engine-side resources, e.g. externals.
func (f *FakeEngine) AddNetwork(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = true
}

func (f *FakeEngine) AddVolume(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name] = true
}

// HasNetwork and HasVolume report resource existence.
func (f *FakeEngine) HasNetwork(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[name]
}

func (f *FakeEngine) HasVolume(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[name]
}

// Emit pushes an event into the stream returned by Events.
func (f *FakeEngine) Emit(ev domain.Event) {
	f.events <- ev
}

func (f *FakeEngine) CreateContainer(ctx context.Context, cfg domain.CreateConfig) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("create", cfg.Name); err != nil {
		return nil, err
	}
	if !f.images[cfg.Image] {
		return nil, fmt.Errorf("image %s: %w", cfg.Image, cerrdefs.ErrNotFound)
	}
	for _, fc := range f.containers {
		if fc.c.Name == cfg.Name {
			return nil, fmt.Errorf("container name %s already in use", cfg.Name)
		}
	}

	f.nextID++
	id := fmt.Sprintf("ctr%04d", f.nextID)
	instance, _ := strconv.Atoi(cfg.Labels[domain.LabelInstance])
	c := domain.Container{
		ID:       id,
		Name:     cfg.Name,
		Service:  cfg.Labels[domain.LabelService],
		Instance: instance,
		OneOff:   cfg.Labels[domain.LabelOneOff] == "true",
		State:    domain.StateCreated,
		Image:    cfg.Image,
		Labels:   cfg.Labels,
	}
	if cfg.Spec != nil {
		c.Ports = append(c.Ports, cfg.Spec.Ports...)
	}
	for _, m := range cfg.MountsFrom {
		c.Mounts = append(c.Mounts, m)
	}
	f.containers[id] = &fakeContainer{c: c, cfg: cfg}
	f.record("create", cfg.Name)
	return &c, nil
}

func (f *FakeEngine) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	fc, ok := f.containers[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
	}
	name := fc.c.Name
	if err := f.scripted("start", name); err != nil {
		f.mu.Unlock()
		return err
	}
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.StartDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	fc.c.State = domain.StateRunning
	f.record("start", name)
	return nil
}

func (f *FakeEngine) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	return f.transition("stop", id, domain.StateExited)
}

func (f *FakeEngine) KillContainer(ctx context.Context, id, signal string) error {
	return f.transition("kill", id, domain.StateExited)
}

func (f *FakeEngine) RestartContainer(ctx context.Context, id string, grace time.Duration) error {
	return f.transition("restart", id, domain.StateRunning)
}

func (f *FakeEngine) PauseContainer(ctx context.Context, id string) error {
	return f.transition("pause", id, domain.StatePaused)
}

func (f *FakeEngine) UnpauseContainer(ctx context.Context, id string) error {
	return f.transition("unpause", id, domain.StateRunning)
}

func (f *FakeEngine) transition(op, id, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
	}
	if err := f.scripted(op, fc.c.Name); err != nil {
		return err
	}
	fc.c.State = state
	f.record(op, fc.c.Name)
	return nil
}

func (f *FakeEngine) RenameContainer(ctx context.Context, id, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
	}
	if err := f.scripted("rename", fc.c.Name); err != nil {
		return err
	}
	f.record("rename", fc.c.Name)
	fc.c.Name = newName
	return nil
}

func (f *FakeEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.containers[id]
	if !ok {
		return nil
	}
	if err := f.scripted("remove", fc.c.Name); err != nil {
		return err
	}
	if fc.c.State == domain.StateRunning && !force {
		return fmt.Errorf("cannot remove running container %s", fc.c.Name)
	}
	delete(f.containers, id)
	f.record("remove", fc.c.Name)
	return nil
}

func (f *FakeEngine) WaitContainer(ctx context.Context, id string) (int, error) {
	for {
		f.mu.Lock()
		fc, ok := f.containers[id]
		if !ok {
			f.mu.Unlock()
			return 0, fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
		}
		if fc.c.State == domain.StateExited || fc.c.State == domain.StateDead {
			code := fc.c.ExitCode
			f.mu.Unlock()
			return code, nil
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *FakeEngine) InspectContainer(ctx context.Context, id string) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
	}
	c := fc.c
	return &c, nil
}

func (f *FakeEngine) ListContainers(ctx context.Context, all bool, labels map[string]string) ([]*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Container
	for _, fc := range f.containers {
		if !all && !fc.c.IsRunning() {
			continue
		}
		match := true
		for k, v := range labels {
			got, ok := fc.c.Labels[k]
			if !ok || (v != "" && got != v) {
				match = false
				break
			}
		}
		if match {
			c := fc.c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *FakeEngine) PullImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("pull", ref); err != nil {
		return err
	}
	f.images[ref] = true
	f.record("pull", ref)
	return nil
}

func (f *FakeEngine) RemoveImage(ctx context.Context, ref string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("rmi", ref); err != nil {
		return err
	}
	delete(f.images, ref)
	f.record("rmi", ref)
	return nil
}

func (f *FakeEngine) EnsureNetwork(ctx context.Context, projectName string, spec domain.NetworkSpec) error {
	name := domain.NetworkRuntimeName(projectName, spec)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("network-create", name); err != nil {
		return err
	}
	if f.networks[name] {
		return nil
	}
	if spec.External {
		return fmt.Errorf("%w: %s", domain.ErrExternalNetworkMissing, name)
	}
	f.networks[name] = true
	f.record("network-create", name)
	return nil
}

func (f *FakeEngine) RemoveNetwork(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, name)
	f.record("network-remove", name)
	return nil
}

func (f *FakeEngine) NetworkExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[name], nil
}

func (f *FakeEngine) EnsureVolume(ctx context.Context, projectName string, spec domain.VolumeSpec) error {
	name := domain.VolumeRuntimeName(projectName, spec)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("volume-create", name); err != nil {
		return err
	}
	if f.volumes[name] {
		return nil
	}
	if spec.External {
		return fmt.Errorf("%w: %s", domain.ErrExternalVolumeMissing, name)
	}
	f.volumes[name] = true
	f.record("volume-create", name)
	return nil
}

func (f *FakeEngine) RemoveVolume(ctx context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, name)
	f.record("volume-remove", name)
	return nil
}

func (f *FakeEngine) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[name], nil
}

// SetLogs scripts the content ContainerLogs returns for the named container.
func (f *FakeEngine) SetLogs(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.containers {
		if fc.c.Name == name {
			fc.logs = content
		}
	}
}

func (f *FakeEngine) ContainerLogs(ctx context.Context, id string, opts domain.LogOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", id, cerrdefs.ErrNotFound)
	}
	f.record("logs", fc.c.Name)
	return io.NopCloser(strings.NewReader(fc.logs)), nil
}

func (f *FakeEngine) Events(ctx context.Context, projectName string, window domain.EventWindow) (<-chan domain.Event, <-chan error) {
	f.mu.Lock()
	f.eventWindow = window
	f.mu.Unlock()

	events := make(chan domain.Event)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.events:
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errs
}

func (f *FakeEngine) Ping(ctx context.Context) error {
	return nil
}

// Build implements out.Builder: the image springs into existence.
func (f *FakeEngine) Build(ctx context.Context, opts out.BuildOptions) (string, error) {
	tag := opts.Tags[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("build", tag); err != nil {
		return "", err
	}
	f.images[tag] = true
	f.record("build", tag)
	return tag, nil
}
