// Package docker implements the engine and builder ports using the Docker API.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog/log"

	"github.com/bnema/flotilla/internal/domain"
)

// Engine implements the out.Engine port against the Docker daemon.
type Engine struct {
	client *client.Client
}

// NewEngine creates an engine client from the environment (DOCKER_HOST etc.)
// with API version negotiation.
func NewEngine() (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &Engine{client: cli}, nil
}

// NewEngineWithClient wraps a custom client (for testing).
func NewEngineWithClient(cli *client.Client) *Engine {
	return &Engine{client: cli}
}

// CreateContainer creates a new container and returns its inspected state.
func (e *Engine) CreateContainer(ctx context.Context, cfg domain.CreateConfig) (*domain.Container, error) {
	containerConfig, hostConfig, networkConfig, err := createParams(cfg)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, networkConfig, nil, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	log.Debug().Str("container_id", resp.ID).Str("name", cfg.Name).Msg("container created")
	return e.InspectContainer(ctx, resp.ID)
}

// StartContainer starts a container.
func (e *Engine) StartContainer(ctx context.Context, containerID string) error {
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Msg("container started")
	return nil
}

// StopContainer stops a container, giving it grace to exit before the
// daemon escalates to SIGKILL.
func (e *Engine) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	err := e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Msg("container stopped")
	return nil
}

// KillContainer sends a signal to a running container. An empty signal
// means SIGKILL.
func (e *Engine) KillContainer(ctx context.Context, containerID, signal string) error {
	if err := e.client.ContainerKill(ctx, containerID, signal); err != nil {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Str("signal", signal).Msg("container killed")
	return nil
}

// RestartContainer restarts a container with the given stop grace period.
func (e *Engine) RestartContainer(ctx context.Context, containerID string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	err := e.client.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil {
		return fmt.Errorf("failed to restart container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Msg("container restarted")
	return nil
}

// PauseContainer pauses a running container.
func (e *Engine) PauseContainer(ctx context.Context, containerID string) error {
	if err := e.client.ContainerPause(ctx, containerID); err != nil {
		return fmt.Errorf("failed to pause container: %w", err)
	}
	return nil
}

// UnpauseContainer resumes a paused container.
func (e *Engine) UnpauseContainer(ctx context.Context, containerID string) error {
	if err := e.client.ContainerUnpause(ctx, containerID); err != nil {
		return fmt.Errorf("failed to unpause container: %w", err)
	}
	return nil
}

// RenameContainer renames a container.
func (e *Engine) RenameContainer(ctx context.Context, containerID, newName string) error {
	if err := e.client.ContainerRename(ctx, containerID, newName); err != nil {
		return fmt.Errorf("failed to rename container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Str("name", newName).Msg("container renamed")
	return nil
}

// RemoveContainer removes a container, with its anonymous volumes.
func (e *Engine) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         force,
		RemoveVolumes: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Msg("container removed")
	return nil
}

// WaitContainer blocks until the container stops running and returns its
// exit code.
func (e *Engine) WaitContainer(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return 0, fmt.Errorf("failed to wait for container: %w", err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// InspectContainer inspects a container.
func (e *Engine) InspectContainer(ctx context.Context, containerID string) (*domain.Container, error) {
	resp, err := e.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	record := &domain.Container{
		ID:     resp.ID,
		Name:   strings.TrimPrefix(resp.Name, "/"),
		Image:  resp.Config.Image,
		Labels: resp.Config.Labels,
	}
	if resp.State != nil {
		record.State = resp.State.Status
		record.ExitCode = resp.State.ExitCode
	}
	fillOwnership(record)

	for _, m := range resp.Mounts {
		record.Mounts = append(record.Mounts, domain.MountPoint{
			Name:        m.Name,
			Source:      m.Source,
			Destination: m.Destination,
			Mode:        m.Mode,
		})
	}
	if resp.NetworkSettings != nil {
		for port, bindings := range resp.NetworkSettings.Ports {
			if len(bindings) == 0 {
				record.Ports = append(record.Ports, domain.PortBinding{Target: string(port)})
				continue
			}
			for _, b := range bindings {
				record.Ports = append(record.Ports, domain.PortBinding{
					Target:   string(port),
					HostIP:   b.HostIP,
					HostPort: b.HostPort,
				})
			}
		}
	}
	return record, nil
}

// ContainerLogs streams a container's output. Docker multiplexes stdout and
// stderr into one framed stream for non-TTY containers; that framing is
// stripped here so callers always read plain text.
func (e *Engine) ContainerLogs(ctx context.Context, containerID string, opts domain.LogOptions) (io.ReadCloser, error) {
	tail := opts.Tail
	if tail == "" {
		tail = "all"
	}
	rc, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}

	inspect, err := e.client.ContainerInspect(ctx, containerID)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	if inspect.Config != nil && inspect.Config.Tty {
		return rc, nil
	}

	pr, pw := io.Pipe()
	go func() {
		defer rc.Close()
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// ListContainers lists containers matching the label filters, newest first.
func (e *Engine) ListContainers(ctx context.Context, all bool, labels map[string]string) ([]*domain.Container, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		if v == "" {
			args.Add("label", k)
		} else {
			args.Add("label", k+"="+v)
		}
	}

	list, err := e.client.ContainerList(ctx, container.ListOptions{All: all, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]*domain.Container, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		record := &domain.Container{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			State:  c.State,
			Labels: c.Labels,
		}
		for _, p := range c.Ports {
			binding := domain.PortBinding{
				Target: fmt.Sprintf("%d/%s", p.PrivatePort, p.Type),
				HostIP: p.IP,
			}
			if p.PublicPort != 0 {
				binding.HostPort = strconv.Itoa(int(p.PublicPort))
			}
			record.Ports = append(record.Ports, binding)
		}
		fillOwnership(record)
		result = append(result, record)
	}
	return result, nil
}

// PullImage pulls an image, draining the progress stream to completion.
func (e *Engine) PullImage(ctx context.Context, imageRef string) error {
	log.Info().Str("image", imageRef).Msg("pulling image")

	reader, err := e.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read pull response: %w", err)
	}
	return nil
}

// RemoveImage removes an image.
func (e *Engine) RemoveImage(ctx context.Context, imageRef string, force bool) error {
	_, err := e.client.ImageRemove(ctx, imageRef, image.RemoveOptions{Force: force})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove image: %w", err)
	}
	log.Debug().Str("image", imageRef).Msg("image removed")
	return nil
}

// EnsureNetwork creates the project network if needed. A network declared
// external is never created: it must already exist on the engine.
func (e *Engine) EnsureNetwork(ctx context.Context, projectName string, spec domain.NetworkSpec) error {
	name := domain.NetworkRuntimeName(projectName, spec)

	exists, err := e.NetworkExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if spec.External {
		return fmt.Errorf("%w: %s", domain.ErrExternalNetworkMissing, name)
	}

	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}
	opts := network.CreateOptions{
		Driver:  driver,
		Options: spec.DriverOpts,
		Labels:  map[string]string{domain.LabelProject: projectName},
	}
	if spec.IPAM != nil {
		ipam := &network.IPAM{Driver: spec.IPAM.Driver}
		for _, subnet := range spec.IPAM.Subnets {
			ipam.Config = append(ipam.Config, network.IPAMConfig{Subnet: subnet})
		}
		opts.IPAM = ipam
	}

	if _, err := e.client.NetworkCreate(ctx, name, opts); err != nil {
		return fmt.Errorf("failed to create network: %w", err)
	}
	log.Info().Str("network", name).Str("driver", driver).Msg("network created")
	return nil
}

// RemoveNetwork removes a network; already-gone networks are not an error.
func (e *Engine) RemoveNetwork(ctx context.Context, name string) error {
	if err := e.client.NetworkRemove(ctx, name); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove network: %w", err)
	}
	log.Info().Str("network", name).Msg("network removed")
	return nil
}

// NetworkExists checks if a network exists.
func (e *Engine) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := e.client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect network: %w", err)
	}
	return true, nil
}

// EnsureVolume creates the project volume if needed. A volume declared
// external is never created: it must already exist on the engine.
func (e *Engine) EnsureVolume(ctx context.Context, projectName string, spec domain.VolumeSpec) error {
	name := domain.VolumeRuntimeName(projectName, spec)

	exists, err := e.VolumeExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if spec.External {
		return fmt.Errorf("%w: %s", domain.ErrExternalVolumeMissing, name)
	}

	_, err = e.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:       name,
		Driver:     spec.Driver,
		DriverOpts: spec.DriverOpts,
		Labels:     map[string]string{domain.LabelProject: projectName},
	})
	if err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	log.Info().Str("volume", name).Msg("volume created")
	return nil
}

// RemoveVolume removes a volume; already-gone volumes are not an error.
func (e *Engine) RemoveVolume(ctx context.Context, name string, force bool) error {
	if err := e.client.VolumeRemove(ctx, name, force); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove volume: %w", err)
	}
	log.Info().Str("volume", name).Msg("volume removed")
	return nil
}

// VolumeExists checks if a volume exists.
func (e *Engine) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := e.client.VolumeInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect volume: %w", err)
	}
	return true, nil
}

// Ping checks if the engine is responsive.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.client.Ping(ctx); err != nil {
		return fmt.Errorf("engine ping failed: %w", err)
	}
	return nil
}

// fillOwnership decodes the project labels into the record's typed fields.
func fillOwnership(c *domain.Container) {
	c.Service = c.Labels[domain.LabelService]
	if n, err := strconv.Atoi(c.Labels[domain.LabelInstance]); err == nil {
		c.Instance = n
	}
	c.OneOff = strings.EqualFold(c.Labels[domain.LabelOneOff], "true")
}
