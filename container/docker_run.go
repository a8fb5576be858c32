package container

import (
	"fmt"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/crz068/pytorch-legacy/common"
)

// NewDockerRunExecutorInput the input for the NewDockerRunExecutor
type NewDockerRunExecutorInput struct {
	DockerExecutorInput
	Image           string
	Entrypoint      []string
	Cmd             []string
	WorkingDir      string
	Env             []string
	Binds           []string
	Name            string
	Platform        *specs.Platform
	ReuseContainers bool
}

// NewDockerRunExecutor creates an executor to run a command in a container
func NewDockerRunExecutor(input NewDockerRunExecutorInput) common.Executor {
	return func() error {
		input.Logger.Infof("docker run image=%s entrypoint=%+q cmd=%+q", input.Image, input.Entrypoint, input.Cmd)

		if input.Dryrun {
			return nil
		}

		cli, err := newDockerClient()
		if err != nil {
			return err
		}
		defer cli.Close()

		// a leftover container with the same name blocks creation
		err = cli.ContainerRemove(input.Ctx, input.Name, containertypes.RemoveOptions{Force: true})
		if err != nil && !isNotFound(err) {
			return errors.Wrapf(err, "unable to remove stale container '%s'", input.Name)
		}

		config := &containertypes.Config{
			Image:      input.Image,
			Cmd:        input.Cmd,
			Entrypoint: input.Entrypoint,
			WorkingDir: input.WorkingDir,
			Env:        input.Env,
			Tty:        false,
		}
		hostConfig := &containertypes.HostConfig{
			Binds:      input.Binds,
			AutoRemove: false,
		}

		created, err := cli.ContainerCreate(input.Ctx, config, hostConfig, nil, input.Platform, input.Name)
		if err != nil {
			return errors.Wrapf(err, "unable to create container '%s'", input.Name)
		}
		containerID := created.ID
		input.Logger.Debugf("Created container %s", containerID)

		if !input.ReuseContainers {
			defer func() {
				if err := cli.ContainerRemove(input.Ctx, containerID, containertypes.RemoveOptions{Force: true}); err != nil {
					input.Logger.Debugf("Unable to remove container %s: %v", containerID, err)
				}
			}()
		}

		attach, err := cli.ContainerAttach(input.Ctx, containerID, containertypes.AttachOptions{
			Stream: true,
			Stdout: true,
			Stderr: true,
		})
		if err != nil {
			return errors.Wrapf(err, "unable to attach to container '%s'", input.Name)
		}
		defer attach.Close()

		if err := cli.ContainerStart(input.Ctx, containerID, containertypes.StartOptions{}); err != nil {
			return errors.Wrapf(err, "unable to start container '%s'", input.Name)
		}

		outWriter := input.Logger.WriterLevel(log.InfoLevel)
		errWriter := input.Logger.WriterLevel(log.WarnLevel)
		defer outWriter.Close()
		defer errWriter.Close()
		copyDone := make(chan error, 1)
		go func() {
			_, err := stdcopy.StdCopy(outWriter, errWriter, attach.Reader)
			copyDone <- err
		}()

		statusCh, errCh := cli.ContainerWait(input.Ctx, containerID, containertypes.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			if err != nil {
				return errors.Wrapf(err, "unable to wait for container '%s'", input.Name)
			}
		case status := <-statusCh:
			<-copyDone
			if status.StatusCode != 0 {
				return fmt.Errorf("container '%s' exited with status %d", input.Name, status.StatusCode)
			}
		case <-input.Ctx.Done():
			input.Logger.Infof("stopping container %s", input.Name)
			if err := cli.ContainerKill(input.Ctx, containerID, "SIGTERM"); err != nil {
				input.Logger.Debugf("Unable to kill container %s: %v", containerID, err)
			}
			return input.Ctx.Err()
		}

		input.Logger.Debugf("Container %s finished", containerID)
		return nil
	}
}

