package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/opencontainers/selinux/go-selinux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DockerExecutorInput common input for docker executors
type DockerExecutorInput struct {
	Ctx    context.Context
	Logger *log.Entry
	Dryrun bool
}

func newDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to docker daemon")
	}
	return cli, nil
}

// logDockerResponse streams a docker progress response through the logger
func (i *DockerExecutorInput) logDockerResponse(response io.Reader) error {
	out := i.Logger.WriterLevel(log.DebugLevel)
	defer out.Close()
	return jsonmessage.DisplayJSONMessagesStream(response, out, 0, false, nil)
}

func isNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

// BindMount formats a docker bind mount, relabeling for SELinux hosts where
// the kernel would otherwise deny the container access
func BindMount(src string, dst string) string {
	bind := fmt.Sprintf("%s:%s", src, dst)
	if selinux.GetEnabled() {
		bind += ":z"
	}
	return bind
}
