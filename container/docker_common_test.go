package container

import (
	"context"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
)

func TestBindMount(t *testing.T) {
	bind := BindMount("/host/ccache", "/ccache")
	assert.Assert(t, strings.HasPrefix(bind, "/host/ccache:/ccache"))
}

func TestDockerPullDryrun(t *testing.T) {
	executor := NewDockerPullExecutor(NewDockerPullExecutorInput{
		DockerExecutorInput: DockerExecutorInput{
			Ctx:    context.Background(),
			Logger: log.NewEntry(log.New()),
			Dryrun: true,
		},
		Image: "pytorch/manylinux-builder:cuda11.8",
	})
	assert.NilError(t, executor())
}

func TestDockerRunDryrun(t *testing.T) {
	executor := NewDockerRunExecutor(NewDockerRunExecutorInput{
		DockerExecutorInput: DockerExecutorInput{
			Ctx:    context.Background(),
			Logger: log.NewEntry(log.New()),
			Dryrun: true,
		},
		Image:      "pytorch/manylinux-builder:cuda11.8",
		Entrypoint: []string{"python3", "/workspace/build_pytorch.py"},
		Cmd:        []string{"--pytorch-version", "2.1.0"},
		Name:       "pytorch-legacy-test",
	})
	assert.NilError(t, executor())
}
