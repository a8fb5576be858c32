package container

import (
	"encoding/base64"
	"encoding/json"
	"io"

	cliconfig "github.com/docker/cli/cli/config"
	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"

	"github.com/crz068/pytorch-legacy/common"
)

// NewDockerPullExecutorInput the input for the NewDockerPullExecutor
type NewDockerPullExecutorInput struct {
	DockerExecutorInput
	Image string
}

// NewDockerPullExecutor creates an executor to pull an image
func NewDockerPullExecutor(input NewDockerPullExecutorInput) common.Executor {
	return func() error {
		input.Logger.Infof("docker pull %s", input.Image)

		if input.Dryrun {
			return nil
		}

		ref, err := reference.ParseNormalizedNamed(input.Image)
		if err != nil {
			return errors.Wrapf(err, "invalid image reference '%s'", input.Image)
		}

		cli, err := newDockerClient()
		if err != nil {
			return err
		}
		defer cli.Close()

		pullOptions, err := getImagePullOptions(ref)
		if err != nil {
			return err
		}

		resp, err := cli.ImagePull(input.Ctx, reference.FamiliarString(ref), pullOptions)
		if err != nil {
			return errors.Wrapf(err, "unable to pull %s", input.Image)
		}
		defer resp.Close()

		return input.logDockerResponse(resp)
	}
}

func getImagePullOptions(ref reference.Named) (image.PullOptions, error) {
	pullOptions := image.PullOptions{}

	// reuse whatever `docker login` left in the CLI config
	config := cliconfig.LoadDefaultConfigFile(io.Discard)
	authConfig, err := config.GetAuthConfig(reference.Domain(ref))
	if err != nil {
		return pullOptions, nil
	}
	if authConfig.Username == "" && authConfig.IdentityToken == "" && authConfig.Auth == "" {
		return pullOptions, nil
	}

	encoded, err := json.Marshal(authConfig)
	if err != nil {
		return pullOptions, err
	}
	pullOptions.RegistryAuth = base64.URLEncoding.EncodeToString(encoded)
	return pullOptions, nil
}

// ImageExistsLocally returns a boolean indicating if an image with the
// requested name exists in the local docker image store
func ImageExistsLocally(input DockerExecutorInput, imageName string) (bool, error) {
	cli, err := newDockerClient()
	if err != nil {
		return false, err
	}
	defer cli.Close()

	_, _, err = cli.ImageInspectWithRaw(input.Ctx, imageName)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "unable to inspect image '%s'", imageName)
}
