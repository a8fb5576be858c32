package wheel

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/crz068/pytorch-legacy/artifacts"
	"github.com/crz068/pytorch-legacy/cache"
	"github.com/crz068/pytorch-legacy/common"
	"github.com/crz068/pytorch-legacy/container"
)

// newBuildExecutor assembles the per-build pipeline: sources, image, cache
// restore, the containerized build, cache save, wheel collection. slot is the
// build's position in the plan and keeps siblings apart even when the same
// python version appears twice in the requested list.
func (runner *runnerImpl) newBuildExecutor(spec BuildSpec, slot string) common.Executor {
	logger := newBuildLogger(spec.String(), runner.config.Dryrun)

	role := cache.RolePython(spec.PythonVersion)
	if spec.Primed {
		role = cache.RoleFirst
	}

	// every build gets its own source tree and scratch dirs: the manywheel
	// scripts build in-tree, so fan-out siblings must not share a checkout
	buildDir := runner.buildScratchDir(spec, slot)
	srcDir := filepath.Join(buildDir, "src")
	ccacheDir := filepath.Join(buildDir, "ccache")
	outputDir := filepath.Join(buildDir, "wheels")

	checkouts, err := sourcesFor(runner.config.PyTorchVersion, srcDir)
	if err != nil {
		return common.NewErrorExecutor(err)
	}

	in := container.DockerExecutorInput{
		Ctx:    runner.config.Ctx,
		Logger: logger,
		Dryrun: runner.config.Dryrun,
	}

	executors := make([]common.Executor, 0)
	for _, checkout := range checkouts {
		executors = append(executors, common.NewGitCloneExecutor(common.NewGitCloneExecutorInput{
			URL:    checkout.URL,
			Ref:    checkout.Ref,
			Dir:    checkout.Dir,
			Logger: logger,
			Dryrun: runner.config.Dryrun,
		}))
	}

	executors = append(executors,
		runner.newImagePullExecutor(in),
		runner.newCacheRestoreExecutor(in, role, ccacheDir),
		runner.newDockerRunExecutor(in, spec, slot, checkouts, ccacheDir, outputDir),
		runner.newCacheSaveExecutor(in, role, ccacheDir),
		runner.newCollectExecutor(in, spec, outputDir),
	)

	return common.NewPipelineExecutor(executors...)
}

func (runner *runnerImpl) newImagePullExecutor(in container.DockerExecutorInput) common.Executor {
	pullExecutor := container.NewDockerPullExecutor(container.NewDockerPullExecutorInput{
		DockerExecutorInput: in,
		Image:               runner.config.Image,
	})

	return func() error {
		pull := runner.config.ForcePull
		if !pull && !runner.config.Dryrun {
			imageExists, err := container.ImageExistsLocally(in, runner.config.Image)
			if err != nil {
				return fmt.Errorf("unable to determine if image already exists for image %q", runner.config.Image)
			}
			in.Logger.Debugf("Image exists? %v", imageExists)
			pull = !imageExists
		}
		if pull || runner.config.Dryrun {
			return pullExecutor()
		}
		return nil
	}
}

func (runner *runnerImpl) newCacheRestoreExecutor(in container.DockerExecutorInput, role string, ccacheDir string) common.Executor {
	return func() error {
		keys := runner.resolver.RestoreKeys(role)
		in.Logger.Infof("restore compiler cache, probing %+q", keys)
		if runner.config.Dryrun {
			return nil
		}

		if err := os.MkdirAll(ccacheDir, 0o755); err != nil {
			return err
		}
		hitKey, err := runner.cacheStore.Restore(keys, ccacheDir)
		if err != nil {
			return err
		}
		if hitKey == "" {
			in.Logger.Infof("no cache entry found, starting from an empty cache")
		} else {
			in.Logger.Infof("restored compiler cache from %s", hitKey)
		}
		return nil
	}
}

func (runner *runnerImpl) newCacheSaveExecutor(in container.DockerExecutorInput, role string, ccacheDir string) common.Executor {
	return func() error {
		key := runner.resolver.SaveKey(role)
		in.Logger.Infof("save compiler cache as %s", key)
		if runner.config.Dryrun {
			return nil
		}
		return runner.cacheStore.Save(key, ccacheDir)
	}
}

func (runner *runnerImpl) newDockerRunExecutor(in container.DockerExecutorInput, spec BuildSpec, slot string, checkouts []sourceCheckout, ccacheDir string, outputDir string) common.Executor {
	setup := func() error {
		for _, dir := range []string{ccacheDir, outputDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return nil
	}

	env := make(map[string]string)
	appliers := []environmentApplier{
		&buildEnvApplier{
			pytorchVersion: runner.config.PyTorchVersion,
			pythonVersion:  spec.PythonVersion,
			cudaVersion:    runner.config.CUDAVersion,
		},
		&cacheEnvApplier{size: cacheSize(spec)},
		&mapEnvApplier{env: runner.config.Env},
		&mapEnvApplier{env: runner.config.Secrets},
	}
	for _, applier := range appliers {
		applier.applyEnvironment(env)
	}

	binds := []string{
		container.BindMount(runner.config.WorkingDir, containerWorkspace),
		container.BindMount(ccacheDir, containerCcache),
		container.BindMount(outputDir, containerWheels),
	}
	for _, checkout := range checkouts {
		binds = append(binds, container.BindMount(checkout.Dir, checkout.Mount))
	}

	cmd := []string{"--pytorch-version", runner.config.PyTorchVersion, "--python-version", spec.PythonVersion}
	cmd = append(cmd, runner.config.BuildArgs...)

	runExecutor := container.NewDockerRunExecutor(container.NewDockerRunExecutorInput{
		DockerExecutorInput: in,
		Image:               runner.config.Image,
		Entrypoint:          []string{"python3", buildScriptPath},
		Cmd:                 cmd,
		WorkingDir:          containerPyTorch,
		Env:                 envList(env),
		Binds:               binds,
		Name:                runner.createContainerName(spec, slot),
		ReuseContainers:     runner.config.ReuseContainers,
	})

	if runner.config.Dryrun {
		return runExecutor
	}
	return common.NewPipelineExecutor(setup, runExecutor)
}

// newCollectExecutor uploads the build's wheels to the artifact store. No
// wheel after a finished build is a warning, not a failure.
func (runner *runnerImpl) newCollectExecutor(in container.DockerExecutorInput, spec BuildSpec, outputDir string) common.Executor {
	return func() error {
		name := fmt.Sprintf("pytorch-%s-cu%s-py%s-wheel",
			runner.config.PyTorchVersion, cudaNoDot(runner.config.CUDAVersion), spec.PythonVersion)
		in.Logger.Infof("collect wheels into artifact '%s'", name)
		if runner.config.Dryrun {
			return nil
		}

		wheels, err := artifacts.FindWheels(outputDir)
		if err != nil {
			return err
		}
		if len(wheels) == 0 {
			return common.Warningf("no wheel produced for python %s", spec.PythonVersion)
		}
		return runner.artifactStore.Upload(name, wheels...)
	}
}

// buildScratchDir returns the private scratch dir for one build of the plan
func (runner *runnerImpl) buildScratchDir(spec BuildSpec, slot string) string {
	return filepath.Join(runner.tempDir, fmt.Sprintf("build-%s-py%s", slot, spec.PythonVersion))
}

func (runner *runnerImpl) createContainerName(spec BuildSpec, slot string) string {
	name := fmt.Sprintf("pytorch-legacy-%s-%s-py%s-%s", runner.config.PyTorchVersion, slot, spec.PythonVersion, runner.runID)
	return trimToLen(regexp.MustCompile("[^a-zA-Z0-9-]").ReplaceAllString(name, "-"), 63)
}

func trimToLen(s string, l int) string {
	if len(s) > l {
		return s[:l]
	}
	return s
}
