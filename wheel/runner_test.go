package wheel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crz068/pytorch-legacy/cache"
)

func newTestConfig(t *testing.T) *RunnerConfig {
	t.Helper()
	return &RunnerConfig{
		Ctx:            context.Background(),
		Dryrun:         true,
		PyTorchVersion: "2.1.0",
		PythonVersions: "3.10,3.11",
		CUDAVersion:    "11.8",
		Image:          "pytorch/manylinux-builder:cuda11.8",
		WorkingDir:     t.TempDir(),
		CacheDir:       t.TempDir(),
		ArtifactDir:    t.TempDir(),
	}
}

func TestPlanBuildsColdCache(t *testing.T) {
	log.SetLevel(log.DebugLevel)
	config := newTestConfig(t)

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	plan, err := runner.PlanBuilds()
	require.NoError(t, err)

	// cold cache: one primed build for 3.10, then fan-out for 3.11
	assert.False(t, plan.CacheHit)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, []BuildSpec{{PythonVersion: "3.10", Primed: true}}, plan.Stages[0].Builds)
	assert.Equal(t, []BuildSpec{{PythonVersion: "3.11"}}, plan.Stages[1].Builds)
}

func TestPlanBuildsWarmCache(t *testing.T) {
	config := newTestConfig(t)

	// a previous run left a cache entry for this pytorch version
	store, err := cache.Open(config.CacheDir)
	require.NoError(t, err)
	seed := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seed, "x.o"), []byte("x"), 0o644))
	require.NoError(t, store.Save("ccache-2.1.0-first-priorrun", seed))
	require.NoError(t, store.Close())

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	plan, err := runner.PlanBuilds()
	require.NoError(t, err)

	// warm cache: the primed stage is skipped and everything fans out
	assert.True(t, plan.CacheHit)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, []BuildSpec{
		{PythonVersion: "3.10"},
		{PythonVersion: "3.11"},
	}, plan.Stages[0].Builds)
}

func TestPlanBuildsIgnoresOtherVersionCache(t *testing.T) {
	config := newTestConfig(t)

	store, err := cache.Open(config.CacheDir)
	require.NoError(t, err)
	seed := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seed, "x.o"), []byte("x"), 0o644))
	require.NoError(t, store.Save("ccache-2.0.1-first-priorrun", seed))
	require.NoError(t, store.Close())

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	plan, err := runner.PlanBuilds()
	require.NoError(t, err)
	assert.False(t, plan.CacheHit)
}

func TestRunDryrun(t *testing.T) {
	config := newTestConfig(t)

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	assert.NoError(t, runner.Run())
}

func TestRunNothingToBuild(t *testing.T) {
	config := newTestConfig(t)
	config.PythonVersions = ""

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	assert.NoError(t, runner.Run())
}

func TestRunDryrunDuplicateVersions(t *testing.T) {
	config := newTestConfig(t)
	config.PythonVersions = "3.10,3.10"

	runner, err := NewRunner(config)
	require.NoError(t, err)
	defer runner.Close()

	assert.NoError(t, runner.Run())
}

func TestNewRunnerRequiresPyTorchVersion(t *testing.T) {
	config := newTestConfig(t)
	config.PyTorchVersion = ""

	r, err := NewRunner(config)
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestPublishFailsWithoutWheels(t *testing.T) {
	config := newTestConfig(t)
	config.Dryrun = false
	config.NoPublish = true

	r, err := NewRunner(config)
	require.NoError(t, err)
	defer r.Close()

	err = r.(*runnerImpl).newPublishExecutor()()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--allow-empty-release")
}

func TestPublishEmptyReleaseWhenAllowed(t *testing.T) {
	config := newTestConfig(t)
	config.Dryrun = false
	config.NoPublish = true
	config.AllowEmptyRelease = true

	r, err := NewRunner(config)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.(*runnerImpl).newPublishExecutor()())

	manifest := filepath.Join(config.WorkingDir, "releases", "pytorch-2.1.0", "release.yml")
	_, err = os.Stat(manifest)
	assert.NoError(t, err)
}

func TestPublishSurvivesWheellessSibling(t *testing.T) {
	config := newTestConfig(t)
	config.Dryrun = false
	config.NoPublish = true

	r, err := NewRunner(config)
	require.NoError(t, err)
	defer r.Close()
	runner := r.(*runnerImpl)

	// only one of the two requested builds produced a wheel
	wheelFile := filepath.Join(t.TempDir(), "torch-2.1.0+cu118-cp310-none-linux_x86_64.whl")
	require.NoError(t, os.WriteFile(wheelFile, []byte("wheel"), 0o644))
	require.NoError(t, runner.artifactStore.Upload("pytorch-2.1.0-cu118-py3.10-wheel", wheelFile))

	require.NoError(t, runner.newPublishExecutor()())

	asset := filepath.Join(config.WorkingDir, "releases", "pytorch-2.1.0", filepath.Base(wheelFile))
	_, err = os.Stat(asset)
	assert.NoError(t, err)
}

func TestCreateContainerName(t *testing.T) {
	config := newTestConfig(t)

	r, err := NewRunner(config)
	require.NoError(t, err)
	defer r.Close()

	runner := r.(*runnerImpl)
	name := runner.createContainerName(BuildSpec{PythonVersion: "3.10"}, "1-0")
	assert.Regexp(t, "^[a-zA-Z0-9-]+$", name)
	assert.LessOrEqual(t, len(name), 63)
	assert.Contains(t, name, "py3-10")
}

func TestDuplicateVersionsDoNotCollide(t *testing.T) {
	config := newTestConfig(t)

	r, err := NewRunner(config)
	require.NoError(t, err)
	defer r.Close()
	runner := r.(*runnerImpl)

	// the same python version may appear twice in the requested list; the
	// builds still need private scratch dirs and container names
	primed := BuildSpec{PythonVersion: "3.10", Primed: true}
	repeat := BuildSpec{PythonVersion: "3.10"}

	assert.NotEqual(t,
		runner.buildScratchDir(primed, "0-0"),
		runner.buildScratchDir(repeat, "1-0"))
	assert.NotEqual(t,
		runner.createContainerName(primed, "0-0"),
		runner.createContainerName(repeat, "1-0"))
	assert.NotEqual(t,
		runner.createContainerName(repeat, "1-0"),
		runner.createContainerName(repeat, "1-1"))
}
