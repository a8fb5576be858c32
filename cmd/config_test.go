package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingDefaultFile(t *testing.T) {
	input := &Input{workdir: t.TempDir()}

	settings, err := loadSettings(input)
	require.NoError(t, err)
	assert.Equal(t, &Settings{}, settings)
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	input := &Input{workdir: t.TempDir(), configFile: "nope.yml"}

	_, err := loadSettings(input)
	assert.Error(t, err)
}

func TestLoadSettings(t *testing.T) {
	workdir := t.TempDir()
	content := []byte(`
pythonVersions: "3.10,3.11"
image: pytorch/manylinux-builder:cuda12.1
env:
  MAX_JOBS: "8"
`)
	require.NoError(t, os.WriteFile(filepath.Join(workdir, defaultConfigFileName), content, 0o644))

	settings, err := loadSettings(&Input{workdir: workdir})
	require.NoError(t, err)
	assert.Equal(t, "3.10,3.11", settings.PythonVersions)
	assert.Equal(t, "pytorch/manylinux-builder:cuda12.1", settings.Image)
	assert.Equal(t, map[string]string{"MAX_JOBS": "8"}, settings.Env)
}

func TestApplySettings(t *testing.T) {
	input := &Input{}
	cmd := createRootCommand(context.Background(), input, "test")
	require.NoError(t, cmd.Flags().Set("cuda-version", "12.1"))

	input.applySettings(cmd.Flags(), &Settings{
		PyTorchVersion: "2.1.0",
		PythonVersions: "3.10,3.11",
		CUDAVersion:    "11.7",
	})

	assert.Equal(t, "2.1.0", input.pytorchVersion)
	assert.Equal(t, "3.10,3.11", input.pythonVersions)
	// the command line flag wins over the settings file
	assert.Equal(t, "12.1", input.cudaVersion)
}

func TestReadEnvs(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "build.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MAX_JOBS=4\nEXTRA=1\n"), 0o644))

	env, err := readEnvs([]string{envFile}, &Settings{Env: map[string]string{"MAX_JOBS": "8", "BASE": "y"}})
	require.NoError(t, err)

	// the env file overrides the settings file's env block
	assert.Equal(t, map[string]string{"MAX_JOBS": "4", "EXTRA": "1", "BASE": "y"}, env)
}
