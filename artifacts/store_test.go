package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestUploadAndDownloadAll(t *testing.T) {
	store := NewStore(memfs.New())
	dir := t.TempDir()

	w310 := writeFile(t, dir, "torch-2.1.0+cu118-cp310-linux_x86_64.whl", "wheel 3.10")
	w311 := writeFile(t, dir, "torch-2.1.0+cu118-cp311-linux_x86_64.whl", "wheel 3.11")

	require.NoError(t, store.Upload("pytorch-2.1.0-cu118-py3.10-wheel", w310))
	require.NoError(t, store.Upload("pytorch-2.1.0-cu118-py3.11-wheel", w311))

	names, err := store.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{
		"pytorch-2.1.0-cu118-py3.10-wheel",
		"pytorch-2.1.0-cu118-py3.11-wheel",
	}, names)

	dest := t.TempDir()
	merged, err := store.DownloadAll(dest)
	assert.NoError(t, err)
	assert.Len(t, merged, 2)

	content, err := os.ReadFile(filepath.Join(dest, "torch-2.1.0+cu118-cp310-linux_x86_64.whl"))
	assert.NoError(t, err)
	assert.Equal(t, "wheel 3.10", string(content))
}

func TestUploadRejectsDuplicateName(t *testing.T) {
	store := NewStore(memfs.New())
	dir := t.TempDir()
	wheel := writeFile(t, dir, "torch.whl", "wheel")

	require.NoError(t, store.Upload("pytorch-2.1.0-cu118-py3.10-wheel", wheel))
	err := store.Upload("pytorch-2.1.0-cu118-py3.10-wheel", wheel)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestUploadRejectsEmptyFileSet(t *testing.T) {
	store := NewStore(memfs.New())
	assert.Error(t, store.Upload("pytorch-2.1.0-cu118-py3.10-wheel"))
}

func TestDownloadAllEmptyStore(t *testing.T) {
	store := NewStore(memfs.New())
	merged, err := store.DownloadAll(t.TempDir())
	assert.NoError(t, err)
	assert.Empty(t, merged)
}

func TestFindWheels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "torch-2.1.0-cp310.whl", "w")
	writeFile(t, dir, "build.log", "log")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tmp"), 0o755))

	wheels, err := FindWheels(dir)
	assert.NoError(t, err)
	require.Len(t, wheels, 1)
	assert.Equal(t, "torch-2.1.0-cp310.whl", filepath.Base(wheels[0]))

	// a missing output dir is a warning upstream, not an error here
	wheels, err = FindWheels(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Empty(t, wheels)
}
