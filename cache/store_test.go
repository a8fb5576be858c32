package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func writeCacheDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestStoreSaveRestore(t *testing.T) {
	store := newTestStore(t)

	src := writeCacheDir(t, map[string]string{
		"0/ab.o":    "object code",
		"stats.txt": "hits: 0",
	})
	require.NoError(t, store.Save("ccache-2.1.0-first-run1", src))

	dest := t.TempDir()
	hit, err := store.Restore([]string{"ccache-2.1.0-first-run1"}, dest)
	assert.NoError(t, err)
	assert.Equal(t, "ccache-2.1.0-first-run1", hit)

	content, err := os.ReadFile(filepath.Join(dest, "0", "ab.o"))
	assert.NoError(t, err)
	assert.Equal(t, "object code", string(content))
}

func TestStorePrefixFallback(t *testing.T) {
	store := newTestStore(t)
	resolver := NewKeyResolver("2.1.0", "run2")

	src := writeCacheDir(t, map[string]string{"x.o": "x"})
	// older run seeded the cache under its own run id
	require.NoError(t, store.Save("ccache-2.1.0-first-run1", src))

	// a fan-out build of this run finds it through the fallback chain
	hit, err := store.Exists(resolver.RestoreKeys(RolePython("3.11")))
	assert.NoError(t, err)
	assert.Equal(t, "ccache-2.1.0-first-run1", hit)

	// a different pytorch version does not
	other := NewKeyResolver("2.2.0", "run2")
	hit, err = store.Exists(other.RestoreKeys(RoleCheck))
	assert.NoError(t, err)
	assert.Equal(t, "", hit)
}

func TestStoreNewestPrefixMatchWins(t *testing.T) {
	store := newTestStore(t)

	src := writeCacheDir(t, map[string]string{"x.o": "x"})
	require.NoError(t, store.Save("ccache-2.1.0-after-first-py3.11-run1", src))
	require.NoError(t, store.Save("ccache-2.1.0-after-first-py3.11-run2", src))

	hit, err := store.Exists([]string{"ccache-2.1.0-after-first-py3.11-"})
	assert.NoError(t, err)
	assert.Equal(t, "ccache-2.1.0-after-first-py3.11-run2", hit)
}

func TestStoreMissIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	hit, err := store.Restore([]string{"ccache-9.9.9-", "ccache-"}, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, "", hit)
}

func TestStoreCorruptBlobIsAMiss(t *testing.T) {
	store := newTestStore(t)

	src := writeCacheDir(t, map[string]string{"x.o": "x"})
	require.NoError(t, store.Save("ccache-2.1.0-first-run1", src))

	var entry Entry
	require.NoError(t, store.db.Get("ccache-2.1.0-first-run1", &entry))
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "blobs", entry.Blob), []byte("not a tarball"), 0o644))

	hit, err := store.Restore([]string{"ccache-2.1.0-first-run1"}, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, "", hit)
}

func TestStorePrune(t *testing.T) {
	store := newTestStore(t)

	src := writeCacheDir(t, map[string]string{"x.o": "x"})
	require.NoError(t, store.Save("ccache-2.1.0-first-run1", src))

	pruned, err := store.Prune(time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 0, pruned)

	pruned, err = store.Prune(0)
	assert.NoError(t, err)
	assert.Equal(t, 1, pruned)

	hit, err := store.Exists([]string{"ccache-2.1.0-"})
	assert.NoError(t, err)
	assert.Equal(t, "", hit)
}
