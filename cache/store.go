package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
	bolt "go.etcd.io/bbolt"
)

// Store is the versioned key-value store the compiler cache moves through.
// Restore and Exists probe an ordered list of keys, exact match first, then
// treating each entry as a prefix; both return the empty string on a total
// miss, never an error. Save is last-write-wins per exact key.
type Store interface {
	Exists(keys []string) (string, error)
	Restore(keys []string, dir string) (string, error)
	Save(key string, dir string) error
}

// Entry is the metadata record kept per snapshot
type Entry struct {
	Key       string `boltholdKey:"Key"`
	Blob      string
	Size      int64
	CreatedAt time.Time
}

// LocalStore keeps snapshot tarballs on disk with bolthold metadata
type LocalStore struct {
	dir string
	db  *bolthold.Store
}

// Open opens (or creates) a local snapshot store in dir
func Open(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return nil, errors.Wrap(err, "unable to create cache store")
	}

	db, err := bolthold.Open(filepath.Join(dir, "cache.db"), 0o644, &bolthold.Options{
		Options: &bolt.Options{Timeout: 5 * time.Second},
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to open cache store")
	}

	return &LocalStore{dir: dir, db: db}, nil
}

// Close closes the metadata database
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// lookup resolves a list of probe keys to the best matching entry. Exact
// matches win; otherwise the newest entry whose key starts with the probe.
func (s *LocalStore) lookup(keys []string) (*Entry, error) {
	for _, key := range keys {
		var entry Entry
		err := s.db.Get(key, &entry)
		if err == nil {
			return &entry, nil
		}
		if err != bolthold.ErrNotFound {
			return nil, errors.Wrapf(err, "unable to query cache key %s", key)
		}

		var entries []Entry
		if err := s.db.Find(&entries, bolthold.Where(bolthold.Key).Ge(key).And(bolthold.Key).Lt(key+"\xff")); err != nil {
			return nil, errors.Wrapf(err, "unable to query cache prefix %s", key)
		}
		if len(entries) == 0 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		})
		return &entries[0], nil
	}
	return nil, nil
}

// Exists probes the key chain without extracting anything
func (s *LocalStore) Exists(keys []string) (string, error) {
	entry, err := s.lookup(keys)
	if err != nil || entry == nil {
		return "", err
	}
	return entry.Key, nil
}

// Restore extracts the best matching snapshot into dir and returns the key
// that hit. A corrupt snapshot counts as a miss: restore never fails a build.
func (s *LocalStore) Restore(keys []string, dir string) (string, error) {
	entry, err := s.lookup(keys)
	if err != nil || entry == nil {
		return "", err
	}

	f, err := os.Open(filepath.Join(s.dir, "blobs", entry.Blob))
	if err != nil {
		log.Warningf("cache entry %s has no blob, treating as miss: %v", entry.Key, err)
		return "", nil
	}
	defer f.Close()

	if err := extractArchive(f, dir); err != nil {
		log.Warningf("cache entry %s is corrupt, treating as miss: %v", entry.Key, err)
		return "", nil
	}
	return entry.Key, nil
}

// Save snapshots dir under an exact key
func (s *LocalStore) Save(key string, dir string) error {
	blob := fmt.Sprintf("%s-%d.tar.gz", SanitizeKey(key), time.Now().UnixNano())
	blobPath := filepath.Join(s.dir, "blobs", blob)

	f, err := os.Create(blobPath)
	if err != nil {
		return errors.Wrapf(err, "unable to save cache key %s", key)
	}
	if err := archiveDir(dir, f); err != nil {
		f.Close()
		os.Remove(blobPath)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fi, err := os.Stat(blobPath)
	if err != nil {
		return err
	}

	entry := &Entry{
		Key:       key,
		Blob:      blob,
		Size:      fi.Size(),
		CreatedAt: time.Now(),
	}
	if err := s.db.Upsert(key, entry); err != nil {
		os.Remove(blobPath)
		return errors.Wrapf(err, "unable to index cache key %s", key)
	}
	log.Debugf("Saved cache key %s (%d bytes)", key, entry.Size)
	return nil
}

// SaveArchive stores an already archived snapshot, as uploaded by a remote
// runner through the cache server
func (s *LocalStore) SaveArchive(key string, r io.Reader) error {
	blob := fmt.Sprintf("%s-%d.tar.gz", SanitizeKey(key), time.Now().UnixNano())
	blobPath := filepath.Join(s.dir, "blobs", blob)

	f, err := os.Create(blobPath)
	if err != nil {
		return errors.Wrapf(err, "unable to save cache key %s", key)
	}
	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(blobPath)
		return errors.Wrapf(err, "unable to save cache key %s", key)
	}
	if err := f.Close(); err != nil {
		return err
	}

	entry := &Entry{Key: key, Blob: blob, Size: size, CreatedAt: time.Now()}
	if err := s.db.Upsert(key, entry); err != nil {
		os.Remove(blobPath)
		return errors.Wrapf(err, "unable to index cache key %s", key)
	}
	return nil
}

// OpenArchive resolves the key chain and opens the raw snapshot tarball
func (s *LocalStore) OpenArchive(keys []string) (string, io.ReadCloser, error) {
	entry, err := s.lookup(keys)
	if err != nil || entry == nil {
		return "", nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, "blobs", entry.Blob))
	if err != nil {
		return "", nil, nil
	}
	return entry.Key, f, nil
}

// Prune removes snapshots older than maxAge, bounding store growth the way
// the hosted cache's eviction would
func (s *LocalStore) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	var stale []Entry
	if err := s.db.Find(&stale, bolthold.Where("CreatedAt").Lt(cutoff)); err != nil {
		return 0, errors.Wrap(err, "unable to query stale cache entries")
	}

	pruned := 0
	for i := range stale {
		entry := &stale[i]
		if err := s.db.Delete(entry.Key, entry); err != nil {
			return pruned, errors.Wrapf(err, "unable to prune cache key %s", entry.Key)
		}
		if err := os.Remove(filepath.Join(s.dir, "blobs", entry.Blob)); err != nil && !os.IsNotExist(err) {
			log.Warningf("unable to remove blob for %s: %v", entry.Key, err)
		}
		pruned++
	}
	if pruned > 0 {
		log.Debugf("Pruned %d cache entries older than %s", pruned, maxAge)
	}
	return pruned, nil
}

// list returns all entries, used by the server's index endpoint
func (s *LocalStore) list() ([]Entry, error) {
	var entries []Entry
	if err := s.db.Find(&entries, nil); err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].Key, entries[j].Key) < 0
	})
	return entries, nil
}
