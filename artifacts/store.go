package artifacts

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/moby/patternmatcher"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// wheelPatterns matches the files a build job is expected to leave behind
var wheelPatterns = []string{"*.whl"}

// Store keeps named build artifacts, one directory of files per name. Names
// are pairwise distinct by construction across a run and Upload enforces it,
// so DownloadAll can merge everything without collisions.
type Store struct {
	fs billy.Filesystem
}

// NewStore creates a store on any billy filesystem (memfs in tests)
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// OpenDir opens a store rooted at an on-disk directory
func OpenDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "unable to create artifact store")
	}
	return NewStore(osfs.New(dir)), nil
}

// Upload stores files under an artifact name. A name that already exists is
// rejected: distinct names per (pytorch, cuda, python) triple are the
// invariant that makes the merge during aggregation safe.
func (s *Store) Upload(name string, files ...string) error {
	if _, err := s.fs.Stat(name); err == nil {
		return errors.Errorf("artifact '%s' already exists", name)
	}
	if len(files) == 0 {
		return errors.Errorf("artifact '%s' has no files", name)
	}

	for _, file := range files {
		src, err := os.Open(file)
		if err != nil {
			return errors.Wrapf(err, "unable to upload artifact '%s'", name)
		}

		dst, err := s.fs.Create(path.Join(name, filepath.Base(file)))
		if err != nil {
			src.Close()
			return errors.Wrapf(err, "unable to upload artifact '%s'", name)
		}

		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "unable to upload artifact '%s'", name)
		}
		log.Debugf("Uploaded %s to artifact '%s'", filepath.Base(file), name)
	}
	return nil
}

// List returns the artifact names currently in the store
func (s *Store) List() ([]string, error) {
	infos, err := s.fs.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "unable to list artifacts")
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DownloadAll merges the files of every artifact into dest and returns their
// paths. A duplicate file name across artifacts is an error rather than a
// silent overwrite.
func (s *Store) DownloadAll(dest string) ([]string, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, errors.Wrap(err, "unable to create download dir")
	}

	seen := make(map[string]string)
	merged := make([]string, 0)

	names, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		err := util.Walk(s.fs, name, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			base := filepath.Base(p)
			if prev, ok := seen[base]; ok {
				return errors.Errorf("artifact file %s from '%s' collides with '%s'", base, name, prev)
			}
			seen[base] = name

			src, err := s.fs.Open(p)
			if err != nil {
				return err
			}
			defer src.Close()

			target := filepath.Join(dest, base)
			dst, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(dst, src); err != nil {
				dst.Close()
				return err
			}
			if err := dst.Close(); err != nil {
				return err
			}
			merged = append(merged, target)
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "unable to download artifact '%s'", name)
		}
	}
	sort.Strings(merged)
	return merged, nil
}

// FindWheels returns the wheel files under dir, non-recursively matching the
// wheel patterns. A missing dir yields no wheels, not an error.
func FindWheels(dir string) ([]string, error) {
	matcher, err := patternmatcher.New(wheelPatterns)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to scan %s for wheels", dir)
	}

	wheels := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := matcher.MatchesOrParentMatches(entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			wheels = append(wheels, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(wheels)
	return wheels, nil
}
