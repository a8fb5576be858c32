package common

import (
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var cloneLock sync.Mutex

// NewGitCloneExecutorInput the input for the NewGitCloneExecutor
type NewGitCloneExecutorInput struct {
	URL    string
	Ref    string
	Dir    string
	Logger *log.Entry
	Dryrun bool
}

// refCandidates returns the fully qualified reference names to try for a
// user supplied ref. A bare version like `v2.1.0` is usually a tag while
// `release/2.1` is a branch, so tags are probed first.
func refCandidates(ref string) []plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	}
	return []plumbing.ReferenceName{
		plumbing.NewTagReferenceName(ref),
		plumbing.NewBranchReferenceName(ref),
	}
}

// NewGitCloneExecutor creates an executor to shallowly clone a git repo at a
// single ref. An existing clone in the target dir is reused as-is: the refs
// this tool checks out are release tags and release branches, both effectively
// immutable.
func NewGitCloneExecutor(input NewGitCloneExecutorInput) Executor {
	return func() error {
		input.Logger.Infof("git clone --depth=1 -b %s '%s'", input.Ref, input.URL)
		input.Logger.Debugf("  cloning %s to %s", input.URL, input.Dir)

		if input.Dryrun {
			return nil
		}

		cloneLock.Lock()
		defer cloneLock.Unlock()

		if _, err := git.PlainOpen(input.Dir); err == nil {
			input.Logger.Debugf("Reusing existing clone in %s", input.Dir)
			return nil
		}

		var lastErr error
		for _, refName := range refCandidates(input.Ref) {
			_, err := git.PlainClone(input.Dir, false, &git.CloneOptions{
				URL:           input.URL,
				ReferenceName: refName,
				SingleBranch:  true,
				Depth:         1,
				Progress:      input.Logger.WriterLevel(log.DebugLevel),
			})
			if err == nil {
				input.Logger.Debugf("Cloned %s at %s to %s", input.URL, refName, input.Dir)
				return nil
			}
			lastErr = err
			input.Logger.Debugf("Unable to clone %s at %s: %v", input.URL, refName, err)
		}
		return errors.Wrapf(lastErr, "unable to clone %s at '%s'", input.URL, input.Ref)
	}
}
