package wheel

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/crz068/pytorch-legacy/artifacts"
	"github.com/crz068/pytorch-legacy/cache"
	"github.com/crz068/pytorch-legacy/common"
	"github.com/crz068/pytorch-legacy/release"
)

type runnerImpl struct {
	config        *RunnerConfig
	runID         string
	first         string
	rest          []string
	resolver      *cache.KeyResolver
	cacheStore    cache.Store
	localCache    *cache.LocalStore
	artifactStore *artifacts.Store
	publisher     release.Publisher
	tempDir       string
}

// NewRunner Creates a new Runner
func NewRunner(runnerConfig *RunnerConfig) (Runner, error) {
	runner := &runnerImpl{
		config: runnerConfig,
	}

	init := common.NewPipelineExecutor(
		runner.setupRunID,
		runner.setupVersions,
		runner.setupDirs,
		runner.setupCacheStore,
		runner.setupArtifactStore,
		runner.setupPublisher,
	)

	if err := init(); err != nil {
		_ = runner.Close()
		return nil, err
	}
	return runner, nil
}

func (runner *runnerImpl) setupRunID() error {
	runner.runID = fmt.Sprintf("%x", time.Now().UnixNano())
	log.Debugf("Run id is %s", runner.runID)
	return nil
}

func (runner *runnerImpl) setupDirs() error {
	var err error
	runner.config.WorkingDir, err = filepath.Abs(runner.config.WorkingDir)
	if err != nil {
		return err
	}
	log.Debugf("Setting working dir to %s", runner.config.WorkingDir)

	runner.tempDir, err = os.MkdirTemp("", "pytorch-legacy-")
	return err
}

func (runner *runnerImpl) setupVersions() error {
	if runner.config.PyTorchVersion == "" {
		return errors.New("a pytorch version is required")
	}
	runner.first, runner.rest = SplitVersions(runner.config.PythonVersions)
	runner.resolver = cache.NewKeyResolver(runner.config.PyTorchVersion, runner.runID)
	return nil
}

func (runner *runnerImpl) setupCacheStore() error {
	if runner.config.CacheServerURL != "" {
		log.Debugf("Using cache server at %s", runner.config.CacheServerURL)
		store, err := cache.NewRemoteStore(runner.config.CacheServerURL, runner.config.CacheServerSecret)
		if err != nil {
			return err
		}
		runner.cacheStore = store
		return nil
	}

	store, err := cache.Open(runner.config.CacheDir)
	if err != nil {
		return err
	}
	runner.localCache = store
	runner.cacheStore = store
	return nil
}

func (runner *runnerImpl) setupArtifactStore() error {
	var err error
	runner.artifactStore, err = artifacts.OpenDir(runner.config.ArtifactDir)
	return err
}

func (runner *runnerImpl) setupPublisher() error {
	if runner.config.NoPublish || runner.config.GitHubRepo == "" {
		stagingDir := filepath.Join(runner.config.WorkingDir, "releases")
		log.Debugf("Staging releases locally in %s", stagingDir)
		runner.publisher = &release.LocalPublisher{Dir: stagingDir}
		return nil
	}

	publisher, err := release.NewGitHubPublisher(runner.config.GitHubRepo, runner.config.GitHubToken)
	if err != nil {
		return err
	}
	runner.publisher = publisher
	return nil
}

// PlanBuilds probes the compiler cache and decides the staged job set
func (runner *runnerImpl) PlanBuilds() (*Plan, error) {
	hitKey, err := runner.cacheStore.Exists(runner.resolver.RestoreKeys(cache.RoleCheck))
	if err != nil {
		return nil, err
	}
	if hitKey != "" {
		log.Infof("compiler cache is warm (hit on %s)", hitKey)
	} else {
		log.Infof("compiler cache is cold for pytorch %s", runner.config.PyTorchVersion)
	}
	return NewPlan(hitKey != "", runner.first, runner.rest), nil
}

// Run executes the plan: the primed build when the cache is cold, the
// parallel fan-out, then aggregation and publication. Build stages are
// best-effort so a failed or wheel-less build never stops the siblings or the
// release step.
func (runner *runnerImpl) Run() error {
	plan, err := runner.PlanBuilds()
	if err != nil {
		return err
	}
	if plan.Empty() {
		log.Warning("no python versions requested, nothing to build")
		return nil
	}

	log.Debugf("Running plan with %d stages", len(plan.Stages))
	pipeline := make([]common.Executor, 0)
	for i, stage := range plan.Stages {
		stageExecutors := make([]common.Executor, 0)
		for j, build := range stage.Builds {
			stageExecutors = append(stageExecutors, runner.newBuildExecutor(build, fmt.Sprintf("%d-%d", i, j)))
		}
		pipeline = append(pipeline, common.NewBestEffortExecutor(stageExecutors...))
	}
	pipeline = append(pipeline, runner.newPublishExecutor())

	executor := common.NewPipelineExecutor(pipeline...)
	return executor()
}

// newPublishExecutor aggregates every uploaded artifact and publishes the
// release. It always runs after the build stages; only a cancelled run
// context skips it.
func (runner *runnerImpl) newPublishExecutor() common.Executor {
	return func() error {
		if err := runner.config.Ctx.Err(); err != nil {
			return err
		}

		pythonVersions := append([]string{runner.first}, runner.rest...)
		if runner.config.Dryrun {
			log.Infof("*DRYRUN* would publish release pytorch-%s", runner.config.PyTorchVersion)
			return nil
		}

		stagingDir := filepath.Join(runner.tempDir, "release")
		wheels, err := runner.artifactStore.DownloadAll(stagingDir)
		if err != nil {
			return err
		}
		log.Infof("aggregated %d wheel(s) for release", len(wheels))

		if len(wheels) == 0 && !runner.config.AllowEmptyRelease {
			return errors.Errorf("no wheels were produced for pytorch %s; use --allow-empty-release to publish anyway", runner.config.PyTorchVersion)
		}

		rel := release.NewRelease(runner.config.PyTorchVersion, runner.config.CUDAVersion, pythonVersions, wheels)
		rel.Draft = runner.config.Draft
		return runner.publisher.Publish(runner.config.Ctx, rel)
	}
}

func (runner *runnerImpl) Close() error {
	if runner.localCache != nil {
		if err := runner.localCache.Close(); err != nil {
			log.Debugf("unable to close cache store: %v", err)
		}
	}
	if runner.tempDir == "" {
		return nil
	}
	return os.RemoveAll(runner.tempDir)
}
