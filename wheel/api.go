package wheel

import (
	"context"
	"io"
)

// Runner provides capabilities to build and publish PyTorch wheels
type Runner interface {
	BuildPlanner
	BuildRunner
	io.Closer
}

// BuildPlanner resolves the staged build plan for the run
type BuildPlanner interface {
	PlanBuilds() (*Plan, error)
}

// BuildRunner runs the whole build-and-publish pipeline
type BuildRunner interface {
	Run() error
}

// RunnerConfig contains the config for a new runner
type RunnerConfig struct {
	Ctx               context.Context   // context to use for the run
	Dryrun            bool              // don't start any containers or publish anything
	PyTorchVersion    string            // version of pytorch to build, e.g. 2.1.0
	PythonVersions    string            // comma-separated python versions, e.g. "3.9,3.10"
	CUDAVersion       string            // fixed cuda toolchain version, e.g. 11.8
	Image             string            // build container image
	WorkingDir        string            // base directory for sources and job output
	CacheDir          string            // local compiler-cache store location
	ArtifactDir       string            // local artifact store location
	CacheServerURL    string            // remote cache server, empty for the local store
	CacheServerSecret string            // shared secret for the cache server
	ForcePull         bool              // force pulling the image even if present
	ReuseContainers   bool              // keep containers around after the run
	Env               map[string]string // extra env passed into build containers
	Secrets           map[string]string // secret env passed into build containers
	BuildArgs         []string          // extra args appended to the build script invocation
	NoPublish         bool              // stage the release locally instead of publishing
	AllowEmptyRelease bool              // publish even when no wheel was produced
	Draft             bool              // mark the published release as a draft
	GitHubRepo        string            // owner/name to publish the release to
	GitHubToken       string            // token used for publication
}
