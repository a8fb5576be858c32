package cmd

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Input contains the input for the root command
type Input struct {
	pytorchVersion    string
	pythonVersions    string
	cudaVersion       string
	image             string
	workdir           string
	cacheDir          string
	artifactDir       string
	configFile        string
	envFiles          []string
	secrets           []string
	buildArgs         string
	cacheServerAddr   string
	cacheServerSecret string
	githubRepo        string
	githubToken       string
	reuseContainers   bool
	forcePull         bool
	dryrun            bool
	verbose           bool
	jsonLogger        bool
	listPlan          bool
	noPublish         bool
	allowEmptyRelease bool
	draft             bool
}

func (i *Input) resolve(path string) string {
	basedir, err := filepath.Abs(i.workdir)
	if err != nil {
		log.Fatal(err)
	}
	if path == "" {
		return path
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(basedir, path)
	}
	return path
}

// Workdir returns path to workdir
func (i *Input) Workdir() string {
	return i.resolve(".")
}

// CacheDir returns the path to the compiler cache store
func (i *Input) CacheDir() string {
	if i.cacheDir == "" {
		return defaultCacheDir()
	}
	return i.resolve(i.cacheDir)
}

// ArtifactDir returns the path to the artifact store
func (i *Input) ArtifactDir() string {
	if i.artifactDir == "" {
		return defaultArtifactDir()
	}
	return i.resolve(i.artifactDir)
}

// ConfigFile returns the path to the settings file
func (i *Input) ConfigFile() string {
	return i.resolve(i.configFile)
}
