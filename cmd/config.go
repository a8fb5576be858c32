package cmd

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const defaultConfigFileName = ".pytorch-legacy.yml"

// Settings is the file form of the command line flags. A flag given
// explicitly on the command line always wins over the file.
type Settings struct {
	PyTorchVersion  string            `yaml:"pytorchVersion,omitempty"`
	PythonVersions  string            `yaml:"pythonVersions,omitempty"`
	CUDAVersion     string            `yaml:"cudaVersion,omitempty"`
	Image           string            `yaml:"image,omitempty"`
	CacheDir        string            `yaml:"cacheDir,omitempty"`
	ArtifactDir     string            `yaml:"artifactDir,omitempty"`
	CacheServerAddr string            `yaml:"cacheServerAddr,omitempty"`
	BuildArgs       string            `yaml:"buildArgs,omitempty"`
	GithubRepo      string            `yaml:"githubRepo,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
}

// loadSettings reads the settings file. A missing default file is fine, a
// missing file named with --config is not.
func loadSettings(input *Input) (*Settings, error) {
	path := input.ConfigFile()
	if input.configFile == "" {
		path = filepath.Join(input.Workdir(), defaultConfigFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && input.configFile == "" {
			return &Settings{}, nil
		}
		return nil, err
	}

	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	return settings, nil
}

func (i *Input) applySettings(flags *pflag.FlagSet, settings *Settings) {
	apply := func(name string, target *string, value string) {
		if value != "" && !flags.Changed(name) {
			*target = value
		}
	}
	if i.pytorchVersion == "" {
		i.pytorchVersion = settings.PyTorchVersion
	}
	apply("python-versions", &i.pythonVersions, settings.PythonVersions)
	apply("cuda-version", &i.cudaVersion, settings.CUDAVersion)
	apply("image", &i.image, settings.Image)
	apply("cache-dir", &i.cacheDir, settings.CacheDir)
	apply("artifact-dir", &i.artifactDir, settings.ArtifactDir)
	apply("cache-server-addr", &i.cacheServerAddr, settings.CacheServerAddr)
	apply("build-args", &i.buildArgs, settings.BuildArgs)
	apply("github-repo", &i.githubRepo, settings.GithubRepo)
}

// readEnvs layers the env files over the settings file's env block, later
// files overriding earlier ones
func readEnvs(envFiles []string, settings *Settings) (map[string]string, error) {
	env := make(map[string]string)
	if err := mergo.Merge(&env, settings.Env, mergo.WithOverride); err != nil {
		return nil, err
	}
	for _, envFile := range envFiles {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read %s", envFile)
		}
		if err := mergo.Merge(&env, fileEnv, mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	return env, nil
}
