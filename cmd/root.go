package cmd

import (
	"context"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crz068/pytorch-legacy/wheel"
)

// Execute is the entrypoint for the CLI
func Execute(ctx context.Context, version string) {
	input := new(Input)
	rootCmd := createRootCommand(ctx, input, version)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCommand(ctx context.Context, input *Input, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pytorch-legacy [pytorch version]",
		Short:        "Build PyTorch wheels for several python versions in containers sharing a compiler cache",
		Args:         cobra.MaximumNArgs(1),
		RunE:         newRunCommand(ctx, input),
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.Flags().BoolVarP(&input.listPlan, "list", "l", false, "list the build plan instead of running it")
	rootCmd.Flags().StringVarP(&input.pythonVersions, "python-versions", "p", "3.9,3.10,3.11,3.12", "comma separated python versions to build wheels for")
	rootCmd.Flags().StringVar(&input.cudaVersion, "cuda-version", "11.8", "cuda toolkit version to build against")
	rootCmd.Flags().StringVar(&input.image, "image", "pytorch/manylinux-builder:cuda11.8", "docker image to run the builds in")
	rootCmd.Flags().BoolVar(&input.forcePull, "pull", false, "pull the docker image even if it already exists locally")
	rootCmd.Flags().BoolVarP(&input.reuseContainers, "reuse", "r", false, "reuse build containers instead of removing them")
	rootCmd.Flags().StringArrayVar(&input.envFiles, "env-file", []string{}, "environment file to pass to the builds")
	rootCmd.Flags().StringArrayVarP(&input.secrets, "secret", "s", []string{}, "secret to pass to the builds (NAME or NAME=VALUE)")
	rootCmd.Flags().StringVar(&input.buildArgs, "build-args", "", "extra arguments for the build script, shell quoted")
	rootCmd.Flags().StringVar(&input.cacheServerAddr, "cache-server-addr", "", "address of a shared cache server, e.g. http://buildhost:8090")
	rootCmd.Flags().BoolVar(&input.noPublish, "no-publish", false, "stage the release locally instead of publishing to github")
	rootCmd.Flags().BoolVar(&input.allowEmptyRelease, "allow-empty-release", false, "publish the release even when no build produced a wheel")
	rootCmd.Flags().BoolVar(&input.draft, "draft", false, "create the github release as a draft")
	rootCmd.Flags().StringVar(&input.githubRepo, "github-repo", "", "owner/name of the github repository to release to")
	rootCmd.Flags().StringVar(&input.githubToken, "github-token", "", "github token for publication (default $GITHUB_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&input.workdir, "directory", "C", ".", "working directory")
	rootCmd.PersistentFlags().StringVar(&input.cacheDir, "cache-dir", "", "directory of the local compiler cache store")
	rootCmd.PersistentFlags().StringVar(&input.artifactDir, "artifact-dir", "", "directory of the wheel artifact store")
	rootCmd.PersistentFlags().StringVar(&input.configFile, "config", "", "settings file (default .pytorch-legacy.yml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&input.cacheServerSecret, "cache-server-token", "", "shared secret for the cache server")
	rootCmd.PersistentFlags().BoolVarP(&input.dryrun, "dryrun", "n", false, "log the build steps without executing them")
	rootCmd.PersistentFlags().BoolVarP(&input.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&input.jsonLogger, "json", false, "log in json format")
	rootCmd.AddCommand(newCacheServerCommand(ctx, input))
	return rootCmd
}

func newRunCommand(ctx context.Context, input *Input) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if input.verbose {
			log.SetLevel(log.DebugLevel)
		}
		if input.jsonLogger {
			log.SetFormatter(&log.JSONFormatter{})
		}

		settings, err := loadSettings(input)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			input.pytorchVersion = args[0]
		}
		input.applySettings(cmd.Flags(), settings)
		if input.pytorchVersion == "" {
			if input.pytorchVersion, err = promptForVersion(); err != nil {
				return err
			}
		}

		env, err := readEnvs(input.envFiles, settings)
		if err != nil {
			return err
		}
		buildArgs, err := shellquote.Split(input.buildArgs)
		if err != nil {
			return errors.Wrap(err, "unable to parse build args")
		}
		if input.githubToken == "" {
			input.githubToken = os.Getenv("GITHUB_TOKEN")
		}

		runner, err := wheel.NewRunner(&wheel.RunnerConfig{
			Ctx:               ctx,
			Dryrun:            input.dryrun,
			PyTorchVersion:    input.pytorchVersion,
			PythonVersions:    input.pythonVersions,
			CUDAVersion:       input.cudaVersion,
			Image:             input.image,
			WorkingDir:        input.Workdir(),
			CacheDir:          input.CacheDir(),
			ArtifactDir:       input.ArtifactDir(),
			CacheServerURL:    input.cacheServerAddr,
			CacheServerSecret: input.cacheServerSecret,
			ForcePull:         input.forcePull,
			ReuseContainers:   input.reuseContainers,
			Env:               env,
			Secrets:           newSecrets(input.secrets),
			BuildArgs:         buildArgs,
			NoPublish:         input.noPublish,
			AllowEmptyRelease: input.allowEmptyRelease,
			Draft:             input.draft,
			GitHubRepo:        input.githubRepo,
			GitHubToken:       input.githubToken,
		})
		if err != nil {
			return err
		}
		defer runner.Close()

		if input.listPlan {
			plan, err := runner.PlanBuilds()
			if err != nil {
				return err
			}
			return printPlan(plan)
		}
		return runner.Run()
	}
}
