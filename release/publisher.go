package release

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Release is one tagged publication of a build run's wheels
type Release struct {
	Tag    string
	Title  string
	Body   string
	Draft  bool
	Assets []string
}

// Publisher publishes a release somewhere wheels can be fetched from
type Publisher interface {
	Publish(ctx context.Context, release Release) error
}

// NewRelease assembles the release for a build run. The body records what was
// requested, not what succeeded: with best-effort aggregation the attached
// assets may be a subset of the requested versions.
func NewRelease(pytorchVersion string, cudaVersion string, pythonVersions []string, assets []string) Release {
	tag := fmt.Sprintf("pytorch-%s", pytorchVersion)

	var body strings.Builder
	fmt.Fprintf(&body, "PyTorch %s wheels\n\n", pytorchVersion)
	fmt.Fprintf(&body, "- PyTorch version: %s\n", pytorchVersion)
	fmt.Fprintf(&body, "- CUDA version: %s\n", cudaVersion)
	fmt.Fprintf(&body, "- Python versions: %s\n", strings.Join(pythonVersions, ", "))
	fmt.Fprintf(&body, "- Build date: %s\n", time.Now().UTC().Format("2006-01-02"))

	return Release{
		Tag:    tag,
		Title:  fmt.Sprintf("PyTorch %s (CUDA %s)", pytorchVersion, cudaVersion),
		Body:   body.String(),
		Assets: assets,
	}
}

// LocalPublisher writes the release as a directory of assets plus a manifest.
// It backs --no-publish runs and offline use.
type LocalPublisher struct {
	Dir string
}

type localManifest struct {
	Tag   string `yaml:"tag"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	Draft bool   `yaml:"draft"`
}

// Publish writes the release under Dir/<tag>/
func (p *LocalPublisher) Publish(ctx context.Context, release Release) error {
	dir := filepath.Join(p.Dir, release.Tag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create release dir for %s", release.Tag)
	}

	manifest, err := yaml.Marshal(localManifest{
		Tag:   release.Tag,
		Title: release.Title,
		Body:  release.Body,
		Draft: release.Draft,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "release.yml"), manifest, 0o644); err != nil {
		return errors.Wrapf(err, "unable to write release manifest for %s", release.Tag)
	}

	for _, asset := range release.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(asset, filepath.Join(dir, filepath.Base(asset))); err != nil {
			return errors.Wrapf(err, "unable to attach %s", asset)
		}
	}

	log.Infof("published release %s to %s (%d assets)", release.Tag, dir, len(release.Assets))
	return nil
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
