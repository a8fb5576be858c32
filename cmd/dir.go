package cmd

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

func defaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "pytorch-legacy", "ccache")
}

func defaultArtifactDir() string {
	return filepath.Join(xdg.CacheHome, "pytorch-legacy", "artifacts")
}
