package wheel

import (
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

const (
	pytorchRepoURL = "https://github.com/pytorch/pytorch"
	builderRepoURL = "https://github.com/pytorch/builder"
)

// sourceCheckout is one upstream repository to clone shallowly and mount into
// the build container
type sourceCheckout struct {
	URL   string
	Ref   string
	Dir   string
	Mount string
}

// sourcesFor resolves the checkouts a pytorch version needs. PyTorch carries
// its own manywheel scripts under .ci/ from 2.6 on; older versions get them
// from the pytorch/builder repo's matching release branch.
func sourcesFor(pytorchVersion string, srcDir string) ([]sourceCheckout, error) {
	v, err := semver.NewVersion(pytorchVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pytorch version '%s'", pytorchVersion)
	}

	checkouts := []sourceCheckout{{
		URL:   pytorchRepoURL,
		Ref:   fmt.Sprintf("v%s", pytorchVersion),
		Dir:   filepath.Join(srcDir, "pytorch"),
		Mount: containerPyTorch,
	}}

	if v.LessThan(semver.MustParse("2.6.0")) {
		checkouts = append(checkouts, sourceCheckout{
			URL:   builderRepoURL,
			Ref:   fmt.Sprintf("release/%d.%d", v.Major(), v.Minor()),
			Dir:   filepath.Join(srcDir, "builder"),
			Mount: containerBuilder,
		})
	}
	return checkouts, nil
}
