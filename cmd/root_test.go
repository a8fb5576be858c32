package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crz068/pytorch-legacy/wheel"
)

func newTestRootCommand(t *testing.T, args ...string) ([]string, *Input) {
	t.Helper()
	input := new(Input)
	base := []string{
		"--directory", t.TempDir(),
		"--cache-dir", t.TempDir(),
		"--artifact-dir", t.TempDir(),
	}
	return append(base, args...), input
}

func TestRootCommandDryrun(t *testing.T) {
	args, input := newTestRootCommand(t, "-n", "--python-versions", "3.10,3.11", "2.1.0")

	cmd := createRootCommand(context.Background(), input, "test")
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "2.1.0", input.pytorchVersion)
	assert.True(t, input.dryrun)
}

func TestRootCommandList(t *testing.T) {
	args, input := newTestRootCommand(t, "--list", "-n", "2.1.0")

	cmd := createRootCommand(context.Background(), input, "test")
	cmd.SetArgs(args)

	require.NoError(t, cmd.Execute())
}

func TestRootCommandNoVersionOffTerminal(t *testing.T) {
	args, input := newTestRootCommand(t, "-n")

	cmd := createRootCommand(context.Background(), input, "test")
	cmd.SetArgs(args)
	cmd.SetErr(new(bytes.Buffer))

	// stdin is not a terminal under go test, so there is nobody to prompt
	assert.Error(t, cmd.Execute())
}

func TestFprintPlan(t *testing.T) {
	plan := wheel.NewPlan(false, "3.10", []string{"3.11", "3.12"})

	out := new(bytes.Buffer)
	require.NoError(t, fprintPlan(out, plan))

	assert.Contains(t, out.String(), "Compiler cache: cold")
	assert.Contains(t, out.String(), "primed")
	assert.Contains(t, out.String(), "py3.12")
}
