package cmd

import (
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// promptForVersion asks interactively for the pytorch version when none was
// given on the command line. Off a terminal there is nobody to ask.
func promptForVersion() (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", errors.New("please specify a pytorch version to build")
	}

	version := ""
	prompt := &survey.Input{
		Message: "PyTorch version to build:",
		Help:    "The upstream release tag, e.g. 2.1.0",
	}
	err := survey.AskOne(prompt, &version, survey.WithValidator(survey.Required))
	return version, err
}
