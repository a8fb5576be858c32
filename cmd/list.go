package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/crz068/pytorch-legacy/wheel"
)

func printPlan(plan *wheel.Plan) error {
	return fprintPlan(os.Stdout, plan)
}

func fprintPlan(out io.Writer, plan *wheel.Plan) error {
	cacheState := "cold"
	if plan.CacheHit {
		cacheState = "warm"
	}
	fmt.Fprintf(out, "Compiler cache: %s\n", cacheState)

	w := tabwriter.NewWriter(out, 2, 8, 2, ' ', 0)
	fmt.Fprintln(w, "Stage\tPython\tMode")
	for i, stage := range plan.Stages {
		for _, build := range stage.Builds {
			mode := "fan-out"
			if build.Primed {
				mode = "primed"
			}
			fmt.Fprintf(w, "%d\tpy%s\t%s\n", i, build.PythonVersion, mode)
		}
	}
	return w.Flush()
}
