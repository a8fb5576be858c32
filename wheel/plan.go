package wheel

import (
	"fmt"
	"strings"
)

// SplitVersions partitions a comma-separated version list into the first
// entry and the remainder. Order is preserved and duplicates are kept: there
// is no requirement to dedupe, and a single entry simply yields an empty
// remainder.
func SplitVersions(csv string) (string, []string) {
	versions := make([]string, 0)
	for _, v := range strings.Split(csv, ",") {
		if v = strings.TrimSpace(v); v != "" {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0], versions[1:]
}

// BuildSpec is one containerized build of one python version
type BuildSpec struct {
	PythonVersion string
	Primed        bool // first build on a cold cache, seeds the compiler cache
}

func (b BuildSpec) String() string {
	if b.Primed {
		return fmt.Sprintf("py%s (primed)", b.PythonVersion)
	}
	return fmt.Sprintf("py%s", b.PythonVersion)
}

// Stage is a set of builds that run in parallel
type Stage struct {
	Builds []BuildSpec
}

// Plan is the ordered set of stages for one run
type Plan struct {
	CacheHit bool
	Stages   []Stage
}

// NewPlan decides the job set from the cache probe result. With a warm cache
// there is nothing to seed, so every requested version builds in one parallel
// stage. With a cold cache the first version builds alone to prime the cache
// and the remainder fans out afterwards; an empty remainder just means the
// fan-out stage has nothing to do.
func NewPlan(cacheHit bool, first string, rest []string) *Plan {
	plan := &Plan{CacheHit: cacheHit}
	if first == "" {
		return plan
	}

	if cacheHit {
		stage := Stage{}
		for _, v := range append([]string{first}, rest...) {
			stage.Builds = append(stage.Builds, BuildSpec{PythonVersion: v})
		}
		plan.Stages = append(plan.Stages, stage)
		return plan
	}

	plan.Stages = append(plan.Stages, Stage{Builds: []BuildSpec{{PythonVersion: first, Primed: true}}})
	if len(rest) > 0 {
		stage := Stage{}
		for _, v := range rest {
			stage.Builds = append(stage.Builds, BuildSpec{PythonVersion: v})
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan
}

// Builds returns every build in the plan in stage order
func (p *Plan) Builds() []BuildSpec {
	builds := make([]BuildSpec, 0)
	for _, stage := range p.Stages {
		builds = append(builds, stage.Builds...)
	}
	return builds
}

// Empty reports whether the plan has nothing to do
func (p *Plan) Empty() bool {
	return len(p.Stages) == 0
}
