package wheel

import (
	"fmt"
	"strings"
)

// container mount points, fixed so the build script finds everything at known
// paths
const (
	containerWorkspace = "/workspace"
	containerPyTorch   = "/pytorch"
	containerBuilder   = "/builder"
	containerCcache    = "/ccache"
	containerWheels    = "/wheelhouse"
)

// buildScriptPath is where the build script is expected inside the container
const buildScriptPath = containerWorkspace + "/build_pytorch.py"

// ccache size budgets. The primed build pays the full compilation cost and
// caches generously; fan-out builds reuse most objects and need less headroom.
const (
	primedCacheSize = "25G"
	fanOutCacheSize = "10G"
)

type environmentApplier interface {
	applyEnvironment(map[string]string)
}

// cudaEnvironment is the fixed CUDA 11.8 build configuration handed to every
// container, matching what the manywheel build scripts expect
var cudaEnvironment = map[string]string{
	"TZ":                   "UTC",
	"TORCH_NVCC_FLAGS":     "-Xfatbin -compress-all --threads 2",
	"NCCL_ROOT_DIR":        "/usr/local/cuda",
	"TH_BINARY_BUILD":      "1",
	"USE_STATIC_CUDNN":     "0",
	"USE_STATIC_NCCL":      "1",
	"ATEN_STATIC_CUDA":     "1",
	"USE_CUDA_STATIC_LINK": "1",
	"INSTALL_TEST":         "0",
	"USE_CUPTI_SO":         "0",
	"USE_CUSPARSELT":       "1",
	"USE_CUFILE":           "0",
	"BUILD_BUNDLE_PTXAS":   "1",
	"TORCH_CUDA_ARCH_LIST": "3.5;3.7",
	"USE_CUDA":             "1",
	"USE_CUDNN":            "1",
	"USE_MKLDNN":           "1",
	"BUILD_TEST":           "0",
	"USE_FBGEMM":           "1",
	"BUILD_SPLIT_CUDA":     "ON",
	"MAX_JOBS":             "2",
	"SKIP_ALL_TESTS":       "1",
}

// cudaNoDot turns "11.8" into "118" as used in package and artifact names
func cudaNoDot(cudaVersion string) string {
	return strings.ReplaceAll(cudaVersion, ".", "")
}

type buildEnvApplier struct {
	pytorchVersion string
	pythonVersion  string
	cudaVersion    string
}

func (b *buildEnvApplier) applyEnvironment(env map[string]string) {
	for k, v := range cudaEnvironment {
		env[k] = v
	}
	nodot := cudaNoDot(b.cudaVersion)
	env["CUDA_VERSION"] = b.cudaVersion
	env["DESIRED_CUDA"] = nodot
	env["DESIRED_PYTHON"] = b.pythonVersion
	env["PYTORCH_BUILD_VERSION"] = b.pytorchVersion
	env["PYTORCH_BUILD_NUMBER"] = "1"
	env["OVERRIDE_PACKAGE_VERSION"] = fmt.Sprintf("%s+cu%s", b.pytorchVersion, nodot)
	env["PYTORCH_FINAL_PACKAGE_DIR"] = containerWheels
}

type cacheEnvApplier struct {
	size string
}

func (c *cacheEnvApplier) applyEnvironment(env map[string]string) {
	env["CCACHE_DIR"] = containerCcache
	env["CCACHE_MAXSIZE"] = c.size
	env["CMAKE_C_COMPILER_LAUNCHER"] = "ccache"
	env["CMAKE_CXX_COMPILER_LAUNCHER"] = "ccache"
	env["CMAKE_CUDA_COMPILER_LAUNCHER"] = "ccache"
}

type mapEnvApplier struct {
	env map[string]string
}

func (m *mapEnvApplier) applyEnvironment(env map[string]string) {
	for k, v := range m.env {
		env[k] = v
	}
}

// cacheSize returns the ccache budget for a build
func cacheSize(spec BuildSpec) string {
	if spec.Primed {
		return primedCacheSize
	}
	return fanOutCacheSize
}

// envList flattens an env map into docker's KEY=value form
func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, fmt.Sprintf("%s=%s", k, v))
	}
	return list
}
