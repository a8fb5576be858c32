package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnvApplier(t *testing.T) {
	env := make(map[string]string)
	applier := &buildEnvApplier{
		pytorchVersion: "2.1.0",
		pythonVersion:  "3.10",
		cudaVersion:    "11.8",
	}
	applier.applyEnvironment(env)

	assert.Equal(t, "11.8", env["CUDA_VERSION"])
	assert.Equal(t, "118", env["DESIRED_CUDA"])
	assert.Equal(t, "3.10", env["DESIRED_PYTHON"])
	assert.Equal(t, "2.1.0", env["PYTORCH_BUILD_VERSION"])
	assert.Equal(t, "2.1.0+cu118", env["OVERRIDE_PACKAGE_VERSION"])
	assert.Equal(t, "/wheelhouse", env["PYTORCH_FINAL_PACKAGE_DIR"])
	// the fixed build configuration rides along
	assert.Equal(t, "1", env["USE_CUDA"])
	assert.Equal(t, "3.5;3.7", env["TORCH_CUDA_ARCH_LIST"])
}

func TestCacheEnvApplier(t *testing.T) {
	env := make(map[string]string)
	(&cacheEnvApplier{size: "25G"}).applyEnvironment(env)

	assert.Equal(t, "/ccache", env["CCACHE_DIR"])
	assert.Equal(t, "25G", env["CCACHE_MAXSIZE"])
	assert.Equal(t, "ccache", env["CMAKE_C_COMPILER_LAUNCHER"])
	assert.Equal(t, "ccache", env["CMAKE_CXX_COMPILER_LAUNCHER"])
	assert.Equal(t, "ccache", env["CMAKE_CUDA_COMPILER_LAUNCHER"])
}

func TestCacheSize(t *testing.T) {
	// the primed build caches generously, fan-out builds need less headroom
	assert.Equal(t, primedCacheSize, cacheSize(BuildSpec{Primed: true}))
	assert.Equal(t, fanOutCacheSize, cacheSize(BuildSpec{}))
}

func TestCudaNoDot(t *testing.T) {
	assert.Equal(t, "118", cudaNoDot("11.8"))
	assert.Equal(t, "121", cudaNoDot("12.1"))
}

func TestEnvList(t *testing.T) {
	list := envList(map[string]string{"A": "1"})
	assert.Equal(t, []string{"A=1"}, list)
}
