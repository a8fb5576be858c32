package cache

import (
	"fmt"
	"strings"
)

// Roles a compiler cache snapshot can be saved under. Together with the
// PyTorch version and the run id they form the key hierarchy that restore
// falls back through, most-specific first.
const (
	RoleCheck      = "check"
	RoleFirst      = "first"
	RoleAfterFirst = "after-first"
)

// RolePython returns the role tag for a fan-out build of one Python version.
// It nests under the after-first role so that any fan-out snapshot, from any
// run, is reachable through the after-first tier of the restore chain.
func RolePython(pythonVersion string) string {
	return fmt.Sprintf("%s-py%s", RoleAfterFirst, pythonVersion)
}

// KeyResolver computes save keys and restore fallback chains for compiler
// cache snapshots. Save keys are scoped to the current run so concurrent runs
// never clobber each other; cross-run reuse only happens through the restore
// chain.
type KeyResolver struct {
	Namespace      string
	PyTorchVersion string
	RunID          string
}

// NewKeyResolver creates a resolver for one orchestrator run
func NewKeyResolver(pytorchVersion string, runID string) *KeyResolver {
	return &KeyResolver{
		Namespace:      "ccache",
		PyTorchVersion: pytorchVersion,
		RunID:          runID,
	}
}

func (r *KeyResolver) versionPrefix() string {
	return fmt.Sprintf("%s-%s-", r.Namespace, r.PyTorchVersion)
}

// SaveKey returns the exact key to save a snapshot under for the given role.
// The key is always fresh for this run.
func (r *KeyResolver) SaveKey(role string) string {
	return fmt.Sprintf("%s%s-%s", r.versionPrefix(), role, r.RunID)
}

// RestoreKeys returns the ordered list of key prefixes to probe on restore,
// most-specific first. The chain is bounded and a miss on every entry is not
// an error: the caller proceeds from an empty cache.
func (r *KeyResolver) RestoreKeys(role string) []string {
	candidates := []string{
		fmt.Sprintf("%s%s-", r.versionPrefix(), role),
		fmt.Sprintf("%s%s-", r.versionPrefix(), RoleAfterFirst),
		fmt.Sprintf("%s%s-", r.versionPrefix(), RoleFirst),
		r.versionPrefix(),
	}

	keys := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if len(keys) > 0 && keys[len(keys)-1] == candidate {
			continue
		}
		if contains(keys, candidate) {
			continue
		}
		keys = append(keys, candidate)
	}
	return keys
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

// SanitizeKey turns a cache key into a name safe to use as a file name
func SanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
