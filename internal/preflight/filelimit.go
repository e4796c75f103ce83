package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the descriptor floor. SQLite, log files, and the
// connection pools for redis and the embedding service all hold descriptors
// concurrently during a fused query.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the soft RLIMIT_NOFILE limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rl.Cur, MinFileDescriptors)
	if rl.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 4096' to raise the limit"
		return result
	}

	result.Status = StatusPass
	return result
}
