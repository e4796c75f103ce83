package preflight

import (
	"fmt"
	"syscall"
)

// MinDiskSpaceBytes is the free space floor (200 MB). Vector snapshots plus
// the SQLite metadata store grow with the corpus, and a full disk corrupts
// both on the next write.
const MinDiskSpaceBytes = 200 * 1024 * 1024

// CheckDiskSpace verifies free space on the filesystem holding the data dir.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)", formatBytes(free), formatBytes(MinDiskSpaceBytes))

	if free < MinDiskSpaceBytes {
		result.Status = StatusFail
		result.Details = "Free up space on the volume holding the vidfuse data directory"
		return result
	}

	result.Status = StatusPass
	return result
}

func formatBytes(n uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)

	switch {
	case n >= tb:
		return fmt.Sprintf("%.1f TB", float64(n)/tb)
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	}
	return fmt.Sprintf("%d bytes", n)
}
