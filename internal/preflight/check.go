package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckStatus is the outcome of a single system check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	}
	return "UNKNOWN"
}

// CheckResult is one check's outcome. Required marks checks whose failure
// blocks startup; optional checks degrade to static embeddings instead.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the system checks behind `vidfuse doctor` and MCP startup.
type Checker struct {
	offline bool
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips network-dependent checks.
func WithOffline(offline bool) Option {
	return func(c *Checker) { c.offline = offline }
}

// WithVerbose prints per-check detail lines.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput redirects check output, io.Discard for silent startup runs.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the data directory and the configured
// embedding service host.
func (c *Checker) RunAll(ctx context.Context, dataDir, serviceHost string) []CheckResult {
	return []CheckResult{
		c.CheckDiskSpace(dataDir),
		c.CheckMemory(),
		c.CheckWritePermissions(dataDir),
		c.CheckFileDescriptors(),
		c.CheckEmbeddingService(ctx, serviceHost),
	}
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus collapses the results to failed, ready_with_warnings, or ready.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	status := "ready"
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			status = "ready_with_warnings"
		}
	}
	return status
}

// PrintResults writes a human-readable report to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	w := c.output
	_, _ = fmt.Fprintln(w, "Vidfuse System Check")
	_, _ = fmt.Fprintln(w, "====================")
	_, _ = fmt.Fprintln(w)

	var warnings, failures []string
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", r.Details)
		}
		switch {
		case r.IsCritical():
			failures = append(failures, r.Name+": "+r.Message)
		case r.Status == StatusWarn:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	if len(failures) > 0 {
		_, _ = fmt.Fprintf(w, "\n%d error(s):\n", len(failures))
		for _, e := range failures {
			_, _ = fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if len(warnings) > 0 {
		_, _ = fmt.Fprintf(w, "\n%d warning(s):\n", len(warnings))
		for _, m := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", m)
		}
	}
}

// CheckWritePermissions verifies the data directory accepts writes by creating
// and removing a probe file.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	probe := filepath.Join(path, ".vidfuse-preflight-test")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
