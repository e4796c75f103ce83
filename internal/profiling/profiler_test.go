package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_CPUProfileRoundTrip(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "cpu.prof")

	stop, err := p.StartCPU(path)
	require.NoError(t, err)

	// Burn a little CPU so the profile has samples to flush.
	x := 0
	for i := 0; i < 1_000_000; i++ {
		x += i
	}
	_ = x
	stop()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Nil(t, p.cpuFile, "stop must release the file handle")
}

func TestProfiler_StartCPU_BadPath(t *testing.T) {
	p := NewProfiler()

	_, err := p.StartCPU(filepath.Join(t.TempDir(), "missing", "cpu.prof"))
	assert.Error(t, err)
}

func TestProfiler_TraceRoundTrip(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "trace.out")

	stop, err := p.StartTrace(path)
	require.NoError(t, err)
	stop()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestProfiler_WriteHeap(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "heap.prof")

	require.NoError(t, p.WriteHeap(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestProfiler_WriteHeap_BadPath(t *testing.T) {
	p := NewProfiler()

	err := p.WriteHeap(filepath.Join(t.TempDir(), "missing", "heap.prof"))
	assert.Error(t, err)
}
