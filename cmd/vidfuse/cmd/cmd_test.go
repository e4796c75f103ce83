package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/pkg/version"
)

// isolateEnv points every state location at temp directories so commands
// never touch the real home directory or the embedding service.
func isolateEnv(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("VIDFUSE_DATA_DIR", filepath.Join(home, ".vidfuse"))
	t.Setenv("VIDFUSE_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("VIDFUSE_TELEMETRY", "false")
	return home
}

// runCommand executes the root command with args, capturing stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	out, err := runCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "vidfuse")
	assert.Contains(t, out, version.Version)
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	out, err := runCommand(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	out, err := runCommand(t, "version", "--json")

	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestConfigInit_CreatesUserConfig(t *testing.T) {
	isolateEnv(t)

	out, err := runCommand(t, "config", "init")

	require.NoError(t, err)
	assert.Contains(t, out, "Created user config")

	path := config.GetUserConfigPath()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vidfuse user configuration")
}

func TestConfigInit_ExistingWithoutForce(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "config", "init")
	require.NoError(t, err)

	out, err := runCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigShow_EffectiveConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("VIDFUSE_VISUAL_WEIGHT", "0.6")

	out, err := runCommand(t, "config", "show", "--json")

	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.InDelta(t, 0.6, cfg.Search.VisualWeight, 0.001)
	assert.Equal(t, "weighted", cfg.Search.Method)
}

func TestConfigPath(t *testing.T) {
	isolateEnv(t)

	out, err := runCommand(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath(), strings.TrimSpace(out))
}

func TestConfigBackupAndRestore(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "config", "init")
	require.NoError(t, err)

	out, err := runCommand(t, "config", "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up")

	out, err = runCommand(t, "config", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")
}

func TestConfigRestore_NoBackups(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "config", "restore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backups")
}

func TestStatusCmd_EmptyCorpus(t *testing.T) {
	isolateEnv(t)

	var status corpusStatus
	out, err := runCommand(t, "status", "--offline", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))

	assert.Equal(t, 0, status.Videos)
	assert.Equal(t, 0, status.Segments)
	assert.Equal(t, "hnsw", status.Backend)
	assert.True(t, status.EmbedderUp)
	assert.False(t, status.AnchorsReady)
}

func TestIngestThenSearch(t *testing.T) {
	isolateEnv(t)

	out, err := runCommand(t, "ingest", "file:///videos/beach-day.mp4", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "beach-day")

	// The in-process backend does not persist, so search within one
	// invocation is exercised at the engine level; here we verify the CLI
	// wiring accepts the flags and reports gracefully on an empty backend.
	out, err = runCommand(t, "search", "waves on the beach", "--offline", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "Method")
}

func TestSearchCmd_InvalidFormat(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "search", "anything", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestIngestCmd_IDWithMultipleVideos(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "ingest", "a.mp4", "b.mp4", "--id", "one", "--offline")
	require.Error(t, err)
}

func TestAnchorsInitAndStatus(t *testing.T) {
	isolateEnv(t)

	out, err := runCommand(t, "anchors", "init", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Anchors saved")

	out, err = runCommand(t, "anchors", "status", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Anchors ready")
}

func TestAnchorsInit_SecondRunSkips(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "anchors", "init", "--offline")
	require.NoError(t, err)

	out, err := runCommand(t, "anchors", "init", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")
}

func TestWeightsCmd_AfterAnchorsInit(t *testing.T) {
	isolateEnv(t)

	_, err := runCommand(t, "anchors", "init", "--offline")
	require.NoError(t, err)

	out, err := runCommand(t, "weights", "a dog barking", "--offline", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "weights")
	assert.Contains(t, out, "anchor_similarities")
}

func TestDoctorCmd_Offline(t *testing.T) {
	isolateEnv(t)

	out, err := runCommand(t, "doctor", "--offline")

	require.NoError(t, err)
	assert.Contains(t, out, "Vidfuse System Check")
	assert.Contains(t, out, "disk_space")
	assert.Contains(t, out, "embedding_service")
}

func TestDefaultVideoID(t *testing.T) {
	assert.Equal(t, "beach-day", defaultVideoID("file:///videos/beach-day.mp4"))
	assert.Equal(t, "clip", defaultVideoID("clip.mov"))
	assert.Equal(t, "keynote", defaultVideoID("s3://bucket/keynote.mp4"))
}
