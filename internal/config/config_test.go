package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateUserConfig points XDG_CONFIG_HOME at a temp dir so tests never see
// the developer's real user config.
func isolateUserConfig(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	return tmp
}

func writeUserConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(GetUserConfigDir(), 0o755))
	require.NoError(t, os.WriteFile(GetUserConfigPath(), []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	// Search defaults. Visual carries most of the weight by default.
	assert.Equal(t, "weighted", cfg.Search.Method)
	assert.Equal(t, 0.8, cfg.Search.VisualWeight)
	assert.Equal(t, 0.1, cfg.Search.AudioWeight)
	assert.Equal(t, 0.05, cfg.Search.TranscriptionWeight)
	assert.Equal(t, 60, cfg.Search.RRFConstant) // Industry standard k=60
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 5, cfg.Search.CandidateMultiplier)
	assert.Equal(t, 5*time.Second, cfg.Search.RetrievalTimeout)

	// Routing defaults
	assert.Equal(t, 10.0, cfg.Routing.Temperature)
	assert.Empty(t, cfg.Routing.AnchorsPath)

	// Embeddings defaults
	assert.Equal(t, "", cfg.Embeddings.Provider) // Empty triggers auto-detection
	assert.Equal(t, "marengo-embed-2.7", cfg.Embeddings.Model)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions) // Auto-detect from embedder
	assert.Equal(t, 6.0, cfg.Embeddings.SegmentSeconds)
	assert.Equal(t, 1000, cfg.Embeddings.QueryCacheSize)

	// Backend defaults
	assert.Equal(t, "hnsw", cfg.Backend.Kind)
	assert.Equal(t, "multi", cfg.Backend.Topology)
	assert.Equal(t, "localhost:6379", cfg.Backend.RedisAddr)

	// Server defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	// Telemetry defaults
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Telemetry.FlushInterval)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, NewConfig().Version)
}

func TestNewConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, NewConfig().Validate())
}

func TestConfig_PathResolution(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.DataDir = "/data/vidfuse"

	assert.Equal(t, filepath.Join("/data/vidfuse", "metadata.db"), cfg.MetadataPath())
	assert.Equal(t, filepath.Join("/data/vidfuse", "anchors.gob"), cfg.AnchorsPath())

	// Explicit paths win over the data dir
	cfg.Storage.MetadataPath = "/elsewhere/meta.db"
	cfg.Routing.AnchorsPath = "/elsewhere/anchors.gob"
	assert.Equal(t, "/elsewhere/meta.db", cfg.MetadataPath())
	assert.Equal(t, "/elsewhere/anchors.gob", cfg.AnchorsPath())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 0.8, cfg.Search.VisualWeight)
	assert.Equal(t, "hnsw", cfg.Backend.Kind)
}

func TestLoad_ProjectFile_OverridesDefaults(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	configContent := `
version: 1
search:
  method: rrf
  visual_weight: 0.5
  audio_weight: 0.3
  transcription_weight: 0.2
  rrf_constant: 100
  default_limit: 25
routing:
  temperature: 5.0
backend:
  kind: redis
  redis_addr: 10.0.0.5:6379
`
	err := os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "rrf", cfg.Search.Method)
	assert.Equal(t, 0.5, cfg.Search.VisualWeight)
	assert.Equal(t, 0.3, cfg.Search.AudioWeight)
	assert.Equal(t, 0.2, cfg.Search.TranscriptionWeight)
	assert.Equal(t, 100, cfg.Search.RRFConstant)
	assert.Equal(t, 25, cfg.Search.DefaultLimit)
	assert.Equal(t, 5.0, cfg.Routing.Temperature)
	assert.Equal(t, "redis", cfg.Backend.Kind)
	assert.Equal(t, "10.0.0.5:6379", cfg.Backend.RedisAddr)

	// Untouched fields keep their defaults
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, "marengo-embed-2.7", cfg.Embeddings.Model)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yml"),
		[]byte("search:\n  rrf_constant: 42\n"), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.RRFConstant)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"),
		[]byte("search:\n  rrf_constant: 11\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yml"),
		[]byte("search:\n  rrf_constant: 22\n"), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Search.RRFConstant)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"),
		[]byte("search: [unclosed\n"), 0o644))

	_, err := Load(tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidValues_FailValidation(t *testing.T) {
	isolateUserConfig(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad method", "search:\n  method: stacking\n"},
		{"negative weight", "search:\n  visual_weight: -0.5\n"},
		{"negative temperature", "routing:\n  temperature: -1\n"},
		{"bad backend", "backend:\n  kind: faiss\n"},
		{"bad topology", "backend:\n  topology: sharded\n"},
		{"bad log level", "server:\n  log_level: verbose\n"},
		{"bad port", "server:\n  port: 99999\n"},
		{"max below default", "search:\n  default_limit: 50\n  max_limit: 20\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"),
				[]byte(tt.content), 0o644))

			_, err := Load(tmpDir)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestValidate_AllZeroWeights_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VisualWeight = 0
	cfg.Search.AudioWeight = 0
	cfg.Search.TranscriptionWeight = 0

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero")
}

func TestLoad_EnvVarOverridesWeights(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	t.Setenv("VIDFUSE_VISUAL_WEIGHT", "0.4")
	t.Setenv("VIDFUSE_AUDIO_WEIGHT", "0.4")
	t.Setenv("VIDFUSE_TRANSCRIPTION_WEIGHT", "0.2")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Search.VisualWeight)
	assert.Equal(t, 0.4, cfg.Search.AudioWeight)
	assert.Equal(t, 0.2, cfg.Search.TranscriptionWeight)
}

func TestLoad_EnvVarOverridesMethodAndBackend(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	t.Setenv("VIDFUSE_FUSION_METHOD", "rrf")
	t.Setenv("VIDFUSE_BACKEND", "redis")
	t.Setenv("VIDFUSE_REDIS_ADDR", "cache.internal:6380")
	t.Setenv("VIDFUSE_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "rrf", cfg.Search.Method)
	assert.Equal(t, "redis", cfg.Backend.Kind)
	assert.Equal(t, "cache.internal:6380", cfg.Backend.RedisAddr)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_EnvVarOverridesProjectConfig(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"),
		[]byte("search:\n  rrf_constant: 30\n"), 0o644))
	t.Setenv("VIDFUSE_RRF_CONSTANT", "90")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Search.RRFConstant)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	t.Setenv("VIDFUSE_EMBEDDINGS_MODEL", "")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "marengo-embed-2.7", cfg.Embeddings.Model)
}

func TestLoad_EnvVarInvalidNumber_Ignored(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	t.Setenv("VIDFUSE_RRF_CONSTANT", "sixty")
	t.Setenv("VIDFUSE_PORT", "-1")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 8420, cfg.Server.Port)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	path := GetUserConfigPath()

	assert.Equal(t, filepath.Join(tmp, "vidfuse", "config.yaml"), path)
}

func TestGetUserConfigPath_DefaultsToHomeConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := GetUserConfigPath()

	assert.Equal(t, filepath.Join(home, ".config", "vidfuse", "config.yaml"), path)
}

func TestUserConfigExists(t *testing.T) {
	isolateUserConfig(t)
	assert.False(t, UserConfigExists())

	writeUserConfig(t, "version: 1\n")
	assert.True(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	isolateUserConfig(t)
	writeUserConfig(t, "search:\n  visual_weight: 0.6\n  audio_weight: 0.25\n  transcription_weight: 0.15\n")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Search.VisualWeight)
	assert.Equal(t, 0.25, cfg.Search.AudioWeight)
	assert.Equal(t, 0.15, cfg.Search.TranscriptionWeight)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	isolateUserConfig(t)
	writeUserConfig(t, "search:\n  rrf_constant: 40\n  default_limit: 15\n")

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".vidfuse.yaml"),
		[]byte("search:\n  rrf_constant: 80\n"), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Search.RRFConstant) // project wins
	assert.Equal(t, 15, cfg.Search.DefaultLimit) // user setting preserved
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	isolateUserConfig(t)
	writeUserConfig(t, "search: [broken\n")

	_, err := Load(t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

func TestMergeWith_ZeroValuesNotMerged(t *testing.T) {
	cfg := NewConfig()
	cfg.mergeWith(&Config{})

	assert.Equal(t, 0.8, cfg.Search.VisualWeight)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "hnsw", cfg.Backend.Kind)
}

func TestWeights_KeyedByModality(t *testing.T) {
	cfg := NewConfig()
	w := cfg.Weights()

	assert.Equal(t, 0.8, w["visual"])
	assert.Equal(t, 0.1, w["audio"])
	assert.Equal(t, 0.05, w["transcription"])
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := NewConfig()
	cfg.Search.Method = "rrf"
	cfg.Backend.Kind = "redis"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "rrf", loaded.Search.Method)
	assert.Equal(t, "redis", loaded.Backend.Kind)
}

func TestMergeNewDefaults_FillsMissingFields(t *testing.T) {
	cfg := &Config{} // simulates an old config with new fields absent
	cfg.Search.VisualWeight = 0.7

	added := cfg.MergeNewDefaults()

	assert.Contains(t, added, "search.method")
	assert.Contains(t, added, "routing.temperature")
	assert.Equal(t, "weighted", cfg.Search.Method)
	assert.Equal(t, 10.0, cfg.Routing.Temperature)
	assert.Equal(t, 0.7, cfg.Search.VisualWeight) // existing value untouched
}

func TestMergeNewDefaults_NoChangesWhenComplete(t *testing.T) {
	cfg := NewConfig()
	assert.Empty(t, cfg.MergeNewDefaults())
}
