// Package config loads and validates vidfuse configuration. Settings are
// layered: hardcoded defaults, then the user config file, then a project
// config file, then VIDFUSE_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete vidfuse configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Routing    RoutingConfig    `yaml:"routing" json:"routing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// SearchConfig configures fusion search behavior. Weights are configurable
// via three layers:
//  1. User config (~/.config/vidfuse/config.yaml) for personal defaults
//  2. Project config (.vidfuse.yaml) for per-corpus tuning
//  3. Env vars (VIDFUSE_VISUAL_WEIGHT etc.) with highest priority
type SearchConfig struct {
	// Method is the default fusion method: "weighted" or "rrf".
	Method string `yaml:"method" json:"method"`

	// VisualWeight, AudioWeight, and TranscriptionWeight are the static
	// fusion weights. They need not sum to 1; fusion renormalizes over the
	// modalities present per result.
	VisualWeight        float64 `yaml:"visual_weight" json:"visual_weight"`
	AudioWeight         float64 `yaml:"audio_weight" json:"audio_weight"`
	TranscriptionWeight float64 `yaml:"transcription_weight" json:"transcription_weight"`

	// RRFConstant is the reciprocal-rank smoothing parameter k.
	// Default: 60, the industry standard.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// DefaultLimit and MaxLimit bound the result count per search.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	MaxLimit     int `yaml:"max_limit" json:"max_limit"`

	// CandidateMultiplier scales per-modality retrieval depth relative to
	// the requested limit.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`

	// RetrievalTimeout bounds each per-modality backend query.
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout" json:"retrieval_timeout"`
}

// RoutingConfig configures dynamic weight routing.
type RoutingConfig struct {
	// Temperature is the softmax temperature. Higher spreads weight more
	// evenly across modalities.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// AnchorsPath is where the persisted anchor embeddings live.
	// Empty uses <storage.data_dir>/anchors.gob.
	AnchorsPath string `yaml:"anchors_path" json:"anchors_path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "service", "static", or empty for
	// auto-detection (service when reachable, static otherwise).
	Provider string `yaml:"provider" json:"provider"`

	// Model is the multi-modal embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding dimension. Zero auto-detects from the
	// provider's first response.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// ServiceHost is the embedding service endpoint (default: http://localhost:8765).
	ServiceHost string `yaml:"service_host" json:"service_host"`

	// SegmentSeconds is the target video segment length for ingest.
	SegmentSeconds float64 `yaml:"segment_seconds" json:"segment_seconds"`

	// QueryCacheSize is the LRU capacity for query embedding caching.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// BackendConfig configures the vector store backend.
type BackendConfig struct {
	// Kind selects the backend: "hnsw" (in-process) or "redis".
	Kind string `yaml:"kind" json:"kind"`

	// Topology is "multi" (one index per modality) or "unified" (one
	// tagged index).
	Topology string `yaml:"topology" json:"topology"`

	// HNSW tuning.
	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`

	// Redis connection settings, used when kind is "redis".
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	// DataDir is the root directory for local state (default: ~/.vidfuse).
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// MetadataPath is the SQLite metadata database path.
	// Empty uses <data_dir>/metadata.db.
	MetadataPath string `yaml:"metadata_path" json:"metadata_path"`
}

// ServerConfig configures the HTTP API server and logging.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig configures local query telemetry.
type TelemetryConfig struct {
	// Enabled turns local telemetry collection on (default: true).
	// Nothing ever leaves the machine.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FlushInterval is how often in-memory metrics are flushed to SQLite.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Method: "weighted",
			// Visual carries most of the signal for typical content queries.
			VisualWeight:        0.8,
			AudioWeight:         0.1,
			TranscriptionWeight: 0.05,
			// k=60 is the industry standard (Azure AI Search, OpenSearch).
			RRFConstant:         60,
			DefaultLimit:        10,
			MaxLimit:            100,
			CandidateMultiplier: 5,
			RetrievalTimeout:    5 * time.Second,
		},
		Routing: RoutingConfig{
			Temperature: 10.0,
			AnchorsPath: "",
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "", // auto-detect: service when reachable, else static
			Model:          "marengo-embed-2.7",
			Dimensions:     0, // auto-detect from embedder
			ServiceHost:    "",
			SegmentSeconds: 6.0,
			QueryCacheSize: 1000,
		},
		Backend: BackendConfig{
			Kind:         "hnsw",
			Topology:     "multi",
			HNSWM:        16,
			HNSWEfSearch: 20,
			RedisAddr:    "localhost:6379",
			RedisPrefix:  "vidfuse",
		},
		Storage: StorageConfig{
			DataDir:      defaultDataDir(),
			MetadataPath: "",
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8420,
			LogLevel: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: 60 * time.Second,
		},
	}
}

// defaultDataDir returns the default local state directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vidfuse")
	}
	return filepath.Join(home, ".vidfuse")
}

// MetadataPath resolves the metadata database path.
func (c *Config) MetadataPath() string {
	if c.Storage.MetadataPath != "" {
		return c.Storage.MetadataPath
	}
	return filepath.Join(c.Storage.DataDir, "metadata.db")
}

// AnchorsPath resolves the persisted anchors path.
func (c *Config) AnchorsPath() string {
	if c.Routing.AnchorsPath != "" {
		return c.Routing.AnchorsPath
	}
	return filepath.Join(c.Storage.DataDir, "anchors.gob")
}

// Weights returns the static weight configuration keyed by modality name.
func (c *Config) Weights() map[string]float64 {
	return map[string]float64{
		"visual":        c.Search.VisualWeight,
		"audio":         c.Search.AudioWeight,
		"transcription": c.Search.TranscriptionWeight,
	}
}

// GetUserConfigPath returns the user configuration file path, following the
// XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/vidfuse/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/vidfuse/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vidfuse", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vidfuse", "config.yaml")
	}
	return filepath.Join(home, ".config", "vidfuse", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil // no user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the given directory, applying layers in order
// of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/vidfuse/config.yaml)
//  3. Project config (.vidfuse.yaml in dir)
//  4. VIDFUSE_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the project config path in dir, or "" if none
// exists. .yaml takes precedence over .yml.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".vidfuse.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".vidfuse.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil // no project config is fine
	}
	return c.loadYAML(path)
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Search
	if other.Search.Method != "" {
		c.Search.Method = other.Search.Method
	}
	if other.Search.VisualWeight != 0 {
		c.Search.VisualWeight = other.Search.VisualWeight
	}
	if other.Search.AudioWeight != 0 {
		c.Search.AudioWeight = other.Search.AudioWeight
	}
	if other.Search.TranscriptionWeight != 0 {
		c.Search.TranscriptionWeight = other.Search.TranscriptionWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.CandidateMultiplier != 0 {
		c.Search.CandidateMultiplier = other.Search.CandidateMultiplier
	}
	if other.Search.RetrievalTimeout != 0 {
		c.Search.RetrievalTimeout = other.Search.RetrievalTimeout
	}

	// Routing
	if other.Routing.Temperature != 0 {
		c.Routing.Temperature = other.Routing.Temperature
	}
	if other.Routing.AnchorsPath != "" {
		c.Routing.AnchorsPath = other.Routing.AnchorsPath
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.ServiceHost != "" {
		c.Embeddings.ServiceHost = other.Embeddings.ServiceHost
	}
	if other.Embeddings.SegmentSeconds != 0 {
		c.Embeddings.SegmentSeconds = other.Embeddings.SegmentSeconds
	}
	if other.Embeddings.QueryCacheSize != 0 {
		c.Embeddings.QueryCacheSize = other.Embeddings.QueryCacheSize
	}

	// Backend
	if other.Backend.Kind != "" {
		c.Backend.Kind = other.Backend.Kind
	}
	if other.Backend.Topology != "" {
		c.Backend.Topology = other.Backend.Topology
	}
	if other.Backend.HNSWM != 0 {
		c.Backend.HNSWM = other.Backend.HNSWM
	}
	if other.Backend.HNSWEfSearch != 0 {
		c.Backend.HNSWEfSearch = other.Backend.HNSWEfSearch
	}
	if other.Backend.RedisAddr != "" {
		c.Backend.RedisAddr = other.Backend.RedisAddr
	}
	if other.Backend.RedisPassword != "" {
		c.Backend.RedisPassword = other.Backend.RedisPassword
	}
	if other.Backend.RedisDB != 0 {
		c.Backend.RedisDB = other.Backend.RedisDB
	}
	if other.Backend.RedisPrefix != "" {
		c.Backend.RedisPrefix = other.Backend.RedisPrefix
	}

	// Storage
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.MetadataPath != "" {
		c.Storage.MetadataPath = other.Storage.MetadataPath
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	// Telemetry. Enabled is boolean, so only merge when some telemetry
	// setting was actually present.
	if other.Telemetry.FlushInterval != 0 {
		c.Telemetry.Enabled = other.Telemetry.Enabled
		c.Telemetry.FlushInterval = other.Telemetry.FlushInterval
	}
}

// applyEnvOverrides applies VIDFUSE_* environment variable overrides. Env
// vars support explicit zero values, unlike YAML merge.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VIDFUSE_VISUAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.VisualWeight = w
		}
	}
	if v := os.Getenv("VIDFUSE_AUDIO_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.AudioWeight = w
		}
	}
	if v := os.Getenv("VIDFUSE_TRANSCRIPTION_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.TranscriptionWeight = w
		}
	}
	if v := os.Getenv("VIDFUSE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("VIDFUSE_FUSION_METHOD"); v != "" {
		c.Search.Method = v
	}
	if v := os.Getenv("VIDFUSE_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && t > 0 {
			c.Routing.Temperature = t
		}
	}
	if v := os.Getenv("VIDFUSE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VIDFUSE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VIDFUSE_SERVICE_HOST"); v != "" {
		c.Embeddings.ServiceHost = v
	}
	if v := os.Getenv("VIDFUSE_BACKEND"); v != "" {
		c.Backend.Kind = v
	}
	if v := os.Getenv("VIDFUSE_REDIS_ADDR"); v != "" {
		c.Backend.RedisAddr = v
	}
	if v := os.Getenv("VIDFUSE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("VIDFUSE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("VIDFUSE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("VIDFUSE_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for name, w := range c.Weights() {
		if w < 0 {
			return fmt.Errorf("search.%s_weight must be non-negative, got %f", name, w)
		}
	}
	weightSum := c.Search.VisualWeight + c.Search.AudioWeight + c.Search.TranscriptionWeight
	if math.Abs(weightSum) < 1e-9 {
		return fmt.Errorf("search weights must not all be zero")
	}

	switch strings.ToLower(c.Search.Method) {
	case "weighted", "rrf":
	default:
		return fmt.Errorf("search.method must be 'weighted' or 'rrf', got %s", c.Search.Method)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be >= search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	if c.Routing.Temperature <= 0 {
		return fmt.Errorf("routing.temperature must be positive, got %f", c.Routing.Temperature)
	}

	if c.Embeddings.Provider != "" {
		switch strings.ToLower(c.Embeddings.Provider) {
		case "service", "static", "auto":
		default:
			return fmt.Errorf("embeddings.provider must be 'service', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.SegmentSeconds < 0 {
		return fmt.Errorf("embeddings.segment_seconds must be non-negative, got %f", c.Embeddings.SegmentSeconds)
	}

	switch strings.ToLower(c.Backend.Kind) {
	case "hnsw", "redis":
	default:
		return fmt.Errorf("backend.kind must be 'hnsw' or 'redis', got %s", c.Backend.Kind)
	}
	switch strings.ToLower(c.Backend.Topology) {
	case "multi", "unified":
	default:
		return fmt.Errorf("backend.topology must be 'multi' or 'unified', got %s", c.Backend.Topology)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds defaults for fields missing from an older config,
// preserving existing values. Returns the names of the added fields.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.Method == "" {
		c.Search.Method = defaults.Search.Method
		added = append(added, "search.method")
	}
	if c.Search.RRFConstant == 0 {
		c.Search.RRFConstant = defaults.Search.RRFConstant
		added = append(added, "search.rrf_constant")
	}
	if c.Search.CandidateMultiplier == 0 {
		c.Search.CandidateMultiplier = defaults.Search.CandidateMultiplier
		added = append(added, "search.candidate_multiplier")
	}
	if c.Routing.Temperature == 0 {
		c.Routing.Temperature = defaults.Routing.Temperature
		added = append(added, "routing.temperature")
	}
	if c.Embeddings.QueryCacheSize == 0 {
		c.Embeddings.QueryCacheSize = defaults.Embeddings.QueryCacheSize
		added = append(added, "embeddings.query_cache_size")
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaults.Storage.DataDir
		added = append(added, "storage.data_dir")
	}
	if c.Telemetry.FlushInterval == 0 {
		c.Telemetry.FlushInterval = defaults.Telemetry.FlushInterval
		added = append(added, "telemetry.flush_interval")
	}

	return added
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
