// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all erpflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Analysis   AnalysisConfig   `yaml:"analysis"`
	Migration  MigrationConfig  `yaml:"migration"`
	Safety     SafetyConfig     `yaml:"safety"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Audit      AuditConfig      `yaml:"audit"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// AnalysisConfig controls the analysis pipeline.
type AnalysisConfig struct {
	ModelsDir           string  `yaml:"models_dir"`            // extra reference model YAMLs
	DependencyThreshold float64 `yaml:"dependency_threshold"`  // heuristic miner edge cutoff
	MaxVariants         int     `yaml:"max_variants"`          // 0 = unlimited
	EnableClustering    bool    `yaml:"enable_clustering"`
	ConfidenceLevel     float64 `yaml:"confidence_level"`
	Seed                int64   `yaml:"seed"`
}

// MigrationConfig controls ETLV runs.
type MigrationConfig struct {
	RuleSetDir   string  `yaml:"ruleset_dir"`
	MockSeed     int64   `yaml:"mock_seed"`
	ShowProgress bool    `yaml:"show_progress"`
	ErrorRate    float64 `yaml:"error_rate"` // mock gateway; negative = default
}

// SafetyConfig controls the approval workflow.
type SafetyConfig struct {
	ApprovalTTL time.Duration `yaml:"approval_ttl"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend  string `yaml:"backend"` // file | redis | s3
	Dir      string `yaml:"dir"`
	RedisURL string `yaml:"redis_url"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Path string `yaml:"path"` // empty = in-memory
}

// TelemetryConfig for optional tracing and metrics.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Metrics  bool   `yaml:"metrics"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	erpflowDir := filepath.Join(homeDir, ".erpflow")

	return &Config{
		Version: 1,
		Analysis: AnalysisConfig{
			DependencyThreshold: 0.5,
			EnableClustering:    false,
			ConfidenceLevel:     0.95,
			Seed:                1,
		},
		Migration: MigrationConfig{
			MockSeed:     1,
			ShowProgress: true,
			ErrorRate:    -1,
		},
		Safety: SafetyConfig{
			ApprovalTTL: 24 * time.Hour,
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Dir:     filepath.Join(erpflowDir, "checkpoints"),
		},
		Audit: AuditConfig{
			Path: filepath.Join(erpflowDir, "audit.jsonl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.configPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	m.ensureDirs()
	return nil
}

// configPaths returns config file paths in priority order.
func (m *Manager) configPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/erpflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".erpflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".erpflow.yaml"))
	}
	return paths
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}
	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Analysis.ModelsDir != "" {
		m.config.Analysis.ModelsDir = src.Analysis.ModelsDir
	}
	if src.Analysis.DependencyThreshold != 0 {
		m.config.Analysis.DependencyThreshold = src.Analysis.DependencyThreshold
	}
	if src.Analysis.MaxVariants != 0 {
		m.config.Analysis.MaxVariants = src.Analysis.MaxVariants
	}
	if src.Analysis.EnableClustering {
		m.config.Analysis.EnableClustering = true
	}
	if src.Analysis.ConfidenceLevel != 0 {
		m.config.Analysis.ConfidenceLevel = src.Analysis.ConfidenceLevel
	}
	if src.Analysis.Seed != 0 {
		m.config.Analysis.Seed = src.Analysis.Seed
	}

	if src.Migration.RuleSetDir != "" {
		m.config.Migration.RuleSetDir = src.Migration.RuleSetDir
	}
	if src.Migration.MockSeed != 0 {
		m.config.Migration.MockSeed = src.Migration.MockSeed
	}
	if src.Migration.ErrorRate >= 0 {
		m.config.Migration.ErrorRate = src.Migration.ErrorRate
	}

	if src.Safety.ApprovalTTL != 0 {
		m.config.Safety.ApprovalTTL = src.Safety.ApprovalTTL
	}

	if src.Checkpoint.Backend != "" {
		m.config.Checkpoint.Backend = src.Checkpoint.Backend
	}
	if src.Checkpoint.Dir != "" {
		m.config.Checkpoint.Dir = src.Checkpoint.Dir
	}
	if src.Checkpoint.RedisURL != "" {
		m.config.Checkpoint.RedisURL = src.Checkpoint.RedisURL
	}
	if src.Checkpoint.S3Bucket != "" {
		m.config.Checkpoint.S3Bucket = src.Checkpoint.S3Bucket
	}
	if src.Checkpoint.S3Region != "" {
		m.config.Checkpoint.S3Region = src.Checkpoint.S3Region
	}

	if src.Audit.Path != "" {
		m.config.Audit.Path = src.Audit.Path
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.Metrics {
		m.config.Telemetry.Metrics = true
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("ERPFLOW_MODELS_DIR"); v != "" {
		m.config.Analysis.ModelsDir = v
	}
	if v := os.Getenv("ERPFLOW_CHECKPOINT_BACKEND"); v != "" {
		m.config.Checkpoint.Backend = v
	}
	if v := os.Getenv("ERPFLOW_REDIS_URL"); v != "" {
		m.config.Checkpoint.RedisURL = v
	}
	if v := os.Getenv("ERPFLOW_S3_BUCKET"); v != "" {
		m.config.Checkpoint.S3Bucket = v
	}
	if v := os.Getenv("ERPFLOW_AUDIT_PATH"); v != "" {
		m.config.Audit.Path = v
	}
	if v := os.Getenv("ERPFLOW_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Enabled = true
		m.config.Telemetry.Endpoint = v
	}
	if v := os.Getenv("ERPFLOW_SEED"); v != "" {
		var seed int64
		if _, err := fmt.Sscanf(v, "%d", &seed); err == nil {
			m.config.Analysis.Seed = seed
		}
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Checkpoint.Dir,
		filepath.Dir(m.config.Audit.Path),
	}
	for _, dir := range dirs {
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0755)
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".erpflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
