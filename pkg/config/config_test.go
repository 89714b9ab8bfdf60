package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults verifies the shipped configuration values.
func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Version != 1 {
		t.Errorf("version = %d", cfg.Version)
	}
	if cfg.Analysis.DependencyThreshold != 0.5 {
		t.Errorf("dependency threshold = %v", cfg.Analysis.DependencyThreshold)
	}
	if cfg.Analysis.ConfidenceLevel != 0.95 {
		t.Errorf("confidence level = %v", cfg.Analysis.ConfidenceLevel)
	}
	if cfg.Analysis.Seed != 1 {
		t.Errorf("seed = %d", cfg.Analysis.Seed)
	}
	if cfg.Checkpoint.Backend != "file" {
		t.Errorf("checkpoint backend = %q", cfg.Checkpoint.Backend)
	}
	if cfg.Safety.ApprovalTTL != 24*time.Hour {
		t.Errorf("approval ttl = %v", cfg.Safety.ApprovalTTL)
	}
	if cfg.Migration.ErrorRate != -1 {
		t.Errorf("error rate = %v", cfg.Migration.ErrorRate)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry must be off by default")
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("otlp endpoint = %q", cfg.Telemetry.Endpoint)
	}
}

// TestMergeOverridesNonZero verifies partial configs only replace what they
// set.
func TestMergeOverridesNonZero(t *testing.T) {
	m := NewManager()

	m.merge(&Config{
		Analysis:   AnalysisConfig{DependencyThreshold: 0.7, EnableClustering: true},
		Checkpoint: CheckpointConfig{Backend: "redis", RedisURL: "redis://localhost:6379"},
		Migration:  MigrationConfig{ErrorRate: -1},
	})

	cfg := m.Get()
	if cfg.Analysis.DependencyThreshold != 0.7 {
		t.Errorf("threshold = %v", cfg.Analysis.DependencyThreshold)
	}
	if !cfg.Analysis.EnableClustering {
		t.Error("clustering not enabled")
	}
	if cfg.Checkpoint.Backend != "redis" || cfg.Checkpoint.RedisURL == "" {
		t.Errorf("checkpoint = %+v", cfg.Checkpoint)
	}

	// Untouched sections keep their defaults.
	if cfg.Analysis.ConfidenceLevel != 0.95 {
		t.Errorf("confidence level clobbered: %v", cfg.Analysis.ConfidenceLevel)
	}
	if cfg.Safety.ApprovalTTL != 24*time.Hour {
		t.Errorf("approval ttl clobbered: %v", cfg.Safety.ApprovalTTL)
	}

	// A negative error rate means "keep the default".
	if cfg.Migration.ErrorRate != -1 {
		t.Errorf("error rate = %v", cfg.Migration.ErrorRate)
	}
	m.merge(&Config{Migration: MigrationConfig{ErrorRate: 0}})
	if m.Get().Migration.ErrorRate != 0 {
		t.Errorf("explicit zero rate not applied: %v", m.Get().Migration.ErrorRate)
	}
}

// TestLoadFileMergesYAML verifies a project file overlays the defaults.
func TestLoadFileMergesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".erpflow.yaml")
	data := `
analysis:
  max_variants: 25
  seed: 42
audit:
  path: /tmp/erpflow-test-audit.jsonl
safety:
  approval_ttl: 2h
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager()
	if err := m.loadFile(path); err != nil {
		t.Fatalf("loadfile: %v", err)
	}

	cfg := m.Get()
	if cfg.Analysis.MaxVariants != 25 || cfg.Analysis.Seed != 42 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Audit.Path != "/tmp/erpflow-test-audit.jsonl" {
		t.Errorf("audit path = %q", cfg.Audit.Path)
	}
	if cfg.Safety.ApprovalTTL != 2*time.Hour {
		t.Errorf("approval ttl = %v", cfg.Safety.ApprovalTTL)
	}
	if cfg.Analysis.DependencyThreshold != 0.5 {
		t.Errorf("default lost: %v", cfg.Analysis.DependencyThreshold)
	}
}

// TestLoadFileRejectsBadYAML verifies parse errors are not swallowed.
func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not yaml"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := NewManager().loadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

// TestEnvOverrides verifies environment variables win over file values.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("ERPFLOW_CHECKPOINT_BACKEND", "s3")
	t.Setenv("ERPFLOW_S3_BUCKET", "erpflow-checkpoints")
	t.Setenv("ERPFLOW_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("ERPFLOW_SEED", "7")

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Checkpoint.Backend != "s3" || cfg.Checkpoint.S3Bucket != "erpflow-checkpoints" {
		t.Errorf("checkpoint = %+v", cfg.Checkpoint)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Analysis.Seed != 7 {
		t.Errorf("seed = %d", cfg.Analysis.Seed)
	}
}

// TestEnvIgnoresBadSeed verifies an unparseable seed keeps the default.
func TestEnvIgnoresBadSeed(t *testing.T) {
	t.Setenv("ERPFLOW_SEED", "lucky")

	m := NewManager()
	m.loadEnv()
	if m.Get().Analysis.Seed != 1 {
		t.Errorf("seed = %d", m.Get().Analysis.Seed)
	}
}
