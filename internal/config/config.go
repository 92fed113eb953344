// Package config provides configuration management for the identity runtime
// governance engine. Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (IDENTITY_*)
// 3. Project config (.identityctl/config.yaml in cwd)
// 4. Home config (~/.identityctl/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration. It is always passed explicitly
// through constructors; there is no module-level singleton (design note §9 of
// the governance spec: catalog defaults are input, not global state).
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// Verbose enables verbose diagnostic logging via internal/diag.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Catalog is the path to the identities catalog YAML document.
	Catalog string `yaml:"catalog" json:"catalog"`

	// PackRoot is the directory under which identity packs live when a
	// catalog entry omits pack_path (legacy fallback: PackRoot/<id>).
	PackRoot string `yaml:"pack_root" json:"pack_root"`

	// RuntimeRoot is the directory for reports, logs, metrics, backups.
	RuntimeRoot string `yaml:"runtime_root" json:"runtime_root"`

	// RequireCIBinding forces the CI enforcement gate to check that
	// execution_context matches the live CI environment.
	RequireCIBinding bool `yaml:"require_ci_binding" json:"require_ci_binding"`

	// InstallProvenanceWindowHours bounds the install-provenance operation
	// chain lookback window (SPEC_FULL.md §12 item 4; default 24).
	InstallProvenanceWindowHours int `yaml:"install_provenance_window_hours" json:"install_provenance_window_hours"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput                       = "table"
	defaultCatalog                      = "identity/catalog/identities.yaml"
	defaultPackRoot                     = "identity/packs"
	defaultRuntimeRoot                  = "identity/runtime"
	defaultInstallProvenanceWindowHours = 24
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:                       defaultOutput,
		Verbose:                      false,
		Catalog:                      defaultCatalog,
		PackRoot:                     defaultPackRoot,
		RuntimeRoot:                  defaultRuntimeRoot,
		RequireCIBinding:             false,
		InstallProvenanceWindowHours: defaultInstallProvenanceWindowHours,
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	if homeConfig, _ := loadFromPath(homeConfigPath()); homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	if projectConfig, _ := loadFromPath(projectConfigPath()); projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".identityctl", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("IDENTITY_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".identityctl", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("IDENTITY_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("IDENTITY_CATALOG"); v != "" {
		cfg.Catalog = v
	}
	if v := os.Getenv("IDENTITY_PACK_ROOT"); v != "" {
		cfg.PackRoot = v
	}
	if v := os.Getenv("IDENTITY_RUNTIME_ROOT"); v != "" {
		cfg.RuntimeRoot = v
	}
	if v := os.Getenv("IDENTITY_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("IDENTITY_REQUIRE_CI_BINDING"); v == "true" || v == "1" {
		cfg.RequireCIBinding = true
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.Catalog != "" {
		dst.Catalog = src.Catalog
	}
	if src.PackRoot != "" {
		dst.PackRoot = src.PackRoot
	}
	if src.RuntimeRoot != "" {
		dst.RuntimeRoot = src.RuntimeRoot
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.RequireCIBinding {
		dst.RequireCIBinding = true
	}
	if src.InstallProvenanceWindowHours != 0 {
		dst.InstallProvenanceWindowHours = src.InstallProvenanceWindowHours
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.identityctl/config.yaml"
	SourceProject Source = ".identityctl/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// ReportsDir returns the execution-report output directory.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.RuntimeRoot, "reports")
}

// InstallReportsDir returns the install-report output directory.
func (c *Config) InstallReportsDir() string {
	return filepath.Join(c.RuntimeRoot, "reports", "install")
}

// UpgradeLogsDir returns the per-identity upgrade check-log directory.
func (c *Config) UpgradeLogsDir(identityID string) string {
	return filepath.Join(c.RuntimeRoot, "logs", "upgrade", identityID)
}

// ArbitrationLogsDir returns the arbitration decision-record directory.
func (c *Config) ArbitrationLogsDir() string {
	return filepath.Join(c.RuntimeRoot, "logs", "arbitration")
}

// BackupsDir returns the installer backup directory.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.RuntimeRoot, "backups", "install")
}

// MetricsPath returns the default route-quality metrics artifact path for an
// identity (overridable per-invocation via --metrics-path).
func (c *Config) MetricsPath(identityID string) string {
	return filepath.Join(c.RuntimeRoot, "metrics", identityID+"-route-quality.json")
}

// CompiledPath returns the path for the compiled runtime brief.
func (c *Config) CompiledPath() string {
	return filepath.Join(c.RuntimeRoot, "IDENTITY_COMPILED.md")
}

// ExamplesDir returns the self-test / sample-corpus root.
func (c *Config) ExamplesDir() string {
	return filepath.Join(c.RuntimeRoot, "examples")
}
