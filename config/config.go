package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumineer/alight/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultBackend      = FSBackend
	DefaultSnapshotFile = "Alight.json"
	DefaultMarkerName   = ".alight"
	DefaultLeafExt      = ".md"
	DefaultAutoRepair   = true
	DefaultDirPerms     = 0o755
	DefaultFilePerms    = 0o644
	DefaultLogLvl       = util.InfoLevel

	// DefaultAttrTimeout is the FUSE attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the FUSE directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO bypasses the kernel page cache for leaf reads in the FUSE view
	DefaultDirectIO = true

	DefaultFsName = "alight"
	DefaultName   = "alight"
)

// Config contains runtime configuration values for a knowledge base session.
type Config struct {
	MountOptions
	Root         string        // Backing directory of the knowledge base (Default <user config dir>/Lumineer/Alight)
	Backend      string        // Registered backend type: "fs" or "snapshot" (Default "fs")
	SnapshotFile string        // Snapshot file name under Root for the snapshot backend (Default "Alight.json")
	MarkerName   string        // Node marker file written in every container directory (Default ".alight")
	LeafExt      string        // Extension appended to leaf files (Default ".md")
	AutoRepair   bool          // Verify and repair after every mutation (Default true)
	DirPerms     os.FileMode   // Permissions for new container directories (Default 0755)
	FilePerms    os.FileMode   // Permissions for new leaf and marker files (Default 0644)
	LogLvl       util.LogLevel // Internal log level (Default info)

	AttrTimeout  float64 // FUSE attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // FUSE directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Bypass page cache for leaf reads in the FUSE view (Default true)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
//
// LogLvl is a verbosity between 1 (error) and 5 (trace), matching the CLI.
type ConfigOverride struct {
	Root         *string  `yaml:"root,omitempty" json:"root,omitempty"`
	Backend      *string  `yaml:"backend,omitempty" json:"backend,omitempty"`
	SnapshotFile *string  `yaml:"snapshot_file,omitempty" json:"snapshot_file,omitempty"`
	MarkerName   *string  `yaml:"marker_name,omitempty" json:"marker_name,omitempty"`
	LeafExt      *string  `yaml:"leaf_ext,omitempty" json:"leaf_ext,omitempty"`
	AutoRepair   *bool    `yaml:"auto_repair,omitempty" json:"auto_repair,omitempty"`
	DirPerms     *uint32  `yaml:"dir_perms,omitempty" json:"dir_perms,omitempty"`
	FilePerms    *uint32  `yaml:"file_perms,omitempty" json:"file_perms,omitempty"`
	LogLvl       *int     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO     *bool    `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty"`
	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
}

// DefaultRoot returns <user config dir>/Lumineer/Alight, falling back to a
// relative "Alight" directory when the platform has no config dir.
func DefaultRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "Alight"
	}
	return filepath.Join(dir, "Lumineer", "Alight")
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		Root:         DefaultRoot(),
		Backend:      DefaultBackend,
		SnapshotFile: DefaultSnapshotFile,
		MarkerName:   DefaultMarkerName,
		LeafExt:      DefaultLeafExt,
		AutoRepair:   DefaultAutoRepair,
		DirPerms:     DefaultDirPerms,
		FilePerms:    DefaultFilePerms,
		LogLvl:       DefaultLogLvl,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
		DirectIO:     DefaultDirectIO,
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Root != nil {
		c.Root = *override.Root
	}
	if override.Backend != nil {
		c.Backend = *override.Backend
	}
	if override.SnapshotFile != nil {
		c.SnapshotFile = *override.SnapshotFile
	}
	if override.MarkerName != nil {
		c.MarkerName = *override.MarkerName
	}
	if override.LeafExt != nil {
		c.LeafExt = *override.LeafExt
	}
	if override.AutoRepair != nil {
		c.AutoRepair = *override.AutoRepair
	}
	if override.DirPerms != nil {
		c.DirPerms = os.FileMode(*override.DirPerms)
	}
	if override.FilePerms != nil {
		c.FilePerms = os.FileMode(*override.FilePerms)
	}
	if override.LogLvl != nil {
		c.LogLvl = VerbosityToLogLevel(*override.LogLvl)
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
}

// Validate rejects settings the backends cannot honor.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if !strings.HasPrefix(c.MarkerName, ".") {
		return fmt.Errorf("marker name %q must start with '.' so it can never collide with a segment", c.MarkerName)
	}
	if !strings.HasPrefix(c.LeafExt, ".") || len(c.LeafExt) < 2 {
		return fmt.Errorf("leaf extension %q must start with '.'", c.LeafExt)
	}
	if c.MarkerName == c.LeafExt {
		return fmt.Errorf("marker name and leaf extension must differ")
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
