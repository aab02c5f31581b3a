package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/rhi/engine/core"
)

type ValidationMode string

const (
	// No consistency verification, release builds.
	ValidationModeNone ValidationMode = "none"
	// Cache invariants and native state are verified before every draw and dispatch.
	ValidationModeFull ValidationMode = "full"
)

type CoalescePolicy string

const (
	// One native call covers every slot between the first and last changed slot.
	CoalesceSpan CoalescePolicy = "span"
	// One native call per contiguous run of changed slots.
	CoalesceRuns CoalescePolicy = "runs"
)

type LogConfig struct {
	Level string `toml:"level"`
}

type ValidationConfig struct {
	Mode ValidationMode `toml:"mode"`
	// Panic instead of returning ErrStaleBinding when the cache disagrees with the native context.
	HaltOnStale bool `toml:"halt_on_stale"`
}

// LimitsConfig holds the slot-table capacities. These are hardware limits,
// fixed for the lifetime of a device.
type LimitsConfig struct {
	ConstantBuffers int `toml:"constant_buffers"`
	ShaderResources int `toml:"shader_resources"`
	Samplers        int `toml:"samplers"`
	UnorderedAccess int `toml:"unordered_access"`
	VertexBuffers   int `toml:"vertex_buffers"`
	RenderTargets   int `toml:"render_targets"`
	Viewports       int `toml:"viewports"`
}

type CommitConfig struct {
	// Empty means the backend decides.
	Coalesce CoalescePolicy `toml:"coalesce"`
}

type BackendType string

const (
	// Pure Go recording backend, no GPU needed.
	BackendRecorder BackendType = "recorder"
	BackendVulkan   BackendType = "vulkan"
)

type BackendConfig struct {
	Type BackendType `toml:"type"`
	// Enables the Vulkan validation layer.
	Debug bool `toml:"debug"`
	// Descriptor sets a context can allocate between two submissions.
	DescriptorSets int `toml:"descriptor_sets"`
}

type DeviceConfig struct {
	DeferredContexts    int `toml:"deferred_contexts"`
	PendingCommandLists int `toml:"pending_command_lists"`
}

type Config struct {
	Log        LogConfig        `toml:"log"`
	Validation ValidationConfig `toml:"validation"`
	Limits     LimitsConfig     `toml:"limits"`
	Commit     CommitConfig     `toml:"commit"`
	Device     DeviceConfig     `toml:"device"`
	Backend    BackendConfig    `toml:"backend"`
}

// Default returns the Direct3D 11 limits with full validation.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Validation: ValidationConfig{
			Mode: ValidationModeFull,
		},
		Limits: LimitsConfig{
			ConstantBuffers: 14,
			ShaderResources: 128,
			Samplers:        16,
			UnorderedAccess: 8,
			VertexBuffers:   32,
			RenderTargets:   8,
			Viewports:       16,
		},
		Device: DeviceConfig{
			DeferredContexts:    2,
			PendingCommandLists: 16,
		},
		Backend: BackendConfig{
			Type:           BackendRecorder,
			DescriptorSets: 1024,
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys missing from the
// file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	var buffer bytes.Buffer
	if err := toml.NewEncoder(&buffer).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buffer.Bytes(), 0644)
}

func (c *Config) Validate() error {
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Validation.Mode {
	case ValidationModeNone, ValidationModeFull:
	default:
		return fmt.Errorf("validation.mode: unknown mode %q", c.Validation.Mode)
	}
	switch c.Commit.Coalesce {
	case "", CoalesceSpan, CoalesceRuns:
	default:
		return fmt.Errorf("commit.coalesce: unknown policy %q", c.Commit.Coalesce)
	}
	limits := []struct {
		name  string
		value int
		max   int
	}{
		{"constant_buffers", c.Limits.ConstantBuffers, 64},
		{"shader_resources", c.Limits.ShaderResources, 256},
		{"samplers", c.Limits.Samplers, 64},
		{"unordered_access", c.Limits.UnorderedAccess, 64},
		{"vertex_buffers", c.Limits.VertexBuffers, 64},
		{"render_targets", c.Limits.RenderTargets, 8},
		{"viewports", c.Limits.Viewports, 16},
	}
	for _, l := range limits {
		if l.value <= 0 || l.value > l.max {
			return fmt.Errorf("limits.%s: %d out of range [1, %d]", l.name, l.value, l.max)
		}
	}
	if c.Device.DeferredContexts < 0 {
		return fmt.Errorf("device.deferred_contexts: must not be negative")
	}
	if c.Device.PendingCommandLists <= 0 {
		return fmt.Errorf("device.pending_command_lists: must be positive")
	}
	switch c.Backend.Type {
	case BackendRecorder, BackendVulkan:
	default:
		return fmt.Errorf("backend.type: unknown backend %q", c.Backend.Type)
	}
	if c.Backend.DescriptorSets <= 0 {
		return fmt.Errorf("backend.descriptor_sets: must be positive")
	}
	return nil
}

// LogLevel returns the configured level, info when it cannot be parsed.
func (c *Config) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Log.Level)
	if err != nil {
		return core.InfoLevel
	}
	return level
}
