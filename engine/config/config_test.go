package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128, cfg.Limits.ShaderResources)
	assert.Equal(t, 14, cfg.Limits.ConstantBuffers)
	assert.Equal(t, ValidationModeFull, cfg.Validation.Mode)
	assert.Equal(t, BackendRecorder, cfg.Backend.Type)
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[log]
level = "debug"

[commit]
coalesce = "runs"
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, CoalesceRuns, cfg.Commit.Coalesce)
	assert.Equal(t, 16, cfg.Limits.Samplers)
	assert.Equal(t, 2, cfg.Device.DeferredContexts)
}

func TestParseBackend(t *testing.T) {
	cfg, err := Parse([]byte(`
[backend]
type = "vulkan"
debug = true
`))
	require.NoError(t, err)
	assert.Equal(t, BackendVulkan, cfg.Backend.Type)
	assert.True(t, cfg.Backend.Debug)
	assert.Equal(t, 1024, cfg.Backend.DescriptorSets)
}

func TestParseRejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"unknown key", "[log]\nlevels = \"debug\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad mode", "[validation]\nmode = \"partial\"\n"},
		{"bad policy", "[commit]\ncoalesce = \"all\"\n"},
		{"limit too big", "[limits]\nrender_targets = 9\n"},
		{"limit zero", "[limits]\nsamplers = 0\n"},
		{"no pending lists", "[device]\npending_command_lists = 0\n"},
		{"bad backend", "[backend]\ntype = \"d3d11\"\n"},
		{"no descriptor sets", "[backend]\ndescriptor_sets = 0\n"},
		{"not toml", "[log"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			require.Error(t, err)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhi", "config.toml")
	cfg := Default()
	cfg.Validation.HaltOnStale = true
	cfg.Limits.Viewports = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Default().Save(path))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, ValidationModeFull, w.Current().Validation.Mode)

	require.NoError(t, os.WriteFile(path, []byte("[validation]\nmode = \"none\"\n"), 0644))

	// the truncate and the write may be reported as separate events
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case cfg := <-w.Updates():
			require.NotNil(t, cfg)
			done = cfg.Validation.Mode == ValidationModeNone
		case <-timeout:
			t.Fatal("no config update received")
		}
	}
	assert.Equal(t, ValidationModeNone, w.Current().Validation.Mode)
}

func TestWatcherCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Default().Save(path))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Error(t, w.Close())
}
