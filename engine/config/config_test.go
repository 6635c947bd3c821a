package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oscilloscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1500, c.Simulation.ParticleCount)
	assert.Equal(t, uint32(64), c.Simulation.WorkgroupSize)
	assert.Equal(t, "wgpu", c.Renderer.Backend)
	assert.Equal(t, "vsync", c.Renderer.PresentMode)
	assert.Equal(t, float32(1), c.Trigger())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
window:
  title: scope
renderer:
  backend: software
  present_mode: uncapped
simulation:
  particle_count: 256
  seed: zero
  trigger: false
loop:
  headless_frames: 12
log:
  level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "scope", c.Window.Title)
	assert.Equal(t, 1280, c.Window.Width, "unset keys keep their defaults")
	assert.Equal(t, "software", c.Renderer.Backend)
	assert.Equal(t, "uncapped", c.Renderer.PresentMode)
	assert.Equal(t, 256, c.Simulation.ParticleCount)
	assert.Equal(t, "zero", c.Simulation.Seed)
	assert.Equal(t, float32(0), c.Trigger())
	assert.Equal(t, 12, c.Loop.HeadlessFrames)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "window: [not, a, map"))
	assert.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"zero width", func(c *Config) { c.Window.Width = 0 }, "window.width"},
		{"zero height", func(c *Config) { c.Window.Height = -1 }, "window.height"},
		{"unknown backend", func(c *Config) { c.Renderer.Backend = "vulkan" }, "renderer.backend"},
		{"unknown present mode", func(c *Config) { c.Renderer.PresentMode = "mailbox" }, "renderer.present_mode"},
		{"clear color range", func(c *Config) { c.Renderer.ClearColor[2] = 2 }, "renderer.clear_color[2]"},
		{"negative workers", func(c *Config) { c.Renderer.ComputeWorkers = -1 }, "renderer.compute_workers"},
		{"no particles", func(c *Config) { c.Simulation.ParticleCount = 0 }, "simulation.particle_count"},
		{"workgroup size", func(c *Config) { c.Simulation.WorkgroupSize = 512 }, "simulation.workgroup_size"},
		{"seed", func(c *Config) { c.Simulation.Seed = "spiral" }, "simulation.seed"},
		{"persistence", func(c *Config) { c.Simulation.Persistence = 1.5 }, "simulation.persistence"},
		{"frame limit", func(c *Config) { c.Loop.FrameLimit = -30 }, "loop.frame_limit"},
		{"headless frames", func(c *Config) {
			c.Renderer.Backend = "software"
			c.Loop.HeadlessFrames = 0
		}, "loop.headless_frames"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"metrics address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, "metrics.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/osci.yaml")
	assert.Equal(t, "/tmp/flag.yaml", ResolvePath("/tmp/flag.yaml"))
	assert.Equal(t, "/etc/osci.yaml", ResolvePath(""))

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, "", ResolvePath(""))
}

func TestReadShader(t *testing.T) {
	src, err := ReadShader("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", src)

	path := filepath.Join(t.TempDir(), "c.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("// custom"), 0o600))
	src, err = ReadShader(path, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "// custom", src)

	_, err = ReadShader(filepath.Join(t.TempDir(), "none.wgsl"), "fallback")
	assert.Error(t, err)
}
