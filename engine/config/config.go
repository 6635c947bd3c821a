package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-osci/engine/particle"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no -config flag is given.
const EnvConfigPath = "OSCI_CONFIG_PATH"

// Config is the full application configuration read from oscilloscope.yaml.
type Config struct {
	Window struct {
		Title  string `yaml:"title"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
	} `yaml:"window"`

	Renderer struct {
		Backend              string     `yaml:"backend"`
		PresentMode          string     `yaml:"present_mode"`
		ForceFallbackAdapter bool       `yaml:"force_fallback_adapter"`
		ClearColor           [4]float64 `yaml:"clear_color"`
		ComputeWorkers       int        `yaml:"compute_workers"`
	} `yaml:"renderer"`

	Simulation struct {
		ParticleCount int     `yaml:"particle_count"`
		WorkgroupSize uint32  `yaml:"workgroup_size"`
		Seed          string  `yaml:"seed"`
		Amplitude     float32 `yaml:"amplitude"`
		Frequency     float32 `yaml:"frequency"`
		Speed         float32 `yaml:"speed"`
		Persistence   float32 `yaml:"persistence"`
		Trigger       *bool   `yaml:"trigger"`
	} `yaml:"simulation"`

	Shaders struct {
		ComputePath string `yaml:"compute_path"`
		DrawPath    string `yaml:"draw_path"`
		Precheck    bool   `yaml:"precheck"`
	} `yaml:"shaders"`

	Loop struct {
		FrameLimit     float64 `yaml:"frame_limit"`
		HeadlessFrames int     `yaml:"headless_frames"`
	} `yaml:"loop"`

	Log struct {
		Environment string `yaml:"environment"`
		Level       string `yaml:"level"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"metrics"`
}

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the configuration used when no file is found. Values match a
// 1280x720 vsync window running 1500 particles.
//
// Returns:
//   - *Config: the default configuration
func Default() *Config {
	c := &Config{}
	c.Window.Title = "Oscilloscope"
	c.Window.Width = 1280
	c.Window.Height = 720
	c.Renderer.Backend = "wgpu"
	c.Renderer.PresentMode = "vsync"
	c.Renderer.ClearColor = [4]float64{0.1, 0.1, 0.1, 1}
	c.Simulation.ParticleCount = 1500
	c.Simulation.WorkgroupSize = 64
	c.Simulation.Seed = string(particle.SeedTrace)
	c.Simulation.Amplitude = 0.5
	c.Simulation.Frequency = 6
	c.Simulation.Speed = 2
	c.Simulation.Persistence = 0.2
	c.Loop.HeadlessFrames = 600
	c.Log.Environment = "development"
	c.Log.Level = "info"
	c.Metrics.Address = ":9090"
	return c
}

// ResolvePath picks the config file path: the flag value when set, otherwise the
// OSCI_CONFIG_PATH environment variable. An empty result means defaults only.
//
// Parameters:
//   - flagValue: the value of the -config flag
//
// Returns:
//   - string: the path to load, possibly empty
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

// Load reads the YAML file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
//
// Parameters:
//   - path: the YAML file path
//
// Returns:
//   - *Config: the loaded configuration
//   - error: a read or parse error, or a *ValidationError
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every value against the ranges the engine accepts.
//
// Returns:
//   - error: the first *ValidationError found, or nil
func (c *Config) Validate() error {
	switch {
	case c.Window.Width <= 0:
		return &ValidationError{Field: "window.width", Reason: "must be positive"}
	case c.Window.Height <= 0:
		return &ValidationError{Field: "window.height", Reason: "must be positive"}
	}

	switch c.Renderer.Backend {
	case "wgpu", "software":
	default:
		return &ValidationError{Field: "renderer.backend", Reason: fmt.Sprintf("unknown backend %q, want wgpu or software", c.Renderer.Backend)}
	}
	switch c.Renderer.PresentMode {
	case "vsync", "uncapped":
	default:
		return &ValidationError{Field: "renderer.present_mode", Reason: fmt.Sprintf("unknown present mode %q, want vsync or uncapped", c.Renderer.PresentMode)}
	}
	for i, v := range c.Renderer.ClearColor {
		if v < 0 || v > 1 {
			return &ValidationError{Field: fmt.Sprintf("renderer.clear_color[%d]", i), Reason: "must be within [0, 1]"}
		}
	}
	if c.Renderer.ComputeWorkers < 0 {
		return &ValidationError{Field: "renderer.compute_workers", Reason: "must not be negative"}
	}

	if c.Simulation.ParticleCount <= 0 {
		return &ValidationError{Field: "simulation.particle_count", Reason: "must be positive"}
	}
	if c.Simulation.WorkgroupSize == 0 || c.Simulation.WorkgroupSize > 256 {
		return &ValidationError{Field: "simulation.workgroup_size", Reason: "must be within [1, 256]"}
	}
	if _, err := particle.ParseSeedStrategy(c.Simulation.Seed); err != nil {
		return &ValidationError{Field: "simulation.seed", Reason: err.Error()}
	}
	if c.Simulation.Persistence < 0 || c.Simulation.Persistence > 1 {
		return &ValidationError{Field: "simulation.persistence", Reason: "must be within [0, 1]"}
	}

	if c.Loop.FrameLimit < 0 {
		return &ValidationError{Field: "loop.frame_limit", Reason: "must not be negative"}
	}
	if c.Renderer.Backend == "software" && c.Loop.HeadlessFrames <= 0 {
		return &ValidationError{Field: "loop.headless_frames", Reason: "must be positive for the software backend"}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return &ValidationError{Field: "metrics.address", Reason: "required when metrics are enabled"}
	}
	return nil
}

// Trigger returns the initial trigger value, 1 unless the file disarms it.
func (c *Config) Trigger() float32 {
	if c.Simulation.Trigger != nil && !*c.Simulation.Trigger {
		return 0
	}
	return 1
}

// ReadShader returns the contents of path, or fallback when path is empty.
//
// Parameters:
//   - path: an optional WGSL file path
//   - fallback: the embedded source
//
// Returns:
//   - string: the shader source
//   - error: an error if the file cannot be read
func ReadShader(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read shader %s: %w", path, err)
	}
	return string(data), nil
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
