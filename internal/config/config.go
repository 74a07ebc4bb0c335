// Package config holds the compiled-in defaults for localchat and the
// optional YAML override file. All configuration is static key/value data;
// there is no environment-variable surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// DataDir is where the database, logs, and downloaded models live.
	DataDir string `yaml:"data_dir"`

	// SystemPrompt is prepended to every assembled prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// GenerateTimeout bounds a single generation call, as a duration string
	// like "120s". The engine itself has no deadline, so a hung subprocess
	// would otherwise block the turn forever.
	GenerateTimeout string `yaml:"generate_timeout"`

	// EngineBinary is the inference server executable, resolved via PATH
	// unless given as an absolute path.
	EngineBinary string `yaml:"engine_binary"`

	Model      ModelConfig       `yaml:"model"`
	Generation GenerationOptions `yaml:"generation"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// LoggingConfig controls file-based debug logging.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration. DataDir defaults to
// ~/.localchat, falling back to the current directory when the home
// directory cannot be resolved.
func Default() Config {
	dataDir := ".localchat"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".localchat")
	}
	return Config{
		DataDir:         dataDir,
		SystemPrompt:    "You are a helpful AI assistant.",
		GenerateTimeout: "120s",
		EngineBinary:    "llama-server",
		Model:           DefaultModel(),
		Generation:      DefaultGeneration(),
		Logging:         LoggingConfig{Debug: false, Level: "info"},
	}
}

// Load reads <dataDir>/config.yaml over the defaults. A missing file is not
// an error; a malformed one is.
func Load(dataDir string) (Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// GenerateDeadline parses GenerateTimeout, falling back to 120s when the
// value is empty or malformed.
func (c Config) GenerateDeadline() time.Duration {
	d, err := time.ParseDuration(c.GenerateTimeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// DatabasePath returns the SQLite file location under the data dir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "localchat.db")
}

// LogsDir returns the log directory under the data dir.
func (c Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ModelsDir returns where downloaded model artifacts are cached.
func (c Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}
