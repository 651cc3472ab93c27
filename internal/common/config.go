package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
	Output      OutputConfig      `toml:"output"`
	Preferences PreferencesConfig `toml:"preferences"`
	Tasks       TasksConfig       `toml:"tasks"`
	Bridge      BridgeConfig      `toml:"bridge"`
	Storage     StorageConfig     `toml:"storage"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	ModelConfig ModelConfig       `toml:"model_config"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`   // "stdout", "file"
	Dir    string   `toml:"dir"`                                                // Log directory, relative to the executable when not absolute
}

// OutputConfig describes the result layout: <root>/<yyyy-mm-dd>/<workflow base name><report_ext>
type OutputConfig struct {
	Root            string `toml:"root" validate:"required"`
	ReportExt       string `toml:"report_ext" validate:"required,startswith=."`
	AggregateName   string `toml:"aggregate_name" validate:"required"` // Batch summary of all missing files, fixed name inside each date bucket
	RetentionDays   int    `toml:"retention_days" validate:"min=0"`    // 0 disables cleanup
	CleanupSchedule string `toml:"cleanup_schedule"`                   // Cron expression, empty disables scheduled cleanup
}

type PreferencesConfig struct {
	AutoOpen     bool   `toml:"auto_open"`     // Open the produced report once a run succeeds
	OpenDelay    string `toml:"open_delay"`    // e.g. "100ms" - lets the view settle before opening
	OpenUI       bool   `toml:"open_ui"`       // Open the web UI after "serve" starts
	OpenUIDelay  string `toml:"open_ui_delay"` // e.g. "3s"
	BatchPattern string `toml:"batch_pattern"` // Default glob pattern(s) for batch runs, ';' separated
}

type TasksConfig struct {
	MaxWorkers       int    `toml:"max_workers" validate:"min=0"` // 0 = one goroutine per task
	QueueSize        int    `toml:"queue_size" validate:"min=1"`  // Control loop event buffer
	ProgressInterval string `toml:"progress_interval"`            // Minimum spacing between progress events, "" disables throttling
}

// BridgeConfig configures the external helper that implements workflow analysis and link search
type BridgeConfig struct {
	Command string   `toml:"command" validate:"required"`
	Args    []string `toml:"args"`
	WorkDir string   `toml:"work_dir"`
	Timeout string   `toml:"timeout"` // e.g. "30m"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type WebSocketConfig struct {
	ReadBufferSize  int    `toml:"read_buffer_size" validate:"min=0"`
	WriteBufferSize int    `toml:"write_buffer_size" validate:"min=0"`
	WriteTimeout    string `toml:"write_timeout"`
}

// ModelConfig lists the node types and file extensions that identify model references
type ModelConfig struct {
	NodeTypes   []string         `toml:"node_types" json:"node_types"`
	Extensions  []string         `toml:"extensions" json:"extensions"`
	NodeIndices map[string][]int `toml:"node_indices" json:"indices"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8000,
			Host: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
			Dir:    "logs",
		},
		Output: OutputConfig{
			Root:            "results",
			ReportExt:       ".html",
			AggregateName:   "missing_summary.csv",
			RetentionDays:   30,
			CleanupSchedule: "", // opt-in, e.g. "0 3 * * *"
		},
		Preferences: PreferencesConfig{
			AutoOpen:     true,
			OpenDelay:    "100ms",
			OpenUI:       false,
			OpenUIDelay:  "3s",
			BatchPattern: "*.json",
		},
		Tasks: TasksConfig{
			MaxWorkers:       0,
			QueueSize:        256,
			ProgressInterval: "100ms",
		},
		Bridge: BridgeConfig{
			Command: "python",
			Args:    []string{"-m", "modelfinder_bridge"},
			Timeout: "30m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "data/modelfinder",
			},
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteTimeout:    "10s",
		},
		ModelConfig: ModelConfig{
			NodeTypes: []string{
				"CheckpointLoaderSimple",
				"LoraLoader",
				"LoraLoaderModelOnly",
				"VAELoader",
				"ControlNetLoader",
				"CLIPLoader",
				"UNETLoader",
				"UpscaleModelLoader",
			},
			Extensions: []string{".safetensors", ".ckpt", ".pt", ".pth", ".bin", ".gguf"},
			NodeIndices: map[string][]int{
				"CheckpointLoaderSimple": {0},
				"LoraLoader":             {0},
				"VAELoader":              {0},
			},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier files
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MODELFINDER_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("MODELFINDER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MODELFINDER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("MODELFINDER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MODELFINDER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Output layout
	if root := os.Getenv("MODELFINDER_OUTPUT_ROOT"); root != "" {
		config.Output.Root = root
	}
	if days := os.Getenv("MODELFINDER_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			config.Output.RetentionDays = d
		}
	}

	// Preferences
	if autoOpen := os.Getenv("MODELFINDER_AUTO_OPEN"); autoOpen != "" {
		if ao, err := strconv.ParseBool(autoOpen); err == nil {
			config.Preferences.AutoOpen = ao
		}
	}

	// Bridge
	if command := os.Getenv("MODELFINDER_BRIDGE_COMMAND"); command != "" {
		config.Bridge.Command = command
	}
	if timeout := os.Getenv("MODELFINDER_BRIDGE_TIMEOUT"); timeout != "" {
		config.Bridge.Timeout = timeout
	}

	// Storage
	if badgerPath := os.Getenv("MODELFINDER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Zero values are ignored.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and the duration strings
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"preferences.open_delay":    c.Preferences.OpenDelay,
		"preferences.open_ui_delay": c.Preferences.OpenUIDelay,
		"tasks.progress_interval":   c.Tasks.ProgressInterval,
		"bridge.timeout":            c.Bridge.Timeout,
		"websocket.write_timeout":   c.WebSocket.WriteTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", key, err)
		}
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// ParseDurationOr parses value, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
