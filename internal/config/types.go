package config

import (
	"time"

	"github.com/mattjoyce/foldermon/internal/protocol"
)

// Config represents the complete foldermon configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Worker   WorkerConfig   `yaml:"worker"`
	Protocol ProtocolConfig `yaml:"protocol"`
	API      APIConfig      `yaml:"api,omitempty"`
	Folders  FoldersConfig  `yaml:"folders,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json, text, auto
	StateDir  string `yaml:"state_dir"`
}

// WorkerConfig describes how to launch the worker process.
type WorkerConfig struct {
	Command   string        `yaml:"command"`
	Args      []string      `yaml:"args,omitempty"`
	Dir       string        `yaml:"dir,omitempty"`
	Env       []string      `yaml:"env,omitempty"`
	Checksum  string        `yaml:"checksum,omitempty"` // BLAKE3 hex of the executable
	StopGrace time.Duration `yaml:"stop_grace"`
	Restart   RestartConfig `yaml:"restart"`
}

// RestartConfig defines automatic restart behavior after the worker exits.
type RestartConfig struct {
	Policy         string        `yaml:"policy"` // never, on-failure, always
	MaxRestarts    int           `yaml:"max_restarts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	Multiplier     float64       `yaml:"multiplier"`
	Jitter         bool          `yaml:"jitter,omitempty"`
}

// ProtocolConfig defines wire protocol settings.
type ProtocolConfig struct {
	// Acks makes add/remove wait for ADD_OK/REMOVE_OK frames. The worker must
	// be started in acknowledgment mode too.
	Acks          bool           `yaml:"acks"`
	MaxFrameBytes int            `yaml:"max_frame_bytes"`
	Timeouts      TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig defines per-verb response deadlines.
type TimeoutsConfig struct {
	Scan   time.Duration `yaml:"scan"`
	List   time.Duration `yaml:"list"`
	Add    time.Duration `yaml:"add"`
	Remove time.Duration `yaml:"remove"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// FoldersConfig seeds the worker on first start.
type FoldersConfig struct {
	Initial []string `yaml:"initial,omitempty"`
}

// TimeoutFor returns the response deadline for verb.
func (p ProtocolConfig) TimeoutFor(verb protocol.Verb) time.Duration {
	switch verb {
	case protocol.VerbScan:
		return p.Timeouts.Scan
	case protocol.VerbList:
		return p.Timeouts.List
	case protocol.VerbAdd:
		return p.Timeouts.Add
	case protocol.VerbRemove:
		return p.Timeouts.Remove
	}
	return 0
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "foldermon",
			LogLevel:  "info",
			LogFormat: "auto",
			StateDir:  "./data",
		},
		Worker: WorkerConfig{
			Command:   "foldermon-worker",
			StopGrace: 5 * time.Second,
			Restart: RestartConfig{
				Policy:         "never",
				MaxRestarts:    5,
				BackoffInitial: 500 * time.Millisecond,
				BackoffMax:     30 * time.Second,
				Multiplier:     2.0,
			},
		},
		Protocol: ProtocolConfig{
			Acks:          false,
			MaxFrameBytes: protocol.DefaultMaxFrameBytes,
			Timeouts: TimeoutsConfig{
				Scan:   5 * time.Minute,
				List:   10 * time.Second,
				Add:    10 * time.Second,
				Remove: 10 * time.Second,
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8088",
		},
	}
}
