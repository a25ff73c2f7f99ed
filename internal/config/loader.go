package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/foldermon/internal/worker"
)

// EnvConfigPath overrides config discovery.
const EnvConfigPath = "FOLDERMON_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNotFound is returned by Discover when no config file exists.
var ErrNotFound = errors.New("no config found")

// Load reads and parses configuration from a file. A directory is accepted
// and must contain config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	resolveRelativePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML (after ${VAR} interpolation) and applies defaults.
// It does not validate.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(interpolated))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return applyConfigDefaults(&cfg), nil
}

// Discover finds the config file. Priority order: $FOLDERMON_CONFIG,
// ~/.config/foldermon/config.yaml, ./config.yaml.
func Discover() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("$%s points to missing file %s", EnvConfigPath, path)
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "foldermon", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", fmt.Errorf("%w (checked: $%s, ~/.config/foldermon/config.yaml, ./config.yaml)", ErrNotFound, EnvConfigPath)
}

// Redacted renders the config as YAML with secrets masked.
func (c *Config) Redacted() ([]byte, error) {
	cp := *c
	if cp.API.Auth.APIKey != "" {
		cp.API.Auth.APIKey = "********"
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cp); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RestartPolicy converts the restart section into the worker's policy type.
func (w WorkerConfig) RestartPolicy() worker.RestartPolicy {
	return worker.RestartPolicy{
		Mode:        w.Restart.Policy,
		MaxRestarts: w.Restart.MaxRestarts,
		Backoff: worker.BackoffConfig{
			InitialDelay: w.Restart.BackoffInitial,
			Multiplier:   w.Restart.Multiplier,
			MaxDelay:     w.Restart.BackoffMax,
			Jitter:       w.Restart.Jitter,
		},
	}
}

// Spec converts the worker section into a process spec.
func (w WorkerConfig) Spec() worker.Spec {
	return worker.Spec{
		Command:   w.Command,
		Args:      w.Args,
		Dir:       w.Dir,
		Env:       w.Env,
		Checksum:  w.Checksum,
		StopGrace: w.StopGrace,
	}
}

// resolveRelativePaths anchors relative worker paths (those containing a
// separator) and the state dir at the config file's directory. Bare command
// names are left for PATH lookup.
func resolveRelativePaths(cfg *Config, baseDir string) {
	if cmd := cfg.Worker.Command; strings.ContainsRune(cmd, filepath.Separator) && !filepath.IsAbs(cmd) {
		cfg.Worker.Command = filepath.Join(baseDir, cmd)
	}
	if dir := cfg.Worker.Dir; dir != "" && !filepath.IsAbs(dir) {
		cfg.Worker.Dir = filepath.Join(baseDir, dir)
	}
	if dir := cfg.Service.StateDir; dir != "" && !filepath.IsAbs(dir) {
		cfg.Service.StateDir = filepath.Join(baseDir, dir)
	}
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.StateDir == "" {
		cfg.Service.StateDir = defaults.Service.StateDir
	}

	if cfg.Worker.Command == "" {
		cfg.Worker.Command = defaults.Worker.Command
	}
	if cfg.Worker.StopGrace == 0 {
		cfg.Worker.StopGrace = defaults.Worker.StopGrace
	}
	r := &cfg.Worker.Restart
	if r.Policy == "" {
		r.Policy = defaults.Worker.Restart.Policy
	}
	if r.MaxRestarts == 0 {
		r.MaxRestarts = defaults.Worker.Restart.MaxRestarts
	}
	if r.BackoffInitial == 0 {
		r.BackoffInitial = defaults.Worker.Restart.BackoffInitial
	}
	if r.BackoffMax == 0 {
		r.BackoffMax = defaults.Worker.Restart.BackoffMax
	}
	if r.Multiplier == 0 {
		r.Multiplier = defaults.Worker.Restart.Multiplier
	}

	if cfg.Protocol.MaxFrameBytes == 0 {
		cfg.Protocol.MaxFrameBytes = defaults.Protocol.MaxFrameBytes
	}
	t := &cfg.Protocol.Timeouts
	if t.Scan == 0 {
		t.Scan = defaults.Protocol.Timeouts.Scan
	}
	if t.List == 0 {
		t.List = defaults.Protocol.Timeouts.List
	}
	if t.Add == 0 {
		t.Add = defaults.Protocol.Timeouts.Add
	}
	if t.Remove == 0 {
		t.Remove = defaults.Protocol.Timeouts.Remove
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place and caught by validation where it matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validFormats[strings.ToLower(cfg.Service.LogFormat)] {
		return fmt.Errorf("service.log_format must be one of: json, text, auto (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Worker.Command) == "" {
		return fmt.Errorf("worker.command is required")
	}
	if cfg.Worker.StopGrace < 0 {
		return fmt.Errorf("worker.stop_grace must not be negative")
	}
	switch cfg.Worker.Restart.Policy {
	case worker.RestartNever, worker.RestartOnFailure, worker.RestartAlways:
	default:
		return fmt.Errorf("worker.restart.policy must be one of: never, on-failure, always (got %q)", cfg.Worker.Restart.Policy)
	}
	if cfg.Worker.Restart.MaxRestarts < 0 {
		return fmt.Errorf("worker.restart.max_restarts must not be negative")
	}
	if cfg.Worker.Restart.Multiplier < 1 {
		return fmt.Errorf("worker.restart.multiplier must be >= 1")
	}
	if cfg.Worker.Restart.BackoffMax < cfg.Worker.Restart.BackoffInitial {
		return fmt.Errorf("worker.restart.backoff_max must be >= backoff_initial")
	}
	for i, kv := range cfg.Worker.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("worker.env[%d]: expected KEY=VALUE (got %q)", i, kv)
		}
	}

	if cfg.Protocol.MaxFrameBytes <= 0 {
		return fmt.Errorf("protocol.max_frame_bytes must be positive")
	}
	t := cfg.Protocol.Timeouts
	if t.Scan <= 0 || t.List <= 0 || t.Add <= 0 || t.Remove <= 0 {
		return fmt.Errorf("protocol.timeouts must all be positive")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey); len(matches) > 1 {
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	for i, p := range cfg.Folders.Initial {
		if p == "" || strings.ContainsAny(p, "\r\n") {
			return fmt.Errorf("folders.initial[%d]: invalid path %q", i, p)
		}
	}

	return nil
}
