package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/foldermon/internal/protocol"
	"github.com/mattjoyce/foldermon/internal/worker"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file gets defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "foldermon" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.Worker.Command != "foldermon-worker" {
					t.Errorf("worker.command = %q", cfg.Worker.Command)
				}
				if cfg.Worker.Restart.Policy != worker.RestartNever {
					t.Errorf("restart policy = %q, want never", cfg.Worker.Restart.Policy)
				}
				if cfg.Protocol.Acks {
					t.Error("acks should default to false")
				}
				if cfg.Protocol.MaxFrameBytes != protocol.DefaultMaxFrameBytes {
					t.Errorf("max_frame_bytes = %d", cfg.Protocol.MaxFrameBytes)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: test
  log_level: debug
  log_format: text
  state_dir: /var/lib/foldermon
worker:
  command: /usr/local/bin/worker
  args: ["--acks"]
  env: ["FOO=bar"]
  stop_grace: 2s
  restart:
    policy: on-failure
    max_restarts: 3
    backoff_initial: 100ms
    backoff_max: 1s
    multiplier: 1.5
protocol:
  acks: true
  max_frame_bytes: 1024
  timeouts:
    scan: 30s
    list: 2s
    add: 3s
    remove: 4s
api:
  enabled: true
  listen: 127.0.0.1:9999
  auth:
    api_key: secret
folders:
  initial: ["/home/me/Documents"]
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Worker.StopGrace != 2*time.Second {
					t.Errorf("stop_grace = %v", cfg.Worker.StopGrace)
				}
				if cfg.Worker.Restart.BackoffInitial != 100*time.Millisecond {
					t.Errorf("backoff_initial = %v", cfg.Worker.Restart.BackoffInitial)
				}
				if !cfg.Protocol.Acks {
					t.Error("acks not parsed")
				}
				if got := cfg.Protocol.TimeoutFor(protocol.VerbRemove); got != 4*time.Second {
					t.Errorf("remove timeout = %v", got)
				}
				if got := cfg.Protocol.TimeoutFor(protocol.VerbScan); got != 30*time.Second {
					t.Errorf("scan timeout = %v", got)
				}
				if len(cfg.Folders.Initial) != 1 {
					t.Errorf("folders.initial = %v", cfg.Folders.Initial)
				}
				policy := cfg.Worker.RestartPolicy()
				if policy.Mode != worker.RestartOnFailure || policy.MaxRestarts != 3 || policy.Backoff.Multiplier != 1.5 {
					t.Errorf("restart policy = %+v", policy)
				}
				spec := cfg.Worker.Spec()
				if spec.Command != "/usr/local/bin/worker" || len(spec.Args) != 1 || spec.Env[0] != "FOO=bar" {
					t.Errorf("spec = %+v", spec)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${FOLDERMON_TEST_KEY}
`,
			env: map[string]string{"FOLDERMON_TEST_KEY": "from-env"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Auth.APIKey != "from-env" {
					t.Errorf("api_key = %q", cfg.API.Auth.APIKey)
				}
			},
		},
		{
			name: "unset env var in api key",
			yaml: `
api:
  enabled: true
  auth:
    api_key: ${FOLDERMON_TEST_UNSET_KEY}
`,
			wantErr: "FOLDERMON_TEST_UNSET_KEY",
		},
		{
			name:    "unknown field",
			yaml:    "worker:\n  comand: typo\n",
			wantErr: "comand",
		},
		{
			name:    "bad restart policy",
			yaml:    "worker:\n  restart:\n    policy: sometimes\n",
			wantErr: "worker.restart.policy",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "negative timeout",
			yaml:    "protocol:\n  timeouts:\n    list: -1s\n",
			wantErr: "protocol.timeouts",
		},
		{
			name:    "bad env entry",
			yaml:    "worker:\n  env: [\"NOVALUE\"]\n",
			wantErr: "worker.env[0]",
		},
		{
			name:    "backoff max below initial",
			yaml:    "worker:\n  restart:\n    backoff_initial: 10s\n    backoff_max: 1s\n",
			wantErr: "backoff_max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "service:\n  name: dirmode\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "dirmode" {
		t.Errorf("name = %q", cfg.Service.Name)
	}
	if cfg.SourcePath != filepath.Join(dir, "config.yaml") {
		t.Errorf("source path = %q", cfg.SourcePath)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRelativePathsAnchoredAtConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
service:
  state_dir: state
worker:
  command: ./bin/worker
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Command != filepath.Join(dir, "bin", "worker") {
		t.Errorf("command = %q", cfg.Worker.Command)
	}
	if cfg.Service.StateDir != filepath.Join(dir, "state") {
		t.Errorf("state_dir = %q", cfg.Service.StateDir)
	}

	bare := writeConfig(t, t.TempDir(), "worker:\n  command: foldermon-worker\n")
	cfg, err = Load(bare)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Command != "foldermon-worker" {
		t.Errorf("bare command rewritten to %q", cfg.Worker.Command)
	}
}

func TestDiscoverEnvOverride(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	t.Setenv(EnvConfigPath, path)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got != path {
		t.Errorf("Discover = %q, want %q", got, path)
	}

	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Discover(); err == nil {
		t.Error("expected error for missing override")
	}
}

func TestRedactedMasksAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.API.Auth.APIKey = "topsecret"

	out, err := cfg.Redacted()
	if err != nil {
		t.Fatalf("Redacted: %v", err)
	}
	if strings.Contains(string(out), "topsecret") {
		t.Error("api key leaked")
	}
	if cfg.API.Auth.APIKey != "topsecret" {
		t.Error("Redacted mutated the config")
	}
}
