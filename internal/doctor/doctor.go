// Package doctor checks a loaded foldermon configuration against the machine
// it will run on.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattjoyce/foldermon/internal/config"
	"github.com/mattjoyce/foldermon/internal/worker"
)

// referenceWorker is the command name of the bundled worker.
const referenceWorker = "foldermon-worker"

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration beyond what config.Load enforces.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWorker(r)
	d.validateStateDir(r)
	d.validateAPIConfig(r)
	d.warnAckMismatch(r)
	d.warnInitialFolders(r)
	d.warnRestartPolicy(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateWorker checks that the worker executable resolves and matches its pin.
func (d *Doctor) validateWorker(r *Result) {
	w := d.cfg.Worker
	path, err := d.lookPath(w.Command)
	if err != nil {
		d.addError(r, "worker", "worker.command",
			fmt.Sprintf("worker executable %q not found: %v", w.Command, err))
		return
	}
	if w.Checksum != "" {
		if err := worker.VerifyExecutable(path, w.Checksum); err != nil {
			d.addError(r, "worker", "worker.checksum", err.Error())
		}
	}
	if w.Dir != "" {
		info, err := os.Stat(w.Dir)
		if err != nil || !info.IsDir() {
			d.addError(r, "worker", "worker.dir", fmt.Sprintf("working directory %q does not exist", w.Dir))
		}
	}
}

// validateStateDir checks the state directory is usable.
func (d *Doctor) validateStateDir(r *Result) {
	dir := d.cfg.Service.StateDir
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		d.addError(r, "service", "service.state_dir", fmt.Sprintf("%q exists and is not a directory", dir))
	case os.IsNotExist(err):
		d.addWarning(r, "service", "service.state_dir", fmt.Sprintf("%q does not exist yet; it will be created on start", dir))
	case err != nil:
		d.addError(r, "service", "service.state_dir", err.Error())
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Auth.APIKey == "" {
		d.addWarning(r, "api", "api.auth.api_key", "API enabled but no api_key configured; every protected endpoint will answer 401")
	}
}

// warnAckMismatch flags acknowledgment mode that the bundled worker was not
// told about. Callers would time out on every add and remove.
func (d *Doctor) warnAckMismatch(r *Result) {
	if filepath.Base(d.cfg.Worker.Command) != referenceWorker {
		return
	}
	hasFlag := slices.Contains(d.cfg.Worker.Args, "--acks") || slices.Contains(d.cfg.Worker.Args, "-acks")
	switch {
	case d.cfg.Protocol.Acks && !hasFlag:
		d.addWarning(r, "protocol", "worker.args",
			"protocol.acks is enabled but the worker is not started with --acks")
	case !d.cfg.Protocol.Acks && hasFlag:
		d.addWarning(r, "protocol", "protocol.acks",
			"worker is started with --acks but protocol.acks is disabled; ack frames will be unmatched")
	}
}

// warnInitialFolders flags seed folders that are not directories.
func (d *Doctor) warnInitialFolders(r *Result) {
	for i, p := range d.cfg.Folders.Initial {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			d.addWarning(r, "folders", fmt.Sprintf("folders.initial[%d]", i),
				fmt.Sprintf("%q is not an existing directory", p))
		}
	}
}

// warnRestartPolicy flags restart loops that would spin.
func (d *Doctor) warnRestartPolicy(r *Result) {
	rc := d.cfg.Worker.Restart
	if rc.Policy == worker.RestartNever {
		return
	}
	if rc.BackoffInitial.Milliseconds() < 100 {
		d.addWarning(r, "worker", "worker.restart.backoff_initial",
			fmt.Sprintf("backoff_initial %s is very short for policy %q", rc.BackoffInitial, rc.Policy))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
