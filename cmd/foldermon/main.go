package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/mattjoyce/foldermon/internal/api"
	"github.com/mattjoyce/foldermon/internal/bridge"
	"github.com/mattjoyce/foldermon/internal/config"
	"github.com/mattjoyce/foldermon/internal/doctor"
	"github.com/mattjoyce/foldermon/internal/events"
	"github.com/mattjoyce/foldermon/internal/lock"
	"github.com/mattjoyce/foldermon/internal/log"
	"github.com/mattjoyce/foldermon/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// stdin is swapped in tests for the interactive folder prompt.
var stdin io.Reader = os.Stdin

const lockFileName = "foldermon.lock"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "folder":
		return runFolderNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "scan":
		if hasHelpFlag(args) {
			printScanHelp()
			return 0
		}
		return runScan(args)
	case "tui":
		if hasHelpFlag(args) {
			printTUIHelp()
			return 0
		}
		return runTUI(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: foldermon version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("foldermon %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`foldermon - supervise a folder-monitoring worker over a line protocol

Usage:
  foldermon <noun> <action> [flags]
  foldermon <verb> [flags]

Core Resources (Nouns):
  system    Supervisor lifecycle and health
  folder    Monitored folder management
  config    Configuration validation

System Commands:
  system start      Run the supervisor (and API, if enabled) in foreground
  system status     Show config, lock and worker readiness

Folder Commands:
  folder list              List monitored folders
  folder add [PATH]        Add a folder (prompts when PATH is omitted)
  folder remove PATH       Stop monitoring a folder
  folder reveal PATH       Open a folder in the system file manager

Config Commands:
  config check      Validate configuration against this machine
  config show       Print the effective configuration

Verbs:
  scan              Ask the worker for changed files
  tui               Interactive terminal dashboard

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'foldermon <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runFolderNoun(args []string) int {
	if len(args) < 1 {
		printFolderNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printFolderNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printFolderNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list", "ls":
		return runFolderList(actionArgs)
	case "add":
		return runFolderAdd(actionArgs)
	case "remove", "rm":
		return runFolderRemove(actionArgs)
	case "reveal", "open":
		return runFolderReveal(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown folder action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: foldermon system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printFolderNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: foldermon folder <action> [--config PATH] [args]")
	fmt.Fprintln(w, "Actions: list, add [PATH], remove PATH, reveal PATH")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: foldermon config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: foldermon system start [--config PATH]")
	fmt.Println("Start the worker supervisor in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: foldermon system status [--config PATH] [--json]")
	fmt.Println("Show config validity, PID lock state and worker readiness.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: foldermon config check [--config PATH] [--json]")
	fmt.Println("Validate configuration and worker executable.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: foldermon config show [--config PATH] [--json]")
	fmt.Println("Print the effective configuration with secrets masked.")
}

func printScanHelp() {
	fmt.Println("Usage: foldermon scan [--config PATH] [--json]")
	fmt.Println("Ask the worker for files changed since the previous scan.")
}

func printTUIHelp() {
	fmt.Println("Usage: foldermon tui [--config PATH]")
	fmt.Println("Launch the interactive dashboard with an in-process worker.")
}

// --- CONFIG ---

func resolveConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Service.StateDir, lockFileName)
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		if *jsonOut {
			res := &doctor.Result{Errors: []doctor.Issue{{Category: "config", Message: err.Error()}}}
			out, _ := doctor.FormatJSON(res)
			fmt.Println(out)
		} else {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		}
		return 1
	}

	res := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(res))
	}
	if !res.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *jsonOut {
		cp := *cfg
		if cp.API.Auth.APIKey != "" {
			cp.API.Auth.APIKey = "********"
		}
		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := cfg.Redacted()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Printf("# source: %s\n", cfg.SourcePath)
	fmt.Print(string(data))
	return 0
}

// --- SYSTEM ---

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{Healthy: true}
	add := func(c statusCheck) {
		if !c.OK {
			report.Healthy = false
		}
		report.Checks = append(report.Checks, c)
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		add(statusCheck{Name: "config", OK: false, Detail: err.Error()})
	} else {
		add(statusCheck{Name: "config", OK: true, Detail: cfg.SourcePath})

		res := doctor.New(cfg).Validate()
		detail := fmt.Sprintf("%d error(s), %d warning(s)", len(res.Errors), len(res.Warnings))
		add(statusCheck{Name: "doctor", OK: res.Valid, Detail: detail})

		// The lock is informational: a running supervisor is not a failure.
		lp := lockPath(cfg)
		if pid, err := lock.ReadPID(lp); err == nil && pid > 0 {
			add(statusCheck{Name: "pid_lock", OK: true, Detail: fmt.Sprintf("held by pid %d (%s)", pid, lp)})
		} else {
			add(statusCheck{Name: "pid_lock", OK: true, Detail: "not running"})
		}
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		ok := color.New(color.FgGreen).Sprint("ok")
		fail := color.New(color.FgRed).Sprint("FAIL")
		for _, c := range report.Checks {
			mark := ok
			if !c.OK {
				mark = fail
			}
			fmt.Printf("%-10s %-4s %s\n", c.Name, mark, c.Detail)
		}
	}
	if !report.Healthy {
		return 1
	}
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("foldermon starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(lockPath(cfg))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath(cfg), "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	hub := events.NewHub(256)
	sup := bridge.New(cfg,
		bridge.WithLogger(log.WithComponent("supervisor")),
		bridge.WithHub(hub),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start worker", "command", cfg.Worker.Command, "error", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*cfg.Worker.StopGrace+5*time.Second)
		defer stopCancel()
		if err := sup.Stop(stopCtx); err != nil {
			logger.Warn("worker stop", "error", err)
		}
	}()
	if err := sup.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		return 1
	}
	logger.Info("worker ready", "folders", len(sup.Folders()), "acks", cfg.Protocol.Acks)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, sup, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("foldermon running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("foldermon stopped")
	return 0
}

// --- ONE-SHOT COMMANDS ---

// withSupervisor runs fn against a freshly started worker and stops it
// afterwards. Logging goes to stderr at the configured level.
func withSupervisor(configPath string, opts []bridge.ClientOption, fn func(ctx context.Context, sup *bridge.Supervisor) error) int {
	cfg, err := resolveConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	sup := bridge.New(cfg,
		bridge.WithLogger(log.WithComponent("supervisor")),
		bridge.WithClientOptions(opts...),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start worker: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*cfg.Worker.StopGrace+5*time.Second)
		defer stopCancel()
		_ = sup.Stop(stopCtx)
	}()

	if _, err := sup.List(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list folders: %v\n", err)
		return 1
	}
	if err := fn(ctx, sup); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	return withSupervisor(*configPath, nil, func(ctx context.Context, sup *bridge.Supervisor) error {
		payload, err := sup.Scan(ctx)
		if err != nil {
			return err
		}
		items := bridge.ParseScanItems(payload)
		if *jsonOut {
			return printJSON(map[string]any{"items": nonNil(items)})
		}
		if len(items) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("no changes"))
			return nil
		}
		for _, item := range items {
			fmt.Println(item)
		}
		return nil
	})
}

func runFolderList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	return withSupervisor(*configPath, nil, func(ctx context.Context, sup *bridge.Supervisor) error {
		folders := sup.Folders()
		if *jsonOut {
			return printJSON(map[string]any{"folders": nonNil(folders)})
		}
		if len(folders) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("no folders monitored"))
			return nil
		}
		for _, f := range folders {
			fmt.Println(f)
		}
		return nil
	})
}

func runFolderAdd(args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: foldermon folder add [PATH]")
		return 1
	}

	var picker bridge.FolderPicker = bridge.PromptPicker{In: stdin, Out: os.Stdout}
	if fs.NArg() == 1 {
		abs, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
			return 1
		}
		picker = bridge.StaticPicker{Path: abs}
	}

	return withSupervisor(*configPath, []bridge.ClientOption{bridge.WithPicker(picker)}, func(ctx context.Context, sup *bridge.Supervisor) error {
		path, ok, err := sup.AddFolder(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("cancelled")
			return nil
		}
		fmt.Printf("%s %s\n", color.New(color.FgGreen).Sprint("added"), path)
		return nil
	})
}

func runFolderRemove(args []string) int {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: foldermon folder remove PATH")
		return 1
	}
	path := fs.Arg(0)

	return withSupervisor(*configPath, nil, func(ctx context.Context, sup *bridge.Supervisor) error {
		if err := sup.RemoveFolder(ctx, path); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", color.New(color.FgYellow).Sprint("removed"), path)
		return nil
	})
}

func runFolderReveal(args []string) int {
	fs := flag.NewFlagSet("reveal", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: foldermon folder reveal PATH")
		return 1
	}

	// Revealing needs no worker; the opener runs locally.
	client := bridge.NewClient(nil, nil, config.ProtocolConfig{}, log.WithComponent("cli"))
	if err := client.OpenInFileManager(context.Background(), fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// The TUI owns the terminal; logs would corrupt the screen.
	log.Setup("error", "json")

	hub := events.NewHub(256)
	sup := bridge.New(cfg,
		bridge.WithLogger(log.WithComponent("supervisor")),
		bridge.WithHub(hub),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start worker: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*cfg.Worker.StopGrace+5*time.Second)
		defer stopCancel()
		_ = sup.Stop(stopCtx)
	}()
	if err := sup.Bootstrap(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Bootstrap failed: %v\n", err)
		return 1
	}

	sub, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(tui.NewMonitor(sup, sub), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
