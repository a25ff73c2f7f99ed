// Command foldermon-worker is the reference worker. It reads commands on
// stdin, answers with tagged frames on stdout and logs to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattjoyce/foldermon/internal/log"
	"github.com/mattjoyce/foldermon/internal/monitor"
	"github.com/mattjoyce/foldermon/internal/scan"
	"github.com/mattjoyce/foldermon/internal/state"
	"github.com/mattjoyce/foldermon/internal/storage"
)

const envDBPath = "FOLDERMON_WORKER_DB"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("foldermon-worker", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to the SQLite folder and file index")
	acks := fs.Bool("acks", false, "Answer add/remove with ADD_OK/REMOVE_OK frames")
	hidden := fs.Bool("hidden", false, "Include dot files and directories in scans")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "json", "Log format: json, text, auto")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log.Setup(*logLevel, *logFormat)
	logger := log.WithComponent("worker")

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, *dbPath)
	if err != nil {
		logger.Error("failed to open index", "path", *dbPath, "error", err)
		return 1
	}
	defer db.Close()

	var scanOpts []scan.Option
	if *hidden {
		scanOpts = append(scanOpts, scan.WithHidden())
	}
	srv := monitor.New(
		state.NewFolderStore(db),
		scan.New(state.NewFileIndex(db), log.WithComponent("scan"), scanOpts...),
		monitor.WithAcks(*acks),
		monitor.WithLogger(logger),
	)

	// SIGTERM stops reading commands; the one in progress still completes
	// and the index is closed on the way out.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker ready", "db", *dbPath, "acks", *acks, "pid", os.Getpid())
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("worker stopped", "error", err)
		return 1
	}
	if ctx.Err() != nil {
		logger.Info("received shutdown signal, exiting")
		return 0
	}
	logger.Info("stdin closed, exiting")
	return 0
}

func defaultDBPath() string {
	if p := os.Getenv(envDBPath); p != "" {
		return p
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "foldermon", "index.db")
	}
	return fmt.Sprintf("foldermon-index-%d.db", os.Getuid())
}
