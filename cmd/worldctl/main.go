// Command worldctl operates on a voxelkeep world directory from outside
// a running server: offline validation, on-demand backups, and restore.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ocharnyshevich/voxelkeep/internal/storage"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "validate":
		err = runValidate(log, os.Args[2:])
	case "backup":
		err = runBackup(log, os.Args[2:])
	case "restore":
		err = runRestore(log, os.Args[2:])
	case "backup-pull":
		err = runBackupPull(ctx, log, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: worldctl <validate|backup|restore|backup-pull> [flags]")
}

func runValidate(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	worldDir := fs.String("world-dir", "world", "world directory to validate")
	attemptRecover := fs.Bool("recover", false, "attempt non-destructive recovery if corruption is found")
	if err := fs.Parse(args); err != nil {
		return err
	}

	diags := storage.Validate(*worldDir)
	for _, d := range diags {
		log.Warn("diagnostic", "path", d.Path, "severity", d.Severity, "message", d.Message)
	}

	if !storage.HasCorruption(diags) {
		log.Info("world is healthy", "world_dir", *worldDir)
		return nil
	}

	log.Warn("corruption detected", "world_dir", *worldDir, "count", len(diags))
	if !*attemptRecover {
		return fmt.Errorf("validate: corruption found, pass -recover to attempt repair")
	}

	return storage.Recover(log, *worldDir, diags)
}

func runBackup(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	worldDir := fs.String("world-dir", "world", "world directory to snapshot")
	worldName := fs.String("name", "world", "world name, used in the backup directory name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	info, err := storage.Snapshot(*worldDir, *worldName, time.Now())
	if err != nil {
		return err
	}

	log.Info("backup created", "path", info.Path, "run_id", info.RunID)
	return nil
}

func runRestore(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	worldDir := fs.String("world-dir", "world", "world directory to restore into")
	backupPath := fs.String("backup-path", "", "path to the backup snapshot directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *backupPath == "" {
		return fmt.Errorf("restore: -backup-path is required")
	}

	if err := storage.Restore(*backupPath, *worldDir); err != nil {
		return err
	}

	log.Info("restored world from backup", "world_dir", *worldDir, "backup_path", *backupPath)
	return nil
}

func runBackupPull(ctx context.Context, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backup-pull", flag.ExitOnError)
	worldDir := fs.String("world-dir", "world", "world directory whose backups/ receives the pulled snapshot")
	src := fs.String("source", "", "remote location go-getter can fetch (git, S3, HTTP, local path)")
	name := fs.String("name", "", "destination subdirectory name under backups/")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *src == "" || *name == "" {
		return fmt.Errorf("backup-pull: -source and -name are required")
	}

	dest, err := storage.Pull(ctx, *src, *worldDir, *name)
	if err != nil {
		return err
	}

	log.Info("pulled remote backup", "source", *src, "dest", filepath.Clean(dest))
	return nil
}
