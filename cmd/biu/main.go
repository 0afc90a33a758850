// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command biu is a content-aware, incremental, deduplicating backup tool.
// It snapshots one or more source trees into a local repository, sharing
// unchanged file content across snapshots via hard links, and collapsing
// duplicate content across snapshots via a cuckoo-filter-gated dedup pass.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/strongdm/biu/internal/config"
	"github.com/strongdm/biu/internal/dedup"
	"github.com/strongdm/biu/internal/effects"
	"github.com/strongdm/biu/internal/flow"
	"github.com/strongdm/biu/internal/index"
	"github.com/strongdm/biu/internal/repo"
	"github.com/strongdm/biu/internal/retentionplan"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backup":
		err = runBackup(os.Args[2:])
	case "cleanup":
		err = runCleanup(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "[biu] %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: biu <backup|cleanup|verify|list> [flags]")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runBackup(args []string) error {
	defaults := config.Load()

	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	backupPath := fs.String("backup-path", "", "repository root directory")
	var sourcePaths stringList
	fs.Var(&sourcePaths, "source-paths", "source directory to back up (repeatable)")
	initialize := fs.Bool("initialize", false, "create the repository if it does not yet exist")
	retentionPlanFlag := fs.String("retention-plan", defaults.RetentionPlan, "retention plan, e.g. 7*1d,4*1w (applied after backup)")
	forceDelete := fs.Int("force-delete", defaults.ForceDeleteFloor, "minimum number of snapshots that must remain eligible for deletion")
	preserveMtime := fs.Bool("preserve-mtime", false, "require matching mtimes before deduplicating two files")
	deepCompare := fs.Bool("deep-compare", false, "byte-compare candidates before deduplicating, on top of hash+size equality")
	minBytes := fs.Uint64("min-bytes-for-dedup", defaults.MinBytesForDedup, "skip dedup entirely if the new snapshot wrote fewer bytes than this")
	verbose := fs.Bool("verbose", false, "enable verbose narration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *backupPath == "" {
		return errors.New("backup: --backup-path is required")
	}
	if len(sourcePaths) == 0 {
		return errors.New("backup: at least one --source-paths is required")
	}

	fx := effects.NewOSFS(*verbose)

	st, err := flow.Backup(fx, flow.BackupOptions{
		BackupPath:  *backupPath,
		SourcePaths: sourcePaths,
		Initialize:  *initialize,
		Dedup: dedup.Options{
			PreserveMtime:    *preserveMtime,
			DeepCompare:      *deepCompare,
			MinBytesForDedup: *minBytes,
		},
	})
	if err != nil {
		return err
	}
	slog.Info("[biu] backup complete",
		"writes", st.NumWrites, "hardlinks", st.NumHardlinks, "deletes", st.NumDeletes,
		"bytes_written", st.BytesWritten)

	if strings.TrimSpace(*retentionPlanFlag) != "" {
		plan, err := retentionplan.Parse(*retentionPlanFlag)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if err := flow.Cleanup(fx, flow.CleanupOptions{
			BackupPath:       *backupPath,
			Plan:             plan,
			ForceDeleteFloor: *forceDelete,
		}); err != nil {
			return err
		}
	}
	return nil
}

func runCleanup(args []string) error {
	defaults := config.Load()

	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	backupPath := fs.String("backup-path", "", "repository root directory")
	retentionPlanFlag := fs.String("retention-plan", defaults.RetentionPlan, "retention plan, e.g. 7*1d,4*1w")
	forceDelete := fs.Int("force-delete", defaults.ForceDeleteFloor, "minimum number of snapshots that must remain eligible for deletion")
	verbose := fs.Bool("verbose", false, "enable verbose narration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *backupPath == "" {
		return errors.New("cleanup: --backup-path is required")
	}

	plan, err := retentionplan.Parse(*retentionPlanFlag)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fx := effects.NewOSFS(*verbose)
	return flow.Cleanup(fx, flow.CleanupOptions{
		BackupPath:       *backupPath,
		Plan:             plan,
		ForceDeleteFloor: *forceDelete,
	})
}

// runVerify is a stub: spec.md explicitly lists "no repair or integrity
// verification pass" as a Non-goal, so there is no real verify engine to
// call here. The subcommand still parses its flags and reports a clear,
// structured error rather than silently doing nothing, matching the
// ambient error-reporting convention the rest of the CLI uses.
func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	backupPath := fs.String("backup-path", "", "repository root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *backupPath == "" {
		return errors.New("verify: --backup-path is required")
	}
	slog.Info("[biu] verify requested but not implemented", "backup_path", *backupPath)
	return errors.New("verify: not implemented (integrity verification is out of scope)")
}

// runList prints the repository's snapshots, newest last, using the
// derived index cache (internal/index) so large repositories don't pay
// for a fresh stats-sidecar read on every invocation.
func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	backupPath := fs.String("backup-path", "", "repository root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *backupPath == "" {
		return errors.New("list: --backup-path is required")
	}

	r, err := repo.OpenExisting(*backupPath)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	cachePath := filepath.Join(r.Path(), index.FileName)
	idx, err := index.BuildOrLoad(cachePath, r.Snapshots())
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	for _, s := range r.Snapshots() {
		name := filepath.Base(s.Path())
		entry := idx[name]
		fmt.Printf("%s\t%s\tstats=%v\n", name, time.Unix(entry.CreationUnix, 0).Local().Format(time.RFC3339), entry.HasStats)
	}
	return nil
}
