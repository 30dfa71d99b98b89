package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/belkagoyda/orex-workspace/internal/docmerge"
	"github.com/belkagoyda/orex-workspace/internal/web/repository"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old data (sessions, activity log, merge workspaces)",
	RunE:  runCleanup,
}

var (
	cleanupActivityDays int
	cleanupWorkspaceAge time.Duration
	cleanupDryRun       bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupActivityDays, "activity-days", 180, "Delete activity log entries older than N days")
	cleanupCmd.Flags().DurationVar(&cleanupWorkspaceAge, "workspace-age", time.Hour, "Remove merge workspaces older than this")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, database, err := openAppDB()
	if err != nil {
		return err
	}
	defer database.Close()

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	// Expired sessions
	if cleanupDryRun {
		fmt.Println("Expired sessions: skipped")
	} else {
		n, err := repository.NewSessionRepository(database.DB).DeleteExpired()
		if err != nil {
			return fmt.Errorf("failed to purge sessions: %w", err)
		}
		fmt.Printf("Expired sessions: %d deleted\n", n)
	}

	// Activity log
	activity := repository.NewActivityRepository(database.DB)
	cutoff := time.Now().AddDate(0, 0, -cleanupActivityDays)
	if cleanupDryRun {
		n, err := activity.CountBefore(cutoff)
		if err != nil {
			return fmt.Errorf("failed to count activity entries: %w", err)
		}
		fmt.Printf("Activity entries older than %d days: %d would be deleted\n", cleanupActivityDays, n)
	} else {
		n, err := activity.DeleteBefore(cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup activity log: %w", err)
		}
		fmt.Printf("Activity entries older than %d days: %d deleted\n", cleanupActivityDays, n)
	}

	// Merge workspaces
	if cleanupDryRun {
		fmt.Println("Merge workspaces: skipped")
	} else {
		n, err := docmerge.SweepWorkspaces(cfg.Templates.WorkDir, time.Now().Add(-cleanupWorkspaceAge))
		if err != nil {
			return fmt.Errorf("failed to sweep workspaces: %w", err)
		}
		fmt.Printf("Merge workspaces: %d removed\n", n)
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}
