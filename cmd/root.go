package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcus/lk/internal/config"
	"github.com/marcus/lk/internal/models"
)

var (
	version string
	baseDir string

	jsonOut bool
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "lk",
	Short: "Manage smart lock access codes from the terminal",
	Long: `lk - Manage the user code slots of a smart lock through its home hub.

Codes are cached locally so names, schedules, and in-flight edits survive hub
restarts; lk reconciles the cache against what the lock actually holds and
shows per-slot sync state.`,
}

// Execute runs the root command
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initBaseDir)

	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().StringVar(&baseDir, "config-dir", "", "config directory (default: user config dir)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "codes", Title: "Code Commands:"},
		&cobra.Group{ID: "slots", Title: "Slot Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

func initBaseDir() {
	if baseDir != "" {
		return
	}
	dir, err := config.DefaultDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot determine config directory: %v\n", err)
		os.Exit(1)
	}
	baseDir = dir
}

// getBaseDir returns the lk config directory
func getBaseDir() string {
	return baseDir
}

// parseSlot parses and range-checks a slot argument.
func parseSlot(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q", arg)
	}
	if !models.ValidSlot(n) {
		return 0, fmt.Errorf("slot %d out of range 1-%d", n, models.MaxSlots)
	}
	return n, nil
}
