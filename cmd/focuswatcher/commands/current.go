package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
	"github.com/bryanchriswhite/FocusWatcher/internal/wayland"
	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the active window",
	Long: `Connect to the Wayland compositor, wait for the activated toplevel and
print it. Nothing is sent to the report server.`,
	Example: `  # Print the active window
  focuswatcher current

  # Print it as JSON
  focuswatcher current --format json`,
	RunE: runCurrent,
}

var (
	currentFormat  string
	currentTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(currentCmd)

	currentCmd.Flags().StringVarP(&currentFormat, "format", "f", "table", "output format (table or json)")
	currentCmd.Flags().DurationVarP(&currentTimeout, "timeout", "t", 2*time.Second, "how long to wait for an active window")
}

func runCurrent(cmd *cobra.Command, args []string) error {
	if currentFormat != "table" && currentFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", currentFormat)
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reporter, err := focus.Start(wayland.Connect, watcherOptions(cfg)...)
	if err != nil {
		if errors.Is(err, focus.ErrCapabilityMissing) {
			return fmt.Errorf("compositor does not support foreign toplevel management: %w", err)
		}
		return fmt.Errorf("failed to start window watcher: %w", err)
	}
	defer reporter.Close()

	active, ok := waitForActive(reporter, currentTimeout)
	if !ok {
		fmt.Println("No window is currently active")
		return nil
	}

	if currentFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(active)
	}

	fmt.Printf("App ID: %s\n", active.AppID)
	fmt.Printf("Title:  %s\n", active.Title)
	return nil
}

func waitForActive(reporter *focus.Reporter, timeout time.Duration) (focus.ActiveWindow, bool) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if active, ok := reporter.Poll(); ok {
			return active, true
		}
		select {
		case <-deadline:
			return focus.ActiveWindow{}, false
		case <-reporter.Done():
			return reporter.Poll()
		case <-ticker.C:
		}
	}
}
