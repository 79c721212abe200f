package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags
var Version = "dev"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "focuswatcher",
		Short: "FocusWatcher - Report the active Wayland window",
		Long: `FocusWatcher follows the activated toplevel on wlroots based Wayland
compositors through the foreign toplevel management protocol and reports it
as heartbeats to an ActivityWatch compatible server.

Features:
  • Track the activated window on its own protocol thread
  • Coalesce focus changes and resend the last known window every tick
  • Bounded sends so a slow server never stalls tracking
  • Persistent configuration with live log level reload
  • Optional local status API with a WebSocket stream`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/focuswatcher/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
