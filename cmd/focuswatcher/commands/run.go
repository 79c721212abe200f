package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/api"
	"github.com/bryanchriswhite/FocusWatcher/internal/config"
	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/bryanchriswhite/FocusWatcher/internal/report"
	"github.com/bryanchriswhite/FocusWatcher/internal/wayland"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const watcherExitTimeout = time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the active window and report it",
	Long: `Connect to the Wayland compositor, follow the activated toplevel and send
it to the report server once per poll interval until interrupted.`,
	Example: `  # Report to a local ActivityWatch server
  focuswatcher run

  # Report with debug logging
  focuswatcher run --log-level debug

  # Also serve the status API on localhost:5680
  FOCUSWATCHER_STATUS_ENABLED=true focuswatcher run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loadConfig opens the config manager and initializes logging from it,
// honouring the --log-level flag
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	cfg := configMgr.Get()
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

func watcherOptions(cfg *config.Config, extra ...focus.Option) []focus.Option {
	opts := []focus.Option{
		focus.WithRelayCapacity(cfg.Watcher.RelayCapacity),
		focus.WithDispatchInterval(cfg.Watcher.DispatchInterval),
		focus.WithSendTimeout(cfg.Reporter.SendTimeout),
		focus.WithIterationTimeout(cfg.Reporter.IterationTimeout),
	}
	return append(opts, extra...)
}

func runRun(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("main")

	flagLevel := viper.GetString("log_level")
	configMgr.Watch(func(c *config.Config) {
		if flagLevel == "" {
			logger.SetLevel(c.LogLevel)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := report.NewClient(report.Config{
		ServerURL: cfg.Report.ServerURL,
		BucketID:  cfg.Report.BucketID,
		Hostname:  cfg.Report.Hostname,
		PulseTime: cfg.Report.PulseTime,
		RetryMax:  cfg.Report.RetryMax,
	})

	bucketCtx, cancel := context.WithTimeout(ctx, cfg.Reporter.IterationTimeout)
	if err := client.EnsureBucket(bucketCtx); err != nil {
		log.Warn().Err(err).
			Str("server_url", cfg.Report.ServerURL).
			Msg("Could not create bucket, heartbeats may be rejected until the server is up")
	}
	cancel()

	tracker := api.NewTracker()
	reporter, err := focus.Start(wayland.Connect, watcherOptions(cfg, focus.WithObserver(tracker.Observe))...)
	if err != nil {
		return fmt.Errorf("failed to start window watcher: %w", err)
	}

	log.Info().
		Str("bucket_id", client.BucketID()).
		Dur("poll_interval", cfg.Reporter.PollInterval).
		Msg("FocusWatcher is running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reporter.Run(gctx, client, cfg.Reporter.PollInterval)
	})

	if cfg.Status.Enabled {
		server := api.NewServer(tracker, configMgr, Version)
		addr := net.JoinHostPort(cfg.Status.Host, strconv.Itoa(cfg.Status.Port))
		g.Go(func() error {
			if err := server.Start(addr); err != nil {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	log.Info().Msg("Shutting down")
	reporter.Close()
	select {
	case <-reporter.Done():
	case <-time.After(watcherExitTimeout):
		log.Warn().Dur("timeout", watcherExitTimeout).Msg("Window watcher did not exit in time")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
