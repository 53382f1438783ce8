package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/ilo-fanctl/internal/config"
	"github.com/fgeck/ilo-fanctl/internal/services/metrics"
	"github.com/fgeck/ilo-fanctl/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runOnce bool
	dryRun  bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the fan control loop",
	Long: `Poll every configured iLO and apply fan speeds:
1. Read CPU temperatures over Redfish
2. Pick the first threshold range containing the hottest CPU
3. Send "fan p <n> max <v>" for every target fan over SSH
4. Repeat every run_period_seconds until SIGINT/SIGTERM

Hosts are handled concurrently; a failing host never blocks the others.
With --once a single cycle runs and the exit code is 2 if any host failed.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	daemonCmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and log commands without sending them")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, warning := range config.Lint(cfg) {
		log.Warn().Msg(warning)
	}

	log.Info().
		Str("config", configFile).
		Int("hosts", len(cfg.Targets)).
		Dur("interval", cfg.Interval).
		Bool("dry_run", dryRun).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics != nil {
		listener, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			log.Error().Err(err).Str("listen", cfg.Metrics.Listen).Msg("failed to start metrics exporter")
			return fmt.Errorf("metrics listener: %w", err)
		}

		exporter := metrics.New(log.Logger)
		go func() {
			if err := exporter.Serve(ctx, listener); err != nil {
				log.Error().Err(err).Msg("metrics exporter stopped")
			}
		}()
		recorder = exporter
	}

	runnerSvc := runner.New(log.Logger, *cfg, dryRun, recorder)

	if runOnce {
		result := runnerSvc.RunOnce(ctx, *cfg)
		if failed := result.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d hosts: %w", len(failed), len(result.Outcomes), errHostsFailed)
		}
		return nil
	}

	return runnerSvc.Run(ctx, *cfg)
}
