// Package runner orchestrates control cycles across all configured hosts.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/fgeck/ilo-fanctl/internal/services/controller"
	"github.com/fgeck/ilo-fanctl/internal/services/metrics"
	"github.com/fgeck/ilo-fanctl/internal/services/telegram"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service defines the interface for the cycle runner.
type Service interface {
	RunCycle(ctx context.Context, targets []models.HostTarget) models.CycleResult
	RunOnce(ctx context.Context, cfg models.FanControlConfig) models.CycleResult
	Run(ctx context.Context, cfg models.FanControlConfig) error
}

// Options bound the work of a single cycle.
type Options struct {
	HostTimeout    time.Duration // 0 disables the per-host deadline
	MaxConcurrency int           // 0 runs every host at once
}

// Impl implements the runner Service interface.
type Impl struct {
	controller  controller.Service
	recorder    metrics.Recorder
	telegramSvc telegram.Service
	logger      zerolog.Logger
	opts        Options
}

// New creates a new runner for cfg.
func New(logger zerolog.Logger, cfg models.FanControlConfig, dryRun bool, recorder metrics.Recorder) *Impl {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Impl{
		controller:  controller.New(logger, cfg, dryRun),
		recorder:    recorder,
		telegramSvc: telegram.New(logger),
		logger:      logger,
		opts: Options{
			HostTimeout:    cfg.HostTimeout,
			MaxConcurrency: cfg.MaxConcurrency,
		},
	}
}

// NewWithServices creates a new runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	ctrl controller.Service,
	recorder metrics.Recorder,
	telegramSvc telegram.Service,
	opts Options,
) *Impl {
	return &Impl{
		controller:  ctrl,
		recorder:    recorder,
		telegramSvc: telegramSvc,
		logger:      logger,
		opts:        opts,
	}
}

// RunCycle runs one control unit per target concurrently and waits for
// all of them. Outcomes are returned in target order; a failing or
// panicking unit only affects its own outcome.
func (s *Impl) RunCycle(ctx context.Context, targets []models.HostTarget) models.CycleResult {
	start := time.Now()
	outcomes := make([]models.ControlOutcome, len(targets))

	var g errgroup.Group
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			outcomes[i] = s.runHost(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	return models.CycleResult{
		StartTime: start,
		Duration:  time.Since(start),
		Outcomes:  outcomes,
	}
}

func (s *Impl) runHost(ctx context.Context, target models.HostTarget) (outcome models.ControlOutcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("host", target.Host).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("control unit panicked")
			outcome = models.ControlOutcome{
				Host:     target.Host,
				Cause:    models.CauseFatal,
				Error:    fmt.Errorf("control unit panicked: %v", r),
				Duration: time.Since(start),
			}
		}
	}()

	if s.opts.HostTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.HostTimeout)
		defer cancel()
	}

	return s.controller.Run(ctx, target)
}

// RunOnce runs a cycle over cfg.Targets and reports it through logs,
// metrics and, when configured, Telegram.
func (s *Impl) RunOnce(ctx context.Context, cfg models.FanControlConfig) models.CycleResult {
	result := s.RunCycle(ctx, cfg.Targets)
	s.report(ctx, cfg, result)
	return result
}

// Run polls all hosts immediately and then every cfg.Interval until ctx is done.
func (s *Impl) Run(ctx context.Context, cfg models.FanControlConfig) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("invalid interval %s", cfg.Interval)
	}

	s.logger.Info().
		Int("hosts", len(cfg.Targets)).
		Dur("interval", cfg.Interval).
		Msg("starting fan control loop")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx, cfg)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("fan control loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Impl) report(ctx context.Context, cfg models.FanControlConfig, result models.CycleResult) {
	for _, o := range result.Outcomes {
		if o.Succeeded() {
			s.logger.Debug().
				Str("host", o.Host).
				Str("result", o.Label()).
				Int("max_temp", o.MaxTemp).
				Int("executed", o.Executed).
				Dur("duration", o.Duration).
				Msg("host finished")
			continue
		}
		s.logger.Error().
			Err(o.Error).
			Str("host", o.Host).
			Str("cause", string(o.Cause)).
			Int("executed", o.Executed).
			Dur("duration", o.Duration).
			Msg("host failed")
	}

	failed := len(result.Failed())
	s.logger.Info().
		Int("hosts", len(result.Outcomes)).
		Int("failed", failed).
		Int("critical", len(result.Critical())).
		Dur("duration", result.Duration).
		Msg("cycle completed")

	s.recorder.ObserveCycle(result)

	if cfg.Telegram == nil || ctx.Err() != nil {
		return
	}
	msg, ok := telegram.NewMessage(result)
	if !ok {
		return
	}
	s.sendNotification(ctx, *cfg.Telegram, msg)
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) {
	result, err := s.telegramSvc.SendNotification(ctx, cfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
