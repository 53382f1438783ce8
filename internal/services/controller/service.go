// Package controller runs one control unit for a single iLO: read the
// temperature, pick a fan speed and apply it over SSH.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/fgeck/ilo-fanctl/internal/services/fancurve"
	"github.com/fgeck/ilo-fanctl/internal/services/redfish"
	"github.com/fgeck/ilo-fanctl/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Service defines the interface for a host's control unit.
type Service interface {
	Run(ctx context.Context, target models.HostTarget) models.ControlOutcome
}

// Options tune how commands are applied.
type Options struct {
	DryRun         bool // compute and log commands without connecting
	KnownHostsFile string
	SSHTimeout     time.Duration
}

// Impl implements the controller Service interface.
type Impl struct {
	telemetry redfish.Service
	remote    ssh.Service
	logger    zerolog.Logger
	opts      Options
}

// New creates a controller backed by the Redfish and SSH services.
func New(logger zerolog.Logger, cfg models.FanControlConfig, dryRun bool) *Impl {
	return &Impl{
		telemetry: redfish.New(logger, cfg.Redfish.InsecureSkipVerify),
		remote:    ssh.New(logger),
		logger:    logger,
		opts: Options{
			DryRun:         dryRun,
			KnownHostsFile: cfg.KnownHostsFile,
			SSHTimeout:     cfg.HostTimeout,
		},
	}
}

// NewWithServices creates a controller with custom services (for testing).
func NewWithServices(logger zerolog.Logger, telemetry redfish.Service, remote ssh.Service, opts Options) *Impl {
	return &Impl{
		telemetry: telemetry,
		remote:    remote,
		logger:    logger,
		opts:      opts,
	}
}

// Run executes the control unit for target. Every failure is reported in
// the outcome; Run itself never fails.
func (c *Impl) Run(ctx context.Context, target models.HostTarget) (outcome models.ControlOutcome) {
	start := time.Now()
	logger := c.logger.With().Str("host", target.Host).Logger()

	outcome = models.ControlOutcome{Host: target.Host, DryRun: c.opts.DryRun}
	defer func() { outcome.Duration = time.Since(start) }()

	// Step 1: telemetry
	reading, err := c.telemetry.FetchTemperature(ctx, target.Host, target.User, target.Password)
	if err != nil {
		return fail(outcome, models.CauseTelemetry, fmt.Errorf("failed to fetch temperature: %w", err))
	}
	outcome.Reading = reading

	maxTemp, ok := reading.MaxCPU()
	if !ok {
		return fail(outcome, models.CauseTelemetry, redfish.ErrNoCPUReadings)
	}
	outcome.MaxTemp = maxTemp

	// Step 2: commands
	speed, commands, matched := fancurve.Plan(target, maxTemp)
	outcome.Speed = speed
	outcome.Commands = commands
	outcome.Matched = matched

	if !matched {
		logger.Warn().
			Int("max_temp", maxTemp).
			Msg("no threshold range matches temperature, leaving fans unchanged")
		return outcome
	}

	if len(commands) == 0 {
		logger.Debug().Int("max_temp", maxTemp).Msg("no fans selected")
		return outcome
	}

	if c.opts.DryRun {
		logger.Info().
			Int("max_temp", maxTemp).
			Uint8("speed", speed).
			Strs("commands", commands).
			Msg("dry run, commands not sent")
		return outcome
	}

	// Step 3: connect
	session, err := c.remote.Connect(ctx, models.SSHTarget{
		Host:           target.Host,
		Port:           target.SSHPort,
		Username:       target.User,
		Password:       target.Password,
		Timeout:        c.opts.SSHTimeout,
		KnownHostsFile: c.opts.KnownHostsFile,
	})
	if err != nil {
		return fail(outcome, connectCause(err), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug().Err(err).Msg("failed to close SSH session")
		}
	}()

	// Step 4: execute
	outputs, err := session.Exec(ctx, commands)
	outcome.Outputs = outputs
	outcome.Executed = len(outputs)
	if err != nil {
		var execErr *ssh.ExecError
		if errors.As(err, &execErr) {
			outcome.Executed = execErr.Completed
		}
		return fail(outcome, models.CauseExecution, err)
	}

	logger.Info().
		Int("max_temp", maxTemp).
		Uint8("speed", speed).
		Int("executed", outcome.Executed).
		Msg("fan speed applied")

	return outcome
}

func fail(outcome models.ControlOutcome, cause models.FailureCause, err error) models.ControlOutcome {
	outcome.Cause = cause
	outcome.Error = err
	return outcome
}

func connectCause(err error) models.FailureCause {
	var connectErr *ssh.ConnectError
	if errors.As(err, &connectErr) && connectErr.Stage == ssh.StageAuth {
		return models.CauseAuthentication
	}
	return models.CauseConnectivity
}
