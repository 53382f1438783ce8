package config

import (
	"errors"
	"fmt"

	"github.com/fgeck/ilo-fanctl/internal/models"
)

const (
	maxFanIndex = 255
	maxTemp     = 255
)

// Validate performs validation on the loaded configuration. All problems
// are reported together.
func Validate(cfg *models.FanControlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []error

	if cfg.Interval <= 0 {
		errs = append(errs, fmt.Errorf("run_period_seconds must be greater than 0"))
	}
	if cfg.HostTimeout < 0 {
		errs = append(errs, fmt.Errorf("host_timeout_seconds must not be negative"))
	}
	if cfg.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must not be negative"))
	}
	if len(cfg.Targets) == 0 {
		errs = append(errs, fmt.Errorf("at least one target is required"))
	}

	seen := make(map[string]int, len(cfg.Targets))
	for i, target := range cfg.Targets {
		if prev, ok := seen[target.Host]; ok && target.Host != "" {
			errs = append(errs, fmt.Errorf("targets[%d]: host %q already configured in targets[%d]", i, target.Host, prev))
		}
		seen[target.Host] = i

		for _, err := range validateTarget(target) {
			errs = append(errs, fmt.Errorf("targets[%d] (%s): %w", i, target.Host, err))
		}
	}

	if cfg.Telegram != nil && (cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "") {
		errs = append(errs, fmt.Errorf("telegram requires both bot_token and chat_id"))
	}

	return errors.Join(errs...)
}

func validateTarget(target models.HostTarget) []error {
	var errs []error

	if target.Host == "" {
		errs = append(errs, fmt.Errorf("host is required"))
	}
	if target.User == "" {
		errs = append(errs, fmt.Errorf("user is required"))
	}
	if target.SSHPort < 1 || target.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("ssh_port %d is out of range", target.SSHPort))
	}

	switch fans := target.Fans.(type) {
	case models.FanCount:
		if fans < 0 || fans > maxFanIndex+1 {
			errs = append(errs, fmt.Errorf("NumFans %d must be between 0 and %d", fans, maxFanIndex+1))
		}
	case models.FanList:
		used := make(map[int]bool, len(fans))
		for _, idx := range fans {
			if idx < 1 || idx > maxFanIndex+1 {
				errs = append(errs, fmt.Errorf("TargetFans index %d must be between 1 and %d", idx, maxFanIndex+1))
			}
			if used[idx] {
				errs = append(errs, fmt.Errorf("TargetFans index %d is listed more than once", idx))
			}
			used[idx] = true
		}
	default:
		errs = append(errs, fmt.Errorf("target_fans is required"))
	}

	if len(target.Thresholds) == 0 {
		errs = append(errs, fmt.Errorf("at least one temperature_fan_config entry is required"))
	}
	for j, r := range target.Thresholds {
		if r.MinTemp < 0 || r.MaxTemp > maxTemp || r.MinTemp > r.MaxTemp {
			errs = append(errs, fmt.Errorf("temperature_fan_config[%d]: need 0 <= min_temp (%d) <= max_temp (%d) <= %d",
				j, r.MinTemp, r.MaxTemp, maxTemp))
		}
		if r.MaxSpeedPercent < 0 || r.MaxSpeedPercent > 100 {
			errs = append(errs, fmt.Errorf("temperature_fan_config[%d]: max_fan_speed %d must be between 0 and 100", j, r.MaxSpeedPercent))
		}
	}

	return errs
}
