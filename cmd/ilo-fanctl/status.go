package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/fgeck/ilo-fanctl/internal/services/redfish"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	statusHost          string
	statusUser          string
	statusPassword      string
	statusNoInteractive bool
	statusVerifyTLS     bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current temperatures and fan readings",
	Long: `Read the thermal state of one iLO (--host/--user/--password) or of
every target in --config. Missing connection details are prompted for
unless --no-interactive is set.`,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusHost, "host", "", "iLO host name or address")
	statusCmd.Flags().StringVar(&statusUser, "user", "", "iLO user")
	statusCmd.Flags().StringVar(&statusPassword, "password", "", "iLO password (prompted if empty)")
	statusCmd.Flags().BoolVar(&statusNoInteractive, "no-interactive", false, "fail instead of prompting for missing values")
	statusCmd.Flags().BoolVar(&statusVerifyTLS, "verify-tls", false, "verify the iLO certificate")
}

type statusTarget struct {
	host     string
	user     string
	password models.Secret
}

func showStatus(cmd *cobra.Command, args []string) error {
	targets, insecure, err := statusTargets()
	if err != nil {
		log.Error().Err(err).Msg("missing connection details")
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := redfish.New(log.Logger, insecure)

	var failed int
	for _, t := range targets {
		log.Info().Str("host", t.host).Str("user", t.user).Msg("reading thermal status")

		fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
		reading, err := svc.FetchTemperature(fetchCtx, t.host, t.user, t.password)
		fetchCancel()
		if err != nil {
			log.Error().Err(err).Str("host", t.host).Msg("failed to read thermal status")
			failed++
			continue
		}
		printReading(t.host, reading)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d hosts: %w", failed, len(targets), errHostsFailed)
	}
	return nil
}

// statusTargets resolves hosts from flags, the config file or prompts.
func statusTargets() ([]statusTarget, bool, error) {
	if statusHost == "" && configFile != "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, false, err
		}
		targets := make([]statusTarget, 0, len(cfg.Targets))
		for _, t := range cfg.Targets {
			targets = append(targets, statusTarget{host: t.Host, user: t.User, password: t.Password})
		}
		return targets, cfg.Redfish.InsecureSkipVerify, nil
	}

	t := statusTarget{host: statusHost, user: statusUser, password: models.Secret(statusPassword)}

	if statusNoInteractive {
		if t.host == "" || t.user == "" || t.password == "" {
			return nil, false, fmt.Errorf("--host, --user and --password are required with --no-interactive")
		}
		return []statusTarget{t}, !statusVerifyTLS, nil
	}

	p := newPrompter()
	var err error
	if t.host == "" {
		if t.host, err = p.line("iLO host"); err != nil {
			return nil, false, err
		}
	}
	if t.user == "" {
		if t.user, err = p.line("iLO user"); err != nil {
			return nil, false, err
		}
	}
	if t.password == "" {
		if t.password, err = p.password("iLO password"); err != nil {
			return nil, false, err
		}
	}

	return []statusTarget{t}, !statusVerifyTLS, nil
}

func printReading(host string, reading *models.TemperatureReading) {
	maxTemp, _ := reading.MaxCPU()

	fmt.Println()
	fmt.Printf("%s:\n", host)
	fmt.Printf("  Inlet: %d°C\n", reading.Inlet)
	for _, cpu := range reading.CPUs {
		if cpu.UpperCritical > 0 {
			fmt.Printf("  CPU %d: %d°C (critical %d°C)\n", cpu.ID, cpu.Celsius, cpu.UpperCritical)
		} else {
			fmt.Printf("  CPU %d: %d°C\n", cpu.ID, cpu.Celsius)
		}
	}
	fmt.Printf("  Hottest CPU: %d°C\n", maxTemp)
	fmt.Printf("  Critical reached: %v\n", reading.CriticalReached)
	fmt.Println("  Fans:")
	for _, fan := range reading.Fans {
		fmt.Printf("    %s: %d%% (%s)\n", fan.Name, fan.Percent, fan.Health)
	}
}
