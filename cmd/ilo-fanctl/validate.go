package main

import (
	"fmt"
	"os"

	"github.com/fgeck/ilo-fanctl/internal/config"
	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/fgeck/ilo-fanctl/internal/services/fancurve"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without contacting any iLO.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Run period: %s\n", cfg.Interval)
	fmt.Printf("  Host timeout: %s\n", cfg.HostTimeout)
	if cfg.MaxConcurrency > 0 {
		fmt.Printf("  Max concurrency: %d\n", cfg.MaxConcurrency)
	} else {
		fmt.Println("  Max concurrency: unlimited")
	}
	fmt.Printf("  Verify TLS: %v\n", !cfg.Redfish.InsecureSkipVerify)
	if cfg.KnownHostsFile != "" {
		fmt.Printf("  Known hosts: %s\n", cfg.KnownHostsFile)
	} else {
		fmt.Println("  Known hosts: (any host key accepted)")
	}

	for i, target := range cfg.Targets {
		fmt.Println()
		fmt.Printf("Target %d:\n", i+1)
		fmt.Printf("  Host: %s\n", target.Host)
		fmt.Printf("  User: %s\n", target.User)
		fmt.Printf("  SSH port: %d\n", target.SSHPort)
		fmt.Printf("  Fans: %s\n", describeFans(target.Fans))
		fmt.Println("  Thresholds:")
		for _, r := range target.Thresholds {
			fmt.Printf("    %3d-%3d°C -> %3d%% (max %d)\n",
				r.MinTemp, r.MaxTemp, r.MaxSpeedPercent, fancurve.ScalePercent(r.MaxSpeedPercent))
		}
	}

	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Metrics: %v\n", cfg.Metrics != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Metrics != nil {
		fmt.Println()
		fmt.Println("Metrics Configuration:")
		fmt.Printf("  Listen: %s\n", cfg.Metrics.Listen)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if warnings := config.Lint(cfg); len(warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	return nil
}

func describeFans(fans models.FanTarget) string {
	switch f := fans.(type) {
	case models.FanCount:
		return fmt.Sprintf("%d (indices %v)", int(f), fancurve.Resolve(f))
	case models.FanList:
		return fmt.Sprintf("%v (indices %v)", []int(f), fancurve.Resolve(f))
	default:
		return "none"
	}
}
