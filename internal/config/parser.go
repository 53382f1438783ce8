// Package config provides configuration file parsing.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/spf13/viper"
)

const (
	defaultHostTimeout = 30 * time.Second
	defaultSSHPort     = 22
)

// envRef matches ${NAME}. Bare $ is left alone since iLO passwords may contain it.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("host_timeout_seconds", int(defaultHostTimeout/time.Second))
	v.SetDefault("max_concurrency", 0)
	v.SetDefault("redfish.insecure_skip_verify", true)
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.FanControlConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.FanControlConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

type rawTarget struct {
	Host           string         `mapstructure:"host"`
	User           string         `mapstructure:"user"`
	Password       string         `mapstructure:"password"`
	PasswordBase64 string         `mapstructure:"password_base64"`
	SSHPort        int            `mapstructure:"ssh_port"`
	TargetFans     *rawFanTarget  `mapstructure:"target_fans"`
	Thresholds     []rawThreshold `mapstructure:"temperature_fan_config"`
}

type rawFanTarget struct {
	NumFans    *int  `mapstructure:"NumFans"`
	TargetFans []int `mapstructure:"TargetFans"`
}

type rawThreshold struct {
	MinTemp     *int `mapstructure:"min_temp"`
	MaxTemp     *int `mapstructure:"max_temp"`
	MaxFanSpeed *int `mapstructure:"max_fan_speed"`
}

func (p *Parser) parse() (*models.FanControlConfig, error) {
	if !p.v.IsSet("run_period_seconds") {
		return nil, fmt.Errorf("run_period_seconds is required")
	}

	cfg := &models.FanControlConfig{
		Interval:       time.Duration(p.v.GetInt("run_period_seconds")) * time.Second,
		HostTimeout:    time.Duration(p.v.GetInt("host_timeout_seconds")) * time.Second,
		MaxConcurrency: p.v.GetInt("max_concurrency"),
		KnownHostsFile: p.expandEnv(p.v.GetString("known_hosts_file")),
		Redfish: models.RedfishConfig{
			InsecureSkipVerify: p.v.GetBool("redfish.insecure_skip_verify"),
		},
	}

	// Parse targets (required).
	var rawTargets []rawTarget
	if err := p.v.UnmarshalKey("targets", &rawTargets); err != nil {
		return nil, fmt.Errorf("parsing targets: %w", err)
	}
	if len(rawTargets) == 0 {
		return nil, fmt.Errorf("at least one [[targets]] entry is required")
	}

	for i, raw := range rawTargets {
		target, err := p.parseTarget(raw)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	// Parse optional metrics config.
	if p.v.IsSet("metrics") {
		cfg.Metrics = &models.MetricsConfig{
			Listen: p.v.GetString("metrics.listen"),
		}

		if cfg.Metrics.Listen == "" {
			return nil, fmt.Errorf("metrics.listen is required when metrics is configured")
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

func (p *Parser) parseTarget(raw rawTarget) (models.HostTarget, error) {
	target := models.HostTarget{
		Host:    raw.Host,
		User:    p.expandEnv(raw.User),
		SSHPort: raw.SSHPort,
	}

	if target.SSHPort == 0 {
		target.SSHPort = defaultSSHPort
	}

	// Exactly one password representation.
	switch {
	case raw.Password != "" && raw.PasswordBase64 != "":
		return target, fmt.Errorf("password and password_base64 are mutually exclusive")
	case raw.PasswordBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(p.expandEnv(raw.PasswordBase64)))
		if err != nil {
			return target, fmt.Errorf("password_base64 is not valid base64")
		}
		target.Password = models.Secret(decoded)
	default:
		target.Password = models.Secret(p.expandEnv(raw.Password))
	}

	// Exactly one fan target variant.
	if raw.TargetFans == nil {
		return target, fmt.Errorf("target_fans is required")
	}
	switch {
	case raw.TargetFans.NumFans != nil && raw.TargetFans.TargetFans != nil:
		return target, fmt.Errorf("target_fans must set either NumFans or TargetFans, not both")
	case raw.TargetFans.NumFans != nil:
		target.Fans = models.FanCount(*raw.TargetFans.NumFans)
	case raw.TargetFans.TargetFans != nil:
		target.Fans = models.FanList(raw.TargetFans.TargetFans)
	default:
		return target, fmt.Errorf("target_fans must set NumFans or TargetFans")
	}

	for j, r := range raw.Thresholds {
		if r.MinTemp == nil || r.MaxTemp == nil || r.MaxFanSpeed == nil {
			return target, fmt.Errorf("temperature_fan_config[%d]: min_temp, max_temp and max_fan_speed are required", j)
		}
		target.Thresholds = append(target.Thresholds, models.ThresholdRange{
			MinTemp:         *r.MinTemp,
			MaxTemp:         *r.MaxTemp,
			MaxSpeedPercent: *r.MaxFanSpeed,
		})
	}

	return target, nil
}

// expandEnv expands environment variables in the format ${VAR}.
func (p *Parser) expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}
