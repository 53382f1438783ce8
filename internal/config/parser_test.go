package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_LoadReader_MinimalConfig(t *testing.T) {
	content := `
run_period_seconds = 60

[[targets]]
host = "10.0.0.5"
user = "fanctl"
password = "secret"
target_fans = { NumFans = 7 }
temperature_fan_config = [
  { min_temp = 0, max_temp = 55, max_fan_speed = 20 },
  { min_temp = 56, max_temp = 100, max_fan_speed = 100 },
]
`
	parser := NewParser()
	cfg, err := parser.LoadReader(content)

	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Interval)
	require.Len(t, cfg.Targets, 1)

	target := cfg.Targets[0]
	assert.Equal(t, "10.0.0.5", target.Host)
	assert.Equal(t, "fanctl", target.User)
	assert.Equal(t, "secret", target.Password.Reveal())
	assert.Equal(t, models.FanCount(7), target.Fans)
	assert.Equal(t, []models.ThresholdRange{
		{MinTemp: 0, MaxTemp: 55, MaxSpeedPercent: 20},
		{MinTemp: 56, MaxTemp: 100, MaxSpeedPercent: 100},
	}, target.Thresholds)

	// Check defaults
	assert.Equal(t, 22, target.SSHPort)
	assert.Equal(t, 30*time.Second, cfg.HostTimeout)
	assert.Equal(t, 0, cfg.MaxConcurrency)
	assert.True(t, cfg.Redfish.InsecureSkipVerify)
	assert.Nil(t, cfg.Metrics)
	assert.Nil(t, cfg.Telegram)

	require.NoError(t, Validate(cfg))
}

func TestParser_LoadReader_FullConfig(t *testing.T) {
	content := `
run_period_seconds = 30
host_timeout_seconds = 10
max_concurrency = 4
known_hosts_file = "/etc/ilo-fanctl/known_hosts"

[redfish]
insecure_skip_verify = false

[metrics]
listen = ":9712"

[telegram]
bot_token = "123456:ABC-DEF"
chat_id = "-100123456789"

[[targets]]
host = "ilo1.lan"
user = "fanctl"
password_base64 = "c2VjcmV0"
ssh_port = 2222
target_fans = { TargetFans = [1, 3, 5] }
temperature_fan_config = [
  { min_temp = 0, max_temp = 30, max_fan_speed = 50 },
  { min_temp = 31, max_temp = 60, max_fan_speed = 75 },
  { min_temp = 61, max_temp = 85, max_fan_speed = 100 },
]

[[targets]]
host = "ilo2.lan"
user = "fanctl"
password = "other"
target_fans = { NumFans = 0 }
temperature_fan_config = [{ min_temp = 0, max_temp = 100, max_fan_speed = 30 }]
`
	parser := NewParser()
	cfg, err := parser.LoadReader(content)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 10*time.Second, cfg.HostTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "/etc/ilo-fanctl/known_hosts", cfg.KnownHostsFile)
	assert.False(t, cfg.Redfish.InsecureSkipVerify)

	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, ":9712", cfg.Metrics.Listen)

	require.NotNil(t, cfg.Telegram)
	assert.Equal(t, "123456:ABC-DEF", cfg.Telegram.BotToken)
	assert.Equal(t, "-100123456789", cfg.Telegram.ChatID)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "secret", cfg.Targets[0].Password.Reveal())
	assert.Equal(t, 2222, cfg.Targets[0].SSHPort)
	assert.Equal(t, models.FanList{1, 3, 5}, cfg.Targets[0].Fans)
	assert.Len(t, cfg.Targets[0].Thresholds, 3)
	assert.Equal(t, models.FanCount(0), cfg.Targets[1].Fans)

	require.NoError(t, Validate(cfg))
}

func TestParser_LoadReader_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ILO_PASSWORD", "from-env")
	t.Setenv("TEST_BOT_TOKEN", "bot-token")

	content := `
run_period_seconds = 60

[telegram]
bot_token = "${TEST_BOT_TOKEN}"
chat_id = "42"

[[targets]]
host = "ilo1"
user = "admin"
password = "${TEST_ILO_PASSWORD}"
target_fans = { NumFans = 1 }
temperature_fan_config = [{ min_temp = 0, max_temp = 100, max_fan_speed = 50 }]
`
	parser := NewParser()
	cfg, err := parser.LoadReader(content)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Targets[0].Password.Reveal())
	assert.Equal(t, "bot-token", cfg.Telegram.BotToken)
}

func TestParser_LoadReader_DollarInPasswordKept(t *testing.T) {
	content := `
run_period_seconds = 60

[[targets]]
host = "ilo1"
user = "admin"
password = "pa$$w0rd$HOME"
target_fans = { NumFans = 1 }
temperature_fan_config = [{ min_temp = 0, max_temp = 100, max_fan_speed = 50 }]
`
	parser := NewParser()
	cfg, err := parser.LoadReader(content)

	require.NoError(t, err)
	assert.Equal(t, "pa$$w0rd$HOME", cfg.Targets[0].Password.Reveal())
}

func TestParser_LoadReader_Errors(t *testing.T) {
	const thresholds = `temperature_fan_config = [{ min_temp = 0, max_temp = 100, max_fan_speed = 50 }]`

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing run period",
			content: "[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = { NumFans = 1 }\n" + thresholds,
			errMsg:  "run_period_seconds is required",
		},
		{
			name:    "no targets",
			content: "run_period_seconds = 60\n",
			errMsg:  "at least one [[targets]] entry is required",
		},
		{
			name:    "both passwords",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\npassword_base64 = \"cA==\"\ntarget_fans = { NumFans = 1 }\n" + thresholds,
			errMsg:  "mutually exclusive",
		},
		{
			name:    "invalid base64",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword_base64 = \"not base64!\"\ntarget_fans = { NumFans = 1 }\n" + thresholds,
			errMsg:  "password_base64 is not valid base64",
		},
		{
			name:    "missing fan target",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\n" + thresholds,
			errMsg:  "target_fans is required",
		},
		{
			name:    "both fan variants",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = { NumFans = 1, TargetFans = [1] }\n" + thresholds,
			errMsg:  "not both",
		},
		{
			name:    "empty fan target",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = {}\n" + thresholds,
			errMsg:  "must set NumFans or TargetFans",
		},
		{
			name:    "incomplete threshold",
			content: "run_period_seconds = 60\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = { NumFans = 1 }\ntemperature_fan_config = [{ min_temp = 0, max_temp = 100 }]\n",
			errMsg:  "temperature_fan_config[0]",
		},
		{
			name:    "metrics without listen",
			content: "run_period_seconds = 60\n[metrics]\nlisten = \"\"\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = { NumFans = 1 }\n" + thresholds,
			errMsg:  "metrics.listen is required",
		},
		{
			name:    "telegram without chat id",
			content: "run_period_seconds = 60\n[telegram]\nbot_token = \"t\"\n[[targets]]\nhost = \"a\"\nuser = \"u\"\npassword = \"p\"\ntarget_fans = { NumFans = 1 }\n" + thresholds,
			errMsg:  "telegram.chat_id is required",
		},
		{
			name:    "invalid toml",
			content: "run_period_seconds = = 60",
			errMsg:  "reading config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			_, err := parser.LoadReader(tt.content)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParser_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
run_period_seconds = 15

[[targets]]
host = "ilo1"
user = "admin"
password = "secret"
target_fans = { TargetFans = [2, 4] }
temperature_fan_config = [{ min_temp = 0, max_temp = 100, max_fan_speed = 40 }]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	parser := NewParser()
	cfg, err := parser.LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Interval)
	assert.Equal(t, models.FanList{2, 4}, cfg.Targets[0].Fans)
}

func TestParser_LoadFile_NotFound(t *testing.T) {
	parser := NewParser()
	_, err := parser.LoadFile("/nonexistent/config.toml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
