package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type sampleFile struct {
	RunPeriodSeconds int            `toml:"run_period_seconds"`
	Targets          []sampleTarget `toml:"targets"`
}

type sampleTarget struct {
	Host                 string         `toml:"host"`
	User                 string         `toml:"user"`
	Password             string         `toml:"password"`
	TargetFans           map[string]int `toml:"target_fans,inline"`
	TemperatureFanConfig []sampleRange  `toml:"temperature_fan_config"`
}

type sampleRange struct {
	MinTemp     int `toml:"min_temp"`
	MaxTemp     int `toml:"max_temp"`
	MaxFanSpeed int `toml:"max_fan_speed"`
}

func sampleHost(host string) sampleTarget {
	return sampleTarget{
		Host:       host,
		User:       "USERNAME",
		Password:   "PASSWORD",
		TargetFans: map[string]int{"NumFans": 7},
		TemperatureFanConfig: []sampleRange{
			{MinTemp: 0, MaxTemp: 55, MaxFanSpeed: 20},
			{MinTemp: 55, MaxTemp: 60, MaxFanSpeed: 40},
			{MinTemp: 61, MaxTemp: 70, MaxFanSpeed: 70},
			{MinTemp: 71, MaxTemp: 100, MaxFanSpeed: 100},
		},
	}
}

// Sample renders a starter configuration. dual adds a second target.
func Sample(dual bool) ([]byte, error) {
	sample := sampleFile{
		RunPeriodSeconds: 60,
		Targets:          []sampleTarget{sampleHost("ILO_HOST_NAME_OR_IP_ADDRESS")},
	}
	if dual {
		sample.Targets = append(sample.Targets, sampleHost("ILO_HOST2_NAME_OR_IP_ADDRESS"))
	}

	data, err := toml.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("encoding sample config: %w", err)
	}
	return data, nil
}

// WriteSample writes the starter configuration to path. An existing file is
// never overwritten.
func WriteSample(path string, dual bool) error {
	data, err := Sample(dual)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
