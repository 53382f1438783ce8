// Package models contains the data structures used throughout ilo-fanctl.
package models

import "time"

// FanControlConfig holds the complete, validated daemon configuration.
type FanControlConfig struct {
	Interval       time.Duration
	HostTimeout    time.Duration
	MaxConcurrency int    // 0 means one unit per target with no limit
	KnownHostsFile string // empty accepts any host key
	Redfish        RedfishConfig
	Targets        []HostTarget
	Metrics        *MetricsConfig  // nil if not configured
	Telegram       *TelegramConfig // nil if not configured
}

// RedfishConfig holds telemetry client settings.
type RedfishConfig struct {
	InsecureSkipVerify bool
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	Listen string
}

// HostTarget is one managed iLO.
type HostTarget struct {
	Host       string
	User       string
	Password   Secret
	SSHPort    int
	Fans       FanTarget
	Thresholds []ThresholdRange
}

// ThresholdRange maps an inclusive temperature interval to a maximum fan speed percentage.
type ThresholdRange struct {
	MinTemp         int
	MaxTemp         int
	MaxSpeedPercent int
}

// Contains reports whether temp lies inside the range, bounds included.
func (r ThresholdRange) Contains(temp int) bool {
	return r.MinTemp <= temp && temp <= r.MaxTemp
}

// FanTarget selects the fans a host's commands address. It is either a
// FanCount or a FanList.
type FanTarget interface {
	isFanTarget()
}

// FanCount controls fans 0..n-1.
type FanCount int

// FanList controls exactly the listed fans, given 1-based.
type FanList []int

func (FanCount) isFanTarget() {}
func (FanList) isFanTarget()  {}
