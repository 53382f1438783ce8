// Package fancurve turns CPU temperatures into iLO fan commands.
package fancurve

import (
	"fmt"

	"github.com/fgeck/ilo-fanctl/internal/models"
)

// MaxControlValue is the control value written for a 100% fan speed.
const MaxControlValue = 255

// SpeedFor returns the control value of the first range that contains temp.
// ok is false when temp falls outside every range.
func SpeedFor(ranges []models.ThresholdRange, temp int) (speed uint8, ok bool) {
	for _, r := range ranges {
		if r.Contains(temp) {
			return ScalePercent(r.MaxSpeedPercent), true
		}
	}
	return 0, false
}

// ScalePercent converts a percentage to the 0-255 control value, rounding
// half away from zero. Integer arithmetic keeps 50% at 128.
func ScalePercent(percent int) uint8 {
	switch {
	case percent <= 0:
		return 0
	case percent >= 100:
		return MaxControlValue
	}
	return uint8((percent*MaxControlValue + 50) / 100)
}

// Resolve expands a fan target into 0-based fan indices. Explicit lists keep
// their order and are neither deduplicated nor range checked.
func Resolve(target models.FanTarget) []int {
	switch t := target.(type) {
	case models.FanCount:
		fans := make([]int, 0, max(int(t), 0))
		for i := 0; i < int(t); i++ {
			fans = append(fans, i)
		}
		return fans
	case models.FanList:
		fans := make([]int, 0, len(t))
		for _, idx := range t {
			fans = append(fans, idx-1)
		}
		return fans
	default:
		return nil
	}
}

// Command renders the iLO command that caps one fan at value.
func Command(fan int, value uint8) string {
	return fmt.Sprintf("fan p %d max %d", fan, value)
}

// Plan computes the control value and the commands for target at temp.
// matched is false, and commands empty, when no range contains temp.
func Plan(target models.HostTarget, temp int) (speed uint8, commands []string, matched bool) {
	speed, matched = SpeedFor(target.Thresholds, temp)
	if !matched {
		return 0, []string{}, false
	}

	fans := Resolve(target.Fans)
	commands = make([]string, 0, len(fans))
	for _, fan := range fans {
		commands = append(commands, Command(fan, speed))
	}
	return speed, commands, true
}

// Generate returns the commands for target at temp, or none when temp falls
// in a gap; the firmware curve then stays in charge for this cycle.
func Generate(target models.HostTarget, temp int) []string {
	_, commands, _ := Plan(target, temp)
	return commands
}
