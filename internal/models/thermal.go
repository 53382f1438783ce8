package models

// CPUTemperature is one CPU sensor reading.
type CPUTemperature struct {
	ID            int
	Celsius       int
	UpperCritical int // 0 if the controller reports none
}

// FanReading is one fan as reported by the controller.
type FanReading struct {
	Name    string
	Percent int
	Health  string
}

// TemperatureReading is a single telemetry snapshot of one host.
type TemperatureReading struct {
	CPUs            []CPUTemperature
	Fans            []FanReading
	Inlet           int
	CriticalReached bool
}

// MaxCPU returns the hottest CPU temperature. ok is false when there are no CPU readings.
func (r TemperatureReading) MaxCPU() (temp int, ok bool) {
	for i, cpu := range r.CPUs {
		if i == 0 || cpu.Celsius > temp {
			temp = cpu.Celsius
		}
	}
	return temp, len(r.CPUs) > 0
}
