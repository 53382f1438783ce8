package models

import "time"

// FailureCause classifies why a host's control unit failed.
type FailureCause string

// Failure causes.
const (
	CauseNone           FailureCause = ""
	CauseTelemetry      FailureCause = "telemetry"
	CauseConnectivity   FailureCause = "connectivity"
	CauseAuthentication FailureCause = "authentication"
	CauseExecution      FailureCause = "execution"
	CauseFatal          FailureCause = "fatal"
)

// ControlOutcome holds the result of one host's control unit.
type ControlOutcome struct {
	Host     string
	Cause    FailureCause
	Error    error
	Duration time.Duration

	Reading *TemperatureReading // nil if telemetry failed
	MaxTemp int
	Matched bool // a threshold range contained MaxTemp
	Speed   uint8
	DryRun  bool

	Commands []string
	Executed int
	Outputs  []string
}

// Succeeded reports whether the unit finished without failure.
func (o ControlOutcome) Succeeded() bool {
	return o.Cause == CauseNone
}

// Label is a short, stable name for the outcome, used for metrics and logs.
func (o ControlOutcome) Label() string {
	switch {
	case !o.Succeeded():
		return string(o.Cause)
	case !o.Matched:
		return "no_match"
	default:
		return "success"
	}
}

// CycleResult holds every host's outcome of one control cycle, in target order.
type CycleResult struct {
	StartTime time.Time
	Duration  time.Duration
	Outcomes  []ControlOutcome
}

// Outcome returns the outcome recorded for host.
func (r CycleResult) Outcome(host string) (ControlOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Host == host {
			return o, true
		}
	}
	return ControlOutcome{}, false
}

// Failed returns the outcomes that did not succeed.
func (r CycleResult) Failed() []ControlOutcome {
	var failed []ControlOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Critical returns the outcomes whose reading reported a component at or above its critical threshold.
func (r CycleResult) Critical() []ControlOutcome {
	var critical []ControlOutcome
	for _, o := range r.Outcomes {
		if o.Reading != nil && o.Reading.CriticalReached {
			critical = append(critical, o)
		}
	}
	return critical
}
