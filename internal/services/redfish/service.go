// Package redfish reads thermal telemetry from an iLO Redfish endpoint.
package redfish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/rs/zerolog"
)

const (
	thermalPath     = "/redfish/v1/Chassis/1/Thermal"
	maxResponseSize = 4 << 20

	contextCPU    = "CPU"
	contextIntake = "Intake"
	stateAbsent   = "Absent"
)

// ErrNoCPUReadings is returned when the thermal resource has no usable CPU sensor.
var ErrNoCPUReadings = errors.New("no CPU temperature readings in thermal response")

// cpuName matches "02-CPU 1" and the single-socket form "02-CPU".
var cpuName = regexp.MustCompile(`^\d{2}-CPU(?: (\d+))?$`)

// Service defines the interface for telemetry operations.
type Service interface {
	FetchTemperature(ctx context.Context, host, user string, password models.Secret) (*models.TemperatureReading, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Redfish Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Redfish service. iLO ships self-signed certificates,
// so verification is usually disabled.
func New(logger zerolog.Logger, insecureSkipVerify bool) *Impl {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // self-signed iLO certificates
	}

	return &Impl{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
	}
}

// NewWithClient creates a new Redfish service with a custom HTTP client (for testing).
// A non-empty baseURL replaces https://{host}.
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

type sensorStatus struct {
	Health string `json:"Health"`
	State  string `json:"State"`
}

type temperatureSensor struct {
	Name                   string       `json:"Name"`
	PhysicalContext        string       `json:"PhysicalContext"`
	ReadingCelsius         *float64     `json:"ReadingCelsius"`
	CurrentReading         *float64     `json:"CurrentReading"`
	UpperThresholdCritical *float64     `json:"UpperThresholdCritical"`
	Status                 sensorStatus `json:"Status"`
}

type fanSensor struct {
	FanName        string       `json:"FanName"`
	Name           string       `json:"Name"`
	CurrentReading *float64     `json:"CurrentReading"`
	Reading        *float64     `json:"Reading"`
	Status         sensorStatus `json:"Status"`
}

type thermalResponse struct {
	Temperatures []temperatureSensor `json:"Temperatures"`
	Fans         []fanSensor         `json:"Fans"`
}

// FetchTemperature reads the chassis thermal resource of host.
func (s *Impl) FetchTemperature(ctx context.Context, host, user string, password models.Secret) (*models.TemperatureReading, error) {
	baseURL := s.baseURL
	if baseURL == "" {
		baseURL = "https://" + host
	}

	s.logger.Debug().
		Str("host", host).
		Str("user", user).
		Msg("fetching thermal telemetry")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+thermalPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(user, password.Reveal())
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redfish API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	reading, err := s.parseThermal(body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("host", host).
		Int("cpus", len(reading.CPUs)).
		Int("fans", len(reading.Fans)).
		Bool("critical", reading.CriticalReached).
		Msg("thermal telemetry received")

	return reading, nil
}

func (s *Impl) parseThermal(body []byte) (*models.TemperatureReading, error) {
	var thermal thermalResponse
	if err := json.Unmarshal(body, &thermal); err != nil {
		return nil, fmt.Errorf("failed to parse thermal response: %w", err)
	}

	reading := &models.TemperatureReading{}
	inletSeen := false

	for _, sensor := range thermal.Temperatures {
		if sensor.Status.State == stateAbsent {
			continue
		}
		value, ok := firstValue(sensor.ReadingCelsius, sensor.CurrentReading)
		if !ok {
			continue
		}
		critical, _ := firstValue(sensor.UpperThresholdCritical)
		if critical > 0 && value >= critical {
			reading.CriticalReached = true
		}

		switch sensor.PhysicalContext {
		case contextCPU:
			reading.CPUs = append(reading.CPUs, models.CPUTemperature{
				ID:            s.cpuID(sensor.Name),
				Celsius:       value,
				UpperCritical: critical,
			})
		case contextIntake:
			if !inletSeen {
				reading.Inlet = value
				inletSeen = true
			}
		}
	}

	for _, fan := range thermal.Fans {
		if fan.Status.State == stateAbsent {
			continue
		}
		name := fan.FanName
		if name == "" {
			name = fan.Name
		}
		percent, _ := firstValue(fan.CurrentReading, fan.Reading)
		reading.Fans = append(reading.Fans, models.FanReading{
			Name:    name,
			Percent: percent,
			Health:  fan.Status.Health,
		})
	}

	if len(reading.CPUs) == 0 {
		return nil, ErrNoCPUReadings
	}

	return reading, nil
}

// cpuID extracts the socket number from a sensor name. Unrecognised names
// map to 0 so the reading still counts towards the maximum.
func (s *Impl) cpuID(name string) int {
	m := cpuName.FindStringSubmatch(name)
	if m == nil {
		s.logger.Warn().Str("sensor", name).Msg("unrecognised CPU sensor name")
		return 0
	}
	if m[1] == "" {
		return 1
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

func firstValue(values ...*float64) (int, bool) {
	for _, v := range values {
		if v != nil {
			return int(math.Round(*v)), true
		}
	}
	return 0, false
}
