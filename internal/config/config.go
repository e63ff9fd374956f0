package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHTTPAddr is the default TCP address for the operational HTTP surface.
	DefaultHTTPAddr = ":43180"
	// DefaultGRPCAddr is the default TCP address for the gRPC health endpoint.
	DefaultGRPCAddr = ":43181"
	// DefaultBusURL points at a local NATS server, the default pub/sub transport.
	DefaultBusURL = "nats://127.0.0.1:4222"
	// DefaultBusReconnectWait paces reconnection attempts against the bus.
	DefaultBusReconnectWait = 2 * time.Second
	// DefaultBusMaxReconnects bounds reconnection attempts before giving up.
	DefaultBusMaxReconnects = 60

	// DefaultKp is the proportional gain of the velocity PID.
	DefaultKp = 0.5
	// DefaultKi is the integral gain of the velocity PID.
	DefaultKi = 0.1
	// DefaultKd is the derivative gain of the velocity PID.
	DefaultKd = 0.05

	// DefaultEmergencyStopDistance is the nominal emergency braking distance in metres.
	DefaultEmergencyStopDistance = 3.0
	// DefaultSlowDownDistance is the nominal gradual-slowing distance in metres.
	DefaultSlowDownDistance = 15.0
	// DefaultMaxBrakingAcceleration is the strongest commanded deceleration in m/s².
	DefaultMaxBrakingAcceleration = -10.0
	// DefaultManualBrakeThreshold is the advisory deceleration threshold in m/s².
	DefaultManualBrakeThreshold = -2.0
	// DefaultTargetSpeedTolerance is the re-engagement speed window in m/s.
	DefaultTargetSpeedTolerance = 2.0

	// DefaultResultsDir is where run artefacts are written.
	DefaultResultsDir = "logs"

	// DefaultTelemetryQueueSize bounds the per-client telemetry send queue.
	DefaultTelemetryQueueSize = 32

	// DefaultLogLevel controls verbosity for controller logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "cruise.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Default ingress and egress subjects. The engage subject is both: the
// controller listens on it for operator commands and publishes its own
// transitions back to it, mirroring the vehicle bus layout.
const (
	DefaultClockSubject       = "vehicle.clock"
	DefaultVelocitySubject    = "vehicle.velocity"
	DefaultLidarSubject       = "vehicle.lidar"
	DefaultTargetSpeedSubject = "cruise.target_speed"
	DefaultEngageSubject      = "cruise.engage"
	DefaultControlSubject     = "cruise.control_values"
	DefaultActuationSubject   = "cruise.actuation"
)

// Subjects names every bus subject the controller touches.
type Subjects struct {
	Clock       string
	Velocity    string
	TargetSpeed string
	Engage      string
	Lidar       string
	Control     string
	Actuation   string
}

// Gains groups the PID coefficients.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Safety groups the obstacle-override and driver-override tunables.
type Safety struct {
	EmergencyStopDistance  float64
	SlowDownDistance       float64
	MaxBrakingAcceleration float64
	ManualBrakeThreshold   float64
	TargetSpeedTolerance   float64
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config captures all runtime tunables for the cruise controller.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	BusURL           string
	BusReconnectWait time.Duration
	BusMaxReconnects int

	Subjects Subjects
	Gains    Gains
	Safety   Safety

	ResultsDir string

	TelemetryAuthSecret string
	TelemetryQueueSize  int

	GRPCCertPath     string
	GRPCKeyPath      string
	GRPCClientCAPath string

	Logging LoggingConfig
}

// Load reads the controller configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:         getString("CRUISE_HTTP_ADDR", DefaultHTTPAddr),
		GRPCAddr:         getString("CRUISE_GRPC_ADDR", DefaultGRPCAddr),
		BusURL:           getString("CRUISE_BUS_URL", DefaultBusURL),
		BusReconnectWait: DefaultBusReconnectWait,
		BusMaxReconnects: DefaultBusMaxReconnects,
		Subjects: Subjects{
			Clock:       getString("CRUISE_SUBJECT_CLOCK", DefaultClockSubject),
			Velocity:    getString("CRUISE_SUBJECT_VELOCITY", DefaultVelocitySubject),
			TargetSpeed: getString("CRUISE_SUBJECT_TARGET_SPEED", DefaultTargetSpeedSubject),
			Engage:      getString("CRUISE_SUBJECT_ENGAGE", DefaultEngageSubject),
			Lidar:       getString("CRUISE_SUBJECT_LIDAR", DefaultLidarSubject),
			Control:     getString("CRUISE_SUBJECT_CONTROL", DefaultControlSubject),
			Actuation:   getString("CRUISE_SUBJECT_ACTUATION", DefaultActuationSubject),
		},
		Gains: Gains{
			Kp: DefaultKp,
			Ki: DefaultKi,
			Kd: DefaultKd,
		},
		Safety: Safety{
			EmergencyStopDistance:  DefaultEmergencyStopDistance,
			SlowDownDistance:       DefaultSlowDownDistance,
			MaxBrakingAcceleration: DefaultMaxBrakingAcceleration,
			ManualBrakeThreshold:   DefaultManualBrakeThreshold,
			TargetSpeedTolerance:   DefaultTargetSpeedTolerance,
		},
		ResultsDir:          getString("CRUISE_RESULTS_DIR", DefaultResultsDir),
		TelemetryAuthSecret: strings.TrimSpace(os.Getenv("CRUISE_TELEMETRY_SECRET")),
		TelemetryQueueSize:  DefaultTelemetryQueueSize,
		GRPCCertPath:        strings.TrimSpace(os.Getenv("CRUISE_GRPC_CERT")),
		GRPCKeyPath:         strings.TrimSpace(os.Getenv("CRUISE_GRPC_KEY")),
		GRPCClientCAPath:    strings.TrimSpace(os.Getenv("CRUISE_GRPC_CLIENT_CA")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("CRUISE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("CRUISE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	applyFloat := func(key string, target *float64, validate func(float64) bool, requirement string) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || (validate != nil && !validate(value)) {
			problems = append(problems, fmt.Sprintf("%s must be %s, got %q", key, requirement, raw))
			return
		}
		*target = value
	}

	positive := func(v float64) bool { return v > 0 }
	negative := func(v float64) bool { return v < 0 }

	applyFloat("CRUISE_PID_KP", &cfg.Gains.Kp, nil, "a number")
	applyFloat("CRUISE_PID_KI", &cfg.Gains.Ki, nil, "a number")
	applyFloat("CRUISE_PID_KD", &cfg.Gains.Kd, nil, "a number")
	applyFloat("CRUISE_EMERGENCY_STOP_DISTANCE", &cfg.Safety.EmergencyStopDistance, positive, "a positive number")
	applyFloat("CRUISE_SLOW_DOWN_DISTANCE", &cfg.Safety.SlowDownDistance, positive, "a positive number")
	applyFloat("CRUISE_MAX_BRAKING_ACCELERATION", &cfg.Safety.MaxBrakingAcceleration, negative, "a negative number")
	applyFloat("CRUISE_MANUAL_BRAKE_THRESHOLD", &cfg.Safety.ManualBrakeThreshold, negative, "a negative number")
	applyFloat("CRUISE_TARGET_SPEED_TOLERANCE", &cfg.Safety.TargetSpeedTolerance, positive, "a positive number")

	if cfg.Safety.SlowDownDistance <= cfg.Safety.EmergencyStopDistance {
		problems = append(problems, fmt.Sprintf(
			"CRUISE_SLOW_DOWN_DISTANCE must exceed CRUISE_EMERGENCY_STOP_DISTANCE, got %.2f <= %.2f",
			cfg.Safety.SlowDownDistance, cfg.Safety.EmergencyStopDistance))
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_BUS_RECONNECT_WAIT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_BUS_RECONNECT_WAIT must be a positive duration, got %q", raw))
		} else {
			cfg.BusReconnectWait = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_BUS_MAX_RECONNECTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_BUS_MAX_RECONNECTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.BusMaxReconnects = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_TELEMETRY_QUEUE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_TELEMETRY_QUEUE must be a positive integer, got %q", raw))
		} else {
			cfg.TelemetryQueueSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CRUISE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CRUISE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("CRUISE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.GRPCCertPath == "") != (cfg.GRPCKeyPath == "") {
		problems = append(problems, "CRUISE_GRPC_CERT and CRUISE_GRPC_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
