// Package scenariopub drives the controller end to end by publishing
// synthetic drive-cycle payloads onto the bus.
package scenariopub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"egodrive/cruise/internal/config"
	"egodrive/cruise/internal/lidar"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/transport"
)

// Options shape the generated drive cycle.
type Options struct {
	Subjects config.Subjects

	// Interval paces publication; StepSeconds is the simulated time that
	// passes per tick.
	Interval    time.Duration
	StepSeconds float64

	// TargetSpeed is announced once at start; the measured speed oscillates
	// between zero and MaxSpeed in SpeedStep increments.
	TargetSpeed float64
	MaxSpeed    float64
	SpeedStep   float64

	// WithObstacle publishes a corridor obstacle that approaches each tick.
	WithObstacle bool
	// BrakePulseTick pulses the brake pedal at the given tick; zero disables.
	BrakePulseTick int
}

// Publisher emits the scenario onto a transport bus.
type Publisher struct {
	bus    transport.Bus
	opts   Options
	logger *logging.Logger
}

// New validates the options and constructs a publisher.
func New(bus transport.Bus, opts Options, logger *logging.Logger) (*Publisher, error) {
	if bus == nil {
		return nil, errors.New("bus must be provided")
	}
	if logger == nil {
		logger = logging.L()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.StepSeconds <= 0 {
		opts.StepSeconds = 0.1
	}
	if opts.TargetSpeed <= 0 {
		opts.TargetSpeed = 20
	}
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = 30
	}
	if opts.SpeedStep <= 0 {
		opts.SpeedStep = 1.5
	}
	return &Publisher{bus: bus, opts: opts, logger: logger}, nil
}

// Run publishes the requested number of ticks, pacing them on the interval.
// The first tick announces the target speed and engages cruise control.
func (p *Publisher) Run(ctx context.Context, ticks int) error {
	if p == nil {
		return errors.New("publisher is nil")
	}
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	speed := 0.0
	direction := 1.0
	simTime := 0.0
	obstacle := 28.0

	for tick := 0; tick < ticks; tick++ {
		if tick > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		//1.- Announce the cruise request before the first measurement.
		if tick == 0 {
			if err := p.publishScalar(p.opts.Subjects.TargetSpeed, p.opts.TargetSpeed); err != nil {
				return err
			}
			if err := p.bus.Publish(p.opts.Subjects.Engage, []byte("1")); err != nil {
				return err
			}
		}

		//2.- Oscillate the measured speed between zero and the configured peak.
		speed += p.opts.SpeedStep * direction
		if speed >= p.opts.MaxSpeed {
			direction = -1
		} else if speed <= 0 {
			speed = 0
			direction = 1
		}

		if err := p.publishScalar(p.opts.Subjects.Clock, simTime); err != nil {
			return err
		}

		if p.opts.WithObstacle {
			if err := p.publishObstacle(obstacle); err != nil {
				return err
			}
			obstacle -= 1.0
			if obstacle < 2.0 {
				obstacle = 28.0
			}
		}

		if p.opts.BrakePulseTick > 0 {
			brake := 0.0
			if tick == p.opts.BrakePulseTick {
				brake = 0.5
			}
			if err := p.publishControls(0, 0, brake); err != nil {
				return err
			}
		}

		//3.- Velocity goes last so the step consumes this tick's snapshot.
		if err := p.publishScalar(p.opts.Subjects.Velocity, speed); err != nil {
			return err
		}
		p.logger.Debug("tick published",
			logging.Float("speed", speed),
			logging.Float("sim_time", simTime))

		simTime += p.opts.StepSeconds
	}
	return nil
}

func (p *Publisher) publishScalar(subject string, value float64) error {
	payload := strconv.FormatFloat(value, 'f', -1, 64)
	if err := p.bus.Publish(subject, []byte(payload)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) publishControls(throttle, steer, brake float64) error {
	payload, err := json.Marshal(map[string]float64{
		"throttle": throttle,
		"steer":    steer,
		"brake":    brake,
	})
	if err != nil {
		return err
	}
	if err := p.bus.Publish(p.opts.Subjects.Control, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.opts.Subjects.Control, err)
	}
	return nil
}

func (p *Publisher) publishObstacle(forward float64) error {
	frame := lidar.Frame{
		ChannelCount: 1,
		Len:          1,
		Detections: []lidar.Detection{
			{Intensity: 1, Point: lidar.Point{X: forward, Y: 0, Z: 1.2}},
		},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(p.opts.Subjects.Lidar, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.opts.Subjects.Lidar, err)
	}
	return nil
}
