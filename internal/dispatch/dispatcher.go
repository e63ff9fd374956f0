// Package dispatch wires the six ingress streams into the controller: every
// topic silently refreshes shared state, and each velocity arrival drives one
// controller step whose outcome is published and recorded.
package dispatch

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"egodrive/cruise/internal/config"
	"egodrive/cruise/internal/lidar"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/pid"
	"egodrive/cruise/internal/results"
	"egodrive/cruise/internal/state"
	"egodrive/cruise/internal/transport"
)

// Observer is notified with every published step result.
type Observer interface {
	ObserveResult(result *pid.Result)
}

// Options configure the dispatcher.
type Options struct {
	Bus        transport.Bus
	Subjects   config.Subjects
	Controller *pid.Controller
	Store      *state.Store
	Recorder   *results.Recorder
	Logger     *logging.Logger
	Observers  []Observer
	Now        func() time.Time
}

// Stats summarises dispatcher activity for the operational surface.
type Stats struct {
	Steps        uint64 `json:"steps"`
	Published    uint64 `json:"published"`
	StepErrors   uint64 `json:"step_errors"`
	DecodeErrors uint64 `json:"decode_errors"`
	Disengages   uint64 `json:"disengages"`
	Reengages    uint64 `json:"reengages"`
	Engaged      uint8  `json:"engaged"`
	PIDActive    bool   `json:"pid_active"`
}

// Dispatcher owns the ingress subscriptions and the controller step mutex.
type Dispatcher struct {
	bus        transport.Bus
	subjects   config.Subjects
	controller *pid.Controller
	store      *state.Store
	recorder   *results.Recorder
	logger     *logging.Logger
	observers  []Observer
	now        func() time.Time

	// stepMu serializes controller steps and resets; publication happens
	// outside it with values captured into locals.
	stepMu sync.Mutex

	subs []transport.Subscription

	steps        atomic.Uint64
	published    atomic.Uint64
	stepErrors   atomic.Uint64
	decodeErrors atomic.Uint64
	disengages   atomic.Uint64
	reengages    atomic.Uint64

	driftMu   sync.Mutex
	baseWall  time.Time
	baseSim   float64
	driftInit bool
}

// New validates the wiring and constructs a dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Bus == nil {
		return nil, errors.New("bus must be provided")
	}
	if opts.Controller == nil || opts.Store == nil {
		return nil, errors.New("controller and store must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		bus:        opts.Bus,
		subjects:   opts.Subjects,
		controller: opts.Controller,
		store:      opts.Store,
		recorder:   opts.Recorder,
		logger:     logger,
		observers:  opts.Observers,
		now:        now,
	}, nil
}

// Start subscribes every ingress subject.
func (d *Dispatcher) Start() error {
	if d == nil {
		return errors.New("dispatcher is nil")
	}
	bindings := []struct {
		subject string
		handler transport.Handler
	}{
		{d.subjects.Clock, d.handleClock},
		{d.subjects.Velocity, d.handleVelocity},
		{d.subjects.TargetSpeed, d.handleTargetSpeed},
		{d.subjects.Engage, d.handleEngage},
		{d.subjects.Lidar, d.handleLidar},
		{d.subjects.Control, d.handleControls},
	}
	for _, binding := range bindings {
		sub, err := d.bus.Subscribe(binding.subject, binding.handler)
		if err != nil {
			d.Close()
			return err
		}
		d.subs = append(d.subs, sub)
		d.logger.Info("ingress subscribed", logging.String("subject", binding.subject))
	}
	return nil
}

// Close drops every ingress subscription.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	for _, sub := range d.subs {
		_ = sub.Unsubscribe()
	}
	d.subs = nil
}

// Stats reports dispatcher counters and the current lifecycle flags.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Steps:        d.steps.Load(),
		Published:    d.published.Load(),
		StepErrors:   d.stepErrors.Load(),
		DecodeErrors: d.decodeErrors.Load(),
		Disengages:   d.disengages.Load(),
		Reengages:    d.reengages.Load(),
		Engaged:      d.store.Engaged(),
		PIDActive:    d.store.PIDActive(),
	}
}

func (d *Dispatcher) handleClock(payload []byte) {
	value, err := decodeScalar(payload, "time")
	if err != nil {
		d.dropMessage(d.subjects.Clock, err)
		return
	}
	d.store.SetClock(value)
	d.observeDrift(value)
}

func (d *Dispatcher) handleTargetSpeed(payload []byte) {
	value, err := decodeScalar(payload, "speed")
	if err != nil {
		d.dropMessage(d.subjects.TargetSpeed, err)
		return
	}
	d.store.SetTargetVelocity(value)
}

func (d *Dispatcher) handleLidar(payload []byte) {
	frame, err := lidar.Decode(payload)
	if err != nil {
		d.dropMessage(d.subjects.Lidar, err)
		return
	}
	d.store.SetLidar(frame)
}

func (d *Dispatcher) handleControls(payload []byte) {
	controls, err := decodeControls(payload)
	if err != nil {
		d.dropMessage(d.subjects.Control, err)
		return
	}
	d.store.SetControls(controls.Throttle, controls.Steer, controls.Brake)
}

// handleEngage toggles the controller lifecycle on operator transitions.
func (d *Dispatcher) handleEngage(payload []byte) {
	value, err := decodeEngage(payload)
	if err != nil {
		d.dropMessage(d.subjects.Engage, err)
		return
	}
	previous := d.store.SetEngaged(value)
	switch {
	case previous == 0 && value != 0:
		//1.- Fresh engagement starts from a clean integrator and history.
		d.resetController()
		d.store.SetPIDActive(true)
		d.logger.Info("cruise control engaged", logging.Int("engage", int(value)))
	case previous != 0 && value == 0:
		//2.- Operator disengage halts stepping and clears controller state.
		d.store.SetPIDActive(false)
		d.resetController()
		d.logger.Info("cruise control disengaged")
	}
}

// handleVelocity refreshes the measured speed and runs one controller step.
func (d *Dispatcher) handleVelocity(payload []byte) {
	value, err := decodeScalar(payload, "velocity")
	if err != nil {
		d.dropMessage(d.subjects.Velocity, err)
		return
	}
	d.store.SetCurrentVelocity(value)
	d.step()
}

func (d *Dispatcher) step() {
	snapshot := d.store.Snapshot()
	if !snapshot.PIDActive {
		return
	}

	d.stepMu.Lock()
	result, err := d.controller.Compute(pid.Inputs{
		TargetVelocity:  snapshot.TargetVelocity,
		CurrentVelocity: snapshot.CurrentVelocity,
		Time:            snapshot.Time,
		Lidar:           snapshot.Lidar,
		Throttle:        snapshot.Throttle,
		Steer:           snapshot.Steer,
		Brake:           snapshot.Brake,
	})
	d.stepMu.Unlock()
	if err != nil {
		d.stepErrors.Add(1)
		d.logger.Error("controller step failed", logging.Error(err))
		return
	}
	d.steps.Add(1)

	//1.- Publish the actuation command outside every lock.
	payload := strconv.FormatFloat(result.Acceleration, 'f', -1, 64)
	if err := d.bus.Publish(d.subjects.Actuation, []byte(payload)); err != nil {
		d.logger.Error("actuation publish failed", logging.Error(err))
	} else {
		d.published.Add(1)
	}

	//2.- Drive the engage lifecycle from the step outcome.
	if result.CruiseShouldDisengage {
		d.store.SetEngaged(0)
		if result.EmergencyBrakeEngaged {
			// An emergency is terminal for this activation; a manual brake
			// keeps stepping so re-engagement can be evaluated.
			d.store.SetPIDActive(false)
		}
		d.disengages.Add(1)
		reason := "safety intervention"
		switch {
		case result.EmergencyBrakeEngaged:
			reason = result.EmergencyReason
		case result.ManualBrakeDetected:
			reason = "manual brake detected"
		}
		d.logger.Warn("cruise control disengaging", logging.String("reason", reason))
		if err := d.bus.Publish(d.subjects.Engage, []byte("0")); err != nil {
			d.logger.Error("disengage publish failed", logging.Error(err))
		}
	} else if result.CruiseCanReengage && d.store.Engaged() == 0 {
		d.store.SetEngaged(1)
		d.store.SetPIDActive(true)
		d.reengages.Add(1)
		d.logger.Info("cruise control re-engaging")
		if err := d.bus.Publish(d.subjects.Engage, []byte("1")); err != nil {
			d.logger.Error("re-engage publish failed", logging.Error(err))
		}
	}

	//3.- Record the step and fan it out to observers.
	if d.recorder != nil {
		d.recorder.Append(results.Sample{
			DesiredVelocity: snapshot.TargetVelocity,
			CurrentVelocity: snapshot.CurrentVelocity,
			Time:            snapshot.Time,
			Acceleration:    result.Acceleration,
		})
	}
	for _, observer := range d.observers {
		observer.ObserveResult(result)
	}
}

func (d *Dispatcher) resetController() {
	d.stepMu.Lock()
	d.controller.Reset()
	d.stepMu.Unlock()
}

func (d *Dispatcher) dropMessage(subject string, err error) {
	d.decodeErrors.Add(1)
	d.logger.Warn("ingress message dropped",
		logging.String("subject", subject), logging.Error(err))
}

// observeDrift compares simulation-clock progress against wall-clock progress
// and reports the divergence at debug level.
func (d *Dispatcher) observeDrift(simTime float64) {
	wall := d.now()
	d.driftMu.Lock()
	if !d.driftInit {
		d.baseWall = wall
		d.baseSim = simTime
		d.driftInit = true
		d.driftMu.Unlock()
		return
	}
	baseWall, baseSim := d.baseWall, d.baseSim
	d.driftMu.Unlock()

	driftSeconds := wall.Sub(baseWall).Seconds() - (simTime - baseSim)
	d.logger.Debug("clock drift",
		logging.Float("sim_seconds", simTime),
		logging.Float("drift_seconds", driftSeconds))
}
