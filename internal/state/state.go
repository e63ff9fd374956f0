// Package state holds the shared vehicle state block fed by the ingress
// streams and read by the controller step.
package state

import (
	"sync"

	"egodrive/cruise/internal/lidar"
)

// Snapshot is a consistent copy of every shared field at one instant.
type Snapshot struct {
	TargetVelocity  float64
	CurrentVelocity float64
	Time            float64
	Engaged         uint8
	PIDActive       bool
	Throttle        float64
	Steer           float64
	Brake           float64
	Lidar           *lidar.Frame
}

// Store guards the last known value of every ingress scalar plus the latest
// LiDAR frame. Each setter is a short critical section; Snapshot copies the
// whole block under one lock so a step never mixes generations.
type Store struct {
	mu              sync.RWMutex
	targetVelocity  float64
	currentVelocity float64
	time            float64
	engaged         uint8
	pidActive       bool
	throttle        float64
	steer           float64
	brake           float64
	latestLidar     *lidar.Frame
}

// NewStore creates a store with neutral zero values.
func NewStore() *Store {
	return &Store{}
}

// SetTargetVelocity records the operator-requested speed in m/s.
func (s *Store) SetTargetVelocity(value float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.targetVelocity = value
	s.mu.Unlock()
}

// SetCurrentVelocity records the measured longitudinal speed in m/s.
func (s *Store) SetCurrentVelocity(value float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.currentVelocity = value
	s.mu.Unlock()
}

// SetClock records the external monotonic time in seconds.
func (s *Store) SetClock(value float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.time = value
	s.mu.Unlock()
}

// SetEngaged records the cruise engage flag and returns the previous value.
func (s *Store) SetEngaged(value uint8) uint8 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	previous := s.engaged
	s.engaged = value
	s.mu.Unlock()
	return previous
}

// SetPIDActive toggles whether velocity events drive controller steps.
func (s *Store) SetPIDActive(active bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.pidActive = active
	s.mu.Unlock()
}

// SetControls records the driver pedal and steering inputs.
func (s *Store) SetControls(throttle, steer, brake float64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.throttle = throttle
	s.steer = steer
	s.brake = brake
	s.mu.Unlock()
}

// SetLidar stores a defensive clone of the latest frame.
func (s *Store) SetLidar(frame *lidar.Frame) {
	if s == nil {
		return
	}
	clone := frame.Clone()
	s.mu.Lock()
	s.latestLidar = clone
	s.mu.Unlock()
}

// Engaged returns the current engage flag.
func (s *Store) Engaged() uint8 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engaged
}

// PIDActive reports whether controller steps are enabled.
func (s *Store) PIDActive() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pidActive
}

// Snapshot returns a consistent copy of the full state block. The LiDAR frame
// is cloned so the caller owns independent data.
func (s *Store) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	snapshot := Snapshot{
		TargetVelocity:  s.targetVelocity,
		CurrentVelocity: s.currentVelocity,
		Time:            s.time,
		Engaged:         s.engaged,
		PIDActive:       s.pidActive,
		Throttle:        s.throttle,
		Steer:           s.steer,
		Brake:           s.brake,
		Lidar:           s.latestLidar.Clone(),
	}
	s.mu.RUnlock()
	return snapshot
}
