// Package lidar models forward-facing point-cloud frames and the corridor
// filtering used for collision avoidance.
package lidar

import (
	"encoding/json"
	"errors"
	"math"
)

// Point is a detection location in the vehicle frame: +x forward, +y right,
// +z up, all in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Detection is a single LiDAR return.
type Detection struct {
	Intensity float64 `json:"intensity"`
	Point     Point   `json:"point"`
}

// Frame is one snapshot of the forward-facing sensor.
type Frame struct {
	ChannelCount    uint32      `json:"channel_count"`
	HorizontalAngle float64     `json:"horizontal_angle"`
	IsEmpty         bool        `json:"is_empty"`
	Len             uint32      `json:"len"`
	Detections      []Detection `json:"detections"`
}

var errEmptyFramePayload = errors.New("empty lidar payload")

// Decode parses a structured frame payload.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) == 0 {
		return nil, errEmptyFramePayload
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Clone duplicates the frame so stored snapshots cannot alias caller memory.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Detections = append([]Detection(nil), f.Detections...)
	return &clone
}

// Forward corridor bounds: ahead of the bumper, inside the lane, at vehicle
// height. Returns outside this box never influence braking.
const (
	corridorMinForward = 1.0
	corridorMaxForward = 30.0
	corridorHalfWidth  = 1.5
	corridorMinHeight  = 0.3
	corridorMaxHeight  = 2.5
)

// NearestForward returns the forward distance of the closest detection inside
// the corridor, and whether any detection qualified.
func (f *Frame) NearestForward() (float64, bool) {
	if f == nil || f.IsEmpty || len(f.Detections) == 0 {
		return 0, false
	}
	//1.- Scan every return and keep the smallest qualifying forward distance.
	closest := 0.0
	found := false
	for _, detection := range f.Detections {
		p := detection.Point
		if p.X <= corridorMinForward || p.X >= corridorMaxForward {
			continue
		}
		if math.Abs(p.Y) >= corridorHalfWidth {
			continue
		}
		if p.Z <= corridorMinHeight || p.Z >= corridorMaxHeight {
			continue
		}
		if !found || p.X < closest {
			closest = p.X
			found = true
		}
	}
	return closest, found
}
