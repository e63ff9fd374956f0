package lidar

import (
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	raw := []byte(`{"channel_count":16,"horizontal_angle":0.5,"is_empty":false,"len":2,` +
		`"detections":[{"intensity":0.9,"point":{"x":5,"y":0.2,"z":1.1}},` +
		`{"intensity":0.4,"point":{"x":12,"y":-0.7,"z":0.8}}]}`)

	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.ChannelCount != 16 || frame.Len != 2 {
		t.Fatalf("unexpected header: %+v", frame)
	}
	if len(frame.Detections) != 2 || frame.Detections[0].Point.X != 5 {
		t.Fatalf("unexpected detections: %+v", frame.Detections)
	}
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestNearestForwardPicksClosestInCorridor(t *testing.T) {
	frame := &Frame{
		Detections: []Detection{
			{Point: Point{X: 0.5, Y: 0, Z: 1}},    // too close to the bumper
			{Point: Point{X: 40, Y: 0, Z: 1}},     // beyond range
			{Point: Point{X: 8, Y: 2.0, Z: 1}},    // outside the lane
			{Point: Point{X: 8, Y: -2.0, Z: 1}},   // outside the lane, left
			{Point: Point{X: 8, Y: 0, Z: 0.1}},    // ground clutter
			{Point: Point{X: 8, Y: 0, Z: 3.0}},    // overhead sign
			{Point: Point{X: 12, Y: 0.4, Z: 1.2}}, // valid, farther
			{Point: Point{X: 6, Y: -1.2, Z: 0.9}}, // valid, closest
		},
	}
	distance, ok := frame.NearestForward()
	if !ok {
		t.Fatal("expected a corridor detection")
	}
	if distance != 6 {
		t.Fatalf("expected distance 6, got %f", distance)
	}
}

func TestNearestForwardEmptyCases(t *testing.T) {
	var nilFrame *Frame
	if _, ok := nilFrame.NearestForward(); ok {
		t.Fatal("nil frame should have no detection")
	}
	if _, ok := (&Frame{IsEmpty: true, Detections: []Detection{{Point: Point{X: 5, Y: 0, Z: 1}}}}).NearestForward(); ok {
		t.Fatal("is_empty frame should have no detection")
	}
	if _, ok := (&Frame{}).NearestForward(); ok {
		t.Fatal("frame without detections should have no detection")
	}
}

func TestCloneIsolatesDetections(t *testing.T) {
	frame := &Frame{Detections: []Detection{{Point: Point{X: 5, Y: 0, Z: 1}}}}
	clone := frame.Clone()
	clone.Detections[0].Point.X = 99
	if frame.Detections[0].Point.X != 5 {
		t.Fatalf("clone aliases original detections: %+v", frame.Detections)
	}
}
