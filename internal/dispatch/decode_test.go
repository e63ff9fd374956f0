package dispatch

import (
	"testing"
)

func TestDecodeScalarFormats(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
		want    float64
		wantErr bool
	}{
		{"plain decimal", "12.5", "velocity", 12.5, false},
		{"padded decimal", "  3.25\n", "time", 3.25, false},
		{"json form", `{"velocity": 7.75}`, "velocity", 7.75, false},
		{"json wrong field", `{"speed": 7.75}`, "velocity", 0, true},
		{"garbage", "not-a-number", "velocity", 0, true},
		{"empty", "", "velocity", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeScalar([]byte(tc.payload), tc.field)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeScalar(%q): %v", tc.payload, err)
			}
			if got != tc.want {
				t.Fatalf("decodeScalar(%q) = %f, want %f", tc.payload, got, tc.want)
			}
		})
	}
}

func TestDecodeEngageFormats(t *testing.T) {
	cases := []struct {
		payload string
		want    uint8
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 1, false},
		{`{"engaged": 1}`, 1, false},
		{`{"engaged": 0}`, 0, false},
		{"-1", 0, true},
		{"256", 0, true},
		{"on", 0, true},
	}
	for _, tc := range cases {
		got, err := decodeEngage([]byte(tc.payload))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.payload)
			}
			continue
		}
		if err != nil {
			t.Fatalf("decodeEngage(%q): %v", tc.payload, err)
		}
		if got != tc.want {
			t.Fatalf("decodeEngage(%q) = %d, want %d", tc.payload, got, tc.want)
		}
	}
}

func TestDecodeControlsValidatesRanges(t *testing.T) {
	controls, err := decodeControls([]byte(`{"throttle":0.4,"steer":-0.5,"brake":0.1}`))
	if err != nil {
		t.Fatalf("decodeControls: %v", err)
	}
	if controls.Throttle != 0.4 || controls.Steer != -0.5 || controls.Brake != 0.1 {
		t.Fatalf("unexpected controls: %+v", controls)
	}

	for _, payload := range []string{
		`{"throttle":1.5,"steer":0,"brake":0}`,
		`{"throttle":0,"steer":0,"brake":-0.2}`,
		`{"throttle":0,"steer":2,"brake":0}`,
		`not json`,
		``,
	} {
		if _, err := decodeControls([]byte(payload)); err == nil {
			t.Fatalf("expected rejection for %q", payload)
		}
	}
}
