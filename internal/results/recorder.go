// Package results buffers the per-step controller time series and persists
// them as run artefacts for offline analysis.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Sample is one recorded controller step.
type Sample struct {
	DesiredVelocity float64 `json:"desired_velocity"`
	CurrentVelocity float64 `json:"current_velocity"`
	Time            float64 `json:"current_time"`
	Acceleration    float64 `json:"acceleration"`
}

// Stats summarises recorder health for monitoring endpoints.
type Stats struct {
	Samples      int       `json:"samples"`
	Flushes      int64     `json:"flushes"`
	LastFlushURI string    `json:"last_flush_uri,omitempty"`
	LastFlushAt  time.Time `json:"last_flush_at,omitempty"`
}

// Manifest describes the artefact bundle layout so tooling can locate files.
type Manifest struct {
	Version    int      `json:"version"`
	RunID      string   `json:"run_id"`
	CreatedAt  string   `json:"created_at"`
	Samples    int      `json:"samples"`
	SeriesLogs []string `json:"series_logs"`
	StepsPath  string   `json:"steps_path"`
	RunPath    string   `json:"run_path"`
}

// seriesKeys orders the per-key text artefacts.
var seriesKeys = []string{"desired_velocity", "current_velocity", "current_time", "acceleration"}

// Recorder buffers samples in one append-only slice; Flush splits them into
// the four per-key series on disk.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	runID   string
	now     func() time.Time
	samples []Sample

	flushes   int64
	lastFlush time.Time
	lastURI   string
}

// NewRecorder constructs a recorder that writes artefact bundles into dir.
func NewRecorder(dir string, clock func() time.Time) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir, runID: uuid.NewString(), now: clock}, nil
}

// RunID identifies this controller run in artefact paths.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Append records one controller step.
func (r *Recorder) Append(sample Sample) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.samples = append(r.samples, sample)
	r.mu.Unlock()
}

// Len reports how many samples are buffered.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Snapshot reports recorder health.
func (r *Recorder) Snapshot() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Samples:      len(r.samples),
		Flushes:      r.flushes,
		LastFlushURI: r.lastURI,
		LastFlushAt:  r.lastFlush,
	}
}

// Flush writes the buffered series into a fresh run directory: one text log
// per series, a snappy-framed per-step journal, a zstd-compressed combined
// document, and a manifest. The buffer is retained so later flushes capture
// the full run.
func (r *Recorder) Flush() (string, error) {
	if r == nil {
		return "", fmt.Errorf("recorder is nil")
	}
	r.mu.Lock()
	samples := append([]Sample(nil), r.samples...)
	runID := r.runID
	created := r.now().UTC()
	r.mu.Unlock()

	folder := fmt.Sprintf("run-%s-%s", runID, created.Format("20060102T150405Z"))
	path := filepath.Join(r.dir, folder)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}

	//1.- Emit one plain-text log per series, one number per line.
	series := map[string][]float64{
		"desired_velocity": make([]float64, 0, len(samples)),
		"current_velocity": make([]float64, 0, len(samples)),
		"current_time":     make([]float64, 0, len(samples)),
		"acceleration":     make([]float64, 0, len(samples)),
	}
	for _, sample := range samples {
		series["desired_velocity"] = append(series["desired_velocity"], sample.DesiredVelocity)
		series["current_velocity"] = append(series["current_velocity"], sample.CurrentVelocity)
		series["current_time"] = append(series["current_time"], sample.Time)
		series["acceleration"] = append(series["acceleration"], sample.Acceleration)
	}
	logs := make([]string, 0, len(seriesKeys))
	for _, key := range seriesKeys {
		name := key + ".log"
		if err := writeSeriesLog(filepath.Join(path, name), series[key]); err != nil {
			return "", err
		}
		logs = append(logs, name)
	}

	//2.- Stream the per-step journal through a snappy-framed sink.
	stepsName := "steps.jsonl.sz"
	if err := writeStepJournal(filepath.Join(path, stepsName), samples); err != nil {
		return "", err
	}

	//3.- Persist the combined structured document under zstd compression.
	runName := "run.json.zst"
	if err := writeCombinedRun(filepath.Join(path, runName), series); err != nil {
		return "", err
	}

	manifest := Manifest{
		Version:    1,
		RunID:      runID,
		CreatedAt:  created.Format(time.RFC3339),
		Samples:    len(samples),
		SeriesLogs: logs,
		StepsPath:  stepsName,
		RunPath:    runName,
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(path, "manifest.json"), encoded, 0o644); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.flushes++
	r.lastFlush = created
	r.lastURI = path
	r.mu.Unlock()
	return path, nil
}

func writeSeriesLog(path string, values []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, value := range values {
		if _, err := file.WriteString(strconv.FormatFloat(value, 'f', -1, 64) + "\n"); err != nil {
			file.Close()
			return err
		}
	}
	return file.Close()
}

func writeStepJournal(path string, samples []Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	stream := snappy.NewBufferedWriter(file)
	for _, sample := range samples {
		line, err := json.Marshal(sample)
		if err != nil {
			stream.Close()
			file.Close()
			return err
		}
		if _, err := stream.Write(append(line, '\n')); err != nil {
			stream.Close()
			file.Close()
			return err
		}
	}
	if err := stream.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeCombinedRun(path string, series map[string][]float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	document, err := json.Marshal(series)
	if err != nil {
		encoder.Close()
		file.Close()
		return err
	}
	if _, err := encoder.Write(document); err != nil {
		encoder.Close()
		file.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
