package results

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

func testClock() func() time.Time {
	current := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return current }
}

func TestRecorderFlushWritesArtefactBundle(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRecorder(dir, testClock())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 9, Time: 0.1, Acceleration: 0.5})
	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 10, Time: 0.2, Acceleration: 0})
	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 11, Time: 0.3, Acceleration: -0.8})

	path, err := recorder.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("unexpected bundle location: %s", path)
	}

	//1.- The per-series text logs carry one number per line.
	raw, err := os.ReadFile(filepath.Join(path, "acceleration.log"))
	if err != nil {
		t.Fatalf("read acceleration.log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 || lines[0] != "0.5" || lines[2] != "-0.8" {
		t.Fatalf("unexpected acceleration log: %v", lines)
	}

	//2.- The step journal decodes through the snappy framing.
	journalFile, err := os.Open(filepath.Join(path, "steps.jsonl.sz"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journalFile.Close()
	scanner := bufio.NewScanner(snappy.NewReader(journalFile))
	var journal []Sample
	for scanner.Scan() {
		var sample Sample
		if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
			t.Fatalf("decode journal line: %v", err)
		}
		journal = append(journal, sample)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}
	if len(journal) != 3 || journal[1].CurrentVelocity != 10 {
		t.Fatalf("unexpected journal contents: %+v", journal)
	}

	//3.- The combined document decodes through the zstd framing.
	runFile, err := os.Open(filepath.Join(path, "run.json.zst"))
	if err != nil {
		t.Fatalf("open run document: %v", err)
	}
	defer runFile.Close()
	decoder, err := zstd.NewReader(runFile)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer decoder.Close()
	document, err := io.ReadAll(decoder)
	if err != nil {
		t.Fatalf("read run document: %v", err)
	}
	var series map[string][]float64
	if err := json.Unmarshal(document, &series); err != nil {
		t.Fatalf("decode run document: %v", err)
	}
	if len(series["desired_velocity"]) != 3 || series["current_time"][2] != 0.3 {
		t.Fatalf("unexpected combined series: %+v", series)
	}

	//4.- The manifest names every artefact.
	manifestRaw, err := os.ReadFile(filepath.Join(path, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Samples != 3 || manifest.RunID != recorder.RunID() || len(manifest.SeriesLogs) != 4 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	stats := recorder.Snapshot()
	if stats.Flushes != 1 || stats.Samples != 3 || stats.LastFlushURI != path {
		t.Fatalf("unexpected recorder stats: %+v", stats)
	}
}

func TestRecorderRequiresDirectory(t *testing.T) {
	if _, err := NewRecorder("", nil); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestSummaryStatistics(t *testing.T) {
	recorder, err := NewRecorder(t.TempDir(), testClock())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 8, Time: 0.1, Acceleration: 1.0})
	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 10, Time: 0.2, Acceleration: 0})
	recorder.Append(Sample{DesiredVelocity: 10, CurrentVelocity: 13, Time: 0.3, Acceleration: -1.0})

	summary := recorder.Summary()
	if summary.Samples != 3 {
		t.Fatalf("unexpected sample count: %d", summary.Samples)
	}
	if summary.MinError != -3 || summary.MaxError != 2 {
		t.Fatalf("unexpected error range: %+v", summary)
	}
	if math.Abs(summary.MeanError-(-1.0/3.0)) > 1e-9 {
		t.Fatalf("unexpected mean error: %f", summary.MeanError)
	}
	if summary.MinAcceleration != -1 || summary.MaxAcceleration != 1 || summary.MeanAcceleration != 0 {
		t.Fatalf("unexpected acceleration stats: %+v", summary)
	}
	if summary.StdDevError <= 0 || summary.StdDevAcceleration <= 0 {
		t.Fatalf("expected positive deviations: %+v", summary)
	}
}

func TestSummaryEmptyRun(t *testing.T) {
	recorder, err := NewRecorder(t.TempDir(), testClock())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	summary := recorder.Summary()
	if summary.Samples != 0 || summary.MinError != 0 || summary.MeanAcceleration != 0 {
		t.Fatalf("expected zero summary for an empty run: %+v", summary)
	}
}
