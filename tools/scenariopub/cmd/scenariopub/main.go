// Command scenariopub publishes a synthetic drive cycle against a running
// cruise controller so operators can exercise the full pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	configpkg "egodrive/cruise/internal/config"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/transport/natsbus"
	"egodrive/cruise/tools/scenariopub"
)

func main() {
	busURL := flag.String("bus", configpkg.DefaultBusURL, "bus URL to publish against")
	ticks := flag.Int("ticks", 120, "number of ticks to publish")
	interval := flag.Duration("interval", time.Second, "wall-clock interval between ticks")
	step := flag.Float64("step", 0.1, "simulated seconds per tick")
	target := flag.Float64("target", 20, "announced target speed in m/s")
	maxSpeed := flag.Float64("max-speed", 30, "oscillation peak in m/s")
	speedStep := flag.Float64("speed-step", 1.5, "speed change per tick in m/s")
	obstacle := flag.Bool("obstacle", false, "publish an approaching corridor obstacle")
	brakeTick := flag.Int("brake-tick", 0, "tick at which to pulse the brake pedal (0 disables)")
	flag.Parse()

	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(configpkg.LoggingConfig{
		Level:     "info",
		Path:      "scenariopub.log",
		MaxSizeMB: 10,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	bus, err := natsbus.Connect(natsbus.Options{URL: *busURL, Name: "scenariopub", Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bus unavailable at %s: %v\n", *busURL, err)
		os.Exit(1)
	}
	defer bus.Close()

	publisher, err := scenariopub.New(bus, scenariopub.Options{
		Subjects:       cfg.Subjects,
		Interval:       *interval,
		StepSeconds:    *step,
		TargetSpeed:    *target,
		MaxSpeed:       *maxSpeed,
		SpeedStep:      *speedStep,
		WithObstacle:   *obstacle,
		BrakePulseTick: *brakeTick,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := publisher.Run(ctx, *ticks); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
