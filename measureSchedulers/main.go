package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/next-exp/eventbuilder_go/pkg/depthcal"
	"github.com/next-exp/eventbuilder_go/pkg/telemetry"
)

var logger Logger

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	logger = Logger{
		InfoLog:  slog.New(slog.NewTextHandler(os.Stdout, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(os.Stderr, opts)),
	}
}

// Logger implements eventbuilder.Logger on top of slog.
type Logger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func (l Logger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l Logger) Error(message string) {
	l.ErrorLog.Error(message)
}

type Variant struct {
	Name      string
	Scheduler eventbuilder.SchedulerConfig
}

func variants(queueCapacity int) []Variant {
	return []Variant{
		{Name: "cooperative", Scheduler: eventbuilder.SchedulerConfig{Mode: eventbuilder.ModeCooperative}},
		{Name: "staged, bounded, workers", Scheduler: eventbuilder.SchedulerConfig{Mode: eventbuilder.ModeStaged, QueueCapacity: queueCapacity, UseWorkers: true}},
		{Name: "staged, unbounded, workers", Scheduler: eventbuilder.SchedulerConfig{Mode: eventbuilder.ModeStaged, UseWorkers: true}},
		{Name: "staged, bounded, single thread", Scheduler: eventbuilder.SchedulerConfig{Mode: eventbuilder.ModeStaged, QueueCapacity: queueCapacity}},
	}
}

func main() {
	nEvents := flag.Int("events", 100000, "Number of synthetic events")
	hitsPerEvent := flag.Int("hits", 4, "Hits per event")
	hitsPerFragment := flag.Int("fragment", 2, "Hits per science packet, 0 for one packet per event")
	pointingEvery := flag.Int("pointing", 50, "Events between pointing snapshots")
	queueCapacity := flag.Int("queue", 1000, "Capacity of the bounded staged queues")
	chunkSize := flag.Int("chunk", telemetry.DefaultChunkSize, "Loader read size in bytes")
	numWorkers := flag.Int("workers", 4, "Encoding workers")
	repeat := flag.Int("repeat", 3, "Runs per variant")
	fileOut := flag.String("out", "", "Telemetry file (default: temporary file)")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	filename := *fileOut
	if filename == "" {
		dir, err := os.MkdirTemp("", "measureSchedulers")
		if err != nil {
			logger.Error(fmt.Errorf("Error creating temporary directory: %w", err).Error())
			return
		}
		defer os.RemoveAll(dir)
		filename = filepath.Join(dir, "telemetry.bin")
	}

	start := time.Now()
	events := generateEvents(*nEvents, *hitsPerEvent, rand.New(rand.NewPCG(*seed, *seed)))
	encoded, err := encodeEvents(events, *numWorkers, *hitsPerFragment)
	if err != nil {
		logger.Error(fmt.Errorf("Error encoding events: %w", err).Error())
		return
	}
	size, err := writeTelemetry(filename, events, encoded, *pointingEvery)
	if err != nil {
		logger.Error(fmt.Errorf("Error writing telemetry: %w", err).Error())
		return
	}
	message := fmt.Sprintf("Synthesized %d events (%d bytes) in %d ms", len(events), size, time.Since(start).Milliseconds())
	logger.Info(message, "main")

	geometry, err := syntheticGeometry()
	if err != nil {
		logger.Error(err.Error())
		return
	}
	calibration, err := syntheticCalibration()
	if err != nil {
		logger.Error(err.Error())
		return
	}

	for _, variant := range variants(*queueCapacity) {
		for i := 0; i < *repeat; i++ {
			summary, err := measure(context.Background(), filename, *chunkSize, geometry, calibration, variant)
			if err != nil {
				logger.Error(fmt.Errorf("(%s) run failed: %w", variant.Name, err).Error())
				break
			}
			rate := float64(summary.Events) / summary.Duration.Seconds()
			fmt.Printf("(%s) Time: %d ms, %d events, %.0f events/s, queue peaks %v\n",
				variant.Name, summary.Duration.Milliseconds(), summary.Events, rate, summary.QueueHighWater)
		}
	}
}

// measure runs the loader and the depth calibration over a telemetry file
// with one scheduling variant.
func measure(ctx context.Context, filename string, chunkSize int, geometry eventbuilder.Geometry,
	calibration *depthcal.Calibration, variant Variant) (eventbuilder.RunSummary, error) {
	loader := telemetry.NewLoader(func() (telemetry.Source, error) {
		return telemetry.OpenFileSource(filename)
	}, telemetry.LoaderConfig{ChunkSize: chunkSize}, nil)

	depth := depthcal.New(depthcal.Config{}, geometry, nil)
	depth.SetCalibration(calibration)

	orchestrator, err := eventbuilder.NewOrchestrator(variant.Scheduler, loader, depth)
	if err != nil {
		return eventbuilder.RunSummary{}, err
	}
	return orchestrator.Run(ctx)
}
