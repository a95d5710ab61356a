package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqlx "github.com/jmoiron/sqlx"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/next-exp/eventbuilder_go/pkg/depthcal"
	"github.com/next-exp/eventbuilder_go/pkg/telemetry"
)

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	logger = NewLogger(os.Stdout, os.Stderr)
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	configuration, err := LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, configuration, logger)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	printSummary(summary, logger)
}

// run wires the pipeline described by the configuration and executes it
// until the source is exhausted, a stage fails or ctx is cancelled.
func run(ctx context.Context, configuration eventbuilder.Configuration, logger Logger) (eventbuilder.RunSummary, error) {
	var dbConn *sqlx.DB
	if !configuration.NoDB {
		var err error
		dbConn, err = eventbuilder.ConnectToDatabase(configuration.DatabaseConfig())
		if err != nil {
			return eventbuilder.RunSummary{}, fmt.Errorf("Error connection to database: %w", err)
		}
		defer dbConn.Close()
	}

	geometry, err := loadGeometry(configuration, dbConn)
	if err != nil {
		return eventbuilder.RunSummary{}, err
	}

	loader := telemetry.NewLoader(sourceOpener(configuration), telemetry.LoaderConfig{
		ChunkSize:        configuration.ChunkSize,
		IgnorePointing:   configuration.IgnorePointing,
		MaxPendingEvents: configuration.MaxPendingEvents,
		Verbosity:        configuration.Verbosity,
	}, logger)

	depth := depthcal.New(depthcal.Config{
		CoeffsFile:           configuration.CoeffsFile,
		SplinesFile:          configuration.SplinesFile,
		EnergyCalibrationTag: configuration.EnergyCalibrationTag,
		Verbosity:            configuration.Verbosity,
	}, geometry, logger)
	if dbConn != nil {
		calibration, err := loadCalibrationFromDB(configuration, dbConn)
		if err != nil {
			return eventbuilder.RunSummary{}, err
		}
		depth.SetCalibration(calibration)
	}

	modules := []eventbuilder.Module{loader, depth}
	if configuration.DumpEvents {
		modules = append(modules, eventbuilder.NewEventDump(configuration.DumpFile, nil))
	}

	schedulerConfig := configuration.SchedulerConfig()
	schedulerConfig.Logger = logger
	orchestrator, err := eventbuilder.NewOrchestrator(schedulerConfig, modules...)
	if err != nil {
		return eventbuilder.RunSummary{}, err
	}
	return orchestrator.Run(ctx)
}

func loadGeometry(configuration eventbuilder.Configuration, dbConn *sqlx.DB) (eventbuilder.Geometry, error) {
	if len(configuration.Geometry) > 0 {
		return eventbuilder.NewStaticGeometry(configuration.Geometry)
	}
	if dbConn == nil {
		return nil, fmt.Errorf("no detector geometry: set \"geometry\" or enable the database")
	}
	geometry, err := eventbuilder.LoadGeometryFromDB(dbConn, configuration.RunNumber)
	if err != nil {
		return nil, fmt.Errorf("error loading geometry for run %d: %w", configuration.RunNumber, err)
	}
	return geometry, nil
}

// loadCalibrationFromDB reads the per-run coefficients. The depth grids are
// simulation output and always come from the splines file.
func loadCalibrationFromDB(configuration eventbuilder.Configuration, dbConn *sqlx.DB) (*depthcal.Calibration, error) {
	coeffs, err := depthcal.LoadCoefficientsFromDB(dbConn, configuration.RunNumber)
	if err != nil {
		return nil, fmt.Errorf("error loading coefficients for run %d: %w", configuration.RunNumber, err)
	}
	splines, err := depthcal.LoadSplinesFile(configuration.SplinesFile)
	if err != nil {
		return nil, err
	}
	return &depthcal.Calibration{Coefficients: coeffs, Splines: splines}, nil
}

func sourceOpener(configuration eventbuilder.Configuration) func() (telemetry.Source, error) {
	switch configuration.Source {
	case "serial":
		return func() (telemetry.Source, error) {
			return telemetry.OpenSerialSource(configuration.SerialPort, telemetry.PortOptions{
				BaudRate: configuration.BaudRate,
				DataBits: configuration.DataBits,
				StopBits: configuration.StopBits,
				Parity:   configuration.Parity,
			})
		}
	case "pcap":
		return func() (telemetry.Source, error) {
			return telemetry.OpenPcapSource(configuration.FileIn, configuration.UdpPort)
		}
	case "", "file":
		return func() (telemetry.Source, error) {
			return telemetry.OpenFileSource(configuration.FileIn)
		}
	default:
		return func() (telemetry.Source, error) {
			return nil, fmt.Errorf("unknown telemetry source %q", configuration.Source)
		}
	}
}

func printSummary(summary eventbuilder.RunSummary, logger Logger) {
	status := "finished"
	if summary.Interrupted {
		status = "interrupted"
	}
	message := fmt.Sprintf("Run %s %s: %d events, %d rejected in %s", summary.RunID, status,
		summary.Events, summary.Rejected, summary.Duration.Round(time.Millisecond))
	logger.Info(message, "main")
	for _, m := range summary.Modules {
		message := fmt.Sprintf("%s (%s): %s", m.Name, m.State, m.Report)
		logger.Info(message, "main")
	}
	for i, highWater := range summary.QueueHighWater {
		if i == 0 || VerbosityLevel < 2 {
			continue
		}
		message := fmt.Sprintf("Queue of %s peaked at %d events", summary.Modules[i].Name, highWater)
		logger.Info(message, "main")
	}
}
