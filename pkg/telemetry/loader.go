package telemetry

import (
	"errors"
	"fmt"
	"io"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

const DefaultChunkSize = 1 << 20

type LoaderConfig struct {
	ChunkSize        int
	IgnorePointing   bool
	MaxPendingEvents int
	Verbosity        int
}

// Loader is the start stage: it pulls raw telemetry from a source and hands
// one ordered, pointing-tagged event to the scheduler per AnalyzeEvent.
type Loader struct {
	eventbuilder.ModuleBase
	config LoaderConfig
	logger eventbuilder.Logger

	open   func() (Source, error)
	source Source
	framer *Framer
	chunk  []byte

	bytesRead int64
	events    int64
}

// NewLoader creates the stage. open is called once during initialization.
func NewLoader(open func() (Source, error), config LoaderConfig, logger eventbuilder.Logger) *Loader {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = eventbuilder.NopLogger{}
	}
	return &Loader{config: config, logger: logger, open: open}
}

func (l *Loader) Descriptor() eventbuilder.Descriptor {
	return eventbuilder.Descriptor{
		Name: "Telemetry loader",
		Tag:  "loader",
		Provides: eventbuilder.CategoryEventLoader | eventbuilder.CategoryEventLoaderMeasurement |
			eventbuilder.CategoryEventOrdering | eventbuilder.CategoryAspect,
		IsStartModule:       true,
		AllowMultithreading: true,
	}
}

func (l *Loader) Initialize(*eventbuilder.Registry) error {
	source, err := l.open()
	if err != nil {
		return err
	}
	l.source = source
	l.chunk = make([]byte, l.config.ChunkSize)
	l.framer = NewFramer(FramerConfig{
		IgnorePointing:   l.config.IgnorePointing,
		MaxPendingEvents: l.config.MaxPendingEvents,
		Verbosity:        l.config.Verbosity,
	}, l.logger)
	return nil
}

// IsReady reads at most one chunk when no event is releasable yet.
func (l *Loader) IsReady() bool {
	if l.framer == nil || !l.IsOK() {
		return false
	}
	if l.framer.HasNext() {
		return true
	}
	if l.framer.Exhausted() {
		l.SetFinished()
		return false
	}
	if l.IsInterrupted() {
		return false
	}

	n, err := l.source.Read(l.chunk)
	if n > 0 {
		l.bytesRead += int64(n)
		l.framer.Feed(l.chunk[:n])
	}
	switch {
	case errors.Is(err, io.EOF):
		l.framer.SetExhausted()
		if l.config.Verbosity > 0 {
			message := fmt.Sprintf("End of telemetry stream after %d bytes", l.bytesRead)
			l.logger.Info(message, "loader")
		}
	case err != nil:
		l.logger.Error(fmt.Sprintf("error reading telemetry: %v", err))
		l.Fail()
		return false
	}

	if l.framer.HasNext() {
		return true
	}
	if l.framer.Done() {
		l.SetFinished()
	}
	return false
}

func (l *Loader) AnalyzeEvent(event *eventbuilder.Event) bool {
	if l.framer == nil {
		return false
	}
	next, ok := l.framer.Next()
	if !ok {
		return false
	}

	event.ID = next.ID
	event.Timestamp = next.Timestamp
	event.Hits = next.Hits
	event.Veto = next.Veto
	event.Trigger = next.Trigger
	event.Pointing = next.Pointing
	event.DataRead = true

	event.SetAnalysisProgress(eventbuilder.CategoryEventLoader | eventbuilder.CategoryEventLoaderMeasurement | eventbuilder.CategoryEventOrdering)
	if event.Pointing != nil {
		event.SetAnalysisProgress(eventbuilder.CategoryAspect)
	}
	l.events++

	if l.config.Verbosity > 1 {
		message := fmt.Sprintf("Loaded event %d (ts %d, %d hits)", event.ID, event.Timestamp, len(event.Hits))
		l.logger.Info(message, "loader")
	}
	return true
}

func (l *Loader) Finalize() eventbuilder.Report {
	report := eventbuilder.Report{"bytes read": l.bytesRead, "events": l.events}
	if l.framer != nil {
		for k, v := range l.framer.Stats().Report() {
			report[k] = v
		}
	}
	if l.source != nil {
		if err := l.source.Close(); err != nil {
			l.logger.Error(fmt.Sprintf("closing telemetry source: %v", err))
		}
		l.source = nil
	}
	return report
}
