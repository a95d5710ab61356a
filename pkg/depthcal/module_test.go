package depthcal

import (
	"os"
	"path/filepath"
	"testing"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noiseStage struct {
	eventbuilder.ModuleBase
	fwhm  float64
	known bool
}

func (n *noiseStage) Descriptor() eventbuilder.Descriptor {
	return eventbuilder.Descriptor{Name: "Energy calibration", Tag: "energy", Provides: eventbuilder.CategoryEnergyCalibration}
}

func (n *noiseStage) AnalyzeEvent(*eventbuilder.Event) bool { return true }

func (n *noiseStage) TimingNoiseFWHM(int, float64) (float64, bool) {
	return n.fwhm, n.known
}

type plainStage struct {
	eventbuilder.ModuleBase
}

func (p *plainStage) Descriptor() eventbuilder.Descriptor {
	return eventbuilder.Descriptor{Name: "Plain", Tag: "plain"}
}

func (p *plainStage) AnalyzeEvent(*eventbuilder.Event) bool { return true }

func testGeometry(t *testing.T) eventbuilder.Geometry {
	t.Helper()
	geometry, err := eventbuilder.NewStaticGeometry([]eventbuilder.DetectorGeometry{
		{ID: 1, Name: "D1", Thickness: 1.5, PitchX: 0.2, PitchY: 0.2, NStripsX: 37, NStripsY: 37},
		{ID: 2, Name: "D2", Thickness: 1.4, PitchX: 0.2, PitchY: 0.2, NStripsX: 37, NStripsY: 37, OriginZ: 10},
	})
	require.NoError(t, err)
	return geometry
}

// linearSplines has a depth grid 0..1.5 cm in 0.1 cm steps for detector 1 and
// a timing difference of 100*depth/1.5.
func linearSplines(t *testing.T) *SplineTable {
	t.Helper()
	depths := make([]float64, 16)
	curve := make([]float64, 16)
	for i := range depths {
		depths[i] = float64(i) * 0.1
		curve[i] = 100 * depths[i] / 1.5
	}
	table := NewSplineTable()
	require.NoError(t, table.AddGroup(1, depths, [][]float64{curve}))
	return table
}

func newCalibrated(t *testing.T, config Config) *DepthCalibration {
	t.Helper()
	d := New(config, testGeometry(t), nil)
	d.SetCalibration(&Calibration{
		Coefficients: CoefficientTable{
			10000: {PixelCode: 10000, Stretch: 500, Offset: 10, TimingNoiseFWHM: 6, Chi2: 1.2},
			20000: {PixelCode: 20000, Stretch: 1, Offset: 0, TimingNoiseFWHM: 6, Chi2: 1},
		},
		Splines: linearSplines(t),
	})
	return d
}

func pixelEvent(detector, x, y int, positiveX bool, xTiming, yTiming float64) *eventbuilder.Event {
	event := eventbuilder.NewEvent()
	event.AddHit(&eventbuilder.Hit{StripHits: []*eventbuilder.StripHit{
		eventbuilder.NewStripHit(detector, x, eventbuilder.AxisX, positiveX, 100, xTiming),
		eventbuilder.NewStripHit(detector, y, eventbuilder.AxisY, !positiveX, 100, yTiming),
	}})
	return event
}

func TestDepthFromTimingDifference(t *testing.T) {
	d := newCalibrated(t, Config{})
	require.NoError(t, d.Initialize(eventbuilder.NewRegistry()))

	// (10110 - 100 - 10) / 500 = 20, a depth of 0.3 cm
	event := pixelEvent(1, 0, 0, true, 10110, 100)
	require.True(t, d.AnalyzeEvent(event))

	hit := event.Hits[0]
	assert.False(t, hit.NoDepth)
	assert.False(t, event.DepthCalibrationIncomplete)
	require.True(t, hit.HasPosition)
	assert.InDelta(t, 3.7, hit.Position.X, 1e-9)
	assert.InDelta(t, 3.7, hit.Position.Y, 1e-9)
	assert.InDelta(t, 0.45, hit.Position.Z, 1e-6)
	assert.Greater(t, hit.PositionResolution.Z, 0.0)
	assert.Less(t, hit.PositionResolution.Z, 0.05)
	assert.InDelta(t, 0.2/sqrt12, hit.PositionResolution.X, 1e-12)
	assert.True(t, event.HasAnalysisProgress(eventbuilder.CategoryDepthCorrection|eventbuilder.CategoryPositionDetermination))

	assert.Equal(t, int64(1), d.Finalize()["good hits"])
}

func TestNegativeXStripFlipsTimingDifference(t *testing.T) {
	d := newCalibrated(t, Config{})
	require.NoError(t, d.Initialize(eventbuilder.NewRegistry()))

	event := pixelEvent(1, 0, 0, false, 100, 10110)
	d.AnalyzeEvent(event)

	hit := event.Hits[0]
	assert.False(t, hit.NoDepth)
	assert.InDelta(t, 0.45, hit.Position.Z, 1e-6)
}

func TestHitsWithoutDepth(t *testing.T) {
	tests := map[string]struct {
		event      *eventbuilder.Event
		counter    string
		incomplete bool
		position   bool
		z          float64
	}{
		"missing coefficients": {
			event:      pixelEvent(1, 1, 0, true, 10110, 100),
			counter:    "missing coefficients",
			incomplete: true,
			position:   true,
		},
		"out of range": {
			event:      pixelEvent(1, 0, 0, true, 100000, 100),
			counter:    "out of range ctd",
			incomplete: true,
			position:   true,
		},
		"missing timing": {
			event:    pixelEvent(1, 0, 0, true, 10110, 0),
			counter:  "missing timing",
			position: true,
		},
		"missing splines": {
			event:      pixelEvent(2, 0, 0, true, 20, 10),
			counter:    "missing splines",
			incomplete: true,
			position:   true,
			z:          10,
		},
		"unknown detector": {
			event:      pixelEvent(3, 0, 0, true, 20, 10),
			counter:    "unknown detector",
			incomplete: true,
		},
		"error grade": {
			event: func() *eventbuilder.Event {
				event := eventbuilder.NewEvent()
				event.AddHit(&eventbuilder.Hit{StripHits: []*eventbuilder.StripHit{
					eventbuilder.NewStripHit(1, 0, eventbuilder.AxisX, true, 100, 10110),
				}})
				return event
			}(),
			counter:    "error grade",
			incomplete: true,
		},
		"multiple activation": {
			event: func() *eventbuilder.Event {
				event := pixelEvent(1, 0, 0, true, 10110, 100)
				event.Hits[0].MultipleY = true
				return event
			}(),
			counter:    "multiple activation",
			incomplete: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d := newCalibrated(t, Config{})
			require.NoError(t, d.Initialize(eventbuilder.NewRegistry()))
			require.True(t, d.AnalyzeEvent(tc.event))

			hit := tc.event.Hits[0]
			assert.True(t, hit.NoDepth)
			assert.Equal(t, tc.incomplete, tc.event.DepthCalibrationIncomplete)
			assert.Equal(t, tc.position, hit.HasPosition)
			if tc.position {
				assert.InDelta(t, tc.z, hit.Position.Z, 1e-12)
			}

			report := d.Finalize()
			for key, value := range report {
				if key == tc.counter {
					assert.Equal(t, int64(1), value, key)
				} else {
					assert.Zero(t, value, key)
				}
			}
		})
	}
}

func TestTimingNoiseFromSiblingStage(t *testing.T) {
	// scaled timing difference of -5: inside the range with the table noise
	// of 6, outside with a noise of 0.001
	event := func() *eventbuilder.Event { return pixelEvent(1, 0, 0, true, 100, 2590) }

	d := newCalibrated(t, Config{})
	require.NoError(t, d.Initialize(eventbuilder.NewRegistry()))
	tableEvent := event()
	d.AnalyzeEvent(tableEvent)
	assert.False(t, tableEvent.Hits[0].NoDepth)

	registry := eventbuilder.NewRegistry()
	require.NoError(t, registry.Register(&noiseStage{fwhm: 0.001, known: true}))
	d = newCalibrated(t, Config{EnergyCalibrationTag: "energy"})
	require.NoError(t, d.Initialize(registry))
	siblingEvent := event()
	d.AnalyzeEvent(siblingEvent)
	assert.True(t, siblingEvent.Hits[0].NoDepth)
	assert.Equal(t, int64(1), d.Finalize()["out of range ctd"])

	// an unknown pixel falls back to the table
	registry = eventbuilder.NewRegistry()
	require.NoError(t, registry.Register(&noiseStage{fwhm: 0.001}))
	d = newCalibrated(t, Config{EnergyCalibrationTag: "energy"})
	require.NoError(t, d.Initialize(registry))
	fallbackEvent := event()
	d.AnalyzeEvent(fallbackEvent)
	assert.False(t, fallbackEvent.Hits[0].NoDepth)
}

func TestEnergyCalibrationTagMustResolve(t *testing.T) {
	d := newCalibrated(t, Config{EnergyCalibrationTag: "energy"})
	var resolveErr *eventbuilder.ErrResolveModule
	assert.ErrorAs(t, d.Initialize(eventbuilder.NewRegistry()), &resolveErr)

	registry := eventbuilder.NewRegistry()
	require.NoError(t, registry.Register(&plainStage{}))
	d = newCalibrated(t, Config{EnergyCalibrationTag: "plain"})
	err := d.Initialize(registry)
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "plain", resolveErr.Tag)
}

func TestInitializeLoadsCalibrationFiles(t *testing.T) {
	dir := t.TempDir()
	coeffs := filepath.Join(dir, "coeffs.txt")
	splines := filepath.Join(dir, "splines.txt")
	require.NoError(t, os.WriteFile(coeffs, []byte("10000 500.0 10.0 6.0 1.2\n"), 0o644))
	require.NoError(t, os.WriteFile(splines, []byte("# det 1\n0 0\n0.75 50\n1.5 100\n"), 0o644))

	d := New(Config{CoeffsFile: coeffs, SplinesFile: splines}, testGeometry(t), nil)
	require.NoError(t, d.Initialize(eventbuilder.NewRegistry()))

	event := pixelEvent(1, 0, 0, true, 25110, 100)
	d.AnalyzeEvent(event)
	assert.False(t, event.Hits[0].NoDepth)
	assert.Equal(t, int64(1), d.Finalize()["good hits"])

	d = New(Config{CoeffsFile: filepath.Join(dir, "missing.txt"), SplinesFile: splines}, testGeometry(t), nil)
	var openErr *eventbuilder.ErrOpenFile
	assert.ErrorAs(t, d.Initialize(eventbuilder.NewRegistry()), &openErr)

	d = New(Config{}, nil, nil)
	assert.Error(t, d.Initialize(eventbuilder.NewRegistry()))
}

func TestDepthCalibrationInCooperativeRun(t *testing.T) {
	d := newCalibrated(t, Config{})
	source := &eventSource{events: []*eventbuilder.Event{
		pixelEvent(1, 0, 0, true, 10110, 100),
		pixelEvent(1, 1, 0, true, 10110, 100),
	}}

	orchestrator, err := eventbuilder.NewOrchestrator(eventbuilder.SchedulerConfig{}, source, d)
	require.NoError(t, err)
	summary, err := orchestrator.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Events)
	assert.Equal(t, []bool{false, true}, source.noDepth)
}

// eventSource replays prepared events as a start module.
type eventSource struct {
	eventbuilder.ModuleBase
	events  []*eventbuilder.Event
	next    int
	noDepth []bool
}

func (s *eventSource) Descriptor() eventbuilder.Descriptor {
	return eventbuilder.Descriptor{
		Name:          "Replay",
		Tag:           "replay",
		Provides:      eventbuilder.CategoryEventLoader,
		IsStartModule: true,
	}
}

func (s *eventSource) IsReady() bool {
	if s.next >= len(s.events) {
		s.SetFinished()
		return false
	}
	return true
}

func (s *eventSource) AnalyzeEvent(event *eventbuilder.Event) bool {
	src := s.events[s.next]
	s.next++
	event.ID = uint64(s.next)
	event.Hits = src.Hits
	event.DataRead = true
	event.Trigger = true
	return true
}

func (s *eventSource) Finalize() eventbuilder.Report {
	for _, event := range s.events {
		s.noDepth = append(s.noDepth, event.Hits[0].NoDepth)
	}
	return eventbuilder.Report{}
}
