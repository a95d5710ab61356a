package depthcal

import (
	"fmt"
	"math"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"gonum.org/v1/gonum/floats"
)

// ReferenceEnergy is the energy in keV at which the timing noise is looked up.
const ReferenceEnergy = 662.0

const minTiming = 1e-6

var sqrt12 = math.Sqrt(12)

// TimingNoiseProvider is implemented by a calibration stage that knows the
// timing resolution of a pixel better than the coefficient table.
type TimingNoiseProvider interface {
	TimingNoiseFWHM(pixelCode int, energy float64) (float64, bool)
}

type Config struct {
	CoeffsFile  string
	SplinesFile string
	// EnergyCalibrationTag names a sibling stage implementing
	// TimingNoiseProvider. Empty uses the coefficient table.
	EnergyCalibrationTag string
	Verbosity            int
}

type Calibration struct {
	Coefficients CoefficientTable
	Splines      *SplineTable
}

// DepthCalibration reconstructs the 3D position of every hit from its dominant
// strips and their timing difference.
type DepthCalibration struct {
	eventbuilder.ModuleBase
	config   Config
	logger   eventbuilder.Logger
	geometry eventbuilder.Geometry

	calibration *Calibration
	noise       TimingNoiseProvider

	goodHits            int64
	missingCoefficients int64
	outOfRange          int64
	missingTiming       int64
	multipleActivation  int64
	errorGrade          int64
	missingSplines      int64
	unknownDetector     int64
}

func New(config Config, geometry eventbuilder.Geometry, logger eventbuilder.Logger) *DepthCalibration {
	if logger == nil {
		logger = eventbuilder.NopLogger{}
	}
	return &DepthCalibration{config: config, geometry: geometry, logger: logger}
}

// SetCalibration provides tables loaded elsewhere, the files in the
// configuration are then not read.
func (d *DepthCalibration) SetCalibration(c *Calibration) {
	d.calibration = c
}

func (d *DepthCalibration) Descriptor() eventbuilder.Descriptor {
	return eventbuilder.Descriptor{
		Name:                "Depth calibration",
		Tag:                 "depthcal",
		Requires:            eventbuilder.CategoryEventLoader,
		SoftRequires:        eventbuilder.CategoryEnergyCalibration | eventbuilder.CategoryStripPairing,
		Provides:            eventbuilder.CategoryDepthCorrection | eventbuilder.CategoryPositionDetermination,
		AllowedSuccessors:   eventbuilder.CategoryNoRestriction,
		AllowMultithreading: true,
		HasOptionsUI:        true,
	}
}

func (d *DepthCalibration) Initialize(registry *eventbuilder.Registry) error {
	if d.geometry == nil {
		return fmt.Errorf("no detector geometry")
	}

	if d.calibration == nil {
		coeffs, err := LoadCoefficientsFile(d.config.CoeffsFile)
		if err != nil {
			return err
		}
		splines, err := LoadSplinesFile(d.config.SplinesFile)
		if err != nil {
			return err
		}
		d.calibration = &Calibration{Coefficients: coeffs, Splines: splines}
	}
	if d.calibration.Splines == nil {
		d.calibration.Splines = NewSplineTable()
	}

	for _, id := range d.calibration.Splines.Detectors() {
		group, _ := d.calibration.Splines.Group(id)
		if _, ok := d.geometry.Detector(id); !ok {
			message := fmt.Sprintf("Depth grid for detector %d which is not in the geometry", id)
			d.logger.Info(message, "depthcal")
			continue
		}
		if d.config.Verbosity > 0 {
			message := fmt.Sprintf("Detector %d: thickness %.3f cm, %d depth points, %d curves", id, group.Thickness(), len(group.Depths), len(group.Curves))
			d.logger.Info(message, "depthcal")
		}
	}
	if d.config.Verbosity > 0 {
		message := fmt.Sprintf("Loaded %d pixel coefficients", len(d.calibration.Coefficients))
		d.logger.Info(message, "depthcal")
	}

	if d.config.EnergyCalibrationTag != "" {
		m, err := registry.Lookup(d.config.EnergyCalibrationTag)
		if err != nil {
			return err
		}
		provider, ok := m.(TimingNoiseProvider)
		if !ok {
			return &eventbuilder.ErrResolveModule{Tag: d.config.EnergyCalibrationTag, Reason: "does not provide the timing noise"}
		}
		d.noise = provider
	}
	return nil
}

func (d *DepthCalibration) AnalyzeEvent(event *eventbuilder.Event) bool {
	for _, hit := range event.Hits {
		d.analyzeHit(event, hit)
	}
	event.SetAnalysisProgress(eventbuilder.CategoryDepthCorrection | eventbuilder.CategoryPositionDetermination)
	return true
}

func (d *DepthCalibration) analyzeHit(event *eventbuilder.Event, hit *eventbuilder.Hit) {
	grade := HitGrade(hit)
	switch grade {
	case GradeError:
		hit.NoDepth = true
		event.SetDepthCalibrationIncomplete()
		d.errorGrade++
		return
	case GradeMultiple:
		hit.NoDepth = true
		event.SetDepthCalibrationIncomplete()
		d.multipleActivation++
		return
	}

	xStrips, yStrips := SplitAxes(hit)
	xDominant, _ := DominantStrip(xStrips)
	yDominant, _ := DominantStrip(yStrips)

	detectorID := xDominant.DetectorID()
	detector, ok := d.geometry.Detector(detectorID)
	if !ok {
		hit.NoDepth = true
		event.SetDepthCalibrationIncomplete()
		d.unknownDetector++
		return
	}

	group, hasSplines := d.calibration.Splines.Group(detectorID)
	thickness := detector.Thickness
	if hasSplines {
		thickness = group.Thickness()
	}

	local := eventbuilder.Vector{
		X: detector.PitchX * (float64(detector.NStripsX)/2 - float64(xDominant.StripID())),
		Y: detector.PitchY * (float64(detector.NStripsY)/2 - float64(yDominant.StripID())),
	}
	resolution := eventbuilder.Vector{
		X: detector.PitchX / sqrt12,
		Y: detector.PitchY / sqrt12,
		Z: thickness / sqrt12,
	}

	pixelCode := PixelCode(detectorID, xDominant.StripID(), yDominant.StripID())
	coeffs, ok := d.calibration.Coefficients[pixelCode]
	switch {
	case !ok:
		hit.NoDepth = true
		event.SetDepthCalibrationIncomplete()
		d.missingCoefficients++
		if d.config.Verbosity > 1 {
			message := fmt.Sprintf("Event %d: no coefficients for pixel %d", event.ID, pixelCode)
			d.logger.Info(message, "depthcal")
		}
	case xDominant.Timing() < minTiming || yDominant.Timing() < minTiming:
		hit.NoDepth = true
		d.missingTiming++
	case !hasSplines:
		hit.NoDepth = true
		event.SetDepthCalibrationIncomplete()
		d.missingSplines++
	default:
		ctd := xDominant.Timing() - yDominant.Timing()
		if !xDominant.IsPositiveStrip() {
			ctd = -ctd
		}
		scaled := (ctd - coeffs.Offset) / coeffs.Stretch

		curve := group.Curve(grade)
		noise := d.timingNoise(pixelCode, coeffs)
		if scaled < floats.Min(curve)-2*noise || scaled > floats.Max(curve)+2*noise {
			hit.NoDepth = true
			event.SetDepthCalibrationIncomplete()
			d.outOfRange++
			break
		}

		depth, sigma, err := EstimateDepth(group.Depths, curve, scaled, noise*FWHMToSigma)
		if err != nil {
			d.logger.Error(fmt.Sprintf("event %d, pixel %d: %v", event.ID, pixelCode, err))
			hit.NoDepth = true
			event.SetDepthCalibrationIncomplete()
			d.outOfRange++
			break
		}
		local.Z = thickness/2 - depth
		resolution.Z = sigma
		d.goodHits++
	}

	hit.SetPosition(detector.GlobalPosition(local), resolution)
}

func (d *DepthCalibration) timingNoise(pixelCode int, coeffs PixelCoefficients) float64 {
	if d.noise != nil {
		if fwhm, ok := d.noise.TimingNoiseFWHM(pixelCode, ReferenceEnergy); ok {
			return fwhm
		}
	}
	return coeffs.TimingNoiseFWHM
}

func (d *DepthCalibration) Finalize() eventbuilder.Report {
	report := eventbuilder.Report{
		"good hits":            d.goodHits,
		"missing coefficients": d.missingCoefficients,
		"out of range ctd":     d.outOfRange,
		"missing timing":       d.missingTiming,
		"multiple activation":  d.multipleActivation,
		"error grade":          d.errorGrade,
		"missing splines":      d.missingSplines,
		"unknown detector":     d.unknownDetector,
	}
	if d.config.Verbosity > 0 {
		message := fmt.Sprintf("Depth calibration: %s", report)
		d.logger.Info(message, "depthcal")
	}
	return report
}
