package main

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/next-exp/eventbuilder_go/pkg/depthcal"
	"github.com/next-exp/eventbuilder_go/pkg/telemetry"
)

const (
	detectorID  = 1
	nStrips     = 37
	thickness   = 1.5
	stripPitch  = 0.2
	ctdRange    = 100.0
	yTiming     = 100.0
	depthPoints = 16
)

func syntheticGeometry() (*eventbuilder.StaticGeometry, error) {
	return eventbuilder.NewStaticGeometry([]eventbuilder.DetectorGeometry{{
		ID:        detectorID,
		Name:      "synthetic",
		Thickness: thickness,
		PitchX:    stripPitch,
		PitchY:    stripPitch,
		NStripsX:  nStrips,
		NStripsY:  nStrips,
	}})
}

// syntheticCalibration maps every pixel with unit stretch onto a timing
// difference growing linearly with depth.
func syntheticCalibration() (*depthcal.Calibration, error) {
	coeffs := make(depthcal.CoefficientTable)
	for x := 0; x < nStrips; x++ {
		for y := 0; y < nStrips; y++ {
			code := depthcal.PixelCode(detectorID, x, y)
			coeffs[code] = depthcal.PixelCoefficients{PixelCode: code, Stretch: 1, TimingNoiseFWHM: 6, Chi2: 1}
		}
	}

	depths := make([]float64, depthPoints)
	curve := make([]float64, depthPoints)
	for i := range depths {
		depths[i] = thickness * float64(i) / float64(depthPoints-1)
		curve[i] = ctdRange * depths[i] / thickness
	}
	splines := depthcal.NewSplineTable()
	if err := splines.AddGroup(detectorID, depths, [][]float64{curve}); err != nil {
		return nil, err
	}
	return &depthcal.Calibration{Coefficients: coeffs, Splines: splines}, nil
}

func generateEvents(count, hitsPerEvent int, rng *rand.Rand) []*eventbuilder.Event {
	events := make([]*eventbuilder.Event, count)
	for i := range events {
		event := &eventbuilder.Event{ID: uint64(i + 1), Timestamp: uint64(10 * (i + 1)), Trigger: true}
		for h := 0; h < hitsPerEvent; h++ {
			depth := rng.Float64() * thickness
			ctd := ctdRange * depth / thickness
			x := rng.IntN(nStrips)
			y := rng.IntN(nStrips)
			energy := 50 + rng.Float64()*600
			event.AddHit(&eventbuilder.Hit{StripHits: []*eventbuilder.StripHit{
				eventbuilder.NewStripHit(detectorID, x, eventbuilder.AxisX, true, energy, yTiming+ctd),
				eventbuilder.NewStripHit(detectorID, y, eventbuilder.AxisY, false, energy, yTiming),
			}})
		}
		events[i] = event
	}
	return events
}

// writeTelemetry writes the encoded events with a pointing snapshot before
// the first one, after every pointingEvery events and after the last one.
func writeTelemetry(filename string, events []*eventbuilder.Event, encoded [][]byte, pointingEvery int) (int64, error) {
	file, err := os.Create(filename)
	if err != nil {
		return 0, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	var written int64
	write := func(data []byte) error {
		n, err := writer.Write(data)
		written += int64(n)
		return err
	}

	if err := write(telemetry.EncodePointing(snapshot(0))); err != nil {
		return written, err
	}
	for i, data := range encoded {
		if err := write(data); err != nil {
			return written, err
		}
		if pointingEvery > 0 && (i+1)%pointingEvery == 0 {
			if err := write(telemetry.EncodePointing(snapshot(events[i].Timestamp + 5))); err != nil {
				return written, err
			}
		}
	}
	if len(events) > 0 {
		if err := write(telemetry.EncodePointing(snapshot(events[len(events)-1].Timestamp + 5))); err != nil {
			return written, err
		}
	}
	if err := writer.Flush(); err != nil {
		return written, fmt.Errorf("error writing %s: %w", filename, err)
	}
	return written, nil
}

func snapshot(timestamp uint64) *eventbuilder.Pointing {
	return &eventbuilder.Pointing{
		Timestamp: timestamp,
		Source:    eventbuilder.PointingGPS,
		Heading:   float64(timestamp%3600) / 10,
		Latitude:  34.5,
		Longitude: -104.2,
		Altitude:  36000,
	}
}
