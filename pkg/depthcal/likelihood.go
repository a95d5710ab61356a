package depthcal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// FWHMToSigma converts a Gaussian full width at half maximum.
const FWHMToSigma = 1 / 2.355

// EstimateDepth weighs every grid depth by the Gaussian likelihood of the
// observed timing difference against the simulated one at that depth. It
// returns the weighted mean depth and the weighted population standard
// deviation.
func EstimateDepth(depths, curve []float64, observed, sigma float64) (depth, uncertainty float64, err error) {
	if len(depths) == 0 || len(depths) != len(curve) {
		return 0, 0, fmt.Errorf("depth grid of %d points for a curve of %d", len(depths), len(curve))
	}

	weights := make([]float64, len(curve))
	if sigma > 0 {
		dist := distuv.Normal{Mu: observed, Sigma: sigma}
		for i, c := range curve {
			weights[i] = dist.LogProb(c)
		}
		// normalized to the most likely point so narrow widths do not underflow
		top := floats.Max(weights)
		if math.IsInf(top, 0) || math.IsNaN(top) {
			nearest(curve, observed, weights)
		} else {
			for i := range weights {
				weights[i] = math.Exp(weights[i] - top)
			}
		}
	} else {
		nearest(curve, observed, weights)
	}

	depth, uncertainty = stat.PopMeanStdDev(depths, weights)
	return depth, uncertainty, nil
}

// nearest gives equal weight to the grid points closest to observed.
func nearest(curve []float64, observed float64, weights []float64) {
	best := math.Inf(1)
	for _, c := range curve {
		best = math.Min(best, math.Abs(c-observed))
	}
	for i, c := range curve {
		if math.Abs(c-observed) == best {
			weights[i] = 1
		} else {
			weights[i] = 0
		}
	}
}
