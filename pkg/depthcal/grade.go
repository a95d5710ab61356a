package depthcal

import (
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"golang.org/x/exp/slices"
)

const (
	GradeError    = -1
	GradeMultiple = 5
)

// SplitAxes partitions the strips of a hit by axis, keeping their order.
func SplitAxes(hit *eventbuilder.Hit) (x, y []*eventbuilder.StripHit) {
	for _, s := range hit.StripHits {
		if s.IsXStrip() {
			x = append(x, s)
		} else {
			y = append(y, s)
		}
	}
	return x, y
}

// HitGrade classifies the strip pattern of a hit:
//
//	0  one strip on each axis
//	1  one X strip, two adjacent Y strips
//	2  two adjacent X strips, one Y strip
//	3  two adjacent strips on each axis
//	4  any other contiguous pattern
//	5  a strip fired twice or non-adjacent strips fired on an axis
//	-1 no strips, a missing or zero-energy strip, or an axis without strips
func HitGrade(hit *eventbuilder.Hit) int {
	if hit == nil || len(hit.StripHits) == 0 {
		return GradeError
	}
	for _, s := range hit.StripHits {
		if s == nil || s.Energy() == 0 {
			return GradeError
		}
	}

	x, y := SplitAxes(hit)
	if hit.MultipleX || hit.MultipleY || multipleActivation(x) || multipleActivation(y) {
		return GradeMultiple
	}

	switch {
	case len(x) == 0 || len(y) == 0:
		return GradeError
	case len(x) == 1 && len(y) == 1:
		return 0
	case len(x) == 1 && len(y) == 2:
		return 1
	case len(x) == 2 && len(y) == 1:
		return 2
	case len(x) == 2 && len(y) == 2:
		return 3
	default:
		return 4
	}
}

// multipleActivation reports a repeated strip or a gap between strips.
func multipleActivation(strips []*eventbuilder.StripHit) bool {
	if len(strips) < 2 {
		return false
	}
	ids := make([]int, len(strips))
	for i, s := range strips {
		ids[i] = s.StripID()
	}
	slices.Sort(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i]-ids[i-1] != 1 {
			return true
		}
	}
	return false
}

// DominantStrip returns the highest-energy strip, the first one on ties, and
// its share of the total energy. The share is 0 when the total is 0.
func DominantStrip(strips []*eventbuilder.StripHit) (*eventbuilder.StripHit, float64) {
	var dominant *eventbuilder.StripHit
	total := 0.0
	for _, s := range strips {
		total += s.Energy()
		if dominant == nil || s.Energy() > dominant.Energy() {
			dominant = s
		}
	}
	if dominant == nil || total == 0 {
		return dominant, 0
	}
	return dominant, dominant.Energy() / total
}
