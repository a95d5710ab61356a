package eventbuilder

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// DetectorGeometry describes one double-sided strip detector.
type DetectorGeometry struct {
	ID        int     `json:"id" db:"DetectorID"`
	Name      string  `json:"name" db:"Name"`
	Thickness float64 `json:"thickness" db:"Thickness"`
	PitchX    float64 `json:"pitch_x" db:"PitchX"`
	PitchY    float64 `json:"pitch_y" db:"PitchY"`
	NStripsX  int     `json:"n_strips_x" db:"NStripsX"`
	NStripsY  int     `json:"n_strips_y" db:"NStripsY"`
	OriginX   float64 `json:"origin_x" db:"OriginX"`
	OriginY   float64 `json:"origin_y" db:"OriginY"`
	OriginZ   float64 `json:"origin_z" db:"OriginZ"`
}

// GlobalPosition converts a position local to the detector centre.
func (d DetectorGeometry) GlobalPosition(local Vector) Vector {
	return local.Add(Vector{X: d.OriginX, Y: d.OriginY, Z: d.OriginZ})
}

// Geometry provides detector descriptions. It is consumed once at
// initialization.
type Geometry interface {
	Detector(id int) (DetectorGeometry, bool)
	DetectorIDs() []int
}

type StaticGeometry struct {
	detectors map[int]DetectorGeometry
}

func NewStaticGeometry(detectors []DetectorGeometry) (*StaticGeometry, error) {
	g := &StaticGeometry{detectors: make(map[int]DetectorGeometry)}
	for _, d := range detectors {
		if _, ok := g.detectors[d.ID]; ok {
			return nil, fmt.Errorf("detector %d defined twice", d.ID)
		}
		if d.PitchX <= 0 || d.PitchY <= 0 {
			return nil, fmt.Errorf("detector %d (%s): strip pitch must be positive", d.ID, d.Name)
		}
		if d.NStripsX <= 0 || d.NStripsY <= 0 {
			return nil, fmt.Errorf("detector %d (%s): strip count must be positive", d.ID, d.Name)
		}
		if d.Thickness <= 0 {
			return nil, fmt.Errorf("detector %d (%s): thickness must be positive", d.ID, d.Name)
		}
		g.detectors[d.ID] = d
	}
	return g, nil
}

func (g *StaticGeometry) Detector(id int) (DetectorGeometry, bool) {
	d, ok := g.detectors[id]
	return d, ok
}

func (g *StaticGeometry) DetectorIDs() []int {
	ids := make([]int, 0, len(g.detectors))
	for id := range g.detectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
