package eventbuilder

// Category identifies a kind of processing. Modules declare the categories they
// provide and require, and events record the categories already applied to them.
type Category uint32

const (
	CategoryEventLoader Category = 1 << iota
	CategoryEventLoaderMeasurement
	CategoryEventOrdering
	CategoryAspect
	CategoryEnergyCalibration
	CategoryStripPairing
	CategoryCrosstalkCorrection
	CategoryDepthCorrection
	CategoryPositionDetermination
	CategoryEventSaver
)

// CategoryNoRestriction in a successor list allows any following module.
const CategoryNoRestriction Category = 1 << 31

var categoryNames = []struct {
	c    Category
	name string
}{
	{CategoryEventLoader, "EventLoader"},
	{CategoryEventLoaderMeasurement, "EventLoaderMeasurement"},
	{CategoryEventOrdering, "EventOrdering"},
	{CategoryAspect, "Aspect"},
	{CategoryEnergyCalibration, "EnergyCalibration"},
	{CategoryStripPairing, "StripPairing"},
	{CategoryCrosstalkCorrection, "CrosstalkCorrection"},
	{CategoryDepthCorrection, "DepthCorrection"},
	{CategoryPositionDetermination, "PositionDetermination"},
	{CategoryEventSaver, "EventSaver"},
	{CategoryNoRestriction, "NoRestriction"},
}

func (c Category) String() string {
	if c == 0 {
		return "None"
	}
	out := ""
	for _, entry := range categoryNames {
		if c&entry.c == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += entry.name
	}
	return out
}

// Has reports whether every bit of other is set in c.
func (c Category) Has(other Category) bool {
	return c&other == other
}

type Axis uint8

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "X"
	}
	return "Y"
}

// StripHit is a single channel reading. It is immutable once created.
type StripHit struct {
	detectorID int
	stripID    int
	axis       Axis
	positive   bool
	energy     float64
	timing     float64
}

func NewStripHit(detectorID, stripID int, axis Axis, positive bool, energy, timing float64) *StripHit {
	return &StripHit{
		detectorID: detectorID,
		stripID:    stripID,
		axis:       axis,
		positive:   positive,
		energy:     energy,
		timing:     timing,
	}
}

func (s *StripHit) DetectorID() int       { return s.detectorID }
func (s *StripHit) StripID() int          { return s.stripID }
func (s *StripHit) Axis() Axis            { return s.axis }
func (s *StripHit) IsXStrip() bool        { return s.axis == AxisX }
func (s *StripHit) IsPositiveStrip() bool { return s.positive }
func (s *StripHit) Energy() float64       { return s.energy }
func (s *StripHit) Timing() float64       { return s.timing }

type Vector struct {
	X float64
	Y float64
	Z float64
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Hit is one interaction site. It is owned by exactly one Event.
type Hit struct {
	StripHits []*StripHit
	// Set upstream when a strip on the axis fired more than once or in
	// separated groups.
	MultipleX bool
	MultipleY bool

	Energy             float64
	Position           Vector
	PositionResolution Vector
	HasPosition        bool
	NoDepth            bool
}

func (h *Hit) SetPosition(position, resolution Vector) {
	h.Position = position
	h.PositionResolution = resolution
	h.HasPosition = true
}

type PointingSource uint8

const (
	PointingMagnetometer PointingSource = iota
	PointingGPS
)

// Pointing is the instrument orientation and position at a timestamp.
type Pointing struct {
	Timestamp uint64
	Source    PointingSource

	Heading float64
	Pitch   float64
	Roll    float64

	Latitude  float64
	Longitude float64
	Altitude  float64

	GalacticXLongitude float64
	GalacticXLatitude  float64
	GalacticZLongitude float64
	GalacticZLatitude  float64

	HorizonXAzimuth   float64
	HorizonXElevation float64
	HorizonZAzimuth   float64
	HorizonZElevation float64

	OutOfRange bool
}

// Event is the record of one candidate trigger. Stages enrich it in place.
type Event struct {
	ID        uint64
	Timestamp uint64
	Hits      []*Hit
	Veto      bool
	Trigger   bool
	Pointing  *Pointing

	// DataRead is set by the loader once the event carries data.
	DataRead bool

	DepthCalibrationIncomplete bool

	progress Category
}

func NewEvent() *Event {
	return &Event{}
}

// Clear resets the event so that the cooperative scheduler can reuse it.
func (e *Event) Clear() {
	*e = Event{}
}

// SetAnalysisProgress marks categories as applied. Progress only grows.
func (e *Event) SetAnalysisProgress(c Category) {
	e.progress |= c
}

func (e *Event) AnalysisProgress() Category {
	return e.progress
}

func (e *Event) HasAnalysisProgress(c Category) bool {
	return e.progress.Has(c)
}

func (e *Event) AddHit(h *Hit) {
	e.Hits = append(e.Hits, h)
}

func (e *Event) SetDepthCalibrationIncomplete() {
	e.DepthCalibrationIncomplete = true
}

// Passes reports whether later stages should see the event.
func (e *Event) Passes() bool {
	return e.DataRead && !e.Veto && e.Trigger
}
