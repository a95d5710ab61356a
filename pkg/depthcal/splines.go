package depthcal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
)

// ErrSplineGroup represents a rejected depth/timing group.
type ErrSplineGroup struct {
	Detector int
	Reason   string
}

func (e *ErrSplineGroup) Error() string {
	return fmt.Sprintf("spline group of detector %d: %s", e.Detector, e.Reason)
}

// SplineGroup is the simulated timing difference of one detector as a function
// of depth. Curves[i][j] is curve i at Depths[j]; curve i belongs to grade i.
type SplineGroup struct {
	Depths []float64
	Curves [][]float64
}

// Thickness is the deepest grid point.
func (g *SplineGroup) Thickness() float64 {
	return g.Depths[len(g.Depths)-1]
}

// Curve returns the curve of a grade, or the first one when the grade has none.
func (g *SplineGroup) Curve(grade int) []float64 {
	if grade >= 0 && grade < len(g.Curves) {
		return g.Curves[grade]
	}
	return g.Curves[0]
}

type SplineTable struct {
	groups map[int]*SplineGroup
}

func NewSplineTable() *SplineTable {
	return &SplineTable{groups: make(map[int]*SplineGroup)}
}

// AddGroup validates a group and stores it sorted by depth. A rejected group
// leaves the table untouched.
func (t *SplineTable) AddGroup(detector int, depths []float64, curves [][]float64) error {
	if len(depths) == 0 {
		return &ErrSplineGroup{Detector: detector, Reason: "no depth values"}
	}
	if len(curves) == 0 {
		return &ErrSplineGroup{Detector: detector, Reason: "no timing curves"}
	}
	for i, curve := range curves {
		if len(curve) != len(depths) {
			return &ErrSplineGroup{Detector: detector, Reason: fmt.Sprintf("curve %d has %d values for %d depths", i, len(curve), len(depths))}
		}
	}
	if floats.Min(depths) != 0 {
		return &ErrSplineGroup{Detector: detector, Reason: "the minimum depth is not zero"}
	}

	order := make([]int, len(depths))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return depths[order[a]] < depths[order[b]] })

	group := &SplineGroup{
		Depths: make([]float64, len(depths)),
		Curves: make([][]float64, len(curves)),
	}
	for i := range curves {
		group.Curves[i] = make([]float64, len(depths))
	}
	for j, k := range order {
		group.Depths[j] = depths[k]
		for i, curve := range curves {
			group.Curves[i][j] = curve[k]
		}
	}
	t.groups[detector] = group
	return nil
}

func (t *SplineTable) Group(detector int) (*SplineGroup, bool) {
	g, ok := t.groups[detector]
	return g, ok
}

func (t *SplineTable) Detectors() []int {
	ids := make([]int, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LoadSplines reads a depth/timing file. A "#" header line starts the group of
// a detector, "# <tag> <detectorID>" or "# <detectorID>"; every other non-empty
// line is "depth ctd0 [ctd1 ...]". Any invalid group rejects the whole load.
func LoadSplines(r io.Reader) (*SplineTable, error) {
	table := NewSplineTable()

	detector := 0
	inGroup := false
	var depths []float64
	var curves [][]float64

	flush := func() error {
		if !inGroup || len(depths) == 0 {
			return nil
		}
		return table.AddGroup(detector, depths, curves)
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			id, err := headerDetector(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			if err := flush(); err != nil {
				return nil, err
			}
			detector = id
			inGroup = true
			depths = nil
			curves = nil
			continue
		}

		if !inGroup {
			return nil, fmt.Errorf("line %d: values before the first group header", lineNumber)
		}
		tokens := strings.Fields(line)
		if len(tokens) < 2 {
			return nil, fmt.Errorf("line %d: expected a depth and at least one timing value", lineNumber)
		}
		if curves == nil {
			curves = make([][]float64, len(tokens)-1)
		} else if len(tokens)-1 != len(curves) {
			return nil, fmt.Errorf("line %d: %d timing values, the group has %d", lineNumber, len(tokens)-1, len(curves))
		}
		values := make([]float64, len(tokens))
		for i, token := range tokens {
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNumber, err)
			}
			values[i] = v
		}
		depths = append(depths, values[0])
		for i := range curves {
			curves[i] = append(curves[i], values[i+1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading splines: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return table, nil
}

func headerDetector(line string) (int, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "#"))
	if len(fields) >= 2 {
		if id, err := strconv.Atoi(fields[1]); err == nil {
			return id, nil
		}
	}
	if len(fields) >= 1 {
		if id, err := strconv.Atoi(fields[0]); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no detector ID in header %q", line)
}

func LoadSplinesFile(filename string) (*SplineTable, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()
	return LoadSplines(file)
}
