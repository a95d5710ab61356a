package depthcal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCoefficientsSkipsMalformedLines(t *testing.T) {
	input := `# pixel stretch offset fwhm chi2
10000 500.0 10.0 6.0 1.2

10101 1.0 2.0
10102 1.0 abc 3.0 4.0
10103 0 1.0 3.0 4.0
  10203   0.9  -3.5  5.5  0.8
10000 1 2 3 4 5
`
	table, err := LoadCoefficients(strings.NewReader(input))
	require.NoError(t, err)

	want := CoefficientTable{
		10000: {PixelCode: 10000, Stretch: 500, Offset: 10, TimingNoiseFWHM: 6, Chi2: 1.2},
		10203: {PixelCode: 10203, Stretch: 0.9, Offset: -3.5, TimingNoiseFWHM: 5.5, Chi2: 0.8},
	}
	assert.Empty(t, cmp.Diff(want, table))
}

func TestLoadCoefficientsFileMissing(t *testing.T) {
	_, err := LoadCoefficientsFile(filepath.Join(t.TempDir(), "coeffs.txt"))
	var openErr *eventbuilder.ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func TestLoadSplines(t *testing.T) {
	input := `# DetID 1
0.0 0 1
0.5 50 51
1.0 100 101

#2
1.5 30 31
0.0 10 11
`
	table, err := LoadSplines(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, table.Detectors())

	one, ok := table.Group(1)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0.5, 1.0}, one.Depths)
	assert.Equal(t, [][]float64{{0, 50, 100}, {1, 51, 101}}, one.Curves)
	assert.Equal(t, 1.0, one.Thickness())
	assert.Equal(t, []float64{1, 51, 101}, one.Curve(1))
	assert.Equal(t, []float64{0, 50, 100}, one.Curve(3))

	two, ok := table.Group(2)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1.5}, two.Depths)
	assert.Equal(t, [][]float64{{10, 30}, {11, 31}}, two.Curves)
	assert.Equal(t, 1.5, two.Thickness())
}

func TestLoadSplinesRejectsInvalidFiles(t *testing.T) {
	tests := map[string]string{
		"minimum depth not zero": "# det 1\n0.0 1\n1.0 2\n# det 2\n0.1 1\n1.0 2\n",
		"column count changes":   "# det 1\n0.0 1 2\n1.0 2\n",
		"unparsable value":       "# det 1\n0.0 x\n",
		"values before header":   "0.0 1\n",
		"header without id":      "# depth table\n0.0 1\n",
		"depth only":             "# det 1\n0.0\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSplines(strings.NewReader(input))
			assert.Error(t, err)
		})
	}

	_, err := LoadSplines(strings.NewReader("# det 4\n0.5 1\n1.0 2\n"))
	var groupErr *ErrSplineGroup
	require.ErrorAs(t, err, &groupErr)
	assert.Equal(t, 4, groupErr.Detector)
}

func TestAddGroupRejectionLeavesTableUnchanged(t *testing.T) {
	table := NewSplineTable()
	require.NoError(t, table.AddGroup(1, []float64{0, 1}, [][]float64{{0, 10}}))
	require.NoError(t, table.AddGroup(2, []float64{0, 2}, [][]float64{{5, 15}}))

	err := table.AddGroup(2, []float64{0.2, 1}, [][]float64{{1, 2}})
	var groupErr *ErrSplineGroup
	require.ErrorAs(t, err, &groupErr)
	assert.Error(t, table.AddGroup(3, []float64{0, 1}, [][]float64{{1}}))
	assert.Error(t, table.AddGroup(3, []float64{0, 1}, nil))

	assert.Equal(t, []int{1, 2}, table.Detectors())
	two, _ := table.Group(2)
	assert.Equal(t, &SplineGroup{Depths: []float64{0, 2}, Curves: [][]float64{{5, 15}}}, two)
	one, _ := table.Group(1)
	assert.Equal(t, &SplineGroup{Depths: []float64{0, 1}, Curves: [][]float64{{0, 10}}}, one)
}

func TestLoadSplinesFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "splines.txt")
	require.NoError(t, os.WriteFile(filename, []byte("# det 7\n0 0\n1.5 100\n"), 0o644))

	table, err := LoadSplinesFile(filename)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, table.Detectors())

	_, err = LoadSplinesFile(filepath.Join(t.TempDir(), "missing.txt"))
	var openErr *eventbuilder.ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}
