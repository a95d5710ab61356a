package depthcal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// PixelCode identifies one X/Y strip crossing of a detector.
func PixelCode(detector, xStrip, yStrip int) int {
	return 10000*detector + 100*xStrip + yStrip
}

// PixelCoefficients maps the measured timing difference of a pixel onto the
// simulated one.
type PixelCoefficients struct {
	PixelCode       int     `db:"PixelCode"`
	Stretch         float64 `db:"Stretch"`
	Offset          float64 `db:"TimeOffset"`
	TimingNoiseFWHM float64 `db:"TimingNoiseFWHM"`
	Chi2            float64 `db:"Chi2"`
}

type CoefficientTable map[int]PixelCoefficients

// LoadCoefficients reads "pixelCode stretch offset timingNoiseFWHM chi2" lines.
// Comments, lines with another number of fields and lines that do not parse
// are skipped.
func LoadCoefficients(r io.Reader) (CoefficientTable, error) {
	table := make(CoefficientTable)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		coeffs, ok := parseCoefficients(strings.Fields(line))
		if !ok {
			continue
		}
		table[coeffs.PixelCode] = coeffs
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading coefficients: %w", err)
	}
	return table, nil
}

func parseCoefficients(tokens []string) (PixelCoefficients, bool) {
	var coeffs PixelCoefficients
	if len(tokens) != 5 {
		return coeffs, false
	}
	code, err := strconv.Atoi(tokens[0])
	if err != nil {
		return coeffs, false
	}
	values := make([]float64, 4)
	for i, token := range tokens[1:] {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return coeffs, false
		}
		values[i] = v
	}
	// a zero stretch cannot be inverted
	if values[0] == 0 {
		return coeffs, false
	}
	coeffs = PixelCoefficients{
		PixelCode:       code,
		Stretch:         values[0],
		Offset:          values[1],
		TimingNoiseFWHM: values[2],
		Chi2:            values[3],
	}
	return coeffs, true
}

func LoadCoefficientsFile(filename string) (CoefficientTable, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()
	return LoadCoefficients(file)
}
