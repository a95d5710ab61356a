package depthcal

import (
	"fmt"

	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

// LoadCoefficientsFromDB reads the pixel coefficients valid for a run.
func LoadCoefficientsFromDB(db *sqlx.DB, runNumber int) (CoefficientTable, error) {
	query := `SELECT PixelCode, Stretch, TimeOffset, TimingNoiseFWHM, Chi2
		FROM DepthCoefficients WHERE MinRun <= ? and MaxRun >= ?`

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, errMessage
	}
	defer rows.Close()

	table := make(CoefficientTable)
	for rows.Next() {
		result := PixelCoefficients{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, errMessage
		}
		if result.Stretch == 0 {
			continue
		}
		table[result.PixelCode] = result
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading DB rows: %w", err)
	}
	return table, nil
}
