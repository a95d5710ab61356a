package eventbuilder

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

type DatabaseConfig struct {
	// Driver is "mysql" (default) or "sqlite". For sqlite DBName is the
	// database file path.
	Driver string
	Host   string
	User   string
	Passwd string
	DBName string
}

func ConnectToDatabase(config DatabaseConfig) (*sqlx.DB, error) {
	switch config.Driver {
	case "", "mysql":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", config.User, config.Passwd, config.Host, port, config.DBName)
		return sqlx.Connect("mysql", dbURI)
	case "sqlite":
		return sqlx.Connect("sqlite", config.DBName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}

func LoadGeometryFromDB(db *sqlx.DB, runNumber int) (*StaticGeometry, error) {
	query := `SELECT DetectorID, Name, Thickness, PitchX, PitchY, NStripsX, NStripsY, OriginX, OriginY, OriginZ
		FROM DetectorGeometry WHERE MinRun <= ? and MaxRun >= ? ORDER BY DetectorID`

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, errMessage
	}
	defer rows.Close()

	detectors := make([]DetectorGeometry, 0)
	for rows.Next() {
		result := DetectorGeometry{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, errMessage
		}
		detectors = append(detectors, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading DB rows: %w", err)
	}
	if len(detectors) == 0 {
		return nil, fmt.Errorf("no detector geometry for run %d", runNumber)
	}
	return NewStaticGeometry(detectors)
}
