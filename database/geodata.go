package database

import (
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/opina-app/opina/log"
)

// ImportGeodata loads IBGE municipality data from a CSV file into the city
// table. Expected columns: ibge_code, name, latitude, longitude, capital
// (0/1), state_uf. A header row is detected and skipped. Existing cities are
// updated in place so the import can be re-run on newer IBGE releases.
func ImportGeodata(db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open geodata file")
	}
	defer f.Close()

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin geodata import")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO city (ibge_code, name, latitude, longitude, is_capital, state_id)
		VALUES (?, ?, ?, ?, ?, (SELECT id FROM state WHERE uf = ?))
		ON CONFLICT (ibge_code) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			is_capital = excluded.is_capital,
			state_id = excluded.state_id`)
	if err != nil {
		return errors.Wrap(err, "prepare city upsert")
	}
	defer stmt.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 6

	imported, line := 0, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "read geodata line %d", line+1)
		}
		line++

		if line == 1 && record[0] == "ibge_code" {
			continue
		}

		lat, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return errors.Wrapf(err, "geodata line %d: latitude", line)
		}
		lon, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return errors.Wrapf(err, "geodata line %d: longitude", line)
		}
		capital := record[4] == "1" || record[4] == "true"

		_, err = stmt.Exec(record[0], record[1], lat, lon, capital, record[5])
		if err != nil {
			return errors.Wrapf(err, "geodata line %d: upsert city %s", line, record[0])
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit geodata import")
	}

	log.Infof("geodata: imported %d cities from %s", imported, path)
	return nil
}
