// Package store persists smoothed measurements to an embedded SQLite
// database, one table per physical quantity. Persistence is best-effort:
// callers check Available and a failed insert never stops the sampling
// pipeline.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/relabs-tech/air_monitor/internal/sensor"
)

// schema contains the database schema DDL, applied idempotently on Begin.
const schema = `
CREATE TABLE IF NOT EXISTS temperature
(id INTEGER PRIMARY KEY AUTOINCREMENT
,sensor_id INTEGER NOT NULL
,at INTEGER NOT NULL
,degc REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS relative_humidity
(id INTEGER PRIMARY KEY AUTOINCREMENT
,sensor_id INTEGER NOT NULL
,at INTEGER NOT NULL
,rh REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS pressure
(id INTEGER PRIMARY KEY AUTOINCREMENT
,sensor_id INTEGER NOT NULL
,at INTEGER NOT NULL
,hpa REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS carbon_dioxide
(id INTEGER PRIMARY KEY AUTOINCREMENT
,sensor_id INTEGER NOT NULL
,at INTEGER NOT NULL
,ppm REAL NOT NULL
,baseline INTEGER
);
CREATE TABLE IF NOT EXISTS total_voc
(id INTEGER PRIMARY KEY AUTOINCREMENT
,sensor_id INTEGER NOT NULL
,at INTEGER NOT NULL
,ppb REAL NOT NULL
,baseline INTEGER
);
`

// Order selects the timestamp ordering of read operations.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

func (o Order) sql() string {
	if o == OrderDesc {
		return " ORDER BY at DESC"
	}
	return " ORDER BY at ASC"
}

// TimeAndDouble is one row of a floating-point quantity table.
type TimeAndDouble struct {
	SensorID sensor.ID
	At       time.Time
	Value    float64
}

// TimeAndIntAndOptInt is one row of a gas-concentration table with its
// nullable calibration baseline.
type TimeAndIntAndOptInt struct {
	SensorID sensor.ID
	At       time.Time
	Value    uint16
	Baseline *uint16
}

// RowIDs holds the last inserted rowid per quantity table. A consumer can
// poll these to detect new data without a separate change feed.
type RowIDs struct {
	Temperature      int64
	RelativeHumidity int64
	Pressure         int64
	CarbonDioxide    int64
	TotalVOC         int64
}

// Store is the local measurements database.
type Store struct {
	filename    string
	stmtTimeout time.Duration
	db          *sql.DB
	available   bool

	mu     sync.Mutex
	latest map[sensor.ID]sensor.Measurement
	rowids RowIDs
}

// New returns a store for the given database file. Call Begin before use.
// stmtTimeout bounds the retry loop around every statement execution.
func New(filename string, stmtTimeout time.Duration) *Store {
	return &Store{
		filename:    filename,
		stmtTimeout: stmtTimeout,
		latest:      make(map[sensor.ID]sensor.Measurement),
	}
}

// Begin opens (or creates) the database file and applies the schema. An
// error here leaves the store unavailable until Begin is called again.
func (s *Store) Begin() error {
	if s.db != nil {
		s.Close()
	}
	db, err := sql.Open("sqlite3", s.filename)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", s.filename, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("store: create tables: %w", err)
	}
	s.db = db
	s.available = true
	return nil
}

// Available reports whether Begin succeeded. Statement timeouts do not
// clear this; only open/schema failures do.
func (s *Store) Available() bool { return s.available }

// Close releases the database handle and marks the store unavailable.
func (s *Store) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("store: close failed: %v", err)
		}
	}
	s.db = nil
	s.available = false
}

func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// execRetry runs one statement, retrying on lock contention until the
// statement timeout elapses. A timeout fails the statement but does not
// mark the store unavailable.
func (s *Store) execRetry(tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	deadline := time.Now().Add(s.stmtTimeout)
	for {
		res, err := tx.Exec(query, args...)
		if err == nil {
			return res, nil
		}
		if !isBusy(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("statement timed out after %v: %w", s.stmtTimeout, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func insertRow(s *Store, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := s.execRetry(tx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Insert persists one Measurement, decomposed into its per-quantity rows
// inside a single transaction: either every row lands or none do. A nil
// value (no data) is a no-op. On success the measurement is cached as the
// sensor's latest.
func (s *Store) Insert(m sensor.Measurement) error {
	if !s.available {
		return fmt.Errorf("store: not available")
	}
	if m.Value == nil {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	// Rollback after a successful commit is a harmless ErrTxDone.
	defer tx.Rollback()

	var rowids RowIDs
	at := m.At.Unix()
	id := int64(m.Value.SensorDescriptor().ID())

	switch v := m.Value.(type) {
	case sensor.TempHumiPres:
		if rowids.Temperature, err = insertRow(s, tx,
			"INSERT INTO temperature(sensor_id,at,degc) VALUES(?,?,?);",
			id, at, v.Temperature.DegC()); err != nil {
			return fmt.Errorf("store: insert temperature: %w", err)
		}
		if rowids.Pressure, err = insertRow(s, tx,
			"INSERT INTO pressure(sensor_id,at,hpa) VALUES(?,?,?);",
			id, at, v.Pressure.HectoPa()); err != nil {
			return fmt.Errorf("store: insert pressure: %w", err)
		}
		if rowids.RelativeHumidity, err = insertRow(s, tx,
			"INSERT INTO relative_humidity(sensor_id,at,rh) VALUES(?,?,?);",
			id, at, v.RelativeHumidity.PctRH()); err != nil {
			return fmt.Errorf("store: insert relative humidity: %w", err)
		}

	case sensor.AirQuality:
		if rowids.TotalVOC, err = insertRow(s, tx,
			"INSERT INTO total_voc(sensor_id,at,ppb,baseline) VALUES(?,?,?,?);",
			id, at, int64(v.TVOC), nullableBaseline(v.TVOCBaseline)); err != nil {
			return fmt.Errorf("store: insert total voc: %w", err)
		}
		if rowids.CarbonDioxide, err = insertRow(s, tx,
			"INSERT INTO carbon_dioxide(sensor_id,at,ppm,baseline) VALUES(?,?,?,?);",
			id, at, int64(v.ECo2), nullableBaseline(v.ECo2Baseline)); err != nil {
			return fmt.Errorf("store: insert carbon dioxide: %w", err)
		}

	case sensor.CO2TempHumi:
		if rowids.Temperature, err = insertRow(s, tx,
			"INSERT INTO temperature(sensor_id,at,degc) VALUES(?,?,?);",
			id, at, v.Temperature.DegC()); err != nil {
			return fmt.Errorf("store: insert temperature: %w", err)
		}
		if rowids.RelativeHumidity, err = insertRow(s, tx,
			"INSERT INTO relative_humidity(sensor_id,at,rh) VALUES(?,?,?);",
			id, at, v.RelativeHumidity.PctRH()); err != nil {
			return fmt.Errorf("store: insert relative humidity: %w", err)
		}
		if rowids.CarbonDioxide, err = insertRow(s, tx,
			"INSERT INTO carbon_dioxide(sensor_id,at,ppm,baseline) VALUES(?,?,?,NULL);",
			id, at, int64(v.CO2)); err != nil {
			return fmt.Errorf("store: insert carbon dioxide: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	s.mu.Lock()
	if rowids.Temperature != 0 {
		s.rowids.Temperature = rowids.Temperature
	}
	if rowids.RelativeHumidity != 0 {
		s.rowids.RelativeHumidity = rowids.RelativeHumidity
	}
	if rowids.Pressure != 0 {
		s.rowids.Pressure = rowids.Pressure
	}
	if rowids.CarbonDioxide != 0 {
		s.rowids.CarbonDioxide = rowids.CarbonDioxide
	}
	if rowids.TotalVOC != 0 {
		s.rowids.TotalVOC = rowids.TotalVOC
	}
	s.latest[m.Value.SensorDescriptor().ID()] = m
	s.mu.Unlock()
	return nil
}

func nullableBaseline[T ~uint16](b *T) any {
	if b == nil {
		return nil
	}
	return int64(*b)
}

// Latest returns the most recently inserted measurement for a sensor
// without touching the database.
func (s *Store) Latest(id sensor.ID) (sensor.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.latest[id]
	return m, ok
}

// LastRowIDs returns the last inserted rowid per table.
func (s *Store) LastRowIDs() RowIDs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowids
}

// ReadCallback receives rows one at a time; returning false stops the
// scan before further rows are materialized.
type ReadCallback[T any] func(i int, row T) bool

func (s *Store) readDoubles(query string, id sensor.ID, limit int, cb ReadCallback[TimeAndDouble]) (int, error) {
	if !s.available {
		return 0, fmt.Errorf("store: not available")
	}
	rows, err := s.db.Query(query, int64(id), limit)
	if err != nil {
		return 0, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var sensorID, at int64
		var value float64
		if err := rows.Scan(&sensorID, &at, &value); err != nil {
			return n, fmt.Errorf("store: scan: %w", err)
		}
		row := TimeAndDouble{SensorID: sensor.ID(sensorID), At: time.Unix(at, 0), Value: value}
		if !cb(n, row) {
			break
		}
		n++
	}
	return n, rows.Err()
}

func (s *Store) readIntsWithBaseline(query string, id sensor.ID, limit int, cb ReadCallback[TimeAndIntAndOptInt]) (int, error) {
	if !s.available {
		return 0, fmt.Errorf("store: not available")
	}
	rows, err := s.db.Query(query, int64(id), limit)
	if err != nil {
		return 0, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var sensorID, at int64
		var value float64
		var baseline sql.NullInt64
		if err := rows.Scan(&sensorID, &at, &value, &baseline); err != nil {
			return n, fmt.Errorf("store: scan: %w", err)
		}
		row := TimeAndIntAndOptInt{SensorID: sensor.ID(sensorID), At: time.Unix(at, 0), Value: uint16(value)}
		if baseline.Valid {
			b := uint16(baseline.Int64)
			row.Baseline = &b
		}
		if !cb(n, row) {
			break
		}
		n++
	}
	return n, rows.Err()
}

// ReadTemperatures streams up to limit temperature rows for one sensor.
func (s *Store) ReadTemperatures(order Order, id sensor.ID, limit int, cb ReadCallback[TimeAndDouble]) (int, error) {
	query := "SELECT sensor_id,at,degc FROM temperature WHERE sensor_id=?" + order.sql() + " LIMIT ?;"
	return s.readDoubles(query, id, limit, cb)
}

// ReadRelativeHumidities streams up to limit relative-humidity rows.
func (s *Store) ReadRelativeHumidities(order Order, id sensor.ID, limit int, cb ReadCallback[TimeAndDouble]) (int, error) {
	query := "SELECT sensor_id,at,rh FROM relative_humidity WHERE sensor_id=?" + order.sql() + " LIMIT ?;"
	return s.readDoubles(query, id, limit, cb)
}

// ReadPressures streams up to limit pressure rows.
func (s *Store) ReadPressures(order Order, id sensor.ID, limit int, cb ReadCallback[TimeAndDouble]) (int, error) {
	query := "SELECT sensor_id,at,hpa FROM pressure WHERE sensor_id=?" + order.sql() + " LIMIT ?;"
	return s.readDoubles(query, id, limit, cb)
}

// ReadCarbonDioxides streams up to limit CO2 rows with baselines.
func (s *Store) ReadCarbonDioxides(order Order, id sensor.ID, limit int, cb ReadCallback[TimeAndIntAndOptInt]) (int, error) {
	query := "SELECT sensor_id,at,ppm,baseline FROM carbon_dioxide WHERE sensor_id=?" + order.sql() + " LIMIT ?;"
	return s.readIntsWithBaseline(query, id, limit, cb)
}

// ReadTotalVOCs streams up to limit total-VOC rows with baselines.
func (s *Store) ReadTotalVOCs(order Order, id sensor.ID, limit int, cb ReadCallback[TimeAndIntAndOptInt]) (int, error) {
	query := "SELECT sensor_id,at,ppb,baseline FROM total_voc WHERE sensor_id=?" + order.sql() + " LIMIT ?;"
	return s.readIntsWithBaseline(query, id, limit, cb)
}

// Temperatures materializes up to limit temperature rows.
func (s *Store) Temperatures(order Order, id sensor.ID, limit int) ([]TimeAndDouble, error) {
	out := make([]TimeAndDouble, 0, limit)
	_, err := s.ReadTemperatures(order, id, limit, func(_ int, row TimeAndDouble) bool {
		out = append(out, row)
		return true
	})
	return out, err
}

func (s *Store) latestBaseline(table string, id sensor.ID) (time.Time, uint16, bool) {
	if !s.available {
		return time.Time{}, 0, false
	}
	query := "SELECT at,baseline FROM " + table +
		" WHERE sensor_id=? AND baseline NOTNULL ORDER BY at DESC LIMIT 1;"
	var at, baseline int64
	err := s.db.QueryRow(query, int64(id)).Scan(&at, &baseline)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, false
	}
	if err != nil {
		log.Printf("store: latest baseline from %s: %v", table, err)
		return time.Time{}, 0, false
	}
	return time.Unix(at, 0), uint16(baseline), true
}

// LatestBaselineECo2 returns the most recent persisted eCO2 baseline for
// a sensor and when it was recorded.
func (s *Store) LatestBaselineECo2(id sensor.ID) (time.Time, sensor.BaselineECo2, bool) {
	at, b, ok := s.latestBaseline("carbon_dioxide", id)
	return at, sensor.BaselineECo2(b), ok
}

// LatestBaselineTotalVOC returns the most recent persisted TVOC baseline.
func (s *Store) LatestBaselineTotalVOC(id sensor.ID) (time.Time, sensor.BaselineTotalVoc, bool) {
	at, b, ok := s.latestBaseline("total_voc", id)
	return at, sensor.BaselineTotalVoc(b), ok
}

// SensorIDs returns every distinct sensor id present in the database.
func (s *Store) SensorIDs() ([]sensor.ID, error) {
	if !s.available {
		return nil, fmt.Errorf("store: not available")
	}
	query := `SELECT DISTINCT sensor_id FROM (
SELECT sensor_id FROM temperature
UNION SELECT sensor_id FROM relative_humidity
UNION SELECT sensor_id FROM pressure
UNION SELECT sensor_id FROM carbon_dioxide
UNION SELECT sensor_id FROM total_voc
) ORDER BY sensor_id;`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: query sensor ids: %w", err)
	}
	defer rows.Close()

	var ids []sensor.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan sensor id: %w", err)
		}
		ids = append(ids, sensor.ID(id))
	}
	return ids, rows.Err()
}

// DeleteOldMeasurements removes rows older than cutoff from every
// quantity table in one transaction, keeping the file bounded to roughly
// the history window.
func (s *Store) DeleteOldMeasurements(cutoff time.Time) error {
	if !s.available {
		return fmt.Errorf("store: not available")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	at := cutoff.Unix()
	for _, table := range []string{"temperature", "relative_humidity", "pressure", "carbon_dioxide", "total_voc"} {
		if _, err := s.execRetry(tx, "DELETE FROM "+table+" WHERE at < ?;", at); err != nil {
			return fmt.Errorf("store: prune %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit prune: %w", err)
	}
	return nil
}
