package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteWriter writes the records of one run to an SQLite database.
// All records are written in a single transaction that is committed by
// Close.
type SQLiteWriter struct {
	db          *sql.DB
	tx          *sql.Tx
	runID       string
	peptideStmt *sql.Stmt
	chargeStmt  *sql.Stmt
	isoStmt     *sql.Stmt
}

// NewSQLiteWriter opens (or creates) the database at path and registers
// run in it
func NewSQLiteWriter(path string, run Run) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	w := &SQLiteWriter{db: db, runID: run.RunID}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	if w.tx, err = db.Begin(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	_, err = w.tx.Exec(`
		INSERT INTO Run (RunId, Version, FormatVersion, Created, Source)
		VALUES (?, ?, ?, ?, ?)
	`, run.RunID, run.Version, run.FormatVersion, run.Created.Format(time.RFC3339), run.Source)
	if err != nil {
		w.abort()
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	if err := w.prepareStatements(); err != nil {
		w.abort()
		return nil, err
	}
	return w, nil
}

// createTables creates the database schema
func (w *SQLiteWriter) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS Run (
		RunId TEXT PRIMARY KEY,
		Version TEXT,
		FormatVersion TEXT,
		Created TEXT,
		Source TEXT
	);

	CREATE TABLE IF NOT EXISTS Peptide (
		PeptideId INTEGER PRIMARY KEY,
		RunId TEXT REFERENCES Run(RunId),
		PsmIndex INTEGER,
		Sequence TEXT,
		Charge INTEGER,
		SpectrumId TEXT,
		Status TEXT,
		StatusCode INTEGER,
		Identified TEXT,
		LightMass DOUBLE,
		HeavyMass DOUBLE,
		AreaMode TEXT,
		Ratio DOUBLE,
		RatioError DOUBLE,
		InverseRatio DOUBLE,
		InverseRatioError DOUBLE,
		Area DOUBLE,
		LightTime DOUBLE,
		LightHalfWidth DOUBLE,
		HeavyTime DOUBLE,
		HeavyHalfWidth DOUBLE,
		ErrorCode TEXT,
		Error TEXT
	);

	CREATE TABLE IF NOT EXISTS ChargeState (
		ChargeStateId INTEGER PRIMARY KEY,
		PeptideId INTEGER REFERENCES Peptide(PeptideId),
		Charge INTEGER,
		Ratio DOUBLE,
		RatioError DOUBLE,
		Included BOOL
	);

	CREATE TABLE IF NOT EXISTS Isotopolog (
		ChargeStateId INTEGER REFERENCES ChargeState(ChargeStateId),
		Isotopolog TEXT,
		Status TEXT,
		StatusCode INTEGER,
		LeftScan INTEGER,
		PeakScan INTEGER,
		RightScan INTEGER,
		Background DOUBLE,
		Area DOUBLE,
		AreaError DOUBLE,
		Time DOUBLE,
		HalfWidth DOUBLE
	);
	`
	if _, err := w.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// prepareStatements prepares the insert statements within the
// transaction
func (w *SQLiteWriter) prepareStatements() error {
	var err error
	w.peptideStmt, err = w.tx.Prepare(`
		INSERT INTO Peptide (
			RunId, PsmIndex, Sequence, Charge, SpectrumId, Status, StatusCode,
			Identified, LightMass, HeavyMass, AreaMode, Ratio, RatioError,
			InverseRatio, InverseRatioError, Area, LightTime, LightHalfWidth,
			HeavyTime, HeavyHalfWidth, ErrorCode, Error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare peptide statement: %w", err)
	}
	w.chargeStmt, err = w.tx.Prepare(`
		INSERT INTO ChargeState (PeptideId, Charge, Ratio, RatioError, Included)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare charge state statement: %w", err)
	}
	w.isoStmt, err = w.tx.Prepare(`
		INSERT INTO Isotopolog (
			ChargeStateId, Isotopolog, Status, StatusCode, LeftScan, PeakScan,
			RightScan, Background, Area, AreaError, Time, HalfWidth
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare isotopolog statement: %w", err)
	}
	return nil
}

// Write inserts one record with its charge states
func (w *SQLiteWriter) Write(rec Record) error {
	res, err := w.peptideStmt.Exec(
		w.runID, rec.Index, rec.Peptide, rec.Charge, rec.SpectrumID,
		rec.Status, rec.StatusCode, rec.Identified, rec.LightMass,
		rec.HeavyMass, rec.AreaMode, rec.Ratio, rec.RatioError,
		rec.InverseRatio, rec.InverseRatioError, rec.Area,
		rec.LightTime[0], rec.LightTime[1], rec.HeavyTime[0], rec.HeavyTime[1],
		rec.ErrorCode, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert peptide: %w", err)
	}
	pepID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, cs := range rec.ChargeStates {
		res, err := w.chargeStmt.Exec(pepID, cs.Charge, cs.Ratio, cs.RatioError, cs.Included)
		if err != nil {
			return fmt.Errorf("failed to insert charge state: %w", err)
		}
		csID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, iso := range []struct {
			name string
			p    Isotopolog
		}{{"light", cs.Light}, {"heavy", cs.Heavy}} {
			_, err := w.isoStmt.Exec(
				csID, iso.name, iso.p.Status, iso.p.StatusCode, iso.p.LeftScan,
				iso.p.PeakScan, iso.p.RightScan, iso.p.Background, iso.p.Area,
				iso.p.AreaError, iso.p.Time, iso.p.HalfWidth,
			)
			if err != nil {
				return fmt.Errorf("failed to insert isotopolog: %w", err)
			}
		}
	}
	return nil
}

func (w *SQLiteWriter) closeStatements() {
	for _, s := range []*sql.Stmt{w.peptideStmt, w.chargeStmt, w.isoStmt} {
		if s != nil {
			s.Close()
		}
	}
}

// abort rolls back everything written and closes the database
func (w *SQLiteWriter) abort() {
	w.closeStatements()
	w.tx.Rollback()
	w.db.Close()
}

// Close commits the records and closes the database
func (w *SQLiteWriter) Close() error {
	w.closeStatements()
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
