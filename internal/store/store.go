// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package store saves and loads AMT databases as SQLite files
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/524D/mzamt/internal/amt"
)

// SchemaVersion is written to every file and checked on load
const SchemaVersion = 1

// ErrSchemaVersion means the file was written by an incompatible version
var ErrSchemaVersion = errors.New("store: unsupported schema version")

const schema = `
	CREATE TABLE MetaTable (
		Key TEXT PRIMARY KEY,
		Value TEXT
	);

	CREATE TABLE ModificationTable (
		ModId INTEGER PRIMARY KEY,
		Residue TEXT NOT NULL,
		MassDelta DOUBLE NOT NULL,
		Variable BOOL NOT NULL,
		Name TEXT
	);

	CREATE TABLE RunTable (
		RunSeq INTEGER PRIMARY KEY,
		Coefficients TEXT,
		StaticMods TEXT,
		VariableMods TEXT,
		IdentificationFile TEXT,
		SpectraFile TEXT,
		TimeAnalyzed TEXT
	);

	CREATE TABLE StateTable (
		StateId INTEGER PRIMARY KEY,
		Sequence TEXT NOT NULL,
		ModifiedSequence TEXT NOT NULL,
		Mods TEXT,
		Mass DOUBLE
	);

	CREATE TABLE ObservationTable (
		StateId INTEGER REFERENCES StateTable(StateId),
		RunSeq INTEGER REFERENCES RunTable(RunSeq),
		Hydrophobicity DOUBLE,
		Quality DOUBLE,
		Time DOUBLE,
		SpectralCount INTEGER
	);

	CREATE INDEX ObservationState ON ObservationTable(StateId);
	`

// Save writes db to a new SQLite file at path, replacing an existing file
func Save(path string, db *amt.Database) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	sdb, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sdb.Close()

	if _, err := sdb.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	tx, err := sdb.Begin()
	if err != nil {
		return err
	}
	w, err := newWriter(tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := w.write(db); err != nil {
		w.close()
		tx.Rollback()
		return err
	}
	w.close()
	return tx.Commit()
}

type writer struct {
	tx        *sql.Tx
	metaStmt  *sql.Stmt
	modStmt   *sql.Stmt
	runStmt   *sql.Stmt
	stateStmt *sql.Stmt
	obsStmt   *sql.Stmt
}

// newWriter prepares the insert statements
func newWriter(tx *sql.Tx) (*writer, error) {
	w := &writer{tx: tx}
	stmts := []struct {
		s     **sql.Stmt
		query string
	}{
		{&w.metaStmt, `INSERT INTO MetaTable (Key, Value) VALUES (?, ?)`},
		{&w.modStmt, `INSERT INTO ModificationTable (
			ModId, Residue, MassDelta, Variable, Name) VALUES (?, ?, ?, ?, ?)`},
		{&w.runStmt, `INSERT INTO RunTable (
			RunSeq, Coefficients, StaticMods, VariableMods,
			IdentificationFile, SpectraFile, TimeAnalyzed) VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&w.stateStmt, `INSERT INTO StateTable (
			StateId, Sequence, ModifiedSequence, Mods, Mass) VALUES (?, ?, ?, ?, ?)`},
		{&w.obsStmt, `INSERT INTO ObservationTable (
			StateId, RunSeq, Hydrophobicity, Quality, Time, SpectralCount) VALUES (?, ?, ?, ?, ?, ?)`},
	}
	for _, st := range stmts {
		s, err := tx.Prepare(st.query)
		if err != nil {
			w.close()
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.s = s
	}
	return w, nil
}

func (w *writer) close() {
	for _, s := range []*sql.Stmt{w.metaStmt, w.modStmt, w.runStmt, w.stateStmt, w.obsStmt} {
		if s != nil {
			s.Close()
		}
	}
}

func (w *writer) write(db *amt.Database) error {
	if _, err := w.metaStmt.Exec("id", db.ID.String()); err != nil {
		return fmt.Errorf("failed to insert meta data: %w", err)
	}
	if _, err := w.metaStmt.Exec("version", fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("failed to insert meta data: %w", err)
	}

	for id, m := range db.Mods().All() {
		_, err := w.modStmt.Exec(id, string(m.Residue), m.MassDelta, m.Variable, m.Name)
		if err != nil {
			return fmt.Errorf("failed to insert modification: %w", err)
		}
	}

	for _, r := range db.Runs() {
		coef, err := json.Marshal(r.Coefficients)
		if err != nil {
			return err
		}
		static, err := json.Marshal(r.StaticMods)
		if err != nil {
			return err
		}
		variable, err := json.Marshal(r.VariableMods)
		if err != nil {
			return err
		}
		var analyzed interface{}
		if !r.TimeAnalyzed.IsZero() {
			analyzed = r.TimeAnalyzed.Format(time.RFC3339)
		}
		_, err = w.runStmt.Exec(r.Seq, string(coef), string(static), string(variable),
			r.IdentificationFile, r.SpectraFile, analyzed)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
	}

	stateID := 0
	for _, e := range db.Entries() {
		for _, s := range e.States() {
			stateID++
			mods, err := json.Marshal(s.Mods)
			if err != nil {
				return err
			}
			_, err = w.stateStmt.Exec(stateID, e.Sequence, s.ModifiedSequence, string(mods), s.Mass)
			if err != nil {
				return fmt.Errorf("failed to insert modification state: %w", err)
			}
			for _, o := range s.Observations {
				_, err = w.obsStmt.Exec(stateID, o.Run, o.Hydrophobicity, o.Quality, o.Time, o.SpectralCount)
				if err != nil {
					return fmt.Errorf("failed to insert observation: %w", err)
				}
			}
		}
	}
	return nil
}

// Load reads a database written by Save
func Load(path string) (*amt.Database, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	sdb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer sdb.Close()

	db := amt.NewDatabase()
	if err := loadMeta(sdb, db); err != nil {
		return nil, err
	}
	mm, err := loadMods(sdb, db)
	if err != nil {
		return nil, err
	}
	rm, err := loadRuns(sdb, db, mm)
	if err != nil {
		return nil, err
	}
	if err := loadObservations(sdb, db, mm, rm); err != nil {
		return nil, err
	}
	return db, nil
}

func loadMeta(sdb *sql.DB, db *amt.Database) error {
	rows, err := sdb.Query(`SELECT Key, Value FROM MetaTable`)
	if err != nil {
		return fmt.Errorf("failed to read meta data: %w", err)
	}
	defer rows.Close()
	version := ""
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		switch k {
		case "id":
			id, err := uuid.Parse(v)
			if err != nil {
				return fmt.Errorf("database id: %w", err)
			}
			db.ID = id
		case "version":
			version = v
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if version != fmt.Sprint(SchemaVersion) {
		return fmt.Errorf("%w: %q", ErrSchemaVersion, version)
	}
	return nil
}

// loadMods fills the catalog in ID order. The returned map translates
// stored IDs in case the file holds equivalent modifications twice.
func loadMods(sdb *sql.DB, db *amt.Database) (amt.ModMap, error) {
	rows, err := sdb.Query(`SELECT ModId, Residue, MassDelta, Variable, Name
		FROM ModificationTable ORDER BY ModId`)
	if err != nil {
		return nil, fmt.Errorf("failed to read modifications: %w", err)
	}
	defer rows.Close()
	mm := make(amt.ModMap)
	for rows.Next() {
		var (
			id      int
			residue string
			m       amt.Modification
			name    sql.NullString
		)
		if err := rows.Scan(&id, &residue, &m.MassDelta, &m.Variable, &name); err != nil {
			return nil, err
		}
		if len(residue) != 1 {
			return nil, fmt.Errorf("modification %d: invalid residue %q", id, residue)
		}
		m.Residue = residue[0]
		m.Name = name.String
		mm[amt.ModID(id)] = db.Mods().Canonical(m)
	}
	return mm, rows.Err()
}

func loadRuns(sdb *sql.DB, db *amt.Database, mm amt.ModMap) (map[int]int, error) {
	rows, err := sdb.Query(`SELECT RunSeq, Coefficients, StaticMods, VariableMods,
		IdentificationFile, SpectraFile, TimeAnalyzed FROM RunTable ORDER BY RunSeq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	defer rows.Close()
	rm := make(map[int]int)
	for rows.Next() {
		var (
			seq                         int
			coef, static, variable      string
			identFile, spectraFile, ana sql.NullString
			r                           amt.Run
		)
		if err := rows.Scan(&seq, &coef, &static, &variable, &identFile, &spectraFile, &ana); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(coef), &r.Coefficients); err != nil {
			return nil, fmt.Errorf("run %d coefficients: %w", seq, err)
		}
		if err := json.Unmarshal([]byte(static), &r.StaticMods); err != nil {
			return nil, fmt.Errorf("run %d modifications: %w", seq, err)
		}
		if err := json.Unmarshal([]byte(variable), &r.VariableMods); err != nil {
			return nil, fmt.Errorf("run %d modifications: %w", seq, err)
		}
		for i, id := range r.StaticMods {
			r.StaticMods[i] = mm[id]
		}
		for i, id := range r.VariableMods {
			r.VariableMods[i] = mm[id]
		}
		r.IdentificationFile = identFile.String
		r.SpectraFile = spectraFile.String
		if ana.Valid && ana.String != "" {
			t, err := time.Parse(time.RFC3339, ana.String)
			if err != nil {
				return nil, fmt.Errorf("run %d: %w", seq, err)
			}
			r.TimeAnalyzed = t
		}
		nr, _ := db.AddRun(&r, nil)
		rm[seq] = nr.Seq
	}
	return rm, rows.Err()
}

func loadObservations(sdb *sql.DB, db *amt.Database, mm amt.ModMap, rm map[int]int) error {
	rows, err := sdb.Query(`SELECT s.Sequence, s.Mods, o.RunSeq, o.Hydrophobicity,
		o.Quality, o.Time, o.SpectralCount
		FROM ObservationTable o JOIN StateTable s ON o.StateId = s.StateId
		ORDER BY s.StateId, o.rowid`)
	if err != nil {
		return fmt.Errorf("failed to read observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq, modsJSON string
			o             amt.Observation
			mods          [][]amt.ModID
		)
		if err := rows.Scan(&seq, &modsJSON, &o.Run, &o.Hydrophobicity,
			&o.Quality, &o.Time, &o.SpectralCount); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(modsJSON), &mods); err != nil {
			return fmt.Errorf("%s modifications: %w", seq, err)
		}
		for _, pos := range mods {
			for j, id := range pos {
				n, ok := mm[id]
				if !ok {
					return fmt.Errorf("%s: unknown modification %d", seq, id)
				}
				pos[j] = n
			}
		}
		run, ok := rm[o.Run]
		if !ok {
			return fmt.Errorf("%w: %d", amt.ErrUnknownRun, o.Run)
		}
		o.Run = run
		if err := db.AddObservation(seq, mods, o); err != nil {
			return err
		}
	}
	return rows.Err()
}
