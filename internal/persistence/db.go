// Package persistence stores runs in SQLite: the scenario each run started
// from and every table recorded for every turn.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/smpsim/internal/engine"
)

// MetaLastRun is the world_meta key holding the id of the newest run.
const MetaLastRun = "last_run"

// DB wraps a SQLite connection. It implements engine.Recorder.
type DB struct {
	conn *sqlx.DB
}

var _ engine.Recorder = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; runs in a sweep share the connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		description TEXT NOT NULL,
		params TEXT NOT NULL,
		num_actors INTEGER NOT NULL,
		num_dims INTEGER NOT NULL,
		turns INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actors (
		run_id TEXT NOT NULL,
		actor INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		capability REAL NOT NULL,
		PRIMARY KEY (run_id, actor)
	);

	CREATE TABLE IF NOT EXISTS dimensions (
		run_id TEXT NOT NULL,
		dim INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (run_id, dim)
	);

	CREATE TABLE IF NOT EXISTS saliences (
		run_id TEXT NOT NULL,
		actor INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		salience REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		actor INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		coord REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pos_util (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		actor INTEGER NOT NULL,
		pos INTEGER NOT NULL,
		util REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pos_vote (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		voter INTEGER NOT NULL,
		pos_i INTEGER NOT NULL,
		pos_j INTEGER NOT NULL,
		vote REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pos_prob (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		actor INTEGER NOT NULL,
		prob REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pos_equiv (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		actor INTEGER NOT NULL,
		eqv INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS util_chlg (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		aff INTEGER NOT NULL,
		init INTEGER NOT NULL,
		rcvr INTEGER NOT NULL,
		u_sq REAL NOT NULL,
		u_vict REAL NOT NULL,
		u_cntst REAL NOT NULL,
		u_chlg REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prob_vict (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		init INTEGER NOT NULL,
		rcvr INTEGER NOT NULL,
		prob REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tp_prob_vict_loss (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		est INTEGER NOT NULL,
		init INTEGER NOT NULL,
		third INTEGER NOT NULL,
		rcvr INTEGER NOT NULL,
		prob REAL NOT NULL,
		util_v REAL NOT NULL,
		util_l REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bargains (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		bargain INTEGER NOT NULL,
		init INTEGER NOT NULL,
		rcvr INTEGER NOT NULL,
		value REAL NOT NULL,
		init_prob REAL NOT NULL,
		init_selected INTEGER NOT NULL,
		rcvr_prob REAL NOT NULL,
		rcvr_selected INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bargain_coords (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		bargain INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		init_pos REAL NOT NULL,
		rcvr_pos REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bargain_util (
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		bargain INTEGER NOT NULL,
		actor INTEGER NOT NULL,
		util REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_run ON positions(run_id, turn);
	CREATE INDEX IF NOT EXISTS idx_pos_prob_run ON pos_prob(run_id, turn);
	CREATE INDEX IF NOT EXISTS idx_bargains_run ON bargains(run_id, turn);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RecordScenario stores the run header, roster and dimensions.
func (db *DB) RecordScenario(m *engine.Model) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	runID := m.RunID.String()
	_, err = tx.Exec(`INSERT INTO runs
		(id, scenario, description, params, num_actors, num_dims, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, m.Scenario, m.Desc, m.Params.String(), m.NumActors(), m.NumDims(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	for i, a := range m.Actors {
		if _, err := tx.Exec(`INSERT INTO actors (run_id, actor, name, description, capability)
			VALUES (?, ?, ?, ?, ?)`, runID, i, a.Name, a.Desc, a.Capability); err != nil {
			return fmt.Errorf("insert actor %d: %w", i, err)
		}
		for d, s := range a.Salience {
			if _, err := tx.Exec(`INSERT INTO saliences (run_id, actor, dim, salience)
				VALUES (?, ?, ?, ?)`, runID, i, d, s); err != nil {
				return fmt.Errorf("insert salience %d/%d: %w", i, d, err)
			}
		}
	}
	for d, name := range m.DimNames {
		if _, err := tx.Exec("INSERT INTO dimensions (run_id, dim, name) VALUES (?, ?, ?)",
			runID, d, name); err != nil {
			return fmt.Errorf("insert dimension %d: %w", d, err)
		}
	}
	if err := saveMeta(tx, MetaLastRun, runID); err != nil {
		return fmt.Errorf("mark last run: %w", err)
	}
	return tx.Commit()
}

// RecordTurn appends every row of rec in a single transaction.
func (db *DB) RecordTurn(rec *engine.TurnRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	run, turn := rec.RunID, rec.Turn
	steps := []struct {
		table string
		rows  func() error
	}{
		{"positions", func() error {
			return insertRows(tx,
				"INSERT INTO positions (run_id, turn, actor, dim, coord) VALUES (?, ?, ?, ?, ?)",
				rec.Positions, func(r engine.PositionRow) []any {
					return []any{run, turn, r.Actor, r.Dim, r.Coord}
				})
		}},
		{"pos_util", func() error {
			return insertRows(tx,
				"INSERT INTO pos_util (run_id, turn, est, actor, pos, util) VALUES (?, ?, ?, ?, ?, ?)",
				rec.PosUtils, func(r engine.PosUtilRow) []any {
					return []any{run, turn, r.Est, r.Actor, r.Pos, r.Util}
				})
		}},
		{"pos_vote", func() error {
			return insertRows(tx,
				"INSERT INTO pos_vote (run_id, turn, est, voter, pos_i, pos_j, vote) VALUES (?, ?, ?, ?, ?, ?, ?)",
				rec.PosVotes, func(r engine.PosVoteRow) []any {
					return []any{run, turn, r.Est, r.Voter, r.PosI, r.PosJ, r.Vote}
				})
		}},
		{"pos_prob", func() error {
			return insertRows(tx,
				"INSERT INTO pos_prob (run_id, turn, est, actor, prob) VALUES (?, ?, ?, ?, ?)",
				rec.PosProbs, func(r engine.PosProbRow) []any {
					return []any{run, turn, r.Est, r.Actor, r.Prob}
				})
		}},
		{"pos_equiv", func() error {
			return insertRows(tx,
				"INSERT INTO pos_equiv (run_id, turn, actor, eqv) VALUES (?, ?, ?, ?)",
				rec.PosEquivs, func(r engine.PosEquivRow) []any {
					return []any{run, turn, r.Pos, r.Eqv}
				})
		}},
		{"util_chlg", func() error {
			return insertRows(tx,
				`INSERT INTO util_chlg (run_id, turn, est, aff, init, rcvr, u_sq, u_vict, u_cntst, u_chlg)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.Challenges, func(r engine.UtilChlgRow) []any {
					return []any{run, turn, r.Est, r.Aff, r.Init, r.Rcvr, r.USQ, r.UVict, r.UCntst, r.UChlg}
				})
		}},
		{"prob_vict", func() error {
			return insertRows(tx,
				"INSERT INTO prob_vict (run_id, turn, est, init, rcvr, prob) VALUES (?, ?, ?, ?, ?, ?)",
				rec.ProbVicts, func(r engine.ProbVictRow) []any {
					return []any{run, turn, r.Est, r.Init, r.Rcvr, r.Prob}
				})
		}},
		{"tp_prob_vict_loss", func() error {
			return insertRows(tx,
				`INSERT INTO tp_prob_vict_loss (run_id, turn, est, init, third, rcvr, prob, util_v, util_l)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ThirdParties, func(r engine.ThirdPartyRow) []any {
					return []any{run, turn, r.Est, r.Init, r.N, r.Rcvr, r.Prob, r.UtilV, r.UtilL}
				})
		}},
		{"bargains", func() error {
			return insertRows(tx,
				`INSERT INTO bargains (run_id, turn, bargain, init, rcvr, value,
				init_prob, init_selected, rcvr_prob, rcvr_selected)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.Bargains, func(r engine.BargainRow) []any {
					return []any{run, turn, r.ID, r.Init, r.Rcvr, r.Value,
						r.InitProb, r.InitSelected, r.RcvrProb, r.RcvrSelected}
				})
		}},
		{"bargain_coords", func() error {
			return insertRows(tx,
				"INSERT INTO bargain_coords (run_id, turn, bargain, dim, init_pos, rcvr_pos) VALUES (?, ?, ?, ?, ?, ?)",
				rec.BargainCoords, func(r engine.BargainCoordRow) []any {
					return []any{run, turn, r.Bargain, r.Dim, r.InitPos, r.RcvrPos}
				})
		}},
		{"bargain_util", func() error {
			return insertRows(tx,
				"INSERT INTO bargain_util (run_id, turn, bargain, actor, util) VALUES (?, ?, ?, ?, ?)",
				rec.BargainUtils, func(r engine.BargainUtilRow) []any {
					return []any{run, turn, r.Bargain, r.Actor, r.Util}
				})
		}},
	}
	for _, st := range steps {
		if err := st.rows(); err != nil {
			return fmt.Errorf("insert %s turn %d: %w", st.table, turn, err)
		}
	}

	if _, err := tx.Exec("UPDATE runs SET turns = MAX(turns, ?) WHERE id = ?", turn, run); err != nil {
		return fmt.Errorf("update run %s: %w", run, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("turn recorded", "run", run, "turn", turn, "rows", humanize.Comma(int64(rec.NumRows())))
	return nil
}

// insertRows runs query once per row inside tx. Nothing is prepared for an
// empty slice.
func insertRows[T any](tx *sqlx.Tx, query string, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.Preparex(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(args(r)...); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeta sets a world_meta value, replacing any earlier one.
func (db *DB) SaveMeta(key, value string) error {
	return saveMeta(db.conn, key, value)
}

func saveMeta(ex sqlx.Execer, key, value string) error {
	_, err := ex.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta reads a world_meta value. A missing key is sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	if err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key); err != nil {
		return "", fmt.Errorf("meta %s: %w", key, err)
	}
	return value, nil
}

// LastRun is the id of the most recently started run.
func (db *DB) LastRun() (string, error) {
	id, err := db.GetMeta(MetaLastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("no runs recorded")
	}
	return id, err
}
