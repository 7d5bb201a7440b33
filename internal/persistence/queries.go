package persistence

import (
	"fmt"
)

// RunInfo is one stored run.
type RunInfo struct {
	ID        string `db:"id"`
	Scenario  string `db:"scenario"`
	Desc      string `db:"description"`
	Params    string `db:"params"`
	Actors    int    `db:"num_actors"`
	Dims      int    `db:"num_dims"`
	Turns     int    `db:"turns"`
	CreatedAt string `db:"created_at"`
}

// PositionPoint is one coordinate of one actor at one turn.
type PositionPoint struct {
	Turn  int     `db:"turn"`
	Actor int     `db:"actor"`
	Dim   int     `db:"dim"`
	Coord float64 `db:"coord"`
}

// ProbPoint is the aggregate probability of one actor's position at one turn.
type ProbPoint struct {
	Turn  int     `db:"turn"`
	Actor int     `db:"actor"`
	Prob  float64 `db:"prob"`
}

// Runs lists stored runs, newest first.
func (db *DB) Runs(limit int) ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs,
		"SELECT id, scenario, description, params, num_actors, num_dims, turns, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// Run looks up a stored run by id.
func (db *DB) Run(id string) (*RunInfo, error) {
	var r RunInfo
	err := db.conn.Get(&r,
		"SELECT id, scenario, description, params, num_actors, num_dims, turns, created_at FROM runs WHERE id = ?",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return &r, nil
}

// ActorNames returns a run's roster in index order.
func (db *DB) ActorNames(runID string) ([]string, error) {
	var names []string
	err := db.conn.Select(&names, "SELECT name FROM actors WHERE run_id = ? ORDER BY actor", runID)
	return names, err
}

// DimNames returns a run's dimensions in index order.
func (db *DB) DimNames(runID string) ([]string, error) {
	var names []string
	err := db.conn.Select(&names, "SELECT name FROM dimensions WHERE run_id = ? ORDER BY dim", runID)
	return names, err
}

// PositionHistory returns every recorded coordinate of a run ordered by turn,
// actor and dimension.
func (db *DB) PositionHistory(runID string) ([]PositionPoint, error) {
	var pts []PositionPoint
	err := db.conn.Select(&pts,
		"SELECT turn, actor, dim, coord FROM positions WHERE run_id = ? ORDER BY turn, actor, dim",
		runID,
	)
	return pts, err
}

// ProbHistory returns the aggregate position probabilities of a run.
func (db *DB) ProbHistory(runID string) ([]ProbPoint, error) {
	var pts []ProbPoint
	err := db.conn.Select(&pts,
		"SELECT turn, actor, prob FROM pos_prob WHERE run_id = ? AND est = -1 ORDER BY turn, actor",
		runID,
	)
	return pts, err
}

// recordTables are the per-turn tables, for counting.
var recordTables = map[string]bool{
	"positions": true, "pos_util": true, "pos_vote": true, "pos_prob": true,
	"pos_equiv": true, "util_chlg": true, "prob_vict": true, "tp_prob_vict_loss": true,
	"bargains": true, "bargain_coords": true, "bargain_util": true,
}

// CountRows is the number of rows a run has in one per-turn table.
func (db *DB) CountRows(table, runID string) (int, error) {
	if !recordTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM "+table+" WHERE run_id = ?", runID)
	return n, err
}
