package engine

import (
	"fmt"
	"log/slog"
)

// DefaultQuiescenceFactor is how much smaller than the first turn's movement
// a turn's movement must be for the game to count as settled.
const DefaultQuiescenceFactor = 100

// MaxTurns stops after n turns.
func MaxTurns(n int) StopFunc {
	return func(turn int, _ *State) bool {
		return turn >= n
	}
}

// Quiescence stops once the latest turn moved the actors no more than the
// first turn did divided by factor, or after maxTurns turns. A first turn in
// which nothing moved ends the run immediately.
func Quiescence(maxTurns int, factor float64) StopFunc {
	return func(turn int, latest *State) bool {
		if turn >= maxTurns {
			slog.Info("stopping at turn limit", "turn", turn)
			return true
		}
		m := latest.Model()
		h := m.History
		if len(h) < 2 || latest.Turn < 1 {
			return false
		}
		d01 := m.StateDist(h[0], h[1])
		dxy := m.StateDist(h[latest.Turn-1], latest)
		if dxy <= d01/factor {
			slog.Info("stopping at quiescence", "turn", turn,
				"first", fmt.Sprintf("%.4f", d01), "last", fmt.Sprintf("%.6f", dxy))
			return true
		}
		return false
	}
}
