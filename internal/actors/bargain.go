package actors

import (
	"fmt"

	"github.com/talgya/smpsim/internal/enum"
	"github.com/talgya/smpsim/internal/geometry"
)

// minWeight keeps interpolation defined when both sides carry no weight on a
// dimension.
const minWeight = 1e-6

// Interpolation selects how two positions are blended into bargain terms.
type Interpolation uint8

const (
	S1P1   Interpolation = iota // weights linear in salience and probability
	S2P2                        // weights quadratic in salience and probability
	S2PMax                      // only the likely loser moves, by how far behind it is
)

var interpolationNames = []string{"S1P1", "S2P2", "S2PMax"}

// InterpolationNames lists the accepted names of Interpolation values.
func InterpolationNames() []string { return append([]string(nil), interpolationNames...) }

func (m Interpolation) String() string { return enum.String(interpolationNames, m) }

func (m Interpolation) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Interpolation) UnmarshalText(b []byte) error {
	return enum.Parse(interpolationNames, "bargain interpolation", string(b), m)
}

// Bargain is a proposed pair of new positions for an initiator and a
// receiver.
type Bargain struct {
	ID      int // unique within a turn
	Init    *Actor
	Rcvr    *Actor
	PosInit geometry.Position
	PosRcvr geometry.Position
}

func (b *Bargain) String() string {
	return fmt.Sprintf("bargain %d: %s %v / %s %v", b.ID, b.Init.Name, b.PosInit, b.Rcvr.Name, b.PosRcvr)
}

// InterpolateBargain computes the terms ai and aj would settle on, given the
// positions posI and posJ they start from and the probabilities prbI and prbJ
// that each would win an outright contest.
func InterpolateBargain(ai, aj *Actor, posI, posJ geometry.Position, prbI, prbJ float64, mode Interpolation) *Bargain {
	nd := len(posI)
	if len(posJ) != nd || len(ai.Salience) != nd || len(aj.Salience) != nd {
		panic(fmt.Sprintf("actors: bargain over mismatched dimensions %d, %d, %d, %d",
			len(posI), len(posJ), len(ai.Salience), len(aj.Salience)))
	}
	bi := make(geometry.Position, nd)
	bj := make(geometry.Position, nd)
	for k := 0; k < nd; k++ {
		ti, si := posI[k], ai.Salience[k]
		tj, sj := posJ[k], aj.Salience[k]
		switch mode {
		case S1P1:
			bi[k], bj[k] = interpSnPm(1, 1, ti, si, prbI, tj, sj, prbJ)
		case S2P2:
			bi[k], bj[k] = interpSnPm(2, 2, ti, si, prbI, tj, sj, prbJ)
		case S2PMax:
			bi[k], bj[k] = interpS2PMax(ti, si, prbI, tj, sj, prbJ)
		default:
			panic(fmt.Sprintf("actors: unknown bargain interpolation %d", mode))
		}
	}
	return &Bargain{Init: ai, Rcvr: aj, PosInit: bi, PosRcvr: bj}
}

// interpSnPm weights each side by salience^n * probability^m. Each side's
// own new coordinate gets the small extra weight, so a side with no weight at
// all still stays put.
func interpSnPm(n, m int, ti, si, pi, tj, sj, pj float64) (float64, float64) {
	wi := ipow(si, n) * ipow(pi, m)
	wj := ipow(sj, n) * ipow(pj, m)
	den := wi + minWeight + wj
	bi := ((wi+minWeight)*ti + wj*tj) / den
	bj := (wi*ti + (minWeight+wj)*tj) / den
	return bi, bj
}

// interpS2PMax moves only the side less likely to win, by a fraction that
// grows with its deficit in probability and the other side's salience.
func interpS2PMax(ti, si, pi, tj, sj, pj float64) (float64, float64) {
	di := max(0, pj-pi)
	dj := max(0, pi-pj)
	si2, sj2 := si*si, sj*sj
	dik := di * sj2 / (di*sj2 + minWeight + (1-di)*si2)
	djk := dj * si2 / (dj*si2 + minWeight + (1-dj)*sj2)
	return ti + dik*(tj-ti), tj + djk*(ti-tj)
}

func ipow(x float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= x
	}
	return r
}
