// Package geometry holds the spatial primitives of the model: positions in the
// unit hypercube, salience-weighted distance, and the risk-adjusted utility
// curve that turns a distance into a preference.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Position is a point in [0,1]^d, one coordinate per policy dimension.
type Position []float64

// Clone returns an independent copy of p.
func (p Position) Clone() Position {
	c := make(Position, len(p))
	copy(c, p)
	return c
}

// Sub returns p - q. Panics when the dimensions differ.
func (p Position) Sub(q Position) Position {
	mustSameLen("Sub", len(p), len(q))
	d := make(Position, len(p))
	for i := range p {
		d[i] = p[i] - q[i]
	}
	return d
}

// Dist is the Euclidean distance between p and q.
func (p Position) Dist(q Position) float64 {
	mustSameLen("Dist", len(p), len(q))
	return floats.Distance(p, q, 2)
}

// String renders the position on the 0-100 scale used by scenario files.
func (p Position) String() string {
	parts := make([]string, len(p))
	for i, x := range p {
		parts[i] = fmt.Sprintf("%.2f", 100*x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ScalarUtil maps a non-negative distance d to utility under risk attitude r.
// Inside the unit interval the curve is (1-d)(1+dr): 1 at d=0 and 0 at d=1
// for every r. Beyond 1 it continues linearly with the slope the curve has at
// d=1, so utility goes negative. r=0 is risk neutral, r<0 risk averse, r>0
// risk seeking.
func ScalarUtil(d, r float64) float64 {
	if d < 0 {
		panic(fmt.Sprintf("geometry: negative distance %v", d))
	}
	if d <= 1 {
		return (1 - d) * (1 + d*r)
	}
	return -(r + 1) * (d - 1)
}

// WeightedDistance is the salience-weighted norm of the displacement d:
// sqrt(sum((d_i*s_i)^2) / sum(s_i^2)). Saliences must be non-negative and not
// all zero.
func WeightedDistance(d, s []float64) float64 {
	mustSameLen("WeightedDistance", len(d), len(s))
	var num, den float64
	for i := range d {
		if s[i] < 0 {
			panic(fmt.Sprintf("geometry: negative salience %v on dimension %d", s[i], i))
		}
		ds := d[i] * s[i]
		num += ds * ds
		den += s[i] * s[i]
	}
	if den <= 0 {
		panic("geometry: saliences are all zero")
	}
	return math.Sqrt(num / den)
}

// VectorUtil is ScalarUtil applied to the weighted distance of d.
func VectorUtil(d, s []float64, r float64) float64 {
	return ScalarUtil(WeightedDistance(d, s), r)
}

func mustSameLen(op string, a, b int) {
	if a != b {
		panic(fmt.Sprintf("geometry: %s on mismatched lengths %d and %d", op, a, b))
	}
}
