package hamiltonian

import (
	"math"

	"github.com/rubenlee11/HamGNN/grid"
)

// Orbitals holds basis-orbital values on the grid. Local tables cover the
// rank's own atoms, one row per support point in AtomSupport order. Halo
// tables cover remote neighbors, one row per shared pair point, and are
// populated by ExchangeOrbitals. Running that exchange is a hard precondition
// of the quadrature, not an assumption.
type Orbitals struct {
	Local map[int][][]float64   // global atom id -> [support row][orbital]
	Halo  map[PairKey][][]float64
}

// PairKey identifies one (local atom index, neighbor slot) pair task.
type PairKey struct {
	Mc, H int
}

// BuildOrbitals evaluates the Gaussian basis of every atom the rank owns on
// that atom's support points.
func BuildOrbitals(geom *grid.Geometry, sys *System, atomSup []AtomSupport, rank int) *Orbitals {
	orb := &Orbitals{
		Local: make(map[int][][]float64),
		Halo:  make(map[PairKey][][]float64),
	}
	for _, gc := range sys.LocalAtoms(rank) {
		var (
			sp   = sys.Species[sys.AtomSpecies[gc]]
			sup  = atomSup[gc]
			rows = make([][]float64, sup.NumPoints())
		)
		for row, gn := range sup.GIdx {
			d := geom.MinImageVector(geom.PointCoords(gn), sys.Positions[gc])
			vals := make([]float64, sp.NumOrbitals)
			for j := range vals {
				vals[j] = orbitalValue(j, d, sp.Exponent)
			}
			rows[row] = vals
		}
		orb.Local[gc] = rows
	}
	return orb
}

// orbitalValue evaluates basis orbital j at displacement d from the nucleus:
// an s-type Gaussian followed by p-type x,y,z Gaussians, repeating with
// tighter exponents for larger j.
func orbitalValue(j int, d [3]float64, alpha float64) float64 {
	r2 := d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
	g := math.Exp(-alpha * r2 * (1. + 0.25*float64(j/4)))
	switch j % 4 {
	case 1:
		return d[0] * g
	case 2:
		return d[1] * g
	case 3:
		return d[2] * g
	default:
		return g
	}
}
