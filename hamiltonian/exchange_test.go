package hamiltonian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

func TestFieldHaloExchange(t *testing.T) {
	var (
		np  = 2
		g   = testGeometry(t, 4, 4.0)
		sys = twoAtomSystem(t, g, 1, 1.0, 10.0, 3.0, [2]int{0, 1})
	)
	partC, err := grid.NewSlabPartition(g, np)
	require.NoError(t, err)

	sups := make([]*Supports, np)
	for r := 0; r < np; r++ {
		sups[r], err = BuildSupports(g, sys, partC, r)
		require.NoError(t, err)
	}

	// Distinguishable field: value at a point is its global index.
	global := make([]float64, g.NumPoints())
	for gn := range global {
		global[gn] = float64(gn)
	}

	cl, err := comm.NewCluster(np)
	require.NoError(t, err)
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		halo, herr := BuildFieldHalo(c, partC, sups[me].HaloGN)
		require.NoError(t, herr)

		field := make([]float64, partC.NumLocal(me))
		for ln, gn := range partC.Local(me) {
			field[ln] = global[gn]
		}
		vals := halo.Exchange(c, field)
		require.Len(t, vals, len(sups[me].HaloGN))
		for slot, gn := range sups[me].HaloGN {
			assert.Equal(t, global[gn], vals[slot], "rank %d slot %d", me, slot)
		}
	})
}

func TestBuildFieldHaloRejectsLocalPoint(t *testing.T) {
	g := testGeometry(t, 4, 4.0)
	partC, err := grid.NewSlabPartition(g, 2)
	require.NoError(t, err)

	cl, err := comm.NewCluster(2)
	require.NoError(t, err)
	errs := make([]error, 2)
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		// Each rank asks for a point it already owns.
		_, errs[me] = BuildFieldHalo(c, partC, []int{partC.Local(me)[0]})
	})
	var cfg grid.ConfigurationError
	for r := 0; r < 2; r++ {
		assert.ErrorAs(t, errs[r], &cfg)
	}
}

func TestExchangeOrbitals(t *testing.T) {
	var (
		np  = 2
		g   = testGeometry(t, 4, 4.0)
		sys = twoAtomSystem(t, g, 3, 0.7, 2.5, 3.0, [2]int{0, 1})
	)
	partC, err := grid.NewSlabPartition(g, np)
	require.NoError(t, err)

	var (
		sups = make([]*Supports, np)
		orbs = make([]*Orbitals, np)
	)
	for r := 0; r < np; r++ {
		sups[r], err = BuildSupports(g, sys, partC, r)
		require.NoError(t, err)
		orbs[r] = BuildOrbitals(g, sys, sups[r].Atom, r)
	}

	cl, err := comm.NewCluster(np)
	require.NoError(t, err)
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		require.NoError(t, ExchangeOrbitals(c, sups[me], orbs[me]))
	})

	// Every remote pair ends with a table matching a fresh local evaluation
	// of the neighbor's orbitals at the shared points.
	for r := 0; r < np; r++ {
		sup := sups[r]
		for mi, gc := range sup.LocalAtoms() {
			for h, gh := range sys.Neighbors[gc] {
				if sys.AtomRank[gh] == r {
					continue
				}
				ps := &sup.Pairs[mi][h]
				rows, ok := orbs[r].Halo[PairKey{mi, h}]
				require.True(t, ok, "rank %d pair (%d,%d)", r, mi, h)
				require.Len(t, rows, ps.NumShared())
				sp := sys.Species[sys.AtomSpecies[gh]]
				for p := 0; p < ps.NumShared(); p++ {
					gn := sup.Atom[gh].GIdx[ps.NbrIdx[p]]
					d := g.MinImageVector(g.PointCoords(gn), sys.Positions[gh])
					require.Len(t, rows[p], sp.NumOrbitals)
					for j := 0; j < sp.NumOrbitals; j++ {
						assert.Equal(t, orbitalValue(j, d, sp.Exponent), rows[p][j])
					}
				}
			}
		}
	}
}
