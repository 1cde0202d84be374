package hamiltonian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubenlee11/HamGNN/grid"
)

func testGeometry(t *testing.T, n int, a float64) *grid.Geometry {
	t.Helper()
	g, err := grid.NewGeometry(n, n, n, [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}, [3]float64{})
	require.NoError(t, err)
	return g
}

// twoAtomSystem puts one atom at the origin and one at (1,1,1) in a 4x4x4
// unit-spacing cell, each carrying nOrb orbitals of the given reach.
func twoAtomSystem(t *testing.T, g *grid.Geometry, nOrb int, exponent, radius, cutoff float64, ranks [2]int) *System {
	t.Helper()
	sys := &System{
		Species:     []Species{{Name: "A", NumOrbitals: nOrb, SupportRadius: radius, Exponent: exponent}},
		AtomSpecies: []int{0, 0},
		AtomRank:    []int{ranks[0], ranks[1]},
		Positions:   [][3]float64{{0, 0, 0}, {1, 1, 1}},
	}
	require.NoError(t, BuildNeighbors(g, sys, cutoff))
	return sys
}

func TestBuildNeighbors(t *testing.T) {
	g := testGeometry(t, 4, 4.0)
	sys := &System{
		Species:     []Species{{Name: "A", NumOrbitals: 1, SupportRadius: 1, Exponent: 1}},
		AtomSpecies: []int{0, 0, 0},
		AtomRank:    []int{0, 0, 0},
		// Atom 2 sits across the periodic boundary from atom 0
		Positions: [][3]float64{{0, 0, 0}, {2, 0, 0}, {3.5, 0, 0}},
	}
	require.NoError(t, BuildNeighbors(g, sys, 1.0))

	// Self first, then neighbors within the minimum-image cutoff
	assert.Equal(t, []int{0, 2}, sys.Neighbors[0])
	assert.Equal(t, []int{1}, sys.Neighbors[1])
	assert.Equal(t, []int{2, 0}, sys.Neighbors[2])

	assert.Equal(t, 1, sys.FNAN(0))
	assert.Equal(t, 0, sys.FNAN(1))
	assert.Error(t, BuildNeighbors(g, sys, 0))
}

func TestBuildAtomSupports(t *testing.T) {
	g := testGeometry(t, 4, 4.0)
	sys := twoAtomSystem(t, g, 1, 1.0, 1.5, 3.0, [2]int{0, 0})
	sup := BuildAtomSupports(g, sys)
	require.Len(t, sup, 2)

	for ga := range sup {
		assert.Greater(t, sup[ga].NumPoints(), 0)
		for row, gn := range sup[ga].GIdx {
			d := g.MinImageDistance(g.PointCoords(gn), sys.Positions[ga])
			assert.LessOrEqual(t, d, 1.5)
			assert.Equal(t, row, sup[ga].rowOf[gn])
		}
		// Points outside the radius stay out
		inside := make(map[int]bool)
		for _, gn := range sup[ga].GIdx {
			inside[gn] = true
		}
		for gn := 0; gn < g.NumPoints(); gn++ {
			if !inside[gn] {
				d := g.MinImageDistance(g.PointCoords(gn), sys.Positions[ga])
				assert.Greater(t, d, 1.5)
			}
		}
	}
}

func TestBuildSupportsFieldRouting(t *testing.T) {
	var (
		g   = testGeometry(t, 4, 4.0)
		sys = twoAtomSystem(t, g, 1, 1.0, 10.0, 3.0, [2]int{0, 1})
	)
	partC, err := grid.NewSlabPartition(g, 2)
	require.NoError(t, err)

	sup, err := BuildSupports(g, sys, partC, 0)
	require.NoError(t, err)
	require.Equal(t, []int{0}, sup.LocalAtoms())
	require.Len(t, sup.Pairs, 1)
	require.Len(t, sup.Pairs[0], 2)

	// Radius 10 covers the whole cell, so the self pair shares every point
	// and the halo is exactly the other rank's slab.
	assert.Equal(t, g.NumPoints(), sup.Pairs[0][0].NumShared())
	assert.True(t, sup.NeedsHalo())
	assert.Equal(t, partC.Local(1), sup.HaloGN)

	for h := range sup.Pairs[0] {
		ps := &sup.Pairs[0][h]
		for p := 0; p < ps.NumShared(); p++ {
			gn := sup.Atom[0].GIdx[ps.OwnIdx[p]]
			if fi := ps.FieldIdx[p]; fi >= 0 {
				assert.Equal(t, 0, partC.Owner(gn))
				assert.Equal(t, partC.LocalIndex(gn), fi)
			} else {
				assert.Equal(t, 1, partC.Owner(gn))
				assert.Equal(t, gn, sup.HaloGN[^fi])
			}
			// Both row lists point at the same grid point
			assert.Equal(t, gn, sup.Atom[1].GIdx[ps.NbrIdx[p]])
		}
	}
}

func TestBuildSupportsRejectsBadSystem(t *testing.T) {
	g := testGeometry(t, 4, 4.0)
	partC, err := grid.NewSlabPartition(g, 2)
	require.NoError(t, err)

	sys := twoAtomSystem(t, g, 1, 1.0, 2.0, 3.0, [2]int{0, 3})
	_, err = BuildSupports(g, sys, partC, 0)
	var cfg grid.ConfigurationError
	assert.ErrorAs(t, err, &cfg)

	sys = twoAtomSystem(t, g, 1, 1.0, 2.0, 3.0, [2]int{0, 1})
	sys.Neighbors = nil
	_, err = BuildSupports(g, sys, partC, 0)
	assert.ErrorAs(t, err, &cfg)
}
