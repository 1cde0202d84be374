package vlr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

func cubicGeometry(t *testing.T, n int, a float64) *grid.Geometry {
	t.Helper()
	g, err := grid.NewGeometry(n, n, n, [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}}, [3]float64{})
	require.NoError(t, err)
	return g
}

func TestFillReciprocalZeroMode(t *testing.T) {
	g := cubicGeometry(t, 4, 5.0)
	part, err := grid.NewSlabPartition(g, 1)
	require.NoError(t, err)
	s, err := NewSolver(g, part, 1.0)
	require.NoError(t, err)

	re := make([]float64, g.NumPoints())
	im := make([]float64, g.NumPoints())
	require.NoError(t, s.FillReciprocal(0, [3]float64{1.3, 0.2, 4.0}, re, im))

	// The uniform background mode is removed exactly
	assert.Equal(t, 0.0, re[0])
	assert.Equal(t, 0.0, im[0])
	// Every other coefficient carries the screened kernel
	for gn := 1; gn < g.NumPoints(); gn++ {
		mag := math.Hypot(re[gn], im[gn])
		assert.Greater(t, mag, 0.0, "mode %d", gn)
	}
}

func TestFourierTransformerSingleMode(t *testing.T) {
	// A lone coefficient at k = (1,0,0) must produce cos(2 pi k1/N1) in real
	// space, computed over two ranks.
	var (
		n  = 8
		np = 2
	)
	g := cubicGeometry(t, n, 1.0)
	part, err := grid.NewSlabPartition(g, np)
	require.NoError(t, err)
	fft, err := NewFourierTransformer(g, part)
	require.NoError(t, err)

	cl, err := comm.NewCluster(np)
	require.NoError(t, err)
	fields := make([][]float64, np)
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		re := make([]float64, part.NumLocal(me))
		im := make([]float64, part.NumLocal(me))
		target := g.FlatIndex(1, 0, 0)
		for bn, gn := range part.Local(me) {
			if gn == target {
				re[bn] = 1.0
			}
		}
		var ferr error
		fields[me], ferr = fft.RealSpace(c, re, im)
		require.NoError(t, ferr)
	})
	for r := 0; r < np; r++ {
		for bn, gn := range part.Local(r) {
			k1, _, _ := g.Unflatten(gn)
			want := math.Cos(2. * math.Pi * float64(k1) / float64(n))
			assert.InDelta(t, want, fields[r][bn], 1.e-12, "rank %d point %d", r, gn)
		}
	}
}

func TestSolveOriginChargeSymmetry(t *testing.T) {
	var (
		n  = 8
		np = 2
	)
	g := cubicGeometry(t, n, 8.0)
	part, err := grid.NewSlabPartition(g, np)
	require.NoError(t, err)
	s, err := NewSolver(g, part, 1.0)
	require.NoError(t, err)

	cl, err := comm.NewCluster(np)
	require.NoError(t, err)
	var (
		global = make([]float64, g.NumPoints())
		sum    = make([]float64, np)
	)
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		fields, serr := s.Solve(c, [][3]float64{{0, 0, 0}})
		require.NoError(t, serr)
		for bn, gn := range part.Local(me) {
			global[gn] = fields[0][bn]
		}
		sum[me] = c.AllreduceSum(floats.Sum(fields[0]))
	})
	// Both ranks agree on the total, and the zero mode contributes exactly
	// nothing to the mean of the field
	assert.Equal(t, sum[0], sum[1])
	assert.InDelta(t, 0.0, sum[0], 1.e-8)

	// Spherical symmetry about the origin: axis permutations and mirrored
	// displacements see the same potential
	for _, k := range []int{1, 2, 3} {
		vx := global[g.FlatIndex(k, 0, 0)]
		vy := global[g.FlatIndex(0, k, 0)]
		vz := global[g.FlatIndex(0, 0, k)]
		vmx := global[g.FlatIndex(n-k, 0, 0)]
		assert.InDelta(t, vx, vy, 1.e-10)
		assert.InDelta(t, vx, vz, 1.e-10)
		assert.InDelta(t, vx, vmx, 1.e-10)
	}
	// The potential decays away from the charge
	assert.Greater(t, global[g.FlatIndex(1, 0, 0)], global[g.FlatIndex(4, 0, 0)])
}

// TestSolveDisplacedChargeCenteredOnSource guards the phase convention: the
// coefficients carry e^{-iG.r} against the transformer's e^{+iG.n} direction,
// and getting either sign wrong mirrors an off-origin potential through the
// origin. An origin charge cannot see that.
func TestSolveDisplacedChargeCenteredOnSource(t *testing.T) {
	var (
		n  = 8
		np = 2
		k0 = 2 // source sits at grid point (2,0,0)
	)
	g := cubicGeometry(t, n, 8.0)
	part, err := grid.NewSlabPartition(g, np)
	require.NoError(t, err)
	s, err := NewSolver(g, part, 1.0)
	require.NoError(t, err)

	src := g.PointCoords(g.FlatIndex(k0, 0, 0))
	cl, err := comm.NewCluster(np)
	require.NoError(t, err)
	global := make([]float64, g.NumPoints())
	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		fields, serr := s.Solve(c, [][3]float64{src})
		require.NoError(t, serr)
		for bn, gn := range part.Local(me) {
			global[gn] = fields[0][bn]
		}
	})

	// The field maximum coincides with the source, not its mirror image.
	argmax := 0
	for gn, v := range global {
		if v > global[argmax] {
			argmax = gn
		}
	}
	k1, k2, k3 := g.Unflatten(argmax)
	assert.Equal(t, [3]int{k0, 0, 0}, [3]int{k1, k2, k3})

	// And the potential is symmetric about the source along the axis.
	for _, d := range []int{1, 2, 3} {
		plus := global[g.FlatIndex((k0+d)%n, 0, 0)]
		minus := global[g.FlatIndex((k0-d+n)%n, 0, 0)]
		assert.InDelta(t, plus, minus, 1.e-10, "offset %d", d)
	}
}

func TestSolverRejectsNegativeSigma(t *testing.T) {
	g := cubicGeometry(t, 4, 1.0)
	part, err := grid.NewSlabPartition(g, 1)
	require.NoError(t, err)
	_, err = NewSolver(g, part, -2.0)
	assert.Error(t, err)
}

func TestFourierTransformerRejectsNonSlab(t *testing.T) {
	g := cubicGeometry(t, 4, 1.0)
	owner := make([]int, g.NumPoints())
	for gn := range owner {
		owner[gn] = gn % 2
	}
	part, err := grid.NewPartitionFromOwners(g, 2, owner)
	require.NoError(t, err)
	_, err = NewFourierTransformer(g, part)
	var cfg grid.ConfigurationError
	assert.ErrorAs(t, err, &cfg)
}
