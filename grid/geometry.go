// Package grid models the logical real-space grid of the calculation: its
// geometry, the two concurrent domain decompositions (the FFT-friendly slab
// partition and the atom-support partition), and the precomputed plan that
// reshuffles a scalar field between them.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ConfigurationError reports inconsistent grid dimensions, lattice vectors or
// plan bookkeeping. It is detected at setup, before any computation.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// InvalidPlanError reports a mismatch between a redistribution plan and the
// field handed to it. The redistributor panics with it because a half-moved
// field has no defined recovery.
type InvalidPlanError struct {
	Reason string
}

func (e InvalidPlanError) Error() string {
	return "invalid plan: " + e.Reason
}

// Geometry is the static description of the logical N1 x N2 x N3 grid.
// Immutable for the run; coordinate transforms only.
type Geometry struct {
	N1, N2, N3 int
	TV         [3][3]float64 // lattice vectors, one per row
	RTV        [3][3]float64 // reciprocal lattice vectors: RTV[i] . TV[j] = 2 pi delta_ij
	Origin     [3]float64
	CellVolume float64
	GridVol    float64 // volume element of one grid point
}

func NewGeometry(n1, n2, n3 int, tv [3][3]float64, origin [3]float64) (*Geometry, error) {
	if n1 < 1 || n2 < 1 || n3 < 1 {
		return nil, ConfigurationError{fmt.Sprintf("grid dimensions must be positive, have %dx%dx%d", n1, n2, n3)}
	}
	A := mat.NewDense(3, 3, []float64{
		tv[0][0], tv[0][1], tv[0][2],
		tv[1][0], tv[1][1], tv[1][2],
		tv[2][0], tv[2][1], tv[2][2],
	})
	det := mat.Det(A)
	if math.Abs(det) < 1.e-14 {
		return nil, ConfigurationError{"lattice vectors are degenerate (zero cell volume)"}
	}
	var Ainv mat.Dense
	if err := Ainv.Inverse(A); err != nil {
		return nil, ConfigurationError{"lattice vectors are not invertible: " + err.Error()}
	}
	g := &Geometry{
		N1: n1, N2: n2, N3: n3,
		TV:         tv,
		Origin:     origin,
		CellVolume: math.Abs(det),
	}
	// b_i = 2 pi (A^-1)^T rows
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			g.RTV[i][j] = 2. * math.Pi * Ainv.At(j, i)
		}
	}
	g.GridVol = g.CellVolume / float64(n1*n2*n3)
	return g, nil
}

func (g *Geometry) NumPoints() int { return g.N1 * g.N2 * g.N3 }

// FlatIndex maps 3D indices to the canonical flat grid index
// GN = k3*N2*N1 + k2*N1 + k1.
func (g *Geometry) FlatIndex(k1, k2, k3 int) int {
	return k3*g.N2*g.N1 + k2*g.N1 + k1
}

func (g *Geometry) Unflatten(gn int) (k1, k2, k3 int) {
	k3 = gn / (g.N2 * g.N1)
	k2 = (gn - k3*g.N2*g.N1) / g.N1
	k1 = gn - k3*g.N2*g.N1 - k2*g.N1
	return
}

// PointCoords returns the Cartesian coordinates of grid point gn.
func (g *Geometry) PointCoords(gn int) (r [3]float64) {
	k1, k2, k3 := g.Unflatten(gn)
	f1 := float64(k1) / float64(g.N1)
	f2 := float64(k2) / float64(g.N2)
	f3 := float64(k3) / float64(g.N3)
	for d := 0; d < 3; d++ {
		r[d] = g.Origin[d] + f1*g.TV[0][d] + f2*g.TV[1][d] + f3*g.TV[2][d]
	}
	return
}

// MinImageVector returns the displacement a-b of minimal norm over the 27
// neighboring lattice translations.
func (g *Geometry) MinImageVector(a, b [3]float64) (best [3]float64) {
	d2min := math.Inf(1)
	for s1 := -1; s1 <= 1; s1++ {
		for s2 := -1; s2 <= 1; s2++ {
			for s3 := -1; s3 <= 1; s3++ {
				var (
					v  [3]float64
					d2 float64
				)
				for d := 0; d < 3; d++ {
					v[d] = a[d] - b[d] + float64(s1)*g.TV[0][d] + float64(s2)*g.TV[1][d] + float64(s3)*g.TV[2][d]
					d2 += v[d] * v[d]
				}
				if d2 < d2min {
					d2min = d2
					best = v
				}
			}
		}
	}
	return
}

// MinImageDistance returns the shortest distance between two Cartesian points
// over the 27 neighboring lattice translations.
func (g *Geometry) MinImageDistance(a, b [3]float64) float64 {
	d2min := math.Inf(1)
	for s1 := -1; s1 <= 1; s1++ {
		for s2 := -1; s2 <= 1; s2++ {
			for s3 := -1; s3 <= 1; s3++ {
				var d2 float64
				for d := 0; d < 3; d++ {
					dd := a[d] - b[d] + float64(s1)*g.TV[0][d] + float64(s2)*g.TV[1][d] + float64(s3)*g.TV[2][d]
					d2 += dd * dd
				}
				if d2 < d2min {
					d2min = d2
				}
			}
		}
	}
	return math.Sqrt(d2min)
}
