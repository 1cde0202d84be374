// Package vlr computes the long-range screened-Coulomb potential on the
// distributed grid. For each source the analytic reciprocal-space coefficient
// is evaluated on the local slab-partition points and transformed to real
// space by the FFT primitive, leaving the field in the same slab layout.
package vlr

import (
	"fmt"
	"math"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

// DefaultSigma is the screening width controlling the real/reciprocal space
// split of the Coulomb interaction.
const DefaultSigma = 1.0

// k2Tol guards the division by K^2: with a valid reciprocal lattice the only
// zero is the uniform mode, anything else signals a geometry mismatch.
const k2Tol = 1.e-14

// Solver evaluates the long-range potential field per source.
type Solver struct {
	Geom  *grid.Geometry
	Part  *grid.Partition // slab partition (B layout)
	Sigma float64
	FFT   Transformer
}

// NewSolver wires the default gonum-backed FFT primitive. A zero sigma
// selects DefaultSigma.
func NewSolver(geom *grid.Geometry, part *grid.Partition, sigma float64) (*Solver, error) {
	if sigma < 0 {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf("screening width must be positive, have %g", sigma)}
	}
	if sigma == 0 {
		sigma = DefaultSigma
	}
	fft, err := NewFourierTransformer(geom, part)
	if err != nil {
		return nil, err
	}
	return &Solver{Geom: geom, Part: part, Sigma: sigma, FFT: fft}, nil
}

// FillReciprocal writes the reciprocal-space coefficients of the long-range
// potential of a unit point source at pos into re and im, one value per
// slab-local grid point. Each axis index folds into the symmetric zone
// (k -> k-N for k >= N/2) before conversion to Cartesian G. The divergent
// uniform mode K^2 == 0 is set to exactly zero.
//
// The stored coefficient is A*e^{-iG.r}: the transformer applies the
// e^{+iG.n} direction, so this pairing centers the real-space potential on
// the source position.
func (s *Solver) FillReciprocal(rank int, pos [3]float64, re, im []float64) error {
	var (
		g     = s.Geom
		local = s.Part.Local(rank)
		tmp0  = 4. * math.Pi / g.CellVolume
		ss    = s.Sigma * s.Sigma
	)
	if len(re) != len(local) || len(im) != len(local) {
		return grid.ConfigurationError{Reason: fmt.Sprintf(
			"coefficient buffers have %d/%d values for %d local points", len(re), len(im), len(local))}
	}
	for bn, gn := range local {
		k1, k2, k3 := g.Unflatten(gn)

		sk1 := float64(k1)
		if k1 >= g.N1/2 {
			sk1 = float64(k1 - g.N1)
		}
		sk2 := float64(k2)
		if k2 >= g.N2/2 {
			sk2 = float64(k2 - g.N2)
		}
		sk3 := float64(k3)
		if k3 >= g.N3/2 {
			sk3 = float64(k3 - g.N3)
		}

		gx := sk1*g.RTV[0][0] + sk2*g.RTV[1][0] + sk3*g.RTV[2][0]
		gy := sk1*g.RTV[0][1] + sk2*g.RTV[1][1] + sk3*g.RTV[2][1]
		gz := sk1*g.RTV[0][2] + sk2*g.RTV[1][2] + sk3*g.RTV[2][2]
		kk := gx*gx + gy*gy + gz*gz

		if kk > k2Tol {
			amp := tmp0 / kk * math.Exp(-ss*kk/2.)
			th := -gx*pos[0] - gy*pos[1] - gz*pos[2]
			re[bn] = amp * math.Cos(th)
			im[bn] = amp * math.Sin(th)
			continue
		}
		if k1 == 0 && k2 == 0 && k3 == 0 {
			re[bn] = 0.0
			im[bn] = 0.0
			continue
		}
		return grid.ConfigurationError{Reason: fmt.Sprintf(
			"near-zero |G|^2 = %g away from the uniform mode at (%d,%d,%d): grid and lattice disagree", kk, k1, k2, k3)}
	}
	return nil
}

// Solve computes the real-space long-range potential for every source, in
// slab layout, one field per source. The transforms are independent and run
// one after another; every rank must call Solve collectively since the FFT
// primitive communicates.
func (s *Solver) Solve(c *comm.Comm, sources [][3]float64) ([][]float64, error) {
	var (
		me     = c.Rank()
		nLocal = s.Part.NumLocal(me)
		fields = make([][]float64, len(sources))
		re     = make([]float64, nLocal)
		im     = make([]float64, nLocal)
	)
	c.Barrier()
	for p, pos := range sources {
		if err := s.FillReciprocal(me, pos, re, im); err != nil {
			return nil, err
		}
		field, err := s.FFT.RealSpace(c, re, im)
		if err != nil {
			return nil, err
		}
		fields[p] = field
	}
	c.Barrier()
	return fields, nil
}
