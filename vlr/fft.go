package vlr

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

// Transformer is the bulk FFT primitive: it maps reciprocal-space
// coefficients laid out on the local slab range to real-space values in the
// same layout. Implementations communicate, so all ranks call it together.
type Transformer interface {
	RealSpace(c *comm.Comm, re, im []float64) ([]float64, error)
}

// fourierTransformer is the default primitive. Each rank gathers the full
// coefficient grid (slab ranges concatenate in rank order to the global flat
// order), applies the unnormalized inverse transform axis by axis with
// gonum's complex FFT, and keeps its slab of the result. Correct and simple;
// a distributed pencil transform could replace it behind the same interface.
type fourierTransformer struct {
	geom   *grid.Geometry
	part   *grid.Partition
	counts []int
}

func NewFourierTransformer(geom *grid.Geometry, part *grid.Partition) (Transformer, error) {
	// The gather relies on slab ordering: rank r's local points must be the
	// contiguous flat range following rank r-1's.
	next := 0
	for r := 0; r < part.NumRanks(); r++ {
		for _, gn := range part.Local(r) {
			if gn != next {
				return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
					"FFT primitive needs a slab partition: rank %d owns point %d, expected %d", r, gn, next)}
			}
			next++
		}
	}
	if next != geom.NumPoints() {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
			"partition covers %d of %d grid points", next, geom.NumPoints())}
	}
	t := &fourierTransformer{geom: geom, part: part, counts: make([]int, part.NumRanks())}
	for r := range t.counts {
		t.counts[r] = part.NumLocal(r)
	}
	return t, nil
}

func (t *fourierTransformer) RealSpace(c *comm.Comm, re, im []float64) ([]float64, error) {
	var (
		me     = c.Rank()
		nLocal = t.counts[me]
	)
	if len(re) != nLocal || len(im) != nLocal {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
			"rank %d: %d/%d coefficients for %d slab points", me, len(re), len(im), nLocal)}
	}
	reAll := c.AllgatherFloat64(re, t.counts)
	imAll := c.AllgatherFloat64(im, t.counts)

	data := make([]complex128, len(reAll))
	for i := range data {
		data[i] = complex(reAll[i], imAll[i])
	}
	inverse3D(t.geom, data)

	var (
		out   = make([]float64, nLocal)
		local = t.part.Local(me)
	)
	for bn, gn := range local {
		out[bn] = real(data[gn])
	}
	return out, nil
}

// inverse3D applies the unnormalized inverse DFT along each axis in place:
// out_n = sum_k c_k exp(+2 pi i k.n/N). The potential coefficients already
// carry the 1/V cell normalization, so no 1/N factor is applied.
func inverse3D(g *grid.Geometry, data []complex128) {
	var (
		n1, n2, n3 = g.N1, g.N2, g.N3
		ffts       = map[int]*fourier.CmplxFFT{}
		plan       = func(n int) *fourier.CmplxFFT {
			if f, ok := ffts[n]; ok {
				return f
			}
			f := fourier.NewCmplxFFT(n)
			ffts[n] = f
			return f
		}
	)
	inverseAxis(data, plan(n1), n1, n2*n3, func(run, j int) int {
		// run enumerates (k2,k3) pairs
		return run*n1 + j
	})
	inverseAxis(data, plan(n2), n2, n1*n3, func(run, j int) int {
		k1 := run % n1
		k3 := run / n1
		return k3*n2*n1 + j*n1 + k1
	})
	inverseAxis(data, plan(n3), n3, n1*n2, func(run, j int) int {
		return j*n2*n1 + run
	})
}

// inverseAxis transforms every 1D line along one axis. at maps (line, index
// along axis) to the flat position of the element.
func inverseAxis(data []complex128, fft *fourier.CmplxFFT, n, runs int, at func(run, j int) int) {
	var (
		in  = make([]complex128, n)
		out = make([]complex128, n)
	)
	for run := 0; run < runs; run++ {
		for j := 0; j < n; j++ {
			in[j] = data[at(run, j)]
		}
		out = fft.Sequence(out, in)
		for j := 0; j < n; j++ {
			data[at(run, j)] = out[j]
		}
	}
}
