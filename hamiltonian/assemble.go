package hamiltonian

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

// Tags for the triplet gather.
const (
	tagAsmCount = 1300
	tagAsmIdx   = 1301
	tagAsmVal   = 1302
)

// OrbitalOffsets returns each atom's first row/column in the assembled
// matrix plus the total orbital dimension.
func OrbitalOffsets(sys *System) ([]int, int) {
	var (
		off = make([]int, sys.NumAtoms())
		dim int
	)
	for ga := range off {
		off[ga] = dim
		dim += sys.NumOrbitals(ga)
	}
	return off, dim
}

// Assemble scatters one source's blocks into a sparse matrix over the full
// orbital space. Only the rank's own atom rows are populated; repeated
// (row, col) hits from distinct neighbor pairs accumulate.
func Assemble(sys *System, rank int, blocks [][]*mat.Dense) (*sparse.DOK, error) {
	var (
		off, dim = OrbitalOffsets(sys)
		local    = sys.LocalAtoms(rank)
		dok      = sparse.NewDOK(dim, dim)
	)
	if len(blocks) != len(local) {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
			"have blocks for %d atoms, rank %d owns %d", len(blocks), rank, len(local))}
	}
	for mi, gc := range local {
		if len(blocks[mi]) != len(sys.Neighbors[gc]) {
			return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
				"atom %d has %d blocks, %d neighbors", gc, len(blocks[mi]), len(sys.Neighbors[gc]))}
		}
		for h, gh := range sys.Neighbors[gc] {
			var (
				blk      = blocks[mi][h]
				no0, no1 = blk.Dims()
			)
			for i := 0; i < no0; i++ {
				for j := 0; j < no1; j++ {
					if v := blk.At(i, j); v != 0 {
						r, c := off[gc]+i, off[gh]+j
						dok.Set(r, c, dok.At(r, c)+v)
					}
				}
			}
		}
	}
	return dok, nil
}

// GatherAssemble assembles one source's blocks across all ranks and gathers
// the nonzeros to rank 0 as a CSR matrix. Other ranks return nil.
// Collective.
func GatherAssemble(c *comm.Comm, sys *System, blocks [][]*mat.Dense) (*sparse.CSR, error) {
	mine, err := Assemble(sys, c.Rank(), blocks)
	if err != nil {
		return nil, err
	}
	var (
		rows []int
		cols []int
		vals []float64
	)
	mine.DoNonZero(func(i, j int, v float64) {
		rows = append(rows, i)
		cols = append(cols, j)
		vals = append(vals, v)
	})

	if c.Rank() != 0 {
		c.IsendInts([]int{len(vals)}, 0, tagAsmCount)
		if len(vals) > 0 {
			idx := make([]int, 0, 2*len(vals))
			idx = append(idx, rows...)
			idx = append(idx, cols...)
			c.IsendInts(idx, 0, tagAsmIdx)
			c.Isend(vals, 0, tagAsmVal)
		}
		c.Barrier()
		return nil, nil
	}

	_, dim := OrbitalOffsets(sys)
	full := sparse.NewDOK(dim, dim)
	for k := range vals {
		full.Set(rows[k], cols[k], full.At(rows[k], cols[k])+vals[k])
	}
	for r := 1; r < c.Size(); r++ {
		cnt := make([]int, 1)
		c.Wait(c.IrecvInts(cnt, r, tagAsmCount))
		if cnt[0] == 0 {
			continue
		}
		var (
			idx = make([]int, 2*cnt[0])
			v   = make([]float64, cnt[0])
		)
		c.Wait(c.IrecvInts(idx, r, tagAsmIdx))
		c.Wait(c.Irecv(v, r, tagAsmVal))
		for k := 0; k < cnt[0]; k++ {
			i, j := idx[k], idx[cnt[0]+k]
			full.Set(i, j, full.At(i, j)+v[k])
		}
	}
	c.Barrier()
	return full.ToCSR(), nil
}
