package hamiltonian

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
	"github.com/rubenlee11/HamGNN/utils"
)

// Blocks holds one rank's Hamiltonian matrix blocks, indexed
// [source][local atom][neighbor slot]. Each block is NumOrbitals(atom) x
// NumOrbitals(neighbor).
type Blocks [][][]*mat.Dense

// pairTask is one flattened quadrature task.
type pairTask struct {
	Mc, H int
}

// Engine integrates potential fields against orbital products over the pair
// supports of one rank's atoms, in parallel over worker threads.
type Engine struct {
	Sup     *Supports
	Orb     *Orbitals
	Halo    *FieldHalo
	Threads int

	tasks []pairTask
}

// NewEngine validates that the orbital tables cover every pair the supports
// name: local tables for owned neighbors, halo tables (from
// ExchangeOrbitals) for remote ones. Failing that is a setup error, caught
// here rather than mid-quadrature.
func NewEngine(sup *Supports, orb *Orbitals, halo *FieldHalo, threads int) (*Engine, error) {
	if threads < 1 {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf("thread count must be positive, have %d", threads)}
	}
	if sup.NeedsHalo() && halo == nil {
		return nil, grid.ConfigurationError{Reason: "pair supports touch foreign field points but no field halo was built"}
	}
	var (
		sys   = sup.Sys
		tasks []pairTask
	)
	for mi, gc := range sup.LocalAtoms() {
		if _, ok := orb.Local[gc]; !ok {
			return nil, grid.ConfigurationError{Reason: fmt.Sprintf("no orbital table for local atom %d", gc)}
		}
		for h, gh := range sys.Neighbors[gc] {
			tasks = append(tasks, pairTask{mi, h})
			if sys.AtomRank[gh] == sup.Rank {
				if _, ok := orb.Local[gh]; !ok {
					return nil, grid.ConfigurationError{Reason: fmt.Sprintf("no orbital table for local neighbor %d", gh)}
				}
				continue
			}
			if _, ok := orb.Halo[PairKey{mi, h}]; !ok && sup.Pairs[mi][h].NumShared() > 0 {
				return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
					"no halo orbital table for pair (%d,%d); run ExchangeOrbitals first", mi, h)}
			}
		}
	}
	return &Engine{Sup: sup, Orb: orb, Halo: halo, Threads: threads, tasks: tasks}, nil
}

// NewBlocks allocates a zeroed block set shaped for the engine's tasks.
func (e *Engine) NewBlocks(nSources int) Blocks {
	var (
		sys   = e.Sup.Sys
		local = e.Sup.LocalAtoms()
		b     = make(Blocks, nSources)
	)
	for s := range b {
		b[s] = make([][]*mat.Dense, len(local))
		for mi, gc := range local {
			b[s][mi] = make([]*mat.Dense, len(sys.Neighbors[gc]))
			for h, gh := range sys.Neighbors[gc] {
				b[s][mi][h] = mat.NewDense(sys.NumOrbitals(gc), sys.NumOrbitals(gh), nil)
			}
		}
	}
	return b
}

// orbitalSource reads one orbital row of the neighbor atom for a shared
// point, hiding whether the row lives in a local or a halo table.
type orbitalSource interface {
	row(point int) []float64
}

// localOrbitals reads the neighbor's own support table through the pair's
// NbrIdx row list.
type localOrbitals struct {
	rows [][]float64
	idx  []int
}

func (l localOrbitals) row(point int) []float64 { return l.rows[l.idx[point]] }

// haloOrbitals reads the exchanged per-pair table, already in shared-point
// order.
type haloOrbitals struct {
	rows [][]float64
}

func (h haloOrbitals) row(point int) []float64 { return h.rows[point] }

// AccumulateBlocks computes the Hamiltonian blocks for every source field.
// fields[s] is source s's potential in C layout (one value per C-local
// point). If seed is non-nil its blocks initialize the accumulation,
// otherwise blocks start from zero; either way out is written fresh, so the
// call is idempotent. Collective when a field halo is in play.
func (e *Engine) AccumulateBlocks(c *comm.Comm, fields [][]float64, seed Blocks) (Blocks, error) {
	var (
		sup     = e.Sup
		sys     = sup.Sys
		local   = sup.LocalAtoms()
		gridVol = sup.Geom.GridVol
		nLocal  = sup.PartC.NumLocal(sup.Rank)
	)
	for s, f := range fields {
		if len(f) != nLocal {
			return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
				"source %d field has %d values, rank %d owns %d C points", s, len(f), sup.Rank, nLocal)}
		}
	}
	// The halo exchange is collective: a rank with nothing to pull still
	// serves its partners, so on a multi-rank group every rank needs a plan.
	if e.Halo == nil && c.Size() > 1 {
		return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
			"rank %d has no field halo plan on a %d-rank group: build one on every rank", sup.Rank, c.Size())}
	}
	if seed != nil {
		if len(seed) != len(fields) {
			return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
				"seed covers %d sources, have %d fields", len(seed), len(fields))}
		}
		for s := range seed {
			if len(seed[s]) != len(local) {
				return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
					"source %d seed covers %d atoms, rank %d owns %d", s, len(seed[s]), sup.Rank, len(local))}
			}
			for mi, gc := range local {
				if len(seed[s][mi]) != len(sys.Neighbors[gc]) {
					return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
						"source %d seed has %d blocks for atom %d, which has %d neighbors",
						s, len(seed[s][mi]), gc, len(sys.Neighbors[gc]))}
				}
				for h, gh := range sys.Neighbors[gc] {
					r, cc := seed[s][mi][h].Dims()
					if r != sys.NumOrbitals(gc) || cc != sys.NumOrbitals(gh) {
						return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
							"source %d seed block for pair (%d,%d) is %dx%d, want %dx%d",
							s, mi, h, r, cc, sys.NumOrbitals(gc), sys.NumOrbitals(gh))}
					}
				}
			}
		}
	}

	out := e.NewBlocks(len(fields))
	pm := utils.NewPartitionMap(e.Threads, len(e.tasks))
	for s, field := range fields {
		var halo []float64
		if e.Halo != nil {
			halo = e.Halo.Exchange(c, field)
		}
		wg := sync.WaitGroup{}
		for n := 0; n < pm.ParallelDegree; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				var (
					maxNO   = sys.MaxOrbitals()
					scratch = make([]float64, maxNO*maxNO)
					lo, hi  = pm.GetBucketRange(n)
				)
				for t := lo; t < hi; t++ {
					task := e.tasks[t]
					var (
						gc  = local[task.Mc]
						gh  = sys.Neighbors[gc][task.H]
						ps  = &sup.Pairs[task.Mc][task.H]
						no0 = sys.NumOrbitals(gc)
						no1 = sys.NumOrbitals(gh)
						own = e.Orb.Local[gc]
						nbr = e.neighborOrbitals(task, gh)
					)
					if seed != nil {
						copyBlock(scratch, seed[s][task.Mc][task.H], no0, no1)
					} else {
						zero(scratch[:no0*no1])
					}
					for p := 0; p < ps.NumShared(); p++ {
						var v float64
						if fi := ps.FieldIdx[p]; fi >= 0 {
							v = field[fi]
						} else {
							v = halo[^fi]
						}
						var (
							w    = gridVol * v
							orb0 = own[ps.OwnIdx[p]]
							orb1 = nbr.row(p)
						)
						for i := 0; i < no0; i++ {
							wi := w * orb0[i]
							row := scratch[i*no1 : (i+1)*no1]
							for j := 0; j < no1; j++ {
								row[j] += wi * orb1[j]
							}
						}
					}
					writeBlock(out[s][task.Mc][task.H], scratch, no0, no1)
				}
			}(n)
		}
		wg.Wait()
	}
	return out, nil
}

func (e *Engine) neighborOrbitals(task pairTask, gh int) orbitalSource {
	if e.Sup.Sys.AtomRank[gh] == e.Sup.Rank {
		return localOrbitals{rows: e.Orb.Local[gh], idx: e.Sup.Pairs[task.Mc][task.H].NbrIdx}
	}
	return haloOrbitals{rows: e.Orb.Halo[PairKey{task.Mc, task.H}]}
}

func copyBlock(dst []float64, src *mat.Dense, no0, no1 int) {
	for i := 0; i < no0; i++ {
		copy(dst[i*no1:(i+1)*no1], src.RawRowView(i))
	}
}

func writeBlock(dst *mat.Dense, src []float64, no0, no1 int) {
	for i := 0; i < no0; i++ {
		dst.SetRow(i, src[i*no1:(i+1)*no1])
	}
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
