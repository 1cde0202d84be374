package hamiltonian

import (
	"fmt"
	"sort"

	"github.com/rubenlee11/HamGNN/grid"
)

// AtomSupport lists the grid points inside an atom's support radius,
// ascending in the global flat index. Built identically on every rank, so
// row numbers are a shared vocabulary between a pair's two owners.
type AtomSupport struct {
	GIdx  []int
	rowOf map[int]int // global index -> row in GIdx
}

// NumPoints is the GridN_Atom of the atom.
func (a *AtomSupport) NumPoints() int { return len(a.GIdx) }

// BuildAtomSupports computes every atom's support. Deterministic in its
// inputs; all ranks hold the same tables.
func BuildAtomSupports(geom *grid.Geometry, sys *System) []AtomSupport {
	out := make([]AtomSupport, sys.NumAtoms())
	for ga := range out {
		var (
			radius = sys.Species[sys.AtomSpecies[ga]].SupportRadius
			pos    = sys.Positions[ga]
			sup    = AtomSupport{rowOf: make(map[int]int)}
		)
		for gn := 0; gn < geom.NumPoints(); gn++ {
			if geom.MinImageDistance(geom.PointCoords(gn), pos) <= radius {
				sup.rowOf[gn] = len(sup.GIdx)
				sup.GIdx = append(sup.GIdx, gn)
			}
		}
		out[ga] = sup
	}
	return out
}

// PairSupport indexes the joint integration support of one (local atom,
// neighbor) pair. The three lists run in parallel over the shared points:
// OwnIdx and NbrIdx are rows into the two atoms' support tables, FieldIdx
// locates the potential value (>= 0: local C index; < 0: halo slot ^idx).
type PairSupport struct {
	OwnIdx   []int
	NbrIdx   []int
	FieldIdx []int
}

// NumShared is the NOLG of the pair.
func (ps *PairSupport) NumShared() int { return len(ps.OwnIdx) }

// Supports holds one rank's quadrature bookkeeping: the global atom support
// tables, the pair supports of its local atoms, and the list of foreign
// C-partition points those pairs touch (the field halo).
type Supports struct {
	Geom  *grid.Geometry
	Sys   *System
	PartC *grid.Partition
	Rank  int

	Atom  []AtomSupport
	Pairs [][]PairSupport // [local atom][h], h = 0 is the self pair

	HaloGN []int // foreign points, ascending; positions are halo slots
}

// BuildSupports precomputes the pair supports for rank's atoms. The pair
// support is the intersection of the two atoms' support tables; points owned
// by a foreign rank under the C partition are routed through halo slots.
func BuildSupports(geom *grid.Geometry, sys *System, partC *grid.Partition, rank int) (*Supports, error) {
	if err := sys.Validate(partC.NumRanks()); err != nil {
		return nil, err
	}
	s := &Supports{
		Geom:  geom,
		Sys:   sys,
		PartC: partC,
		Rank:  rank,
		Atom:  BuildAtomSupports(geom, sys),
	}
	local := sys.LocalAtoms(rank)
	s.Pairs = make([][]PairSupport, len(local))

	haloSet := make(map[int]bool)
	for mi, gc := range local {
		s.Pairs[mi] = make([]PairSupport, len(sys.Neighbors[gc]))
		for _, gh := range sys.Neighbors[gc] {
			for _, gn := range s.Atom[gc].GIdx {
				if _, shared := s.Atom[gh].rowOf[gn]; !shared {
					continue
				}
				if partC.Owner(gn) != rank {
					haloSet[gn] = true
				}
			}
		}
	}
	s.HaloGN = make([]int, 0, len(haloSet))
	for gn := range haloSet {
		s.HaloGN = append(s.HaloGN, gn)
	}
	sort.Ints(s.HaloGN)
	haloSlot := make(map[int]int, len(s.HaloGN))
	for slot, gn := range s.HaloGN {
		haloSlot[gn] = slot
	}

	for mi, gc := range local {
		for h, gh := range sys.Neighbors[gc] {
			ps := PairSupport{}
			for ownRow, gn := range s.Atom[gc].GIdx {
				nbrRow, shared := s.Atom[gh].rowOf[gn]
				if !shared {
					continue
				}
				ps.OwnIdx = append(ps.OwnIdx, ownRow)
				ps.NbrIdx = append(ps.NbrIdx, nbrRow)
				if partC.Owner(gn) == rank {
					ps.FieldIdx = append(ps.FieldIdx, partC.LocalIndex(gn))
				} else {
					ps.FieldIdx = append(ps.FieldIdx, ^haloSlot[gn])
				}
			}
			s.Pairs[mi][h] = ps
		}
	}
	return s, nil
}

// LocalAtoms returns the rank's atoms, aligned with the first Pairs index.
func (s *Supports) LocalAtoms() []int { return s.Sys.LocalAtoms(s.Rank) }

// NeedsHalo reports whether any pair touches a foreign C-partition point.
func (s *Supports) NeedsHalo() bool { return len(s.HaloGN) > 0 }

func (s *Supports) String() string {
	var npairs, npts int
	for _, row := range s.Pairs {
		npairs += len(row)
		for _, ps := range row {
			npts += ps.NumShared()
		}
	}
	return fmt.Sprintf("rank %d: %d pairs, %d shared points, %d halo points",
		s.Rank, npairs, npts, len(s.HaloGN))
}
