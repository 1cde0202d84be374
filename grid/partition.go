package grid

import "fmt"

// Partition assigns every grid point to exactly one owning rank and numbers
// each rank's points with a dense local index (ascending in the global flat
// index). Two partitions of the same grid exist concurrently during a run:
// the slab partition used by the FFT and the atom-support partition used by
// the real-space quadrature.
type Partition struct {
	np         int
	npts       int
	owner      []int   // per GN
	localIndex []int   // per GN, index within the owner's local range
	local      [][]int // per rank, owned GNs ascending
}

// NewPartitionFromOwners builds a partition from an explicit owner-per-point
// assignment.
func NewPartitionFromOwners(geom *Geometry, np int, owner []int) (*Partition, error) {
	if np < 1 {
		return nil, ConfigurationError{fmt.Sprintf("partition needs at least one rank, have %d", np)}
	}
	if len(owner) != geom.NumPoints() {
		return nil, ConfigurationError{fmt.Sprintf(
			"owner table has %d entries for a %d-point grid", len(owner), geom.NumPoints())}
	}
	p := &Partition{
		np:         np,
		npts:       len(owner),
		owner:      owner,
		localIndex: make([]int, len(owner)),
		local:      make([][]int, np),
	}
	for gn, r := range owner {
		if r < 0 || r >= np {
			return nil, ConfigurationError{fmt.Sprintf("grid point %d assigned to rank %d, outside [0,%d)", gn, r, np)}
		}
		p.localIndex[gn] = len(p.local[r])
		p.local[r] = append(p.local[r], gn)
	}
	return p, nil
}

// NewSlabPartition decomposes the grid for the FFT: the N3*N2 rows of
// complete k1-lines are split into contiguous ranges, rank r starting at row
// ceil(r*N2D/np). Every rank then owns a contiguous flat-index range.
func NewSlabPartition(geom *Geometry, np int) (*Partition, error) {
	if np < 1 {
		return nil, ConfigurationError{fmt.Sprintf("partition needs at least one rank, have %d", np)}
	}
	var (
		n2d   = geom.N3 * geom.N2
		owner = make([]int, geom.NumPoints())
	)
	rowStart := func(r int) int { return (r*n2d + np - 1) / np }
	for r := 0; r < np; r++ {
		lo := rowStart(r) * geom.N1
		hi := rowStart(r+1) * geom.N1
		for gn := lo; gn < hi; gn++ {
			owner[gn] = r
		}
	}
	return NewPartitionFromOwners(geom, np, owner)
}

// NewSupportPartition decomposes the grid for real-space integration: each
// point belongs to the rank owning the nearest atom (minimum-image metric,
// ties to the lower atom index). This keeps an atom's support grid mostly
// local to its owner.
func NewSupportPartition(geom *Geometry, np int, positions [][3]float64, atomRank []int) (*Partition, error) {
	if len(positions) == 0 {
		return nil, ConfigurationError{"support partition needs at least one atom"}
	}
	if len(positions) != len(atomRank) {
		return nil, ConfigurationError{fmt.Sprintf(
			"have %d atom positions but %d rank assignments", len(positions), len(atomRank))}
	}
	owner := make([]int, geom.NumPoints())
	for gn := range owner {
		r := geom.PointCoords(gn)
		best := 0
		bestD := geom.MinImageDistance(r, positions[0])
		for a := 1; a < len(positions); a++ {
			if d := geom.MinImageDistance(r, positions[a]); d < bestD {
				best, bestD = a, d
			}
		}
		owner[gn] = atomRank[best]
	}
	return NewPartitionFromOwners(geom, np, owner)
}

func (p *Partition) NumRanks() int  { return p.np }
func (p *Partition) NumPoints() int { return p.npts }

// Owner returns the rank owning grid point gn.
func (p *Partition) Owner(gn int) int { return p.owner[gn] }

// LocalIndex returns gn's index within its owner's local field array.
func (p *Partition) LocalIndex(gn int) int { return p.localIndex[gn] }

// NumLocal returns the number of points rank owns.
func (p *Partition) NumLocal(rank int) int { return len(p.local[rank]) }

// Local returns rank's owned global indices in local-index order. Read-only.
func (p *Partition) Local(rank int) []int { return p.local[rank] }
