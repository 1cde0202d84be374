package grid

import "fmt"

// Plan is the precomputed communication schedule for moving one scalar field
// from a source partition layout to a destination partition layout. For every
// ordered rank pair it records the source-local indices to pack and the
// destination-local indices to unpack into; both sides enumerate grid points
// in ascending global order, so list positions correspond one to one.
//
// Plans are geometry-dependent, built once and shared read-only by all ranks.
type Plan struct {
	np   int
	npts int

	// Per [rank][partner]: source-local indices this rank packs for partner,
	// and destination-local slots this rank unpacks from partner.
	sendIdx [][][]int
	recvIdx [][][]int

	// Per rank: partners with nonzero traffic in ascending rank order. Self
	// appears here when it has traffic but is copied, never sent.
	sendPartners [][]int
	recvPartners [][]int

	// Flat buffer offsets aligned with the partner lists, len(partners)+1.
	sendGP [][]int
	recvGP [][]int

	sendTotal []int
	recvTotal []int

	dstLocal []int // destination field length per rank
}

// BuildPlan precomputes the schedule for src -> dst. The two partitions must
// cover the same grid with the same rank count. The reverse direction is a
// second plan, BuildPlan(dst, src).
func BuildPlan(src, dst *Partition) (*Plan, error) {
	if src.NumPoints() != dst.NumPoints() {
		return nil, ConfigurationError{fmt.Sprintf(
			"partitions cover different grids: %d vs %d points", src.NumPoints(), dst.NumPoints())}
	}
	if src.NumRanks() != dst.NumRanks() {
		return nil, ConfigurationError{fmt.Sprintf(
			"partitions have different rank counts: %d vs %d", src.NumRanks(), dst.NumRanks())}
	}
	var (
		np = src.NumRanks()
		p  = &Plan{
			np:        np,
			npts:      src.NumPoints(),
			sendIdx:   make([][][]int, np),
			recvIdx:   make([][][]int, np),
			sendTotal: make([]int, np),
			recvTotal: make([]int, np),
			dstLocal:  make([]int, np),
		}
	)
	for r := 0; r < np; r++ {
		p.sendIdx[r] = make([][]int, np)
		p.recvIdx[r] = make([][]int, np)
		p.dstLocal[r] = dst.NumLocal(r)
	}
	for gn := 0; gn < p.npts; gn++ {
		s := src.Owner(gn)
		r := dst.Owner(gn)
		p.sendIdx[s][r] = append(p.sendIdx[s][r], src.LocalIndex(gn))
		p.recvIdx[r][s] = append(p.recvIdx[r][s], dst.LocalIndex(gn))
		p.sendTotal[s]++
		p.recvTotal[r]++
	}

	// Conservation checks: each rank sends exactly its source-local points
	// and receives exactly its destination-local points.
	var grand int
	for r := 0; r < np; r++ {
		if p.sendTotal[r] != src.NumLocal(r) {
			return nil, ConfigurationError{fmt.Sprintf(
				"rank %d packs %d points but owns %d in the source layout", r, p.sendTotal[r], src.NumLocal(r))}
		}
		if p.recvTotal[r] != dst.NumLocal(r) {
			return nil, ConfigurationError{fmt.Sprintf(
				"rank %d unpacks %d points but owns %d in the destination layout", r, p.recvTotal[r], dst.NumLocal(r))}
		}
		grand += p.sendTotal[r]
	}
	if grand != p.npts {
		return nil, ConfigurationError{fmt.Sprintf(
			"plan moves %d points for a %d-point grid", grand, p.npts)}
	}
	// Every destination slot must be written exactly once.
	for r := 0; r < np; r++ {
		seen := make([]bool, dst.NumLocal(r))
		for s := 0; s < np; s++ {
			for _, cn := range p.recvIdx[r][s] {
				if cn < 0 || cn >= len(seen) || seen[cn] {
					return nil, ConfigurationError{fmt.Sprintf(
						"rank %d destination slot %d written more than once or out of range", r, cn)}
				}
				seen[cn] = true
			}
		}
	}

	p.sendPartners = make([][]int, np)
	p.recvPartners = make([][]int, np)
	p.sendGP = make([][]int, np)
	p.recvGP = make([][]int, np)
	for r := 0; r < np; r++ {
		p.sendGP[r] = []int{0}
		p.recvGP[r] = []int{0}
		for q := 0; q < np; q++ {
			if n := len(p.sendIdx[r][q]); n > 0 {
				p.sendPartners[r] = append(p.sendPartners[r], q)
				p.sendGP[r] = append(p.sendGP[r], p.sendGP[r][len(p.sendGP[r])-1]+n)
			}
			if n := len(p.recvIdx[r][q]); n > 0 {
				p.recvPartners[r] = append(p.recvPartners[r], q)
				p.recvGP[r] = append(p.recvGP[r], p.recvGP[r][len(p.recvGP[r])-1]+n)
			}
		}
	}
	return p, nil
}

func (p *Plan) NumRanks() int { return p.np }

// SendCount reports how many values rank packs for partner; RecvCount the
// reverse. Exposed for diagnostics and tests.
func (p *Plan) SendCount(rank, partner int) int { return len(p.sendIdx[rank][partner]) }
func (p *Plan) RecvCount(rank, partner int) int { return len(p.recvIdx[rank][partner]) }
