package hamiltonian

import (
	"fmt"

	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
)

// Tags for the field-halo protocol. Distinct from the redistribution tag;
// like it, each exchange is bulk synchronous.
const (
	tagHaloCount = 1100
	tagHaloIdx   = 1101
	tagHaloData  = 1102
)

// FieldHalo is the precomputed plan for fetching C-partition field values a
// rank's pair supports need but does not own. Built once per geometry,
// collectively, and reused for every source field.
type FieldHalo struct {
	numSlots int

	reqOwners []int   // foreign owners this rank pulls from, ascending
	reqSlots  [][]int // halo slots filled by each owner, in that owner's send order

	sendTo  []int   // ranks this rank pushes values to, ascending
	sendIdx [][]int // C-local indices to pack per requester
}

// BuildFieldHalo exchanges the halo index lists so each owner knows what to
// pack. haloGN is the rank's sorted foreign-point list from BuildSupports.
// Every rank must call this collectively, even with an empty list.
func BuildFieldHalo(c *comm.Comm, partC *grid.Partition, haloGN []int) (*FieldHalo, error) {
	var (
		np = c.Size()
		me = c.Rank()
		h  = &FieldHalo{numSlots: len(haloGN)}

		wantGN    = make([][]int, np) // per owner: global indices requested
		wantSlots = make([][]int, np)
	)
	for slot, gn := range haloGN {
		o := partC.Owner(gn)
		if o == me {
			return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
				"halo point %d is already local to rank %d", gn, me)}
		}
		wantGN[o] = append(wantGN[o], gn)
		wantSlots[o] = append(wantSlots[o], slot)
	}

	// Tell every rank how much we want from it, then the indices themselves.
	for r := 0; r < np; r++ {
		if r == me {
			continue
		}
		c.IsendInts([]int{len(wantGN[r])}, r, tagHaloCount)
		if len(wantGN[r]) > 0 {
			c.IsendInts(wantGN[r], r, tagHaloIdx)
		}
	}
	for r := 0; r < np; r++ {
		if r == me {
			continue
		}
		cnt := make([]int, 1)
		c.Wait(c.IrecvInts(cnt, r, tagHaloCount))
		if cnt[0] == 0 {
			continue
		}
		gns := make([]int, cnt[0])
		c.Wait(c.IrecvInts(gns, r, tagHaloIdx))
		idx := make([]int, len(gns))
		for i, gn := range gns {
			if partC.Owner(gn) != me {
				return nil, grid.ConfigurationError{Reason: fmt.Sprintf(
					"rank %d asked rank %d for point %d owned by rank %d", r, me, gn, partC.Owner(gn))}
			}
			idx[i] = partC.LocalIndex(gn)
		}
		h.sendTo = append(h.sendTo, r)
		h.sendIdx = append(h.sendIdx, idx)
	}
	for r := 0; r < np; r++ {
		if len(wantSlots[r]) > 0 {
			h.reqOwners = append(h.reqOwners, r)
			h.reqSlots = append(h.reqSlots, wantSlots[r])
		}
	}
	c.Barrier()
	return h, nil
}

// Exchange returns the halo values for one C-layout field, aligned with the
// halo slot numbering. Collective; ranks with no halo still serve partners.
func (h *FieldHalo) Exchange(c *comm.Comm, fieldC []float64) []float64 {
	halo := make([]float64, h.numSlots)

	recvBufs := make([][]float64, len(h.reqOwners))
	recvReqs := make([]*comm.Request, len(h.reqOwners))
	for i, o := range h.reqOwners {
		recvBufs[i] = make([]float64, len(h.reqSlots[i]))
		recvReqs[i] = c.Irecv(recvBufs[i], o, tagHaloData)
	}
	for i, r := range h.sendTo {
		buf := make([]float64, len(h.sendIdx[i]))
		for ln, cn := range h.sendIdx[i] {
			buf[ln] = fieldC[cn]
		}
		c.Isend(buf, r, tagHaloData)
	}
	c.WaitAll(recvReqs)
	for i := range h.reqOwners {
		for ln, slot := range h.reqSlots[i] {
			halo[slot] = recvBufs[i][ln]
		}
	}
	return halo
}
