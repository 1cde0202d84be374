package hamiltonian

import (
	"fmt"

	"github.com/rubenlee11/HamGNN/comm"
)

// Tags for the orbital-halo protocol.
const (
	tagOrbCount = 1200
	tagOrbHdr   = 1201
	tagOrbIdx   = 1202
	tagOrbData  = 1203
)

// ExchangeOrbitals populates orb.Halo: for every local pair whose neighbor
// atom lives on another rank, it pulls the neighbor's orbital values at the
// pair's shared support points from the owner. Must run before
// Engine.AccumulateBlocks; the engine refuses to start without the tables.
//
// Protocol, per requester/owner pair and in deterministic (Mc, h) order:
// the requester sends a header (neighbor id, point count) and the rows it
// needs (support-table rows, a vocabulary both sides share since supports
// are built identically everywhere); the owner answers with the flattened
// value rows. Collective: every rank participates even with nothing to ask.
func ExchangeOrbitals(c *comm.Comm, sup *Supports, orb *Orbitals) error {
	var (
		np    = c.Size()
		me    = c.Rank()
		sys   = sup.Sys
		local = sup.LocalAtoms()

		nAsk      = make([]int, np)
		dataReqs  []*comm.Request
		dataBufs  [][]float64
		dataPairs []PairKey
	)

	// Count phase: how many value requests each owner will see from us.
	for mi, gc := range local {
		for h, gh := range sys.Neighbors[gc] {
			if sys.AtomRank[gh] == me || sup.Pairs[mi][h].NumShared() == 0 {
				continue
			}
			nAsk[sys.AtomRank[gh]]++
		}
	}
	for r := 0; r < np; r++ {
		if r != me {
			c.IsendInts([]int{nAsk[r]}, r, tagOrbCount)
		}
	}

	// Request phase: headers and row lists out, value receives posted.
	for mi, gc := range local {
		for h, gh := range sys.Neighbors[gc] {
			owner := sys.AtomRank[gh]
			ps := &sup.Pairs[mi][h]
			if owner == me {
				continue
			}
			if ps.NumShared() == 0 {
				orb.Halo[PairKey{mi, h}] = nil
				continue
			}
			c.IsendInts([]int{gh, ps.NumShared()}, owner, tagOrbHdr)
			c.IsendInts(ps.NbrIdx, owner, tagOrbIdx)

			buf := make([]float64, ps.NumShared()*sys.NumOrbitals(gh))
			dataReqs = append(dataReqs, c.Irecv(buf, owner, tagOrbData))
			dataBufs = append(dataBufs, buf)
			dataPairs = append(dataPairs, PairKey{mi, h})
		}
	}

	// Serve phase: answer every incoming request in rank order.
	for r := 0; r < np; r++ {
		if r == me {
			continue
		}
		cnt := make([]int, 1)
		c.Wait(c.IrecvInts(cnt, r, tagOrbCount))
		for q := 0; q < cnt[0]; q++ {
			hdr := make([]int, 2)
			c.Wait(c.IrecvInts(hdr, r, tagOrbHdr))
			gh, n := hdr[0], hdr[1]
			rows, ok := orb.Local[gh]
			if !ok || sys.AtomRank[gh] != me {
				panic(comm.CommunicationError{Reason: fmt.Sprintf(
					"rank %d asked rank %d for orbitals of atom %d it does not own", r, me, gh)})
			}
			idx := make([]int, n)
			c.Wait(c.IrecvInts(idx, r, tagOrbIdx))

			no1 := sys.NumOrbitals(gh)
			out := make([]float64, n*no1)
			for i, row := range idx {
				if row < 0 || row >= len(rows) {
					panic(comm.CommunicationError{Reason: fmt.Sprintf(
						"rank %d asked for support row %d of atom %d, table has %d rows", r, row, gh, len(rows))})
				}
				copy(out[i*no1:(i+1)*no1], rows[row])
			}
			c.Isend(out, r, tagOrbData)
		}
	}

	// Collect phase: reshape the answers into per-pair tables.
	c.WaitAll(dataReqs)
	for i, key := range dataPairs {
		var (
			gh   = sys.Neighbors[local[key.Mc]][key.H]
			no1  = sys.NumOrbitals(gh)
			flat = dataBufs[i]
			rows = make([][]float64, len(flat)/no1)
		)
		for p := range rows {
			rows[p] = flat[p*no1 : (p+1)*no1]
		}
		orb.Halo[key] = rows
	}
	c.Barrier()
	return nil
}
