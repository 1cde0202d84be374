package grid

import (
	"fmt"

	"github.com/rubenlee11/HamGNN/comm"
)

// Tag for redistribution traffic. One redistribution is in flight per rank
// pair at a time (the operation is bulk synchronous), and mailbox matching is
// FIFO per (source, tag), so back-to-back calls stay ordered.
const redistTag = 999

// Redistributor executes a Plan: it moves one scalar field from the plan's
// source layout into its destination layout with non-blocking point-to-point
// messages. Every rank of the group must call Redistribute collectively.
type Redistributor struct {
	plan *Plan
}

func NewRedistributor(plan *Plan) *Redistributor {
	return &Redistributor{plan: plan}
}

// Redistribute moves data (the calling rank's source-local field) into the
// destination layout and returns the destination-local field. The sequence
// is: post receives, pack, copy self traffic, post sends, wait, unpack.
// The result is deterministic regardless of message arrival order because
// every destination slot is written from exactly one source list position.
//
// A field length that disagrees with the plan is a fatal precondition
// violation; the whole group aborts via panic(InvalidPlanError).
func (rd *Redistributor) Redistribute(c *comm.Comm, data []float64) []float64 {
	var (
		p  = rd.plan
		me = c.Rank()
	)
	if c.Size() != p.np {
		panic(InvalidPlanError{fmt.Sprintf("plan built for %d ranks, communicator has %d", p.np, c.Size())})
	}
	if len(data) != p.sendTotal[me] {
		panic(InvalidPlanError{fmt.Sprintf(
			"rank %d: field has %d values, plan packs %d", me, len(data), p.sendTotal[me])})
	}

	var (
		nS       = len(p.sendPartners[me])
		nR       = len(p.recvPartners[me])
		sendBuf  = make([]float64, p.sendGP[me][nS])
		recvBuf  = make([]float64, p.recvGP[me][nR])
		out      = make([]float64, p.dstLocal[me])
		recvReqs = make([]*comm.Request, 0, nR)
		selfGP   = -1
	)

	// Post receives for every remote partner first. Zero-length exchanges
	// never made it into the partner lists.
	for i, idr := range p.recvPartners[me] {
		if idr == me {
			continue
		}
		gp, n := p.recvGP[me][i], p.recvGP[me][i+1]-p.recvGP[me][i]
		recvReqs = append(recvReqs, c.Irecv(recvBuf[gp:gp+n], idr, redistTag))
	}

	// Pack and send. Self traffic stays in the send buffer and is unpacked
	// from there directly.
	for i, ids := range p.sendPartners[me] {
		gp := p.sendGP[me][i]
		idx := p.sendIdx[me][ids]
		for ln, bn := range idx {
			sendBuf[gp+ln] = data[bn]
		}
		if ids == me {
			selfGP = gp
			continue
		}
		c.Isend(sendBuf[gp:gp+len(idx)], ids, redistTag)
	}

	c.WaitAll(recvReqs)

	for i, idr := range p.recvPartners[me] {
		idx := p.recvIdx[me][idr]
		if idr == me {
			for ln, cn := range idx {
				out[cn] = sendBuf[selfGP+ln]
			}
			continue
		}
		gp := p.recvGP[me][i]
		for ln, cn := range idx {
			out[cn] = recvBuf[gp+ln]
		}
	}
	return out
}
