// Package comm provides message passing between a fixed set of cooperating
// ranks sharing one process. Ranks run as goroutines and exchange buffers
// through per-rank mailboxes with MPI-like non-blocking semantics: Isend
// never blocks, Irecv completes when a matching message arrives, and the
// whole group synchronizes with Barrier. Collective redistribution phases are
// bulk synchronous, so a communication failure is fatal for the group.
package comm

import (
	"fmt"
	"sync"
)

// CommunicationError is fatal: a redistribution or exchange that fails partway
// leaves no recoverable state, so callers panic with it rather than return it.
type CommunicationError struct {
	Reason string
}

func (e CommunicationError) Error() string {
	return "communication: " + e.Reason
}

// Cluster owns the mailboxes and barrier shared by all ranks. It is fixed in
// size for the duration of a run.
type Cluster struct {
	np    int
	boxes []*mailbox
	bar   *barrier
}

func NewCluster(np int) (*Cluster, error) {
	if np < 1 {
		return nil, fmt.Errorf("cluster size must be >= 1, have %d", np)
	}
	cl := &Cluster{
		np:    np,
		boxes: make([]*mailbox, np),
		bar:   newBarrier(np),
	}
	for n := 0; n < np; n++ {
		cl.boxes[n] = newMailbox()
	}
	return cl, nil
}

func (cl *Cluster) Size() int { return cl.np }

// Rank returns the communicator handle for one rank. Handles are safe to
// create up front and hand to each rank goroutine.
func (cl *Cluster) Rank(rank int) *Comm {
	if rank < 0 || rank >= cl.np {
		panic(CommunicationError{fmt.Sprintf("rank %d out of range [0,%d)", rank, cl.np)})
	}
	return &Comm{cl: cl, rank: rank}
}

// Run executes body once per rank in a fork-join region and returns when all
// ranks have finished.
func (cl *Cluster) Run(body func(c *Comm)) {
	wg := sync.WaitGroup{}
	for n := 0; n < cl.np; n++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			body(cl.Rank(rank))
		}(n)
	}
	wg.Wait()
}

// Comm is one rank's endpoint. All methods may be called only from that
// rank's goroutine.
type Comm struct {
	cl   *Cluster
	rank int
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.cl.np }

// Isend posts data to dst under tag and returns an already-completed request.
// The payload is copied at post time, so the caller may reuse data
// immediately. Tags >= 0 are for callers; negative tags are reserved for the
// collectives in this package.
func (c *Comm) Isend(data []float64, dst, tag int) *Request {
	buf := make([]float64, len(data))
	copy(buf, data)
	c.cl.boxes[dst].deliver(msgKey{c.rank, tag, kindFloat64}, envelope{f64: buf})
	return &Request{}
}

// Irecv posts a receive for a message from src under tag. The message length
// must equal len(buf) exactly. The returned request completes when the
// message has been copied into buf.
func (c *Comm) Irecv(buf []float64, src, tag int) *Request {
	return c.cl.boxes[c.rank].post(msgKey{src, tag, kindFloat64}, &pendingRecv{f64: buf})
}

// IsendInts and IrecvInts carry integer index lists, used by the plan and
// orbital exchange protocols.
func (c *Comm) IsendInts(data []int, dst, tag int) *Request {
	buf := make([]int, len(data))
	copy(buf, data)
	c.cl.boxes[dst].deliver(msgKey{c.rank, tag, kindInt}, envelope{ints: buf})
	return &Request{}
}

func (c *Comm) IrecvInts(buf []int, src, tag int) *Request {
	return c.cl.boxes[c.rank].post(msgKey{src, tag, kindInt}, &pendingRecv{ints: buf})
}

// Wait blocks until the request completes.
func (c *Comm) Wait(r *Request) {
	r.wait()
}

// WaitAll blocks until every posted request completes.
func (c *Comm) WaitAll(reqs []*Request) {
	for _, r := range reqs {
		r.wait()
	}
}

// Barrier blocks until every rank in the cluster has entered it.
func (c *Comm) Barrier() {
	c.cl.bar.await()
}

// barrier is cyclic: the generation counter lets ranks reuse it across
// successive synchronization points.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	np    int
	count int
	gen   int
}

func newBarrier(np int) *barrier {
	b := &barrier{np: np}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	b.mu.Lock()
	gen := b.gen
	b.count++
	if b.count == b.np {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for gen == b.gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}
