package comm

// Reserved tag space for the collectives below. Caller tags must be >= 0 so
// the two spaces never collide.
const (
	tagAllgather = -1 - iota
	tagAllreduce
)

// AllgatherFloat64 concatenates every rank's local slice in rank order.
// counts[r] must hold the local length on rank r; len(local) must equal
// counts of the calling rank. Every rank returns the same assembled slice.
func (c *Comm) AllgatherFloat64(local []float64, counts []int) []float64 {
	var (
		np      = c.Size()
		me      = c.Rank()
		offsets = make([]int, np+1)
	)
	for r := 0; r < np; r++ {
		offsets[r+1] = offsets[r] + counts[r]
	}
	if len(local) != counts[me] {
		panic(CommunicationError{"allgather: local length does not match counts"})
	}
	out := make([]float64, offsets[np])
	copy(out[offsets[me]:offsets[me+1]], local)

	recvReqs := make([]*Request, 0, np-1)
	for r := 0; r < np; r++ {
		if r == me || counts[r] == 0 {
			continue
		}
		recvReqs = append(recvReqs, c.Irecv(out[offsets[r]:offsets[r+1]], r, tagAllgather))
	}
	for r := 0; r < np; r++ {
		if r == me || counts[me] == 0 {
			continue
		}
		c.Isend(local, r, tagAllgather)
	}
	c.WaitAll(recvReqs)
	return out
}

// AllreduceSum returns the sum of x over all ranks. Contributions are summed
// in rank order so every rank computes bitwise the same value.
func (c *Comm) AllreduceSum(x float64) float64 {
	var (
		np    = c.Size()
		me    = c.Rank()
		vals  = make([]float64, np)
		one   = []float64{x}
		rreqs = make([]*Request, 0, np-1)
	)
	vals[me] = x
	for r := 0; r < np; r++ {
		if r == me {
			continue
		}
		rreqs = append(rreqs, c.Irecv(vals[r:r+1], r, tagAllreduce))
	}
	for r := 0; r < np; r++ {
		if r == me {
			continue
		}
		c.Isend(one, r, tagAllreduce)
	}
	c.WaitAll(rreqs)
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum
}
