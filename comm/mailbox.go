package comm

import (
	"fmt"
	"sync"
)

const (
	kindFloat64 = iota
	kindInt
)

// msgKey identifies a match: messages pair up with receives on (source, tag,
// payload kind). Multiple in-flight messages with the same key match their
// receives in posting order.
type msgKey struct {
	src  int
	tag  int
	kind int
}

type envelope struct {
	f64  []float64
	ints []int
}

type pendingRecv struct {
	f64  []float64
	ints []int
	req  *Request
}

// Request tracks completion of one non-blocking operation. Send requests are
// complete at creation; receive requests complete on match.
type Request struct {
	done chan struct{}
}

func (r *Request) wait() {
	if r.done != nil {
		<-r.done
	}
}

// mailbox is one rank's receive side. Eager delivery: senders deposit
// payload copies under the lock, so a sender never blocks on its partner.
type mailbox struct {
	mu      sync.Mutex
	queued  map[msgKey][]envelope
	waiting map[msgKey][]*pendingRecv
}

func newMailbox() *mailbox {
	return &mailbox{
		queued:  make(map[msgKey][]envelope),
		waiting: make(map[msgKey][]*pendingRecv),
	}
}

func (mb *mailbox) deliver(key msgKey, env envelope) {
	mb.mu.Lock()
	if ws := mb.waiting[key]; len(ws) > 0 {
		w := ws[0]
		mb.waiting[key] = ws[1:]
		mb.mu.Unlock()
		fill(key, w, env)
		close(w.req.done)
		return
	}
	mb.queued[key] = append(mb.queued[key], env)
	mb.mu.Unlock()
}

func (mb *mailbox) post(key msgKey, w *pendingRecv) *Request {
	w.req = &Request{done: make(chan struct{})}
	mb.mu.Lock()
	if qs := mb.queued[key]; len(qs) > 0 {
		env := qs[0]
		mb.queued[key] = qs[1:]
		mb.mu.Unlock()
		fill(key, w, env)
		close(w.req.done)
		return w.req
	}
	mb.waiting[key] = append(mb.waiting[key], w)
	mb.mu.Unlock()
	return w.req
}

// fill copies a matched payload into the receive buffer. A length mismatch
// means the two sides disagree about the exchange plan, which has no
// recovery.
func fill(key msgKey, w *pendingRecv, env envelope) {
	switch key.kind {
	case kindFloat64:
		if len(env.f64) != len(w.f64) {
			panic(CommunicationError{fmt.Sprintf(
				"message from rank %d tag %d: length %d does not match receive buffer %d",
				key.src, key.tag, len(env.f64), len(w.f64))})
		}
		copy(w.f64, env.f64)
	case kindInt:
		if len(env.ints) != len(w.ints) {
			panic(CommunicationError{fmt.Sprintf(
				"int message from rank %d tag %d: length %d does not match receive buffer %d",
				key.src, key.tag, len(env.ints), len(w.ints))})
		}
		copy(w.ints, env.ints)
	}
}
