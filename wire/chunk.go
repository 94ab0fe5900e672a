package wire

import (
	"sync"
	"time"
)

// Reassembler accumulates the chunked payloads of multi-frame "get" replies,
// keyed by request ID. Unrelated frames may interleave freely between chunks
// of the same reply; callers route only matching "ok" payloads here.
type Reassembler struct {
	mu      sync.Mutex
	pending map[string]*pendingResponse
}

type pendingResponse struct {
	buf     []byte
	updated time.Time
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{
		pending: make(map[string]*pendingResponse),
	}
}

// Add appends one chunk for requestID. When the chunk is terminal (its size
// differs from ChunkSize) the fully concatenated payload is returned with
// done=true and the pending entry is discarded. Otherwise Add returns
// (nil, false) and awaits further chunks.
func (r *Reassembler) Add(requestID string, chunk []byte) (payload []byte, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[requestID]
	if !ok {
		p = &pendingResponse{}
		r.pending[requestID] = p
	}
	p.buf = append(p.buf, chunk...)
	p.updated = time.Now()

	if len(chunk) == ChunkSize {
		return nil, false
	}

	delete(r.pending, requestID)
	return p.buf, true
}

// Partial removes and returns whatever bytes have accumulated for requestID.
// Used when a reply timed out mid-stream: callers surface the partial data
// rather than failing.
func (r *Reassembler) Partial(requestID string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[requestID]
	if !ok {
		return nil
	}
	delete(r.pending, requestID)
	return p.buf
}

// Drop discards any pending accumulation for requestID.
func (r *Reassembler) Drop(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, requestID)
}

// Sweep evicts accumulations idle longer than maxAge and returns how many
// were discarded. The connection runs this periodically so responses whose
// terminal chunk never arrives do not pin memory.
func (r *Reassembler) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	for id, p := range r.pending {
		if p.updated.Before(cutoff) {
			delete(r.pending, id)
			evicted++
		}
	}
	return evicted
}

// PendingCount reports how many replies are mid-reassembly.
func (r *Reassembler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
