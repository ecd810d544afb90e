package paramdir

import (
	"sync"

	"github.com/evonode/evcan/pkg/wire"
)

// DefaultQueueSize is the ring buffer depth used when callers don't pick
// one, matching LEVCAN_PARAM_QUEUE_SIZE's role in the original.
const DefaultQueueSize = 8

// pendingUpdate is one in-flight LC_ParameterUpdateAsync request, the Go
// analogue of levcan_param.c's bufferedParam_t.
type pendingUpdate struct {
	remote    *RemoteValue
	directory uint8
	index     uint8
	source    uint8
	full      bool
}

// Queue is the bounded ring buffer of outstanding async parameter update
// requests, ported from levcan_param.c's receive_buffer / receiveFIFO_in /
// receiveFIFO_out / receive_busy. Only one request is ever in flight: Push
// kicks off the oldest request if nothing else is outstanding, and the
// queue advances to the next one only once a reply (matching or not) is
// popped off the front.
//
// popMatch only ever inspects the queue head (mirroring findReceiver): a
// reply that doesn't match the head is still consumed, dropped without
// being delivered anywhere. If a reply arrives out of order, the request
// it was meant for is lost. This is a known limitation of the original
// that is preserved here rather than fixed, see the design notes.
type Queue struct {
	mu      sync.Mutex
	entries []pendingUpdate
	in, out int
	busy    bool
	send    func(entry pendingUpdate) bool
}

// NewQueue builds a queue that calls send to transmit the oldest request
// whenever the queue becomes non-empty and nothing else is outstanding.
// send returns whether the request actually went out; a false return
// leaves busy false so the next Push or resetAndPump retries.
func NewQueue(size int, send func(entry pendingUpdate) bool) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{entries: make([]pendingUpdate, size), send: send}
}

func (q *Queue) next(i int) int { return (i + 1) % len(q.entries) }

func (q *Queue) full() bool {
	return q.in == (q.out-1+len(q.entries))%len(q.entries)
}

// Push enqueues an async update request for remote, mirroring
// LC_ParameterUpdateAsync: false means BufferFull. full selects whether
// the request asks for just the value (ParamReqVal) or the full
// descriptor (ParamNoInit), tagged onto remote.ParamType the same way the
// original tags paramv->ParamType while the request is outstanding.
func (q *Queue) Push(remote *RemoteValue, directory, index, source uint8, full bool) bool {
	q.mu.Lock()
	if q.full() {
		q.mu.Unlock()
		return false
	}
	q.entries[q.in] = pendingUpdate{remote: remote, directory: directory, index: index, source: source, full: full}
	q.in = q.next(q.in)

	if remote.ParamType.Base() == wire.ParamInvalid {
		remote.ParamType = 0
	}
	if full {
		remote.ParamType |= wire.ParamNoInit
	} else {
		remote.ParamType |= wire.ParamReqVal
	}
	wasBusy := q.busy
	q.mu.Unlock()

	if !wasBusy {
		q.pump()
	}
	return true
}

// pump sends the oldest outstanding request if the queue is non-empty and
// nothing is already in flight, mirroring proceed_RX.
func (q *Queue) pump() {
	q.mu.Lock()
	if q.in == q.out {
		q.busy = false
		q.mu.Unlock()
		return
	}
	entry := q.entries[q.out]
	q.mu.Unlock()

	sent := q.send(entry)
	q.mu.Lock()
	q.busy = sent
	q.mu.Unlock()
}

// popMatch dequeues the head entry and reports whether it matches
// directory/index/source. A mismatch still consumes the head — see the
// Queue doc comment.
func (q *Queue) popMatch(directory, index, source uint8) (pendingUpdate, bool) {
	q.mu.Lock()
	if q.in == q.out {
		q.mu.Unlock()
		return pendingUpdate{}, false
	}
	entry := q.entries[q.out]
	q.out = q.next(q.out)
	q.mu.Unlock()

	matched := entry.directory == directory && entry.index == index && entry.source == source
	return entry, matched
}

// resetAndPump clears the in-flight flag and tries to send the next
// queued request, mirroring proceedParam's unconditional
// "receive_busy = 0; proceed_RX();" at the end of every dispatch branch.
func (q *Queue) resetAndPump() {
	q.mu.Lock()
	q.busy = false
	q.mu.Unlock()
	q.pump()
}

// StopUpdating clears all outstanding requests, mirroring
// LC_ParametersStopUpdating.
func (q *Queue) StopUpdating() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		q.entries[i] = pendingUpdate{}
	}
	q.in, q.out = 0, 0
	q.busy = false
}
