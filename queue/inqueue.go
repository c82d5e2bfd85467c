// Package queue implements the two queue disciplines sitting between the
// VM and the network transport (§4.3): a round-robin fair input queue so
// no single chatty neighbor can starve the others, and a six-priority
// output queue that packs pending messages into MTU-sized packets.
package queue

// InQueue is a per-sender FIFO of raw, still-encoded message payloads,
// drained in round-robin order across senders so a single busy neighbor
// cannot monopolize a VM step's inbound processing budget.
type InQueue struct {
	peers   []uint16
	pending map[uint16][][]byte
	cursor  int
}

// NewInQueue returns an empty input queue.
func NewInQueue() *InQueue {
	return &InQueue{pending: make(map[uint16][][]byte)}
}

// Push enqueues payload as having arrived from sender.
func (q *InQueue) Push(sender uint16, payload []byte) {
	if _, ok := q.pending[sender]; !ok {
		q.peers = append(q.peers, sender)
	}
	q.pending[sender] = append(q.pending[sender], payload)
}

// Pop dequeues the next payload in round-robin sender order. It reports
// ok=false once every peer's queue is empty.
func (q *InQueue) Pop() (sender uint16, payload []byte, ok bool) {
	n := len(q.peers)
	for i := 0; i < n; i++ {
		idx := (q.cursor + i) % n
		p := q.peers[idx]
		if len(q.pending[p]) == 0 {
			continue
		}
		payload = q.pending[p][0]
		q.pending[p] = q.pending[p][1:]
		q.cursor = (idx + 1) % n
		return p, payload, true
	}
	return 0, nil, false
}

// Empty reports whether every peer's queue is drained.
func (q *InQueue) Empty() bool {
	for _, p := range q.peers {
		if len(q.pending[p]) > 0 {
			return false
		}
	}
	return true
}
