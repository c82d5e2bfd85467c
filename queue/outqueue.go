package queue

import "github.com/buzzlang/buzz/message"

// OutQueue holds outbound messages in six priority FIFOs, one per
// message.Type, and assembles them into MTU-sized packets for the
// transport to send. Lower message.Type values drain first (Broadcast
// first, SwarmLeave last); Packets empties every FIFO on each call, so
// the order only decides packing, not whether a message waits.
type OutQueue struct {
	fifos [message.TypeSwarmLeave + 1][][]byte
}

// NewOutQueue returns an empty output queue.
func NewOutQueue() *OutQueue {
	return &OutQueue{}
}

// Push encodes m and appends it to its type's FIFO.
func (q *OutQueue) Push(m message.Message) {
	q.fifos[m.Type] = append(q.fifos[m.Type], message.Encode(m))
}

// Empty reports whether every priority FIFO is drained.
func (q *OutQueue) Empty() bool {
	for _, f := range q.fifos {
		if len(f) > 0 {
			return false
		}
	}
	return true
}

// Packets drains the queue into as many mtu-sized packets as are needed to
// fit every currently pending message, highest priority first. Each
// message is length-prefixed (2-byte little-endian count) inside the
// packet so the receiver can split it back into individual wire messages.
// A message too large to ever fit in an empty packet is dropped (it could
// never be transmitted regardless of packing order). The final packet is
// zero-padded to mtu.
func (q *OutQueue) Packets(mtu int) [][]byte {
	var packets [][]byte
	cur := make([]byte, 2, mtu) // reserve 2 bytes for the message count
	count := uint16(0)

	flush := func() {
		if count == 0 {
			return
		}
		putU16(cur, 0, count)
		for len(cur) < mtu {
			cur = append(cur, 0)
		}
		packets = append(packets, cur)
		cur = make([]byte, 2, mtu)
		count = 0
	}

	for t := 0; t < message.NumTypes(); t++ {
		for _, enc := range q.fifos[t] {
			framed := make([]byte, 0, 2+len(enc))
			framed = appendU16(framed, uint16(len(enc)))
			framed = append(framed, enc...)
			if len(framed) > mtu-2 {
				continue // undeliverable regardless of packing, drop
			}
			if len(cur)+len(framed) > mtu {
				flush()
			}
			cur = append(cur, framed...)
			count++
		}
		q.fifos[t] = nil
	}
	flush()
	return packets
}

// SplitPacket reverses Packets: given one received packet, it returns the
// individual framed message payloads it carries.
func SplitPacket(packet []byte) [][]byte {
	if len(packet) < 2 {
		return nil
	}
	count := getU16(packet, 0)
	buf := packet[2:]
	out := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		if len(buf) < 2 {
			break
		}
		n := getU16(buf, 0)
		buf = buf[2:]
		if len(buf) < int(n) {
			break
		}
		out = append(out, buf[:n])
		buf = buf[n:]
	}
	return out
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func putU16(buf []byte, at int, v uint16) {
	buf[at] = byte(v)
	buf[at+1] = byte(v >> 8)
}

func getU16(buf []byte, at int) uint16 {
	return uint16(buf[at]) | uint16(buf[at+1])<<8
}
