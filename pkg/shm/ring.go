package shm

import (
	internalshm "github.com/srediag/shmchan/internal/shm"
)

// ring is the cursor arithmetic over the data window. One slot always stays
// empty so that head == tail means empty. Callers hold the gate.
type ring struct {
	head *uint32
	tail *uint32
	data []byte
	c    uint32
}

func newRing(l *layout) ring {
	return ring{head: l.head, tail: l.tail, data: l.data, c: uint32(len(l.data))}
}

func (r *ring) cursors() (head, tail uint32) {
	return internalshm.AtomicLoadUint32(r.head) % r.c, internalshm.AtomicLoadUint32(r.tail) % r.c
}

func (r *ring) freeSpace() uint32 {
	h, t := r.cursors()
	if h >= t {
		return r.c - (h - t) - 1
	}
	return t - h - 1
}

func (r *ring) dataAvailable() uint32 {
	return r.c - 1 - r.freeSpace()
}

// put copies p at head and advances it. len(p) must not exceed freeSpace.
func (r *ring) put(p []byte) {
	h, _ := r.cursors()
	n := copy(r.data[h:], p)
	copy(r.data, p[n:])
	internalshm.AtomicStoreUint32(r.head, (h+uint32(len(p)))%r.c)
}

// take fills p from tail and advances it. len(p) must not exceed
// dataAvailable.
func (r *ring) take(p []byte) {
	_, t := r.cursors()
	r.peek(0, p)
	internalshm.AtomicStoreUint32(r.tail, (t+uint32(len(p)))%r.c)
}

// unread moves tail back by n bytes that were just taken.
func (r *ring) unread(n uint32) {
	_, t := r.cursors()
	internalshm.AtomicStoreUint32(r.tail, (t+r.c-n)%r.c)
}

// peek fills p from off bytes past tail without moving any cursor.
func (r *ring) peek(off uint32, p []byte) {
	_, t := r.cursors()
	start := (t + off) % r.c
	n := copy(p, r.data[start:])
	copy(p[n:], r.data)
}

// discard drops all buffered bytes.
func (r *ring) discard() {
	h, _ := r.cursors()
	internalshm.AtomicStoreUint32(r.tail, h)
}
