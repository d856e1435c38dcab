package shm

import (
	"fmt"

	internalshm "github.com/srediag/shmchan/internal/shm"
)

// Region header, all words 32-bit and naturally aligned. The data window
// starts on a cache line.
const (
	offState    = 0
	offCapacity = 4
	offHead     = 8
	offTail     = 12
	offClosed   = 16
	offMutex    = 20
	offCond     = 24

	headerSize = 64
)

// values of the state word
const (
	stateBlank        = 0
	stateInitializing = 1
	stateReady        = 2
)

type layout struct {
	state    *uint32
	capacity *uint32
	head     *uint32
	tail     *uint32
	closed   *uint32
	mutex    *uint32
	cond     *uint32
	data     []byte
}

func newLayout(mem []byte, capacity uint32) (*layout, error) {
	if len(mem) != RegionSize(capacity) {
		return nil, fmt.Errorf("region is %d bytes, capacity %d needs %d", len(mem), capacity, RegionSize(capacity))
	}
	return &layout{
		state:    internalshm.Uint32At(mem, offState),
		capacity: internalshm.Uint32At(mem, offCapacity),
		head:     internalshm.Uint32At(mem, offHead),
		tail:     internalshm.Uint32At(mem, offTail),
		closed:   internalshm.Uint32At(mem, offClosed),
		mutex:    internalshm.Uint32At(mem, offMutex),
		cond:     internalshm.Uint32At(mem, offCond),
		data:     mem[headerSize : headerSize+int(capacity) : headerSize+int(capacity)],
	}, nil
}

// reset writes a fresh header. The caller must own the region exclusively.
func (l *layout) reset(capacity uint32) {
	internalshm.AtomicStoreUint32(l.capacity, capacity)
	internalshm.AtomicStoreUint32(l.head, 0)
	internalshm.AtomicStoreUint32(l.tail, 0)
	internalshm.AtomicStoreUint32(l.closed, 0)
	internalshm.AtomicStoreUint32(l.mutex, 0)
	internalshm.AtomicStoreUint32(l.cond, 0)
}

func (l *layout) isClosed() bool {
	return internalshm.AtomicLoadUint32(l.closed) != 0
}
