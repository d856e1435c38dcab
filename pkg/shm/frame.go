package shm

import (
	"encoding/binary"
	"fmt"
)

const frameHeaderSize = 4

// maxPayload is the largest payload a ring of capacity c carries.
func maxPayload(c uint32) uint32 {
	return c - frameHeaderSize - 1
}

// putFrame appends one frame. The caller checked the size against
// maxPayload and the free space.
func (r *ring) putFrame(p []byte) {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
	r.put(hdr[:])
	r.put(p)
}

// takeHeader consumes a frame header and returns the payload length.
func (r *ring) takeHeader() uint32 {
	var hdr [frameHeaderSize]byte
	r.take(hdr[:])
	return binary.LittleEndian.Uint32(hdr[:])
}

// walkFrames checks that the buffered bytes are a whole number of frames.
func (r *ring) walkFrames() (frames int, err error) {
	avail := r.dataAvailable()
	limit := maxPayload(r.c)
	var hdr [frameHeaderSize]byte
	for off := uint32(0); off < avail; frames++ {
		if avail-off < frameHeaderSize {
			return frames, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrCorruptFrame, avail-off, off)
		}
		r.peek(off, hdr[:])
		n := binary.LittleEndian.Uint32(hdr[:])
		if n > limit {
			return frames, fmt.Errorf("%w: length %d at offset %d exceeds %d", ErrCorruptFrame, n, off, limit)
		}
		if n > avail-off-frameHeaderSize {
			return frames, fmt.Errorf("%w: length %d at offset %d runs past head", ErrCorruptFrame, n, off)
		}
		off += frameHeaderSize + n
	}
	return frames, nil
}
