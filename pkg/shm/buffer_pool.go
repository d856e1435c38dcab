package shm

import (
	"slices"

	"github.com/valyala/bytebufferpool"
)

// ReadBuffer is Read into a pooled buffer. Give the buffer back with
// ReleaseBuffer once the payload is no longer needed. The buffer is nil
// when an error is returned.
func (c *Channel) ReadBuffer() (*bytebufferpool.ByteBuffer, error) {
	bb := bytebufferpool.Get()
	err := c.read(func(n uint32) []byte {
		bb.B = slices.Grow(bb.B[:0], int(n))[:n]
		return bb.B
	})
	if err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}
	return bb, nil
}

// ReleaseBuffer returns a buffer obtained from ReadBuffer to the pool.
func ReleaseBuffer(bb *bytebufferpool.ByteBuffer) {
	if bb != nil {
		bytebufferpool.Put(bb)
	}
}
