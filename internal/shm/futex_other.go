//go:build !linux

package shm

import "math"

// WakeAll is the waiter count that wakes every waiter.
const WakeAll = math.MaxInt32

// FutexWait is not implemented outside Linux.
func FutexWait(addr *uint32, val uint32) error {
	return ErrUnsupported
}

// FutexWake is not implemented outside Linux.
func FutexWake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}
