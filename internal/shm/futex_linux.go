//go:build linux

package shm

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations: the word lives in a MAP_SHARED
// mapping and waiters may sit in other processes.
const (
	futexWait = 0
	futexWake = 1
)

// WakeAll is the waiter count that wakes every waiter.
const WakeAll = math.MaxInt32

// FutexWait sleeps while *addr == val. Spurious wakeups are possible, so
// callers re-check their condition on return.
func FutexWait(addr *uint32, val uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWait, uintptr(val), 0, 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	}
	return fmt.Errorf("futex wait: %w", errno)
}

// FutexWake wakes up to n waiters sleeping on addr and returns how many woke.
func FutexWake(addr *uint32, n int) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)), futexWake, uintptr(n), 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake: %w", errno)
	}
	return int(r), nil
}
