package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Uint32At returns the 32-bit word at byte offset off of a mapped region.
// It panics when the word is out of bounds or not 4-byte aligned, since
// atomics on such a word would fault or tear.
func Uint32At(mem []byte, off int) *uint32 {
	if off < 0 || off+4 > len(mem) {
		panic(fmt.Sprintf("shm: word offset %d out of range [0,%d)", off, len(mem)))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%4 != 0 {
		panic(fmt.Sprintf("shm: word offset %d is not aligned", off))
	}
	return (*uint32)(p)
}

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
func AtomicLoadUint32(addr *uint32) uint32 {
	return atomic.LoadUint32(addr)
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(addr *uint32, val uint32) {
	atomic.StoreUint32(addr, val)
}

// AtomicCompareAndSwapUint32 atomically compares and swaps a uint32 in shared memory.
func AtomicCompareAndSwapUint32(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}

// AtomicSwapUint32 atomically stores val and returns the previous value.
func AtomicSwapUint32(addr *uint32, val uint32) uint32 {
	return atomic.SwapUint32(addr, val)
}

// AtomicAddUint32 atomically adds delta and returns the new value.
func AtomicAddUint32(addr *uint32, delta int32) uint32 {
	return atomic.AddUint32(addr, uint32(delta))
}
