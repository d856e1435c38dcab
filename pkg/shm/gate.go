package shm

import (
	internalshm "github.com/srediag/shmchan/internal/shm"
)

// Gate is a mutex plus condition variable shared by every process attached
// to a region.
type Gate interface {
	Lock()
	Unlock()
	// Wait releases the lock, sleeps until a Broadcast, and reacquires the
	// lock. Wakeups may be spurious.
	Wait()
	Broadcast()
}

// mutex word values
const (
	unlocked  = 0
	locked    = 1
	contended = 2
)

// futexGate keeps both words inside the region and parks waiters with
// shared futexes.
type futexGate struct {
	mutex *uint32
	cond  *uint32
}

func newFutexGate(l *layout) *futexGate {
	return &futexGate{mutex: l.mutex, cond: l.cond}
}

func (g *futexGate) Lock() {
	if internalshm.AtomicCompareAndSwapUint32(g.mutex, unlocked, locked) {
		return
	}
	for internalshm.AtomicSwapUint32(g.mutex, contended) != unlocked {
		_ = internalshm.FutexWait(g.mutex, contended)
	}
}

func (g *futexGate) Unlock() {
	if internalshm.AtomicAddUint32(g.mutex, -1) != unlocked {
		internalshm.AtomicStoreUint32(g.mutex, unlocked)
		_, _ = internalshm.FutexWake(g.mutex, 1)
	}
}

func (g *futexGate) Wait() {
	seq := internalshm.AtomicLoadUint32(g.cond)
	g.Unlock()
	_ = internalshm.FutexWait(g.cond, seq)
	g.Lock()
}

func (g *futexGate) Broadcast() {
	internalshm.AtomicAddUint32(g.cond, 1)
	_, _ = internalshm.FutexWake(g.cond, internalshm.WakeAll)
}
