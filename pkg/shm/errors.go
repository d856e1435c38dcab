package shm

import (
	"errors"

	internalshm "github.com/srediag/shmchan/internal/shm"
)

var (
	// ErrOversizeMessage is returned by Write when the payload can never fit
	// in the ring. The channel is left untouched.
	ErrOversizeMessage = errors.New("message larger than channel allows")
	// ErrMapFailure wraps errors from creating or mapping the backing file.
	ErrMapFailure = errors.New("failed to map shared region")
	// ErrShutdown is returned by blocked or new calls that cannot complete
	// because the channel was closed.
	ErrShutdown = errors.New("channel is closed")
	// ErrInitTimeout is returned by Open when another process started to
	// initialize the region and did not finish in time.
	ErrInitTimeout = errors.New("timed out waiting for region initialization")
	// ErrCapacityMismatch is returned by Open when the region was created
	// with a different capacity.
	ErrCapacityMismatch = errors.New("region capacity mismatch")
	// ErrCorruptFrame is returned by Read when a frame header holds an
	// impossible length. Buffered data is discarded.
	ErrCorruptFrame = errors.New("corrupt frame")
	// ErrDetached is returned by calls on a handle after Detach.
	ErrDetached = errors.New("channel handle is detached")
	// ErrUnsupported is returned by Open on platforms other than Linux.
	ErrUnsupported = internalshm.ErrUnsupported
	// ErrInsufficientSpace is returned by Open when /dev/shm cannot hold
	// a new region.
	ErrInsufficientSpace = internalshm.ErrNoSpace
)
