package shm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shmchan/internal/logging"
	internalshm "github.com/srediag/shmchan/internal/shm"
)

var internalLogger = logging.New("shm", nil)

var errNotReady = errors.New("region not initialized yet")

// SetLogLevel sets the level of the package logger. See the logging levels
// in internal/logging; the SHMCHAN_LOG_LEVEL environment variable sets the
// initial level.
func SetLogLevel(l int) {
	logging.SetLevel(l)
}

// Stats is a snapshot of the shared ring.
type Stats struct {
	Capacity uint32
	Head     uint32
	Tail     uint32
	// Used counts buffered bytes including frame headers.
	Used   uint32
	Free   uint32
	Closed bool
}

// Channel is one process's handle on a shared region. Handles are safe for
// concurrent use; every handle on the same path sees the same messages.
type Channel struct {
	// mu guards inflight and detaching. Detach waits on idle until no call
	// is inside the region; it never blocks callers behind it.
	mu        sync.Mutex
	idle      *sync.Cond
	inflight  int
	detaching bool

	path     string
	capacity uint32
	created  bool
	region   *internalshm.MappedRegion
	layout   *layout
	ring     ring
	gate     Gate
	inst     *instruments
}

// Open attaches to the region at path, creating and initializing it when
// needed. Bare names resolve under /dev/shm, see RegionPath. A nil config
// means DefaultConfig.
func Open(ctx context.Context, path string, config *Config) (*Channel, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	resolved := RegionPath(path)
	inst, err := newInstruments(config, resolved)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	ctx, span := inst.tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		inst.path,
		attribute.Int64("shm.capacity", int64(config.Capacity)),
		attribute.Bool("shm.attach_only", config.AttachOnly),
	))
	defer span.End()

	ch, err := open(ctx, resolved, config, inst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("shm.created", ch.created))
	internalLogger.Debugf("opened %s capacity:%d created:%t", resolved, ch.capacity, ch.created)
	return ch, nil
}

func open(ctx context.Context, path string, config *Config, inst *instruments) (*Channel, error) {
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:   path,
		Size:   RegionSize(config.Capacity),
		Create: !config.AttachOnly,
	})
	if err != nil {
		if errors.Is(err, internalshm.ErrSizeMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrCapacityMismatch, err)
		}
		if errors.Is(err, ErrUnsupported) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMapFailure, err)
	}
	l, err := newLayout(region.Addr, config.Capacity)
	if err == nil {
		var created bool
		created, err = initialize(ctx, l, config)
		if err == nil {
			ch := &Channel{
				path:     path,
				capacity: config.Capacity,
				created:  created,
				region:   region,
				layout:   l,
				ring:     newRing(l),
				gate:     newFutexGate(l),
				inst:     inst,
			}
			ch.idle = sync.NewCond(&ch.mu)
			return ch, nil
		}
	}
	if uerr := internalshm.UnmapRegion(ctx, region); uerr != nil {
		internalLogger.Warnf("unmap %s after failed open: %v", path, uerr)
	}
	return nil, err
}

// initialize runs the one-time header setup. The process that moves the
// state word from blank to initializing writes the header; everyone else
// polls until it reads ready. Attach-only handles never initialize.
func initialize(ctx context.Context, l *layout, config *Config) (bool, error) {
	if !config.AttachOnly && internalshm.AtomicCompareAndSwapUint32(l.state, stateBlank, stateInitializing) {
		l.reset(config.Capacity)
		internalshm.AtomicStoreUint32(l.state, stateReady)
		return true, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = config.InitTimeout
	err := backoff.Retry(func() error {
		if internalshm.AtomicLoadUint32(l.state) != stateReady {
			return errNotReady
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("%w after %s", ErrInitTimeout, config.InitTimeout)
	}
	if got := internalshm.AtomicLoadUint32(l.capacity); got != config.Capacity {
		return false, fmt.Errorf("%w: region has %d, want %d", ErrCapacityMismatch, got, config.Capacity)
	}
	return false, nil
}

// Write appends p as one frame, blocking while the ring lacks room. It
// returns ErrOversizeMessage when p exceeds MaxPayload and ErrShutdown when
// the channel is closed before room appears. A frame that fits is written
// even after Close.
func (c *Channel) Write(p []byte) error {
	if err := c.enter(false); err != nil {
		return err
	}
	defer c.leave()
	if limit := maxPayload(c.capacity); uint64(len(p)) > uint64(limit) {
		c.inst.reject(dirWrite, reasonOversize)
		return fmt.Errorf("%w: %d bytes, limit %d", ErrOversizeMessage, len(p), limit)
	}
	need := uint32(len(p)) + frameHeaderSize

	c.gate.Lock()
	waits := 0
	for c.ring.freeSpace() < need && !c.layout.isClosed() {
		c.gate.Wait()
		waits++
	}
	c.inst.wait(dirWrite, waits)
	if c.ring.freeSpace() < need {
		c.gate.Unlock()
		c.inst.reject(dirWrite, reasonShutdown)
		return ErrShutdown
	}
	c.ring.putFrame(p)
	c.gate.Broadcast()
	c.gate.Unlock()

	c.inst.frame(dirWrite, len(p))
	return nil
}

// MustWrite is Write for callers that treat every failure as fatal.
func (c *Channel) MustWrite(p []byte) {
	if err := c.Write(p); err != nil {
		panic(fmt.Sprintf("shm: write to %s: %v", c.path, err))
	}
}

// Read removes the oldest frame and returns a copy of its payload, blocking
// while the ring is empty. Frames buffered before Close are still returned;
// once none is left Read reports ErrShutdown.
func (c *Channel) Read() ([]byte, error) {
	var out []byte
	err := c.read(func(n uint32) []byte {
		out = make([]byte, n)
		return out
	})
	return out, err
}

// read takes one frame. alloc supplies the destination for the payload.
func (c *Channel) read(alloc func(n uint32) []byte) error {
	if err := c.enter(false); err != nil {
		return err
	}
	defer c.leave()

	c.gate.Lock()
	waits := 0
	for c.ring.dataAvailable() < frameHeaderSize && !c.layout.isClosed() {
		c.gate.Wait()
		waits++
	}
	if c.ring.dataAvailable() < frameHeaderSize {
		c.gate.Unlock()
		c.inst.wait(dirRead, waits)
		c.inst.reject(dirRead, reasonShutdown)
		return ErrShutdown
	}
	n := c.ring.takeHeader()
	if limit := maxPayload(c.capacity); n > limit {
		dropped := c.ring.dataAvailable()
		c.ring.discard()
		c.gate.Broadcast()
		c.gate.Unlock()
		internalLogger.Warnf("%s: frame length %d exceeds %d, dropped %d buffered bytes", c.path, n, limit, dropped)
		c.inst.reject(dirRead, reasonCorrupt)
		return fmt.Errorf("%w: length %d exceeds %d", ErrCorruptFrame, n, limit)
	}
	for c.ring.dataAvailable() < n && !c.layout.isClosed() {
		c.gate.Wait()
		waits++
	}
	c.inst.wait(dirRead, waits)
	if c.ring.dataAvailable() < n {
		c.ring.unread(frameHeaderSize)
		c.gate.Unlock()
		c.inst.reject(dirRead, reasonShutdown)
		return ErrShutdown
	}
	c.ring.take(alloc(n))
	c.gate.Broadcast()
	c.gate.Unlock()

	c.inst.frame(dirRead, int(n))
	return nil
}

// Close marks the channel closed for every attached process and wakes all
// blocked callers. It may be called any number of times from any process.
// The backing file stays in place, see Remove.
func (c *Channel) Close() error {
	if err := c.enter(true); err != nil {
		return err
	}
	defer c.leave()
	_, span := c.inst.tracer.Start(context.Background(), "shm.Close", trace.WithAttributes(c.inst.path))
	defer span.End()

	c.gate.Lock()
	internalshm.AtomicStoreUint32(c.layout.closed, 1)
	c.gate.Broadcast()
	c.gate.Unlock()
	internalLogger.Debugf("closed %s", c.path)
	return nil
}

// Closed reports whether any process closed the channel. A detached handle
// reports true.
func (c *Channel) Closed() bool {
	if c.enter(true) != nil {
		return true
	}
	defer c.leave()
	return c.layout.isClosed()
}

// Detach unmaps the region from this process. New calls on the handle fail
// with ErrDetached at once, except Close and Closed. Detach then waits for
// calls already inside the region, so a caller parked in Read or Write holds
// it up until the channel is closed or the call completes. Other handles are
// not affected. Detach is idempotent.
func (c *Channel) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.region == nil {
		return nil
	}
	c.detaching = true
	for c.inflight > 0 {
		c.idle.Wait()
	}
	// a concurrent Detach finished while this one waited
	if c.region == nil {
		return nil
	}
	ctx, span := c.inst.tracer.Start(context.Background(), "shm.Detach", trace.WithAttributes(c.inst.path))
	defer span.End()

	err := internalshm.UnmapRegion(ctx, c.region)
	c.region = nil
	c.layout = nil
	c.ring = ring{}
	c.gate = nil
	if err != nil {
		span.RecordError(err)
		return err
	}
	internalLogger.Debugf("detached %s", c.path)
	return nil
}

// enter registers a call inside the region. Calls made while a Detach is
// pending are refused unless duringDetach is set.
func (c *Channel) enter(duringDetach bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layout == nil || (c.detaching && !duringDetach) {
		return ErrDetached
	}
	c.inflight++
	return nil
}

func (c *Channel) leave() {
	c.mu.Lock()
	c.inflight--
	if c.inflight == 0 {
		c.idle.Broadcast()
	}
	c.mu.Unlock()
}

// Stats returns a snapshot of the shared cursors.
func (c *Channel) Stats() (Stats, error) {
	if err := c.enter(false); err != nil {
		return Stats{}, err
	}
	defer c.leave()
	head, tail := c.ring.cursors()
	free := c.ring.freeSpace()
	return Stats{
		Capacity: c.capacity,
		Head:     head,
		Tail:     tail,
		Used:     c.capacity - 1 - free,
		Free:     free,
		Closed:   c.layout.isClosed(),
	}, nil
}

// Verify checks under the lock that the buffered bytes form whole frames,
// and returns how many there are.
func (c *Channel) Verify() (int, error) {
	if err := c.enter(false); err != nil {
		return 0, err
	}
	defer c.leave()
	c.gate.Lock()
	defer c.gate.Unlock()
	return c.ring.walkFrames()
}

// Reset discards all buffered frames and wakes blocked producers. It does
// not reopen a closed channel.
func (c *Channel) Reset() error {
	if err := c.enter(false); err != nil {
		return err
	}
	defer c.leave()
	c.gate.Lock()
	c.ring.discard()
	c.gate.Broadcast()
	c.gate.Unlock()
	internalLogger.Infof("reset %s", c.path)
	return nil
}

// Created reports whether this handle initialized the region.
func (c *Channel) Created() bool { return c.created }

// Capacity returns the ring capacity C.
func (c *Channel) Capacity() uint32 { return c.capacity }

// MaxPayload returns the largest payload Write accepts, C-5.
func (c *Channel) MaxPayload() int { return int(maxPayload(c.capacity)) }

// Path returns the backing file path.
func (c *Channel) Path() string { return c.path }

// RegionPath resolves a channel name to its backing file path.
func RegionPath(name string) string { return internalshm.RegionPath(name) }

// Remove unlinks the backing file of a channel. Attached processes keep
// working on their mapping; a later Open creates a fresh region.
func Remove(path string) error { return internalshm.Remove(path) }
