package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/shmchan/pkg/shm"
)

// ErrNotStarted is returned by Send and Receive before Start.
var ErrNotStarted = errors.New("transport not started")

// Options configures a ShmTransport.
type Options struct {
	// Path names the shared region, see shm.RegionPath.
	Path   string
	Config *shm.Config
	// AttachWait keeps retrying Start while the region does not exist yet.
	// It only applies when Config.AttachOnly is set.
	AttachWait time.Duration
}

// ShmTransport is a Transport over a shared memory channel.
type ShmTransport struct {
	opts Options

	mu sync.RWMutex
	ch *shm.Channel
}

var _ Transport = (*ShmTransport)(nil)

// NewShmTransport returns a transport that attaches on Start.
func NewShmTransport(opts Options) *ShmTransport {
	if opts.Config == nil {
		opts.Config = shm.DefaultConfig()
	}
	return &ShmTransport{opts: opts}
}

// Start attaches to the channel. Starting twice is a no-op.
func (t *ShmTransport) Start() error {
	return t.StartContext(context.Background())
}

// StartContext is Start with a context bounding the attach.
func (t *ShmTransport) StartContext(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch != nil {
		return nil
	}
	open := func() error {
		ch, err := shm.Open(ctx, t.opts.Path, t.opts.Config)
		if err != nil {
			if !errors.Is(err, shm.ErrMapFailure) {
				return backoff.Permanent(err)
			}
			return err
		}
		t.ch = ch
		return nil
	}
	if !t.opts.Config.AttachOnly || t.opts.AttachWait <= 0 {
		ch, err := shm.Open(ctx, t.opts.Path, t.opts.Config)
		if err != nil {
			return err
		}
		t.ch = ch
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = t.opts.AttachWait
	return backoff.Retry(open, backoff.WithContext(b, ctx))
}

// Stop detaches from the channel. The channel stays open for other
// processes; use Shutdown to close it for everyone.
func (t *ShmTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return nil
	}
	err := t.ch.Detach()
	t.ch = nil
	return err
}

// Shutdown closes the channel for every attached process.
func (t *ShmTransport) Shutdown() error {
	ch, err := t.channel()
	if err != nil {
		return err
	}
	return ch.Close()
}

// Send writes one message, blocking while the channel is full.
func (t *ShmTransport) Send(data []byte) error {
	ch, err := t.channel()
	if err != nil {
		return err
	}
	return ch.Write(data)
}

// Receive reads one message, blocking while the channel is empty.
func (t *ShmTransport) Receive() ([]byte, error) {
	ch, err := t.channel()
	if err != nil {
		return nil, err
	}
	return ch.Read()
}

// Channel returns the underlying channel, or nil before Start.
func (t *ShmTransport) Channel() *shm.Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ch
}

func (t *ShmTransport) channel() (*shm.Channel, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ch == nil {
		return nil, ErrNotStarted
	}
	return t.ch, nil
}
