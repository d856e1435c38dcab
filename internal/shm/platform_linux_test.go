//go:build linux

package shm

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegionSharesBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	ctx := context.Background()

	a, err := MapRegion(ctx, MapOptions{Name: path, Size: 4096, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, a) //nolint:errcheck
	assert.True(t, a.Created)
	assert.Equal(t, path, a.Path)
	assert.Len(t, a.Addr, 4096)

	b, err := MapRegion(ctx, MapOptions{Name: path, Size: 4096})
	require.NoError(t, err)
	defer UnmapRegion(ctx, b) //nolint:errcheck
	assert.False(t, b.Created)

	copy(a.Addr[100:], "hello")
	assert.Equal(t, "hello", string(b.Addr[100:105]))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())
}

func TestMapRegionErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := MapRegion(ctx, MapOptions{Name: filepath.Join(dir, "missing"), Size: 4096})
	assert.ErrorIs(t, err, fs.ErrNotExist)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	_, err = MapRegion(ctx, MapOptions{Name: empty, Size: 4096})
	assert.ErrorIs(t, err, ErrEmptyRegion)

	sized := filepath.Join(dir, "sized")
	r, err := MapRegion(ctx, MapOptions{Name: sized, Size: 4096, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, r))
	_, err = MapRegion(ctx, MapOptions{Name: sized, Size: 8192, Create: true})
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = MapRegion(ctx, MapOptions{Name: sized, Size: 0})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = MapRegion(cancelled, MapOptions{Name: sized, Size: 4096})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnmapRegionIdempotent(t *testing.T) {
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Name: filepath.Join(t.TempDir(), "r"), Size: 4096, Create: true})
	require.NoError(t, err)
	require.NoError(t, UnmapRegion(ctx, r))
	assert.Nil(t, r.Addr)
	assert.NoError(t, UnmapRegion(ctx, r))
	assert.NoError(t, UnmapRegion(ctx, nil))
}

func TestRegionPath(t *testing.T) {
	assert.Equal(t, "/tmp/x/chan", RegionPath("/tmp/x/chan"))
	assert.Equal(t, "./chan", RegionPath("./chan"))
	if isDevShmAvailable() {
		assert.Equal(t, "/dev/shm/chan", RegionPath("chan"))
	} else {
		assert.Equal(t, filepath.Join(os.TempDir(), "chan"), RegionPath("chan"))
	}
}

func TestCanCreate(t *testing.T) {
	assert.True(t, CanCreate(math.MaxUint64, "sdffafds"))
	assert.True(t, CanCreate(math.MaxUint64, filepath.Join(t.TempDir(), "x")))
	if !isDevShmAvailable() {
		t.Skip("no /dev/shm")
	}
	stat, err := disk.Usage(DevShm)
	require.NoError(t, err)
	assert.False(t, CanCreate(stat.Free+1<<30, "/dev/shm/xxx"))
	assert.True(t, CanCreate(1, "/dev/shm/xxx"))
}

func TestUint32At(t *testing.T) {
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Name: filepath.Join(t.TempDir(), "w"), Size: 4096, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r) //nolint:errcheck

	w := Uint32At(r.Addr, 8)
	AtomicStoreUint32(w, 7)
	assert.Equal(t, uint32(7), AtomicLoadUint32(Uint32At(r.Addr, 8)))
	assert.True(t, AtomicCompareAndSwapUint32(w, 7, 9))
	assert.False(t, AtomicCompareAndSwapUint32(w, 7, 10))
	assert.Equal(t, uint32(9), AtomicSwapUint32(w, 2))
	assert.Equal(t, uint32(1), AtomicAddUint32(w, -1))

	assert.Panics(t, func() { Uint32At(r.Addr, 4093) })
	assert.Panics(t, func() { Uint32At(r.Addr, -4) })
	assert.Panics(t, func() { Uint32At(r.Addr, 2) })
}

func TestFutexWaitWake(t *testing.T) {
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Name: filepath.Join(t.TempDir(), "f"), Size: 4096, Create: true})
	require.NoError(t, err)
	defer UnmapRegion(ctx, r) //nolint:errcheck
	w := Uint32At(r.Addr, 0)

	// value already changed: returns at once
	require.NoError(t, FutexWait(w, 1))

	n, err := FutexWake(w, WakeAll)
	require.NoError(t, err)
	assert.Zero(t, n)

	var woke atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for AtomicLoadUint32(w) == 0 {
			_ = FutexWait(w, 0)
		}
		woke.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	AtomicStoreUint32(w, 1)
	_, err = FutexWake(w, 1)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken")
	}
	assert.True(t, woke.Load())
}
