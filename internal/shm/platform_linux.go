//go:build linux

package shm

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
//
// An empty backing file is sized to opts.Size when opts.Create is set. A
// non-empty file must already have exactly opts.Size bytes.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", opts.Size)
	}
	path := RegionPath(opts.Name)
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// the mapping outlives the descriptor
	defer unix.Close(fd) //nolint:errcheck

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat %s: %w", path, err)
	}
	created := false
	switch {
	case st.Size == 0:
		if !opts.Create {
			return nil, fmt.Errorf("%s: %w", path, ErrEmptyRegion)
		}
		if !CanCreate(uint64(opts.Size), path) {
			return nil, fmt.Errorf("%s, size:%d: %w", path, opts.Size, ErrNoSpace)
		}
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", path, err)
		}
		created = true
	case st.Size != int64(opts.Size):
		return nil, fmt.Errorf("%s has %d bytes, want %d: %w", path, st.Size, opts.Size, ErrSizeMismatch)
	}

	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedRegion{
		Addr:    addr,
		Path:    path,
		Size:    opts.Size,
		Created: created,
	}, nil
}

// UnmapRegion unmaps the shared memory region (Linux implementation). The
// backing file is left in place.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}
