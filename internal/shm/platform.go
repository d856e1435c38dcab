// Package shm contains the platform layer of the shared region: mapping of the
// named backing file, futex wait/wake on mapped words, and word accessors.
package shm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DevShm is where bare region names are placed when it exists.
const DevShm = "/dev/shm"

var (
	// ErrUnsupported is returned on platforms without file-backed shared
	// mappings and shared futexes.
	ErrUnsupported = errors.New("shared region not supported on this platform")
	// ErrEmptyRegion is returned when attaching without create to a backing
	// file that exists but has not been sized yet.
	ErrEmptyRegion = errors.New("backing file is empty")
	// ErrSizeMismatch is returned when the backing file size differs from the
	// requested mapping size.
	ErrSizeMismatch = errors.New("backing file size mismatch")
	// ErrNoSpace is returned when the shared memory filesystem cannot hold a
	// new region.
	ErrNoSpace = errors.New("not enough space left for shared region")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
	Size int
	// Created is true when this mapping sized a previously empty backing
	// file. It is informational: several racing openers may all see it.
	Created bool
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name   string
	Size   int
	Create bool
}

// RegionPath resolves a region name to its backing file. Names containing a
// path separator are used as given; bare names live under /dev/shm, or the
// temporary directory when /dev/shm is unavailable.
func RegionPath(name string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	if isDevShmAvailable() {
		return filepath.Join(DevShm, name)
	}
	return filepath.Join(os.TempDir(), name)
}

// Remove unlinks the backing file of a region. Processes that still have the
// region mapped keep their view until they unmap it.
func Remove(name string) error {
	return os.Remove(RegionPath(name))
}

func isDevShmAvailable() bool {
	info, err := os.Stat(DevShm)
	if err != nil {
		return false
	}
	return info.IsDir()
}
