package shm

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCapacity is the ring capacity used by DefaultConfig.
	DefaultCapacity = 1 << 20
	// MinCapacity is the smallest ring that still carries a one byte payload.
	MinCapacity = frameHeaderSize + 2
	// MaxCapacity keeps every cursor sum inside 32 bits.
	MaxCapacity = 1 << 30

	defaultInitTimeout = 5 * time.Second
)

// Config holds channel creation parameters.
type Config struct {
	// Capacity is the ring size C in bytes. At most C-1 bytes are buffered
	// and the largest payload is C-5 bytes. Every process opening a path
	// must agree on it.
	Capacity uint32
	// AttachOnly fails Open instead of creating a missing backing file.
	AttachOnly bool
	// InitTimeout bounds how long Open waits for another process that is
	// initializing the region.
	InitTimeout time.Duration
	// Meter and Tracer default to no-op implementations when nil.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with a 1 MiB ring.
func DefaultConfig() *Config {
	return &Config{
		Capacity:    DefaultCapacity,
		InitTimeout: defaultInitTimeout,
	}
}

// VerifyConfig is used to check whether the config is legal.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("config is nil")
	}
	if config.Capacity < MinCapacity || config.Capacity > MaxCapacity {
		return fmt.Errorf("capacity must be in [%d, %d], got %d", MinCapacity, MaxCapacity, config.Capacity)
	}
	if config.InitTimeout <= 0 {
		return fmt.Errorf("init timeout must be positive, got %s", config.InitTimeout)
	}
	return nil
}

// RegionSize returns the size of the backing file for a ring of the given
// capacity.
func RegionSize(capacity uint32) int {
	return headerSize + int(capacity)
}
