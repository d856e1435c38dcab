// Package health exposes liveness and readiness of an attached channel over
// HTTP.
package health

import (
	"errors"
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shmchan/pkg/shm"
)

// DefaultGoroutineThreshold fails liveness when the process leaks goroutines.
const DefaultGoroutineThreshold = 10000

var (
	// ErrChannelClosed fails readiness once any process closed the channel.
	ErrChannelClosed = errors.New("channel is closed")
	// ErrBackingFileMissing fails readiness once the region was removed.
	ErrBackingFileMissing = errors.New("backing file removed")
)

// Target is what the checks read from a channel.
type Target interface {
	Stats() (shm.Stats, error)
	Path() string
}

// Options configures NewHandler.
type Options struct {
	// Registerer, when set, also exports check results as Prometheus gauges
	// under Namespace.
	Registerer         prometheus.Registerer
	Namespace          string
	GoroutineThreshold int
}

// NewHandler returns a handler serving /live and /ready for p.
func NewHandler(p Target, opts Options) healthcheck.Handler {
	var h healthcheck.Handler
	if opts.Registerer != nil {
		h = healthcheck.NewMetricsHandler(opts.Registerer, opts.Namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	threshold := opts.GoroutineThreshold
	if threshold <= 0 {
		threshold = DefaultGoroutineThreshold
	}
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(threshold))
	h.AddLivenessCheck("region-mapped", MappedCheck(p))
	h.AddReadinessCheck("channel-open", OpenCheck(p))
	h.AddReadinessCheck("backing-file", BackingFileCheck(p))
	return h
}

// MappedCheck fails once the handle is detached.
func MappedCheck(p Target) healthcheck.Check {
	return func() error {
		_, err := p.Stats()
		return err
	}
}

// OpenCheck fails once the channel is closed or the handle detached.
func OpenCheck(p Target) healthcheck.Check {
	return func() error {
		st, err := p.Stats()
		if err != nil {
			return err
		}
		if st.Closed {
			return ErrChannelClosed
		}
		return nil
	}
}

// BackingFileCheck fails once the backing file is gone. Attached processes
// keep working, but new ones would create a separate region.
func BackingFileCheck(p Target) healthcheck.Check {
	return func() error {
		if _, err := os.Stat(p.Path()); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%s: %w", p.Path(), ErrBackingFileMissing)
			}
			return err
		}
		return nil
	}
}
