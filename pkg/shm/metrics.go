package shm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shmchan/pkg/shm"

var (
	dirWrite = attribute.String("shm.direction", "write")
	dirRead  = attribute.String("shm.direction", "read")

	reasonOversize = attribute.String("shm.reason", "oversize")
	reasonCorrupt  = attribute.String("shm.reason", "corrupt")
	reasonShutdown = attribute.String("shm.reason", "shutdown")
)

type instruments struct {
	tracer   trace.Tracer
	path     attribute.KeyValue
	frames   metric.Int64Counter
	bytes    metric.Int64Counter
	waits    metric.Int64Counter
	rejected metric.Int64Counter
}

func newInstruments(cfg *Config, path string) (*instruments, error) {
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	frames, err1 := meter.Int64Counter("shm.frames",
		metric.WithDescription("Frames written to or read from the channel."),
		metric.WithUnit("{frame}"))
	bytes, err2 := meter.Int64Counter("shm.payload",
		metric.WithDescription("Payload bytes written to or read from the channel."),
		metric.WithUnit("By"))
	waits, err3 := meter.Int64Counter("shm.waits",
		metric.WithDescription("Times a caller parked because the ring was full or empty."),
		metric.WithUnit("{wait}"))
	rejected, err4 := meter.Int64Counter("shm.rejected",
		metric.WithDescription("Calls that failed on an oversize message, a corrupt frame or shutdown."),
		metric.WithUnit("{call}"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	return &instruments{
		tracer:   tracer,
		path:     attribute.String("shm.path", path),
		frames:   frames,
		bytes:    bytes,
		waits:    waits,
		rejected: rejected,
	}, nil
}

func (i *instruments) frame(dir attribute.KeyValue, n int) {
	ctx := context.Background()
	opt := metric.WithAttributes(i.path, dir)
	i.frames.Add(ctx, 1, opt)
	i.bytes.Add(ctx, int64(n), opt)
}

func (i *instruments) wait(dir attribute.KeyValue, n int) {
	if n > 0 {
		i.waits.Add(context.Background(), int64(n), metric.WithAttributes(i.path, dir))
	}
}

func (i *instruments) reject(dir, reason attribute.KeyValue) {
	i.rejected.Add(context.Background(), 1, metric.WithAttributes(i.path, dir, reason))
}
