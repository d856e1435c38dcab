// Package shm provides a blocking message channel between processes on one
// host, carried by a circular byte buffer inside a shared memory region.
//
// Any number of processes may Open the same path. Writers append frames of a
// 4-byte little-endian length followed by the payload; readers remove whole
// frames. Both block while the ring is full or empty, and Close wakes every
// blocked caller in every attached process.
//
// Example usage:
//
//	ch, err := shm.Open(ctx, "orders", shm.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer ch.Detach()
//	if err := ch.Write([]byte("hello")); err != nil {
//		return err
//	}
//	msg, err := ch.Read()
//
// The package is instrumented with OpenTelemetry metrics and tracing, and
// exposes region occupancy as a Prometheus collector.
//
// Platform-specific helpers are in internal/shm. Only Linux is supported.
package shm
