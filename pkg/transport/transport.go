// Package transport adapts a shared memory channel to a start/stop
// message transport.
package transport

// Transport defines the interface for message transports.
type Transport interface {
	// Start the transport (e.g., attach, create, etc.)
	Start() error
	// Stop the transport and clean up resources.
	Stop() error
	// Send data over the transport.
	Send(data []byte) error
	// Receive data from the transport.
	Receive() ([]byte, error)
}
