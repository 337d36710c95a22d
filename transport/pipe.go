package transport

import "net"

// Pipe returns two connected in-memory transports, reads on one matching
// writes on the other, for tests that need a Transport without a real
// serial device or TCP peer.
func Pipe() (Transport, Transport) {
	a, b := net.Pipe()
	return &tcpTransport{conn: a}, &tcpTransport{conn: b}
}
