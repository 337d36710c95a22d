package transport

import (
	"net"
	"strconv"
	"time"
)

// DefaultTCPPort is the bus's default TCP port, see spec §6.
const DefaultTCPPort = 4196

// TCPConfig names the remote endpoint.
type TCPConfig struct {
	Host string
	Port int // default DefaultTCPPort

	DialTimeout time.Duration // default 10s
}

type tcpTransport struct {
	conn net.Conn
}

// OpenTCP dials the configured host and port. There is no framing beyond
// the bus frames themselves (spec §6); this is a plain byte pipe, unlike
// the teacher's session.TCP which layers IEC 60870-5-104's
// acknowledge/sequence protocol on top — this bus has no such layer.
func OpenTCP(cfg TCPConfig) (Transport, error) {
	port := cfg.Port
	if port == 0 {
		port = DefaultTCPPort
	}
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &ErrTransport{Op: "open", Err: err}
	}
	return &tcpTransport{conn: conn}, nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	if err != nil {
		return n, &ErrTransport{Op: "read", Err: err}
	}
	return n, nil
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	if err != nil {
		return n, &ErrTransport{Op: "write", Err: err}
	}
	return n, nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
