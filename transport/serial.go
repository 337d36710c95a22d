package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// SerialConfig names the device path; every other line parameter is
// fixed by the bus (see spec §6) except BaudRate, which some
// installations override from the documented default.
type SerialConfig struct {
	Device   string
	BaudRate int // default 9600
}

type serialTransport struct {
	port serial.Port
}

// OpenSerial opens the configured serial device with the bus's fixed
// line settings: 8 data bits, even parity, 1 stop bit, and the RTS line
// asserted once at open. No RTS/CTS handshaking is configured; CTS is
// not consulted. These mirror media.DataSize/media.Parity/media.StopBits
// in the teacher's media package, generalized to a configurable baud
// rate.
func OpenSerial(cfg SerialConfig) (Transport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, &ErrTransport{Op: "open", Err: err}
	}
	if err := port.SetRTS(true); err != nil {
		port.Close()
		return nil, &ErrTransport{Op: "open", Err: fmt.Errorf("assert RTS: %w", err)}
	}

	return &serialTransport{port: port}, nil
}

func (s *serialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, &ErrTransport{Op: "read", Err: err}
	}
	return n, nil
}

func (s *serialTransport) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, &ErrTransport{Op: "write", Err: err}
	}
	return n, nil
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}
