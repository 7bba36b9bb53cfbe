package transport

import (
	"time"

	serial "github.com/daedaluz/goserial"
)

// SerialTransport is a Transport backed by a real serial port, grounded on
// daedaluz/goserial's raw-mode Port.
type SerialTransport struct {
	port *serial.Port
}

// NewSerial opens path (e.g. "/dev/ttyACM0") in raw mode with the given
// initial read timeout. baud is currently advisory: the firmware side
// fixes its own bit rate and goserial's raw mode does not require it, but
// the parameter is kept so a future board revision with a configurable UART
// divisor has somewhere to plug in.
func NewSerial(path string, baud int, readTimeout time.Duration) (*SerialTransport, error) {
	opts := serial.NewOptions().SetReadTimeout(readTimeout)
	port, err := serial.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, err
	}
	return &SerialTransport{port: port}, nil
}

func (s *SerialTransport) Read(buf []byte) (int, error) {
	return s.port.Read(buf)
}

func (s *SerialTransport) SetReadTimeout(timeout time.Duration) {
	s.port.SetReadTimeout(timeout)
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}
