package hal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate the modem UART starts at.
const DefaultBaudRate = 115200

// ErrDisabled is returned by a Serial whose gate has been closed.
var ErrDisabled = errors.New("hal: serial port disabled")

// Serial is a serial port with a runtime adjustable baud rate and an
// enable gate. Read returns (0, nil) when the read timeout expires.
type Serial struct {
	port serial.Port
	name string

	mu      sync.Mutex
	mode    serial.Mode
	enabled atomic.Bool
}

// OpenSerial opens name at baud, 8N1.
func OpenSerial(name string, baud int) (*Serial, error) {
	if name == "" {
		return nil, errors.New("hal: serial port name is required")
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("hal: open serial port %s: %w", name, err)
	}
	s := NewSerial(port, mode)
	s.name = name
	return s, nil
}

// NewSerial wraps an already open port configured with mode.
func NewSerial(port serial.Port, mode serial.Mode) *Serial {
	s := &Serial{port: port, mode: mode}
	s.enabled.Store(true)
	return s
}

// Name returns the device path the port was opened with.
func (s *Serial) Name() string {
	return s.name
}

func (s *Serial) Read(p []byte) (int, error) {
	if !s.enabled.Load() {
		return 0, ErrDisabled
	}
	return s.port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	if !s.enabled.Load() {
		return 0, ErrDisabled
	}
	return s.port.Write(p)
}

// SetReadTimeout sets the read timeout; a negative value blocks.
func (s *Serial) SetReadTimeout(t time.Duration) error {
	if t < 0 {
		t = serial.NoTimeout
	}
	return s.port.SetReadTimeout(t)
}

// SetBaudRate reconfigures the port speed, keeping the framing.
func (s *Serial) SetBaudRate(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.BaudRate == baud {
		return nil
	}
	mode := s.mode
	mode.BaudRate = baud
	if err := s.port.SetMode(&mode); err != nil {
		return fmt.Errorf("hal: set baud rate %d: %w", baud, err)
	}
	s.mode = mode
	return nil
}

// BaudRate returns the configured speed.
func (s *Serial) BaudRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode.BaudRate
}

// Flush discards unread input.
func (s *Serial) Flush() error {
	return s.port.ResetInputBuffer()
}

// SetEnabled flips the enable gate. It is safe to call concurrently with
// Read and Write.
func (s *Serial) SetEnabled(on bool) {
	s.enabled.Store(on)
}

// Enabled reports the enable gate.
func (s *Serial) Enabled() bool {
	return s.enabled.Load()
}

func (s *Serial) Close() error {
	return s.port.Close()
}
