package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"i4.energy/across/ncp/hal"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to the
// modem UART.
//
// Besides plain I/O it exposes the knobs bring-up needs: the read timeout
// (a Read that times out returns (0, nil)), a runtime baud rate switch, an
// input flush and an enable gate that makes pending and future I/O fail
// without taking any lock. *hal.Serial is the production implementation.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetBaudRate(baud int) error
	Flush() error
	SetEnabled(on bool)
}

// Dialer opens a Transport to the modem.
//
// Dialer abstracts how the UART is opened (a serial device, an emulator or
// a test double) and is used once during client construction.
type Dialer interface {
	// Dial creates and returns a connected Transport. It should respect
	// cancellation of ctx.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens the modem UART using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. /dev/ttyAMA0.
	PortName string
	// Mode overrides the port framing. When nil, 8N1 at BaudRate is used.
	Mode *serial.Mode
	// BaudRate is used when Mode is nil. Zero selects 115200.
	BaudRate int
}

// Dial opens the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.Mode == nil {
		s, err := hal.OpenSerial(d.PortName, d.BaudRate)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	port, err := serial.Open(d.PortName, d.Mode)
	if err != nil {
		return nil, fmt.Errorf("modem: open serial port %s: %w", d.PortName, err)
	}
	return hal.NewSerial(port, *d.Mode), nil
}
