// Package hal holds the board collaborators of the modem client: GPIO
// lines, the serial port and the clock.
package hal

import "errors"

// Logic levels.
const (
	Low  = 0
	High = 1
)

//go:generate go tool mockgen -source=pins.go -destination=mock_pin.go -package=hal

// Pin is a single GPIO line. *gpiod.Line satisfies it.
type Pin interface {
	Value() (int, error)
	SetValue(value int) error
}

// PinSet carries the four modem control lines.
type PinSet struct {
	// Power is the PWR_ON input of the modem; pulled low to toggle power.
	Power Pin
	// Reset is the RESET_N input of the modem; pulled low to reset.
	Reset Pin
	// BufferEnable drives the UART level translator; low enables it.
	BufferEnable Pin
	// PowerGood senses V_INT, high while the modem is powered.
	PowerGood Pin
}

// ErrMissingPin is returned when a PinSet lacks one of its lines.
var ErrMissingPin = errors.New("hal: pin not configured")

// Validate checks that every line is present.
func (p PinSet) Validate() error {
	switch {
	case p.Power == nil:
		return errors.Join(ErrMissingPin, errors.New("power"))
	case p.Reset == nil:
		return errors.Join(ErrMissingPin, errors.New("reset"))
	case p.BufferEnable == nil:
		return errors.Join(ErrMissingPin, errors.New("buffer enable"))
	case p.PowerGood == nil:
		return errors.Join(ErrMissingPin, errors.New("power good"))
	}
	return nil
}
