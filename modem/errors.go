package modem

import (
	"errors"

	"i4.energy/across/ncp/at"
	"i4.energy/across/ncp/cmux"
	"i4.energy/across/ncp/hal"
)

var (
	// ErrNoDialer is returned when a Client is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrInvalidConfig is returned by Build when a configuration value is out
	// of range or inconsistent.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyClosed is returned when Close is called on a Client that has
	// already been closed.
	ErrAlreadyClosed = errors.New("client already closed")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current NCP or connection state, for example On while disabled or a
	// signal query while disconnected.
	//
	// The caller can retry after changing its behavior. No bring-up is needed.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for a nil or undersized output argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotOK is returned when the modem answers a command with a final
	// result other than OK.
	ErrNotOK = errors.New("command not OK")

	// ErrUnexpectedResponse is returned when a response line does not have
	// the expected shape.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrBadData is returned when a well formed response carries values out
	// of their defined range.
	ErrBadData = errors.New("bad data")

	// ErrNoResponse is returned when the modem does not answer AT within
	// the probing budget.
	ErrNoResponse = errors.New("modem not responding")

	// ErrPowerGood is returned when the power-good sense line disagrees with
	// the commanded power state after the polling budget.
	ErrPowerGood = errors.New("power-good sense mismatch")

	// ErrGPIO is returned when a control pin cannot be driven or sensed.
	ErrGPIO = errors.New("GPIO access failed")

	// ErrSIMNotReady is returned when the SIM does not report READY within
	// the verification retries.
	ErrSIMNotReady = errors.New("SIM not ready")
)

// Kind classifies an error for callers that decide between retrying and a
// bring-up cycle.
type Kind int

const (
	KindNone Kind = iota
	KindTimeout
	KindProtocol
	KindState
	KindResource
	KindHardware
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of err. A failed bring-up wraps its cause in
// ErrInvalidState; the kind of the cause wins.
func KindOf(err error) Kind {
	var cmdErr *at.CommandError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPowerGood), errors.Is(err, ErrGPIO),
		errors.Is(err, hal.ErrMissingPin):
		return KindHardware
	case errors.Is(err, ErrNoResponse), errors.Is(err, at.ErrTimeout),
		errors.Is(err, cmux.ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrNotOK), errors.Is(err, ErrUnexpectedResponse),
		errors.Is(err, ErrBadData), errors.Is(err, ErrSIMNotReady),
		errors.Is(err, at.ErrUnexpectedResponse), errors.Is(err, at.ErrNoMoreLines),
		errors.Is(err, cmux.ErrRejected), errors.As(err, &cmdErr):
		return KindProtocol
	case errors.Is(err, cmux.ErrNotRunning), errors.Is(err, cmux.ErrChannelClosed),
		errors.Is(err, cmux.ErrDisabled), errors.Is(err, cmux.ErrFrameTooLarge),
		errors.Is(err, at.ErrNoStream), errors.Is(err, hal.ErrDisabled):
		return KindResource
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrNoDialer),
		errors.Is(err, ErrInvalidConfig):
		return KindState
	default:
		return KindUnknown
	}
}

// Signed result codes returned by Code.
const (
	CodeOK       = 0
	CodeTimeout  = -1
	CodeProtocol = -2
	CodeState    = -3
	CodeResource = -4
	CodeHardware = -5
	CodeUnknown  = -100
)

// Code maps err to a signed result code: zero on success, negative per kind.
func Code(err error) int {
	switch KindOf(err) {
	case KindNone:
		return CodeOK
	case KindTimeout:
		return CodeTimeout
	case KindProtocol:
		return CodeProtocol
	case KindState:
		return CodeState
	case KindResource:
		return CodeResource
	case KindHardware:
		return CodeHardware
	default:
		return CodeUnknown
	}
}
