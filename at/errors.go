package at

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the modem did not complete a response line
	// or a final result within the command timeout.
	ErrTimeout = errors.New("at: response timeout")

	// ErrNoStream is returned when a command is issued on a Parser that has
	// not been bound to a stream.
	ErrNoStream = errors.New("at: no stream bound")

	// ErrHandlerExists is returned by AddURCHandler when a handler is already
	// registered for the prefix.
	ErrHandlerExists = errors.New("at: URC handler already registered")

	// ErrNoMoreLines is returned by Response.ReadLine once the final result
	// code has been read.
	ErrNoMoreLines = errors.New("at: no more response lines")

	// ErrLineTooLong is returned when a response line exceeds the parser
	// buffer. The partial line is discarded.
	ErrLineTooLong = errors.New("at: response line too long")

	// ErrUnexpectedResponse is returned when a response line does not match
	// the expected format.
	ErrUnexpectedResponse = errors.New("at: unexpected response")
)

// CommandError is returned when a command completes with a final result
// other than OK.
type CommandError struct {
	Command string
	Result  Result
}

func (e *CommandError) Error() string {
	switch e.Result.Code {
	case ResultCMEError:
		return fmt.Sprintf("at: %s: CME ERROR: %d", e.Command, e.Result.Value)
	case ResultCMSError:
		return fmt.Sprintf("at: %s: CMS ERROR: %d", e.Command, e.Result.Value)
	}
	return fmt.Sprintf("at: %s: %s", e.Command, e.Result.Code)
}
