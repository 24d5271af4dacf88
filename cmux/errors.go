package cmux

import "errors"

var (
	// ErrNotRunning is returned by channel operations while the multiplexer
	// is stopped.
	ErrNotRunning = errors.New("cmux: not running")

	// ErrAlreadyRunning is returned by Start on a running multiplexer.
	ErrAlreadyRunning = errors.New("cmux: already running")

	// ErrTimeout is returned when a command frame was not answered within
	// the configured retransmissions.
	ErrTimeout = errors.New("cmux: no response")

	// ErrRejected is returned when the remote answered SABM with DM.
	ErrRejected = errors.New("cmux: rejected by remote")

	// ErrInvalidChannel is returned for DLCIs outside 1..62.
	ErrInvalidChannel = errors.New("cmux: invalid channel")

	// ErrChannelClosed is returned when writing to a channel that is not open.
	ErrChannelClosed = errors.New("cmux: channel closed")

	// ErrFlowControl is returned by writes while the remote asserts flow
	// control. It signals transient back-pressure, not a broken link.
	ErrFlowControl = errors.New("cmux: remote flow control")

	// ErrDisabled is returned by a Channel whose enable gate is off.
	ErrDisabled = errors.New("cmux: channel disabled")

	// ErrFrameTooLarge is returned when encoding a frame whose information
	// field exceeds MaxFrameSizeLimit.
	ErrFrameTooLarge = errors.New("cmux: frame too large")
)
