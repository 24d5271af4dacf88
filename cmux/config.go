package cmux

import (
	"log/slog"
	"time"
)

// Default timer and counter values of the basic option (T1, T2, N1, N2).
const (
	DefaultMaxFrameSize           = 127
	DefaultKeepAlivePeriod        = 5 * time.Second
	DefaultKeepAliveMaxMissed     = 5
	DefaultMaxRetransmissions     = 3
	DefaultAckTimeout             = 100 * time.Millisecond
	DefaultControlResponseTimeout = 300 * time.Millisecond

	// MaxFrameSizeLimit is the largest information field a two octet
	// length indicator can describe.
	MaxFrameSizeLimit = 32767

	defaultReadPollInterval = 50 * time.Millisecond
)

// Config holds the multiplexer knobs. Zero fields take the defaults.
type Config struct {
	// MaxFrameSize is the largest information field sent or accepted (N1).
	MaxFrameSize int
	// KeepAlivePeriod is the interval between liveness probes on the control
	// channel. A negative value disables the keepalive.
	KeepAlivePeriod time.Duration
	// KeepAliveMaxMissed is the number of consecutive unanswered probes after
	// which the link is presumed dead.
	KeepAliveMaxMissed int
	// MaxRetransmissions bounds how often SABM, DISC and control commands are
	// resent (N2).
	MaxRetransmissions int
	// AckTimeout is the wait for UA/DM after SABM or DISC (T1).
	AckTimeout time.Duration
	// ControlResponseTimeout is the wait for a control message response (T2).
	ControlResponseTimeout time.Duration
	// UseMSCAsKeepAlive probes with modem status commands instead of TEST
	// frames, for firmware that answers TEST unreliably.
	UseMSCAsKeepAlive bool
	// ReadPollInterval is the transport read timeout used by the reader
	// goroutine to notice Stop.
	ReadPollInterval time.Duration
	// Logger receives frame level debug output.
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxFrameSize > MaxFrameSizeLimit {
		c.MaxFrameSize = MaxFrameSizeLimit
	}
	if c.KeepAlivePeriod == 0 {
		c.KeepAlivePeriod = DefaultKeepAlivePeriod
	}
	if c.KeepAliveMaxMissed <= 0 {
		c.KeepAliveMaxMissed = DefaultKeepAliveMaxMissed
	}
	if c.MaxRetransmissions < 0 {
		c.MaxRetransmissions = 0
	} else if c.MaxRetransmissions == 0 {
		c.MaxRetransmissions = DefaultMaxRetransmissions
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.ControlResponseTimeout <= 0 {
		c.ControlResponseTimeout = DefaultControlResponseTimeout
	}
	if c.ReadPollInterval <= 0 {
		c.ReadPollInterval = defaultReadPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
