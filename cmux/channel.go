package cmux

import (
	"sync"
	"sync/atomic"
	"time"
)

// Channel is a byte stream over one DLCI. Received data is buffered up to
// a fixed size; the oldest bytes are kept and newer ones dropped once the
// buffer is full.
//
// The enable gate may be flipped from any goroutine without holding other
// locks. A disabled Channel fails reads and writes with ErrDisabled and
// wakes any reader parked in Read.
type Channel struct {
	mux  *Mux
	dlci int
	size int

	mu      sync.Mutex
	buf     []byte
	timeout time.Duration
	// wake is signalled when data arrives or the gate changes
	wake    chan struct{}
	enabled atomic.Bool
	dropped atomic.Uint64
}

// NewChannel creates a stream for dlci with a receive buffer of size bytes.
// The DLCI is not opened until Open is called.
func NewChannel(m *Mux, dlci, size int) *Channel {
	c := &Channel{
		mux:     m,
		dlci:    dlci,
		size:    size,
		timeout: -1,
		wake:    make(chan struct{}, 1),
	}
	c.enabled.Store(true)
	return c
}

// DLCI returns the channel number.
func (c *Channel) DLCI() int {
	return c.dlci
}

// Open establishes the DLCI and routes its data into the stream buffer.
func (c *Channel) Open() error {
	c.Reset()
	return c.mux.OpenChannel(c.dlci, c.push)
}

// Close disconnects the DLCI.
func (c *Channel) Close() error {
	return c.mux.CloseChannel(c.dlci)
}

// Resume releases flow control towards the remote.
func (c *Channel) Resume() error {
	return c.mux.ResumeChannel(c.dlci)
}

// SetEnabled flips the enable gate.
func (c *Channel) SetEnabled(on bool) {
	c.enabled.Store(on)
	c.signal()
}

// Enabled reports the enable gate.
func (c *Channel) Enabled() bool {
	return c.enabled.Load()
}

// Dropped returns the number of received bytes discarded on overflow.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}

// Reset discards buffered input.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = c.buf[:0]
}

// SetReadTimeout sets how long Read waits for data. A negative value
// blocks until data arrives or the gate is closed.
func (c *Channel) SetReadTimeout(t time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = t
	return nil
}

// Read returns buffered data, waiting up to the read timeout. It returns
// (0, nil) on timeout.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	timeout := c.timeout
	c.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if !c.enabled.Load() {
			return 0, ErrDisabled
		}
		c.mu.Lock()
		if len(c.buf) > 0 {
			n := copy(p, c.buf)
			c.buf = append(c.buf[:0], c.buf[n:]...)
			c.mu.Unlock()
			return n, nil
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-expired:
			return 0, nil
		}
	}
}

// Write sends p on the DLCI.
func (c *Channel) Write(p []byte) (int, error) {
	if !c.enabled.Load() {
		return 0, ErrDisabled
	}
	return c.mux.WriteChannel(c.dlci, p)
}

func (c *Channel) push(data []byte) {
	c.mu.Lock()
	room := c.size - len(c.buf)
	if room < len(data) {
		c.dropped.Add(uint64(len(data) - max(room, 0)))
		data = data[:max(room, 0)]
	}
	c.buf = append(c.buf, data...)
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
