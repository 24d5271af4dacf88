package modem

import (
	"errors"
	"sync"
	"time"

	"i4.energy/across/ncp/cmux"
	"i4.energy/across/ncp/hal"
)

const (
	flowWindow    = 50 * time.Millisecond
	flowThreshold = 512
)

// channelWriter is the multiplexer side of the data channel.
type channelWriter interface {
	WriteChannel(dlci int, data []byte) (int, error)
}

// FlowController paces writes to the data channel for firmware without
// working hardware flow control. Once flowThreshold bytes went out within
// a window, further writes are dropped until flowWindow has passed since
// the threshold was reached.
type FlowController struct {
	clock  hal.Clock
	writer channelWriter
	// onFailure is called when the multiplexer rejects a write
	onFailure func()

	mu          sync.Mutex
	enabled     bool
	windowStart time.Time
	written     int
}

func newFlowController(clock hal.Clock, writer channelWriter, onFailure func()) *FlowController {
	return &FlowController{clock: clock, writer: writer, onFailure: onFailure}
}

func (f *FlowController) configure(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
	f.windowStart = time.Time{}
	f.written = 0
}

// Enabled reports whether writes are paced.
func (f *FlowController) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Write sends data on the data channel. A write dropped by the pacing or
// held back by remote flow control reports len(data) and no error, the
// same as a datagram lost on the air.
func (f *FlowController) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.enabled {
		now := f.clock.Now()
		if now.Sub(f.windowStart) >= flowWindow {
			f.windowStart = now
			f.written = 0
		}
		if f.written >= flowThreshold {
			return len(data), nil
		}
	}

	n, err := f.writer.WriteChannel(dataChannelID, data)
	if errors.Is(err, cmux.ErrFlowControl) {
		n, err = len(data), nil
	}
	if err != nil {
		if f.onFailure != nil {
			f.onFailure()
		}
		return n, err
	}

	if f.enabled {
		f.written += len(data)
		if f.written >= flowThreshold {
			f.windowStart = f.clock.Now()
		}
	}
	return n, nil
}

// WriteData sends data on the data channel. The connection must be
// established. See FlowController.Write for the pacing rules; a failing
// multiplexer disables the client.
func (c *Client) WriteData(data []byte) (int, error) {
	if c.disabled() || c.ConnectionState() != Connected {
		return 0, ErrInvalidState
	}
	return c.flow.Write(data)
}
