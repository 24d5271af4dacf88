package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/ncp/at"
	"i4.energy/across/ncp/cmux"
	"i4.energy/across/ncp/hal"
)

// Client drives a u-blox SARA modem: power sequencing, bring-up over the
// raw UART, 27.010 multiplexing and network registration.
//
// All public operations except Disable are serialised by one mutex, so at
// most one AT command is in flight. Disable only flips atomics and stream
// gates; it is safe to call from any goroutine, including the multiplexer
// callbacks, and unblocks an operation parked on the modem.
type Client struct {
	mu sync.Mutex

	cfg     Config
	profile profile
	logger  *slog.Logger
	clock   hal.Clock
	pins    hal.PinSet

	transport Transport
	parser    *at.Parser
	mux       *cmux.Mux
	atChannel *cmux.Channel
	life      *lifecycle
	reg       *registration
	flow      *FlowController

	ncpState  atomic.Int32
	prevState atomic.Int32
	connState atomic.Int32

	// session identifies the current bring-up attempt in logs
	session string
	netConf NetworkConfig

	appFirmware int
	memoryIssue bool

	created        time.Time
	powerOnTime    time.Time
	registeredTime time.Time
	regStart       time.Time
	regCheck       time.Time
	regTimeout     time.Duration

	firstPowerOff sync.Once
	closed        bool
}

// New dials the modem UART and returns a Client in state Off. The control
// pins are driven to their idle levels; the modem itself is not touched
// until On is called.
func New(ctx context.Context, config Config) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}

	logger := config.Logger.With("component", "ncp", "variant", config.Variant.String())
	prof := profileFor(config.Variant)
	muxCfg := prof.mux
	muxCfg.Logger = config.Logger

	c := &Client{
		cfg:        config,
		profile:    prof,
		logger:     logger,
		clock:      config.Clock,
		pins:       config.Pins,
		transport:  transport,
		reg:        newRegistration(),
		regTimeout: config.RegistrationTimeout,
		created:    config.Clock.Now(),
	}
	c.parser = at.NewParser(transport,
		at.WithLogger(config.Logger),
		at.WithClock(config.Clock),
		at.WithCommandTimeout(config.ATTimeout),
	)
	c.mux = cmux.New(transport, muxCfg)
	c.atChannel = cmux.NewChannel(c.mux, atChannelID, atChannelBufferSize)
	c.mux.SetChannelStateHandler(c.channelStateChanged)
	c.life = newLifecycle(logger)
	c.flow = newFlowController(c.clock, c.mux, c.Disable)

	c.ncpState.Store(int32(NcpStateOff))
	c.prevState.Store(int32(NcpStateOff))
	c.connState.Store(int32(Disconnected))

	for _, h := range []struct {
		prefix string
		domain Domain
	}{
		{at.UrcCircuitRegistration, DomainCircuit},
		{at.UrcPacketRegistration, DomainPacket},
		{at.UrcLTERegistration, DomainLTE},
	} {
		if err := c.parser.AddURCHandler(h.prefix, c.registrationHandler(h.domain, h.prefix)); err != nil {
			transport.Close()
			return nil, err
		}
	}

	if err := c.initPins(); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize pins: %w", err)
	}

	return c, nil
}

// initPins drives the outputs to their idle levels: power and reset
// released, UART buffer disabled.
func (c *Client) initPins() error {
	for _, p := range []hal.Pin{c.pins.Power, c.pins.Reset, c.pins.BufferEnable} {
		if err := p.SetValue(hal.High); err != nil {
			return fmt.Errorf("%w: %w", ErrGPIO, err)
		}
	}
	return nil
}

// On powers the modem and brings it up to multiplexed operation.
func (c *Client) On() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	switch c.State() {
	case NcpStateDisabled:
		return ErrInvalidState
	case NcpStateOn:
		return nil
	}

	c.life.fire(eventPowerOn)
	if err := c.powerOn(); err != nil {
		c.logger.Error("Modem did not power on", "error", err)
		c.life.fire(eventFail)
		c.setNcpState(NcpStateOff)
		return err
	}
	c.life.fire(eventPowered)
	return c.waitReady()
}

// Off stops multiplexing and powers the modem down.
func (c *Client) Off() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.State() == NcpStateDisabled {
		return ErrInvalidState
	}
	return c.off()
}

func (c *Client) off() error {
	if err := c.mux.Stop(); err != nil {
		c.logger.Debug("Multiplexer stop", "error", err)
	}
	c.setUARTState(false)
	if err := c.powerOff(); err != nil {
		c.logger.Warn("Power-off not confirmed", "error", err)
	}
	c.life.fire(eventPowerOff)
	c.setNcpState(NcpStateOff)
	return nil
}

// Enable leaves the disabled state. The state held before Disable is
// restored and the modem is then powered off, so the next On starts from a
// clean bring-up.
func (c *Client) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.State() != NcpStateDisabled {
		return nil
	}
	// A link-loss callback may still be running on the multiplexer reader.
	if err := c.mux.Stop(); err != nil {
		c.logger.Debug("Multiplexer stop", "error", err)
	}
	c.mux.Wait()
	c.transport.SetEnabled(true)
	c.atChannel.SetEnabled(true)
	c.ncpState.Store(c.prevState.Load())
	c.logger.Info("Client enabled", "state", NcpState(c.prevState.Load()).String())
	return c.off()
}

// Disable makes the client refuse work until Enable is called. It takes no
// lock: pending and future I/O on the UART and the AT channel fail at once.
func (c *Client) Disable() {
	for {
		cur := c.ncpState.Load()
		if NcpState(cur) == NcpStateDisabled {
			return
		}
		c.prevState.Store(cur)
		if c.ncpState.CompareAndSwap(cur, int32(NcpStateDisabled)) {
			break
		}
	}
	c.transport.SetEnabled(false)
	c.atChannel.SetEnabled(false)
	c.logger.Warn("Client disabled", "previous", NcpState(c.prevState.Load()).String())
}

// State returns the modem power state.
func (c *Client) State() NcpState {
	return NcpState(c.ncpState.Load())
}

// ConnectionState returns the network connection state.
func (c *Client) ConnectionState() ConnectionState {
	return ConnectionState(c.connState.Load())
}

// Phase returns the bring-up phase, for diagnostics.
func (c *Client) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.life.phase()
}

// Session returns the id of the latest bring-up attempt.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetRegistrationTimeout sets how long a registration attempt may take
// before the modem is power cycled. It cannot go below
// DefaultRegistrationTimeout.
func (c *Client) SetRegistrationTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regTimeout = max(d, DefaultRegistrationTimeout)
}

// Close powers the modem down and releases the UART.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.State() != NcpStateDisabled {
		_ = c.off()
	} else {
		_ = c.mux.Stop()
	}
	c.closed = true
	return c.transport.Close()
}

func (c *Client) disabled() bool {
	return c.State() == NcpStateDisabled
}

// checkEnabled fails once Disable was called, so long operations stop
// between steps.
func (c *Client) checkEnabled() error {
	if c.disabled() {
		return fmt.Errorf("%w: client disabled", ErrInvalidState)
	}
	return nil
}

func (c *Client) setNcpState(state NcpState) {
	if c.disabled() {
		return
	}
	if state == NcpStateOff {
		c.life.fire(eventPowerOff)
		c.setConnState(Disconnected)
	}
	for {
		cur := c.ncpState.Load()
		if NcpState(cur) == NcpStateDisabled || NcpState(cur) == state {
			return
		}
		if c.ncpState.CompareAndSwap(cur, int32(state)) {
			break
		}
	}
	c.logger.Info("NCP state changed", "state", state.String())
	c.emit(NcpStateEvent{State: state})
}

func (c *Client) setConnState(state ConnectionState) {
	if c.disabled() {
		return
	}
	if ConnectionState(c.connState.Swap(int32(state))) == state {
		return
	}
	c.logger.Info("Connection state changed", "state", state.String())

	if state == Connected {
		if err := c.mux.OpenChannel(dataChannelID, c.onData); err != nil {
			c.logger.Error("Failed to open data channel", "error", err)
			c.life.fire(eventDegrade)
			c.connState.Store(int32(Disconnected))
		}
		c.emit(AuthEvent{User: c.netConf.User, Password: c.netConf.Password})
	}
	c.emit(ConnectionStateEvent{State: c.ConnectionState()})
}

func (c *Client) emit(e Event) {
	if c.cfg.EventHandler != nil {
		c.cfg.EventHandler(e)
	}
}

func (c *Client) onData(data []byte) {
	if c.cfg.DataHandler != nil {
		c.cfg.DataHandler(data)
	}
}

// channelStateChanged runs on the multiplexer reader goroutine and must not
// take c.mu.
func (c *Client) channelStateChanged(channel int, _, state cmux.ChannelState) {
	if state != cmux.ChannelClosed {
		return
	}
	switch channel {
	case 0:
		c.logger.Warn("Multiplexer link lost")
		c.Disable()
	case dataChannelID:
		if c.ConnectionState() != Disconnected {
			c.setConnState(Connecting)
		}
	}
}
