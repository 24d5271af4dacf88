package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"i4.energy/across/ncp/at"
)

const (
	probeTimeout      = 20 * time.Second
	initProbeTimeout  = 10 * time.Second
	probePeriod       = time.Second
	livenessTimeout   = time.Second
	simCheckAttempts  = 10
	simCheckInterval  = time.Second
	autoSelectTimeout = 5 * time.Minute
)

// waitReady brings a powered modem up to multiplexed operation. On failure
// the modem is reset and left off.
func (c *Client) waitReady() error {
	if c.life.ready() {
		return nil
	}

	c.session = uuid.NewString()
	log := c.logger.With("session", c.session)
	log.Info("Starting modem bring-up")
	c.life.fire(eventPowered)

	if err := c.bringUp(log); err != nil {
		log.Error("Modem bring-up failed", "error", err)
		c.setUARTState(false)
		if rerr := c.hardReset(true); rerr != nil {
			log.Warn("Hard reset failed", "error", rerr)
		}
		c.life.fire(eventFail)
		c.setNcpState(NcpStateOff)
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}

func (c *Client) bringUp(log *slog.Logger) error {
	if err := c.mux.Stop(); err != nil {
		log.Debug("Multiplexer stop", "error", err)
	}
	if err := c.transport.SetBaudRate(defaultBaudRate); err != nil {
		return fmt.Errorf("set baud rate: %w", err)
	}
	c.parser.Bind(c.transport)
	if err := c.setUARTState(true); err != nil {
		return err
	}

	c.skipInput()
	err := c.waitATResponse(probeTimeout, probePeriod)
	if err != nil && c.profile.fallbackBaud != 0 && c.checkEnabled() == nil {
		log.Info("No response, probing fallback baud rate", "baud", c.profile.fallbackBaud)
		if err := c.transport.SetBaudRate(c.profile.fallbackBaud); err != nil {
			return fmt.Errorf("set baud rate: %w", err)
		}
		c.skipInput()
		err = c.waitATResponse(probeTimeout, probePeriod)
	}
	if err != nil {
		return err
	}
	if err := c.checkEnabled(); err != nil {
		return err
	}

	c.powerOnTime = c.clock.Now()
	c.registeredTime = time.Time{}
	c.skipInput()
	c.parser.ClearError()
	c.life.fire(eventResponsive)
	log.Debug("Modem answers AT")

	if err := c.initReady(log); err != nil {
		return fmt.Errorf("initialize modem: %w", err)
	}
	return nil
}

// skipInput drops whatever the modem sent so far, including a partially
// read line.
func (c *Client) skipInput() {
	if err := c.transport.Flush(); err != nil {
		c.logger.Debug("Input flush failed", "error", err)
	}
	c.parser.Reset()
}

// waitATResponse probes the modem with AT every period until it answers OK
// or timeout has passed. Errors other than timeouts end the probe early.
func (c *Client) waitATResponse(timeout, period time.Duration) error {
	start := c.clock.Now()
	attempts := max(int(timeout/period), 1)
	for attempt := 1; ; attempt++ {
		res, err := c.parser.ExecCommand(period, at.CmdAt)
		if err == nil && res.OK() {
			return nil
		}
		if err != nil && !errors.Is(err, at.ErrTimeout) {
			return err
		}
		if c.clock.Now().Sub(start) >= timeout || attempt >= attempts {
			break
		}
	}
	return fmt.Errorf("%w after %s", ErrNoResponse, timeout)
}

func (c *Client) initReady(log *slog.Logger) error {
	if err := c.selectSimCard(log); err != nil {
		return fmt.Errorf("select SIM: %w", err)
	}

	// Numeric operator format; result not checked.
	if _, err := c.parser.ExecCommand(0, at.CmdOperatorFormat); err != nil {
		return err
	}

	if c.cfg.Variant == VariantSaraR410 {
		fw, err := c.queryAppFirmware()
		if err != nil {
			log.Warn("Unable to read application firmware version", "error", err)
		}
		c.appFirmware = fw
		c.memoryIssue = fw > 0 && fw == memoryLeakFirmware
		c.flow.configure(fw > 0 && fw <= noHWFlowControlFirmware)
		log.Info("Application firmware", "version", fw, "memory_issue", c.memoryIssue)
	} else {
		c.flow.configure(false)
	}
	if err := c.changeBaudRate(defaultBaudRate); err != nil {
		return err
	}

	c.skipInput()
	if err := c.waitATResponse(initProbeTimeout, probePeriod); err != nil {
		return err
	}
	if err := c.parser.Exec(at.CmdHWFlowControl); err != nil {
		return fmt.Errorf("enable hardware flow control: %w", err)
	}
	if err := c.waitATResponse(initProbeTimeout, probePeriod); err != nil {
		return err
	}

	c.applyQuirks(log)
	if err := c.checkEnabled(); err != nil {
		return err
	}

	if err := c.parser.Exec("AT+CMUX=0,0,,%d,,,,,", maxMuxFrameSize); err != nil {
		return fmt.Errorf("enter multiplexing mode: %w", err)
	}
	return c.startMux(log)
}

// startMux starts the multiplexer on the UART and moves the parser onto
// the AT channel. The multiplexer is stopped again if any step fails.
func (c *Client) startMux(log *slog.Logger) (err error) {
	defer func() {
		if err != nil {
			if serr := c.mux.Stop(); serr != nil {
				log.Debug("Multiplexer stop", "error", serr)
			}
		}
	}()

	if err := c.mux.Start(context.Background()); err != nil {
		return fmt.Errorf("start multiplexer: %w", err)
	}
	if err := c.atChannel.Open(); err != nil {
		return fmt.Errorf("open AT channel: %w", err)
	}
	if err := c.atChannel.Resume(); err != nil {
		log.Debug("Resume AT channel", "error", err)
	}
	c.parser.Bind(c.atChannel)
	c.parser.Reset()

	if err := c.waitATResponse(c.profile.muxProbe, c.profile.muxProbePeriod); err != nil {
		return fmt.Errorf("probe AT channel: %w", err)
	}
	if err := c.checkEnabled(); err != nil {
		return err
	}

	c.life.fire(eventInitialized)
	c.setNcpState(NcpStateOn)
	log.Info("Modem ready")
	return nil
}

func (c *Client) changeBaudRate(baud int) error {
	if err := c.parser.Exec("AT+IPR=%d", baud); err != nil {
		return fmt.Errorf("change baud rate: %w", err)
	}
	return c.transport.SetBaudRate(baud)
}

// checkParser verifies the AT channel before a command sequence. A parser
// that saw an I/O error is probed once; if the modem does not answer, the
// full bring-up runs again.
func (c *Client) checkParser() error {
	if c.State() != NcpStateOn {
		return ErrInvalidState
	}
	if c.life.ready() && c.parser.Err() != nil {
		res, err := c.parser.ExecCommand(livenessTimeout, at.CmdAt)
		if err == nil && res.OK() {
			c.parser.ClearError()
		} else {
			c.logger.Warn("Modem failed liveness probe", "error", err)
			c.life.fire(eventDegrade)
		}
	}
	return c.waitReady()
}
