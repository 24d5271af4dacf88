package modem

import (
	"fmt"
	"time"

	"i4.energy/across/ncp/hal"
)

const (
	powerOnPolls  = 10
	powerOffPolls = 100
	powerPollStep = 100 * time.Millisecond

	// bootSettle is how long after boot a U201 must be left alone before
	// the first power-off pulse is honoured.
	bootSettle = 5 * time.Second

	// Lower bounds after which an R410 with the memory-leak firmware
	// accepts a power-off.
	powerOffAfterRegistration = 20 * time.Second
	powerOffAfterPowerOn      = 30 * time.Second
)

func (c *Client) powerGood() (bool, error) {
	v, err := c.pins.PowerGood.Value()
	if err != nil {
		return false, fmt.Errorf("%w: read power-good: %w", ErrGPIO, err)
	}
	return v == hal.High, nil
}

// pulse drives pin low for d.
func (c *Client) pulse(pin hal.Pin, d time.Duration) error {
	if err := pin.SetValue(hal.Low); err != nil {
		return fmt.Errorf("%w: %w", ErrGPIO, err)
	}
	c.clock.Sleep(d)
	if err := pin.SetValue(hal.High); err != nil {
		return fmt.Errorf("%w: %w", ErrGPIO, err)
	}
	return nil
}

func (c *Client) powerOn() error {
	good, err := c.powerGood()
	if err != nil {
		return err
	}
	if good {
		c.logger.Debug("Modem already powered")
		return nil
	}

	c.logger.Info("Powering modem on")
	if err := c.pulse(c.pins.Power, c.profile.powerOnPulse); err != nil {
		return err
	}
	for range powerOnPolls {
		if good, err = c.powerGood(); err != nil {
			return err
		}
		if good {
			return nil
		}
		c.clock.Sleep(powerPollStep)
	}
	return fmt.Errorf("%w: no power-good after power-on pulse", ErrPowerGood)
}

func (c *Client) powerOff() error {
	powered, err := c.powerGood()
	if err != nil {
		return err
	}

	if c.cfg.Variant == VariantSaraU201 {
		c.firstPowerOff.Do(func() {
			if !powered {
				return
			}
			if d := bootSettle - c.clock.Now().Sub(c.created); d > 0 {
				c.logger.Debug("Waiting for modem boot to settle", "delay", d)
				c.clock.Sleep(d)
			}
		})
	}

	if !powered {
		c.logger.Debug("Modem already off")
		return nil
	}

	c.logger.Info("Powering modem off")
	if err := c.setUARTState(false); err != nil {
		return err
	}
	if c.cfg.Variant == VariantSaraR410 && c.memoryIssue {
		c.waitForPowerOff()
	}
	if err := c.pulse(c.pins.Power, c.profile.powerOffPulse); err != nil {
		return err
	}
	for range powerOffPolls {
		if powered, err = c.powerGood(); err != nil {
			return err
		}
		if !powered {
			return nil
		}
		c.clock.Sleep(powerPollStep)
	}
	return fmt.Errorf("%w: power-good still high after power-off pulse", ErrPowerGood)
}

// hardReset pulses the reset line. A U201 restarts by itself; an R410 is
// left off and is powered back on unless stayOff is set.
func (c *Client) hardReset(stayOff bool) error {
	powered, err := c.powerGood()
	if err != nil {
		return err
	}
	if !powered {
		return fmt.Errorf("%w: modem not powered", ErrInvalidState)
	}

	c.logger.Warn("Hard resetting modem", "stay_off", stayOff)
	if c.cfg.Variant == VariantSaraR410 && c.memoryIssue {
		c.waitForPowerOff()
	}
	if err := c.pulse(c.pins.Reset, c.profile.resetPulse); err != nil {
		return err
	}
	c.clock.Sleep(c.profile.resetSettle)

	if c.cfg.Variant == VariantSaraR410 && !stayOff {
		return c.powerOn()
	}
	return nil
}

// waitForPowerOff holds back a power-off of the memory-leak firmware until
// enough time has passed since registration or power-on, or until the
// modem dropped power-good by itself.
func (c *Client) waitForPowerOff() {
	if c.powerOnTime.IsZero() {
		c.powerOnTime = c.clock.Now()
	}
	for {
		powered, err := c.powerGood()
		if err != nil || !powered {
			break
		}
		now := c.clock.Now()
		if !c.registeredTime.IsZero() {
			if now.Sub(c.registeredTime) >= powerOffAfterRegistration {
				break
			}
		} else if now.Sub(c.powerOnTime) >= powerOffAfterPowerOn {
			break
		}
		c.clock.Sleep(powerPollStep)
	}
	c.powerOnTime = time.Time{}
	c.registeredTime = time.Time{}
}

// setUARTState enables or disables the level shifter between host and
// modem UART. The enable line is active low.
func (c *Client) setUARTState(on bool) error {
	level := hal.High
	if on {
		level = hal.Low
	}
	if err := c.pins.BufferEnable.SetValue(level); err != nil {
		return fmt.Errorf("%w: UART buffer: %w", ErrGPIO, err)
	}
	return nil
}
