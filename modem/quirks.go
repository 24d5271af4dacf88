package modem

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"i4.energy/across/ncp/at"
)

// GPIO modes of the SIM select pin as reported by +UGPIOC.
const (
	gpioModeOutput = 0
	gpioModeSIM    = 255
)

// MNO profiles of +UMNOPROF.
const (
	mnoProfileSWDefault = 0
	mnoProfileSIMSelect = 1
)

// selectSimCard routes the SIM select pin to the configured card, resets
// the modem when the routing changed and waits for the SIM to report
// READY.
func (c *Client) selectSimCard(log *slog.Logger) error {
	mode, value := -1, -1

	resp := c.parser.SendCommand(at.CmdGPIOConfig)
	line, err := resp.ReadLine()
	if err != nil && !errors.Is(err, at.ErrNoMoreLines) {
		return err
	}
	if strings.TrimSpace(line) == "+UGPIOC:" {
		for resp.HasNextLine() {
			line, _ := resp.ReadLine()
			fields := at.SplitFields(line)
			if len(fields) < 2 {
				continue
			}
			pin, err1 := fields[0].Int()
			m, err2 := fields[1].Int()
			if err1 == nil && err2 == nil && pin == simSelectPin {
				mode = m
			}
		}
	}
	if err := resp.ExpectOK(); err != nil {
		return err
	}

	if mode == gpioModeOutput {
		resp := c.parser.SendCommand("AT+UGPIOR=%d", simSelectPin)
		line, err := resp.ReadLine()
		if err != nil && !errors.Is(err, at.ErrNoMoreLines) {
			return err
		}
		if pin, v, ok := parseGPIORead(line); ok && pin == simSelectPin {
			value = v
		}
		if err := resp.ExpectOK(); err != nil {
			return err
		}
	}

	var cmd string
	switch {
	case c.cfg.SimType == SimExternal:
		if mode != gpioModeOutput || value != 0 {
			cmd = fmt.Sprintf("AT+UGPIOC=%d,%d,0", simSelectPin, gpioModeOutput)
		}
	case c.cfg.Variant == VariantSaraU201:
		if mode != gpioModeSIM {
			cmd = fmt.Sprintf("AT+UGPIOC=%d,%d", simSelectPin, gpioModeSIM)
		}
	default:
		if mode != gpioModeOutput || value != 1 {
			cmd = fmt.Sprintf("AT+UGPIOC=%d,%d,1", simSelectPin, gpioModeOutput)
		}
	}

	if cmd != "" {
		log.Info("Switching SIM card", "sim", c.cfg.SimType.String(), "mode", mode, "value", value)
		if err := c.parser.ExecLine(cmd); err != nil {
			return err
		}
		if err := c.resetModem(); err != nil {
			return err
		}
	}

	for attempt := range simCheckAttempts {
		if err = c.checkSimCard(); err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidState) {
			return err
		}
		log.Debug("SIM not ready", "attempt", attempt+1, "error", err)
		c.clock.Sleep(simCheckInterval)
	}
	return err
}

// parseGPIORead accepts "+UGPIOR: <pin>,<value>" and the "+UGPIO:" form
// some firmware uses.
func parseGPIORead(line string) (pin, value int, ok bool) {
	payload, found := at.Payload(line, "+UGPIOR")
	if !found {
		payload, found = at.Payload(line, "+UGPIO")
	}
	if !found {
		return 0, 0, false
	}
	fields := at.SplitFields(strings.ReplaceAll(payload, " ", ","))
	var vals []int
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		v, err := f.Int()
		if err != nil {
			return 0, 0, false
		}
		vals = append(vals, v)
	}
	if len(vals) != 2 {
		return 0, 0, false
	}
	return vals[0], vals[1], true
}

func (c *Client) checkSimCard() error {
	if err := c.checkEnabled(); err != nil {
		return err
	}
	resp := c.parser.SendCommand(at.CmdSimStatus)
	fields, err := resp.ReadFields("+CPIN")
	if err != nil {
		if resp.Err() != nil {
			return resp.Err()
		}
		return fmt.Errorf("%w: %w", ErrSIMNotReady, err)
	}
	if err := resp.ExpectOK(); err != nil {
		return err
	}
	if len(fields) == 0 || fields[0].Value != at.SimReady {
		return fmt.Errorf("%w: %v", ErrSIMNotReady, fields)
	}
	return c.parser.Exec(at.CmdIccid)
}

// resetModem restarts the modem functionality and waits until it answers
// again.
func (c *Client) resetModem() error {
	if err := c.parser.ExecLine(c.profile.resetCommand); err != nil {
		return fmt.Errorf("reset modem: %w", err)
	}
	c.clock.Sleep(c.profile.resetDelay)
	return c.waitATResponse(probeTimeout, probePeriod)
}

// queryAppFirmware parses the application version of ATI9, for example
// "L0.0.00.00.05.06,A.02.00" is 200.
func (c *Client) queryAppFirmware() (int, error) {
	resp := c.parser.SendCommand(at.CmdAppFirmware)
	line, err := resp.ReadLine()
	if err != nil {
		return 0, err
	}
	if err := resp.ExpectOK(); err != nil {
		return 0, err
	}
	return parseAppFirmware(line)
}

func parseAppFirmware(line string) (int, error) {
	_, app, ok := strings.Cut(line, ",")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
	}
	app = strings.TrimLeft(app, "A.")
	var major, minor int
	if _, err := fmt.Sscanf(app, "%d.%d", &major, &minor); err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrUnexpectedResponse, line, err)
	}
	return major*100 + minor, nil
}

// applyQuirks runs the variant specific setup. These commands tune the
// modem but are not required for it to work, so a failure is logged and
// the remaining steps still run.
func (c *Client) applyQuirks(log *slog.Logger) {
	if c.cfg.Variant == VariantSaraR410 {
		c.applyR410Quirks(log)
		return
	}
	// Power saving breaks the multiplexer.
	if err := c.parser.Exec(at.CmdPowerSaving); err != nil {
		log.Warn("Failed to disable power saving", "error", err)
	}
}

func (c *Client) applyR410Quirks(log *slog.Logger) {
	if err := c.selectMNOProfile(log); err != nil {
		log.Warn("Failed to select MNO profile", "error", err)
	}
	if err := c.restrictRAT(log); err != nil {
		log.Warn("Failed to select radio access technology", "error", err)
	}
	if err := c.disableEDRX(log); err != nil {
		log.Warn("Failed to disable eDRX", "error", err)
	}
	if err := c.parser.Exec(at.CmdPSMDisable); err != nil {
		log.Warn("Failed to disable PSM", "error", err)
	}
}

// selectMNOProfile replaces the SW default MNO profile with the SIM
// specific one, which takes a reset to apply.
func (c *Client) selectMNOProfile(log *slog.Logger) error {
	profile := -1
	resp := c.parser.SendCommand(at.CmdMNOProfile)
	if fields, err := resp.ReadFields("+UMNOPROF"); err == nil && len(fields) > 0 {
		profile, _ = fields[0].Int()
	} else if resp.Err() != nil {
		return resp.Err()
	}
	if err := resp.ExpectOK(); err != nil {
		return err
	}
	if profile != mnoProfileSWDefault {
		return nil
	}

	log.Info("Selecting SIM specific MNO profile")
	res, err := c.parser.ExecCommand(0, at.CmdDeregister)
	if err != nil || !res.OK() {
		return err
	}
	if res, err := c.parser.ExecCommand(livenessTimeout, "AT+UMNOPROF=%d", mnoProfileSIMSelect); err != nil || !res.OK() {
		log.Debug("MNO profile change not acknowledged", "result", res.Code.String(), "error", err)
	}
	return c.resetModem()
}

func (c *Client) restrictRAT(log *slog.Logger) error {
	resp := c.parser.SendCommand(at.CmdRATQuery)
	fields, ratErr := resp.ReadFields("+URAT")
	if _, err := resp.ReadResult(); err != nil {
		log.Debug("RAT query failed", "error", err)
	}
	if ratErr != nil || onlyCatM1(fields) {
		return nil
	}

	log.Info("Restricting radio access technology to LTE Cat-M1")
	res, err := c.parser.ExecCommand(0, at.CmdDeregister)
	if err != nil || !res.OK() {
		return err
	}
	return c.parser.Exec("AT+URAT=%d", ratLTECatM1)
}

// onlyCatM1 reports whether every RAT listed by +URAT is Cat-M1. Parsing
// stops at the first field that is not a number.
func onlyCatM1(fields []at.Field) bool {
	for i, f := range fields {
		if i == 3 {
			break
		}
		v, err := f.Uint()
		if err != nil {
			break
		}
		if v != ratLTECatM1 {
			return false
		}
	}
	return true
}

// disableEDRX turns eDRX off for every RAT the modem reports. All RATs are
// tried; the last failure is returned.
func (c *Client) disableEDRX(log *slog.Logger) error {
	resp := c.parser.SendCommand(at.CmdEDRXQuery)
	var acts []uint64
	for resp.HasNextLine() {
		line, _ := resp.ReadLine()
		payload, ok := at.Payload(line, "+CEDRXS")
		if !ok {
			continue
		}
		fields := at.SplitFields(payload)
		if len(fields) == 0 {
			continue
		}
		if act, err := fields[0].Uint(); err == nil {
			acts = append(acts, act)
		}
	}
	if err := resp.ExpectOK(); err != nil {
		return fmt.Errorf("query eDRX: %w", err)
	}

	var lastErr error
	for _, act := range acts {
		res, err := c.parser.ExecCommand(0, "AT+CEDRXS=3,%d", act)
		if err != nil {
			return err
		}
		if !res.OK() {
			log.Debug("eDRX not disabled", "act", act, "result", res.Code.String())
			lastErr = &at.CommandError{Command: fmt.Sprintf("AT+CEDRXS=3,%d", act), Result: res}
		}
	}
	return lastErr
}
