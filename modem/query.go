package modem

import (
	"fmt"
	"strings"

	"i4.energy/across/ncp/at"
)

// FirmwareVersion returns the modem firmware revision (AT+CGMR).
func (c *Client) FirmwareVersion() (string, error) {
	return c.queryLine(at.CmdFirmware)
}

// IMEI returns the modem serial number (AT+CGSN).
func (c *Client) IMEI() (string, error) {
	return c.queryLine(at.CmdImei)
}

// ICCID returns the SIM card number (AT+CCID).
func (c *Client) ICCID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkQuery(); err != nil {
		return "", err
	}
	resp := c.parser.SendCommand(at.CmdIccid)
	fields, err := resp.ReadFields("+CCID")
	if err != nil {
		return "", err
	}
	if err := resp.ExpectOK(); err != nil {
		return "", err
	}
	if len(fields) == 0 || fields[0].Value == "" {
		return "", fmt.Errorf("%w: empty ICCID", ErrUnexpectedResponse)
	}
	return strings.Fields(fields[0].Value)[0], nil
}

func (c *Client) queryLine(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkQuery(); err != nil {
		return "", err
	}
	resp := c.parser.SendLine(cmd)
	line, err := resp.ReadLine()
	if err != nil {
		return "", err
	}
	if err := resp.ExpectOK(); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Client) checkQuery() error {
	if c.closed {
		return ErrAlreadyClosed
	}
	return c.checkParser()
}
