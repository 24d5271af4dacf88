package modem

import (
	"fmt"

	"i4.energy/across/ncp/at"
)

// registrationInfo is the content of a +CREG, +CGREG or +CEREG line.
type registrationInfo struct {
	stat        uint64
	hasLocation bool
	lac, ci     uint64
	hasAct      bool
	act         AccessTechnology
}

// parseRegistration decodes a registration line. The read command reply
// "<n>,<stat>[,<lac>,<ci>[,<act>]]" is tried first and the unsolicited form
// "<stat>[,<lac>,<ci>[,<act>]]" second; the line is rejected only if
// neither yields a status.
func parseRegistration(line, prefix string) (registrationInfo, error) {
	payload, ok := at.Payload(line, prefix)
	if !ok {
		return registrationInfo{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
	}
	fields := at.SplitFields(payload)
	if info, ok := registrationFields(fields, 1); ok {
		return info, nil
	}
	if info, ok := registrationFields(fields, 0); ok {
		return info, nil
	}
	return registrationInfo{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
}

// registrationFields decodes fields starting at the status, skipping skip
// leading numeric fields.
func registrationFields(fields []at.Field, skip int) (registrationInfo, bool) {
	if len(fields) <= skip {
		return registrationInfo{}, false
	}
	for _, f := range fields[:skip] {
		if _, err := f.Uint(); err != nil {
			return registrationInfo{}, false
		}
	}
	stat, err := fields[skip].Uint()
	if err != nil {
		return registrationInfo{}, false
	}

	info := registrationInfo{stat: stat}
	rest := fields[skip+1:]
	if len(rest) < 2 {
		return info, true
	}
	lac, err1 := rest[0].Hex()
	ci, err2 := rest[1].Hex()
	if err1 != nil || err2 != nil {
		return info, true
	}
	info.hasLocation, info.lac, info.ci = true, lac, ci
	if len(rest) > 2 {
		if act, err := rest[2].Int(); err == nil {
			info.hasAct, info.act = true, AccessTechnology(act)
		}
	}
	return info, true
}

// registrationHandler returns the URC handler of one registration domain.
// It also consumes the direct replies to the registration queries.
func (c *Client) registrationHandler(domain Domain, prefix string) at.URCHandler {
	return func(line string) error {
		info, err := parseRegistration(line, prefix)
		if err != nil {
			return err
		}
		c.reg.update(domain, info.stat)
		c.logger.Debug("Registration update", "domain", domain.String(), "stat", info.stat,
			"state", c.reg.state[domain].String())
		c.checkRegistrationState()

		if info.hasLocation {
			act := c.reg.act
			if info.hasAct {
				act = info.act
			}
			if c.reg.updateLocation(domain, info.lac, info.ci, act) {
				c.logger.Debug("Location updated", "domain", domain.String(),
					"lac", c.reg.identity.LocationAreaCode, "ci", c.reg.identity.CellID)
			}
		}
		return nil
	}
}
