package modem

import (
	"fmt"
	"time"

	"i4.energy/across/ncp/at"
)

// Domain is a network registration domain.
type Domain int

const (
	DomainCircuit Domain = iota // +CREG
	DomainPacket                // +CGREG
	DomainLTE                   // +CEREG

	domainNone Domain = -1
)

func (d Domain) String() string {
	switch d {
	case DomainCircuit:
		return "circuit"
	case DomainPacket:
		return "packet"
	case DomainLTE:
		return "lte"
	default:
		return "none"
	}
}

// priority orders the domains as sources of location data. Packet and EPS
// data is preferred over circuit switched data.
func (d Domain) priority() int {
	switch d {
	case DomainPacket, DomainLTE:
		return 1
	case DomainCircuit:
		return 0
	default:
		return -1
	}
}

// RegistrationState is the registration status of one domain.
type RegistrationState int

const (
	NotRegistered RegistrationState = iota
	Registered
)

func (s RegistrationState) String() string {
	if s == Registered {
		return "registered"
	}
	return "not registered"
}

// Registration status values of +CREG, +CGREG and +CEREG.
const (
	regStatusHome    = 1
	regStatusRoaming = 5
)

// registration holds the per domain status and the serving cell identity
// reported by the registration URCs.
type registration struct {
	state    [3]RegistrationState
	identity CellularIdentity
	// owner is the domain that filled the location fields
	owner Domain
	// act is the radio access technology of the last operator query
	act AccessTechnology
}

func newRegistration() *registration {
	r := &registration{act: AccessTechnologyNone}
	r.invalidateLocation()
	return r
}

func (r *registration) reset() {
	for i := range r.state {
		r.state[i] = NotRegistered
	}
}

func (r *registration) update(d Domain, stat uint64) {
	if stat == regStatusHome || stat == regStatusRoaming {
		r.state[d] = Registered
	} else {
		r.state[d] = NotRegistered
	}
}

// registered reports whether the modem can carry data: circuit and packet
// switched registration on 2G/3G, or EPS registration on LTE.
func (r *registration) registered() bool {
	return (r.state[DomainCircuit] == Registered && r.state[DomainPacket] == Registered) ||
		r.state[DomainLTE] == Registered
}

func (r *registration) invalidateLocation() {
	r.identity.LocationAreaCode = UnknownLAC
	r.identity.CellID = UnknownCellID
	r.owner = domainNone
}

// updateLocation stores lac and ci reported by domain d. Packet data is
// only taken on 2G/3G and EPS data only on LTE. Once set, the fields are
// only replaced by a domain of higher priority, until invalidateLocation.
func (r *registration) updateLocation(d Domain, lac, ci uint64, act AccessTechnology) bool {
	switch d {
	case DomainPacket:
		if !act.isGSMFamily() {
			return false
		}
	case DomainLTE:
		if !act.isLTEFamily() {
			return false
		}
	}
	if r.owner != domainNone && d.priority() <= r.owner.priority() {
		return false
	}
	r.identity.LocationAreaCode = uint16(lac)
	r.identity.CellID = uint32(ci)
	r.owner = d
	return true
}

// Connect configures the packet data context and starts network
// registration. The connection state moves to Connecting; registration
// progress is tracked by ProcessEvents.
//
// When conf has no APN, the APN is looked up by the SIM's IMSI.
func (c *Client) Connect(conf NetworkConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.ConnectionState() != Disconnected {
		return ErrInvalidState
	}
	if err := c.checkParser(); err != nil {
		return err
	}

	c.resetRegistrationState()
	if err := c.configureAPN(conf); err != nil {
		return fmt.Errorf("configure APN: %w", err)
	}
	if err := c.registerNet(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.checkRegistrationState()
	return nil
}

// Disconnect deregisters from the network.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.disabled() {
		return ErrInvalidState
	}
	if c.ConnectionState() == Disconnected {
		return nil
	}
	if err := c.checkParser(); err != nil {
		return err
	}

	// Deregistration is best effort.
	if res, err := c.parser.ExecCommand(0, at.CmdDeregister); err != nil {
		return err
	} else if !res.OK() {
		c.logger.Warn("Deregistration not acknowledged", "result", res.Code.String())
	}

	c.resetRegistrationState()
	c.setConnState(Disconnected)
	return nil
}

// ProcessEvents dispatches pending URCs and advances registration. It is
// meant to be called periodically. While connecting, registration is
// re-queried every 15 seconds; when the registration timeout passes the
// modem is powered off.
func (c *Client) ProcessEvents() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != NcpStateOn {
		return ErrInvalidState
	}
	if err := c.parser.ProcessURC(); err != nil {
		c.logger.Debug("URC processing", "error", err)
	}
	c.checkRegistrationState()

	now := c.clock.Now()
	if c.ConnectionState() != Connecting || now.Sub(c.regCheck) < registrationCheckInterval {
		return nil
	}
	defer func() {
		c.regCheck = c.clock.Now()
	}()

	if err := c.queryRegistration(); err != nil {
		return err
	}

	if c.ConnectionState() == Connecting && c.clock.Now().Sub(c.regStart) >= c.regTimeout {
		c.logger.Warn("Registration timed out, powering modem off", "timeout", c.regTimeout)
		if err := c.mux.Stop(); err != nil {
			c.logger.Debug("Multiplexer stop", "error", err)
		}
		if err := c.powerOff(); err != nil {
			c.logger.Warn("Power-off failed, resetting", "error", err)
			if err := c.hardReset(true); err != nil {
				c.logger.Error("Hard reset failed", "error", err)
			}
		}
		c.life.fire(eventPowerOff)
		c.setNcpState(NcpStateOff)
	}
	return nil
}

func (c *Client) queryRegistration() error {
	for _, cmd := range c.profile.registration {
		if err := c.parser.ExecLine(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) configureAPN(conf NetworkConfig) error {
	c.netConf = conf
	if !conf.Valid() {
		resp := c.parser.SendCommand(at.CmdImsi)
		imsi, err := resp.ReadLine()
		if err != nil {
			return fmt.Errorf("read IMSI: %w", err)
		}
		if err := resp.ExpectOK(); err != nil {
			return err
		}
		found, ok := c.cfg.APNs.Lookup(imsi)
		if !ok {
			c.logger.Warn("No APN known for IMSI", "imsi", imsi)
		}
		c.netConf = found
	}

	prefix := ""
	if c.netConf.hasCredentials() {
		prefix = "CHAP:"
	}
	return c.parser.Exec(`AT+CGDCONT=%d,"%s","%s%s"`, defaultPDPContext, defaultPDPType, prefix, c.netConf.APN)
}

func (c *Client) registerNet() error {
	for _, cmd := range c.profile.enableRegistration {
		if err := c.parser.ExecLine(cmd); err != nil {
			return err
		}
	}
	c.setConnState(Connecting)
	c.registeredTime = time.Time{}

	resp := c.parser.SendCommand(at.CmdOperatorQuery)
	fields, err := resp.ReadFields("+COPS")
	if err != nil {
		return fmt.Errorf("query operator selection: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty operator selection", ErrUnexpectedResponse)
	}
	mode, err := fields[0].Int()
	if err != nil {
		return err
	}
	if err := resp.ExpectOK(); err != nil {
		return err
	}

	if mode != 0 {
		// Automatic selection may be refused while the modem is still
		// searching; registration progress is tracked by the URCs.
		res, err := c.parser.ExecCommand(autoSelectTimeout, at.CmdAutoRegister)
		if err != nil {
			return err
		}
		if !res.OK() {
			c.logger.Warn("Automatic network selection not acknowledged", "result", res.Code.String())
		}
	}

	if err := c.queryRegistration(); err != nil {
		return err
	}
	now := c.clock.Now()
	c.regStart, c.regCheck = now, now
	return nil
}

func (c *Client) resetRegistrationState() {
	c.reg.reset()
	now := c.clock.Now()
	c.regStart, c.regCheck = now, now
}

// checkRegistrationState derives the connection state from the domain
// states.
func (c *Client) checkRegistrationState() {
	conn := c.ConnectionState()
	if conn == Disconnected {
		return
	}
	if c.reg.registered() {
		if c.memoryIssue && conn != Connected {
			c.registeredTime = c.clock.Now()
		}
		c.setConnState(Connected)
		return
	}
	if conn == Connected {
		c.setConnState(Connecting)
		now := c.clock.Now()
		c.regStart, c.regCheck = now, now
		c.registeredTime = time.Time{}
	}
}
