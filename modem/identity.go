package modem

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"i4.energy/across/ncp/at"
)

const (
	// UnknownLAC is the location area code before the modem reported one.
	UnknownLAC uint16 = 0xFFFF
	// UnknownCellID is the cell id before the modem reported one.
	UnknownCellID uint32 = 0xFFFFFFFF

	// CellularIdentityVersion1 is the only layout version.
	CellularIdentityVersion1 uint16 = 1
)

// IdentityFlags qualifies a CellularIdentity.
type IdentityFlags uint32

// FlagTwoDigitMNC is set when the network code has two digits, so that
// 01 and 001 can be told apart.
const FlagTwoDigitMNC IdentityFlags = 1 << 0

// CellularIdentity is the global identity of the serving cell.
//
// The caller sets Size to the size of its structure; CellularIdentity
// rejects anything smaller than CellularIdentitySize.
type CellularIdentity struct {
	Size              uint16        `json:"size"`
	Version           uint16        `json:"version"`
	MobileCountryCode uint16        `json:"mcc"`
	MobileNetworkCode uint16        `json:"mnc"`
	LocationAreaCode  uint16        `json:"lac"`
	CellID            uint32        `json:"cell_id"`
	Flags             IdentityFlags `json:"flags"`
}

// CellularIdentitySize is the encoded size of a version 1 CellularIdentity.
var CellularIdentitySize = binary.Size(CellularIdentity{})

// NewCellularIdentity returns a version 1 identity sized for the current
// layout.
func NewCellularIdentity() CellularIdentity {
	return CellularIdentity{
		Size:             uint16(CellularIdentitySize),
		Version:          CellularIdentityVersion1,
		LocationAreaCode: UnknownLAC,
		CellID:           UnknownCellID,
	}
}

// MNC returns the network code with its significant leading zeros.
func (id CellularIdentity) MNC() string {
	if id.Flags&FlagTwoDigitMNC != 0 {
		return fmt.Sprintf("%02d", id.MobileNetworkCode)
	}
	return fmt.Sprintf("%03d", id.MobileNetworkCode)
}

// CellularIdentity fills dst with the serving cell identity. The location
// area code and cell id are re-read from the registration status, so the
// client must not be disconnected.
func (c *Client) CellularIdentity(dst *CellularIdentity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.ConnectionState() == Disconnected {
		return ErrInvalidState
	}
	if dst == nil {
		return ErrInvalidArgument
	}
	if int(dst.Size) < CellularIdentitySize {
		return fmt.Errorf("%w: identity size %d, need %d", ErrInvalidArgument, dst.Size, CellularIdentitySize)
	}
	if err := c.checkParser(); err != nil {
		return err
	}

	act, err := c.queryOperator()
	if err != nil {
		return err
	}
	if act == AccessTechnologyNone {
		return fmt.Errorf("%w: no access technology", ErrInvalidState)
	}
	c.reg.act = act
	c.reg.invalidateLocation()
	for _, cmd := range c.profile.identity {
		if err := c.parser.ExecLine(cmd); err != nil {
			return err
		}
	}

	*dst = c.reg.identity
	dst.Size = uint16(CellularIdentitySize)
	dst.Version = CellularIdentityVersion1
	return nil
}

// queryOperator reads the numeric operator and access technology of the
// registered network and stores MCC and MNC in the identity.
func (c *Client) queryOperator() (AccessTechnology, error) {
	if err := c.parser.Exec(at.CmdOperatorFormat); err != nil {
		return AccessTechnologyNone, err
	}

	resp := c.parser.SendCommand(at.CmdOperatorQuery)
	fields, err := resp.ReadFields("+COPS")
	if err != nil {
		if resp.Err() != nil {
			return AccessTechnologyNone, resp.Err()
		}
		return AccessTechnologyNone, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if len(fields) < 4 || !fields[2].Quoted {
		return AccessTechnologyNone, fmt.Errorf("%w: +COPS %v", ErrUnexpectedResponse, fields)
	}
	actValue, err := fields[3].Int()
	if err != nil {
		return AccessTechnologyNone, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if err := resp.ExpectOK(); err != nil {
		return AccessTechnologyNone, err
	}

	mcc, mnc, err := splitOperator(fields[2].Value)
	if err != nil {
		return AccessTechnologyNone, err
	}
	if len(mnc) == 2 {
		c.reg.identity.Flags |= FlagTwoDigitMNC
	} else {
		c.reg.identity.Flags &^= FlagTwoDigitMNC
	}
	mccValue, _ := strconv.ParseUint(mcc, 10, 16)
	mncValue, _ := strconv.ParseUint(mnc, 10, 16)
	c.reg.identity.MobileCountryCode = uint16(mccValue)
	c.reg.identity.MobileNetworkCode = uint16(mncValue)

	act := AccessTechnology(actValue)
	// The R410 reports Cat-M1 as plain LTE.
	if c.cfg.Variant == VariantSaraR410 && act == AccessTechnologyLTE {
		act = AccessTechnologyLTECatM1
	}
	if !act.valid() {
		return AccessTechnologyNone, fmt.Errorf("%w: access technology %d", ErrBadData, actValue)
	}
	return act, nil
}

// splitOperator splits a numeric operator such as "310410" into a three
// digit MCC and a two or three digit MNC.
func splitOperator(oper string) (mcc, mnc string, err error) {
	digits := 0
	for digits < len(oper) && digits < 6 && oper[digits] >= '0' && oper[digits] <= '9' {
		digits++
	}
	if digits < 3 {
		return "", "", fmt.Errorf("%w: operator %q", ErrUnexpectedResponse, oper)
	}
	mcc, mnc = oper[:3], oper[3:digits]
	if len(mnc) != 2 && len(mnc) != 3 {
		return "", "", fmt.Errorf("%w: operator %q", ErrBadData, oper)
	}
	return mcc, mnc, nil
}
