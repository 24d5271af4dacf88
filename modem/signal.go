package modem

import (
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/ncp/at"
)

// AccessTechnology is the radio access technology, numbered as in 3GPP
// TS 27.007 <AcT>.
type AccessTechnology int

const (
	AccessTechnologyNone            AccessTechnology = -1
	AccessTechnologyGSM             AccessTechnology = 0
	AccessTechnologyGSMCompact      AccessTechnology = 1
	AccessTechnologyUTRAN           AccessTechnology = 2
	AccessTechnologyGSMEdge         AccessTechnology = 3
	AccessTechnologyUTRANHSDPA      AccessTechnology = 4
	AccessTechnologyUTRANHSUPA      AccessTechnology = 5
	AccessTechnologyUTRANHSDPAHSUPA AccessTechnology = 6
	AccessTechnologyLTE             AccessTechnology = 7
	AccessTechnologyLTECatM1        AccessTechnology = 8
	AccessTechnologyLTENBIoT        AccessTechnology = 9
)

func (a AccessTechnology) String() string {
	switch a {
	case AccessTechnologyNone:
		return "none"
	case AccessTechnologyGSM:
		return "GSM"
	case AccessTechnologyGSMCompact:
		return "GSM compact"
	case AccessTechnologyUTRAN:
		return "UTRAN"
	case AccessTechnologyGSMEdge:
		return "GSM EDGE"
	case AccessTechnologyUTRANHSDPA:
		return "UTRAN HSDPA"
	case AccessTechnologyUTRANHSUPA:
		return "UTRAN HSUPA"
	case AccessTechnologyUTRANHSDPAHSUPA:
		return "UTRAN HSDPA+HSUPA"
	case AccessTechnologyLTE:
		return "LTE"
	case AccessTechnologyLTECatM1:
		return "LTE Cat-M1"
	case AccessTechnologyLTENBIoT:
		return "LTE NB-IoT"
	}
	return fmt.Sprintf("AccessTechnology(%d)", int(a))
}

func (a AccessTechnology) valid() bool {
	return a >= AccessTechnologyNone && a <= AccessTechnologyLTENBIoT
}

// isGSMFamily reports 2G and 3G technologies.
func (a AccessTechnology) isGSMFamily() bool {
	return a >= AccessTechnologyGSM && a <= AccessTechnologyUTRANHSDPAHSUPA
}

func (a AccessTechnology) isLTEFamily() bool {
	return a >= AccessTechnologyLTE && a <= AccessTechnologyLTENBIoT
}

// StrengthUnits is the unit of SignalQuality.Strength.
type StrengthUnits int

const (
	StrengthUnitsNone StrengthUnits = iota
	StrengthUnitsRXLEV
	StrengthUnitsRSCP
	StrengthUnitsRSRP
)

func (u StrengthUnits) String() string {
	switch u {
	case StrengthUnitsRXLEV:
		return "RXLEV"
	case StrengthUnitsRSCP:
		return "RSCP"
	case StrengthUnitsRSRP:
		return "RSRP"
	}
	return "none"
}

// QualityUnits is the unit of SignalQuality.Quality.
type QualityUnits int

const (
	QualityUnitsNone QualityUnits = iota
	QualityUnitsRXQUAL
	QualityUnitsMeanBEP
	QualityUnitsECN0
	QualityUnitsRSRQ
)

func (u QualityUnits) String() string {
	switch u {
	case QualityUnitsRXQUAL:
		return "RXQUAL"
	case QualityUnitsMeanBEP:
		return "MEAN_BEP"
	case QualityUnitsECN0:
		return "ECN0"
	case QualityUnitsRSRQ:
		return "RSRQ"
	}
	return "none"
}

// SignalUnknown marks a strength or quality that could not be determined.
const SignalUnknown = 255

// csqUnknown is the "not known or not detectable" value of +CSQ.
const csqUnknown = 99

// SignalQuality is a signal report. Strength and Quality are index values
// in the units of the access technology, as defined by 3GPP TS 27.007
// +CESQ, or SignalUnknown.
type SignalQuality struct {
	AccessTechnology AccessTechnology `json:"access_technology"`
	Strength         int              `json:"strength"`
	StrengthUnits    StrengthUnits    `json:"strength_units"`
	Quality          int              `json:"quality"`
	QualityUnits     QualityUnits     `json:"quality_units"`
}

// newSignalQuality returns an unknown report with the units of act.
func newSignalQuality(act AccessTechnology) SignalQuality {
	q := SignalQuality{AccessTechnology: act, Strength: SignalUnknown, Quality: SignalUnknown}
	switch {
	case act == AccessTechnologyGSM, act == AccessTechnologyGSMCompact, act == AccessTechnologyGSMEdge:
		q.StrengthUnits, q.QualityUnits = StrengthUnitsRXLEV, QualityUnitsRXQUAL
	case act.isGSMFamily():
		q.StrengthUnits, q.QualityUnits = StrengthUnitsRSCP, QualityUnitsECN0
	case act.isLTEFamily():
		q.StrengthUnits, q.QualityUnits = StrengthUnitsRSRP, QualityUnitsRSRQ
	}
	return q
}

// SignalQuality reports the serving cell signal. The client must not be
// disconnected.
func (c *Client) SignalQuality() (SignalQuality, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SignalQuality{}, ErrAlreadyClosed
	}
	if c.ConnectionState() == Disconnected {
		return SignalQuality{}, ErrInvalidState
	}
	if err := c.checkParser(); err != nil {
		return SignalQuality{}, err
	}
	act, err := c.queryOperator()
	if err != nil {
		return SignalQuality{}, err
	}
	q := newSignalQuality(act)

	if c.cfg.Variant == VariantSaraR410 {
		err = c.readCellMeasurements(&q)
	} else {
		err = c.readCSQ(&q)
	}
	if err != nil {
		return SignalQuality{}, err
	}
	return q, nil
}

// readCellMeasurements fills RSRP and RSRQ from +UCGED mode 5.
func (c *Client) readCellMeasurements(q *SignalQuality) error {
	if err := c.parser.Exec("AT+UCGED=5"); err != nil {
		return err
	}
	resp := c.parser.SendCommand("AT+UCGED?")
	for resp.HasNextLine() {
		line, _ := resp.ReadLine()
		if v, ok := parseUCGED(line, "+RSRP"); ok {
			q.Strength = rsrpIndex(v / 100)
		} else if v, ok := parseUCGED(line, "+RSRQ"); ok {
			q.Quality = rsrqIndex(v)
		}
	}
	return resp.ExpectOK()
}

// parseUCGED reads the value of a "+RSRP: <cell>,<earfcn>,"-095.70"" line
// in hundredths.
func parseUCGED(line, prefix string) (int, bool) {
	payload, ok := at.Payload(line, prefix)
	if !ok {
		return 0, false
	}
	fields := at.SplitFields(payload)
	if len(fields) < 3 {
		return 0, false
	}
	whole, frac, _ := strings.Cut(fields[2].Value, ".")
	w, err := strconv.Atoi(whole)
	if err != nil {
		return 0, false
	}
	f := 0
	if frac != "" {
		n, err := strconv.ParseUint(frac, 10, 32)
		if err != nil {
			return 0, false
		}
		f = int(n)
	}
	return w*100 - f, true
}

// rsrpIndex maps RSRP in dBm to the 0..97 index.
func rsrpIndex(rsrp int) int {
	switch {
	case rsrp < -140 && rsrp >= -200:
		return 0
	case rsrp >= -44 && rsrp <= 0:
		return 97
	case rsrp >= -140 && rsrp < -44:
		return rsrp + 141
	}
	return SignalUnknown
}

// rsrqIndex maps RSRQ in hundredths of a dB to the 0..34 index.
func rsrqIndex(rsrq100 int) int {
	const (
		minRSRQ = -1950
		maxRSRQ = -300
	)
	switch {
	case rsrq100 < minRSRQ && rsrq100 >= -2000:
		return 0
	case rsrq100 >= maxRSRQ && rsrq100 <= 0:
		return 34
	case rsrq100 >= minRSRQ && rsrq100 < maxRSRQ:
		return (rsrq100 + 2000) / 50
	}
	return SignalUnknown
}

func (c *Client) readCSQ(q *SignalQuality) error {
	resp := c.parser.SendCommand(at.CmdSignalQuality)
	fields, err := resp.ReadFields("+CSQ")
	if err != nil {
		return err
	}
	if len(fields) < 2 {
		return fmt.Errorf("%w: +CSQ %v", ErrUnexpectedResponse, fields)
	}
	rxlev, err1 := fields[0].Int()
	rxqual, err2 := fields[1].Int()
	if err1 != nil || err2 != nil {
		return fmt.Errorf("%w: +CSQ %v", ErrUnexpectedResponse, fields)
	}
	if err := resp.ExpectOK(); err != nil {
		return err
	}
	convertCSQ(q, rxlev, rxqual)
	return nil
}

// convertCSQ translates +CSQ <rssi>,<ber> into the units of q.
func convertCSQ(q *SignalQuality, rxlev, rxqual int) {
	if q.AccessTechnology == AccessTechnologyGSMEdge {
		q.QualityUnits = QualityUnitsMeanBEP
	}

	switch q.QualityUnits {
	case QualityUnitsRXQUAL, QualityUnitsMeanBEP:
		q.Quality = rxqual
	case QualityUnitsECN0:
		if rxqual != csqUnknown {
			q.Quality = min(7+(7-rxqual)*6, 44)
		} else {
			q.Quality = SignalUnknown
		}
	case QualityUnitsRSRQ:
		if rxqual != csqUnknown {
			q.Quality = rxqual * 34 / 7
		} else {
			q.Quality = SignalUnknown
		}
	}

	switch q.StrengthUnits {
	case StrengthUnitsRXLEV:
		if rxlev != csqUnknown {
			q.Strength = 2 * rxlev
		} else {
			q.Strength = rxlev
		}
	case StrengthUnitsRSCP:
		q.Strength = rscpIndex(rxlev, q.Quality)
	case StrengthUnitsRSRP:
		if rxlev != csqUnknown {
			q.Strength = rxlev * 97 / 31
		} else {
			q.Strength = SignalUnknown
		}
	}
}

// rscpIndex derives the RSCP level from the RSSI and Ec/Io. RSCP is RSSI
// plus Ec/Io, with RSSI taken from the u-blox mapping for a P-CPICH of
// -2 dB.
func rscpIndex(rxlev, ecn0 int) int {
	if ecn0 == SignalUnknown {
		if rxlev != csqUnknown {
			return 3 + 2*rxlev
		}
		return SignalUnknown
	}
	if rxlev == csqUnknown {
		return SignalUnknown
	}
	ecio100 := ecn0*50 - 2450
	rssi100 := -11250 + 500*rxlev/2
	rscp := (rssi100 + ecio100) / 100
	switch {
	case rscp < -120:
		return 0
	case rscp >= -25:
		return 96
	}
	return rscp + 121
}
