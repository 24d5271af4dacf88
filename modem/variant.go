package modem

import (
	"fmt"
	"strings"
	"time"

	"i4.energy/across/ncp/cmux"
)

// Variant selects the physical modem family.
type Variant int

const (
	// VariantSaraU201 is the u-blox SARA-U201 2G/3G module.
	VariantSaraU201 Variant = iota
	// VariantSaraR410 is the u-blox SARA-R410M LTE Cat-M1 module.
	VariantSaraR410
)

func (v Variant) String() string {
	switch v {
	case VariantSaraU201:
		return "SARA-U201"
	case VariantSaraR410:
		return "SARA-R410"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts "u201" or "r410", case insensitive, with or without
// the "sara-" prefix.
func ParseVariant(s string) (Variant, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "sara-") {
	case "u201":
		return VariantSaraU201, nil
	case "r410", "r410m":
		return VariantSaraR410, nil
	}
	return 0, fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
}

// SimType selects the SIM slot.
type SimType int

const (
	SimInternal SimType = iota
	SimExternal
)

func (s SimType) String() string {
	if s == SimExternal {
		return "external"
	}
	return "internal"
}

// ParseSimType accepts "internal" or "external", case insensitive.
func ParseSimType(s string) (SimType, error) {
	switch strings.ToLower(s) {
	case "internal", "":
		return SimInternal, nil
	case "external":
		return SimExternal, nil
	}
	return 0, fmt.Errorf("%w: unknown SIM type %q", ErrInvalidConfig, s)
}

const (
	defaultBaudRate  = 115200
	fallbackBaudRate = 460800

	maxMuxFrameSize     = 1509
	atChannelID         = 1
	dataChannelID       = 2
	atChannelBufferSize = 4096

	simSelectPin = 23

	memoryLeakFirmware      = 200
	noHWFlowControlFirmware = 203

	// defaultPDPContext and defaultPDPType describe the data context.
	defaultPDPContext = 1
	defaultPDPType    = "IP"

	ratLTECatM1 = 7
)

// profile holds the per variant timing and protocol parameters.
type profile struct {
	powerOnPulse   time.Duration
	powerOffPulse  time.Duration
	resetPulse     time.Duration
	resetSettle    time.Duration
	resetCommand   string
	resetDelay     time.Duration
	fallbackBaud   int
	muxProbe       time.Duration
	muxProbePeriod time.Duration
	mux            cmux.Config
	// registration lists the query commands polled while connecting
	registration []string
	// enableRegistration lists the commands turning on registration URCs
	enableRegistration []string
	// identity lists the queries filling location area and cell id
	identity []string
}

func profileFor(v Variant) profile {
	if v == VariantSaraR410 {
		return profile{
			powerOnPulse:   150 * time.Millisecond,
			powerOffPulse:  1600 * time.Millisecond,
			resetPulse:     10 * time.Second,
			resetSettle:    time.Second,
			resetCommand:   "AT+CFUN=15",
			resetDelay:     10 * time.Second,
			fallbackBaud:   fallbackBaudRate,
			muxProbe:       20 * time.Second,
			muxProbePeriod: 5 * time.Second,
			mux: cmux.Config{
				MaxFrameSize:           maxMuxFrameSize,
				KeepAlivePeriod:        10 * time.Second,
				KeepAliveMaxMissed:     5,
				UseMSCAsKeepAlive:      true,
				MaxRetransmissions:     3,
				AckTimeout:             2530 * time.Millisecond,
				ControlResponseTimeout: 2540 * time.Millisecond,
			},
			registration:       []string{"AT+CEREG?"},
			enableRegistration: []string{"AT+CEREG=2"},
			identity:           []string{"AT+CEREG?", "AT+CREG?"},
		}
	}
	return profile{
		powerOnPulse:   50 * time.Microsecond,
		powerOffPulse:  1500 * time.Millisecond,
		resetPulse:     50 * time.Millisecond,
		resetSettle:    time.Second,
		resetCommand:   "AT+CFUN=16",
		resetDelay:     time.Second,
		muxProbe:       10 * time.Second,
		muxProbePeriod: time.Second,
		mux: cmux.Config{
			MaxFrameSize:           maxMuxFrameSize,
			KeepAlivePeriod:        5 * time.Second,
			KeepAliveMaxMissed:     5,
			MaxRetransmissions:     10,
			AckTimeout:             100 * time.Millisecond,
			ControlResponseTimeout: 500 * time.Millisecond,
		},
		registration:       []string{"AT+CREG?", "AT+CGREG?"},
		enableRegistration: []string{"AT+CREG=2", "AT+CGREG=2"},
		identity:           []string{"AT+CGREG?", "AT+CREG?"},
	}
}
