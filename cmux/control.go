package cmux

import "fmt"

// Control channel message types with the EA bit set and C/R cleared.
const (
	msgPN    byte = 0x81
	msgPSC   byte = 0x41
	msgCLD   byte = 0xC1
	msgTest  byte = 0x21
	msgFCon  byte = 0xA1
	msgFCoff byte = 0x61
	msgMSC   byte = 0xE1
	msgNSC   byte = 0x11
)

// V.24 signal octet of a modem status command.
const (
	signalFC  byte = 0x02
	signalRTC byte = 0x04
	signalRTR byte = 0x08
	signalIC  byte = 0x40
	signalDV  byte = 0x80

	// signalsReady is what the host asserts on an open channel.
	signalsReady = eaBit | signalRTC | signalRTR | signalDV
)

type controlMsg struct {
	typ     byte
	command bool
	value   []byte
}

func (m controlMsg) encode() []byte {
	t := m.typ | eaBit
	if m.command {
		t |= crBit
	}
	b := make([]byte, 0, 3+len(m.value))
	b = append(b, t)
	if n := len(m.value); n <= 0x7F {
		b = append(b, byte(n<<1)|eaBit)
	} else {
		b = append(b, byte(n<<1), byte(n>>7)<<1|eaBit)
	}
	return append(b, m.value...)
}

// decodeControl splits the information field of a control channel UIH frame
// into messages.
func decodeControl(data []byte) ([]controlMsg, error) {
	var msgs []controlMsg
	for len(data) > 0 {
		if len(data) < 2 {
			return msgs, fmt.Errorf("cmux: truncated control message % X", data)
		}
		typ := data[0]
		length, i := 0, 1
		for shift := 0; ; shift += 7 {
			if i >= len(data) {
				return msgs, fmt.Errorf("cmux: truncated control length % X", data)
			}
			length |= int(data[i]>>1) << shift
			i++
			if data[i-1]&eaBit != 0 {
				break
			}
		}
		if i+length > len(data) {
			return msgs, fmt.Errorf("cmux: control value exceeds frame: %d > %d", length, len(data)-i)
		}
		msgs = append(msgs, controlMsg{
			typ:     typ &^ crBit,
			command: typ&crBit != 0,
			value:   data[i : i+length],
		})
		data = data[i+length:]
	}
	return msgs, nil
}

func mscValue(dlci int, signals byte) []byte {
	return []byte{byte(dlci<<2) | crBit | eaBit, signals}
}

func parseMSC(value []byte) (dlci int, signals byte, ok bool) {
	if len(value) < 2 {
		return 0, 0, false
	}
	return int(value[0] >> 2), value[1], true
}
