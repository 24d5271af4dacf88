package cmux

import (
	"fmt"
)

// Framing constants of the 3GPP TS 27.010 basic option.
const (
	flagSequence = 0xF9

	eaBit = 0x01
	crBit = 0x02
	pfBit = 0x10

	// MaxDLCI is the highest channel number the address field can carry.
	MaxDLCI = 63

	fcsGood = 0xCF
)

// FrameType is the control field of a frame with the P/F bit cleared.
type FrameType byte

const (
	FrameSABM FrameType = 0x2F
	FrameUA   FrameType = 0x63
	FrameDM   FrameType = 0x0F
	FrameDISC FrameType = 0x43
	FrameUIH  FrameType = 0xEF
	FrameUI   FrameType = 0x03
)

func (t FrameType) String() string {
	switch t {
	case FrameSABM:
		return "SABM"
	case FrameUA:
		return "UA"
	case FrameDM:
		return "DM"
	case FrameDISC:
		return "DISC"
	case FrameUIH:
		return "UIH"
	case FrameUI:
		return "UI"
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

// Frame is one decoded basic option frame.
type Frame struct {
	DLCI int
	Type FrameType
	// CR is the command/response bit of the address field.
	CR bool
	// PF is the poll/final bit of the control field.
	PF   bool
	Data []byte
}

var crcTable = func() (t [256]byte) {
	for i := range t {
		crc := byte(i)
		for range 8 {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xE0
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

func crc8(crc byte, data []byte) byte {
	for _, b := range data {
		crc = crcTable[crc^b]
	}
	return crc
}

// fcs computes the frame check sequence over the given octets.
func fcs(data []byte) byte {
	return 0xFF - crc8(0xFF, data)
}

// Append encodes the frame and appends it to dst, opening and closing flags
// included.
func (f Frame) Append(dst []byte) ([]byte, error) {
	if f.DLCI < 0 || f.DLCI > MaxDLCI {
		return dst, fmt.Errorf("%w: %d", ErrInvalidChannel, f.DLCI)
	}
	if len(f.Data) > MaxFrameSizeLimit {
		return dst, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(f.Data))
	}

	addr := byte(eaBit | f.DLCI<<2)
	if f.CR {
		addr |= crBit
	}
	ctrl := byte(f.Type)
	if f.PF {
		ctrl |= pfBit
	}

	dst = append(dst, flagSequence)
	start := len(dst)
	dst = append(dst, addr, ctrl)
	if n := len(f.Data); n <= 0x7F {
		dst = append(dst, byte(n<<1)|eaBit)
	} else {
		dst = append(dst, byte(n<<1), byte(n>>7))
	}
	check := fcs(dst[start:])
	dst = append(dst, f.Data...)
	if f.Type == FrameUI {
		check = fcs(dst[start:])
	}
	return append(dst, check, flagSequence), nil
}

// Decoder reassembles frames from an unframed byte stream. Frames with a
// bad checksum, an oversized information field or a missing closing flag
// are dropped and the decoder resynchronises on the next flag.
type Decoder struct {
	maxSize int
	buf     []byte
}

// NewDecoder creates a Decoder accepting information fields up to maxSize.
func NewDecoder(maxSize int) *Decoder {
	if maxSize <= 0 || maxSize > MaxFrameSizeLimit {
		maxSize = MaxFrameSizeLimit
	}
	return &Decoder{maxSize: maxSize}
}

// Decode consumes p and returns every frame it completed along with the
// number of malformed frames it discarded.
func (d *Decoder) Decode(p []byte) (frames []Frame, dropped int) {
	d.buf = append(d.buf, p...)
	off := 0
	for {
		// Hunt for the opening flag and skip repeated flags.
		for off < len(d.buf) && d.buf[off] != flagSequence {
			off++
		}
		for off+1 < len(d.buf) && d.buf[off+1] == flagSequence {
			off++
		}
		rest := d.buf[off:]
		if len(rest) < 4 {
			break
		}

		hdrLen := 3
		length := int(rest[3] >> 1)
		if rest[3]&eaBit == 0 {
			if len(rest) < 5 {
				break
			}
			hdrLen = 4
			length |= int(rest[4]) << 7
		}
		if length > d.maxSize {
			dropped++
			off++
			continue
		}
		total := 1 + hdrLen + length + 2
		if len(rest) < total {
			break
		}
		if rest[total-1] != flagSequence {
			dropped++
			off++
			continue
		}

		hdr := rest[1 : 1+hdrLen]
		ctrl := FrameType(hdr[1] &^ pfBit)
		covered := hdr
		if ctrl == FrameUI {
			covered = rest[1 : 1+hdrLen+length]
		}
		if crc8(crc8(0xFF, covered), rest[total-2:total-1]) != fcsGood {
			dropped++
			off++
			continue
		}

		data := make([]byte, length)
		copy(data, rest[1+hdrLen:1+hdrLen+length])
		frames = append(frames, Frame{
			DLCI: int(hdr[0] >> 2),
			Type: ctrl,
			CR:   hdr[0]&crBit != 0,
			PF:   hdr[1]&pfBit != 0,
			Data: data,
		})
		// Leave the closing flag in place; it may open the next frame.
		off += total - 1
	}
	d.buf = append(d.buf[:0], d.buf[off:]...)
	return frames, dropped
}

// Reset discards partially received input.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
