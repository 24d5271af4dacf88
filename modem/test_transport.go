package modem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"i4.energy/across/ncp/cmux"
	"i4.energy/across/ncp/hal"
)

// TestTransport is a test helper that simulates a SARA modem behind its
// UART, control pins and multiplexer.
//
// While the modem talks AT on the raw UART, a Read with nothing pending
// returns at once and advances the fake clock by the read timeout, so
// probing a silent modem costs no real time. In multiplexing mode reads
// block in real time, as the multiplexer reader goroutine expects.
//
// Bytes are only exchanged while the modem is powered, the UART buffer is
// enabled and both sides use the same baud rate. Exported for use in tests.
type TestTransport struct {
	// Control pins wired to the simulated modem.
	Power, Reset, BufferEnable, PowerGood *hal.FakePin

	clock   *hal.FakeClock
	variant Variant
	wake    chan struct{}

	mu          sync.Mutex
	closed      bool
	enabled     bool
	readTimeout time.Duration
	hostBaud    int
	modemBaud   int
	rx          []byte

	powered      bool
	powerFailure bool
	silent       bool
	// powerLowAt and resetLowAt are zero while the pin is released
	powerLowAt time.Time
	resetLowAt time.Time

	muxMode bool
	// draining holds the modem between multiplexer close-down and the next
	// host flush: reads block and stray frames are ignored
	draining bool
	decoder  *cmux.Decoder
	open     map[int]bool
	lineBuf  []byte

	replies  map[string][]string
	commands []string
	data     []byte

	gpioMode, gpioValue int
	mnoProfile          int
	rat                 int
	copsMode            int
	operator            string
	operatorAct         int
	simReady            bool
	reg                 map[string]*testRegistration
	boots               int
	resets              int
}

type testRegistration struct {
	stat    int
	lac, ci string
	act     int
}

// NewTestTransport creates a powered-off simulated modem of variant. The
// modem is registered on every domain by default.
func NewTestTransport(clock *hal.FakeClock, variant Variant) *TestTransport {
	t := &TestTransport{
		Power:        hal.NewFakePin(hal.High),
		Reset:        hal.NewFakePin(hal.High),
		BufferEnable: hal.NewFakePin(hal.High),
		PowerGood:    hal.NewFakePin(hal.Low),
		clock:        clock,
		variant:      variant,
		wake:         make(chan struct{}, 1),
		enabled:      true,
		hostBaud:     defaultBaudRate,
		modemBaud:    defaultBaudRate,
		open:         make(map[int]bool),
		replies:      make(map[string][]string),
		copsMode:     0,
		operator:     "310410",
		simReady:     true,
		mnoProfile:   mnoProfileSIMSelect,
		rat:          ratLTECatM1,
	}
	if variant == VariantSaraR410 {
		t.gpioMode, t.gpioValue = gpioModeOutput, 1
		t.operatorAct = int(AccessTechnologyLTE)
		t.reg = map[string]*testRegistration{
			"+CREG":  {stat: 1, lac: "2F0A", ci: "0A1B2C3D", act: int(AccessTechnologyLTE)},
			"+CGREG": {stat: 0},
			"+CEREG": {stat: 1, lac: "2F0A", ci: "0A1B2C3D", act: int(AccessTechnologyLTE)},
		}
	} else {
		t.gpioMode, t.gpioValue = gpioModeSIM, 0
		t.operatorAct = int(AccessTechnologyUTRAN)
		t.reg = map[string]*testRegistration{
			"+CREG":  {stat: 1, lac: "1A2B", ci: "01C3F0A", act: int(AccessTechnologyUTRAN)},
			"+CGREG": {stat: 1, lac: "1A2C", ci: "01C3F0B", act: int(AccessTechnologyUTRAN)},
			"+CEREG": {stat: 0},
		}
	}
	t.Power.OnSet(t.onPower)
	t.Reset.OnSet(t.onReset)
	return t
}

// Pins returns the pin set to configure the client with.
func (t *TestTransport) Pins() hal.PinSet {
	return hal.PinSet{Power: t.Power, Reset: t.Reset, BufferEnable: t.BufferEnable, PowerGood: t.PowerGood}
}

// Dial implements Dialer by returning t itself.
func (t *TestTransport) Dial(context.Context) (Transport, error) {
	return t, nil
}

func (t *TestTransport) onPower(level int) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if level == hal.Low {
		t.powerLowAt = now
		return
	}
	if t.powerLowAt.IsZero() {
		return
	}
	width := now.Sub(t.powerLowAt)
	t.powerLowAt = time.Time{}
	if t.powerFailure {
		return
	}
	switch {
	case !t.powered:
		t.boot()
	case width >= time.Second && t.bufferDisabled():
		t.shutdown()
	}
}

func (t *TestTransport) onReset(level int) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if level == hal.Low {
		t.resetLowAt = now
		return
	}
	if t.resetLowAt.IsZero() {
		return
	}
	width := now.Sub(t.resetLowAt)
	t.resetLowAt = time.Time{}
	if !t.powered {
		return
	}
	t.resets++
	if t.variant == VariantSaraR410 && width >= 10*time.Second {
		t.shutdown()
		return
	}
	t.boot()
}

func (t *TestTransport) boot() {
	t.powered = true
	t.boots++
	t.muxMode = false
	t.draining = false
	t.open = make(map[int]bool)
	t.lineBuf = nil
	t.rx = nil
	t.PowerGood.Set(hal.High)
}

func (t *TestTransport) shutdown() {
	t.powered = false
	t.muxMode = false
	t.draining = false
	t.lineBuf = nil
	t.rx = nil
	t.PowerGood.Set(hal.Low)
	t.signal()
}

func (t *TestTransport) bufferDisabled() bool {
	v, err := t.BufferEnable.Value()
	return err != nil || v == hal.High
}

func (t *TestTransport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Read implements Transport.
func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	for {
		if t.closed {
			t.mu.Unlock()
			return 0, io.EOF
		}
		if !t.enabled {
			t.mu.Unlock()
			return 0, hal.ErrDisabled
		}
		if len(t.rx) > 0 {
			n := copy(p, t.rx)
			t.rx = t.rx[n:]
			t.mu.Unlock()
			return n, nil
		}
		timeout := t.readTimeout
		if !t.muxMode && !t.draining {
			t.mu.Unlock()
			if timeout > 0 {
				t.clock.Advance(timeout)
			}
			return 0, nil
		}
		t.mu.Unlock()

		if timeout < 0 {
			<-t.wake
		} else {
			select {
			case <-t.wake:
			case <-time.After(timeout):
				return 0, nil
			}
		}
		t.mu.Lock()
	}
}

// Write implements Transport.
func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	if !t.enabled {
		return 0, hal.ErrDisabled
	}
	if !t.powered || t.silent || t.draining || t.bufferDisabled() || t.hostBaud != t.modemBaud {
		return len(p), nil
	}
	if t.muxMode {
		frames, _ := t.decoder.Decode(p)
		for _, f := range frames {
			t.handleFrame(f)
		}
	} else {
		t.handleAT(p, t.sendRaw)
	}
	return len(p), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.signal()
	return nil
}

func (t *TestTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = d
	return nil
}

func (t *TestTransport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hostBaud = baud
	return nil
}

func (t *TestTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rx = nil
	t.draining = false
	return nil
}

func (t *TestTransport) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = on
	t.signal()
}

func (t *TestTransport) sendRaw(line string) {
	t.rx = append(t.rx, line...)
	t.signal()
}

func (t *TestTransport) sendFrame(f cmux.Frame) {
	b, err := f.Append(nil)
	if err != nil {
		panic(err)
	}
	t.rx = append(t.rx, b...)
	t.signal()
}

func (t *TestTransport) sendChannel(line string) {
	t.sendFrame(cmux.Frame{DLCI: atChannelID, Type: cmux.FrameUIH, Data: []byte(line)})
}

func (t *TestTransport) handleFrame(f cmux.Frame) {
	switch f.Type {
	case cmux.FrameSABM:
		t.open[f.DLCI] = true
		t.sendFrame(cmux.Frame{DLCI: f.DLCI, Type: cmux.FrameUA, CR: true, PF: true})
	case cmux.FrameDISC:
		t.sendFrame(cmux.Frame{DLCI: f.DLCI, Type: cmux.FrameUA, CR: true, PF: true})
		delete(t.open, f.DLCI)
		if f.DLCI == 0 {
			t.leaveMux()
		}
	case cmux.FrameUIH:
		switch {
		case f.DLCI == 0 && len(f.Data) > 0:
			reply := append([]byte(nil), f.Data...)
			reply[0] &^= 0x02
			t.sendFrame(cmux.Frame{DLCI: 0, Type: cmux.FrameUIH, Data: reply})
			// CLD command
			if f.Data[0] == 0xC3 {
				t.leaveMux()
			}
		case f.DLCI == atChannelID && t.open[atChannelID]:
			t.handleAT(f.Data, t.sendChannel)
		case f.DLCI == dataChannelID:
			t.data = append(t.data, f.Data...)
		}
	}
}

func (t *TestTransport) leaveMux() {
	t.muxMode = false
	t.draining = true
	t.open = make(map[int]bool)
	t.lineBuf = nil
}

// handleAT collects command lines and answers each complete one.
func (t *TestTransport) handleAT(p []byte, out func(string)) {
	t.lineBuf = append(t.lineBuf, p...)
	for {
		i := strings.IndexByte(string(t.lineBuf), '\r')
		if i < 0 {
			return
		}
		cmd := strings.TrimSpace(string(t.lineBuf[:i]))
		t.lineBuf = t.lineBuf[i+1:]
		if cmd == "" {
			continue
		}
		t.commands = append(t.commands, cmd)
		out(cmd + "\r")
		for _, line := range t.respond(cmd) {
			out("\r\n" + line + "\r\n")
		}
		if strings.HasPrefix(cmd, "AT+CMUX=") {
			t.muxMode = true
			t.decoder = cmux.NewDecoder(maxMuxFrameSize)
			t.lineBuf = nil
			return
		}
		if baud, ok := strings.CutPrefix(cmd, "AT+IPR="); ok {
			fmt.Sscanf(baud, "%d", &t.modemBaud)
		}
	}
}

func (t *TestTransport) respond(cmd string) []string {
	if lines, ok := t.replies[cmd]; ok {
		return lines
	}

	switch {
	case cmd == "AT", cmd == "AT+IFC=2,2", cmd == "AT+CPSMS=0", cmd == "AT+UPSV=0",
		cmd == "AT+UCGED=5", strings.HasPrefix(cmd, "AT+CMUX="), strings.HasPrefix(cmd, "AT+IPR="),
		strings.HasPrefix(cmd, "AT+CGDCONT="), strings.HasPrefix(cmd, "AT+CEDRXS="),
		cmd == "AT+CREG=2", cmd == "AT+CGREG=2", cmd == "AT+CEREG=2":
		return []string{"OK"}
	case cmd == "AT+CFUN=15" || cmd == "AT+CFUN=16":
		t.resets++
		return []string{"OK"}
	case cmd == "AT+UGPIOC?":
		return []string{"+UGPIOC:", "16,255", fmt.Sprintf("%d,%d", simSelectPin, t.gpioMode), "OK"}
	case cmd == fmt.Sprintf("AT+UGPIOR=%d", simSelectPin):
		return []string{fmt.Sprintf("+UGPIOR: %d,%d", simSelectPin, t.gpioValue), "OK"}
	case strings.HasPrefix(cmd, "AT+UGPIOC="):
		var pin, mode, value int
		n, _ := fmt.Sscanf(strings.TrimPrefix(cmd, "AT+UGPIOC="), "%d,%d,%d", &pin, &mode, &value)
		if n < 2 || pin != simSelectPin {
			return []string{"ERROR"}
		}
		t.gpioMode = mode
		if n == 3 {
			t.gpioValue = value
		}
		return []string{"OK"}
	case cmd == "AT+CPIN?":
		if !t.simReady {
			return []string{"+CME ERROR: 10"}
		}
		return []string{"+CPIN: READY", "OK"}
	case cmd == "AT+CCID":
		return []string{"+CCID: 8901410427110000001", "OK"}
	case cmd == "ATI9":
		if t.variant == VariantSaraR410 {
			return []string{"L0.0.00.00.05.08,A.02.04", "OK"}
		}
		return []string{"23.60,A01.01", "OK"}
	case cmd == "AT+UMNOPROF?":
		return []string{fmt.Sprintf("+UMNOPROF: %d", t.mnoProfile), "OK"}
	case strings.HasPrefix(cmd, "AT+UMNOPROF="):
		fmt.Sscanf(strings.TrimPrefix(cmd, "AT+UMNOPROF="), "%d", &t.mnoProfile)
		return []string{"OK"}
	case cmd == "AT+URAT?":
		return []string{fmt.Sprintf("+URAT: %d", t.rat), "OK"}
	case strings.HasPrefix(cmd, "AT+URAT="):
		fmt.Sscanf(strings.TrimPrefix(cmd, "AT+URAT="), "%d", &t.rat)
		return []string{"OK"}
	case cmd == "AT+CEDRXS?":
		if t.variant == VariantSaraR410 {
			return []string{`+CEDRXS: 4,"0101"`, "OK"}
		}
		return []string{"OK"}
	case cmd == "AT+CGMR":
		return []string{"23.60", "OK"}
	case cmd == "AT+CGSN":
		return []string{"352753090000011", "OK"}
	case cmd == "AT+CIMI":
		return []string{"310410123456789", "OK"}
	case cmd == "AT+COPS?":
		if !t.anyRegistered() {
			return []string{fmt.Sprintf("+COPS: %d", t.copsMode), "OK"}
		}
		return []string{fmt.Sprintf(`+COPS: %d,2,"%s",%d`, t.copsMode, t.operator, t.operatorAct), "OK"}
	case cmd == "AT+COPS=3,2":
		return []string{"OK"}
	case cmd == "AT+COPS=0,2":
		t.copsMode = 0
		return []string{"OK"}
	case cmd == "AT+COPS=2,2":
		t.copsMode = 2
		return []string{"OK"}
	case cmd == "AT+CREG?", cmd == "AT+CGREG?", cmd == "AT+CEREG?":
		prefix := strings.TrimSuffix(strings.TrimPrefix(cmd, "AT"), "?")
		return []string{t.registrationLine(prefix, true), "OK"}
	case cmd == "AT+CSQ":
		return []string{"+CSQ: 20,3", "OK"}
	case cmd == "AT+UCGED?":
		return []string{"+UCGED: 5", `+RSRP: 120,6300,"-095.70",`, `+RSRQ: 120,6300,"-10.80",`, "OK"}
	}
	return []string{"ERROR"}
}

func (t *TestTransport) anyRegistered() bool {
	for _, r := range t.reg {
		if r.stat == regStatusHome || r.stat == regStatusRoaming {
			return true
		}
	}
	return false
}

func (t *TestTransport) registrationLine(prefix string, query bool) string {
	r := t.reg[prefix]
	var b strings.Builder
	b.WriteString(prefix + ": ")
	if query {
		b.WriteString("2,")
	}
	fmt.Fprintf(&b, "%d", r.stat)
	if r.lac != "" {
		fmt.Fprintf(&b, `,"%s","%s",%d`, r.lac, r.ci, r.act)
	}
	return b.String()
}

// SetReply overrides the answer to cmd. The last line should be a final
// result code.
func (t *TestTransport) SetReply(cmd string, lines ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[cmd] = lines
}

// SetRegistration changes the status of a registration domain ("+CREG",
// "+CGREG" or "+CEREG") and, if the AT channel is up, reports it with an
// unsolicited line.
func (t *TestTransport) SetRegistration(prefix string, stat int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reg[prefix].stat = stat
	if t.muxMode && t.open[atChannelID] {
		t.sendChannel("\r\n" + t.registrationLine(prefix, false) + "\r\n")
	}
}

// SendURC delivers an unsolicited line on the AT channel.
func (t *TestTransport) SendURC(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.muxMode && t.open[atChannelID] {
		t.sendChannel("\r\n" + line + "\r\n")
	} else {
		t.sendRaw("\r\n" + line + "\r\n")
	}
}

// SendData delivers data on the data channel.
func (t *TestTransport) SendData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFrame(cmux.Frame{DLCI: dataChannelID, Type: cmux.FrameUIH, Data: data})
}

// CloseChannel makes the modem disconnect dlci.
func (t *TestTransport) CloseChannel(dlci int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, dlci)
	t.sendFrame(cmux.Frame{DLCI: dlci, Type: cmux.FrameDISC, PF: true})
	if dlci == 0 {
		t.leaveMux()
	}
}

// SetSilent makes the modem ignore all input.
func (t *TestTransport) SetSilent(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.silent = on
}

// SetPowerFailure makes the modem ignore power pulses.
func (t *TestTransport) SetPowerFailure(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.powerFailure = on
}

// SetSIMReady controls the answer to AT+CPIN?.
func (t *TestTransport) SetSIMReady(ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.simReady = ready
}

// SetModemBaudRate changes the baud rate the modem uses.
func (t *TestTransport) SetModemBaudRate(baud int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modemBaud = baud
}

// SetOperator changes the numeric operator and access technology reported
// by AT+COPS?.
func (t *TestTransport) SetOperator(oper string, act AccessTechnology) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operator, t.operatorAct = oper, int(act)
}

// SetMNOProfile changes the MNO profile reported by AT+UMNOPROF?.
func (t *TestTransport) SetMNOProfile(p int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mnoProfile = p
}

// SetRAT changes the access technology reported by AT+URAT?.
func (t *TestTransport) SetRAT(rat int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rat = rat
}

// Commands returns every command line received, in order.
func (t *TestTransport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

// DataReceived returns what the host sent on the data channel.
func (t *TestTransport) DataReceived() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.data...)
}

// Powered reports whether the simulated modem is on.
func (t *TestTransport) Powered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powered
}

// MuxMode reports whether the modem is multiplexing.
func (t *TestTransport) MuxMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muxMode
}

// Boots returns how often the modem started, including restarts.
func (t *TestTransport) Boots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boots
}

// SIMSelect returns the SIM select pin configuration.
func (t *TestTransport) SIMSelect() (mode, value int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gpioMode, t.gpioValue
}
