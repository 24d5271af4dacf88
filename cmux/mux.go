// Package cmux implements the host side of the 3GPP TS 27.010 basic option
// multiplexer: one serial link carries a control channel (DLCI 0) and any
// number of logical byte channels.
package cmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Transport is the unframed link the multiplexer runs on. Read must return
// (0, nil) when the read timeout elapses.
type Transport interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// ChannelState is the open/closed state of a DLCI.
type ChannelState int

const (
	ChannelClosed ChannelState = iota
	ChannelOpen
)

func (s ChannelState) String() string {
	if s == ChannelOpen {
		return "open"
	}
	return "closed"
}

// DataHandler receives the information field of every UIH frame on a
// channel. It runs on the reader goroutine and must not block.
type DataHandler func(data []byte)

// StateHandler is notified of channel transitions. It runs on the
// multiplexer's own goroutines and must not call back into Stop.
type StateHandler func(channel int, oldState, newState ChannelState)

type channel struct {
	state    ChannelState
	handler  DataHandler
	remoteFC bool
}

type pendingReq struct {
	kind FrameType
	ch   chan FrameType
}

type ctrlKey struct {
	typ  byte
	dlci int
}

type transition struct {
	dlci     int
	old, new ChannelState
}

// Mux multiplexes logical channels over a Transport.
type Mux struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	// writeMu keeps frames from different channels from interleaving
	writeMu sync.Mutex

	mu           sync.Mutex
	running      bool
	channels     map[int]*channel
	pending      map[int]pendingReq
	ctrlPending  map[ctrlKey]chan controlMsg
	stateHandler StateHandler
	// globalFC is set by FCoff and cleared by FCon
	globalFC   bool
	stop       chan struct{}
	readerDone chan struct{}
	ka         *keepAlive
}

// New creates a stopped multiplexer on transport.
func New(transport Transport, cfg Config) *Mux {
	cfg.setDefaults()
	return &Mux{
		transport: transport,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "cmux"),
	}
}

// Config returns the effective configuration.
func (m *Mux) Config() Config {
	return m.cfg
}

// SetChannelStateHandler installs the channel transition callback.
func (m *Mux) SetChannelStateHandler(h StateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateHandler = h
}

// Running reports whether the control channel is established.
func (m *Mux) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ChannelState returns the state of dlci.
func (m *Mux) ChannelState(dlci int) ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[dlci]; ok {
		return ch.state
	}
	return ChannelClosed
}

// Start establishes the control channel. It blocks until the remote
// acknowledges or the retransmissions are exhausted. On failure the reader
// is stopped, the remote is asked to leave multiplexing mode and no channel
// is left open.
func (m *Mux) Start(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := m.readerDone
	m.mu.Unlock()
	// A session torn down by the remote leaves its reader draining.
	if prev != nil {
		<-prev
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.channels = map[int]*channel{0: {}}
	m.pending = make(map[int]pendingReq)
	m.ctrlPending = make(map[ctrlKey]chan controlMsg)
	m.globalFC = false
	m.stop = make(chan struct{})
	m.readerDone = make(chan struct{})
	stop, done := m.stop, m.readerDone
	m.mu.Unlock()

	defer func() {
		if err != nil {
			m.abort()
		}
	}()

	if err := m.transport.SetReadTimeout(m.cfg.ReadPollInterval); err != nil {
		close(done)
		return fmt.Errorf("cmux: set read timeout: %w", err)
	}
	go m.readLoop(stop, done)

	if err := m.establish(ctx, 0, FrameSABM); err != nil {
		return fmt.Errorf("cmux: open control channel: %w", err)
	}

	if m.cfg.KeepAlivePeriod > 0 {
		ka := newKeepAlive(KeepAliveConfig{
			Period:    m.cfg.KeepAlivePeriod,
			MaxMissed: m.cfg.KeepAliveMaxMissed,
		}, m.probe, m.linkDead)
		ka.onError = func(missed int, err error) {
			m.logger.Warn("Keepalive unanswered", "missed", missed, "error", err)
		}
		m.mu.Lock()
		m.ka = ka
		m.mu.Unlock()
		ka.Start()
	}

	m.logger.Info("Multiplexer started", "max_frame_size", m.cfg.MaxFrameSize)
	return nil
}

// abort tears down a half-negotiated session without notifying. The
// close-down is sent once and not awaited.
func (m *Mux) abort() {
	cld := controlMsg{typ: msgCLD, command: true}
	_ = m.writeFrame(Frame{DLCI: 0, Type: FrameUIH, CR: true, Data: cld.encode()})
	m.mu.Lock()
	done := m.readerDone
	m.mu.Unlock()
	m.shutdown(false)
	if done != nil {
		<-done
	}
}

// Stop closes down the multiplexer session. Channel state callbacks are not
// invoked for a local stop. Stop must not be called from a handler.
func (m *Mux) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	ka, done := m.ka, m.readerDone
	m.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if _, err := m.control(controlMsg{typ: msgCLD, command: true}, -1, 0); err != nil {
		m.logger.Debug("Close-down not acknowledged", "error", err)
	}
	m.shutdown(false)
	<-done
	m.logger.Info("Multiplexer stopped")
	return nil
}

// Wait blocks until the reader of the last session has exited, including
// any state handler it was running. Call it after Stop or once the session
// was torn down by the remote. It must not be called from a handler.
func (m *Mux) Wait() {
	m.mu.Lock()
	done := m.readerDone
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// OpenChannel establishes dlci and installs its data handler.
func (m *Mux) OpenChannel(dlci int, handler DataHandler) error {
	if dlci < 1 || dlci > MaxDLCI-1 {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, dlci)
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	ch, ok := m.channels[dlci]
	if !ok {
		ch = &channel{}
		m.channels[dlci] = ch
	}
	ch.handler = handler
	if ch.state == ChannelOpen {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.establish(context.Background(), dlci, FrameSABM); err != nil {
		return fmt.Errorf("cmux: open channel %d: %w", dlci, err)
	}
	return nil
}

// CloseChannel disconnects dlci.
func (m *Mux) CloseChannel(dlci int) error {
	if dlci < 1 || dlci > MaxDLCI-1 {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, dlci)
	}
	if m.ChannelState(dlci) != ChannelOpen {
		return nil
	}
	err := m.establish(context.Background(), dlci, FrameDISC)
	if err != nil {
		// Unacknowledged: forget the channel locally.
		m.mu.Lock()
		if ch, ok := m.channels[dlci]; ok {
			ch.state = ChannelClosed
		}
		m.mu.Unlock()
		return fmt.Errorf("cmux: close channel %d: %w", dlci, err)
	}
	return nil
}

// ResumeChannel tells the remote the host is ready to receive on dlci by
// sending a modem status command with flow control released.
func (m *Mux) ResumeChannel(dlci int) error {
	return m.signalChannel(dlci, signalsReady)
}

// SuspendChannel asks the remote to stop sending on dlci.
func (m *Mux) SuspendChannel(dlci int) error {
	return m.signalChannel(dlci, signalsReady|signalFC)
}

func (m *Mux) signalChannel(dlci int, signals byte) error {
	if m.ChannelState(dlci) != ChannelOpen {
		return fmt.Errorf("%w: %d", ErrChannelClosed, dlci)
	}
	msg := controlMsg{typ: msgMSC, command: true, value: mscValue(dlci, signals)}
	if _, err := m.control(msg, dlci, m.cfg.MaxRetransmissions); err != nil {
		return fmt.Errorf("cmux: modem status on channel %d: %w", dlci, err)
	}
	return nil
}

// WriteChannel sends data on dlci, split into frames of at most
// MaxFrameSize octets. It returns ErrFlowControl without writing while the
// remote has flow control asserted.
func (m *Mux) WriteChannel(dlci int, data []byte) (int, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return 0, ErrNotRunning
	}
	ch, ok := m.channels[dlci]
	if !ok || ch.state != ChannelOpen || dlci == 0 {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrChannelClosed, dlci)
	}
	if m.globalFC || ch.remoteFC {
		m.mu.Unlock()
		return 0, ErrFlowControl
	}
	m.mu.Unlock()

	written := 0
	for len(data) > 0 {
		n := min(len(data), m.cfg.MaxFrameSize)
		if err := m.writeFrame(Frame{DLCI: dlci, Type: FrameUIH, CR: true, Data: data[:n]}); err != nil {
			return written, err
		}
		written += n
		data = data[n:]
	}
	return written, nil
}

// KeepAliveStats returns the link supervision counters of the running
// session.
func (m *Mux) KeepAliveStats() KeepAliveStats {
	m.mu.Lock()
	ka := m.ka
	m.mu.Unlock()
	if ka == nil {
		return KeepAliveStats{}
	}
	return ka.Stats()
}

// establish sends SABM or DISC on dlci and waits for UA/DM, resending up to
// MaxRetransmissions times.
func (m *Mux) establish(ctx context.Context, dlci int, kind FrameType) error {
	resp := make(chan FrameType, 1)
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.pending[dlci] = pendingReq{kind: kind, ch: resp}
	stop := m.stop
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if req, ok := m.pending[dlci]; ok && req.ch == resp {
			delete(m.pending, dlci)
		}
		m.mu.Unlock()
	}()

	for attempt := 0; attempt <= m.cfg.MaxRetransmissions; attempt++ {
		if err := m.writeFrame(Frame{DLCI: dlci, Type: kind, CR: true, PF: true}); err != nil {
			return err
		}
		timer := time.NewTimer(m.cfg.AckTimeout)
		select {
		case t := <-resp:
			timer.Stop()
			if kind == FrameSABM && t != FrameUA {
				return ErrRejected
			}
			return nil
		case <-timer.C:
			m.logger.Debug("Retransmitting", "frame", kind, "dlci", dlci, "attempt", attempt+1)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stop:
			timer.Stop()
			return ErrNotRunning
		}
	}
	return ErrTimeout
}

// control sends a control command and waits for its response. dlci scopes
// the wait for messages that refer to a channel; -1 otherwise.
func (m *Mux) control(msg controlMsg, dlci, retries int) (controlMsg, error) {
	key := ctrlKey{typ: msg.typ, dlci: dlci}
	resp := make(chan controlMsg, 1)
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return controlMsg{}, ErrNotRunning
	}
	m.ctrlPending[key] = resp
	stop := m.stop
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if ch, ok := m.ctrlPending[key]; ok && ch == resp {
			delete(m.ctrlPending, key)
		}
		m.mu.Unlock()
	}()

	for attempt := 0; attempt <= retries; attempt++ {
		if err := m.writeFrame(Frame{DLCI: 0, Type: FrameUIH, CR: true, Data: msg.encode()}); err != nil {
			return controlMsg{}, err
		}
		timer := time.NewTimer(m.cfg.ControlResponseTimeout)
		select {
		case r := <-resp:
			timer.Stop()
			return r, nil
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return controlMsg{}, ErrNotRunning
		}
	}
	return controlMsg{}, ErrTimeout
}

func (m *Mux) probe() error {
	if m.cfg.UseMSCAsKeepAlive {
		dlci := 0
		m.mu.Lock()
		for id, ch := range m.channels {
			if id > 0 && ch.state == ChannelOpen && (dlci == 0 || id < dlci) {
				dlci = id
			}
		}
		m.mu.Unlock()
		msg := controlMsg{typ: msgMSC, command: true, value: mscValue(dlci, signalsReady)}
		_, err := m.control(msg, dlci, 0)
		return err
	}
	_, err := m.control(controlMsg{typ: msgTest, command: true, value: []byte("NCP")}, -1, 0)
	return err
}

func (m *Mux) linkDead() {
	m.logger.Error("Multiplexer link lost", "missed", m.cfg.KeepAliveMaxMissed)
	m.shutdown(true)
}

// shutdown marks every channel closed. With notify set the state handler
// sees each open channel close, data channels before the control channel.
func (m *Mux) shutdown(notify bool) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	var changes []transition
	for id, ch := range m.channels {
		if ch.state == ChannelOpen {
			changes = append(changes, transition{dlci: id, old: ChannelOpen, new: ChannelClosed})
		}
		ch.state = ChannelClosed
		ch.remoteFC = false
	}
	ka := m.ka
	m.ka = nil
	handler := m.stateHandler
	m.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if !notify {
		return
	}
	slices.SortFunc(changes, func(a, b transition) int { return b.dlci - a.dlci })
	m.notify(handler, changes)
}

func (m *Mux) notify(handler StateHandler, changes []transition) {
	for _, c := range changes {
		m.logger.Debug("Channel state changed", "dlci", c.dlci, "old", c.old, "new", c.new)
		if handler != nil {
			handler(c.dlci, c.old, c.new)
		}
	}
}

func (m *Mux) readLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	dec := NewDecoder(m.cfg.MaxFrameSize)
	buf := make([]byte, 2*(m.cfg.MaxFrameSize+8))
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := m.transport.Read(buf)
		if n > 0 {
			frames, dropped := dec.Decode(buf[:n])
			if dropped > 0 {
				m.logger.Debug("Dropped malformed frames", "count", dropped)
			}
			for _, f := range frames {
				m.handleFrame(f)
			}
		}
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			m.logger.Error("Transport read failed", "error", err)
			m.shutdown(true)
			return
		}
	}
}

func (m *Mux) handleFrame(f Frame) {
	m.logger.Debug("Frame received", "dlci", f.DLCI, "type", f.Type, "length", len(f.Data))

	switch f.Type {
	case FrameUA, FrameDM:
		m.handleAck(f)
	case FrameDISC:
		_ = m.writeFrame(Frame{DLCI: f.DLCI, Type: FrameUA, PF: true})
		if f.DLCI == 0 {
			m.shutdown(true)
			return
		}
		m.setState(f.DLCI, ChannelClosed)
	case FrameSABM:
		// Channels are only opened from the host side.
		_ = m.writeFrame(Frame{DLCI: f.DLCI, Type: FrameDM, PF: true})
	case FrameUIH, FrameUI:
		if f.DLCI == 0 {
			m.handleControl(f.Data)
			return
		}
		m.mu.Lock()
		var handler DataHandler
		if ch, ok := m.channels[f.DLCI]; ok && ch.state == ChannelOpen {
			handler = ch.handler
		}
		m.mu.Unlock()
		if handler != nil && len(f.Data) > 0 {
			handler(f.Data)
		}
	}
}

func (m *Mux) handleAck(f Frame) {
	m.mu.Lock()
	req, ok := m.pending[f.DLCI]
	m.mu.Unlock()

	switch {
	case ok && req.kind == FrameSABM && f.Type == FrameUA:
		m.setState(f.DLCI, ChannelOpen)
	case ok && req.kind == FrameDISC:
		m.setState(f.DLCI, ChannelClosed)
	case !ok && f.Type == FrameDM:
		if f.DLCI == 0 {
			m.shutdown(true)
			return
		}
		m.setState(f.DLCI, ChannelClosed)
	}

	if ok {
		select {
		case req.ch <- f.Type:
		default:
		}
	}
}

func (m *Mux) setState(dlci int, state ChannelState) {
	m.mu.Lock()
	ch, ok := m.channels[dlci]
	if !ok {
		ch = &channel{}
		m.channels[dlci] = ch
	}
	old := ch.state
	ch.state = state
	if state == ChannelClosed {
		ch.remoteFC = false
	}
	handler := m.stateHandler
	m.mu.Unlock()

	if old != state {
		m.notify(handler, []transition{{dlci: dlci, old: old, new: state}})
	}
}

func (m *Mux) handleControl(data []byte) {
	msgs, err := decodeControl(data)
	if err != nil {
		m.logger.Debug("Malformed control message", "error", err)
	}
	for _, msg := range msgs {
		if !msg.command {
			m.deliverControl(msg)
			continue
		}

		reply := controlMsg{typ: msg.typ, value: msg.value}
		closeDown := false
		switch msg.typ {
		case msgMSC:
			if dlci, signals, ok := parseMSC(msg.value); ok {
				m.mu.Lock()
				if ch, ok := m.channels[dlci]; ok {
					ch.remoteFC = signals&signalFC != 0
				}
				m.mu.Unlock()
			}
		case msgFCon:
			m.setGlobalFC(false)
		case msgFCoff:
			m.setGlobalFC(true)
		case msgCLD:
			closeDown = true
		case msgTest, msgPSC:
		default:
			reply = controlMsg{typ: msgNSC, value: []byte{msg.typ | crBit | eaBit}}
		}
		if err := m.writeFrame(Frame{DLCI: 0, Type: FrameUIH, CR: true, Data: reply.encode()}); err != nil {
			m.logger.Debug("Control response failed", "type", msg.typ, "error", err)
		}
		if closeDown {
			m.shutdown(true)
			return
		}
	}
}

func (m *Mux) deliverControl(msg controlMsg) {
	key := ctrlKey{typ: msg.typ, dlci: -1}
	if msg.typ == msgMSC {
		if dlci, _, ok := parseMSC(msg.value); ok {
			key.dlci = dlci
		}
	}
	m.mu.Lock()
	resp, ok := m.ctrlPending[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case resp <- msg:
	default:
	}
}

func (m *Mux) setGlobalFC(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalFC = on
}

func (m *Mux) writeFrame(f Frame) error {
	buf, err := f.Append(nil)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := m.transport.Write(buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrClosedPipe
		}
		return fmt.Errorf("cmux: write %s on %d: %w", f.Type, f.DLCI, err)
	}
	return nil
}
