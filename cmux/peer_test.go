package cmux

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pipeTransport adapts one end of net.Pipe to the Transport read timeout
// contract.
type pipeTransport struct {
	net.Conn
	timeout atomic.Int64
}

func (p *pipeTransport) SetReadTimeout(t time.Duration) error {
	p.timeout.Store(int64(t))
	return nil
}

func (p *pipeTransport) Read(b []byte) (int, error) {
	if t := time.Duration(p.timeout.Load()); t > 0 {
		_ = p.Conn.SetReadDeadline(time.Now().Add(t))
	}
	n, err := p.Conn.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

// fakeModem plays the responder side of the multiplexer.
type fakeModem struct {
	conn net.Conn
	out  chan []byte

	mu       sync.Mutex
	received []Frame
	data     map[int][]byte

	// silent drops every frame without answering
	silent atomic.Bool
	// rejectSABM answers SABM with DM
	rejectSABM atomic.Bool
	// ignoreTest leaves TEST commands unanswered
	ignoreTest atomic.Bool
	// echoData loops UIH data back on the same DLCI
	echoData atomic.Bool
}

func newFakeModem(t *testing.T) (*fakeModem, *pipeTransport) {
	t.Helper()
	host, dev := net.Pipe()
	fm := &fakeModem{
		conn: dev,
		out:  make(chan []byte, 64),
		data: make(map[int][]byte),
	}
	go fm.readLoop()
	go fm.writeLoop()
	t.Cleanup(func() {
		host.Close()
		dev.Close()
	})
	return fm, &pipeTransport{Conn: host}
}

func (fm *fakeModem) readLoop() {
	dec := NewDecoder(MaxFrameSizeLimit)
	buf := make([]byte, 4096)
	for {
		n, err := fm.conn.Read(buf)
		if err != nil {
			close(fm.out)
			return
		}
		frames, _ := dec.Decode(buf[:n])
		for _, f := range frames {
			fm.handle(f)
		}
	}
}

func (fm *fakeModem) writeLoop() {
	for b := range fm.out {
		if _, err := fm.conn.Write(b); err != nil {
			return
		}
	}
}

func (fm *fakeModem) send(f Frame) {
	b, err := f.Append(nil)
	if err != nil {
		panic(err)
	}
	defer func() { _ = recover() }()
	fm.out <- b
}

func (fm *fakeModem) sendControl(msg controlMsg) {
	fm.send(Frame{DLCI: 0, Type: FrameUIH, CR: false, Data: msg.encode()})
}

func (fm *fakeModem) handle(f Frame) {
	fm.mu.Lock()
	fm.received = append(fm.received, f)
	if f.Type == FrameUIH && f.DLCI > 0 {
		fm.data[f.DLCI] = append(fm.data[f.DLCI], f.Data...)
	}
	fm.mu.Unlock()

	if fm.silent.Load() {
		return
	}

	switch f.Type {
	case FrameSABM:
		if fm.rejectSABM.Load() {
			fm.send(Frame{DLCI: f.DLCI, Type: FrameDM, CR: true, PF: true})
			return
		}
		fm.send(Frame{DLCI: f.DLCI, Type: FrameUA, CR: true, PF: true})
	case FrameDISC:
		fm.send(Frame{DLCI: f.DLCI, Type: FrameUA, CR: true, PF: true})
	case FrameUIH:
		if f.DLCI == 0 {
			msgs, _ := decodeControl(f.Data)
			for _, msg := range msgs {
				if !msg.command {
					continue
				}
				if msg.typ == msgTest && fm.ignoreTest.Load() {
					continue
				}
				fm.sendControl(controlMsg{typ: msg.typ, value: msg.value})
			}
			return
		}
		if fm.echoData.Load() {
			fm.send(Frame{DLCI: f.DLCI, Type: FrameUIH, Data: f.Data})
		}
	}
}

func (fm *fakeModem) frames() []Frame {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return append([]Frame(nil), fm.received...)
}

func (fm *fakeModem) dataOn(dlci int) []byte {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return append([]byte(nil), fm.data[dlci]...)
}

func (fm *fakeModem) sawControl(typ byte) bool {
	for _, f := range fm.frames() {
		if f.DLCI != 0 || f.Type != FrameUIH {
			continue
		}
		msgs, _ := decodeControl(f.Data)
		for _, msg := range msgs {
			if msg.typ == typ && msg.command {
				return true
			}
		}
	}
	return false
}

func (fm *fakeModem) count(dlci int, typ FrameType) int {
	n := 0
	for _, f := range fm.frames() {
		if f.DLCI == dlci && f.Type == typ {
			n++
		}
	}
	return n
}

// stateRecorder collects channel transitions.
type stateRecorder struct {
	mu     sync.Mutex
	events []transition
}

func (r *stateRecorder) handler(dlci int, old, new ChannelState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, transition{dlci: dlci, old: old, new: new})
}

func (r *stateRecorder) closed(dlci int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.dlci == dlci && e.new == ChannelClosed {
			return true
		}
	}
	return false
}

func (r *stateRecorder) snapshot() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.events...)
}
