package at

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultCommandTimeout bounds a command round-trip when no explicit
	// timeout is given.
	DefaultCommandTimeout = 10 * time.Second
	// DefaultMaxLineLength matches the receive buffer of the command channel.
	DefaultMaxLineLength = 4096

	urcPollTimeout = 10 * time.Millisecond
)

// Stream is a byte stream the parser can be bound to: a raw serial port or
// a multiplexed channel. Read must return (0, nil) once the read timeout
// elapses without data.
type Stream interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// URCHandler receives one complete unsolicited line, prefix included.
type URCHandler func(line string) error

// Clock supplies the time command deadlines are measured against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type urcEntry struct {
	prefix  string
	handler URCHandler
}

// Parser implements the AT command/response exchange over a Stream.
//
// A line matching a registered URC prefix is always handed to its handler,
// also when it arrives in the middle of a command response. Callers therefore
// see the direct reply to, say, AT+CREG? through the +CREG handler.
//
// Parser is not safe for concurrent use; only one command may be in flight.
type Parser struct {
	stream  Stream
	logger  *slog.Logger
	clock   Clock
	timeout time.Duration
	maxLine int

	// buf holds bytes of the current unterminated line
	buf []byte
	// rbuf is the scratch buffer for stream reads
	rbuf []byte
	// lines holds complete lines that were read but not yet consumed
	lines []string
	// echo is the last command sent, dropped once if the modem echoes it
	echo string

	handlers []urcEntry
	// err is the sticky stream error, cleared by ClearError or Bind
	err error
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used for wire level debug output.
func WithLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the clock command deadlines are measured against.
func WithClock(clock Clock) ParserOption {
	return func(p *Parser) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithCommandTimeout sets the default command timeout.
func WithCommandTimeout(d time.Duration) ParserOption {
	return func(p *Parser) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxLineLength sets the longest accepted response line.
func WithMaxLineLength(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.maxLine = n
		}
	}
}

// NewParser creates a Parser bound to stream. stream may be nil and bound
// later with Bind.
func NewParser(stream Stream, opts ...ParserOption) *Parser {
	p := &Parser{
		stream:  stream,
		logger:  slog.Default(),
		clock:   systemClock{},
		timeout: DefaultCommandTimeout,
		maxLine: DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rbuf = make([]byte, 512)
	return p
}

// Bind moves the parser onto another stream. Buffered input and the sticky
// error are discarded; URC handlers are kept.
func (p *Parser) Bind(stream Stream) {
	p.stream = stream
	p.Reset()
	p.err = nil
}

// Stream returns the currently bound stream.
func (p *Parser) Stream() Stream {
	return p.stream
}

// Reset discards any buffered input.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.lines = nil
	p.echo = ""
}

// Err returns the sticky error of the last failed read, write or timeout.
func (p *Parser) Err() error {
	return p.err
}

// ClearError clears the sticky error.
func (p *Parser) ClearError() {
	p.err = nil
}

// AddURCHandler registers handler for lines starting with prefix.
func (p *Parser) AddURCHandler(prefix string, handler URCHandler) error {
	for _, e := range p.handlers {
		if e.prefix == prefix {
			return fmt.Errorf("%w: %q", ErrHandlerExists, prefix)
		}
	}
	p.handlers = append(p.handlers, urcEntry{prefix: prefix, handler: handler})
	return nil
}

// RemoveURCHandler unregisters the handler for prefix, if any.
func (p *Parser) RemoveURCHandler(prefix string) {
	for i, e := range p.handlers {
		if e.prefix == prefix {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return
		}
	}
}

// SendCommand writes a command with the default timeout and returns the
// handle used to read its response.
func (p *Parser) SendCommand(format string, args ...any) *Response {
	return p.SendCommandTimeout(0, format, args...)
}

// SendCommandTimeout writes a command and returns the handle used to read
// its response. A zero timeout selects the default.
func (p *Parser) SendCommandTimeout(timeout time.Duration, format string, args ...any) *Response {
	if timeout <= 0 {
		timeout = p.timeout
	}
	cmd := format
	if len(args) > 0 {
		cmd = fmt.Sprintf(format, args...)
	}
	resp := &Response{p: p, cmd: cmd, deadline: p.clock.Now().Add(timeout)}

	if p.stream == nil {
		resp.err = ErrNoStream
		return resp
	}

	// Anything still buffered belongs to an earlier exchange.
	p.flushPending()

	p.logger.Debug("AT command", "cmd", cmd)
	if _, err := p.stream.Write([]byte(cmd + CR)); err != nil {
		resp.err = p.fail(fmt.Errorf("at: write %q: %w", cmd, err))
		return resp
	}
	p.echo = cmd
	return resp
}

// SendLine writes cmd verbatim with the default timeout. Unlike
// SendCommand it does not treat cmd as a format string.
func (p *Parser) SendLine(cmd string) *Response {
	return p.SendCommandTimeout(0, "%s", cmd)
}

// ExecLine is Exec for a verbatim command.
func (p *Parser) ExecLine(cmd string) error {
	return p.SendLine(cmd).ExpectOK()
}

// ExecCommand sends a command and consumes its response, returning the
// final result. A non-OK result is not an error; err is set only when no
// result could be read.
func (p *Parser) ExecCommand(timeout time.Duration, format string, args ...any) (Result, error) {
	return p.SendCommandTimeout(timeout, format, args...).ReadResult()
}

// Exec sends a command with the default timeout and returns a
// *CommandError when the result is not OK.
func (p *Parser) Exec(format string, args ...any) error {
	return p.SendCommand(format, args...).ExpectOK()
}

// ExecTimeout is Exec with an explicit timeout.
func (p *Parser) ExecTimeout(timeout time.Duration, format string, args ...any) error {
	return p.SendCommandTimeout(timeout, format, args...).ExpectOK()
}

// ProcessURC dispatches buffered and immediately available unsolicited
// lines. It returns as soon as the stream has nothing pending.
func (p *Parser) ProcessURC() error {
	if p.stream == nil {
		return ErrNoStream
	}
	for {
		p.flushPending()
		n, err := p.fill(urcPollTimeout)
		if err != nil {
			return err
		}
		if n == 0 && len(p.lines) == 0 {
			return nil
		}
	}
}

// flushPending dispatches buffered lines and drops the ones nobody claims.
func (p *Parser) flushPending() {
	for len(p.lines) > 0 {
		line := p.lines[0]
		p.lines = p.lines[1:]
		if !p.dispatch(line) {
			p.logger.Debug("Dropping unsolicited line", "line", line)
		}
	}
}

func (p *Parser) dispatch(line string) bool {
	for _, e := range p.handlers {
		if !strings.HasPrefix(line, e.prefix) {
			continue
		}
		if err := e.handler(line); err != nil {
			p.logger.Debug("URC handler failed", "prefix", e.prefix, "line", line, "error", err)
		}
		return true
	}
	return false
}

// nextLine returns the next complete line, reading from the stream until
// deadline.
func (p *Parser) nextLine(deadline time.Time) (string, error) {
	for {
		if len(p.lines) > 0 {
			line := p.lines[0]
			p.lines = p.lines[1:]
			return line, nil
		}
		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			return "", p.fail(ErrTimeout)
		}
		if _, err := p.fill(remaining); err != nil {
			return "", err
		}
	}
}

// fill performs one stream read and splits complete lines off the buffer.
func (p *Parser) fill(timeout time.Duration) (int, error) {
	if err := p.stream.SetReadTimeout(timeout); err != nil {
		return 0, p.fail(fmt.Errorf("at: set read timeout: %w", err))
	}
	n, err := p.stream.Read(p.rbuf)
	if n > 0 {
		p.buf = append(p.buf, p.rbuf[:n]...)
		p.split()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return n, p.fail(fmt.Errorf("at: read: %w", err))
	}
	return n, nil
}

func (p *Parser) split() {
	off := 0
	for off < len(p.buf) {
		advance, token, _ := Splitter(p.buf[off:], false)
		if advance == 0 {
			break
		}
		off += advance
		line := string(token)
		if Classify(line) == TypeEmpty {
			continue
		}
		p.logger.Debug("AT line", "line", line)
		p.lines = append(p.lines, line)
	}
	p.buf = append(p.buf[:0], p.buf[off:]...)
	if len(p.buf) > p.maxLine {
		p.logger.Warn("Discarding oversized line", "length", len(p.buf), "error", ErrLineTooLong)
		p.buf = p.buf[:0]
	}
}

func (p *Parser) fail(err error) error {
	p.err = err
	return err
}
