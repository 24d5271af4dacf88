package at

import (
	"fmt"
	"time"
)

// Response reads the reply to one command: zero or more data lines
// followed by a final result.
type Response struct {
	p        *Parser
	cmd      string
	deadline time.Time

	next    string
	hasNext bool
	result  Result
	done    bool
	err     error
}

// Command returns the command line this response belongs to.
func (r *Response) Command() string {
	return r.cmd
}

// Err returns the first error seen while reading the response.
func (r *Response) Err() error {
	return r.err
}

func (r *Response) advance() {
	for !r.hasNext && !r.done && r.err == nil {
		line, err := r.p.nextLine(r.deadline)
		if err != nil {
			r.err = fmt.Errorf("%s: %w", r.cmd, err)
			return
		}
		if r.p.echo != "" && line == r.p.echo {
			r.p.echo = ""
			continue
		}
		if r.p.dispatch(line) {
			continue
		}
		if res, ok := ParseResult(line); ok {
			r.result = res
			r.done = true
			r.p.echo = ""
			return
		}
		r.next = line
		r.hasNext = true
	}
}

// HasNextLine reports whether another data line precedes the final result.
func (r *Response) HasNextLine() bool {
	r.advance()
	return r.hasNext
}

// ReadLine returns the next data line. It returns ErrNoMoreLines once the
// final result has been reached.
func (r *Response) ReadLine() (string, error) {
	r.advance()
	if r.hasNext {
		r.hasNext = false
		return r.next, nil
	}
	if r.err != nil {
		return "", r.err
	}
	return "", ErrNoMoreLines
}

// ReadFields reads the next data line, checks that it carries prefix and
// returns its comma separated fields.
func (r *Response) ReadFields(prefix string) ([]Field, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	payload, ok := Payload(line, prefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedResponse, line)
	}
	return SplitFields(payload), nil
}

// ReadResult skips the remaining data lines and returns the final result.
func (r *Response) ReadResult() (Result, error) {
	for {
		r.advance()
		if r.err != nil {
			return Result{}, r.err
		}
		if r.done {
			return r.result, nil
		}
		r.hasNext = false
	}
}

// ExpectOK reads the final result and converts anything but OK into a
// *CommandError.
func (r *Response) ExpectOK() error {
	res, err := r.ReadResult()
	if err != nil {
		return err
	}
	if !res.OK() {
		return &CommandError{Command: r.cmd, Result: res}
	}
	return nil
}

// Lines reads every data line and the final result.
func (r *Response) Lines() ([]string, Result, error) {
	var lines []string
	for r.HasNextLine() {
		line, _ := r.ReadLine()
		lines = append(lines, line)
	}
	res, err := r.ReadResult()
	return lines, res, err
}
