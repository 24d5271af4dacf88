package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// Lines are terminated by CR, LF or CRLF. Modems in verbose mode frame every
// response as "\r\n<text>\r\n", so a bare terminator yields an empty token that
// callers are expected to skip.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, CRLF); i >= 0 {
		advance = i + 1
		// Swallow the LF of a CRLF pair so it does not produce a second empty token.
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			return 0, nil, nil
		}
		return advance, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if strings.TrimSpace(line) == "" {
		return TypeEmpty
	}

	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	if strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError) {
		return TypeFinal
	}
	return TypeData
}
