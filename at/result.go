package at

import (
	"strconv"
	"strings"
)

// ResultCode is the final result of a command.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultError
	ResultCMEError
	ResultCMSError
	ResultNoCarrier
	ResultNoDialtone
	ResultBusy
	ResultNoAnswer
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return OK
	case ResultError:
		return ERROR
	case ResultCMEError:
		return "CME ERROR"
	case ResultCMSError:
		return "CMS ERROR"
	case ResultNoCarrier:
		return NoCarrier
	case ResultNoDialtone:
		return NoDialtone
	case ResultBusy:
		return Busy
	case ResultNoAnswer:
		return NoAnswer
	}
	return "UNKNOWN"
}

// Result is a decoded final result line. Value carries the numeric error of
// +CME ERROR and +CMS ERROR results and is -1 otherwise, or when the modem
// reported a verbose (textual) error.
type Result struct {
	Code  ResultCode
	Value int
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Code == ResultOK
}

// ParseResult decodes a final result line. The second return value is false
// for lines that are not final results.
func ParseResult(line string) (Result, bool) {
	if Classify(line) != TypeFinal {
		return Result{}, false
	}

	switch line {
	case OK:
		return Result{Code: ResultOK, Value: -1}, true
	case ERROR:
		return Result{Code: ResultError, Value: -1}, true
	case NoCarrier:
		return Result{Code: ResultNoCarrier, Value: -1}, true
	case NoDialtone:
		return Result{Code: ResultNoDialtone, Value: -1}, true
	case Busy:
		return Result{Code: ResultBusy, Value: -1}, true
	case NoAnswer:
		return Result{Code: ResultNoAnswer, Value: -1}, true
	}

	code := ResultCMEError
	rest := strings.TrimPrefix(line, CmeError)
	if strings.HasPrefix(line, CmsError) {
		code = ResultCMSError
		rest = strings.TrimPrefix(line, CmsError)
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		v = -1
	}
	return Result{Code: code, Value: v}, true
}
