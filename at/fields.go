package at

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one comma separated element of an information response.
type Field struct {
	Value  string
	Quoted bool
}

// Uint parses an unquoted decimal field.
func (f Field) Uint() (uint64, error) {
	if f.Quoted || f.Value == "" {
		return 0, fmt.Errorf("%w: field %q is not a number", ErrUnexpectedResponse, f.Value)
	}
	return strconv.ParseUint(f.Value, 10, 32)
}

// Int parses an unquoted signed decimal field.
func (f Field) Int() (int, error) {
	if f.Quoted || f.Value == "" {
		return 0, fmt.Errorf("%w: field %q is not a number", ErrUnexpectedResponse, f.Value)
	}
	return strconv.Atoi(f.Value)
}

// Hex parses a quoted hexadecimal field such as a location area code.
func (f Field) Hex() (uint64, error) {
	if !f.Quoted || f.Value == "" {
		return 0, fmt.Errorf("%w: field %q is not a quoted hex value", ErrUnexpectedResponse, f.Value)
	}
	return strconv.ParseUint(f.Value, 16, 32)
}

// Payload strips "<prefix>:" and surrounding blanks from an information
// response. It reports false when the line carries another prefix.
func Payload(line, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutPrefix(rest, ":")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// SplitFields splits an information response payload on commas that are
// not enclosed in double quotes.
func SplitFields(payload string) []Field {
	if payload == "" {
		return nil
	}
	var (
		fields []Field
		cur    strings.Builder
		quoted bool
		inQ    bool
	)
	for _, r := range payload {
		switch {
		case r == '"':
			inQ = !inQ
			quoted = true
		case r == ',' && !inQ:
			fields = append(fields, Field{Value: strings.TrimSpace(cur.String()), Quoted: quoted})
			cur.Reset()
			quoted = false
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, Field{Value: strings.TrimSpace(cur.String()), Quoted: quoted})
}
