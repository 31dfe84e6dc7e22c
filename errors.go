package structwire

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeNotFound is wrapped by parse errors caused by a struct or field
	// type name missing from the registry.
	ErrTypeNotFound = errors.New("typename not found")

	// ErrTruncated is wrapped by parse errors caused by input that ends in the
	// middle of a value.
	ErrTruncated = errors.New("end of data")

	// ErrSchemaChanged is returned by Store.Get when a value was written under
	// a different shape of its struct. The destination is still filled in.
	ErrSchemaChanged = errors.New("schema changed")

	// ErrCorrupted is returned by Store.Get for a stored record that fails
	// its checksum or cannot be unpacked.
	ErrCorrupted = errors.New("corrupted record")
)

type ParseError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func parseErrf(data []byte, off int, err error, format string, args ...any) error {
	return &ParseError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// StoreError describes a failure to load or save a single stored value.
type StoreError struct {
	TypeName string
	Key      string
	Msg      string
	Err      error
}

func storeErrf(typeName, key string, err error, format string, args ...any) error {
	return &StoreError{typeName, key, fmt.Sprintf(format, args...), err}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.TypeName)
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
