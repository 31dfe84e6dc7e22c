package structwire

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/andreyvit/structwire/meta"
)

type JSONOptions struct {
	// EnumAsString writes enums by name instead of by ordinal.
	EnumAsString bool

	// Indent, when set, puts every member on its own line, indented by this
	// string per nesting level.
	Indent string

	Logger *slog.Logger
}

// JSONSerializer writes a traversal as a JSON object keyed by field names.
// Arrays of structs become arrays of objects, bytes are base64-encoded, and
// non-finite floats are written as the strings "NaN", "Infinity" and
// "-Infinity". A null struct is written as null.
//
// The document is assembled in a scratch buffer and copied into the
// ZeroCopyBuffer on Finished.
type JSONSerializer struct {
	reg  *meta.Registry
	zb   *ZeroCopyBuffer
	opts JSONOptions

	buf    []byte
	levels []jsonLevel
	failed bool
}

type jsonLevel struct {
	members int
	array   bool
}

var _ Visitor = (*JSONSerializer)(nil)

func NewJSONSerializer(zb *ZeroCopyBuffer, reg *meta.Registry, opts JSONOptions) *JSONSerializer {
	return &JSONSerializer{reg: reg, zb: zb, opts: opts}
}

func (s *JSONSerializer) NotifyError(off int, msg string) {
	s.failed = true
}

func (s *JSONSerializer) StartStruct(st *meta.Struct) {
	s.buf = valueBytesPool.Get().([]byte)[:0]
	s.levels = s.levels[:0]
	s.failed = false
	s.open('{')
}

// Finished writes the document, or nothing when the producer reported an
// error.
func (s *JSONSerializer) Finished() {
	defer func() {
		releaseValueBytes(s.buf)
		s.buf = nil
	}()
	if s.failed {
		s.levels = s.levels[:0]
		return
	}
	if len(s.levels) != 1 {
		panic(fmt.Errorf("JSONSerializer: Finished with %d open levels", len(s.levels)-1))
	}
	s.close('}')
	b := s.zb.AddBuffer(len(s.buf))
	s.zb.DownsizeLastBuffer(copy(b, s.buf))
}

func (s *JSONSerializer) newline(depth int) {
	if s.opts.Indent == "" {
		return
	}
	s.buf = append(s.buf, '\n')
	for i := 0; i < depth; i++ {
		s.buf = append(s.buf, s.opts.Indent...)
	}
}

// member starts the next member of the innermost object or array, writing
// the separator and, inside objects, the key.
func (s *JSONSerializer) member(f *meta.Field, keyed bool) {
	n := len(s.levels)
	if n == 0 {
		panic(fmt.Errorf("JSONSerializer: %v outside of a struct", f))
	}
	if s.levels[n-1].members > 0 {
		s.buf = append(s.buf, ',')
	}
	s.levels[n-1].members++
	s.newline(n)
	if keyed {
		s.buf = appendJSONString(s.buf, f.Name())
		s.buf = append(s.buf, ':')
		if s.opts.Indent != "" {
			s.buf = append(s.buf, ' ')
		}
	}
}

func (s *JSONSerializer) open(c byte) {
	s.buf = append(s.buf, c)
	s.levels = append(s.levels, jsonLevel{array: c == '['})
}

func (s *JSONSerializer) close(c byte) {
	n := len(s.levels)
	if s.levels[n-1].members > 0 {
		s.newline(n - 1)
	}
	s.levels = s.levels[:n-1]
	s.buf = append(s.buf, c)
}

func (s *JSONSerializer) EnterStruct(f *meta.Field) {
	s.member(f, !s.levels[len(s.levels)-1].array)
	s.open('{')
}

func (s *JSONSerializer) ExitStruct(f *meta.Field) {
	s.close('}')
}

func (s *JSONSerializer) EnterStructNull(f *meta.Field) {
	s.member(f, true)
	s.buf = append(s.buf, "null"...)
}

func (s *JSONSerializer) EnterArrayStruct(f *meta.Field) {
	s.member(f, true)
	s.open('[')
}

func (s *JSONSerializer) ExitArrayStruct(f *meta.Field) {
	s.close(']')
}

func (s *JSONSerializer) EnterValue(f *meta.Field, v Value) {
	s.member(f, true)
	if !v.Type().IsArray() {
		s.buf = s.appendScalar(s.buf, f, v)
		return
	}
	s.buf = append(s.buf, '[')
	for i, n := 0, v.Len(); i < n; i++ {
		if i > 0 {
			s.buf = append(s.buf, ',')
		}
		s.buf = s.appendScalar(s.buf, f, v.Index(i))
	}
	s.buf = append(s.buf, ']')
}

func (s *JSONSerializer) appendScalar(buf []byte, f *meta.Field, v Value) []byte {
	switch v.Type() {
	case meta.TypeBool:
		return strconv.AppendBool(buf, v.Bool())
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		return strconv.AppendInt(buf, v.Int(), 10)
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		return strconv.AppendUint(buf, v.Uint(), 10)
	case meta.TypeFloat:
		return appendJSONFloat(buf, v.Float(), 32)
	case meta.TypeDouble:
		return appendJSONFloat(buf, v.Float(), 64)
	case meta.TypeString:
		return appendJSONString(buf, v.Str())
	case meta.TypeBytes:
		buf = append(buf, '"')
		buf = base64.StdEncoding.AppendEncode(buf, v.Bytes())
		return append(buf, '"')
	case meta.TypeEnum:
		if s.opts.EnumAsString {
			if v.IsEnumName() {
				return appendJSONString(buf, v.Str())
			}
			if e := s.reg.EnumOf(f); e != nil && e.IsValid(int32(v.Int())) {
				return appendJSONString(buf, e.NameByValue(int32(v.Int())))
			}
			return strconv.AppendInt(buf, v.Int(), 10)
		}
		if v.IsEnumName() {
			return strconv.AppendInt(buf, int64(s.reg.EnumValueByName(f, v.Str())), 10)
		}
		return strconv.AppendInt(buf, v.Int(), 10)
	}
	panic(fmt.Errorf("JSONSerializer: field %v cannot hold %v", f, v.Type()))
}

func appendJSONFloat(buf []byte, f float64, bits int) []byte {
	switch {
	case math.IsNaN(f):
		return append(buf, `"NaN"`...)
	case math.IsInf(f, 1):
		return append(buf, `"Infinity"`...)
	case math.IsInf(f, -1):
		return append(buf, `"-Infinity"`...)
	}
	return strconv.AppendFloat(buf, f, 'g', -1, bits)
}

const hexDigits = "0123456789abcdef"

// appendJSONString appends s as a quoted JSON string. Invalid UTF-8 is
// replaced with U+FFFD.
func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf = append(buf, '\\', c)
			case c == '\n':
				buf = append(buf, '\\', 'n')
			case c == '\r':
				buf = append(buf, '\\', 'r')
			case c == '\t':
				buf = append(buf, '\\', 't')
			case c < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			default:
				buf = append(buf, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, "\ufffd"...)
		} else {
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}
