package structwire

import (
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/structwire/meta"
)

type MsgPackOptions struct {
	// IndexKeys keys struct members by field index instead of by name.
	IndexKeys bool

	// EnumAsString writes enums by name instead of by ordinal.
	EnumAsString bool

	Logger *slog.Logger
}

// MsgPackSerializer writes a traversal as nested msgpack maps, one per
// struct, keyed by field name or index. Arrays of structs are msgpack arrays
// of maps, scalar arrays are arrays of scalars, bytes are bin values, and a
// null struct is nil.
//
// Map and array headers are only known once a level closes, so each header
// is inserted in front of its body at that point.
type MsgPackSerializer struct {
	reg  *meta.Registry
	zb   *ZeroCopyBuffer
	opts MsgPackOptions

	bb     bytesBuilder
	enc    *msgpack.Encoder
	levels []mpLevel
	failed bool
}

type mpLevel struct {
	start int
	count int
	array bool
}

var _ Visitor = (*MsgPackSerializer)(nil)

func NewMsgPackSerializer(zb *ZeroCopyBuffer, reg *meta.Registry, opts MsgPackOptions) *MsgPackSerializer {
	return &MsgPackSerializer{reg: reg, zb: zb, opts: opts}
}

func (s *MsgPackSerializer) NotifyError(off int, msg string) {
	s.failed = true
}

func (s *MsgPackSerializer) StartStruct(st *meta.Struct) {
	s.bb.Buf = valueBytesPool.Get().([]byte)[:0]
	s.enc = msgpack.GetEncoder()
	s.enc.Reset(&s.bb)
	s.levels = append(s.levels[:0], mpLevel{})
	s.failed = false
}

func (s *MsgPackSerializer) Finished() {
	defer func() {
		msgpack.PutEncoder(s.enc)
		s.enc = nil
		releaseValueBytes(s.bb.Buf)
		s.bb.Buf = nil
	}()
	if s.failed {
		s.levels = s.levels[:0]
		return
	}
	if len(s.levels) != 1 {
		panic(fmt.Errorf("MsgPackSerializer: Finished with %d open levels", len(s.levels)-1))
	}
	s.close()
	b := s.zb.AddBuffer(len(s.bb.Buf))
	s.zb.DownsizeLastBuffer(copy(b, s.bb.Buf))
}

func (s *MsgPackSerializer) check(err error) {
	if err != nil {
		panic(fmt.Errorf("MsgPackSerializer: %w", err))
	}
}

// member counts a new member of the innermost level and writes its key.
func (s *MsgPackSerializer) member(f *meta.Field) {
	n := len(s.levels)
	if n == 0 {
		panic(fmt.Errorf("MsgPackSerializer: %v outside of a struct", f))
	}
	l := &s.levels[n-1]
	l.count++
	if l.array {
		return
	}
	if s.opts.IndexKeys {
		s.check(s.enc.EncodeInt(int64(f.Index())))
	} else {
		s.check(s.enc.EncodeString(f.Name()))
	}
}

func (s *MsgPackSerializer) open(array bool) {
	s.levels = append(s.levels, mpLevel{start: len(s.bb.Buf), array: array})
}

// close pops the innermost level and puts its header before its body.
func (s *MsgPackSerializer) close() {
	l := s.levels[len(s.levels)-1]
	s.levels = s.levels[:len(s.levels)-1]

	end := len(s.bb.Buf)
	if l.array {
		s.check(s.enc.EncodeArrayLen(l.count))
	} else {
		s.check(s.enc.EncodeMapLen(l.count))
	}
	var hdr [8]byte
	h := copy(hdr[:], s.bb.Buf[end:])
	copy(s.bb.Buf[l.start+h:], s.bb.Buf[l.start:end])
	copy(s.bb.Buf[l.start:], hdr[:h])
}

func (s *MsgPackSerializer) EnterStruct(f *meta.Field) {
	s.member(f)
	s.open(false)
}

func (s *MsgPackSerializer) ExitStruct(f *meta.Field) {
	s.close()
}

func (s *MsgPackSerializer) EnterStructNull(f *meta.Field) {
	s.member(f)
	s.check(s.enc.EncodeNil())
}

func (s *MsgPackSerializer) EnterArrayStruct(f *meta.Field) {
	s.member(f)
	s.open(true)
}

func (s *MsgPackSerializer) ExitArrayStruct(f *meta.Field) {
	s.close()
}

func (s *MsgPackSerializer) EnterValue(f *meta.Field, v Value) {
	s.member(f)
	if !v.Type().IsArray() {
		s.scalar(f, v)
		return
	}
	n := v.Len()
	s.check(s.enc.EncodeArrayLen(n))
	for i := 0; i < n; i++ {
		s.scalar(f, v.Index(i))
	}
}

func (s *MsgPackSerializer) scalar(f *meta.Field, v Value) {
	var err error
	switch v.Type() {
	case meta.TypeBool:
		err = s.enc.EncodeBool(v.Bool())
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		err = s.enc.EncodeInt(v.Int())
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		err = s.enc.EncodeUint(v.Uint())
	case meta.TypeFloat:
		err = s.enc.EncodeFloat32(float32(v.Float()))
	case meta.TypeDouble:
		err = s.enc.EncodeFloat64(v.Float())
	case meta.TypeString:
		err = s.enc.EncodeString(v.Str())
	case meta.TypeBytes:
		err = s.enc.EncodeBytes(v.Bytes())
	case meta.TypeEnum:
		switch {
		case s.opts.EnumAsString && v.IsEnumName():
			err = s.enc.EncodeString(v.Str())
		case s.opts.EnumAsString:
			if e := s.reg.EnumOf(f); e != nil && e.IsValid(int32(v.Int())) {
				err = s.enc.EncodeString(e.NameByValue(int32(v.Int())))
			} else {
				err = s.enc.EncodeInt(v.Int())
			}
		case v.IsEnumName():
			err = s.enc.EncodeInt(int64(s.reg.EnumValueByName(f, v.Str())))
		default:
			err = s.enc.EncodeInt(v.Int())
		}
	default:
		panic(fmt.Errorf("MsgPackSerializer: field %v cannot hold %v", f, v.Type()))
	}
	s.check(err)
}
