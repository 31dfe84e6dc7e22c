package structwire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/andreyvit/structwire/meta"
)

// MsgPackParser reads msgpack maps written by MsgPackSerializer, or by
// anything else producing maps keyed by field name or index. Members may come
// in any order and are reordered by index before reaching the visitor.
// Unknown keys are skipped. Scalars are coerced to the field types as in
// JSONParser.
type MsgPackParser struct {
	reg    *meta.Registry
	logger *slog.Logger

	data []byte
	r    bytes.Reader
	dec  *msgpack.Decoder
	v    Visitor
}

func NewMsgPackParser(reg *meta.Registry, opts MsgPackOptions) *MsgPackParser {
	return &MsgPackParser{reg: reg, logger: loggerOr(opts.Logger)}
}

func (p *MsgPackParser) Parse(data []byte, typeName string, v Visitor) error {
	st := p.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return parseErrf(data, 0, ErrTypeNotFound, "struct %s", typeName)
	}
	p.data, p.v = data, NewInOrder(v)
	p.r.Reset(data)
	p.dec = msgpack.GetDecoder()
	p.dec.Reset(&p.r)
	defer func() {
		msgpack.PutDecoder(p.dec)
		p.data, p.dec, p.v = nil, nil, nil
	}()

	p.v.StartStruct(st)
	err := p.parseStruct(st)
	if err == nil && p.r.Len() > 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "msgpack: trailing data", slog.String("struct", st.Name()), slog.Int("len", p.r.Len()))
	}
	if err != nil {
		notifyParseError(p.v, err)
	}
	p.v.Finished()
	return err
}

func (p *MsgPackParser) off() int {
	return len(p.data) - p.r.Len()
}

func (p *MsgPackParser) wrap(err error, format string, args ...any) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return parseErrf(p.data, p.off(), ErrTruncated, format, args...)
	}
	args = append(args, err)
	return parseErrf(p.data, p.off(), nil, format+": %v", args...)
}

func (p *MsgPackParser) isNil() (bool, error) {
	c, err := p.dec.PeekCode()
	if err != nil {
		return false, p.wrap(err, "peek")
	}
	if c != msgpcode.Nil {
		return false, nil
	}
	if err := p.dec.DecodeNil(); err != nil {
		return false, p.wrap(err, "nil")
	}
	return true, nil
}

// parseStruct reads one map as a struct of type st. A nil map is an empty
// struct.
func (p *MsgPackParser) parseStruct(st *meta.Struct) error {
	n, err := p.dec.DecodeMapLen()
	if err != nil {
		return p.wrap(err, "%s: map", st.Name())
	}
	for i := 0; i < n; i++ {
		key, err := p.dec.DecodeInterfaceLoose()
		if err != nil {
			return p.wrap(err, "%s: key", st.Name())
		}
		var f *meta.Field
		switch k := key.(type) {
		case string:
			f = fieldByFoldedName(st, k)
		case int64:
			f = st.FieldByIndex(int(k))
		case uint64:
			f = st.FieldByIndex(int(k))
		}
		if f == nil {
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "msgpack: skipped unknown member", slog.String("struct", st.Name()), slog.Any("key", key))
			if err := p.dec.Skip(); err != nil {
				return p.wrap(err, "%s: skip", st.Name())
			}
			continue
		}
		if err := p.parseField(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *MsgPackParser) parseField(f *meta.Field) error {
	null, err := p.isNil()
	if err != nil {
		return err
	}
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		if null {
			return nil
		}
		if err := p.dec.Skip(); err != nil {
			return p.wrap(err, "%v: skip", f)
		}
	case meta.TypeStruct:
		if null {
			p.v.EnterStructNull(f)
			return nil
		}
		st := p.reg.StructOf(f)
		if st == nil {
			return parseErrf(p.data, p.off(), ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		p.v.EnterStruct(f)
		if err := p.parseStruct(st); err != nil {
			return err
		}
		p.v.ExitStruct(f)
	case meta.TypeArrayStruct:
		if null {
			return nil
		}
		st := p.reg.StructOf(f)
		if st == nil {
			return parseErrf(p.data, p.off(), ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		n, err := p.dec.DecodeArrayLen()
		if err != nil {
			return p.wrap(err, "%v: array", f)
		}
		elem := f.Elem()
		p.v.EnterArrayStruct(f)
		for i := 0; i < n; i++ {
			p.v.EnterStruct(elem)
			if err := p.parseStruct(st); err != nil {
				return err
			}
			p.v.ExitStruct(elem)
		}
		p.v.ExitArrayStruct(f)
	default:
		if null {
			return nil
		}
		raw, err := p.dec.DecodeInterfaceLoose()
		if err != nil {
			return p.wrap(err, "%v: value", f)
		}
		items, isList := raw.([]any)
		if !f.Type().IsArray() || !isList {
			if isList && len(items) == 1 {
				raw = items[0]
			}
			p.v.EnterValue(f, p.scalar(f, f.Type(), raw))
			return nil
		}
		elemType := f.Type().Elem()
		elems := make([]Value, len(items))
		for i, item := range items {
			elems[i] = p.scalar(f, elemType, item)
		}
		p.v.EnterValue(f, ArrayFromElems(f.Type(), elems))
	}
	return nil
}

func (p *MsgPackParser) scalar(f *meta.Field, typ meta.TypeID, item any) Value {
	var raw Value
	switch t := item.(type) {
	case bool:
		raw = BoolValue(t)
	case int64:
		raw = Int64Value(t)
	case uint64:
		raw = Uint64Value(t)
	case float32:
		raw = FloatValue(t)
	case float64:
		raw = DoubleValue(t)
	case string:
		raw = StringValue(t)
	case []byte:
		raw = BytesValue(t)
	default:
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "msgpack: unsupported value", slog.String("field", f.String()), slog.Any("value", item))
		return ZeroValue(typ)
	}
	v, ok := convertValue(raw, typ, nil, p.reg.EnumOf(f))
	if !ok {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "msgpack: value coerced to default", slog.String("field", f.String()), slog.String("value", raw.String()))
	}
	return v
}
