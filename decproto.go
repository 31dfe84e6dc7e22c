package structwire

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/andreyvit/structwire/meta"
)

// ProtoParser reads the protobuf wire format produced by ProtoSerializer and
// replays it as a traversal.
//
// Entries of a struct body are collected first and emitted in field index
// order, so repeated entries of an array field are merged into one value
// and consecutive entries of an array-of-structs field become one array.
// Unknown field ids, including the padding field, are skipped, and so are
// groups. Values with an unexpected wire type are skipped too.
type ProtoParser struct {
	reg    *meta.Registry
	logger *slog.Logger

	data    []byte
	v       Visitor
	entries []protoEntry
}

type protoEntry struct {
	field      *meta.Field
	wt         protowire.Type
	num        uint64
	start, end int
}

func NewProtoParser(reg *meta.Registry, opts ProtoOptions) *ProtoParser {
	return &ProtoParser{reg: reg, logger: loggerOr(opts.Logger)}
}

// Parse emits the traversal of data, a serialized struct of type typeName,
// to v. On failure v receives NotifyError followed by Finished, and the
// returned *ParseError wraps ErrTypeNotFound or ErrTruncated when applicable.
func (p *ProtoParser) Parse(data []byte, typeName string, v Visitor) error {
	st := p.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return parseErrf(data, 0, ErrTypeNotFound, "struct %s", typeName)
	}
	p.data, p.v = data, v
	defer func() {
		p.data, p.v = nil, nil
		p.entries = p.entries[:0]
	}()

	v.StartStruct(st)
	err := p.parseBody(st, 0, len(data))
	if err != nil {
		notifyParseError(v, err)
	}
	v.Finished()
	return err
}

// wireErr converts a negative length returned by protowire into a
// *ParseError at off.
func wireErr(data []byte, off, n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return parseErrf(data, off, ErrTruncated, "%v", err)
	}
	return parseErrf(data, off, nil, "%v", err)
}

// notifyParseError reports err to v using the offset and sentinel message of
// a *ParseError when there is one.
func notifyParseError(v Visitor, err error) {
	var pe *ParseError
	if !errors.As(err, &pe) {
		v.NotifyError(0, err.Error())
		return
	}
	if pe.Err != nil {
		v.NotifyError(pe.Off, pe.Err.Error())
	} else {
		v.NotifyError(pe.Off, pe.Msg)
	}
}

func (p *ProtoParser) parseBody(st *meta.Struct, start, end int) error {
	mark := len(p.entries)
	defer func() {
		p.entries = p.entries[:mark]
	}()

	for off := start; off < end; {
		id, wt, n := protowire.ConsumeTag(p.data[off:end])
		if n < 0 {
			return wireErr(p.data, off, n)
		}
		off += n
		val := p.data[off:end]
		e := protoEntry{wt: wt}
		switch wt {
		case protowire.VarintType:
			e.num, n = protowire.ConsumeVarint(val)
		case protowire.Fixed64Type:
			e.num, n = protowire.ConsumeFixed64(val)
		case protowire.Fixed32Type:
			var u uint32
			u, n = protowire.ConsumeFixed32(val)
			e.num = uint64(u)
		case protowire.BytesType:
			var b []byte
			b, n = protowire.ConsumeBytes(val)
			e.start, e.end = off+n-len(b), off+n
		default:
			n = protowire.ConsumeFieldValue(id, wt, val)
		}
		if n < 0 {
			return wireErr(p.data, off, n)
		}
		off += n
		if wt == protowire.StartGroupType {
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "proto: skipped group", slog.String("struct", st.Name()), slog.Int("id", int(id)))
			continue
		}
		if id > protowire.Number(st.NumFields()) {
			if id != paddingID {
				p.logger.LogAttrs(context.Background(), slog.LevelDebug, "proto: skipped unknown field", slog.String("struct", st.Name()), slog.Int("id", int(id)))
			}
			continue
		}
		e.field = st.FieldByIndex(int(id - 1))
		p.entries = append(p.entries, e)
	}

	n := len(p.entries)
	slices.SortStableFunc(p.entries[mark:n], func(a, b protoEntry) int {
		return cmp.Compare(a.field.Index(), b.field.Index())
	})
	for i := mark; i < n; {
		f := p.entries[i].field
		j := i + 1
		for j < n && p.entries[j].field == f {
			j++
		}
		if err := p.emitField(f, p.entries[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

func (p *ProtoParser) emitField(f *meta.Field, es []protoEntry) error {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return nil
	case meta.TypeStruct:
		e := es[len(es)-1]
		if e.wt != protowire.BytesType {
			p.skipped(f, e.wt)
			return nil
		}
		st := p.reg.StructOf(f)
		if st == nil {
			return parseErrf(p.data, e.start, ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		p.v.EnterStruct(f)
		if err := p.parseBody(st, e.start, e.end); err != nil {
			return err
		}
		p.v.ExitStruct(f)
	case meta.TypeArrayStruct:
		st := p.reg.StructOf(f)
		if st == nil {
			return parseErrf(p.data, es[0].start, ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		p.v.EnterArrayStruct(f)
		for _, e := range es {
			if e.wt != protowire.BytesType {
				p.skipped(f, e.wt)
				continue
			}
			p.v.EnterStruct(f.Elem())
			if err := p.parseBody(st, e.start, e.end); err != nil {
				return err
			}
			p.v.ExitStruct(f.Elem())
		}
		p.v.ExitArrayStruct(f)
	default:
		if f.Type().IsArray() {
			v, err := p.decodeArray(f, es)
			if err != nil {
				return err
			}
			p.v.EnterValue(f, v)
			return nil
		}
		e := es[len(es)-1]
		if v, ok := p.decodeScalar(f, e); ok {
			p.v.EnterValue(f, v)
		} else {
			p.skipped(f, e.wt)
		}
	}
	return nil
}

func (p *ProtoParser) skipped(f *meta.Field, wt protowire.Type) {
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "proto: skipped value with unexpected wire type", slog.String("field", f.String()), slog.Int("wt", int(wt)))
}

func (p *ProtoParser) decodeScalar(f *meta.Field, e protoEntry) (Value, bool) {
	typ := f.Type()
	switch typ {
	case meta.TypeString:
		if e.wt == protowire.BytesType {
			return StringValue(string(p.data[e.start:e.end])), true
		}
	case meta.TypeBytes:
		if e.wt == protowire.BytesType {
			return BytesValue(p.data[e.start:e.end]), true
		}
	case meta.TypeBool:
		if e.wt != protowire.BytesType {
			return BoolValue(e.num != 0), true
		}
	case meta.TypeEnum:
		if e.wt == protowire.VarintType {
			return EnumValue(int32(e.num)), true
		}
	case meta.TypeFloat:
		switch e.wt {
		case protowire.Fixed32Type:
			return FloatValue(math.Float32frombits(uint32(e.num))), true
		case protowire.Fixed64Type:
			return FloatValue(float32(math.Float64frombits(e.num))), true
		}
	case meta.TypeDouble:
		switch e.wt {
		case protowire.Fixed32Type:
			return DoubleValue(float64(math.Float32frombits(uint32(e.num)))), true
		case protowire.Fixed64Type:
			return DoubleValue(math.Float64frombits(e.num)), true
		}
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		switch e.wt {
		case protowire.VarintType:
			if f.Has(meta.FlagProtoZigzag) {
				return signedValue(typ, protowire.DecodeZigZag(e.num)), true
			}
			return signedValue(typ, int64(e.num)), true
		case protowire.Fixed32Type:
			return signedValue(typ, int64(int32(uint32(e.num)))), true
		case protowire.Fixed64Type:
			return signedValue(typ, int64(e.num)), true
		}
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		if e.wt != protowire.BytesType {
			return unsignedValue(typ, e.num), true
		}
	}
	return Value{}, false
}

// packedWidth returns the element width of a packed numeric array, or 0 when
// the elements are varints.
func packedWidth(f *meta.Field) int {
	switch f.Type() {
	case meta.TypeArrayFloat:
		return 4
	case meta.TypeArrayDouble:
		return 8
	case meta.TypeArrayInt32, meta.TypeArrayUint32:
		if f.Has(meta.FlagProtoVarint) || f.Has(meta.FlagProtoZigzag) {
			return 0
		}
		return 4
	case meta.TypeArrayInt64, meta.TypeArrayUint64:
		if f.Has(meta.FlagProtoVarint) || f.Has(meta.FlagProtoZigzag) {
			return 0
		}
		return 8
	}
	return 0
}

func (p *ProtoParser) decodeArray(f *meta.Field, es []protoEntry) (Value, error) {
	elem := f.Elem()
	switch f.Type() {
	case meta.TypeArrayUint8:
		var b []byte
		for _, e := range es {
			if e.wt == protowire.BytesType {
				b = append(b, p.data[e.start:e.end]...)
			} else {
				b = append(b, byte(e.num))
			}
		}
		return Uint8Array(b), nil
	case meta.TypeArrayString, meta.TypeArrayBytes:
		elems := make([]Value, 0, len(es))
		for _, e := range es {
			if v, ok := p.decodeScalar(elem, e); ok {
				elems = append(elems, v)
			}
		}
		return ArrayFromElems(f.Type(), elems), nil
	}

	var elems []Value
	for _, e := range es {
		if e.wt != protowire.BytesType {
			if v, ok := p.decodeScalar(elem, e); ok {
				elems = append(elems, v)
			}
			continue
		}
		width := packedWidth(f)
		if width != 0 && (e.end-e.start)%width != 0 {
			return Value{}, parseErrf(p.data, e.start, ErrTruncated, "packed %v of %d bytes", f, e.end-e.start)
		}
		for off := e.start; off < e.end; {
			pe := protoEntry{wt: protowire.VarintType}
			var n int
			switch width {
			case 0:
				pe.num, n = protowire.ConsumeVarint(p.data[off:e.end])
			case 4:
				var u uint32
				u, n = protowire.ConsumeFixed32(p.data[off:e.end])
				pe.num, pe.wt = uint64(u), protowire.Fixed32Type
			case 8:
				pe.num, n = protowire.ConsumeFixed64(p.data[off:e.end])
				pe.wt = protowire.Fixed64Type
			}
			if n < 0 {
				return Value{}, wireErr(p.data, off, n)
			}
			off += n
			if v, ok := p.decodeScalar(elem, pe); ok {
				elems = append(elems, v)
			}
		}
	}
	return ArrayFromElems(f.Type(), elems), nil
}
