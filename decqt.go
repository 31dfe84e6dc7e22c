package structwire

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"unicode/utf16"

	"github.com/andreyvit/structwire/meta"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// QtParser reads the positional format written by QtSerializer.
//
// Nothing on the wire identifies a field, so the parser walks the struct
// descriptor and decodes every field in index order, evaluating the index
// and abortstruct properties as it goes: a field skipped by the index
// selection or following an abort sentinel occupies no bytes.
type QtParser struct {
	reg    *meta.Registry
	logger *slog.Logger

	d       byteDecoder
	v       Visitor
	minSize map[*meta.Struct]int
}

func NewQtParser(reg *meta.Registry, opts QtOptions) *QtParser {
	return &QtParser{reg: reg, logger: loggerOr(opts.Logger)}
}

// Parse emits the traversal of data, a serialized struct of type typeName,
// to v. On failure v receives NotifyError followed by Finished, and the
// returned *ParseError wraps ErrTypeNotFound or ErrTruncated when applicable.
func (p *QtParser) Parse(data []byte, typeName string, v Visitor) error {
	st := p.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return parseErrf(data, 0, ErrTypeNotFound, "struct %s", typeName)
	}
	p.d, p.v = makeByteDecoder(data), v
	defer func() {
		p.d, p.v = byteDecoder{}, nil
		clear(p.minSize)
	}()

	v.StartStruct(st)
	err := p.parseStruct(st)
	if err != nil {
		notifyParseError(v, err)
	} else if n := p.d.Remaining(); n > 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "qt: trailing data", slog.String("struct", st.Name()), slog.Int("bytes", n), hexAttr("data", p.d.Buf))
	}
	v.Finished()
	return err
}

func (p *QtParser) parseStruct(st *meta.Struct) error {
	l := newIndexLevel()
	for _, f := range st.Fields() {
		if l.skips(f) {
			continue
		}
		if err := p.parseField(&l, f); err != nil {
			return err
		}
	}
	return nil
}

func (p *QtParser) parseField(l *indexLevel, f *meta.Field) error {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return nil
	case meta.TypeStruct:
		st := p.reg.StructOf(f)
		if st == nil {
			return parseErrf(p.d.Orig, p.d.Off(), ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		p.v.EnterStruct(f)
		if err := p.parseStruct(st); err != nil {
			return err
		}
		p.v.ExitStruct(f)
	case meta.TypeArrayStruct:
		return p.parseStructArray(f)
	default:
		if f.Type().IsArray() {
			v, err := p.decodeArray(f)
			if err != nil {
				return err
			}
			p.v.EnterValue(f, v)
			return nil
		}
		v, present, err := p.decodeScalar(f, f.Type())
		if err != nil {
			return err
		}
		if present {
			p.v.EnterValue(f, v)
			l.observe(p.reg, f, v)
		}
	}
	return nil
}

func (p *QtParser) parseStructArray(f *meta.Field) error {
	st := p.reg.StructOf(f)
	if st == nil {
		return parseErrf(p.d.Orig, p.d.Off(), ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
	}
	n, fixed := f.FixedArray()
	if !fixed {
		count, err := p.d.Uint32BE()
		if err != nil {
			return err
		}
		n = int(count)
		if size := p.structMinSize(st); size > 0 {
			if n > p.d.Remaining()/size {
				return parseErrf(p.d.Orig, p.d.Off(), ErrTruncated, "%d elements of %v, at least %d bytes each, in %d bytes", n, f, size, p.d.Remaining())
			}
		} else if n > maxEmptyElements {
			return parseErrf(p.d.Orig, p.d.Off(), nil, "%d elements of %v that take no space", n, f)
		}
	}
	elem := f.Elem()
	p.v.EnterArrayStruct(f)
	for i := 0; i < n; i++ {
		p.v.EnterStruct(elem)
		if !fixed || p.d.Remaining() > 0 {
			if err := p.parseStruct(st); err != nil {
				return err
			}
		}
		p.v.ExitStruct(elem)
	}
	p.v.ExitArrayStruct(f)
	return nil
}

// decodeScalar reads one value of type typ. A null string and an
// unavailable image are consumed but not present.
func (p *QtParser) decodeScalar(f *meta.Field, typ meta.TypeID) (Value, bool, error) {
	d := &p.d
	switch typ {
	case meta.TypeBool:
		b, err := d.Byte()
		return BoolValue(b != 0), err == nil, err
	case meta.TypeInt8:
		b, err := d.Byte()
		return Int8Value(int8(b)), err == nil, err
	case meta.TypeUint8:
		b, err := d.Byte()
		return Uint8Value(b), err == nil, err
	case meta.TypeInt16:
		u, err := d.Uint16BE()
		return Int16Value(int16(u)), err == nil, err
	case meta.TypeUint16:
		u, err := d.Uint16BE()
		return Uint16Value(u), err == nil, err
	case meta.TypeInt32:
		u, err := d.Uint32BE()
		return Int32Value(int32(u)), err == nil, err
	case meta.TypeUint32:
		u, err := d.Uint32BE()
		return Uint32Value(u), err == nil, err
	case meta.TypeInt64:
		u, err := d.FixedUint64()
		return Int64Value(int64(u)), err == nil, err
	case meta.TypeUint64:
		u, err := d.FixedUint64()
		return Uint64Value(u), err == nil, err
	case meta.TypeFloat:
		u, err := d.FixedUint64()
		return FloatValue(float32(math.Float64frombits(u))), err == nil, err
	case meta.TypeDouble:
		u, err := d.FixedUint64()
		return DoubleValue(math.Float64frombits(u)), err == nil, err
	case meta.TypeString:
		return p.decodeString()
	case meta.TypeBytes:
		if f.QtType() == "png" {
			return p.decodeImage()
		}
		n, err := d.Uint32BE()
		if err != nil || n == qtNullLength {
			return Value{}, false, err
		}
		b, err := d.Raw(int(n))
		return BytesValue(b), err == nil, err
	case meta.TypeEnum:
		n, err := p.decodeEnum(f)
		return EnumValue(n), err == nil, err
	}
	return Value{}, false, parseErrf(d.Orig, d.Off(), nil, "field %v of type %v cannot be read", f, typ)
}

func (p *QtParser) decodeString() (Value, bool, error) {
	d := &p.d
	n, err := d.Uint32BE()
	if err != nil || n == qtNullLength {
		return Value{}, false, err
	}
	if n%2 != 0 {
		return Value{}, false, parseErrf(d.Orig, d.Off(), nil, "odd UTF-16 byte length %d", n)
	}
	raw, err := d.Raw(int(n))
	if err != nil {
		return Value{}, false, err
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return StringValue(string(utf16.Decode(units))), true, nil
}

func (p *QtParser) decodeEnum(f *meta.Field) (int32, error) {
	d := &p.d
	switch f.EnumBits() {
	case 8:
		b, err := d.Byte()
		return int32(int8(b)), err
	case 16:
		u, err := d.Uint16BE()
		return int32(int16(u)), err
	case 64:
		u, err := d.FixedUint64()
		return int32(int64(u)), err
	default:
		u, err := d.Uint32BE()
		return int32(u), err
	}
}

// decodeImage reads an availability flag and, when set, a PNG image whose
// extent is determined by walking its chunks up to and including IEND.
func (p *QtParser) decodeImage() (Value, bool, error) {
	d := &p.d
	avail, err := d.Byte()
	if err != nil || avail == 0 {
		return Value{}, false, err
	}
	start := d.Off()
	sig, err := d.Raw(len(pngSignature))
	if err != nil {
		return Value{}, false, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return Value{}, false, parseErrf(d.Orig, start, nil, "invalid PNG signature")
	}
	for {
		n, err := d.Uint32BE()
		if err != nil {
			return Value{}, false, err
		}
		typ, err := d.Raw(4)
		if err != nil {
			return Value{}, false, err
		}
		// chunk data followed by CRC
		if _, err := d.Raw(int(n) + 4); err != nil {
			return Value{}, false, err
		}
		if string(typ) == "IEND" {
			break
		}
	}
	return BytesValue(d.Orig[start:d.Off()]), true, nil
}

func (p *QtParser) decodeArray(f *meta.Field) (Value, error) {
	d := &p.d
	n, fixed := f.FixedArray()
	if !fixed {
		count, err := d.Uint32BE()
		if err != nil {
			return Value{}, err
		}
		n = int(count)
	}

	switch f.Type() {
	case meta.TypeArrayBool:
		size := (n + 7) / 8
		if fixed {
			size = min(size, d.Remaining())
		}
		bits, err := d.Raw(size)
		if err != nil {
			return Value{}, err
		}
		a := make([]bool, n)
		for i := range a {
			if i/8 < len(bits) {
				a[i] = bits[i/8]&(1<<(i%8)) != 0
			}
		}
		return BoolArray(a), nil
	case meta.TypeArrayUint8:
		if !fixed {
			b, err := d.Raw(n)
			return Uint8Array(b), err
		}
		b, _ := d.Raw(min(n, d.Remaining()))
		a := make([]byte, n)
		copy(a, b)
		return Uint8Array(a), nil
	}

	if !fixed && n > d.Remaining() {
		return Value{}, parseErrf(d.Orig, d.Off(), ErrTruncated, "%d elements of %v in %d bytes", n, f, d.Remaining())
	}
	elem := f.Elem()
	elems := make([]Value, n)
	for i := range elems {
		// a fixed array cut short at the end of input is padded with zeros
		if fixed && d.Remaining() == 0 {
			elems[i] = ZeroValue(elem.Type())
			continue
		}
		v, present, err := p.decodeScalar(elem, elem.Type())
		if err != nil {
			return Value{}, err
		}
		if !present {
			v = ZeroValue(elem.Type())
		}
		elems[i] = v
	}
	return ArrayFromElems(f.Type(), elems), nil
}

// maxEmptyElements bounds the count of a struct array whose elements may
// occupy no bytes at all.
const maxEmptyElements = 1 << 16

// structMinSize returns a lower bound on the encoded size of st. Fields that
// follow an index or abortstruct field may be absent and count as zero.
func (p *QtParser) structMinSize(st *meta.Struct) int {
	if size, ok := p.minSize[st]; ok {
		return size
	}
	if p.minSize == nil {
		p.minSize = make(map[*meta.Struct]int)
	}
	p.minSize[st] = 0 // recursive references count as zero
	var size int
	for _, f := range st.Fields() {
		size += p.fieldMinSize(f)
		if f.Has(meta.FlagIndex) || len(f.AbortValues()) > 0 {
			break
		}
	}
	p.minSize[st] = size
	return size
}

func (p *QtParser) fieldMinSize(f *meta.Field) int {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return 0
	case meta.TypeStruct:
		if st := p.reg.StructOf(f); st != nil {
			return p.structMinSize(st)
		}
		return 0
	case meta.TypeArrayStruct:
		if _, fixed := f.FixedArray(); fixed {
			return 0
		}
		return 4
	}
	if f.Type().IsArray() {
		// fixed arrays may be cut short at the end of input
		if _, fixed := f.FixedArray(); fixed {
			return 0
		}
		return 4
	}
	return qtScalarMinSize(f)
}

func qtScalarMinSize(f *meta.Field) int {
	switch f.Type() {
	case meta.TypeBool, meta.TypeInt8, meta.TypeUint8:
		return 1
	case meta.TypeInt16, meta.TypeUint16:
		return 2
	case meta.TypeInt32, meta.TypeUint32, meta.TypeString:
		return 4
	case meta.TypeInt64, meta.TypeUint64, meta.TypeFloat, meta.TypeDouble:
		return 8
	case meta.TypeBytes:
		if f.QtType() == "png" {
			return 1
		}
		return 4
	case meta.TypeEnum:
		return f.EnumBits() / 8
	}
	return 0
}
