package structwire

import (
	"strconv"
	"strings"

	"github.com/andreyvit/structwire/meta"
)

// convertValue coerces v into a value of type to. Enum ordinals are named
// through src and enum names resolved through dst; either may be nil.
//
// The result is always of type to. The boolean is false when the conversion
// lost the value (an unparsable string, a multi-element array squeezed into
// a scalar); the result is then the zero value. Unknown enum names resolve
// to 0 without failing.
func convertValue(v Value, to meta.TypeID, src, dst *meta.Enum) (Value, bool) {
	if to.IsArray() {
		return convertArray(v, to, src, dst)
	}
	if v.Type().IsArray() {
		if v.Type() == meta.TypeArrayUint8 {
			switch to {
			case meta.TypeBytes:
				return BytesValue(v.Bytes()), true
			case meta.TypeString:
				return StringValue(string(v.Bytes())), true
			}
		}
		switch v.Len() {
		case 0:
			return ZeroValue(to), true
		case 1:
			v = v.Index(0)
		default:
			return ZeroValue(to), false
		}
	}
	if v.Type() == to && !v.IsEnumName() {
		return v, true
	}

	switch to {
	case meta.TypeBool:
		switch v.Type() {
		case meta.TypeString:
			if b, err := strconv.ParseBool(strings.TrimSpace(v.Str())); err == nil {
				return BoolValue(b), true
			}
			f, ok := floatOf(v, src)
			return BoolValue(f != 0), ok
		case meta.TypeBytes, meta.TypeNone:
			return BoolValue(false), false
		case meta.TypeEnum:
			return BoolValue(enumOrdinalOf(v, src) != 0), true
		default:
			return BoolValue(v.Bool()), true
		}
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		n, ok := intOf(v, src)
		return signedValue(to, n), ok
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		n, ok := uintOf(v, src)
		return unsignedValue(to, n), ok
	case meta.TypeFloat:
		f, ok := floatOf(v, src)
		return FloatValue(float32(f)), ok
	case meta.TypeDouble:
		f, ok := floatOf(v, src)
		return DoubleValue(f), ok
	case meta.TypeString:
		return stringOf(v, src)
	case meta.TypeBytes:
		switch v.Type() {
		case meta.TypeString:
			return BytesValue([]byte(v.Str())), true
		}
		return BytesValue(nil), false
	case meta.TypeEnum:
		return enumOf(v, src, dst)
	}
	return ZeroValue(to), false
}

func convertArray(v Value, to meta.TypeID, src, dst *meta.Enum) (Value, bool) {
	if v.Type() == to && !(to == meta.TypeArrayEnum && v.IsEnumName() && dst != nil) {
		return v, true
	}
	if to == meta.TypeArrayStruct {
		return Value{}, false
	}
	switch v.Type() {
	case meta.TypeBytes:
		if to == meta.TypeArrayUint8 {
			return Uint8Array(v.Bytes()), true
		}
	case meta.TypeString:
		if to == meta.TypeArrayUint8 {
			return Uint8Array([]byte(v.Str())), true
		}
	}
	if !v.Type().IsArray() {
		e, ok := convertValue(v, to.Elem(), src, dst)
		return ArrayFromElems(to, []Value{e}), ok
	}
	n := v.Len()
	elems := make([]Value, n)
	ok := true
	for i := range elems {
		e, eok := convertValue(v.Index(i), to.Elem(), src, dst)
		elems[i] = e
		ok = ok && eok
	}
	return ArrayFromElems(to, elems), ok
}

func signedValue(to meta.TypeID, n int64) Value {
	switch to {
	case meta.TypeInt8:
		return Int8Value(int8(n))
	case meta.TypeInt16:
		return Int16Value(int16(n))
	case meta.TypeInt32:
		return Int32Value(int32(n))
	default:
		return Int64Value(n)
	}
}

func unsignedValue(to meta.TypeID, n uint64) Value {
	switch to {
	case meta.TypeUint8:
		return Uint8Value(uint8(n))
	case meta.TypeUint16:
		return Uint16Value(uint16(n))
	case meta.TypeUint32:
		return Uint32Value(uint32(n))
	default:
		return Uint64Value(n)
	}
}

func isUnsigned(t meta.TypeID) bool {
	switch t {
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		return true
	}
	return false
}

func intOf(v Value, src *meta.Enum) (int64, bool) {
	switch v.Type() {
	case meta.TypeString:
		s := strings.TrimSpace(v.Str())
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	case meta.TypeBytes, meta.TypeNone:
		return 0, false
	case meta.TypeEnum:
		return int64(enumOrdinalOf(v, src)), true
	case meta.TypeBool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	default:
		return v.Int(), true
	}
}

func uintOf(v Value, src *meta.Enum) (uint64, bool) {
	switch v.Type() {
	case meta.TypeString:
		s := strings.TrimSpace(v.Str())
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, true
		}
		n, ok := intOf(v, src)
		return uint64(n), ok
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64, meta.TypeFloat, meta.TypeDouble:
		return v.Uint(), true
	default:
		n, ok := intOf(v, src)
		return uint64(n), ok
	}
}

func floatOf(v Value, src *meta.Enum) (float64, bool) {
	switch v.Type() {
	case meta.TypeString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		return f, err == nil
	case meta.TypeBytes, meta.TypeNone:
		return 0, false
	case meta.TypeEnum:
		return float64(enumOrdinalOf(v, src)), true
	case meta.TypeBool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	default:
		return v.Float(), true
	}
}

func stringOf(v Value, src *meta.Enum) (Value, bool) {
	switch v.Type() {
	case meta.TypeBool:
		return StringValue(strconv.FormatBool(v.Bool())), true
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		return StringValue(strconv.FormatInt(v.Int(), 10)), true
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		return StringValue(strconv.FormatUint(v.Uint(), 10)), true
	case meta.TypeFloat:
		return StringValue(strconv.FormatFloat(v.Float(), 'g', -1, 32)), true
	case meta.TypeDouble:
		return StringValue(strconv.FormatFloat(v.Float(), 'g', -1, 64)), true
	case meta.TypeBytes:
		return StringValue(string(v.Bytes())), true
	case meta.TypeEnum:
		if v.IsEnumName() {
			return StringValue(v.Str()), true
		}
		n := int32(v.Int())
		if src != nil && src.IsValid(n) {
			return StringValue(src.NameByValue(n)), true
		}
		return StringValue(strconv.FormatInt(int64(n), 10)), true
	case meta.TypeString:
		return v, true
	}
	return StringValue(""), false
}

func enumOf(v Value, src, dst *meta.Enum) (Value, bool) {
	var name string
	switch {
	case v.Type() == meta.TypeString:
		name = strings.TrimSpace(v.Str())
	case v.Type() == meta.TypeEnum && v.IsEnumName():
		name = v.Str()
	default:
		n, ok := intOf(v, src)
		return EnumValue(int32(n)), ok
	}
	if dst == nil {
		return EnumNameValue(name), true
	}
	if n, ok := dst.ValueByName(name); ok {
		return EnumValue(n), true
	}
	if n, err := strconv.ParseInt(name, 10, 32); err == nil {
		return EnumValue(int32(n)), true
	}
	return EnumValue(0), true
}

func enumOrdinalOf(v Value, src *meta.Enum) int32 {
	if !v.IsEnumName() {
		return int32(v.Int())
	}
	if src == nil {
		return 0
	}
	n, _ := src.ValueByName(v.Str())
	return n
}
