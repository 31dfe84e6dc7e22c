package structwire

import (
	"fmt"
	"math"
	"strconv"

	"github.com/andreyvit/structwire/meta"
)

// Value is the payload of a single scalar or scalar-array field event.
//
// Integers are kept sign-extended in a uint64, floats as float64 bits, so that
// a Value never allocates for scalars. Enums travel either as an ordinal or
// by name, whichever the producer has at hand.
//
// Slices held by a Value are borrowed from the producer; consumers that
// retain them past the EnterValue call must copy.
type Value struct {
	typ   meta.TypeID
	named bool
	num   uint64
	str   string
	arr   any
}

func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{typ: meta.TypeBool, num: n}
}

func Int8Value(v int8) Value { return Value{typ: meta.TypeInt8, num: uint64(int64(v))} }
func Uint8Value(v uint8) Value { return Value{typ: meta.TypeUint8, num: uint64(v)} }
func Int16Value(v int16) Value { return Value{typ: meta.TypeInt16, num: uint64(int64(v))} }
func Uint16Value(v uint16) Value { return Value{typ: meta.TypeUint16, num: uint64(v)} }
func Int32Value(v int32) Value { return Value{typ: meta.TypeInt32, num: uint64(int64(v))} }
func Uint32Value(v uint32) Value { return Value{typ: meta.TypeUint32, num: uint64(v)} }
func Int64Value(v int64) Value { return Value{typ: meta.TypeInt64, num: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{typ: meta.TypeUint64, num: v} }
func FloatValue(v float32) Value { return Value{typ: meta.TypeFloat, num: math.Float64bits(float64(v))} }
func DoubleValue(v float64) Value { return Value{typ: meta.TypeDouble, num: math.Float64bits(v)} }
func StringValue(v string) Value { return Value{typ: meta.TypeString, str: v} }
func BytesValue(v []byte) Value { return Value{typ: meta.TypeBytes, arr: v} }
func EnumValue(v int32) Value { return Value{typ: meta.TypeEnum, num: uint64(int64(v))} }
func EnumNameValue(v string) Value { return Value{typ: meta.TypeEnum, named: true, str: v} }

func BoolArray(v []bool) Value { return Value{typ: meta.TypeArrayBool, arr: v} }
func Int8Array(v []int8) Value { return Value{typ: meta.TypeArrayInt8, arr: v} }
func Uint8Array(v []byte) Value { return Value{typ: meta.TypeArrayUint8, arr: v} }
func Int16Array(v []int16) Value { return Value{typ: meta.TypeArrayInt16, arr: v} }
func Uint16Array(v []uint16) Value { return Value{typ: meta.TypeArrayUint16, arr: v} }
func Int32Array(v []int32) Value { return Value{typ: meta.TypeArrayInt32, arr: v} }
func Uint32Array(v []uint32) Value { return Value{typ: meta.TypeArrayUint32, arr: v} }
func Int64Array(v []int64) Value { return Value{typ: meta.TypeArrayInt64, arr: v} }
func Uint64Array(v []uint64) Value { return Value{typ: meta.TypeArrayUint64, arr: v} }
func FloatArray(v []float32) Value { return Value{typ: meta.TypeArrayFloat, arr: v} }
func DoubleArray(v []float64) Value { return Value{typ: meta.TypeArrayDouble, arr: v} }
func StringArray(v []string) Value { return Value{typ: meta.TypeArrayString, arr: v} }
func BytesArray(v [][]byte) Value { return Value{typ: meta.TypeArrayBytes, arr: v} }
func EnumArray(v []int32) Value { return Value{typ: meta.TypeArrayEnum, arr: v} }
func EnumNameArray(v []string) Value { return Value{typ: meta.TypeArrayEnum, named: true, arr: v} }

// ZeroValue returns the default value of a scalar or scalar-array type.
func ZeroValue(typ meta.TypeID) Value {
	switch typ {
	case meta.TypeArrayBool:
		return BoolArray(nil)
	case meta.TypeArrayInt8:
		return Int8Array(nil)
	case meta.TypeArrayInt16:
		return Int16Array(nil)
	case meta.TypeArrayUint16:
		return Uint16Array(nil)
	case meta.TypeArrayInt32:
		return Int32Array(nil)
	case meta.TypeArrayUint32:
		return Uint32Array(nil)
	case meta.TypeArrayInt64:
		return Int64Array(nil)
	case meta.TypeArrayUint64:
		return Uint64Array(nil)
	case meta.TypeArrayFloat:
		return FloatArray(nil)
	case meta.TypeArrayDouble:
		return DoubleArray(nil)
	case meta.TypeArrayString:
		return StringArray(nil)
	case meta.TypeArrayBytes:
		return BytesArray(nil)
	case meta.TypeArrayUint8:
		return Uint8Array(nil)
	case meta.TypeArrayEnum:
		return EnumArray(nil)
	case meta.TypeBytes:
		return BytesValue(nil)
	default:
		return Value{typ: typ}
	}
}

func (v Value) Type() meta.TypeID { return v.typ }
func (v Value) IsArray() bool { return v.typ.IsArray() }

// IsEnumName reports whether an enum or enum array carries names rather than
// ordinals.
func (v Value) IsEnumName() bool { return v.named }

func (v Value) Bool() bool {
	switch v.typ {
	case meta.TypeFloat, meta.TypeDouble:
		return v.Float() != 0
	case meta.TypeString:
		return v.str == "true"
	default:
		return v.num != 0
	}
}

// Int returns the value as int64. Unsigned values are reinterpreted, floats
// truncated.
func (v Value) Int() int64 {
	switch v.typ {
	case meta.TypeFloat, meta.TypeDouble:
		return int64(v.Float())
	default:
		return int64(v.num)
	}
}

func (v Value) Uint() uint64 {
	switch v.typ {
	case meta.TypeFloat, meta.TypeDouble:
		return uint64(v.Float())
	default:
		return v.num
	}
}

func (v Value) Float() float64 {
	switch v.typ {
	case meta.TypeFloat, meta.TypeDouble:
		return math.Float64frombits(v.num)
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64, meta.TypeEnum:
		return float64(int64(v.num))
	default:
		return float64(v.num)
	}
}

// Str returns the string payload, or the name of a named enum.
func (v Value) Str() string { return v.str }

func (v Value) Bytes() []byte {
	b, _ := v.arr.([]byte)
	return b
}

// Array returns the slice payload of an array value, or nil.
func (v Value) Array() any { return v.arr }

// ArrayOf returns the slice payload of v if it has element type T.
func ArrayOf[T any](v Value) []T {
	s, _ := v.arr.([]T)
	return s
}

// Index returns element i of an array value as a scalar Value.
func (v Value) Index(i int) Value {
	switch a := v.arr.(type) {
	case []bool:
		return BoolValue(a[i])
	case []int8:
		return Int8Value(a[i])
	case []int16:
		return Int16Value(a[i])
	case []uint16:
		return Uint16Value(a[i])
	case []int32:
		if v.typ == meta.TypeArrayEnum {
			return EnumValue(a[i])
		}
		return Int32Value(a[i])
	case []uint32:
		return Uint32Value(a[i])
	case []int64:
		return Int64Value(a[i])
	case []uint64:
		return Uint64Value(a[i])
	case []float32:
		return FloatValue(a[i])
	case []float64:
		return DoubleValue(a[i])
	case []string:
		if v.typ == meta.TypeArrayEnum {
			return EnumNameValue(a[i])
		}
		return StringValue(a[i])
	case [][]byte:
		return BytesValue(a[i])
	case []byte:
		return Uint8Value(a[i])
	}
	panic(fmt.Errorf("Index on non-array value %v", v.typ))
}

// Len returns the element count of arrays, the byte length of strings and
// bytes, and 1 for other scalars.
func (v Value) Len() int {
	switch a := v.arr.(type) {
	case []byte:
		return len(a)
	case []bool:
		return len(a)
	case []int8:
		return len(a)
	case []int16:
		return len(a)
	case []uint16:
		return len(a)
	case []int32:
		return len(a)
	case []uint32:
		return len(a)
	case []int64:
		return len(a)
	case []uint64:
		return len(a)
	case []float32:
		return len(a)
	case []float64:
		return len(a)
	case []string:
		return len(a)
	case [][]byte:
		return len(a)
	}
	if v.typ == meta.TypeString || v.named {
		return len(v.str)
	}
	if v.typ.IsArray() || v.typ == meta.TypeBytes {
		return 0
	}
	return 1
}

// IsZero reports whether v equals the default value of its type: false, 0,
// the empty string, or an empty array. A named enum is zero only if its name
// is empty; resolving names needs the registry.
func (v Value) IsZero() bool {
	if v.typ.IsArray() || v.typ == meta.TypeBytes {
		return v.Len() == 0
	}
	switch v.typ {
	case meta.TypeString:
		return v.str == ""
	case meta.TypeEnum:
		if v.named {
			return v.str == ""
		}
		return v.num == 0
	case meta.TypeFloat, meta.TypeDouble:
		return v.Float() == 0
	default:
		return v.num == 0
	}
}

func (v Value) String() string {
	switch v.typ {
	case meta.TypeBool:
		return strconv.FormatBool(v.Bool())
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		return strconv.FormatInt(v.Int(), 10)
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		return strconv.FormatUint(v.num, 10)
	case meta.TypeFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case meta.TypeDouble:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case meta.TypeString:
		return strconv.Quote(v.str)
	case meta.TypeBytes:
		return fmt.Sprintf("%x", v.Bytes())
	case meta.TypeEnum:
		if v.named {
			return v.str
		}
		return strconv.FormatInt(v.Int(), 10)
	}
	if v.typ.IsArray() {
		if v.typ == meta.TypeArrayBytes {
			return fmt.Sprintf("%x", v.arr)
		}
		if v.typ == meta.TypeArrayString || v.named {
			return fmt.Sprintf("%q", v.arr)
		}
		return fmt.Sprintf("%v", v.arr)
	}
	return "<" + v.typ.String() + ">"
}

// ArrayFromElems builds an array value of type typ from scalar elements,
// converting each element to the array's element type.
func ArrayFromElems(typ meta.TypeID, elems []Value) Value {
	n := len(elems)
	switch typ {
	case meta.TypeArrayBool:
		a := make([]bool, n)
		for i, e := range elems {
			a[i] = e.Bool()
		}
		return BoolArray(a)
	case meta.TypeArrayInt8:
		a := make([]int8, n)
		for i, e := range elems {
			a[i] = int8(e.Int())
		}
		return Int8Array(a)
	case meta.TypeArrayUint8:
		a := make([]byte, n)
		for i, e := range elems {
			a[i] = byte(e.Uint())
		}
		return Uint8Array(a)
	case meta.TypeArrayInt16:
		a := make([]int16, n)
		for i, e := range elems {
			a[i] = int16(e.Int())
		}
		return Int16Array(a)
	case meta.TypeArrayUint16:
		a := make([]uint16, n)
		for i, e := range elems {
			a[i] = uint16(e.Uint())
		}
		return Uint16Array(a)
	case meta.TypeArrayInt32:
		a := make([]int32, n)
		for i, e := range elems {
			a[i] = int32(e.Int())
		}
		return Int32Array(a)
	case meta.TypeArrayUint32:
		a := make([]uint32, n)
		for i, e := range elems {
			a[i] = uint32(e.Uint())
		}
		return Uint32Array(a)
	case meta.TypeArrayInt64:
		a := make([]int64, n)
		for i, e := range elems {
			a[i] = e.Int()
		}
		return Int64Array(a)
	case meta.TypeArrayUint64:
		a := make([]uint64, n)
		for i, e := range elems {
			a[i] = e.Uint()
		}
		return Uint64Array(a)
	case meta.TypeArrayFloat:
		a := make([]float32, n)
		for i, e := range elems {
			a[i] = float32(e.Float())
		}
		return FloatArray(a)
	case meta.TypeArrayDouble:
		a := make([]float64, n)
		for i, e := range elems {
			a[i] = e.Float()
		}
		return DoubleArray(a)
	case meta.TypeArrayString:
		a := make([]string, n)
		for i, e := range elems {
			a[i] = e.Str()
		}
		return StringArray(a)
	case meta.TypeArrayBytes:
		a := make([][]byte, n)
		for i, e := range elems {
			a[i] = e.Bytes()
		}
		return BytesArray(a)
	case meta.TypeArrayEnum:
		named := n > 0
		for _, e := range elems {
			if !e.IsEnumName() {
				named = false
				break
			}
		}
		if named {
			a := make([]string, n)
			for i, e := range elems {
				a[i] = e.Str()
			}
			return EnumNameArray(a)
		}
		a := make([]int32, n)
		for i, e := range elems {
			a[i] = int32(e.Int())
		}
		return EnumArray(a)
	}
	panic(fmt.Errorf("ArrayFromElems: %v is not a scalar array type", typ))
}

// Clone returns a copy of v that does not share slices with it.
func (v Value) Clone() Value {
	switch a := v.arr.(type) {
	case []byte:
		v.arr = append([]byte(nil), a...)
	case []bool:
		v.arr = append([]bool(nil), a...)
	case []int8:
		v.arr = append([]int8(nil), a...)
	case []int16:
		v.arr = append([]int16(nil), a...)
	case []uint16:
		v.arr = append([]uint16(nil), a...)
	case []int32:
		v.arr = append([]int32(nil), a...)
	case []uint32:
		v.arr = append([]uint32(nil), a...)
	case []int64:
		v.arr = append([]int64(nil), a...)
	case []uint64:
		v.arr = append([]uint64(nil), a...)
	case []float32:
		v.arr = append([]float32(nil), a...)
	case []float64:
		v.arr = append([]float64(nil), a...)
	case []string:
		v.arr = append([]string(nil), a...)
	case [][]byte:
		c := make([][]byte, len(a))
		for i, b := range a {
			c[i] = append([]byte(nil), b...)
		}
		v.arr = c
	}
	return v
}
