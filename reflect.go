package structwire

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/andreyvit/structwire/meta"
	"github.com/puzpuzpuz/xsync/v3"
)

// structBinding maps the fields of a struct descriptor onto the fields of a
// Go struct type.
type structBinding struct {
	typ    reflect.Type
	fields []*fieldBinding // by descriptor field index, nil when unbound
}

type fieldBinding struct {
	index []int
	typ   reflect.Type

	// goType is the scalar or scalar-array type the Go field holds after
	// dereferencing a pointer, or TypeNone.
	goType  meta.TypeID
	ptr     bool
	variant bool
}

type bindingKey struct {
	typ reflect.Type
	st  *meta.Struct
}

var bindingCache = xsync.NewMapOf[bindingKey, *structBinding]()

var variantType = reflect.TypeFor[Variant]()

func bindingFor(typ reflect.Type, st *meta.Struct) *structBinding {
	key := bindingKey{typ, st}
	if b, ok := bindingCache.Load(key); ok {
		return b
	}
	b, _ := bindingCache.LoadOrCompute(key, func() *structBinding {
		return bindStruct(typ, st)
	})
	return b
}

// bindStruct matches exported Go fields to descriptor fields by the name in
// their `wire` tag, or by a case-insensitive match of the Go field name.
// A `wire:"-"` tag excludes the field.
func bindStruct(typ reflect.Type, st *meta.Struct) *structBinding {
	if typ.Kind() != reflect.Struct {
		panic(fmt.Errorf("%v is not a struct", typ))
	}
	b := &structBinding{
		typ:    typ,
		fields: make([]*fieldBinding, st.NumFields()),
	}
	for _, sf := range reflect.VisibleFields(typ) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name, _, _ := splitByte(sf.Tag.Get("wire"), ',')
		if name == "-" {
			continue
		}
		var f *meta.Field
		if name != "" {
			f = st.FieldByName(name)
		} else {
			f = fieldByFoldedName(st, sf.Name)
		}
		if f == nil || b.fields[f.Index()] != nil {
			continue
		}
		fb := &fieldBinding{index: sf.Index, typ: sf.Type}
		t := sf.Type
		if t.Kind() == reflect.Pointer {
			fb.ptr = true
			t = t.Elem()
		}
		fb.variant = t == variantType
		fb.goType = goTypeID(t)
		b.fields[f.Index()] = fb
	}
	return b
}

func fieldByFoldedName(st *meta.Struct, name string) *meta.Field {
	if f := st.FieldByName(name); f != nil {
		return f
	}
	for _, f := range st.Fields() {
		if strings.EqualFold(f.Name(), name) {
			return f
		}
	}
	return nil
}

// goTypeID returns the value type a Go type naturally holds.
func goTypeID(t reflect.Type) meta.TypeID {
	switch t.Kind() {
	case reflect.Bool:
		return meta.TypeBool
	case reflect.Int8:
		return meta.TypeInt8
	case reflect.Int16:
		return meta.TypeInt16
	case reflect.Int32:
		return meta.TypeInt32
	case reflect.Int, reflect.Int64:
		return meta.TypeInt64
	case reflect.Uint8:
		return meta.TypeUint8
	case reflect.Uint16:
		return meta.TypeUint16
	case reflect.Uint32:
		return meta.TypeUint32
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return meta.TypeUint64
	case reflect.Float32:
		return meta.TypeFloat
	case reflect.Float64:
		return meta.TypeDouble
	case reflect.String:
		return meta.TypeString
	case reflect.Slice:
		elem := goTypeID(t.Elem())
		switch {
		case elem == meta.TypeUint8:
			return meta.TypeBytes
		case elem.IsScalar() && !elem.IsArray():
			return meta.ArrayFlag | elem
		}
	}
	return meta.TypeNone
}

// fieldOf returns the Go field of rv described by fb. Nil embedded pointers
// on the way are allocated when alloc is set; otherwise an invalid value is
// returned for them.
func (fb *fieldBinding) fieldOf(rv reflect.Value, alloc bool) reflect.Value {
	for i, x := range fb.index {
		if i > 0 && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				if !alloc {
					return reflect.Value{}
				}
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv
}

// goValue converts a Go value holding type t into a Value.
func goValue(rv reflect.Value, t meta.TypeID) Value {
	switch t {
	case meta.TypeBool:
		return BoolValue(rv.Bool())
	case meta.TypeInt8:
		return Int8Value(int8(rv.Int()))
	case meta.TypeInt16:
		return Int16Value(int16(rv.Int()))
	case meta.TypeInt32:
		return Int32Value(int32(rv.Int()))
	case meta.TypeInt64:
		return Int64Value(rv.Int())
	case meta.TypeUint8:
		return Uint8Value(uint8(rv.Uint()))
	case meta.TypeUint16:
		return Uint16Value(uint16(rv.Uint()))
	case meta.TypeUint32:
		return Uint32Value(uint32(rv.Uint()))
	case meta.TypeUint64:
		return Uint64Value(rv.Uint())
	case meta.TypeFloat:
		return FloatValue(float32(rv.Float()))
	case meta.TypeDouble:
		return DoubleValue(rv.Float())
	case meta.TypeString:
		return StringValue(rv.String())
	case meta.TypeBytes:
		return BytesValue(rv.Bytes())
	}
	if t.IsArray() {
		n := rv.Len()
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = goValue(rv.Index(i), t.Elem())
		}
		return ArrayFromElems(t, elems)
	}
	panic(fmt.Errorf("goValue: unsupported type %v", t))
}

// setGoValue stores v, already converted to the natural type of rv, into rv.
// Slices are copied.
func setGoValue(rv reflect.Value, v Value) {
	switch rv.Kind() {
	case reflect.Bool:
		rv.SetBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		rv.SetInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		rv.SetUint(v.Uint())
	case reflect.Float32, reflect.Float64:
		rv.SetFloat(v.Float())
	case reflect.String:
		rv.SetString(v.Str())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := v.Bytes()
			if b == nil {
				rv.SetZero()
			} else {
				rv.SetBytes(append([]byte(nil), b...))
			}
			return
		}
		n := v.Len()
		s := reflect.MakeSlice(rv.Type(), n, n)
		for i := 0; i < n; i++ {
			setGoValue(s.Index(i), v.Index(i))
		}
		rv.Set(s)
	default:
		panic(fmt.Errorf("setGoValue: unsupported kind %v", rv.Kind()))
	}
}
