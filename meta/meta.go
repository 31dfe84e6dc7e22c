// Package meta describes the shape of serializable data: structs made of
// typed, indexed fields, and enums mapping names to integer values.
//
// Descriptors are immutable once added to a Registry. Codecs consult them
// while traversing data, so lookups are cheap and safe for concurrent use.
//
// Field properties are free-form "key:value" attributes interpreted by
// individual codecs (abortstruct, indexmode, indexoffset, fixedarray, qttype,
// enumbits and so on). An empty property value means absent.
package meta

import (
	"fmt"
	"strings"
)

type TypeID int32

const (
	TypeNone TypeID = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat
	TypeDouble
	TypeString
	TypeBytes
	TypeStruct
	TypeEnum
	TypeVariant
	TypeJSON

	ArrayFlag TypeID = 1024

	TypeArrayBool   = ArrayFlag | TypeBool
	TypeArrayInt8   = ArrayFlag | TypeInt8
	TypeArrayUint8  = ArrayFlag | TypeUint8
	TypeArrayInt16  = ArrayFlag | TypeInt16
	TypeArrayUint16 = ArrayFlag | TypeUint16
	TypeArrayInt32  = ArrayFlag | TypeInt32
	TypeArrayUint32 = ArrayFlag | TypeUint32
	TypeArrayInt64  = ArrayFlag | TypeInt64
	TypeArrayUint64 = ArrayFlag | TypeUint64
	TypeArrayFloat  = ArrayFlag | TypeFloat
	TypeArrayDouble = ArrayFlag | TypeDouble
	TypeArrayString = ArrayFlag | TypeString
	TypeArrayBytes  = ArrayFlag | TypeBytes
	TypeArrayStruct = ArrayFlag | TypeStruct
	TypeArrayEnum   = ArrayFlag | TypeEnum
)

var typeNames = [...]string{
	TypeNone:    "none",
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeUint8:   "uint8",
	TypeInt16:   "int16",
	TypeUint16:  "uint16",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat:   "float",
	TypeDouble:  "double",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeStruct:  "struct",
	TypeEnum:    "enum",
	TypeVariant: "variant",
	TypeJSON:    "json",
}

func (t TypeID) IsArray() bool { return t&ArrayFlag != 0 }
func (t TypeID) Elem() TypeID { return t &^ ArrayFlag }

func (t TypeID) String() string {
	elem := t.Elem()
	if elem < 0 || int(elem) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int32(t))
	}
	if t.IsArray() {
		return typeNames[elem] + "[]"
	}
	return typeNames[elem]
}

// IsScalar reports whether values of this type are carried by a single
// EnterValue event (everything except structs and arrays of structs).
func (t TypeID) IsScalar() bool {
	e := t.Elem()
	return e != TypeNone && e != TypeStruct
}

// ParseTypeID accepts both short names ("int32", "int32[]") and the long
// constant-style names used by exported schema files ("TYPE_INT32",
// "TYPE_ARRAY_INT32").
func ParseTypeID(s string) (TypeID, error) {
	name := strings.ToLower(s)
	var arr TypeID
	if rest, ok := strings.CutPrefix(name, "type_"); ok {
		name = rest
		if rest, ok := strings.CutPrefix(name, "array_"); ok {
			name = rest
			arr = ArrayFlag
		}
	}
	if rest, ok := strings.CutSuffix(name, "[]"); ok {
		name = rest
		arr = ArrayFlag
	}
	for i, n := range typeNames {
		if n == name {
			return TypeID(i) | arr, nil
		}
	}
	return TypeNone, fmt.Errorf("unknown type %q", s)
}
