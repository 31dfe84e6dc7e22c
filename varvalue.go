package structwire

import "github.com/andreyvit/structwire/meta"

const (
	VarValueTypeName = "structwire.VarValue"
	VarTypeTypeName  = "structwire.VarType"
)

// VarType tags the payload of a VarValue. The value v is carried by field
// 1+v of the VarValue struct, so VarNone selects no payload at all.
type VarType int32

const (
	VarNone VarType = iota
	VarBool
	VarInt8
	VarUint8
	VarInt16
	VarUint16
	VarInt32
	VarUint32
	VarInt64
	VarUint64
	VarFloat
	VarDouble
	VarString
	VarBytes
	VarList
	VarStruct
	VarArrBool
	VarArrInt8
	VarArrInt16
	VarArrUint16
	VarArrInt32
	VarArrUint32
	VarArrInt64
	VarArrUint64
	VarArrFloat
	VarArrDouble
	VarArrString
	VarArrBytes
)

var varTypeNames = [...]string{
	"none", "bool", "int8", "uint8", "int16", "uint16", "int32", "uint32",
	"int64", "uint64", "float", "double", "string", "bytes", "list", "struct",
	"arrbool", "arrint8", "arrint16", "arruint16", "arrint32", "arruint32",
	"arrint64", "arruint64", "arrfloat", "arrdouble", "arrstring", "arrbytes",
}

// varArrayTypes lists the array types of VarArrBool through VarArrBytes.
var varArrayTypes = [...]meta.TypeID{
	meta.TypeArrayBool, meta.TypeArrayInt8, meta.TypeArrayInt16, meta.TypeArrayUint16,
	meta.TypeArrayInt32, meta.TypeArrayUint32, meta.TypeArrayInt64, meta.TypeArrayUint64,
	meta.TypeArrayFloat, meta.TypeArrayDouble, meta.TypeArrayString, meta.TypeArrayBytes,
}

func (t VarType) String() string {
	if t < 0 || int(t) >= len(varTypeNames) {
		return "invalid"
	}
	return varTypeNames[t]
}

// payloadIndex is the index of the VarValue field holding a payload of type t.
func (t VarType) payloadIndex() int { return 1 + int(t) }

// TypeID returns the wire type of the payload field, TypeStruct for lists
// and structs, and TypeNone for VarNone and invalid tags.
func (t VarType) TypeID() meta.TypeID {
	switch {
	case t >= VarBool && t <= VarBytes:
		return meta.TypeID(t)
	case t == VarList || t == VarStruct:
		return meta.TypeStruct
	case t >= VarArrBool && t <= VarArrBytes:
		return varArrayTypes[t-VarArrBool]
	}
	return meta.TypeNone
}

// VarTypeOf returns the tag of a scalar or scalar-array type. Enums travel as
// strings and uint8 arrays as bytes; other types have no tag.
func VarTypeOf(typ meta.TypeID) VarType {
	switch {
	case typ >= meta.TypeBool && typ <= meta.TypeBytes:
		return VarType(typ)
	case typ == meta.TypeEnum:
		return VarString
	case typ == meta.TypeArrayUint8:
		return VarBytes
	case typ == meta.TypeArrayEnum:
		return VarArrString
	}
	for i, t := range varArrayTypes {
		if t == typ {
			return VarArrBool + VarType(i)
		}
	}
	return VarNone
}

// RegisterVarValue adds the VarValue struct and its VarType enum to reg
// unless they are already there, and returns the struct.
func RegisterVarValue(reg *meta.Registry) *meta.Struct {
	if st := reg.Struct(VarValueTypeName); st != nil {
		return st
	}
	if reg.Enum(VarTypeTypeName) == nil {
		entries := make([]meta.EnumEntry, len(varTypeNames))
		for i, name := range varTypeNames {
			entries[i] = meta.EnumEntry{Name: name, Value: int32(i)}
		}
		reg.AddEnum(meta.NewEnum(VarTypeTypeName, entries...))
	}

	fields := []*meta.Field{
		meta.NewField(meta.TypeString, "", "name", 0),
		meta.NewField(meta.TypeEnum, VarTypeTypeName, "type", meta.FlagIndex, "indexoffset:-1"),
	}
	for t := VarBool; t <= VarArrBytes; t++ {
		name := "val" + t.String()
		switch t {
		case VarList, VarStruct:
			fields = append(fields, meta.NewField(meta.TypeArrayStruct, VarValueTypeName, name, 0))
		default:
			fields = append(fields, meta.NewField(t.TypeID(), "", name, 0))
		}
	}
	return reg.AddStruct(meta.NewStruct(VarValueTypeName, 0, fields...))
}

func isVarValue(st *meta.Struct) bool {
	return st != nil && st.Name() == VarValueTypeName
}
