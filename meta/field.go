package meta

import (
	"fmt"
	"strconv"
	"strings"
)

type FieldFlags uint32

const (
	FlagProtoVarint FieldFlags = 1 << iota
	FlagProtoZigzag
	FlagNullable
	FlagOneRequired
	FlagIndex
)

var fieldFlagNames = []struct {
	flag  FieldFlags
	short string
	long  string
}{
	{FlagProtoVarint, "varint", "METAFLAG_PROTO_VARINT"},
	{FlagProtoZigzag, "zigzag", "METAFLAG_PROTO_ZIGZAG"},
	{FlagNullable, "nullable", "METAFLAG_NULLABLE"},
	{FlagOneRequired, "onerequired", "METAFLAG_ONE_REQUIRED"},
	{FlagIndex, "index", "METAFLAG_INDEX"},
}

func ParseFieldFlag(s string) (FieldFlags, error) {
	for _, fn := range fieldFlagNames {
		if strings.EqualFold(s, fn.short) || s == fn.long {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown field flag %q", s)
}

func (f FieldFlags) Has(v FieldFlags) bool { return f&v == v }

func (f FieldFlags) Names() []string {
	var names []string
	for _, fn := range fieldFlagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.short)
		}
	}
	return names
}

// Well-known field properties.
const (
	PropAbortStruct = "abortstruct"
	PropIndexMode   = "indexmode"
	PropIndexOffset = "indexoffset"
	PropFixedArray  = "fixedarray"
	PropQtType      = "qttype"
	PropEnumBits    = "enumbits"

	IndexModeMapping = "mapping"
)

// Field describes a single member of a Struct.
type Field struct {
	typ      TypeID
	typeName string
	name     string
	desc     string
	flags    FieldFlags
	index    int
	attrs    []string
	props    map[string]string
	elem     *Field
	parent   *Struct
}

// NewField returns a field descriptor. Attrs hold comma-separated
// "key:value" properties; a key without a value is present with the value "".
// The field index is assigned when the field is added to a struct.
func NewField(typ TypeID, typeName, name string, flags FieldFlags, attrs ...string) *Field {
	if name == "" {
		panic("field name is required")
	}
	if (typ.Elem() == TypeStruct || typ.Elem() == TypeEnum) && typeName == "" {
		panic(fmt.Errorf("field %s of type %v needs a type name", name, typ))
	}
	f := &Field{
		typ:      typ,
		typeName: typeName,
		name:     name,
		flags:    flags,
		index:    -1,
		attrs:    attrs,
		props:    parseProperties(attrs),
	}
	if typ.IsArray() {
		f.elem = &Field{
			typ:      typ.Elem(),
			typeName: typeName,
			name:     name,
			flags:    flags,
			index:    -1,
			attrs:    attrs,
			props:    f.props,
		}
	}
	return f
}

// WithDescription sets the field's human-readable description and returns f.
func (f *Field) WithDescription(desc string) *Field {
	f.desc = desc
	return f
}

func (f *Field) Type() TypeID { return f.typ }
func (f *Field) TypeName() string { return f.typeName }
func (f *Field) Name() string { return f.name }
func (f *Field) Description() string { return f.desc }
func (f *Field) Flags() FieldFlags { return f.flags }
func (f *Field) Index() int { return f.index }
func (f *Field) Attrs() []string { return f.attrs }
func (f *Field) Struct() *Struct { return f.parent }
func (f *Field) Has(v FieldFlags) bool {
	return f.flags.Has(v)
}

// Elem returns the descriptor of a single element of an array field, or nil
// for non-array fields. Elements share the index and properties of the array.
func (f *Field) Elem() *Field { return f.elem }

func (f *Field) String() string {
	if f.parent != nil {
		return f.parent.name + "." + f.name
	}
	return f.name
}

func (f *Field) Property(key string) string {
	return f.props[key]
}

func (f *Field) HasProperty(key string) bool {
	_, ok := f.props[key]
	return ok
}

func (f *Field) IndexOffset() int64 {
	v, _ := strconv.ParseInt(f.props[PropIndexOffset], 10, 64)
	return v
}

func (f *Field) IndexMode() string { return f.props[PropIndexMode] }
func (f *Field) QtType() string { return f.props[PropQtType] }

// AbortValues returns the pipe-separated alternatives of the abortstruct
// property.
func (f *Field) AbortValues() []string {
	v := f.props[PropAbortStruct]
	if v == "" {
		return nil
	}
	return strings.Split(v, "|")
}

func (f *Field) FixedArray() (int, bool) {
	v := f.props[PropFixedArray]
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// EnumBits returns the wire width of an enum in fixed-layout formats,
// defaulting to 32.
func (f *Field) EnumBits() int {
	switch f.props[PropEnumBits] {
	case "8":
		return 8
	case "16":
		return 16
	case "64":
		return 64
	default:
		return 32
	}
}

func parseProperties(attrs []string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	props := make(map[string]string)
	for _, attr := range attrs {
		for _, item := range strings.Split(attr, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			k, v, _ := strings.Cut(item, ":")
			props[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return props
}
