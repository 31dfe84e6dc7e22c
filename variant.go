package structwire

import (
	"strings"

	"github.com/andreyvit/structwire/meta"
)

// Variant is a dynamically typed value tree. Scalars and scalar arrays keep
// their payload in Value; VarStruct nodes hold named children in Fields and
// VarList nodes hold unnamed children in Items.
type Variant struct {
	Kind   VarType
	Value  Value
	Fields []NamedVariant
	Items  []Variant
}

type NamedVariant struct {
	Name  string
	Value Variant
}

// ScalarVariant wraps a scalar or scalar-array value. Enums become strings.
func ScalarVariant(v Value) Variant {
	kind := VarTypeOf(v.Type())
	if kind == VarNone {
		return Variant{}
	}
	if t := kind.TypeID(); t != v.Type() {
		v, _ = convertValue(v, t, nil, nil)
	}
	return Variant{Kind: kind, Value: v}
}

func StructVariant(fields ...NamedVariant) Variant {
	return Variant{Kind: VarStruct, Fields: fields}
}

func ListVariant(items ...Variant) Variant {
	return Variant{Kind: VarList, Items: items}
}

func (x Variant) IsNone() bool { return x.Kind == VarNone }

// Get returns the child of a struct variant named name.
func (x Variant) Get(name string) (Variant, bool) {
	for _, f := range x.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Variant{}, false
}

// lookup is Get with a case-insensitive fallback.
func (x Variant) lookup(name string) (Variant, bool) {
	if v, ok := x.Get(name); ok {
		return v, true
	}
	for _, f := range x.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return Variant{}, false
}

// Set replaces the child named name, or appends it.
func (x *Variant) Set(name string, v Variant) {
	for i := range x.Fields {
		if x.Fields[i].Name == name {
			x.Fields[i].Value = v
			return
		}
	}
	x.Fields = append(x.Fields, NamedVariant{name, v})
}

func (x Variant) String() string {
	var buf strings.Builder
	x.format(&buf)
	return buf.String()
}

func (x Variant) format(buf *strings.Builder) {
	switch x.Kind {
	case VarNone:
		buf.WriteString("none")
	case VarStruct:
		buf.WriteByte('{')
		for i, f := range x.Fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(f.Name)
			buf.WriteString(": ")
			f.Value.format(buf)
		}
		buf.WriteByte('}')
	case VarList:
		buf.WriteByte('[')
		for i, item := range x.Items {
			if i > 0 {
				buf.WriteString(", ")
			}
			item.format(buf)
		}
		buf.WriteByte(']')
	default:
		buf.WriteString(x.Value.String())
	}
}

// VarValueBuilder turns the events of one VarValue struct into a Variant.
// It starts out positioned inside the struct, so the owner forwards events
// after the opening EnterStruct (or StartStruct) and the builder calls done
// with the result when it sees the matching ExitStruct (or Finished).
type VarValueBuilder struct {
	reg    *meta.Registry
	frames []varFrame
	done   func(name string, x Variant)
}

type varFrame struct {
	name  string
	kind  VarType
	value Value
	set   bool
	items []Variant
	named []NamedVariant
}

var _ Visitor = (*VarValueBuilder)(nil)

func NewVarValueBuilder(reg *meta.Registry, done func(name string, x Variant)) *VarValueBuilder {
	return &VarValueBuilder{reg: reg, frames: make([]varFrame, 1, 4), done: done}
}

func (b *VarValueBuilder) top() *varFrame {
	return &b.frames[len(b.frames)-1]
}

func (b *VarValueBuilder) NotifyError(off int, msg string) {}

func (b *VarValueBuilder) StartStruct(s *meta.Struct) {
	b.frames = append(b.frames[:0], varFrame{})
}

func (b *VarValueBuilder) Finished() {
	if len(b.frames) == 1 {
		b.ExitStruct(nil)
	}
}

func (b *VarValueBuilder) EnterStruct(f *meta.Field) {
	b.frames = append(b.frames, varFrame{})
}

func (b *VarValueBuilder) ExitStruct(f *meta.Field) {
	fr := *b.top()
	b.frames = b.frames[:len(b.frames)-1]
	x := fr.variant()
	if len(b.frames) == 0 {
		if b.done != nil {
			b.done(fr.name, x)
		}
		return
	}
	parent := b.top()
	if parent.kind == VarStruct {
		parent.named = append(parent.named, NamedVariant{fr.name, x})
	} else {
		parent.items = append(parent.items, x)
	}
}

func (b *VarValueBuilder) EnterStructNull(f *meta.Field) {}

func (b *VarValueBuilder) EnterArrayStruct(f *meta.Field) {
	fr := b.top()
	if fr.kind == VarNone {
		fr.kind = VarType(f.Index() - 1)
	}
}

func (b *VarValueBuilder) ExitArrayStruct(f *meta.Field) {}

func (b *VarValueBuilder) EnterValue(f *meta.Field, v Value) {
	fr := b.top()
	switch f.Index() {
	case 0:
		fr.name = v.Str()
	case 1:
		fr.kind = VarType(enumOrdinalOf(v, b.reg.EnumOf(f)))
	default:
		if fr.kind == VarNone {
			fr.kind = VarType(f.Index() - 1)
		}
		fr.value = v.Clone()
		fr.set = true
	}
}

func (fr *varFrame) variant() Variant {
	switch fr.kind {
	case VarNone:
		return Variant{}
	case VarList:
		return Variant{Kind: VarList, Items: fr.items}
	case VarStruct:
		return Variant{Kind: VarStruct, Fields: fr.named}
	}
	t := fr.kind.TypeID()
	if t == meta.TypeNone {
		return Variant{}
	}
	if !fr.set {
		return Variant{Kind: fr.kind, Value: ZeroValue(t)}
	}
	v, _ := convertValue(fr.value, t, nil, nil)
	return Variant{Kind: fr.kind, Value: v}
}

// EmitVarValue emits x as the fields of a VarValue struct, without the
// enclosing EnterStruct and ExitStruct. st is the VarValue descriptor. The
// name and type fields are always emitted, followed by the payload field
// selected by the type.
func EmitVarValue(v Visitor, st *meta.Struct, name string, x Variant) {
	v.EnterValue(st.FieldByIndex(0), StringValue(name))
	v.EnterValue(st.FieldByIndex(1), EnumValue(int32(x.Kind)))
	f := st.FieldByIndex(x.Kind.payloadIndex())
	if x.Kind == VarNone || f == nil {
		return
	}
	switch x.Kind {
	case VarList:
		v.EnterArrayStruct(f)
		for _, item := range x.Items {
			v.EnterStruct(f.Elem())
			EmitVarValue(v, st, "", item)
			v.ExitStruct(f.Elem())
		}
		v.ExitArrayStruct(f)
	case VarStruct:
		v.EnterArrayStruct(f)
		for _, nv := range x.Fields {
			v.EnterStruct(f.Elem())
			EmitVarValue(v, st, nv.Name, nv.Value)
			v.ExitStruct(f.Elem())
		}
		v.ExitArrayStruct(f)
	default:
		val, _ := convertValue(x.Value, f.Type(), nil, nil)
		v.EnterValue(f, val)
	}
}
