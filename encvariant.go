package structwire

import "github.com/andreyvit/structwire/meta"

// VariantBuilder collects a traversal into a Variant tree: structs become
// VarStruct nodes with children named after fields, arrays of structs become
// VarList nodes, enums are stored by name. A VarValue struct is decoded into
// the Variant it carries.
type VariantBuilder struct {
	reg    *meta.Registry
	nodes  []Variant
	names  []string
	sub    *VarValueBuilder
	failed bool

	Result Variant
}

var _ Visitor = (*VariantBuilder)(nil)

func NewVariantBuilder(reg *meta.Registry) *VariantBuilder {
	return &VariantBuilder{reg: reg}
}

// Failed reports whether the producer signalled an error.
func (b *VariantBuilder) Failed() bool { return b.failed }

func (b *VariantBuilder) NotifyError(off int, msg string) {
	b.failed = true
}

func (b *VariantBuilder) StartStruct(s *meta.Struct) {
	b.nodes = b.nodes[:0]
	b.names = b.names[:0]
	b.failed = false
	b.Result = Variant{}
	if isVarValue(s) {
		b.sub = NewVarValueBuilder(b.reg, func(_ string, x Variant) {
			b.sub = nil
			b.Result = x
		})
		return
	}
	b.sub = nil
	b.push("", Variant{Kind: VarStruct})
}

func (b *VariantBuilder) Finished() {
	if b.sub != nil {
		b.sub.Finished()
		b.sub = nil
		return
	}
	if len(b.nodes) > 0 {
		b.Result = b.nodes[0]
	}
	b.nodes = b.nodes[:0]
	b.names = b.names[:0]
}

func (b *VariantBuilder) push(name string, x Variant) {
	b.nodes = append(b.nodes, x)
	b.names = append(b.names, name)
}

func (b *VariantBuilder) pop() {
	n := len(b.nodes) - 1
	x, name := b.nodes[n], b.names[n]
	b.nodes, b.names = b.nodes[:n], b.names[:n]
	b.attach(name, x)
}

func (b *VariantBuilder) attach(name string, x Variant) {
	if len(b.nodes) == 0 {
		b.Result = x
		return
	}
	parent := &b.nodes[len(b.nodes)-1]
	if parent.Kind == VarList {
		parent.Items = append(parent.Items, x)
	} else {
		parent.Fields = append(parent.Fields, NamedVariant{name, x})
	}
}

func (b *VariantBuilder) EnterStruct(f *meta.Field) {
	if b.sub != nil {
		b.sub.EnterStruct(f)
		return
	}
	if isVarValue(b.reg.StructOf(f)) {
		name := f.Name()
		b.sub = NewVarValueBuilder(b.reg, func(_ string, x Variant) {
			b.sub = nil
			b.attach(name, x)
		})
		return
	}
	b.push(f.Name(), Variant{Kind: VarStruct})
}

func (b *VariantBuilder) ExitStruct(f *meta.Field) {
	if b.sub != nil {
		b.sub.ExitStruct(f)
		return
	}
	b.pop()
}

func (b *VariantBuilder) EnterStructNull(f *meta.Field) {
	if b.sub != nil {
		b.sub.EnterStructNull(f)
		return
	}
	b.attach(f.Name(), Variant{})
}

func (b *VariantBuilder) EnterArrayStruct(f *meta.Field) {
	if b.sub != nil {
		b.sub.EnterArrayStruct(f)
		return
	}
	b.push(f.Name(), Variant{Kind: VarList})
}

func (b *VariantBuilder) ExitArrayStruct(f *meta.Field) {
	if b.sub != nil {
		b.sub.ExitArrayStruct(f)
		return
	}
	b.pop()
}

func (b *VariantBuilder) EnterValue(f *meta.Field, v Value) {
	if b.sub != nil {
		b.sub.EnterValue(f, v)
		return
	}
	switch v.Type() {
	case meta.TypeEnum:
		v, _ = convertValue(v, meta.TypeString, b.reg.EnumOf(f), nil)
	case meta.TypeArrayEnum:
		v, _ = convertValue(v, meta.TypeArrayString, b.reg.EnumOf(f), nil)
	default:
		v = v.Clone()
	}
	b.attach(f.Name(), ScalarVariant(v))
}
