package structwire

import (
	"context"
	"log/slog"

	"github.com/andreyvit/structwire/meta"
)

// VariantWalker emits a Variant tree as a traversal of a struct type. Struct
// children are matched to fields by name, case-insensitively as a fallback;
// children without a matching field are ignored, and scalar payloads are
// coerced to the field types.
type VariantWalker struct {
	reg    *meta.Registry
	logger *slog.Logger
}

func NewVariantWalker(reg *meta.Registry, logger *slog.Logger) *VariantWalker {
	return &VariantWalker{reg: reg, logger: loggerOr(logger)}
}

func (w *VariantWalker) Walk(x Variant, typeName string, v Visitor) error {
	st := w.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return parseErrf(nil, 0, ErrTypeNotFound, "struct %s", typeName)
	}
	v.StartStruct(st)
	if isVarValue(st) {
		EmitVarValue(v, st, "", x)
	} else {
		w.walkStruct(st, x, v)
	}
	v.Finished()
	return nil
}

func (w *VariantWalker) walkStruct(st *meta.Struct, x Variant, v Visitor) {
	if x.Kind != VarStruct {
		return
	}
	for _, f := range st.Fields() {
		if child, ok := x.lookup(f.Name()); ok {
			w.walkField(f, child, v)
		}
	}
}

func (w *VariantWalker) walkElem(f *meta.Field, st *meta.Struct, x Variant, v Visitor) {
	v.EnterStruct(f)
	if isVarValue(st) {
		EmitVarValue(v, st, "", x)
	} else {
		w.walkStruct(st, x, v)
	}
	v.ExitStruct(f)
}

func (w *VariantWalker) walkField(f *meta.Field, x Variant, v Visitor) {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return
	case meta.TypeStruct:
		st := w.reg.StructOf(f)
		if st == nil {
			w.logger.LogAttrs(context.Background(), slog.LevelDebug, "variant: unknown struct", slog.String("field", f.String()), slog.String("type", f.TypeName()))
			return
		}
		if x.IsNone() && !isVarValue(st) {
			if f.Has(meta.FlagNullable) {
				v.EnterStructNull(f)
			}
			return
		}
		w.walkElem(f, st, x, v)
	case meta.TypeArrayStruct:
		st := w.reg.StructOf(f)
		if st == nil {
			return
		}
		items := x.Items
		if x.Kind == VarStruct {
			items = []Variant{x}
		}
		v.EnterArrayStruct(f)
		for _, item := range items {
			w.walkElem(f.Elem(), st, item, v)
		}
		v.ExitArrayStruct(f)
	default:
		if x.IsNone() {
			return
		}
		enum := w.reg.EnumOf(f)
		var val Value
		var ok bool
		if x.Kind == VarList && f.Type().IsArray() {
			elems := make([]Value, len(x.Items))
			ok = true
			for i, item := range x.Items {
				var eok bool
				elems[i], eok = convertValue(item.Value, f.Type().Elem(), nil, enum)
				ok = ok && eok
			}
			val = ArrayFromElems(f.Type(), elems)
		} else {
			val, ok = convertValue(x.Value, f.Type(), nil, enum)
		}
		if !ok {
			w.logger.LogAttrs(context.Background(), slog.LevelDebug, "variant: value coerced to default", slog.String("field", f.String()), slog.String("value", x.String()))
		}
		v.EnterValue(f, val)
	}
}
