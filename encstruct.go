package structwire

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/andreyvit/structwire/meta"
)

// StructWalker produces the traversal of a Go struct value. Fields are
// bound to the descriptor as described for Materializer, and Go values are
// coerced into the field types; enum fields accept both names and ordinals.
//
// A nil pointer to a nullable struct produces EnterStructNull; a nil pointer
// to any other struct, and an empty Variant, produce nothing.
type StructWalker struct {
	reg    *meta.Registry
	logger *slog.Logger
}

func NewStructWalker(reg *meta.Registry, logger *slog.Logger) *StructWalker {
	return &StructWalker{reg: reg, logger: loggerOr(logger)}
}

// Walk emits the traversal of goValue, a struct or a pointer to one, as a
// struct of type typeName. For the VarValue type, goValue may also be a
// Variant.
func (w *StructWalker) Walk(goValue any, typeName string, v Visitor) error {
	st := w.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return fmt.Errorf("struct %s: %w", typeName, ErrTypeNotFound)
	}
	rv := reflect.ValueOf(goValue)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("walk %s: nil %v", typeName, rv.Type())
		}
		rv = rv.Elem()
	}
	if isVarValue(st) && rv.Type() == variantType {
		v.StartStruct(st)
		EmitVarValue(v, st, "", rv.Interface().(Variant))
		v.Finished()
		return nil
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("walk %s: %v is not a struct", typeName, rv.Type())
	}
	v.StartStruct(st)
	w.walkStruct(rv, st, v)
	v.Finished()
	return nil
}

func (w *StructWalker) walkStruct(rv reflect.Value, st *meta.Struct, v Visitor) {
	b := bindingFor(rv.Type(), st)
	for _, f := range st.Fields() {
		fb := b.fields[f.Index()]
		if fb == nil {
			continue
		}
		fv := fb.fieldOf(rv, false)
		if !fv.IsValid() {
			continue
		}
		w.walkField(f, fb, fv, v)
	}
}

func (w *StructWalker) walkField(f *meta.Field, fb *fieldBinding, fv reflect.Value, v Visitor) {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return
	case meta.TypeStruct:
		st := w.reg.StructOf(f)
		if st == nil {
			return
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				if f.Has(meta.FlagNullable) {
					v.EnterStructNull(f)
				}
				return
			}
			fv = fv.Elem()
		}
		if fb.variant && isVarValue(st) {
			x := fv.Interface().(Variant)
			if x.IsNone() {
				return
			}
			v.EnterStruct(f)
			EmitVarValue(v, st, "", x)
			v.ExitStruct(f)
			return
		}
		if fv.Kind() != reflect.Struct {
			w.mismatch(f, fv)
			return
		}
		v.EnterStruct(f)
		w.walkStruct(fv, st, v)
		v.ExitStruct(f)
	case meta.TypeArrayStruct:
		st := w.reg.StructOf(f)
		if st == nil {
			return
		}
		if fv.Kind() != reflect.Slice && fv.Kind() != reflect.Array {
			w.mismatch(f, fv)
			return
		}
		elem := f.Elem()
		v.EnterArrayStruct(f)
		for i, n := 0, fv.Len(); i < n; i++ {
			ev := fv.Index(i)
			v.EnterStruct(elem)
			if ev.Kind() == reflect.Pointer {
				if ev.IsNil() {
					v.ExitStruct(elem)
					continue
				}
				ev = ev.Elem()
			}
			switch {
			case isVarValue(st) && ev.Type() == variantType:
				EmitVarValue(v, st, "", ev.Interface().(Variant))
			case ev.Kind() == reflect.Struct:
				w.walkStruct(ev, st, v)
			}
			v.ExitStruct(elem)
		}
		v.ExitArrayStruct(f)
	default:
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				return
			}
			fv = fv.Elem()
		}
		var val Value
		if fb.variant {
			x := fv.Interface().(Variant)
			if x.IsNone() {
				return
			}
			val = x.Value
		} else if fb.goType == meta.TypeNone {
			w.mismatch(f, fv)
			return
		} else {
			val = goValue(fv, fb.goType)
		}
		conv, ok := convertValue(val, f.Type(), nil, w.reg.EnumOf(f))
		if !ok {
			w.logger.LogAttrs(context.Background(), slog.LevelDebug, "struct: value coerced to default", slog.String("field", f.String()), slog.String("value", val.String()))
		}
		v.EnterValue(f, conv)
	}
}

func (w *StructWalker) mismatch(f *meta.Field, fv reflect.Value) {
	w.logger.LogAttrs(context.Background(), slog.LevelDebug, "struct: Go type does not fit field", slog.String("field", f.String()), slog.String("gotype", fv.Type().String()))
}
