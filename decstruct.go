package structwire

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/andreyvit/structwire/meta"
)

// Materializer fills a Go struct from a traversal.
//
// Go fields are bound to descriptor fields by their `wire` tag or by a
// case-insensitive name match, and event values are coerced into the Go
// field types: numbers format into strings, strings parse into numbers,
// enum names and ordinals convert both ways, and unknown enum names become
// zero. Pointer fields are allocated on first access. Descriptor fields
// without a Go counterpart are ignored.
//
// A VarValue struct landing in a Variant field is handed to a
// VarValueBuilder, which receives every event up to the matching
// ExitStruct and then stores its result.
type Materializer struct {
	reg    *meta.Registry
	logger *slog.Logger
	dest   reflect.Value

	levels []matLevel
	sub    Visitor
	err    error
}

type matLevel struct {
	rv    reflect.Value // struct being filled, invalid when ignored
	st    *meta.Struct
	b     *structBinding
	slice reflect.Value // for arrays of structs
	array bool
}

var _ Visitor = (*Materializer)(nil)

// NewMaterializer returns a visitor filling dest, a non-nil pointer to a
// struct or to a Variant.
func NewMaterializer(reg *meta.Registry, dest any, logger *slog.Logger) *Materializer {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		panic(fmt.Errorf("Materializer: destination must be a non-nil pointer, got %T", dest))
	}
	return &Materializer{reg: reg, logger: loggerOr(logger), dest: rv.Elem()}
}

// Err returns the error reported by the producer, if any.
func (m *Materializer) Err() error {
	return m.err
}

func (m *Materializer) top() *matLevel {
	if len(m.levels) == 0 {
		panic("Materializer: event outside of a struct")
	}
	return &m.levels[len(m.levels)-1]
}

func (m *Materializer) NotifyError(off int, msg string) {
	if m.err == nil {
		m.err = fmt.Errorf("at %d: %s", off, msg)
	}
}

func (m *Materializer) StartStruct(s *meta.Struct) {
	m.levels = m.levels[:0]
	m.sub = nil
	m.err = nil
	if isVarValue(s) && m.dest.Type() == variantType {
		m.handOff(m.dest)
		return
	}
	if m.dest.Kind() != reflect.Struct {
		panic(fmt.Errorf("Materializer: cannot fill %v from %s", m.dest.Type(), s.Name()))
	}
	m.push(m.dest, s)
}

func (m *Materializer) Finished() {
	if m.sub != nil {
		m.sub.Finished()
		m.sub = nil
	}
	m.levels = m.levels[:0]
}

// handOff routes the events of the VarValue struct just entered to a
// builder that stores its result in target and then returns control.
func (m *Materializer) handOff(target reflect.Value) {
	m.sub = NewVarValueBuilder(m.reg, func(_ string, x Variant) {
		target.Set(reflect.ValueOf(x))
		m.sub = nil
	})
}

func (m *Materializer) push(rv reflect.Value, st *meta.Struct) {
	l := matLevel{rv: rv, st: st}
	if rv.IsValid() && st != nil {
		l.b = bindingFor(rv.Type(), st)
	} else {
		l.rv = reflect.Value{}
	}
	m.levels = append(m.levels, l)
}

func (m *Materializer) pop() {
	m.levels = m.levels[:len(m.levels)-1]
}

// field returns the Go field bound to f in the current struct, or an invalid
// value.
func (m *Materializer) field(l *matLevel, f *meta.Field) (reflect.Value, *fieldBinding) {
	if !l.rv.IsValid() || l.b == nil || f.Index() < 0 || f.Index() >= len(l.b.fields) {
		return reflect.Value{}, nil
	}
	fb := l.b.fields[f.Index()]
	if fb == nil {
		return reflect.Value{}, nil
	}
	return fb.fieldOf(l.rv, true), fb
}

// deref allocates a nil pointer and returns what it points to.
func deref(rv reflect.Value) reflect.Value {
	if rv.Kind() != reflect.Pointer {
		return rv
	}
	if rv.IsNil() {
		rv.Set(reflect.New(rv.Type().Elem()))
	}
	return rv.Elem()
}

func (m *Materializer) EnterStruct(f *meta.Field) {
	if m.sub != nil {
		m.sub.EnterStruct(f)
		return
	}
	st := m.reg.StructOf(f)
	l := m.top()

	var target reflect.Value
	if l.array {
		if l.slice.IsValid() {
			n := l.slice.Len()
			l.slice.Set(reflect.Append(l.slice, reflect.Zero(l.slice.Type().Elem())))
			target = deref(l.slice.Index(n))
		}
	} else if fv, _ := m.field(l, f); fv.IsValid() {
		target = deref(fv)
	}

	if target.IsValid() && isVarValue(st) && target.Type() == variantType {
		m.handOff(target)
		return
	}
	if target.IsValid() && target.Kind() != reflect.Struct {
		m.mismatch(f, target)
		target = reflect.Value{}
	}
	m.push(target, st)
}

func (m *Materializer) ExitStruct(f *meta.Field) {
	if m.sub != nil {
		m.sub.ExitStruct(f)
		return
	}
	if m.top().array {
		panic(fmt.Errorf("Materializer: ExitStruct(%v) inside an array", f))
	}
	m.pop()
}

func (m *Materializer) EnterStructNull(f *meta.Field) {
	if m.sub != nil {
		m.sub.EnterStructNull(f)
		return
	}
	l := m.top()
	if fv, _ := m.field(l, f); fv.IsValid() {
		fv.SetZero()
	}
}

func (m *Materializer) EnterArrayStruct(f *meta.Field) {
	if m.sub != nil {
		m.sub.EnterArrayStruct(f)
		return
	}
	l := matLevel{array: true, st: m.reg.StructOf(f)}
	if fv, _ := m.field(m.top(), f); fv.IsValid() {
		if fv.Kind() == reflect.Slice {
			fv.SetZero()
			l.slice = fv
		} else {
			m.mismatch(f, fv)
		}
	}
	m.levels = append(m.levels, l)
}

func (m *Materializer) ExitArrayStruct(f *meta.Field) {
	if m.sub != nil {
		m.sub.ExitArrayStruct(f)
		return
	}
	if !m.top().array {
		panic(fmt.Errorf("Materializer: ExitArrayStruct(%v) outside of an array", f))
	}
	m.pop()
}

func (m *Materializer) EnterValue(f *meta.Field, v Value) {
	if m.sub != nil {
		m.sub.EnterValue(f, v)
		return
	}
	fv, fb := m.field(m.top(), f)
	if !fv.IsValid() {
		return
	}
	fv = deref(fv)
	if fb.variant {
		if v.Type().Elem() == meta.TypeEnum {
			v, _ = convertValue(v, VarTypeOf(v.Type()).TypeID(), m.reg.EnumOf(f), nil)
		}
		fv.Set(reflect.ValueOf(ScalarVariant(v.Clone())))
		return
	}
	if fb.goType == meta.TypeNone {
		m.mismatch(f, fv)
		return
	}
	conv, ok := convertValue(v, fb.goType, m.reg.EnumOf(f), nil)
	if !ok {
		m.logger.LogAttrs(context.Background(), slog.LevelDebug, "struct: value coerced to default", slog.String("field", f.String()), slog.String("value", v.String()))
	}
	setGoValue(fv, conv)
}

func (m *Materializer) mismatch(f *meta.Field, fv reflect.Value) {
	m.logger.LogAttrs(context.Background(), slog.LevelDebug, "struct: Go type does not fit field", slog.String("field", f.String()), slog.String("gotype", fv.Type().String()))
}
