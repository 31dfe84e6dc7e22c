package structwire

import "github.com/andreyvit/structwire/meta"

// DefaultValues converts between the sparse and the complete representation
// of a struct traversal.
//
// When compacting, fields holding the default value of their type are
// dropped, and a nested struct or array whose content is dropped entirely
// disappears together with its enter and exit events. When expanding, every
// field the producer did not visit is synthesized with its default value,
// recursively, so the consumer observes the complete field set in index
// order.
//
// In both modes an array of structs with the fixedarray property is padded
// with empty elements up to its declared length. Everything inside a VarValue
// struct passes through unchanged.
type DefaultValues struct {
	next    Visitor
	reg     *meta.Registry
	compact bool

	levels   []dvLevel
	varDepth int
	failed   bool
}

type dvLevel struct {
	field   *meta.Field
	st      *meta.Struct
	array   bool
	pending bool
	seen    []bool
	filled  int
	elems   int
}

func NewDefaultValues(next Visitor, reg *meta.Registry, compact bool) *DefaultValues {
	return &DefaultValues{next: next, reg: reg, compact: compact}
}

func (dv *DefaultValues) top() *dvLevel {
	if len(dv.levels) == 0 {
		panic("DefaultValues: event outside of a struct")
	}
	return &dv.levels[len(dv.levels)-1]
}

func (dv *DefaultValues) push(f *meta.Field, st *meta.Struct, array, pending bool) {
	l := dvLevel{field: f, st: st, array: array, pending: pending}
	if !dv.compact && st != nil && !array {
		l.seen = make([]bool, st.NumFields())
	}
	dv.levels = append(dv.levels, l)
}

func (dv *DefaultValues) pop() dvLevel {
	l := *dv.top()
	dv.levels = dv.levels[:len(dv.levels)-1]
	return l
}

func (dv *DefaultValues) NotifyError(off int, msg string) {
	dv.failed = true
	dv.next.NotifyError(off, msg)
}

func (dv *DefaultValues) StartStruct(s *meta.Struct) {
	dv.levels = dv.levels[:0]
	dv.varDepth = 0
	dv.failed = false
	if isVarValue(s) {
		dv.varDepth = 1
	}
	dv.push(nil, s, false, false)
	dv.next.StartStruct(s)
}

func (dv *DefaultValues) Finished() {
	if !dv.failed && !dv.compact && dv.varDepth == 0 && len(dv.levels) == 1 {
		dv.fillUpTo(dv.top(), -1)
	}
	dv.levels = dv.levels[:0]
	dv.next.Finished()
}

func (dv *DefaultValues) EnterStruct(f *meta.Field) {
	if dv.varDepth > 0 {
		dv.varDepth++
		dv.next.EnterStruct(f)
		return
	}
	parent := dv.top()
	st := dv.reg.StructOf(f)
	if isVarValue(st) {
		if parent.array {
			parent.elems++
		}
		dv.arrive(parent, f)
		dv.varDepth = 1
		dv.next.EnterStruct(f)
		return
	}
	if parent.array {
		parent.elems++
		if dv.compact {
			dv.flush()
		}
		dv.push(f, st, false, false)
		dv.next.EnterStruct(f)
		return
	}
	if dv.compact {
		dv.push(f, st, false, true)
		return
	}
	dv.arrive(parent, f)
	dv.push(f, st, false, false)
	dv.next.EnterStruct(f)
}

func (dv *DefaultValues) ExitStruct(f *meta.Field) {
	if dv.varDepth > 0 {
		dv.varDepth--
		dv.next.ExitStruct(f)
		return
	}
	l := dv.top()
	if l.array {
		panic("DefaultValues: ExitStruct inside an array")
	}
	if dv.compact {
		if dv.pop().pending {
			return
		}
	} else {
		dv.fillUpTo(l, -1)
		dv.pop()
	}
	dv.next.ExitStruct(f)
}

func (dv *DefaultValues) EnterStructNull(f *meta.Field) {
	if dv.varDepth > 0 {
		dv.next.EnterStructNull(f)
		return
	}
	dv.arrive(dv.top(), f)
	dv.next.EnterStructNull(f)
}

func (dv *DefaultValues) EnterArrayStruct(f *meta.Field) {
	if dv.varDepth > 0 {
		dv.next.EnterArrayStruct(f)
		return
	}
	if dv.compact {
		dv.push(f, dv.reg.StructOf(f), true, true)
		return
	}
	dv.arrive(dv.top(), f)
	dv.push(f, dv.reg.StructOf(f), true, false)
	dv.next.EnterArrayStruct(f)
}

func (dv *DefaultValues) ExitArrayStruct(f *meta.Field) {
	if dv.varDepth > 0 {
		dv.next.ExitArrayStruct(f)
		return
	}
	l := dv.pop()
	if !l.array {
		panic("DefaultValues: ExitArrayStruct outside of an array")
	}
	if l.pending {
		return
	}
	if n, ok := f.FixedArray(); ok {
		for i := l.elems; i < n; i++ {
			dv.emitDefaultStruct(f.Elem(), l.st)
		}
	}
	dv.next.ExitArrayStruct(f)
}

func (dv *DefaultValues) EnterValue(f *meta.Field, v Value) {
	if dv.varDepth > 0 {
		dv.next.EnterValue(f, v)
		return
	}
	if dv.compact {
		if dv.isDefault(f, v) {
			return
		}
		dv.flush()
	} else {
		dv.arrive(dv.top(), f)
	}
	dv.next.EnterValue(f, v)
}

// arrive records that field f of the current struct is about to be
// forwarded. In compacting mode it flushes deferred levels; in expanding mode
// it first synthesizes the unvisited fields preceding f.
func (dv *DefaultValues) arrive(l *dvLevel, f *meta.Field) {
	if dv.compact {
		dv.flush()
		return
	}
	if l.array {
		return
	}
	dv.fillUpTo(l, f.Index())
	if i := f.Index(); i >= 0 && i < len(l.seen) {
		l.seen[i] = true
	}
}

func (dv *DefaultValues) flush() {
	start := len(dv.levels)
	for start > 0 && dv.levels[start-1].pending {
		start--
	}
	for i := start; i < len(dv.levels); i++ {
		l := &dv.levels[i]
		if l.array {
			dv.next.EnterArrayStruct(l.field)
		} else {
			dv.next.EnterStruct(l.field)
		}
		l.pending = false
	}
}

// fillUpTo synthesizes default values for the unseen fields of l with index
// below limit, or all remaining fields when limit is negative.
func (dv *DefaultValues) fillUpTo(l *dvLevel, limit int) {
	if l.st == nil {
		return
	}
	if limit < 0 || limit > len(l.seen) {
		limit = len(l.seen)
	}
	for i := l.filled; i < limit; i++ {
		if !l.seen[i] {
			l.seen[i] = true
			dv.emitDefault(l.st.FieldByIndex(i))
		}
	}
	if limit > l.filled {
		l.filled = limit
	}
}

func (dv *DefaultValues) emitDefault(f *meta.Field) {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return
	case meta.TypeStruct:
		dv.emitDefaultStruct(f, dv.reg.StructOf(f))
	case meta.TypeArrayStruct:
		dv.next.EnterArrayStruct(f)
		if n, ok := f.FixedArray(); ok {
			st := dv.reg.StructOf(f)
			for i := 0; i < n; i++ {
				dv.emitDefaultStruct(f.Elem(), st)
			}
		}
		dv.next.ExitArrayStruct(f)
	default:
		dv.next.EnterValue(f, ZeroValue(f.Type()))
	}
}

func (dv *DefaultValues) emitDefaultStruct(f *meta.Field, st *meta.Struct) {
	dv.next.EnterStruct(f)
	switch {
	case dv.compact || st == nil:
	case isVarValue(st):
		EmitVarValue(dv.next, st, "", Variant{})
	default:
		for _, sub := range st.Fields() {
			dv.emitDefault(sub)
		}
	}
	dv.next.ExitStruct(f)
}

func (dv *DefaultValues) isDefault(f *meta.Field, v Value) bool {
	if v.Type() == meta.TypeEnum && v.IsEnumName() {
		return dv.reg.EnumValueByName(f, v.Str()) == 0
	}
	return v.IsZero()
}
