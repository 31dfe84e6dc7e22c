package structwire

import (
	"slices"
	"strconv"
	"strings"

	"github.com/andreyvit/structwire/meta"
)

type abortState uint8

const (
	abortNone abortState = iota
	abortField
	abortStruct
)

const indexNotAvailable = -1

// indexLevel tracks index redirection and abort state of one struct level.
// Once an index field selects a target, only the target and fields up to
// the index field remain active; once an abort sentinel is seen, nothing
// else in the level is.
type indexLevel struct {
	abort             abortState
	indexOfIndexField int
	index             int
}

func newIndexLevel() indexLevel {
	return indexLevel{indexOfIndexField: indexNotAvailable, index: indexNotAvailable}
}

func (l *indexLevel) skips(f *meta.Field) bool {
	if l.abort != abortNone {
		return true
	}
	return l.index != indexNotAvailable && l.index != f.Index() && l.indexOfIndexField < f.Index()
}

// observe applies the abortstruct and index properties of f after its value
// v has been accepted.
func (l *indexLevel) observe(reg *meta.Registry, f *meta.Field, v Value) {
	if sentinels := f.AbortValues(); len(sentinels) > 0 {
		for _, s := range abortForms(reg, f, v) {
			if slices.Contains(sentinels, s) {
				l.abort = abortField
				return
			}
		}
		return
	}
	if !f.Has(meta.FlagIndex) {
		return
	}
	switch v.Type() {
	case meta.TypeString:
		l.selectIndex(f, v.Str(), func() (int64, bool) { return leadingInt(v.Str()), true })
	case meta.TypeEnum:
		n := enumOrdinal(reg, f, v)
		l.selectIndex(f, strconv.FormatInt(int64(n), 10), func() (int64, bool) { return int64(n), true })
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64,
		meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		n := v.Int()
		l.selectIndex(f, strconv.FormatInt(n, 10), func() (int64, bool) { return n, true })
	}
}

func (l *indexLevel) selectIndex(f *meta.Field, key string, raw func() (int64, bool)) {
	base := f.Index() + int(f.IndexOffset())
	if f.IndexMode() == meta.IndexModeMapping {
		mapped := f.Property(key)
		if mapped == "" {
			l.abort = abortField
			return
		}
		n, _ := strconv.Atoi(mapped)
		l.indexOfIndexField = base
		l.index = base + 1 + n
		return
	}
	n, ok := raw()
	if !ok || n < 0 {
		l.abort = abortField
		return
	}
	l.indexOfIndexField = base
	l.index = base + 1 + int(n)
}

// leadingInt parses the optionally signed decimal prefix of s after leading
// whitespace, and returns 0 when there is none. "12px" is 12, "abc" is 0.
func leadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}

// abortForms returns the textual forms of v that abortstruct sentinels are
// matched against. Enums match by name and by alias.
func abortForms(reg *meta.Registry, f *meta.Field, v Value) []string {
	switch v.Type() {
	case meta.TypeString:
		return []string{v.Str()}
	case meta.TypeBool:
		return []string{strconv.FormatBool(v.Bool())}
	case meta.TypeEnum:
		e := reg.EnumOf(f)
		if e == nil {
			if v.IsEnumName() {
				return []string{v.Str()}
			}
			return nil
		}
		n := enumOrdinal(reg, f, v)
		forms := []string{e.NameByValue(n)}
		if alias := e.AliasByValue(n); alias != "" {
			forms = append(forms, alias)
		}
		if v.IsEnumName() {
			forms = append(forms, v.Str())
		}
		return forms
	case meta.TypeInt8, meta.TypeInt16, meta.TypeInt32, meta.TypeInt64:
		return []string{strconv.FormatInt(v.Int(), 10)}
	case meta.TypeUint8, meta.TypeUint16, meta.TypeUint32, meta.TypeUint64:
		return []string{strconv.FormatUint(v.Uint(), 10)}
	}
	return nil
}

func enumOrdinal(reg *meta.Registry, f *meta.Field, v Value) int32 {
	if v.IsEnumName() {
		return reg.EnumValueByName(f, v.Str())
	}
	return int32(v.Int())
}

// AbortAndIndex filters a traversal according to the abortstruct, index,
// indexmode and indexoffset field properties. Filtered fields never reach
// the next visitor; a filtered nested struct or array is dropped together
// with everything inside it.
type AbortAndIndex struct {
	next   Visitor
	reg    *meta.Registry
	levels []indexLevel
}

func NewAbortAndIndex(next Visitor, reg *meta.Registry) *AbortAndIndex {
	return &AbortAndIndex{next: next, reg: reg}
}

func (ai *AbortAndIndex) top() *indexLevel {
	if len(ai.levels) == 0 {
		panic("AbortAndIndex: event outside of a struct")
	}
	return &ai.levels[len(ai.levels)-1]
}

func (ai *AbortAndIndex) NotifyError(off int, msg string) {
	ai.next.NotifyError(off, msg)
}

func (ai *AbortAndIndex) StartStruct(s *meta.Struct) {
	ai.levels = append(ai.levels[:0], newIndexLevel())
	ai.next.StartStruct(s)
}

func (ai *AbortAndIndex) Finished() {
	ai.levels = ai.levels[:0]
	ai.next.Finished()
}

func (ai *AbortAndIndex) enter(f *meta.Field) bool {
	if ai.top().skips(f) {
		l := newIndexLevel()
		l.abort = abortStruct
		ai.levels = append(ai.levels, l)
		return false
	}
	ai.levels = append(ai.levels, newIndexLevel())
	return true
}

func (ai *AbortAndIndex) exit() bool {
	skipped := ai.top().abort == abortStruct
	ai.levels = ai.levels[:len(ai.levels)-1]
	return !skipped
}

func (ai *AbortAndIndex) EnterStruct(f *meta.Field) {
	if ai.enter(f) {
		ai.next.EnterStruct(f)
	}
}

func (ai *AbortAndIndex) ExitStruct(f *meta.Field) {
	if ai.exit() {
		ai.next.ExitStruct(f)
	}
}

func (ai *AbortAndIndex) EnterArrayStruct(f *meta.Field) {
	if ai.enter(f) {
		ai.next.EnterArrayStruct(f)
	}
}

func (ai *AbortAndIndex) ExitArrayStruct(f *meta.Field) {
	if ai.exit() {
		ai.next.ExitArrayStruct(f)
	}
}

func (ai *AbortAndIndex) EnterStructNull(f *meta.Field) {
	if !ai.top().skips(f) {
		ai.next.EnterStructNull(f)
	}
}

func (ai *AbortAndIndex) EnterValue(f *meta.Field, v Value) {
	l := ai.top()
	if l.skips(f) {
		return
	}
	ai.next.EnterValue(f, v)
	l.observe(ai.reg, f, v)
}
