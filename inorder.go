package structwire

import (
	"cmp"
	"slices"

	"github.com/andreyvit/structwire/meta"
)

// InOrder buffers a traversal whose fields may arrive in any order and
// replays it to the next visitor on Finished, with the fields of every
// struct sorted by index. Array elements keep their order. Producers driven
// by keyed formats (JSON, msgpack maps) put it in front of consumers that
// rely on index order.
type InOrder struct {
	next   Visitor
	levels []orderLevel
	failed bool
}

type eventKind uint8

const (
	evEnterStruct eventKind = iota
	evExitStruct
	evNull
	evEnterArray
	evExitArray
	evValue
)

type recordedEvent struct {
	kind eventKind
	f    *meta.Field
	v    Value
}

type orderItem struct {
	index  int
	events []recordedEvent
}

type orderLevel struct {
	array bool
	items []orderItem
}

func NewInOrder(next Visitor) *InOrder {
	return &InOrder{next: next}
}

func (o *InOrder) top() *orderLevel {
	if len(o.levels) == 0 {
		panic("InOrder: event outside of a struct")
	}
	return &o.levels[len(o.levels)-1]
}

func (o *InOrder) add(index int, events ...recordedEvent) {
	l := o.top()
	l.items = append(l.items, orderItem{index, events})
}

// close pops the top level and returns its events, sorted unless the level
// is an array.
func (o *InOrder) close() []recordedEvent {
	l := o.levels[len(o.levels)-1]
	o.levels = o.levels[:len(o.levels)-1]
	if !l.array {
		slices.SortStableFunc(l.items, func(a, b orderItem) int {
			return cmp.Compare(a.index, b.index)
		})
	}
	var n int
	for _, item := range l.items {
		n += len(item.events)
	}
	events := make([]recordedEvent, 0, n+2)
	for _, item := range l.items {
		events = append(events, item.events...)
	}
	return events
}

func (o *InOrder) NotifyError(off int, msg string) {
	o.failed = true
	o.next.NotifyError(off, msg)
}

func (o *InOrder) StartStruct(s *meta.Struct) {
	o.levels = append(o.levels[:0], orderLevel{})
	o.failed = false
	o.next.StartStruct(s)
}

func (o *InOrder) Finished() {
	if !o.failed && len(o.levels) == 1 {
		o.replay(o.close())
	}
	o.levels = o.levels[:0]
	o.next.Finished()
}

func (o *InOrder) replay(events []recordedEvent) {
	for _, e := range events {
		switch e.kind {
		case evEnterStruct:
			o.next.EnterStruct(e.f)
		case evExitStruct:
			o.next.ExitStruct(e.f)
		case evNull:
			o.next.EnterStructNull(e.f)
		case evEnterArray:
			o.next.EnterArrayStruct(e.f)
		case evExitArray:
			o.next.ExitArrayStruct(e.f)
		case evValue:
			o.next.EnterValue(e.f, e.v)
		}
	}
}

func (o *InOrder) EnterStruct(f *meta.Field) {
	o.levels = append(o.levels, orderLevel{})
}

func (o *InOrder) ExitStruct(f *meta.Field) {
	body := o.close()
	events := make([]recordedEvent, 0, len(body)+2)
	events = append(events, recordedEvent{kind: evEnterStruct, f: f})
	events = append(events, body...)
	events = append(events, recordedEvent{kind: evExitStruct, f: f})
	o.add(f.Index(), events...)
}

func (o *InOrder) EnterStructNull(f *meta.Field) {
	o.add(f.Index(), recordedEvent{kind: evNull, f: f})
}

func (o *InOrder) EnterArrayStruct(f *meta.Field) {
	o.levels = append(o.levels, orderLevel{array: true})
}

func (o *InOrder) ExitArrayStruct(f *meta.Field) {
	body := o.close()
	events := make([]recordedEvent, 0, len(body)+2)
	events = append(events, recordedEvent{kind: evEnterArray, f: f})
	events = append(events, body...)
	events = append(events, recordedEvent{kind: evExitArray, f: f})
	o.add(f.Index(), events...)
}

func (o *InOrder) EnterValue(f *meta.Field, v Value) {
	o.add(f.Index(), recordedEvent{kind: evValue, f: f, v: v.Clone()})
}
