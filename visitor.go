package structwire

import "github.com/andreyvit/structwire/meta"

// Visitor receives the traversal of one top-level struct.
//
// A producer calls StartStruct exactly once before any field event, and
// Finished exactly once after the last one (or right after NotifyError when
// the input is unusable). Nested structs are bracketed by EnterStruct and
// ExitStruct. An array of structs is EnterArrayStruct, then one
// EnterStruct/ExitStruct pair per element (passing the array's Elem field),
// then ExitArrayStruct. EnterStructNull marks an absent nullable struct and
// has no matching exit.
//
// Within a struct, fields arrive in index order.
type Visitor interface {
	NotifyError(off int, msg string)
	StartStruct(s *meta.Struct)
	Finished()

	EnterStruct(f *meta.Field)
	ExitStruct(f *meta.Field)
	EnterStructNull(f *meta.Field)

	EnterArrayStruct(f *meta.Field)
	ExitArrayStruct(f *meta.Field)

	EnterValue(f *meta.Field, v Value)
}

// Forwarder passes every event to Next. Decorators embed it and override
// the events they care about.
type Forwarder struct {
	Next Visitor
}

var _ Visitor = (*Forwarder)(nil)

func (fw *Forwarder) NotifyError(off int, msg string) { fw.Next.NotifyError(off, msg) }
func (fw *Forwarder) StartStruct(s *meta.Struct) { fw.Next.StartStruct(s) }
func (fw *Forwarder) Finished() { fw.Next.Finished() }
func (fw *Forwarder) EnterStruct(f *meta.Field) { fw.Next.EnterStruct(f) }
func (fw *Forwarder) ExitStruct(f *meta.Field) { fw.Next.ExitStruct(f) }
func (fw *Forwarder) EnterStructNull(f *meta.Field) { fw.Next.EnterStructNull(f) }
func (fw *Forwarder) EnterArrayStruct(f *meta.Field) { fw.Next.EnterArrayStruct(f) }
func (fw *Forwarder) ExitArrayStruct(f *meta.Field) { fw.Next.ExitArrayStruct(f) }
func (fw *Forwarder) EnterValue(f *meta.Field, v Value) { fw.Next.EnterValue(f, v) }

// Discard ignores every event.
var Discard Visitor = discard{}

type discard struct{}

func (discard) NotifyError(int, string) {}
func (discard) StartStruct(*meta.Struct) {}
func (discard) Finished() {}
func (discard) EnterStruct(*meta.Field) {}
func (discard) ExitStruct(*meta.Field) {}
func (discard) EnterStructNull(*meta.Field) {}
func (discard) EnterArrayStruct(*meta.Field) {}
func (discard) ExitArrayStruct(*meta.Field) {}
func (discard) EnterValue(*meta.Field, Value) {}
