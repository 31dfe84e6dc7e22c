package structwire

import (
	"fmt"
	"strings"

	"github.com/andreyvit/structwire/meta"
)

const indentStep = "  "

// Tracer records a traversal as indented text, one line per event, and
// optionally forwards every event to Next.
//
//	start test.Person
//	  name = "Elvis"
//	  address {
//	    city = "Memphis"
//	  }
//	finished
type Tracer struct {
	Next  Visitor
	Lines []string
	depth int
}

var _ Visitor = (*Tracer)(nil)

func (t *Tracer) String() string {
	return strings.Join(t.Lines, "\n")
}

func (t *Tracer) printf(format string, args ...any) {
	t.Lines = append(t.Lines, strings.Repeat(indentStep, t.depth)+fmt.Sprintf(format, args...))
}

func (t *Tracer) NotifyError(off int, msg string) {
	t.printf("error %d: %s", off, msg)
	if t.Next != nil {
		t.Next.NotifyError(off, msg)
	}
}

func (t *Tracer) StartStruct(s *meta.Struct) {
	t.depth = 0
	t.printf("start %s", s.Name())
	t.depth = 1
	if t.Next != nil {
		t.Next.StartStruct(s)
	}
}

func (t *Tracer) Finished() {
	t.depth = 0
	t.printf("finished")
	if t.Next != nil {
		t.Next.Finished()
	}
}

func (t *Tracer) EnterStruct(f *meta.Field) {
	t.printf("%s {", f.Name())
	t.depth++
	if t.Next != nil {
		t.Next.EnterStruct(f)
	}
}

func (t *Tracer) ExitStruct(f *meta.Field) {
	t.depth--
	t.printf("}")
	if t.Next != nil {
		t.Next.ExitStruct(f)
	}
}

func (t *Tracer) EnterStructNull(f *meta.Field) {
	t.printf("%s null", f.Name())
	if t.Next != nil {
		t.Next.EnterStructNull(f)
	}
}

func (t *Tracer) EnterArrayStruct(f *meta.Field) {
	t.printf("%s [", f.Name())
	t.depth++
	if t.Next != nil {
		t.Next.EnterArrayStruct(f)
	}
}

func (t *Tracer) ExitArrayStruct(f *meta.Field) {
	t.depth--
	t.printf("]")
	if t.Next != nil {
		t.Next.ExitArrayStruct(f)
	}
}

func (t *Tracer) EnterValue(f *meta.Field, v Value) {
	t.printf("%s = %s", f.Name(), v.String())
	if t.Next != nil {
		t.Next.EnterValue(f, v)
	}
}
