package structwire

import (
	"encoding/hex"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/structwire/meta"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

type (
	Address struct {
		City string
		Zip  int32
	}

	Person struct {
		Name    string
		Age     int
		Address *Address
		Tags    []string
		Scores  []int32
		Status  string
		Friends []Address
		Balance float64
		Delta   int64
		Data    []byte
		Extra   Variant
	}
)

const (
	personType  = "test.Person"
	addressType = "test.Address"
	jobType     = "test.Job"
	choiceType  = "test.Choice"
	statusType  = "test.Status"
)

func newTestRegistry() *meta.Registry {
	reg := meta.NewRegistry()
	RegisterVarValue(reg)
	reg.AddEnum(meta.NewEnum(statusType,
		meta.EnumEntry{Name: "UNKNOWN", Value: 0},
		meta.EnumEntry{Name: "ACTIVE", Value: 1},
		meta.EnumEntry{Name: "SUSPENDED", Value: 2, Alias: "HALTED"},
	))
	reg.AddStruct(meta.NewStruct(addressType, 0,
		meta.NewField(meta.TypeString, "", "city", 0),
		meta.NewField(meta.TypeInt32, "", "zip", meta.FlagProtoVarint),
	))
	reg.AddStruct(meta.NewStruct(personType, 0,
		meta.NewField(meta.TypeString, "", "name", 0),
		meta.NewField(meta.TypeInt32, "", "age", meta.FlagProtoVarint),
		meta.NewField(meta.TypeStruct, addressType, "address", 0),
		meta.NewField(meta.TypeArrayString, "", "tags", 0),
		meta.NewField(meta.TypeArrayInt32, "", "scores", 0),
		meta.NewField(meta.TypeEnum, statusType, "status", 0),
		meta.NewField(meta.TypeArrayStruct, addressType, "friends", 0),
		meta.NewField(meta.TypeDouble, "", "balance", 0),
		meta.NewField(meta.TypeInt64, "", "delta", meta.FlagProtoZigzag),
		meta.NewField(meta.TypeBytes, "", "data", 0),
		meta.NewField(meta.TypeStruct, VarValueTypeName, "extra", 0),
	))
	reg.AddStruct(meta.NewStruct(jobType, 0,
		meta.NewField(meta.TypeInt32, "", "id", meta.FlagProtoVarint),
		meta.NewField(meta.TypeEnum, statusType, "state", 0, "abortstruct:STOPPED|HALTED"),
		meta.NewField(meta.TypeString, "", "note", 0),
		meta.NewField(meta.TypeStruct, addressType, "site", 0),
	))
	reg.AddStruct(meta.NewStruct(choiceType, 0,
		meta.NewField(meta.TypeString, "", "kind", 0),
		meta.NewField(meta.TypeInt32, "", "x", 0),
		meta.NewField(meta.TypeString, "", "sel", meta.FlagIndex, "indexmode:mapping,7:3,1:0"),
		meta.NewField(meta.TypeString, "", "a", 0),
		meta.NewField(meta.TypeString, "", "b", 0),
		meta.NewField(meta.TypeString, "", "c", 0),
		meta.NewField(meta.TypeString, "", "d", 0),
		meta.NewField(meta.TypeString, "", "tail", 0),
	))
	return reg
}

// events replays a fixed traversal; fields are named "field" or
// "struct.field" relative to the top-level struct.
type events struct {
	reg *meta.Registry
	st  *meta.Struct
	v   Visitor
}

func start(reg *meta.Registry, typeName string, v Visitor) *events {
	st := reg.MustStruct(typeName)
	v.StartStruct(st)
	return &events{reg, st, v}
}

func (e *events) field(name string) *meta.Field {
	st := e.st
	path := strings.Split(name, ".")
	for _, p := range path[:len(path)-1] {
		st = e.reg.StructOf(st.FieldByName(p))
	}
	f := st.FieldByName(path[len(path)-1])
	if f == nil {
		panic("no field " + name)
	}
	return f
}

func (e *events) val(name string, v Value) *events {
	e.v.EnterValue(e.field(name), v)
	return e
}

func (e *events) enter(name string) *events {
	e.v.EnterStruct(e.field(name))
	return e
}

func (e *events) exit(name string) *events {
	e.v.ExitStruct(e.field(name))
	return e
}

func (e *events) enterElem(name string) *events {
	e.v.EnterStruct(e.field(name).Elem())
	return e
}

func (e *events) exitElem(name string) *events {
	e.v.ExitStruct(e.field(name).Elem())
	return e
}

func (e *events) enterArray(name string) *events {
	e.v.EnterArrayStruct(e.field(name))
	return e
}

func (e *events) exitArray(name string) *events {
	e.v.ExitArrayStruct(e.field(name))
	return e
}

func (e *events) null(name string) *events {
	e.v.EnterStructNull(e.field(name))
	return e
}

func (e *events) finish() {
	e.v.Finished()
}

func trace(lines ...string) string {
	return strings.Join(lines, "\n")
}

func eqTrace(t testing.TB, tr *Tracer, lines ...string) {
	t.Helper()
	a, e := tr.String(), trace(lines...)
	if a != e {
		t.Fatalf("trace:\n%s\n\nwanted:\n%s", a, e)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	t.Helper()
	if !reflect.DeepEqual(a, e) {
		t.Fatalf("** got %+v, wanted %+v", a, e)
	}
}

func x(data string) []byte {
	return must(hex.DecodeString(strings.ReplaceAll(data, " ", "")))
}
