package structwire

import (
	"testing"

	"github.com/andreyvit/structwire/meta"
)

func emitJob(reg *meta.Registry, v Visitor, state Value) {
	start(reg, jobType, v).
		val("id", Int32Value(1)).
		val("state", state).
		val("note", StringValue("x")).
		enter("site").val("site.city", StringValue("c")).exit("site").
		finish()
}

func TestAbortAndIndex_AbortOnAlias(t *testing.T) {
	reg := newTestRegistry()
	for _, state := range []Value{EnumValue(2), EnumNameValue("HALTED"), EnumNameValue("SUSPENDED")} {
		var tr Tracer
		emitJob(reg, NewAbortAndIndex(&tr, reg), state)
		eqTrace(t, &tr,
			`start test.Job`,
			`  id = 1`,
			`  state = `+state.String(),
			`finished`)
	}
}

func TestAbortAndIndex_NoAbort(t *testing.T) {
	reg := newTestRegistry()
	var tr Tracer
	emitJob(reg, NewAbortAndIndex(&tr, reg), EnumValue(1))
	eqTrace(t, &tr,
		`start test.Job`,
		`  id = 1`,
		`  state = 1`,
		`  note = "x"`,
		`  site {`,
		`    city = "c"`,
		`  }`,
		`finished`)
}

func TestAbortAndIndex_IndexMapping(t *testing.T) {
	reg := newTestRegistry()
	tests := []struct {
		sel string
		exp []string
	}{
		{"7", []string{`  sel = "7"`, `  d = "d"`}},
		{"1", []string{`  sel = "1"`, `  a = "a"`}},
		{"9", []string{`  sel = "9"`}},
	}
	for _, tt := range tests {
		var tr Tracer
		start(reg, choiceType, NewAbortAndIndex(&tr, reg)).
			val("kind", StringValue("k")).
			val("x", Int32Value(1)).
			val("sel", StringValue(tt.sel)).
			val("a", StringValue("a")).
			val("b", StringValue("b")).
			val("c", StringValue("c")).
			val("d", StringValue("d")).
			val("tail", StringValue("t")).
			finish()
		lines := []string{`start test.Choice`, `  kind = "k"`, `  x = 1`}
		lines = append(lines, tt.exp...)
		eqTrace(t, &tr, append(lines, `finished`)...)
	}
}

func TestAbortAndIndex_VarValueSelectsPayload(t *testing.T) {
	reg := newTestRegistry()
	var tr Tracer
	start(reg, VarValueTypeName, NewAbortAndIndex(&tr, reg)).
		val("name", StringValue("n")).
		val("type", EnumValue(int32(VarInt32))).
		val("valbool", BoolValue(true)).
		val("valint32", Int32Value(5)).
		val("valstring", StringValue("s")).
		finish()
	eqTrace(t, &tr,
		`start structwire.VarValue`,
		`  name = "n"`,
		`  type = 6`,
		`  valint32 = 5`,
		`finished`)
}

func TestAbortAndIndex_NegativeRawIndexAborts(t *testing.T) {
	reg := newTestRegistry()
	var tr Tracer
	start(reg, VarValueTypeName, NewAbortAndIndex(&tr, reg)).
		val("type", EnumValue(-1)).
		val("valbool", BoolValue(true)).
		finish()
	eqTrace(t, &tr,
		`start structwire.VarValue`,
		`  type = -1`,
		`finished`)
}

func TestAbortAndIndex_RawStringIndex(t *testing.T) {
	reg := newTestRegistry()
	reg.AddStruct(meta.NewStruct("test.Raw", 0,
		meta.NewField(meta.TypeString, "", "sel", meta.FlagIndex),
		meta.NewField(meta.TypeString, "", "a", 0),
		meta.NewField(meta.TypeString, "", "b", 0),
	))
	tests := []struct {
		sel string
		exp []string
	}{
		{"1", []string{`  b = "b"`}},
		{" 1px", []string{`  b = "b"`}},
		{"auto", []string{`  a = "a"`}},
		{"", []string{`  a = "a"`}},
		{"-1", nil},
	}
	for _, tt := range tests {
		var tr Tracer
		start(reg, "test.Raw", NewAbortAndIndex(&tr, reg)).
			val("sel", StringValue(tt.sel)).
			val("a", StringValue("a")).
			val("b", StringValue("b")).
			finish()
		lines := []string{`start test.Raw`, `  sel = ` + StringValue(tt.sel).String()}
		lines = append(lines, tt.exp...)
		eqTrace(t, &tr, append(lines, `finished`)...)
	}
}

func TestLeadingInt(t *testing.T) {
	tests := map[string]int64{"42": 42, "  -7x": -7, "+3": 3, "x3": 0, "": 0, "-": 0}
	for in, e := range tests {
		if a := leadingInt(in); a != e {
			t.Fatalf("leadingInt(%q) = %d, wanted %d", in, a, e)
		}
	}
}
