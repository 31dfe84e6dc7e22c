package meta

import (
	"strings"
	"testing"
)

func TestParseTypeID(t *testing.T) {
	tests := []struct {
		input string
		want  TypeID
	}{
		{"int32", TypeInt32},
		{"int32[]", TypeArrayInt32},
		{"TYPE_INT32", TypeInt32},
		{"TYPE_ARRAY_STRUCT", TypeArrayStruct},
		{"string", TypeString},
		{"bytes[]", TypeArrayBytes},
		{"enum", TypeEnum},
	}
	for _, tt := range tests {
		got, err := ParseTypeID(tt.input)
		if err != nil {
			t.Fatalf("ParseTypeID(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseTypeID(%q) = %v, wanted %v", tt.input, got, tt.want)
		}
		if back, _ := ParseTypeID(got.String()); back != got {
			t.Errorf("ParseTypeID(%v.String()) = %v, wanted %v", got, back, got)
		}
	}
	if _, err := ParseTypeID("quaternion"); err == nil {
		t.Errorf("ParseTypeID(quaternion) succeeded, wanted error")
	}
}

func TestFieldProperties(t *testing.T) {
	f := NewField(TypeInt32, "", "kind", FlagIndex, "indexmode:mapping,7:3", "indexoffset:-1", "flag")
	if got := f.IndexMode(); got != IndexModeMapping {
		t.Errorf("IndexMode = %q, wanted %q", got, IndexModeMapping)
	}
	if got := f.Property("7"); got != "3" {
		t.Errorf("Property(7) = %q, wanted 3", got)
	}
	if got := f.IndexOffset(); got != -1 {
		t.Errorf("IndexOffset = %d, wanted -1", got)
	}
	if !f.HasProperty("flag") || f.Property("flag") != "" {
		t.Errorf("flag property = %q/%v, wanted present and empty", f.Property("flag"), f.HasProperty("flag"))
	}
	if f.HasProperty("missing") {
		t.Errorf("HasProperty(missing) = true")
	}

	g := NewField(TypeEnum, "test.State", "state", 0, "abortstruct:STOPPED|HALTED")
	if got := strings.Join(g.AbortValues(), ","); got != "STOPPED,HALTED" {
		t.Errorf("AbortValues = %q, wanted STOPPED,HALTED", got)
	}

	arr := NewField(TypeArrayStruct, "test.Point", "points", 0, "fixedarray:4")
	if n, ok := arr.FixedArray(); !ok || n != 4 {
		t.Errorf("FixedArray = %d/%v, wanted 4/true", n, ok)
	}
	NewStruct("test.Holder", 0, NewField(TypeString, "", "a", 0), arr)
	if arr.Index() != 1 || arr.Elem().Index() != 1 {
		t.Errorf("array index = %d, elem index = %d, wanted 1, 1", arr.Index(), arr.Elem().Index())
	}
	if arr.Elem().Type() != TypeStruct {
		t.Errorf("Elem().Type() = %v, wanted struct", arr.Elem().Type())
	}
}

func TestEnumLookups(t *testing.T) {
	e := NewEnum("test.State",
		EnumEntry{Name: "IDLE", Value: 0},
		EnumEntry{Name: "RUNNING", Value: 1, Alias: "run"},
		EnumEntry{Name: "STOPPED", Value: 2, Alias: "HALTED"},
	)
	if v, ok := e.ValueByName("RUNNING"); !ok || v != 1 {
		t.Errorf("ValueByName(RUNNING) = %d/%v, wanted 1/true", v, ok)
	}
	if v, ok := e.ValueByName("HALTED"); !ok || v != 2 {
		t.Errorf("ValueByName(HALTED) = %d/%v, wanted 2/true", v, ok)
	}
	if v, ok := e.ValueByName("EXPLODED"); ok || v != 0 {
		t.Errorf("ValueByName(EXPLODED) = %d/%v, wanted 0/false", v, ok)
	}
	if got := e.NameByValue(42); got != "IDLE" {
		t.Errorf("NameByValue(42) = %q, wanted IDLE", got)
	}
	if got := e.AliasByValue(2); got != "HALTED" {
		t.Errorf("AliasByValue(2) = %q, wanted HALTED", got)
	}
}

func TestRegistryFingerprint(t *testing.T) {
	reg := NewRegistry()
	reg.AddStruct(NewStruct("test.Inner", 0, NewField(TypeString, "", "s", 0)))
	reg.AddStruct(NewStruct("test.Outer", 0, NewField(TypeStruct, "test.Inner", "inner", 0)))

	fp1 := reg.Fingerprint("test.Outer")
	if fp1 == 0 {
		t.Fatalf("Fingerprint = 0")
	}
	if again := reg.Fingerprint("test.Outer"); again != fp1 {
		t.Fatalf("Fingerprint not stable: %x vs %x", again, fp1)
	}

	reg.AddStruct(NewStruct("test.Inner", 0, NewField(TypeString, "", "s", 0), NewField(TypeInt32, "", "n", 0)))
	if fp2 := reg.Fingerprint("test.Outer"); fp2 == fp1 {
		t.Errorf("Fingerprint did not change after nested struct changed")
	}
	if fp := reg.Fingerprint("test.Missing"); fp != 0 {
		t.Errorf("Fingerprint(missing) = %x, wanted 0", fp)
	}
}

const testSchema = `
enums:
  - typeName: test.Color
    entries:
      - {name: NONE, id: 0}
      - {name: RED, id: 1, alias: r}
structs:
  - typeName: test.Shape
    desc: a shape
    fields:
      - {tid: TYPE_STRING, name: name}
      - {tid: TYPE_INT32, name: sides, flags: [METAFLAG_PROTO_VARINT]}
      - {tid: TYPE_ENUM, type: test.Color, name: color, attrs: ["abortstruct:RED"]}
      - {tid: "double[]", name: lengths}
`

func TestLoadExport(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Load([]byte(testSchema)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := reg.Struct("test.Shape")
	if s == nil {
		t.Fatalf("test.Shape not loaded")
	}
	if s.NumFields() != 4 {
		t.Fatalf("NumFields = %d, wanted 4", s.NumFields())
	}
	if f := s.FieldByName("sides"); !f.Has(FlagProtoVarint) || f.Index() != 1 {
		t.Errorf("sides = %v flags %v index %d", f, f.Flags(), f.Index())
	}
	if f := reg.Field("test.Shape", "color"); reg.EnumOf(f) == nil || f.Property(PropAbortStruct) != "RED" {
		t.Errorf("color field not wired to enum")
	}
	if got := reg.EnumValueByName(s.FieldByName("color"), "r"); got != 1 {
		t.Errorf("EnumValueByName(r) = %d, wanted 1", got)
	}

	data, err := reg.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	reg2 := NewRegistry()
	if err := reg2.Load(data); err != nil {
		t.Fatalf("Load(Export()) failed: %v\n%s", err, data)
	}
	if a, b := reg.Fingerprint("test.Shape"), reg2.Fingerprint("test.Shape"); a != b {
		t.Errorf("fingerprint after export/load = %x, wanted %x\n%s", b, a, data)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load([]byte(`structs: [{typeName: bad, fields: [{tid: TYPE_STRUCT, name: x}]}]`))
	if err == nil {
		t.Fatalf("Load succeeded, wanted error for struct field without type name")
	}
	if reg.Struct("bad") != nil {
		t.Errorf("invalid struct was registered")
	}
}
