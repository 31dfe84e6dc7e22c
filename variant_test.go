package structwire

import "testing"

func emitVariantPerson(e *events) {
	e.val("name", StringValue("A")).
		enter("address").val("address.city", StringValue("M")).exit("address").
		val("status", EnumValue(2)).
		enterArray("friends").
		enterElem("friends").val("address.zip", Int32Value(1)).exitElem("friends").
		exitArray("friends").
		enter("extra").
		val("extra.name", StringValue("")).
		val("extra.type", EnumValue(int32(VarInt32))).
		val("extra.valint32", Int32Value(5)).
		exit("extra").
		finish()
}

func TestVariantBuilder(t *testing.T) {
	reg := newTestRegistry()
	b := NewVariantBuilder(reg)
	emitVariantPerson(start(reg, personType, b))
	if b.Failed() {
		t.Fatalf("Failed() = true")
	}
	a, e := b.Result.String(), `{name: "A", address: {city: "M"}, status: "SUSPENDED", friends: [{zip: 1}], extra: 5}`
	if a != e {
		t.Fatalf("Result = %s, wanted %s", a, e)
	}
	if x, ok := b.Result.Get("extra"); !ok || x.Kind != VarInt32 {
		t.Fatalf("extra = %v, %v, wanted an int32", x, ok)
	}
}

func TestVariantWalker_RoundTrip(t *testing.T) {
	reg := newTestRegistry()
	b := NewVariantBuilder(reg)
	emitVariantPerson(start(reg, personType, b))

	var tr Tracer
	ensure(NewVariantWalker(reg, nil).Walk(b.Result, personType, &tr))
	eqTrace(t, &tr,
		`start test.Person`,
		`  name = "A"`,
		`  address {`,
		`    city = "M"`,
		`  }`,
		`  status = 2`,
		`  friends [`,
		`    friends {`,
		`      zip = 1`,
		`    }`,
		`  ]`,
		`  extra {`,
		`    name = ""`,
		`    type = 6`,
		`    valint32 = 5`,
		`  }`,
		`finished`)
}

func TestVariantWalker_CaseInsensitiveAndCoercing(t *testing.T) {
	reg := newTestRegistry()
	x := StructVariant(
		NamedVariant{"NAME", ScalarVariant(Int32Value(7))},
		NamedVariant{"age", ScalarVariant(StringValue("42"))},
		NamedVariant{"unknown", ScalarVariant(BoolValue(true))},
		NamedVariant{"tags", ListVariant(ScalarVariant(StringValue("a")), ScalarVariant(Int32Value(1)))},
	)
	var tr Tracer
	ensure(NewVariantWalker(reg, nil).Walk(x, personType, &tr))
	eqTrace(t, &tr,
		`start test.Person`,
		`  name = "7"`,
		`  age = 42`,
		`  tags = ["a" "1"]`,
		`finished`)
}

func TestVariant_Set(t *testing.T) {
	var x Variant
	x.Kind = VarStruct
	x.Set("a", ScalarVariant(Int32Value(1)))
	x.Set("b", ScalarVariant(Int32Value(2)))
	x.Set("a", ScalarVariant(Int32Value(3)))
	if a, e := x.String(), `{a: 3, b: 2}`; a != e {
		t.Fatalf("x = %s, wanted %s", a, e)
	}
}

func TestVariantWalker_TypeNotFound(t *testing.T) {
	reg := newTestRegistry()
	var tr Tracer
	err := NewVariantWalker(reg, nil).Walk(Variant{}, "test.Nope", &tr)
	if err == nil {
		t.Fatalf("err = nil, wanted ErrTypeNotFound")
	}
	eqTrace(t, &tr,
		`error 0: typename not found`,
		`finished`)
}
