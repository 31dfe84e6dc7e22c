package structwire

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/andreyvit/structwire/meta"
)

const elvisQt = "0000000a 0045006c007600690073" + "0000002a" +
	"00000000 00000000" + // address
	"00000000 00000000 00000000 00000000" + // tags, scores, status, friends
	"0000000000000000 0000000000000000" + // balance, delta
	"00000000" + // data
	"00000000 00000000" // extra

func encodeQt(reg *meta.Registry, opts QtOptions, emit func(v Visitor)) []byte {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	emit(NewQtSerializer(&zb, reg, opts))
	return zb.Bytes()
}

func parseQt(t testing.TB, reg *meta.Registry, data []byte, typeName string) *Tracer {
	t.Helper()
	var tr Tracer
	err := NewQtParser(reg, QtOptions{}).Parse(data, typeName, &tr)
	if err != nil {
		t.Fatalf("Parse failed: %v\n%s", err, tr.String())
	}
	return &tr
}

func TestQtSerializer_Elvis(t *testing.T) {
	reg := newTestRegistry()
	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		start(reg, personType, v).val("name", StringValue("Elvis")).val("age", Int32Value(42)).finish()
	})
	if e := x(elvisQt); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}
}

func TestQtParser_Elvis(t *testing.T) {
	reg := newTestRegistry()
	tr := parseQt(t, reg, x(elvisQt), personType)
	eqTrace(t, tr,
		`start test.Person`,
		`  name = "Elvis"`,
		`  age = 42`,
		`  address {`,
		`    city = ""`,
		`    zip = 0`,
		`  }`,
		`  tags = []`,
		`  scores = []`,
		`  status = 0`,
		`  friends [`,
		`  ]`,
		`  balance = 0`,
		`  delta = 0`,
		`  data = `,
		`  extra {`,
		`    name = ""`,
		`    type = 0`,
		`  }`,
		`finished`)
}

func emitFullPerson(reg *meta.Registry, v Visitor) {
	start(reg, personType, v).
		val("name", StringValue("Elvis")).
		val("age", Int32Value(42)).
		enter("address").val("address.city", StringValue("Memphis")).val("address.zip", Int32Value(38116)).exit("address").
		val("tags", StringArray([]string{"a", "b"})).
		val("scores", Int32Array([]int32{1, -2})).
		val("status", EnumNameValue("SUSPENDED")).
		enterArray("friends").
		enterElem("friends").val("address.city", StringValue("X")).exitElem("friends").
		enterElem("friends").val("address.zip", Int32Value(5)).exitElem("friends").
		exitArray("friends").
		val("balance", DoubleValue(1.5)).
		val("delta", Int64Value(-3)).
		val("data", BytesValue([]byte{1, 2})).
		enter("extra").
		val("extra.name", StringValue("n")).
		val("extra.type", EnumValue(int32(VarString))).
		val("extra.valstring", StringValue("hi")).
		exit("extra").
		finish()
}

func TestQt_RoundTrip(t *testing.T) {
	reg := newTestRegistry()
	for _, blockSize := range []int{0, 8} {
		t.Run(fmt.Sprintf("block%d", blockSize), func(t *testing.T) {
			data := encodeQt(reg, QtOptions{MaxBlockSize: blockSize}, func(v Visitor) {
				emitFullPerson(reg, v)
			})
			tr := parseQt(t, reg, data, personType)
			eqTrace(t, tr,
				`start test.Person`,
				`  name = "Elvis"`,
				`  age = 42`,
				`  address {`,
				`    city = "Memphis"`,
				`    zip = 38116`,
				`  }`,
				`  tags = ["a" "b"]`,
				`  scores = [1 -2]`,
				`  status = 2`,
				`  friends [`,
				`    friends {`,
				`      city = "X"`,
				`      zip = 0`,
				`    }`,
				`    friends {`,
				`      city = ""`,
				`      zip = 5`,
				`    }`,
				`  ]`,
				`  balance = 1.5`,
				`  delta = -3`,
				`  data = 0102`,
				`  extra {`,
				`    name = "n"`,
				`    type = 12`,
				`    valstring = "hi"`,
				`  }`,
				`finished`)
		})
	}
}

func TestQt_IndexMapping(t *testing.T) {
	reg := newTestRegistry()
	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		start(reg, choiceType, v).
			val("kind", StringValue("k")).
			val("x", Int32Value(1)).
			val("sel", StringValue("7")).
			val("d", StringValue("d")).
			val("tail", StringValue("t")).
			finish()
	})
	if e := x("00000002 006b" + "00000001" + "00000002 0037" + "00000002 0064"); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}
	eqTrace(t, parseQt(t, reg, data, choiceType),
		`start test.Choice`,
		`  kind = "k"`,
		`  x = 1`,
		`  sel = "7"`,
		`  d = "d"`,
		`finished`)
}

func TestQt_AbortOnAlias(t *testing.T) {
	reg := newTestRegistry()
	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		emitJob(reg, v, EnumNameValue("HALTED"))
	})
	if e := x("00000001 00000002"); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}
	eqTrace(t, parseQt(t, reg, data, jobType),
		`start test.Job`,
		`  id = 1`,
		`  state = 2`,
		`finished`)
}

func TestQt_FixedArray(t *testing.T) {
	reg := gridRegistry()
	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		start(reg, "test.Grid", v).
			enterArray("cells").
			enterElem("cells").val("cells.city", StringValue("X")).exitElem("cells").
			exitArray("cells").
			finish()
	})
	if e := x("00000002 0058 00000000" + "00000000 00000000" + "00000000 00000000"); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}

	// input ending on an element boundary pads the rest with empty elements
	eqTrace(t, parseQt(t, reg, x("00000002 0058 00000000"), "test.Grid"),
		`start test.Grid`,
		`  cells [`,
		`    cells {`,
		`      city = "X"`,
		`      zip = 0`,
		`    }`,
		`    cells {`,
		`    }`,
		`    cells {`,
		`    }`,
		`  ]`,
		`finished`)
}

func TestQt_ScalarArrays(t *testing.T) {
	reg := newTestRegistry()
	reg.AddStruct(meta.NewStruct("test.Flags", 0,
		meta.NewField(meta.TypeEnum, statusType, "mode", 0, "enumbits:8"),
		meta.NewField(meta.TypeArrayBool, "", "bits", 0),
		meta.NewField(meta.TypeArrayUint8, "", "raw", 0, "fixedarray:4"),
		meta.NewField(meta.TypeArrayInt16, "", "ids", 0),
	))
	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		start(reg, "test.Flags", v).
			val("mode", EnumValue(2)).
			val("bits", BoolArray([]bool{true, false, true, false, false, false, false, false, true})).
			val("raw", Uint8Array([]byte{1, 2})).
			val("ids", Int16Array([]int16{-1, 3})).
			finish()
	})
	if e := x("02" + "00000009 0501" + "01020000" + "00000002 ffff 0003"); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}
	eqTrace(t, parseQt(t, reg, data, "test.Flags"),
		`start test.Flags`,
		`  mode = 2`,
		`  bits = [true false true false false false false false true]`,
		`  raw = [1 2 0 0]`,
		`  ids = [-1 3]`,
		`finished`)
}

func TestQt_Image(t *testing.T) {
	reg := newTestRegistry()
	reg.AddStruct(meta.NewStruct("test.Icon", 0,
		meta.NewField(meta.TypeString, "", "name", 0),
		meta.NewField(meta.TypeBytes, "", "image", 0, "qttype:png"),
		meta.NewField(meta.TypeInt32, "", "size", 0),
	))
	png := x("89504e470d0a1a0a" +
		"0000000d 49484452 00000001 00000001 0806000000 1f15c489" +
		"00000000 49454e44 ae426082")

	data := encodeQt(reg, QtOptions{}, func(v Visitor) {
		start(reg, "test.Icon", v).
			val("name", StringValue("i")).
			val("image", BytesValue(png)).
			val("size", Int32Value(7)).
			finish()
	})
	if e := append(append(x("00000002 0069 01"), png...), x("00000007")...); !bytes.Equal(data, e) {
		t.Fatalf("data = %x, wanted %x", data, e)
	}
	eqTrace(t, parseQt(t, reg, data, "test.Icon"),
		`start test.Icon`,
		`  name = "i"`,
		fmt.Sprintf(`  image = %x`, png),
		`  size = 7`,
		`finished`)

	eqTrace(t, parseQt(t, reg, x("00000002 0069 00 00000007"), "test.Icon"),
		`start test.Icon`,
		`  name = "i"`,
		`  size = 7`,
		`finished`)
}

func TestQtParser_NullString(t *testing.T) {
	reg := newTestRegistry()
	eqTrace(t, parseQt(t, reg, x("ffffffff 00000007"), addressType),
		`start test.Address`,
		`  zip = 7`,
		`finished`)
	eqTrace(t, parseQt(t, reg, x("00000000 00000007"), addressType),
		`start test.Address`,
		`  city = ""`,
		`  zip = 7`,
		`finished`)
}

func TestQtParser_Errors(t *testing.T) {
	reg := newTestRegistry()
	p := NewQtParser(reg, QtOptions{})

	var tr Tracer
	err := p.Parse(x("00000004 0041"), addressType, &tr)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}
	eqTrace(t, &tr,
		`start test.Address`,
		`  error 4: end of data`,
		`finished`)

	tr = Tracer{}
	err = p.Parse(nil, "test.Nope", &tr)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("err = %v, wanted ErrTypeNotFound", err)
	}
	eqTrace(t, &tr,
		`error 0: typename not found`,
		`finished`)
}

func TestQtParser_ShortFixedArray(t *testing.T) {
	reg := newTestRegistry()
	reg.AddStruct(meta.NewStruct("test.Vals", 0,
		meta.NewField(meta.TypeArrayInt32, "", "vals", 0, "fixedarray:3"),
		meta.NewField(meta.TypeArrayUint8, "", "raw", 0, "fixedarray:4"),
		meta.NewField(meta.TypeArrayBool, "", "bits", 0, "fixedarray:2"),
	))
	eqTrace(t, parseQt(t, reg, x("00000007"), "test.Vals"),
		`start test.Vals`,
		`  vals = [7 0 0]`,
		`  raw = [0 0 0 0]`,
		`  bits = [false false]`,
		`finished`)

	var tr Tracer
	err := NewQtParser(reg, QtOptions{}).Parse(x("00000007 0000"), "test.Vals", &tr)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}
}

func TestQtParser_StructArrayCount(t *testing.T) {
	reg := newTestRegistry()
	reg.AddStruct(meta.NewStruct("test.Empty", 0))
	reg.AddStruct(meta.NewStruct("test.Holder", 0,
		meta.NewField(meta.TypeArrayStruct, addressType, "addrs", 0),
		meta.NewField(meta.TypeArrayStruct, "test.Empty", "empties", 0),
	))
	p := NewQtParser(reg, QtOptions{})

	var tr Tracer
	if err := p.Parse(x("ffffffff"), "test.Holder", &tr); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}

	tr = Tracer{}
	if err := p.Parse(x("00000000 ffffffff"), "test.Holder", &tr); err == nil {
		t.Fatalf("Parse succeeded, wanted an error for a huge count of empty elements")
	}

	eqTrace(t, parseQt(t, reg, x("00000001 00000000 00000005 00000002"), "test.Holder"),
		`start test.Holder`,
		`  addrs [`,
		`    addrs {`,
		`      city = ""`,
		`      zip = 5`,
		`    }`,
		`  ]`,
		`  empties [`,
		`    empties {`,
		`    }`,
		`    empties {`,
		`    }`,
		`  ]`,
		`finished`)
}
