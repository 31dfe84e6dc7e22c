package structwire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/structwire/meta"
)

func encodeMsgPack(reg *meta.Registry, opts MsgPackOptions, emit func(v Visitor)) []byte {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	emit(NewMsgPackSerializer(&zb, reg, opts))
	return zb.Bytes()
}

func parseMsgPack(t testing.TB, reg *meta.Registry, data []byte, typeName string) *Tracer {
	t.Helper()
	var tr Tracer
	err := NewMsgPackParser(reg, MsgPackOptions{}).Parse(data, typeName, &tr)
	if err != nil {
		t.Fatalf("Parse failed: %v\n%s", err, tr.String())
	}
	return &tr
}

func emitAddress(reg *meta.Registry, v Visitor) {
	start(reg, addressType, v).val("city", StringValue("M")).val("zip", Int32Value(5)).finish()
}

func TestMsgPackSerializer_Keys(t *testing.T) {
	reg := newTestRegistry()
	tests := []struct {
		opts MsgPackOptions
		exp  string
	}{
		{MsgPackOptions{}, "82 a463697479 a14d a37a6970 05"},
		{MsgPackOptions{IndexKeys: true}, "82 00 a14d 01 05"},
	}
	for _, tt := range tests {
		a := encodeMsgPack(reg, tt.opts, func(v Visitor) { emitAddress(reg, v) })
		if e := x(tt.exp); !bytes.Equal(a, e) {
			t.Fatalf("%+v: got %x, wanted %x", tt.opts, a, e)
		}
	}
}

func TestMsgPackSerializer_Nested(t *testing.T) {
	reg := newTestRegistry()
	a := encodeMsgPack(reg, MsgPackOptions{IndexKeys: true, EnumAsString: true}, func(v Visitor) {
		start(reg, personType, v).
			null("address").
			val("status", EnumValue(1)).
			enterArray("friends").
			enterElem("friends").exitElem("friends").
			exitArray("friends").
			finish()
	})
	e := x("83 02 c0 05 a6414354495645 06 91 80")
	if !bytes.Equal(a, e) {
		t.Fatalf("got %x, wanted %x", a, e)
	}
}

func TestMsgPack_RoundTrip(t *testing.T) {
	reg := newTestRegistry()
	for _, opts := range []MsgPackOptions{{}, {IndexKeys: true, EnumAsString: true}} {
		data := encodeMsgPack(reg, opts, func(v Visitor) { emitFullPerson(reg, v) })
		tr := parseMsgPack(t, reg, data, personType)
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
			`    }`,
			`    friends {`,
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
	}
}

func TestMsgPackParser_ForeignMap(t *testing.T) {
	reg := newTestRegistry()
	data := must(msgpack.Marshal(map[string]any{
		"zip":   "12",
		"other": []int{1, 2},
		"CITY":  "Paris",
	}))
	tr := parseMsgPack(t, reg, data, addressType)
	eqTrace(t, tr,
		`start test.Address`,
		`  city = "Paris"`,
		`  zip = 12`,
		`finished`)
}

func TestMsgPackParser_Errors(t *testing.T) {
	reg := newTestRegistry()
	p := NewMsgPackParser(reg, MsgPackOptions{})
	data := encodeMsgPack(reg, MsgPackOptions{}, func(v Visitor) { emitAddress(reg, v) })

	var tr Tracer
	err := p.Parse(data[:len(data)-1], addressType, &tr)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}
	if n := len(tr.Lines); n != 3 || tr.Lines[n-1] != "finished" {
		t.Fatalf("trace:\n%s\nwanted start, error, finished", tr.String())
	}

	tr = Tracer{}
	err = p.Parse(data, "test.Nope", &tr)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("err = %v, wanted ErrTypeNotFound", err)
	}
}
