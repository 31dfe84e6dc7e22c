package structwire

import (
	"errors"
	"math"
	"testing"

	"github.com/andreyvit/structwire/meta"
)

func encodeJSON(reg *meta.Registry, opts JSONOptions, emit func(v Visitor)) string {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	emit(NewJSONSerializer(&zb, reg, opts))
	return string(zb.Bytes())
}

func parseJSON(t testing.TB, reg *meta.Registry, data string, typeName string) *Tracer {
	t.Helper()
	var tr Tracer
	err := NewJSONParser(reg, JSONOptions{}).Parse([]byte(data), typeName, &tr)
	if err != nil {
		t.Fatalf("Parse failed: %v\n%s", err, tr.String())
	}
	return &tr
}

const fullPersonJSON = `{"name":"Elvis","age":42,"address":{"city":"Memphis","zip":38116},"tags":["a","b"],"scores":[1,-2],"status":"SUSPENDED","friends":[{"city":"X"},{"zip":5}],"balance":1.5,"delta":-3,"data":"AQI=","extra":{"name":"n","type":"string","valstring":"hi"}}`

func TestJSONSerializer_Person(t *testing.T) {
	reg := newTestRegistry()
	a := encodeJSON(reg, JSONOptions{EnumAsString: true}, func(v Visitor) {
		emitFullPerson(reg, v)
	})
	if a != fullPersonJSON {
		t.Fatalf("** got:\n%s\nwanted:\n%s", a, fullPersonJSON)
	}
}

func TestJSONSerializer_EnumsAsNumbers(t *testing.T) {
	reg := newTestRegistry()
	a := encodeJSON(reg, JSONOptions{}, func(v Visitor) {
		start(reg, personType, v).val("status", EnumNameValue("HALTED")).finish()
	})
	if e := `{"status":2}`; a != e {
		t.Fatalf("got %s, wanted %s", a, e)
	}
}

func TestJSONSerializer_Indent(t *testing.T) {
	reg := newTestRegistry()
	a := encodeJSON(reg, JSONOptions{Indent: "  "}, func(v Visitor) {
		start(reg, personType, v).
			val("name", StringValue("A\"\n")).
			enter("address").val("address.city", StringValue("M")).exit("address").
			null("extra").
			finish()
	})
	e := "{\n  \"name\": \"A\\\"\\n\",\n  \"address\": {\n    \"city\": \"M\"\n  },\n  \"extra\": null\n}"
	if a != e {
		t.Fatalf("** got:\n%s\nwanted:\n%s", a, e)
	}
}

func TestJSONSerializer_NonFinite(t *testing.T) {
	reg := newTestRegistry()
	a := encodeJSON(reg, JSONOptions{}, func(v Visitor) {
		start(reg, personType, v).val("balance", DoubleValue(math.Inf(-1))).finish()
	})
	if e := `{"balance":"-Infinity"}`; a != e {
		t.Fatalf("got %s, wanted %s", a, e)
	}

	var p Person
	ensure(NewJSONParser(reg, JSONOptions{}).Parse([]byte(`{"balance":"NaN"}`), personType, NewMaterializer(reg, &p, nil)))
	if !math.IsNaN(p.Balance) {
		t.Fatalf("Balance = %v, wanted NaN", p.Balance)
	}
}

func TestJSONSerializer_FailedProducer(t *testing.T) {
	reg := newTestRegistry()
	a := encodeJSON(reg, JSONOptions{}, func(v Visitor) {
		v.StartStruct(reg.MustStruct(personType))
		v.NotifyError(0, "boom")
		v.Finished()
	})
	if a != "" {
		t.Fatalf("got %q, wanted nothing", a)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	reg := newTestRegistry()
	tr := parseJSON(t, reg, fullPersonJSON, personType)
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

func TestJSONParser_OrderAndUnknownKeys(t *testing.T) {
	reg := newTestRegistry()
	tr := parseJSON(t, reg, `{"status":1, "name":"N", "bogus":[1,{"x":[2]}], "ADDRESS":{"zip":"7"}}`, personType)
	eqTrace(t, tr,
		`start test.Person`,
		`  name = "N"`,
		`  address {`,
		`    zip = 7`,
		`  }`,
		`  status = 1`,
		`finished`)
}

func TestJSONParser_Nulls(t *testing.T) {
	reg := newTestRegistry()
	tr := parseJSON(t, reg, `{"address":null,"friends":[null,{"city":"C"}],"tags":"solo","age":null}`, personType)
	eqTrace(t, tr,
		`start test.Person`,
		`  address null`,
		`  tags = ["solo"]`,
		`  friends [`,
		`    friends {`,
		`    }`,
		`    friends {`,
		`      city = "C"`,
		`    }`,
		`  ]`,
		`finished`)
}

func TestJSONParser_Errors(t *testing.T) {
	reg := newTestRegistry()
	p := NewJSONParser(reg, JSONOptions{})

	var tr Tracer
	err := p.Parse([]byte(`{"name":"Elvis"`), personType, &tr)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}
	if n := len(tr.Lines); n != 3 || tr.Lines[n-1] != "finished" {
		t.Fatalf("trace:\n%s\nwanted start, error, finished", tr.String())
	}

	tr = Tracer{}
	err = p.Parse([]byte(`[1]`), personType, &tr)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, wanted a ParseError", err)
	}

	tr = Tracer{}
	err = p.Parse([]byte(`{}`), "test.Nope", &tr)
	if !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("err = %v, wanted ErrTypeNotFound", err)
	}
}
