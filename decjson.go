package structwire

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/andreyvit/structwire/meta"
)

// JSONParser reads a JSON object and replays it as a traversal of a struct
// type. Members are matched to fields by name, case-insensitively as a
// fallback, and may come in any order; the events are reordered by index
// before they reach the visitor. Unknown members and nulls are skipped,
// except that null for a struct field produces EnterStructNull.
//
// Scalars are coerced to the field types. Enums accept names, aliases and
// ordinals, bytes are base64, and floats accept "NaN" and "Infinity".
type JSONParser struct {
	reg    *meta.Registry
	logger *slog.Logger

	data []byte
	dec  *json.Decoder
	v    Visitor
}

func NewJSONParser(reg *meta.Registry, opts JSONOptions) *JSONParser {
	return &JSONParser{reg: reg, logger: loggerOr(opts.Logger)}
}

func (p *JSONParser) Parse(data []byte, typeName string, v Visitor) error {
	st := p.reg.Struct(typeName)
	if st == nil {
		v.NotifyError(0, ErrTypeNotFound.Error())
		v.Finished()
		return parseErrf(data, 0, ErrTypeNotFound, "struct %s", typeName)
	}
	p.data, p.v = data, NewInOrder(v)
	p.dec = json.NewDecoder(bytes.NewReader(data))
	p.dec.UseNumber()
	defer func() {
		p.data, p.dec, p.v = nil, nil, nil
	}()

	p.v.StartStruct(st)
	err := p.parseTop(st)
	if err != nil {
		notifyParseError(p.v, err)
	}
	p.v.Finished()
	return err
}

func (p *JSONParser) parseTop(st *meta.Struct) error {
	tok, err := p.token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if tok != json.Delim('{') {
		return p.errorf(nil, "expected an object, got %v", tok)
	}
	return p.parseObject(st)
}

func (p *JSONParser) token() (json.Token, error) {
	tok, err := p.dec.Token()
	if err == nil {
		return tok, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, p.errorf(ErrTruncated, "unexpected end of JSON")
	}
	return nil, p.errorf(nil, "%v", err)
}

func (p *JSONParser) errorf(sentinel error, format string, args ...any) error {
	return parseErrf(p.data, int(p.dec.InputOffset()), sentinel, format, args...)
}

// parseObject reads object members up to and including the closing brace.
func (p *JSONParser) parseObject(st *meta.Struct) error {
	for p.dec.More() {
		tok, err := p.token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return p.errorf(nil, "expected a key, got %v", tok)
		}
		f := fieldByFoldedName(st, key)
		if f == nil {
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "json: skipped unknown member", slog.String("struct", st.Name()), slog.String("key", key))
			if err := p.skip(); err != nil {
				return err
			}
			continue
		}
		if err := p.parseField(f); err != nil {
			return err
		}
	}
	_, err := p.token()
	return err
}

// skip consumes one complete value.
func (p *JSONParser) skip() error {
	depth := 0
	for {
		tok, err := p.token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
		if depth == 0 {
			return nil
		}
	}
}

func (p *JSONParser) parseField(f *meta.Field) error {
	switch f.Type() {
	case meta.TypeNone, meta.TypeVariant, meta.TypeJSON:
		return p.skip()
	case meta.TypeStruct:
		tok, err := p.token()
		if err != nil {
			return err
		}
		if tok == nil {
			p.v.EnterStructNull(f)
			return nil
		}
		if tok != json.Delim('{') {
			return p.errorf(nil, "%v: expected an object, got %v", f, tok)
		}
		st := p.reg.StructOf(f)
		if st == nil {
			return p.errorf(ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		p.v.EnterStruct(f)
		if err := p.parseObject(st); err != nil {
			return err
		}
		p.v.ExitStruct(f)
	case meta.TypeArrayStruct:
		tok, err := p.token()
		if err != nil || tok == nil {
			return err
		}
		if tok != json.Delim('[') {
			return p.errorf(nil, "%v: expected an array, got %v", f, tok)
		}
		st := p.reg.StructOf(f)
		if st == nil {
			return p.errorf(ErrTypeNotFound, "struct %s of %v", f.TypeName(), f)
		}
		elem := f.Elem()
		p.v.EnterArrayStruct(f)
		for p.dec.More() {
			tok, err := p.token()
			if err != nil {
				return err
			}
			p.v.EnterStruct(elem)
			switch tok {
			case nil:
			case json.Delim('{'):
				if err := p.parseObject(st); err != nil {
					return err
				}
			default:
				return p.errorf(nil, "%v: expected an object, got %v", f, tok)
			}
			p.v.ExitStruct(elem)
		}
		if _, err := p.token(); err != nil {
			return err
		}
		p.v.ExitArrayStruct(f)
	default:
		tok, err := p.token()
		if err != nil || tok == nil {
			return err
		}
		if !f.Type().IsArray() {
			p.v.EnterValue(f, p.scalar(f, f.Type(), tok))
			return nil
		}
		if tok != json.Delim('[') {
			// a lone scalar stands for a one-element array
			p.v.EnterValue(f, p.scalar(f, f.Type(), tok))
			return nil
		}
		elemType := f.Type().Elem()
		var elems []Value
		for p.dec.More() {
			tok, err := p.token()
			if err != nil {
				return err
			}
			if _, ok := tok.(json.Delim); ok {
				return p.errorf(nil, "%v: nested %v in a scalar array", f, tok)
			}
			elems = append(elems, p.scalar(f, elemType, tok))
		}
		if _, err := p.token(); err != nil {
			return err
		}
		p.v.EnterValue(f, ArrayFromElems(f.Type(), elems))
	}
	return nil
}

// scalar converts a JSON scalar token into a value of type typ.
func (p *JSONParser) scalar(f *meta.Field, typ meta.TypeID, tok json.Token) Value {
	var raw Value
	switch t := tok.(type) {
	case nil:
		return ZeroValue(typ)
	case bool:
		raw = BoolValue(t)
	case string:
		if typ.Elem() == meta.TypeBytes {
			b, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				p.logger.LogAttrs(context.Background(), slog.LevelDebug, "json: invalid base64", slog.String("field", f.String()))
			}
			raw = BytesValue(b)
		} else {
			raw = StringValue(t)
		}
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			raw = Int64Value(n)
		} else if u, err := strconv.ParseUint(string(t), 10, 64); err == nil {
			raw = Uint64Value(u)
		} else {
			fl, _ := t.Float64()
			raw = DoubleValue(fl)
		}
	default:
		return ZeroValue(typ)
	}

	enum := p.reg.EnumOf(f)
	if typ.Elem() == meta.TypeEnum && raw.Type() == meta.TypeString && enum != nil {
		if _, ok := enum.ValueByName(raw.Str()); !ok {
			p.logger.LogAttrs(context.Background(), slog.LevelDebug, "json: unknown enum name", slog.String("field", f.String()), slog.String("name", raw.Str()))
		}
	}
	v, ok := convertValue(raw, typ, nil, enum)
	if !ok {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "json: value coerced to default", slog.String("field", f.String()), slog.String("value", raw.String()))
	}
	return v
}
