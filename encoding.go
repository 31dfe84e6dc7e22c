package structwire

import (
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/andreyvit/structwire/meta"
)

// Format is a wire encoding that can both produce and consume traversals.
type Format interface {
	Name() string

	// Serialize appends the encoding of the traversal emitted by producer to
	// buf. The producer must emit a struct of type typeName.
	Serialize(reg *meta.Registry, buf *ZeroCopyBuffer, typeName string, producer func(v Visitor)) error

	Parse(reg *meta.Registry, data []byte, typeName string, v Visitor) error
}

var (
	Proto   Format = protoFormat{}
	JSON    Format = jsonFormat{JSONOptions{EnumAsString: true}}
	Qt      Format = qtFormat{}
	MsgPack Format = msgpackFormat{}
)

var formatRegistry = func() *xsync.MapOf[string, Format] {
	m := xsync.NewMapOf[string, Format]()
	for _, f := range []Format{Proto, JSON, Qt, MsgPack} {
		m.Store(f.Name(), f)
	}
	return m
}()

// RegisterFormat makes f available through FormatByName, replacing any
// format of the same name.
func RegisterFormat(f Format) {
	formatRegistry.Store(f.Name(), f)
}

// FormatByName returns the format registered under name, or nil.
func FormatByName(name string) Format {
	f, _ := formatRegistry.Load(name)
	return f
}

// FormatNames lists the registered formats in name order.
func FormatNames() []string {
	var names []string
	formatRegistry.Range(func(name string, _ Format) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

func checkType(reg *meta.Registry, typeName string) error {
	if reg.Struct(typeName) == nil {
		return fmt.Errorf("struct %s: %w", typeName, ErrTypeNotFound)
	}
	return nil
}

type protoFormat struct{ opts ProtoOptions }

func (protoFormat) Name() string { return "proto" }

func (f protoFormat) Serialize(reg *meta.Registry, buf *ZeroCopyBuffer, typeName string, producer func(v Visitor)) error {
	if err := checkType(reg, typeName); err != nil {
		return err
	}
	producer(NewProtoSerializer(buf, reg, f.opts))
	return nil
}

func (f protoFormat) Parse(reg *meta.Registry, data []byte, typeName string, v Visitor) error {
	return NewProtoParser(reg, f.opts).Parse(data, typeName, v)
}

type jsonFormat struct{ opts JSONOptions }

func (jsonFormat) Name() string { return "json" }

// Serialize drops fields deselected by index or abort fields, and fields
// holding default values, before writing.
func (f jsonFormat) Serialize(reg *meta.Registry, buf *ZeroCopyBuffer, typeName string, producer func(v Visitor)) error {
	if err := checkType(reg, typeName); err != nil {
		return err
	}
	w := NewJSONSerializer(buf, reg, f.opts)
	producer(NewAbortAndIndex(NewDefaultValues(w, reg, true), reg))
	return nil
}

func (f jsonFormat) Parse(reg *meta.Registry, data []byte, typeName string, v Visitor) error {
	return NewJSONParser(reg, f.opts).Parse(data, typeName, v)
}

type qtFormat struct{ opts QtOptions }

func (qtFormat) Name() string { return "qt" }

func (f qtFormat) Serialize(reg *meta.Registry, buf *ZeroCopyBuffer, typeName string, producer func(v Visitor)) error {
	if err := checkType(reg, typeName); err != nil {
		return err
	}
	producer(NewQtSerializer(buf, reg, f.opts))
	return nil
}

func (f qtFormat) Parse(reg *meta.Registry, data []byte, typeName string, v Visitor) error {
	return NewQtParser(reg, f.opts).Parse(data, typeName, v)
}

type msgpackFormat struct{ opts MsgPackOptions }

func (msgpackFormat) Name() string { return "msgpack" }

func (f msgpackFormat) Serialize(reg *meta.Registry, buf *ZeroCopyBuffer, typeName string, producer func(v Visitor)) error {
	if err := checkType(reg, typeName); err != nil {
		return err
	}
	producer(NewMsgPackSerializer(buf, reg, f.opts))
	return nil
}

func (f msgpackFormat) Parse(reg *meta.Registry, data []byte, typeName string, v Visitor) error {
	return NewMsgPackParser(reg, f.opts).Parse(data, typeName, v)
}

// Marshal encodes goValue, a struct or a pointer to one, as a struct of type
// typeName.
func Marshal(reg *meta.Registry, format Format, typeName string, goValue any) ([]byte, error) {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	err := appendMarshaled(&zb, reg, format, typeName, goValue)
	if err != nil {
		return nil, err
	}
	return zb.Bytes(), nil
}

func appendMarshaled(zb *ZeroCopyBuffer, reg *meta.Registry, format Format, typeName string, goValue any) error {
	var walkErr error
	err := format.Serialize(reg, zb, typeName, func(v Visitor) {
		walkErr = NewStructWalker(reg, nil).Walk(goValue, typeName, v)
	})
	if err != nil {
		return err
	}
	if walkErr != nil {
		return fmt.Errorf("%s: %w", format.Name(), walkErr)
	}
	return nil
}

// Unmarshal decodes data into goPtr, a pointer to a struct or to a Variant.
// Fields missing from data keep their current values.
func Unmarshal(reg *meta.Registry, format Format, data []byte, typeName string, goPtr any) error {
	m := NewMaterializer(reg, goPtr, nil)
	if err := format.Parse(reg, data, typeName, m); err != nil {
		return fmt.Errorf("%s: %w", format.Name(), err)
	}
	return m.Err()
}
