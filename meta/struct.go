package meta

import "fmt"

type StructFlags uint32

const (
	StructHL7Segment StructFlags = 1 << iota
	StructChoice
)

var structFlagNames = []struct {
	flag  StructFlags
	short string
	long  string
}{
	{StructHL7Segment, "hl7segment", "METASTRUCTFLAG_HL7_SEGMENT"},
	{StructChoice, "choice", "METASTRUCTFLAG_CHOICE"},
}

func ParseStructFlag(s string) (StructFlags, error) {
	for _, fn := range structFlagNames {
		if s == fn.short || s == fn.long {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown struct flag %q", s)
}

func (f StructFlags) Has(v StructFlags) bool { return f&v == v }

func (f StructFlags) Names() []string {
	var names []string
	for _, fn := range structFlagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.short)
		}
	}
	return names
}

type Struct struct {
	name   string
	desc   string
	flags  StructFlags
	attrs  []string
	props  map[string]string
	fields []*Field
	byName map[string]*Field
}

// NewStruct builds a struct descriptor, assigning field indices in the order
// the fields are given. Each field can belong to a single struct only.
func NewStruct(name string, flags StructFlags, fields ...*Field) *Struct {
	if name == "" {
		panic("struct name is required")
	}
	s := &Struct{
		name:   name,
		flags:  flags,
		fields: make([]*Field, 0, len(fields)),
		byName: make(map[string]*Field, len(fields)),
	}
	for _, f := range fields {
		s.addField(f)
	}
	return s
}

func (s *Struct) addField(f *Field) {
	if f.parent != nil {
		panic(fmt.Errorf("field %v already belongs to a struct", f))
	}
	if s.byName[f.name] != nil {
		panic(fmt.Errorf("duplicate field %s.%s", s.name, f.name))
	}
	f.parent = s
	f.index = len(s.fields)
	if f.elem != nil {
		f.elem.parent = s
		f.elem.index = f.index
	}
	s.fields = append(s.fields, f)
	s.byName[f.name] = f
}

func (s *Struct) WithDescription(desc string) *Struct {
	s.desc = desc
	return s
}

func (s *Struct) WithAttrs(attrs ...string) *Struct {
	s.attrs = attrs
	s.props = parseProperties(attrs)
	return s
}

func (s *Struct) Name() string { return s.name }
func (s *Struct) Description() string { return s.desc }
func (s *Struct) Flags() StructFlags { return s.flags }
func (s *Struct) Attrs() []string { return s.attrs }
func (s *Struct) NumFields() int { return len(s.fields) }
func (s *Struct) Fields() []*Field { return s.fields }
func (s *Struct) String() string { return s.name }

func (s *Struct) Property(key string) string { return s.props[key] }

func (s *Struct) FieldByIndex(i int) *Field {
	if i < 0 || i >= len(s.fields) {
		return nil
	}
	return s.fields[i]
}

func (s *Struct) FieldByName(name string) *Field {
	return s.byName[name]
}
