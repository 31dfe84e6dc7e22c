package meta

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Schema file layout. JSON documents are valid input too, since YAML is a
// superset of JSON for our purposes.
type (
	schemaFile struct {
		Enums   []enumDef   `yaml:"enums,omitempty"`
		Structs []structDef `yaml:"structs,omitempty"`
	}
	enumDef struct {
		TypeName string         `yaml:"typeName"`
		Desc     string         `yaml:"desc,omitempty"`
		Entries  []enumEntryDef `yaml:"entries"`
	}
	enumEntryDef struct {
		Name  string `yaml:"name"`
		ID    int32  `yaml:"id"`
		Desc  string `yaml:"desc,omitempty"`
		Alias string `yaml:"alias,omitempty"`
	}
	structDef struct {
		TypeName string     `yaml:"typeName"`
		Desc     string     `yaml:"desc,omitempty"`
		Flags    []string   `yaml:"flags,omitempty"`
		Attrs    []string   `yaml:"attrs,omitempty"`
		Fields   []fieldDef `yaml:"fields"`
	}
	fieldDef struct {
		TID   string   `yaml:"tid"`
		Type  string   `yaml:"type,omitempty"`
		Name  string   `yaml:"name"`
		Desc  string   `yaml:"desc,omitempty"`
		Flags []string `yaml:"flags,omitempty"`
		Attrs []string `yaml:"attrs,omitempty"`
	}
)

// Load adds the enums and structs described by a YAML or JSON schema document.
// Nothing is registered if any definition is invalid.
func (reg *Registry) Load(data []byte) error {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	enums := make([]*Enum, 0, len(file.Enums))
	for _, ed := range file.Enums {
		if ed.TypeName == "" {
			return fmt.Errorf("schema: enum without typeName")
		}
		entries := make([]EnumEntry, 0, len(ed.Entries))
		for _, en := range ed.Entries {
			entries = append(entries, EnumEntry{Name: en.Name, Value: en.ID, Alias: en.Alias, Description: en.Desc})
		}
		e, err := build(func() *Enum { return NewEnum(ed.TypeName, entries...) })
		if err != nil {
			return fmt.Errorf("schema: enum %s: %w", ed.TypeName, err)
		}
		enums = append(enums, e.WithDescription(ed.Desc))
	}

	structs := make([]*Struct, 0, len(file.Structs))
	for _, sd := range file.Structs {
		s, err := sd.build()
		if err != nil {
			return fmt.Errorf("schema: struct %s: %w", sd.TypeName, err)
		}
		structs = append(structs, s)
	}

	for _, e := range enums {
		reg.AddEnum(e)
	}
	for _, s := range structs {
		reg.AddStruct(s)
	}
	return nil
}

func (sd *structDef) build() (*Struct, error) {
	var flags StructFlags
	for _, name := range sd.Flags {
		flag, err := ParseStructFlag(name)
		if err != nil {
			return nil, err
		}
		flags |= flag
	}
	fields := make([]*Field, 0, len(sd.Fields))
	for _, fd := range sd.Fields {
		typ, err := ParseTypeID(fd.TID)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		var ff FieldFlags
		for _, name := range fd.Flags {
			flag, err := ParseFieldFlag(name)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fd.Name, err)
			}
			ff |= flag
		}
		f, err := build(func() *Field { return NewField(typ, fd.Type, fd.Name, ff, fd.Attrs...) })
		if err != nil {
			return nil, err
		}
		fields = append(fields, f.WithDescription(fd.Desc))
	}
	s, err := build(func() *Struct { return NewStruct(sd.TypeName, flags, fields...) })
	if err != nil {
		return nil, err
	}
	if len(sd.Attrs) > 0 {
		s.WithAttrs(sd.Attrs...)
	}
	return s.WithDescription(sd.Desc), nil
}

// Export writes every registered enum and struct in the format accepted by
// Load.
func (reg *Registry) Export() ([]byte, error) {
	var file schemaFile
	for _, e := range reg.Enums() {
		ed := enumDef{TypeName: e.name, Desc: e.desc}
		for _, entry := range e.entries {
			ed.Entries = append(ed.Entries, enumEntryDef{Name: entry.Name, ID: entry.Value, Desc: entry.Description, Alias: entry.Alias})
		}
		file.Enums = append(file.Enums, ed)
	}
	for _, s := range reg.Structs() {
		sd := structDef{TypeName: s.name, Desc: s.desc, Flags: s.flags.Names(), Attrs: s.attrs}
		for _, f := range s.fields {
			sd.Fields = append(sd.Fields, fieldDef{
				TID:   f.typ.String(),
				Type:  f.typeName,
				Name:  f.name,
				Desc:  f.desc,
				Flags: f.flags.Names(),
				Attrs: f.attrs,
			})
		}
		file.Structs = append(file.Structs, sd)
	}
	return yaml.Marshal(&file)
}

// build converts the panics raised by descriptor constructors into errors.
func build[T any](f func() T) (result T, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("%v", e)
		}
	}()
	return f(), nil
}
