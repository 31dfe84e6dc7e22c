package meta

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Registry holds struct and enum descriptors by type name.
type Registry struct {
	mu           sync.RWMutex
	structs      map[string]*Struct
	enums        map[string]*Enum
	fingerprints map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		structs:      make(map[string]*Struct),
		enums:        make(map[string]*Enum),
		fingerprints: make(map[string]uint64),
	}
}

// AddStruct registers s, replacing any struct with the same name.
func (reg *Registry) AddStruct(s *Struct) *Struct {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.structs[s.name] = s
	clear(reg.fingerprints)
	return s
}

// AddEnum registers e, replacing any enum with the same name.
func (reg *Registry) AddEnum(e *Enum) *Enum {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.enums[e.name] = e
	clear(reg.fingerprints)
	return e
}

func (reg *Registry) Struct(name string) *Struct {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.structs[name]
}

func (reg *Registry) MustStruct(name string) *Struct {
	s := reg.Struct(name)
	if s == nil {
		panic(fmt.Errorf("struct %s not registered", name))
	}
	return s
}

func (reg *Registry) Enum(name string) *Enum {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.enums[name]
}

func (reg *Registry) Field(structName, fieldName string) *Field {
	s := reg.Struct(structName)
	if s == nil {
		return nil
	}
	return s.FieldByName(fieldName)
}

// StructOf returns the descriptor of a struct or array-of-struct field.
func (reg *Registry) StructOf(f *Field) *Struct {
	if f.typ.Elem() != TypeStruct {
		return nil
	}
	return reg.Struct(f.typeName)
}

func (reg *Registry) EnumOf(f *Field) *Enum {
	if f.typ.Elem() != TypeEnum {
		return nil
	}
	return reg.Enum(f.typeName)
}

func (reg *Registry) EnumValueByName(f *Field, name string) int32 {
	e := reg.EnumOf(f)
	if e == nil {
		return 0
	}
	v, _ := e.ValueByName(name)
	return v
}

func (reg *Registry) EnumNameByValue(f *Field, v int32) string {
	e := reg.EnumOf(f)
	if e == nil {
		return ""
	}
	return e.NameByValue(v)
}

// Structs returns all registered structs sorted by name.
func (reg *Registry) Structs() []*Struct {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	result := make([]*Struct, 0, len(reg.structs))
	for _, s := range reg.structs {
		result = append(result, s)
	}
	slices.SortFunc(result, func(a, b *Struct) int { return strings.Compare(a.name, b.name) })
	return result
}

// Enums returns all registered enums sorted by name.
func (reg *Registry) Enums() []*Enum {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	result := make([]*Enum, 0, len(reg.enums))
	for _, e := range reg.enums {
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b *Enum) int { return strings.Compare(a.name, b.name) })
	return result
}

// Fingerprint hashes the wire-relevant shape of a struct and of every struct
// and enum it references. Descriptions do not contribute. Returns 0 for
// unknown structs.
func (reg *Registry) Fingerprint(structName string) uint64 {
	reg.mu.RLock()
	fp, ok := reg.fingerprints[structName]
	reg.mu.RUnlock()
	if ok {
		return fp
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.structs[structName] == nil {
		return 0
	}
	d := xxhash.New()
	seen := make(map[string]bool)
	reg.writeShapeLocked(d, structName, seen)
	fp = d.Sum64()
	reg.fingerprints[structName] = fp
	return fp
}

func (reg *Registry) writeShapeLocked(d *xxhash.Digest, structName string, seen map[string]bool) {
	if seen[structName] {
		return
	}
	seen[structName] = true
	s := reg.structs[structName]
	if s == nil {
		d.WriteString("?" + structName + ";")
		return
	}
	d.WriteString("S" + s.name + ":" + strconv.FormatUint(uint64(s.flags), 10) + "{")
	for _, f := range s.fields {
		d.WriteString(f.name + " " + f.typ.String() + " " + f.typeName + " " + strconv.FormatUint(uint64(f.flags), 10))
		for _, a := range f.attrs {
			d.WriteString(" " + a)
		}
		d.WriteString(";")
	}
	d.WriteString("}")
	for _, f := range s.fields {
		switch f.typ.Elem() {
		case TypeStruct:
			reg.writeShapeLocked(d, f.typeName, seen)
		case TypeEnum:
			if seen["enum:"+f.typeName] {
				continue
			}
			seen["enum:"+f.typeName] = true
			if e := reg.enums[f.typeName]; e != nil {
				d.WriteString("E" + e.name + "{")
				for _, entry := range e.entries {
					d.WriteString(entry.Name + "=" + strconv.FormatInt(int64(entry.Value), 10) + "/" + entry.Alias + ";")
				}
				d.WriteString("}")
			}
		}
	}
}
