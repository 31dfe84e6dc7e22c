package meta

import "fmt"

type EnumEntry struct {
	Name        string
	Value       int32
	Alias       string
	Description string
}

type Enum struct {
	name    string
	desc    string
	entries []EnumEntry
	byName  map[string]int
	byAlias map[string]int
	byValue map[int32]int
}

func NewEnum(name string, entries ...EnumEntry) *Enum {
	if name == "" {
		panic("enum name is required")
	}
	e := &Enum{
		name:    name,
		entries: entries,
		byName:  make(map[string]int, len(entries)),
		byAlias: make(map[string]int),
		byValue: make(map[int32]int, len(entries)),
	}
	for i, entry := range entries {
		if _, dup := e.byName[entry.Name]; dup {
			panic(fmt.Errorf("duplicate enum entry %s.%s", name, entry.Name))
		}
		e.byName[entry.Name] = i
		if entry.Alias != "" {
			e.byAlias[entry.Alias] = i
		}
		if _, dup := e.byValue[entry.Value]; !dup {
			e.byValue[entry.Value] = i
		}
	}
	return e
}

func (e *Enum) WithDescription(desc string) *Enum {
	e.desc = desc
	return e
}

func (e *Enum) Name() string { return e.name }
func (e *Enum) Description() string { return e.desc }
func (e *Enum) Entries() []EnumEntry { return e.entries }
func (e *Enum) String() string { return e.name }

func (e *Enum) IsValid(v int32) bool {
	_, ok := e.byValue[v]
	return ok
}

// ValueByName matches either an entry name or an alias. Unknown names map to
// zero so that newer peers can add entries without breaking older ones.
func (e *Enum) ValueByName(name string) (int32, bool) {
	if i, ok := e.byName[name]; ok {
		return e.entries[i].Value, true
	}
	if i, ok := e.byAlias[name]; ok {
		return e.entries[i].Value, true
	}
	return 0, false
}

// NameByValue returns the entry name for v; unknown values yield the name of
// the zero entry (or "" when the enum has none).
func (e *Enum) NameByValue(v int32) string {
	if i, ok := e.byValue[v]; ok {
		return e.entries[i].Name
	}
	if i, ok := e.byValue[0]; ok {
		return e.entries[i].Name
	}
	return ""
}

func (e *Enum) AliasByValue(v int32) string {
	if i, ok := e.byValue[v]; ok {
		return e.entries[i].Alias
	}
	return ""
}
