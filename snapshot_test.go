package structwire

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/andreyvit/structwire/persist"
)

func TestSnapshot(t *testing.T) {
	reg := newTestRegistry()
	pf := persist.New(filepath.Join(t.TempDir(), "people"), persist.Options{NoSync: true})

	var p Person
	if err := LoadSnapshot(pf, reg, Qt, personType, &p); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadSnapshot err = %v, wanted fs.ErrNotExist", err)
	}

	for i, name := range []string{"Elvis", "Priscilla"} {
		src := Person{Name: name, Age: 40 + i, Address: &Address{City: "Memphis"}}
		ensure(SaveSnapshot(pf, reg, Qt, personType, &src))
	}
	ensure(LoadSnapshot(pf, reg, Qt, personType, &p))
	if p.Name != "Priscilla" || p.Age != 41 || p.Address == nil || p.Address.City != "Memphis" {
		t.Fatalf("LoadSnapshot = %+v, wanted the second save", p)
	}
	if a := pf.Generation(); a != 2 {
		t.Fatalf("Generation() = %d, wanted 2", a)
	}
}
