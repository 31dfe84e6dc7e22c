package persist

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func newTestFile(t *testing.T) (*File, string) {
	path := filepath.Join(t.TempDir(), "state")
	return New(path, Options{NoSync: true}), path
}

func TestFile_WriteRead(t *testing.T) {
	f, path := newTestFile(t)
	if _, err := f.Read(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Read() err = %v, wanted fs.ErrNotExist", err)
	}

	ensure(f.Write([]byte("one")))
	ensure(f.Write([]byte("two")))
	ensure(f.Write([]byte("three")))
	if a := f.Generation(); a != 3 {
		t.Fatalf("Generation() = %d, wanted 3", a)
	}

	g := New(path, Options{})
	if a := string(must(g.Read())); a != "three" {
		t.Fatalf("Read() = %q, wanted three", a)
	}
	if a := g.Generation(); a != 3 {
		t.Fatalf("Generation() = %d, wanted 3", a)
	}
	if a := string(must(os.ReadFile(path + ".0"))); a[:3] != "thr" {
		t.Fatalf("slot 0 = %q, wanted the third write", a)
	}
}

func TestFile_FallsBackToOlderSlot(t *testing.T) {
	f, path := newTestFile(t)
	ensure(f.Write([]byte("old")))
	ensure(f.Write([]byte("new")))

	slot := path + ".1"
	raw := must(os.ReadFile(slot))
	raw[1] ^= 0xFF
	ensure(os.WriteFile(slot, raw, 0666))

	g := New(path, Options{NoSync: true})
	if a := string(must(g.Read())); a != "old" {
		t.Fatalf("Read() = %q, wanted old", a)
	}

	// the next write replaces the broken slot
	ensure(g.Write([]byte("newer")))
	if a := g.Generation(); a != 2 {
		t.Fatalf("Generation() = %d, wanted 2", a)
	}
	if a := string(must(New(path, Options{}).Read())); a != "newer" {
		t.Fatalf("Read() = %q, wanted newer", a)
	}
}

func TestFile_TornWrite(t *testing.T) {
	f, path := newTestFile(t)
	ensure(f.Write([]byte("stable")))
	ensure(os.WriteFile(path+".1", []byte("partial write with no trailer"), 0666))

	if a := string(must(New(path, Options{}).Read())); a != "stable" {
		t.Fatalf("Read() = %q, wanted stable", a)
	}
}

func TestFile_AllSlotsBad(t *testing.T) {
	_, path := newTestFile(t)
	ensure(os.WriteFile(path+".0", []byte("junk"), 0666))
	ensure(os.WriteFile(path+".1", nil, 0666))

	f := New(path, Options{NoSync: true})
	if _, err := f.Read(); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Read() err = %v, wanted ErrCorrupted", err)
	}
	ensure(f.Write([]byte("fresh")))
	if a := string(must(f.Read())); a != "fresh" {
		t.Fatalf("Read() = %q, wanted fresh", a)
	}
}

func TestFile_WriteFrom(t *testing.T) {
	f, _ := newTestFile(t)
	payload := bytes.Repeat([]byte{1, 2, 3}, 10000)
	ensure(f.WriteFrom(bytes.NewBuffer(payload)))
	if a := must(f.Read()); !bytes.Equal(a, payload) {
		t.Fatalf("Read() returned %d bytes, wanted %d", len(a), len(payload))
	}
}

func TestFile_ReadOwnsPayload(t *testing.T) {
	f, _ := newTestFile(t)
	ensure(f.Write([]byte("first payload")))
	data := must(f.Read())

	ensure(f.Write([]byte("second")))
	ensure(f.Write([]byte("third")))
	if !bytes.Equal(data, []byte("first payload")) {
		t.Fatalf("data = %q, wanted %q", data, "first payload")
	}
	if a := must(f.Read()); !bytes.Equal(a, []byte("third")) {
		t.Fatalf("Read() = %q, wanted %q", a, "third")
	}
}

func TestCheckSlot(t *testing.T) {
	f, path := newTestFile(t)
	ensure(f.Write([]byte("payload")))
	raw := must(os.ReadFile(f.slotPath(0)))

	if n, gen, err := checkSlot(path, raw); err != nil || n != 7 || gen != 1 {
		t.Fatalf("checkSlot = %d, %d, %v, wanted 7, 1, nil", n, gen, err)
	}
	bad := bytes.Clone(raw)
	bad[0] ^= 1
	if _, _, err := checkSlot(path, bad); err == nil {
		t.Fatalf("checkSlot(flipped payload) succeeded, wanted checksum error")
	}
	if _, _, err := checkSlot(path, raw[:10]); err == nil {
		t.Fatalf("checkSlot(short) succeeded, wanted error")
	}
}
