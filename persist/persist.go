// Package persist saves a single blob crash-safely using two alternating
// slot files.
//
// File layout of each slot: payload* trailer, where
//
//   - trailer = magic:64 generation:64 size:64 checksum:64 (little-endian)
//   - checksum = xxhash64 of payload and the first 24 trailer bytes
//
// A write always goes to the slot not holding the newest valid generation,
// so a crash in the middle of a write leaves the previous generation intact.
package persist

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var ErrCorrupted = errors.New("no valid slot")

const (
	magic       = 0x3145524957525453 // "STRWIRE1" as little-endian uint64
	trailerSize = 32
)

type Options struct {
	// NoSync skips fdatasync after writes. Only for tests.
	NoSync bool

	Logger *slog.Logger
}

// File is a crash-safe blob stored at <path>.0 and <path>.1.
type File struct {
	path   string
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	gen    uint64
	active int // slot holding gen, or -1
}

func New(path string, opts Options) *File {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, opts: opts, logger: logger, active: -1}
}

func (f *File) slotPath(slot int) string {
	return fmt.Sprintf("%s.%d", f.path, slot)
}

// Generation returns the generation of the last blob read or written, 0 if
// none.
func (f *File) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

// Read returns the newest blob whose checksum verifies. It fails with an
// error wrapping fs.ErrNotExist when nothing was ever written, and with
// ErrCorrupted when no slot verifies.
func (f *File) Read() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	if f.active < 0 {
		return nil, fmt.Errorf("%s: %w", f.path, fs.ErrNotExist)
	}
	return data, nil
}

// load scans both slots and remembers the newest valid one.
func (f *File) load() ([]byte, error) {
	var best []byte
	var seen int
	f.gen, f.active = 0, -1
	for slot := range 2 {
		data, gen, err := readSlot(f.slotPath(slot), true)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		seen++
		if err != nil {
			f.logger.LogAttrs(context.Background(), slog.LevelWarn, "persist: ignoring bad slot", slog.String("path", f.slotPath(slot)), slog.Any("err", err))
			continue
		}
		if f.active < 0 || gen > f.gen {
			best, f.gen, f.active = data, gen, slot
		}
	}
	f.loaded = true
	if seen > 0 && f.active < 0 {
		return nil, fmt.Errorf("%s: %w", f.path, ErrCorrupted)
	}
	return best, nil
}

// Write stores data as the next generation.
func (f *File) Write(data []byte) error {
	return f.WriteFrom(bytes.NewReader(data))
}

// WriteFrom stores everything src writes as the next generation.
func (f *File) WriteFrom(src io.WriterTo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		if _, err := f.load(); err != nil && !errors.Is(err, ErrCorrupted) {
			return err
		}
	}
	slot := 0
	if f.active == 0 {
		slot = 1
	}
	gen := f.gen + 1
	path := f.slotPath(slot)

	size, err := f.writeSlot(path, gen, src)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	_, rgen, err := readSlot(path, false)
	if err != nil {
		return fmt.Errorf("persist: verify: %w", err)
	}
	if rgen != gen {
		return fmt.Errorf("persist: verify %s: generation %d, wanted %d", path, rgen, gen)
	}
	f.gen, f.active = gen, slot
	f.logger.LogAttrs(context.Background(), slog.LevelDebug, "persist: saved", slog.String("path", path), slog.Uint64("gen", gen), slog.Int64("size", size))
	return nil
}

func (f *File) writeSlot(path string, gen uint64, src io.WriterTo) (size int64, err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	h := xxhash.New()
	size, err = src.WriteTo(io.MultiWriter(file, h))
	if err != nil {
		return 0, err
	}
	var tr [trailerSize]byte
	binary.LittleEndian.PutUint64(tr[0:], magic)
	binary.LittleEndian.PutUint64(tr[8:], gen)
	binary.LittleEndian.PutUint64(tr[16:], uint64(size))
	h.Write(tr[:24])
	binary.LittleEndian.PutUint64(tr[24:], h.Sum64())
	if _, err = file.Write(tr[:]); err != nil {
		return 0, err
	}
	if !f.opts.NoSync {
		if err = fdatasync(file); err != nil {
			return 0, fmt.Errorf("fdatasync %s: %w", path, err)
		}
	}
	return size, nil
}

// readSlot verifies the slot at path in place and, when keep is set, returns
// a copy of its payload.
func readSlot(path string, keep bool) (data []byte, gen uint64, err error) {
	err = viewFile(path, func(raw []byte) error {
		n, g, err := checkSlot(path, raw)
		if err != nil {
			return err
		}
		gen = g
		if keep {
			data = bytes.Clone(raw[:n])
		}
		return nil
	})
	return data, gen, err
}

// checkSlot validates the trailer of raw and returns the payload size and
// generation.
func checkSlot(path string, raw []byte) (size int, gen uint64, err error) {
	n := len(raw)
	if n < trailerSize {
		return 0, 0, fmt.Errorf("%s: %d bytes, too short", path, n)
	}
	tr := raw[n-trailerSize:]
	if m := binary.LittleEndian.Uint64(tr[0:]); m != magic {
		return 0, 0, fmt.Errorf("%s: bad magic %016x", path, m)
	}
	size = n - trailerSize
	if stored := binary.LittleEndian.Uint64(tr[16:]); stored != uint64(size) {
		return 0, 0, fmt.Errorf("%s: size %d, have %d", path, stored, size)
	}
	if sum, actual := binary.LittleEndian.Uint64(tr[24:]), xxhash.Sum64(raw[:n-8]); sum != actual {
		return 0, 0, fmt.Errorf("%s: checksum %016x, wanted %016x", path, actual, sum)
	}
	return size, binary.LittleEndian.Uint64(tr[8:]), nil
}
