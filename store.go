package structwire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/structwire/meta"
)

type Compression uint8

const (
	CompressNone Compression = iota
	CompressZstd
	CompressBrotli
)

func (c Compression) String() string {
	switch c {
	case CompressNone:
		return "none"
	case CompressZstd:
		return "zstd"
	case CompressBrotli:
		return "brotli"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

type StoreOptions struct {
	// Format encodes stored values. Defaults to Proto.
	Format Format

	// Compression applies to payloads of at least 64 bytes, and only when it
	// makes them smaller.
	Compression Compression

	// IsTesting trades durability for speed.
	IsTesting bool

	// MmapSize overrides the initial bbolt mmap size.
	MmapSize int

	Logger *slog.Logger
}

// Store keeps encoded structs under (type name, key), one bucket per type.
// Every record carries the shape fingerprint of its struct type at the time
// of writing and a checksum.
type Store struct {
	reg    *meta.Registry
	st     storage
	format Format
	comp   Compression
	logger *slog.Logger
}

// OpenStore opens or creates a bbolt database at path.
func OpenStore(path string, reg *meta.Registry, opts StoreOptions) (*Store, error) {
	st, err := openBoltStorage(path, opts)
	if err != nil {
		return nil, err
	}
	return newStore(st, reg, opts), nil
}

// NewMemStore returns a Store that lives in memory.
func NewMemStore(reg *meta.Registry, opts StoreOptions) *Store {
	return newStore(newMemStorage(), reg, opts)
}

func newStore(st storage, reg *meta.Registry, opts StoreOptions) *Store {
	if opts.Format == nil {
		opts.Format = Proto
	}
	if valueFlags(opts.Compression)&^vfCompressionMask != 0 {
		panic(fmt.Errorf("store: invalid %v", opts.Compression))
	}
	return &Store{reg: reg, st: st, format: opts.Format, comp: opts.Compression, logger: loggerOr(opts.Logger)}
}

func (s *Store) Close() error {
	return s.st.Close()
}

func (s *Store) update(f func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) view(f func(tx storageTx) error) error {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

// Put encodes goValue as a struct of type typeName and stores it under key.
func (s *Store) Put(typeName, key string, goValue any) error {
	var zb ZeroCopyBuffer
	defer zb.Reset()
	if err := appendMarshaled(&zb, s.reg, s.format, typeName, goValue); err != nil {
		return storeErrf(typeName, key, err, "encode")
	}
	rec, err := encodeValue(s.reg.Fingerprint(typeName), zb.Bytes(), s.comp)
	if err != nil {
		return storeErrf(typeName, key, err, "compress")
	}
	defer releaseValueBytes(rec)

	err = s.update(func(tx storageTx) error {
		b, err := tx.CreateBucket(typeName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), rec)
	})
	if err != nil {
		return storeErrf(typeName, key, err, "put")
	}
	return nil
}

// Get decodes the value stored under key into goPtr and reports whether it
// was found. When the value was written under a different shape of its
// struct, goPtr is filled in best-effort and the error wraps
// ErrSchemaChanged.
func (s *Store) Get(typeName, key string, goPtr any) (bool, error) {
	var found bool
	var result error
	err := s.view(func(tx storageTx) error {
		b := tx.Bucket(typeName)
		if b == nil {
			return nil
		}
		rec := b.Get([]byte(key))
		if rec == nil {
			return nil
		}
		found = true
		result = s.decode(typeName, key, rec, goPtr)
		return nil
	})
	if err != nil {
		return false, storeErrf(typeName, key, err, "get")
	}
	return found, result
}

func (s *Store) Delete(typeName, key string) error {
	err := s.update(func(tx storageTx) error {
		b := tx.Bucket(typeName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return storeErrf(typeName, key, err, "delete")
	}
	return nil
}

// Keys lists the keys stored for typeName in byte order.
func (s *Store) Keys(typeName string) ([]string, error) {
	var keys []string
	err := s.view(func(tx storageTx) error {
		b := tx.Bucket(typeName)
		if b == nil {
			return nil
		}
		keys = make([]string, 0, b.KeyCount())
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, storeErrf(typeName, "", err, "keys")
	}
	return keys, nil
}

func (s *Store) decode(typeName, key string, rec []byte, goPtr any) error {
	var vle value
	if err := vle.decode(rec); err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: bad record", slog.String("type", typeName), slog.String("key", key), slog.Any("err", err))
		return storeErrf(typeName, key, ErrCorrupted, "%v", err)
	}
	payload, err := vle.payload()
	if err != nil {
		return storeErrf(typeName, key, ErrCorrupted, "%s: %v", vle.Flags.compression(), err)
	}

	var schemaErr error
	if cur := s.reg.Fingerprint(typeName); vle.Fingerprint != cur {
		schemaErr = storeErrf(typeName, key, ErrSchemaChanged, "fingerprint %016x, now %016x", vle.Fingerprint, cur)
	}
	if err := Unmarshal(s.reg, s.format, payload, typeName, goPtr); err != nil {
		return storeErrf(typeName, key, err, "decode")
	}
	return schemaErr
}
