package structwire

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

type valueFlags uint64

const (
	vfCompressionBit0 = valueFlags(1 << iota)
	vfCompressionBit1

	vfCompressionMask = vfCompressionBit0 | vfCompressionBit1
	vfSupportedMask   = vfCompressionMask

	minValueSize = 1 + 8 + 1 + 8

	// minCompressSize is the smallest payload that gets compressed.
	minCompressSize = 64
)

func (vf valueFlags) compression() Compression {
	return Compression(vf & vfCompressionMask)
}

// value is a stored record:
//
//	flags uvarint | fingerprint u64 | size uvarint | payload | xxhash64 u64
//
// The checksum covers everything before it.
type value struct {
	Flags       valueFlags
	Fingerprint uint64
	Data        []byte
}

// encodeValue packs payload into a pooled buffer, compressing it with comp
// when that makes it smaller.
func encodeValue(fp uint64, payload []byte, comp Compression) ([]byte, error) {
	var flags valueFlags
	body := payload
	if comp != CompressNone && len(payload) >= minCompressSize {
		c, err := compress(comp, payload)
		if err != nil {
			return nil, err
		}
		if len(c) < len(payload) {
			flags, body = valueFlags(comp), c
		}
	}
	if flags&^vfSupportedMask != 0 {
		panic(fmt.Errorf("invalid flags %x", flags))
	}

	bb := bytesBuilder{valueBytesPool.Get().([]byte)[:0]}
	bb.AppendUvarint(uint64(flags))
	bb.AppendFixedUint64(fp)
	bb.AppendUvarint(uint64(len(body)))
	bb.Write(body)
	bb.AppendFixedUint64(xxhash.Sum64(bb.Buf))
	return bb.Buf, nil
}

// decode verifies data and points vle.Data at its payload, still compressed.
func (vle *value) decode(data []byte) error {
	if len(data) < minValueSize {
		return parseErrf(data, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(data)
	flags, err := d.Uvarint()
	if err != nil {
		return err
	}
	if valueFlags(flags)&^vfSupportedMask != 0 {
		return parseErrf(data, 0, nil, "invalid value: unsupported flags %x", flags)
	}
	vle.Flags = valueFlags(flags)
	if vle.Fingerprint, err = d.FixedUint64(); err != nil {
		return err
	}
	if vle.Data, err = d.VarBytes(); err != nil {
		return err
	}
	end := d.Off()
	sum, err := d.FixedUint64()
	if err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return parseErrf(data, d.Off(), nil, "invalid value: %d bytes after checksum", d.Remaining())
	}
	if actual := xxhash.Sum64(data[:end]); actual != sum {
		return parseErrf(data, end, nil, "invalid value: checksum %016x, wanted %016x", actual, sum)
	}
	return nil
}

// payload returns the decompressed data.
func (vle *value) payload() ([]byte, error) {
	return decompress(vle.Flags.compression(), vle.Data)
}

var (
	zstdEncoder = sync.OnceValue(func() *zstd.Encoder {
		return must(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression)))
	})
	zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
		return must(zstd.NewReader(nil, zstd.WithDecoderConcurrency(0)))
	})
)

func compress(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressNone:
		return raw, nil
	case CompressZstd:
		return zstdEncoder().EncodeAll(raw, nil), nil
	case CompressBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown %v", c)
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressNone:
		return data, nil
	case CompressZstd:
		return zstdDecoder().DecodeAll(data, nil)
	case CompressBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	}
	return nil, fmt.Errorf("unknown %v", c)
}
