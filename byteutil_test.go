package structwire

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	bb := bytesBuilder{make([]byte, 0, 2)}
	_, _ = bb.Write([]byte{1, 2, 3})
	_ = bb.WriteByte(4)
	bb.AppendFixedUint64(0x0102030405060708)
	bb.AppendUvarint(300)

	want := []byte{1, 2, 3, 4, 1, 2, 3, 4, 5, 6, 7, 8, 0xAC, 0x02}
	if !reflect.DeepEqual(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}
}

func TestByteDecoder_Errors(t *testing.T) {
	t.Run("truncated uvarint", func(t *testing.T) {
		d := makeByteDecoder([]byte{0x80})
		_, err := d.Uvarint()
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Uvarint err = %T %v, wanted *ParseError", err, err)
		}
		if pe.Off != 0 || !errors.Is(err, ErrTruncated) {
			t.Fatalf("ParseError = %v, wanted Off 0 wrapping ErrTruncated", pe)
		}
	})

	t.Run("uvarint overflows int", func(t *testing.T) {
		var b [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(b[:], uint64(math.MaxInt)+1)
		d := makeByteDecoder(b[:n])
		_, err := d.Uvarinti()
		if err == nil {
			t.Fatalf("Uvarinti err = nil, wanted error")
		}
	})

	t.Run("Raw not enough data", func(t *testing.T) {
		d := makeByteDecoder([]byte{1, 2})
		_, err := d.Raw(3)
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("Raw err = %v, wanted ErrTruncated", err)
		}
		if d.Remaining() != 2 {
			t.Fatalf("Remaining = %d, wanted 2", d.Remaining())
		}
	})
}

func TestByteDecoder_Reads(t *testing.T) {
	d := makeByteDecoder([]byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x03, 0x02, 'h', 'i'})
	if v, err := d.Uint16BE(); err != nil || v != 0x0102 {
		t.Fatalf("Uint16BE = %x, %v", v, err)
	}
	if v, err := d.Uint32BE(); err != nil || v != 3 {
		t.Fatalf("Uint32BE = %d, %v", v, err)
	}
	if d.Off() != 6 {
		t.Fatalf("Off = %d, wanted 6", d.Off())
	}
	b, err := d.Byte()
	if err != nil || b != 2 {
		t.Fatalf("Byte = %d, %v", b, err)
	}
	raw, err := d.Raw(2)
	if err != nil || string(raw) != "hi" || d.Remaining() != 0 {
		t.Fatalf("Raw = %q, %v, remaining %d", raw, err, d.Remaining())
	}
}
