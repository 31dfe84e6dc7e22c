package structwire

import (
	"bytes"
	"strings"
	"testing"
)

func TestValue_RoundTrip(t *testing.T) {
	bulky := []byte(strings.Repeat("hello world ", 20))
	tests := []struct {
		name    string
		payload []byte
		comp    Compression
		wanted  Compression
	}{
		{"small", []byte("hi"), CompressZstd, CompressNone},
		{"empty", nil, CompressBrotli, CompressNone},
		{"plain", bulky, CompressNone, CompressNone},
		{"zstd", bulky, CompressZstd, CompressZstd},
		{"brotli", bulky, CompressBrotli, CompressBrotli},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := bytes.Clone(must(encodeValue(0xABCD, tt.payload, tt.comp)))

			var vle value
			ensure(vle.decode(rec))
			if vle.Fingerprint != 0xABCD {
				t.Fatalf("Fingerprint = %x, wanted abcd", vle.Fingerprint)
			}
			if a := vle.Flags.compression(); a != tt.wanted {
				t.Fatalf("compression = %v, wanted %v", a, tt.wanted)
			}
			if a := must(vle.payload()); !bytes.Equal(a, tt.payload) {
				t.Fatalf("payload = %q, wanted %q", a, tt.payload)
			}
		})
	}
}

func TestValue_Layout(t *testing.T) {
	rec := bytes.Clone(must(encodeValue(0x0102030405060708, []byte{0xEE}, CompressNone)))
	head := []byte{0x00, 1, 2, 3, 4, 5, 6, 7, 8, 0x01, 0xEE}
	if !bytes.HasPrefix(rec, head) || len(rec) != len(head)+8 {
		t.Fatalf("rec = %x, wanted %x followed by a checksum", rec, head)
	}
}

func TestValue_DecodeErrors(t *testing.T) {
	good := bytes.Clone(must(encodeValue(1, []byte("payload"), CompressNone)))

	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"short", good[:10], "at least"},
		{"flags", append([]byte{0x10}, good[1:]...), "unsupported flags"},
		{"trailing", append(bytes.Clone(good), 0), "after checksum"},
		{"checksum", func() []byte {
			b := bytes.Clone(good)
			b[len(b)-1] ^= 1
			return b
		}(), "checksum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var vle value
			err := vle.decode(tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("decode err = %v, wanted %q", err, tt.msg)
			}
		})
	}
}
