package structwire

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/andreyvit/structwire/meta"
)

const (
	maxVarintSize = binary.MaxVarintLen64

	// reserveStructSize is the window left for the size prefix of a nested
	// struct before its body is written.
	reserveStructSize = 8

	// paddingID is the field id of the filler field written into unused
	// parts of a size window. Parsers skip it as an unknown field.
	paddingID  = 2047
	paddingTag = uint64(paddingID)<<3 | uint64(protowire.VarintType)

	// compactLimit is the largest body moved back to close up the unused
	// part of its size window.
	compactLimit = 32
)

type ProtoOptions struct {
	// MaxBlockSize is the size of blocks requested from the buffer; a single
	// value larger than that gets a block of its own. Defaults to
	// DefaultBlockSize.
	MaxBlockSize int

	Logger *slog.Logger
}

// ProtoSerializer writes a traversal in the protobuf wire format.
//
// Nested structs are written with a size prefix that is unknown until the
// struct ends. The serializer reserves a fixed window for the prefix, writes
// the body behind it, and patches the window on exit. Bodies spanning more
// than one block are never moved; the unused part of their window is filled
// with a padding field instead.
type ProtoSerializer struct {
	reg      *meta.Registry
	zb       *ZeroCopyBuffer
	maxBlock int
	logger   *slog.Logger

	blk    []byte
	blkIdx int
	cur    int
	stack  []sizeRecord
	failed bool
}

// sizeRecord tracks one open nested struct, or an open array of structs
// when array is set.
type sizeRecord struct {
	block     int
	tagStart  int
	window    int
	bodyStart int
	size      int
	spanned   bool
	required  bool
	array     *meta.Field
}

func NewProtoSerializer(zb *ZeroCopyBuffer, reg *meta.Registry, opts ProtoOptions) *ProtoSerializer {
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = DefaultBlockSize
	}
	return &ProtoSerializer{
		reg:      reg,
		zb:       zb,
		maxBlock: opts.MaxBlockSize,
		logger:   loggerOr(opts.Logger),
		blkIdx:   -1,
	}
}

var _ Visitor = (*ProtoSerializer)(nil)

func (s *ProtoSerializer) NotifyError(off int, msg string) {
	s.failed = true
}

func (s *ProtoSerializer) StartStruct(st *meta.Struct) {
	s.stack = s.stack[:0]
	s.failed = false
	s.newBlock(s.maxBlock)
}

func (s *ProtoSerializer) Finished() {
	if len(s.stack) != 0 && !s.failed {
		panic(fmt.Errorf("ProtoSerializer: %d structs still open at Finished", len(s.stack)))
	}
	s.stack = s.stack[:0]
	if s.blk != nil {
		s.zb.DownsizeLastBuffer(s.cur)
		s.blk = nil
	}
}

func (s *ProtoSerializer) newBlock(size int) {
	b := s.zb.AddBuffer(size)
	s.blk = b[:size]
	s.blkIdx = len(s.zb.Blocks()) - 1
	s.cur = 0
}

// reserveSpace makes sure n contiguous bytes are available at the cursor.
// When a new block is needed, every open struct body gets the part written
// into the current block added to its size and becomes spanned.
func (s *ProtoSerializer) reserveSpace(n int) {
	if len(s.blk)-s.cur >= n {
		return
	}
	for i := range s.stack {
		r := &s.stack[i]
		if r.array != nil {
			continue
		}
		r.size += s.cur - r.bodyStart
		r.bodyStart = 0
		r.spanned = true
	}
	s.zb.DownsizeLastBuffer(s.cur)
	s.newBlock(max(s.maxBlock, n))
}

// putVarint and the other put helpers write at the cursor; the caller
// reserves space first.
func (s *ProtoSerializer) putVarint(v uint64) {
	s.cur = len(protowire.AppendVarint(s.blk[:s.cur], v))
}

func (s *ProtoSerializer) putTag(f *meta.Field, wt protowire.Type) {
	s.putVarint(protowire.EncodeTag(protowire.Number(f.Index()+1), wt))
}

func (s *ProtoSerializer) putFixed32(v uint32) {
	s.cur = len(protowire.AppendFixed32(s.blk[:s.cur], v))
}

func (s *ProtoSerializer) putFixed64(v uint64) {
	s.cur = len(protowire.AppendFixed64(s.blk[:s.cur], v))
}

// putVarintAt writes v at the start of b, which must have room for it, and
// returns its length.
func putVarintAt(b []byte, v uint64) int {
	return len(protowire.AppendVarint(b[:0], v))
}

func (s *ProtoSerializer) writeVarint(f *meta.Field, v uint64) {
	s.reserveSpace(2 * maxVarintSize)
	s.putTag(f, protowire.VarintType)
	s.putVarint(v)
}

func (s *ProtoSerializer) writeFixed32(f *meta.Field, v uint32) {
	s.reserveSpace(maxVarintSize + 4)
	s.putTag(f, protowire.Fixed32Type)
	s.putFixed32(v)
}

func (s *ProtoSerializer) writeFixed64(f *meta.Field, v uint64) {
	s.reserveSpace(maxVarintSize + 8)
	s.putTag(f, protowire.Fixed64Type)
	s.putFixed64(v)
}

func (s *ProtoSerializer) writeBytes(f *meta.Field, b []byte) {
	s.reserveSpace(2*maxVarintSize + len(b))
	s.putTag(f, protowire.BytesType)
	s.putVarint(uint64(len(b)))
	s.cur += copy(s.blk[s.cur:], b)
}

func (s *ProtoSerializer) writeString(f *meta.Field, str string) {
	s.reserveSpace(2*maxVarintSize + len(str))
	s.putTag(f, protowire.BytesType)
	s.putVarint(uint64(len(str)))
	s.cur += copy(s.blk[s.cur:], str)
}

// writeInt encodes a signed integer according to the field flags: varint,
// zigzag varint, or fixed width when neither flag is set and fixedBits is
// non-zero.
func (s *ProtoSerializer) writeInt(f *meta.Field, v int64, fixedBits int) {
	switch {
	case f.Has(meta.FlagProtoZigzag):
		s.writeVarint(f, protowire.EncodeZigZag(v))
	case f.Has(meta.FlagProtoVarint) || fixedBits == 0:
		s.writeVarint(f, uint64(v))
	case fixedBits == 32:
		s.writeFixed32(f, uint32(int32(v)))
	default:
		s.writeFixed64(f, uint64(v))
	}
}

func (s *ProtoSerializer) writeUint(f *meta.Field, v uint64, fixedBits int) {
	switch {
	case f.Has(meta.FlagProtoVarint) || f.Has(meta.FlagProtoZigzag) || fixedBits == 0:
		s.writeVarint(f, v)
	case fixedBits == 32:
		s.writeFixed32(f, uint32(v))
	default:
		s.writeFixed64(f, v)
	}
}

func (s *ProtoSerializer) enumValue(f *meta.Field, v Value) int32 {
	if !v.IsEnumName() {
		return int32(v.Int())
	}
	e := s.reg.EnumOf(f)
	if e == nil {
		return 0
	}
	n, ok := e.ValueByName(v.Str())
	if !ok {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "unknown enum name", slog.String("field", f.String()), slog.String("name", v.Str()))
	}
	return n
}

func (s *ProtoSerializer) EnterValue(f *meta.Field, v Value) {
	if f.Type().IsArray() {
		s.writeArray(f, v)
		return
	}
	switch f.Type() {
	case meta.TypeBool:
		if v.Bool() {
			s.writeVarint(f, 1)
		}
	case meta.TypeInt8, meta.TypeInt16:
		if n := v.Int(); n != 0 {
			s.writeInt(f, n, 0)
		}
	case meta.TypeUint8, meta.TypeUint16:
		if n := v.Uint(); n != 0 {
			s.writeVarint(f, n)
		}
	case meta.TypeInt32:
		if n := int64(int32(v.Int())); n != 0 {
			s.writeInt(f, n, 32)
		}
	case meta.TypeInt64:
		if n := v.Int(); n != 0 {
			s.writeInt(f, n, 64)
		}
	case meta.TypeUint32:
		if n := uint64(uint32(v.Uint())); n != 0 {
			s.writeUint(f, n, 32)
		}
	case meta.TypeUint64:
		if n := v.Uint(); n != 0 {
			s.writeUint(f, n, 64)
		}
	case meta.TypeFloat:
		if x := float32(v.Float()); x != 0 {
			s.writeFixed32(f, math.Float32bits(x))
		}
	case meta.TypeDouble:
		if x := v.Float(); x != 0 {
			s.writeFixed64(f, math.Float64bits(x))
		}
	case meta.TypeString:
		if str := v.Str(); str != "" {
			s.writeString(f, str)
		}
	case meta.TypeBytes:
		if b := v.Bytes(); len(b) > 0 {
			s.writeBytes(f, b)
		}
	case meta.TypeEnum:
		if n := s.enumValue(f, v); n != 0 {
			s.writeVarint(f, uint64(int64(n)))
		}
	default:
		panic(fmt.Errorf("ProtoSerializer: field %v of type %v cannot hold a value", f, f.Type()))
	}
}

func (s *ProtoSerializer) writeArray(f *meta.Field, v Value) {
	n := v.Len()
	if n == 0 {
		return
	}
	switch f.Type() {
	case meta.TypeArrayString:
		for i := 0; i < n; i++ {
			s.writeString(f, v.Index(i).Str())
		}
	case meta.TypeArrayBytes:
		for i := 0; i < n; i++ {
			s.writeBytes(f, v.Index(i).Bytes())
		}
	case meta.TypeArrayUint8:
		s.writeBytes(f, v.Bytes())
	case meta.TypeArrayBool:
		s.reserveSpace(2*maxVarintSize + n)
		s.putTag(f, protowire.BytesType)
		s.putVarint(uint64(n))
		for i := 0; i < n; i++ {
			if v.Index(i).Bool() {
				s.blk[s.cur] = 1
			} else {
				s.blk[s.cur] = 0
			}
			s.cur++
		}
	case meta.TypeArrayEnum:
		for i := 0; i < n; i++ {
			s.writeVarint(f, uint64(int64(s.enumValue(f, v.Index(i)))))
		}
	case meta.TypeArrayInt8, meta.TypeArrayInt16:
		for i := 0; i < n; i++ {
			s.writeInt(f, v.Index(i).Int(), 0)
		}
	case meta.TypeArrayUint16:
		for i := 0; i < n; i++ {
			s.writeVarint(f, v.Index(i).Uint())
		}
	case meta.TypeArrayInt32, meta.TypeArrayInt64, meta.TypeArrayUint32, meta.TypeArrayUint64:
		if f.Has(meta.FlagProtoVarint) || f.Has(meta.FlagProtoZigzag) {
			signed := f.Type() == meta.TypeArrayInt32 || f.Type() == meta.TypeArrayInt64
			for i := 0; i < n; i++ {
				if signed {
					s.writeInt(f, v.Index(i).Int(), 0)
				} else {
					s.writeVarint(f, v.Index(i).Uint())
				}
			}
			return
		}
		s.writeFixedArray(f, v, n)
	case meta.TypeArrayFloat, meta.TypeArrayDouble:
		s.writeFixedArray(f, v, n)
	default:
		panic(fmt.Errorf("ProtoSerializer: field %v of type %v cannot hold a value", f, f.Type()))
	}
}

// writeFixedArray writes a fixed-width numeric array as one little-endian
// length-delimited blob.
func (s *ProtoSerializer) writeFixedArray(f *meta.Field, v Value, n int) {
	width := 8
	switch f.Type() {
	case meta.TypeArrayInt32, meta.TypeArrayUint32, meta.TypeArrayFloat:
		width = 4
	}
	size := n * width
	s.reserveSpace(2*maxVarintSize + size)
	s.putTag(f, protowire.BytesType)
	s.putVarint(uint64(size))
	for i := 0; i < n; i++ {
		e := v.Index(i)
		switch f.Type() {
		case meta.TypeArrayInt32:
			s.putFixed32(uint32(int32(e.Int())))
		case meta.TypeArrayUint32:
			s.putFixed32(uint32(e.Uint()))
		case meta.TypeArrayFloat:
			s.putFixed32(math.Float32bits(float32(e.Float())))
		case meta.TypeArrayInt64:
			s.putFixed64(uint64(e.Int()))
		case meta.TypeArrayUint64:
			s.putFixed64(e.Uint())
		case meta.TypeArrayDouble:
			s.putFixed64(math.Float64bits(e.Float()))
		}
	}
}

func (s *ProtoSerializer) EnterStruct(f *meta.Field) {
	required := f.Has(meta.FlagNullable) || f.Has(meta.FlagOneRequired)
	if n := len(s.stack); n > 0 && s.stack[n-1].array != nil {
		required = true
	}
	s.reserveSpace(maxVarintSize + reserveStructSize)
	r := sizeRecord{
		block:    s.blkIdx,
		tagStart: s.cur,
		required: required,
	}
	s.putTag(f, protowire.BytesType)
	r.window = s.cur
	s.cur += reserveStructSize
	r.bodyStart = s.cur
	s.stack = append(s.stack, r)
}

func (s *ProtoSerializer) ExitStruct(f *meta.Field) {
	n := len(s.stack)
	if n == 0 || s.stack[n-1].array != nil {
		panic(fmt.Errorf("ProtoSerializer: ExitStruct(%v) without a matching EnterStruct", f))
	}
	r := &s.stack[n-1]
	size := s.cur - r.bodyStart + r.size

	switch {
	case size == 0 && !r.spanned && !r.required:
		s.cur = r.tagStart
	case size <= compactLimit && !r.spanned:
		body := r.window + reserveStructSize
		w := putVarintAt(s.blk[r.window:], uint64(size))
		copy(s.blk[r.window+w:], s.blk[body:body+size])
		s.cur = r.window + w + size
	default:
		remaining, inject := windowLayout(size)
		if inject {
			s.reserveSpace(3)
			s.putVarint(paddingTag)
			s.putVarint(1)
			size += 3
		}
		size += remaining
		s.patchWindow(r, uint64(size), remaining)
	}
	s.stack = s.stack[:n-1]
}

// windowLayout picks how many bytes of the size window the padding field
// takes, given the body size. When no layout fits, the body has to grow by
// a 3-byte padding field first (inject).
//
// A window holds the size varint followed by the padding field, so the
// padding takes remaining = 8 - len(varint(size+remaining)) bytes. For each
// varint width w the layout works when size+(8-w) needs exactly w bytes.
func windowLayout(size int) (remaining int, inject bool) {
	limit := 128
	for w := 1; w < 5; w++ {
		rem := reserveStructSize - w
		switch {
		case size+rem < limit:
			return rem, false
		case size+rem == limit:
			return rem - 1, true
		}
		limit <<= 7
	}
	return reserveStructSize - 5, false
}

func (s *ProtoSerializer) patchWindow(r *sizeRecord, size uint64, remaining int) {
	w := s.zb.Blocks()[r.block][r.window : r.window+reserveStructSize]
	off := putVarintAt(w, size)
	if off != reserveStructSize-remaining {
		panic(fmt.Errorf("ProtoSerializer: size %d does not fit the window layout %d", size, remaining))
	}
	off += putVarintAt(w[off:], paddingTag)
	fill := remaining - 2
	off += putVarintAt(w[off:], uint64(1)<<(7*(fill-1)))
	if off != reserveStructSize {
		panic("ProtoSerializer: internal error: size window not filled")
	}
}

func (s *ProtoSerializer) EnterStructNull(f *meta.Field) {}

func (s *ProtoSerializer) EnterArrayStruct(f *meta.Field) {
	s.stack = append(s.stack, sizeRecord{array: f})
}

func (s *ProtoSerializer) ExitArrayStruct(f *meta.Field) {
	n := len(s.stack)
	if n == 0 || s.stack[n-1].array == nil {
		panic(fmt.Errorf("ProtoSerializer: ExitArrayStruct(%v) without a matching EnterArrayStruct", f))
	}
	s.stack = s.stack[:n-1]
}
