package structwire

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf16"

	"github.com/andreyvit/structwire/meta"
)

const qtNullLength = 0xFFFFFFFF

type QtOptions struct {
	// MaxBlockSize is the size of blocks requested from the buffer. Defaults
	// to DefaultBlockSize.
	MaxBlockSize int

	Logger *slog.Logger
}

// QtSerializer writes a traversal in the positional big-endian format of
// Qt's QDataStream. Every field is present on the wire, so the traversal is
// first expanded with default values and then filtered by the index and
// abortstruct properties, exactly as QtParser reads it back.
type QtSerializer struct {
	*DefaultValues
	w *qtWriter
}

func NewQtSerializer(zb *ZeroCopyBuffer, reg *meta.Registry, opts QtOptions) *QtSerializer {
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = DefaultBlockSize
	}
	w := &qtWriter{reg: reg, zb: zb, maxBlock: opts.MaxBlockSize, logger: loggerOr(opts.Logger)}
	ai := NewAbortAndIndex(w, reg)
	w.filler = &DefaultValues{next: ai, reg: reg}
	return &QtSerializer{NewDefaultValues(ai, reg, false), w}
}

type qtWriter struct {
	reg      *meta.Registry
	zb       *ZeroCopyBuffer
	maxBlock int
	logger   *slog.Logger
	filler   *DefaultValues

	blk    []byte
	blkIdx int
	cur    int
	levels []qtLevel
}

// qtLevel is an open struct, or an open array of structs whose element
// count is patched in on exit.
type qtLevel struct {
	array bool
	fixed bool
	block int
	off   int
	count uint32
}

func (w *qtWriter) NotifyError(off int, msg string) {}

func (w *qtWriter) StartStruct(s *meta.Struct) {
	w.levels = w.levels[:0]
	w.newBlock(w.maxBlock)
}

func (w *qtWriter) Finished() {
	if w.blk != nil {
		w.zb.DownsizeLastBuffer(w.cur)
		w.blk = nil
	}
}

func (w *qtWriter) newBlock(size int) {
	b := w.zb.AddBuffer(size)
	w.blk = b[:size]
	w.blkIdx = len(w.zb.Blocks()) - 1
	w.cur = 0
}

func (w *qtWriter) reserveSpace(n int) {
	if len(w.blk)-w.cur >= n {
		return
	}
	w.zb.DownsizeLastBuffer(w.cur)
	w.newBlock(max(w.maxBlock, n))
}

func (w *qtWriter) put8(v uint8) {
	w.reserveSpace(1)
	w.blk[w.cur] = v
	w.cur++
}

func (w *qtWriter) put16(v uint16) {
	w.reserveSpace(2)
	binary.BigEndian.PutUint16(w.blk[w.cur:], v)
	w.cur += 2
}

func (w *qtWriter) put32(v uint32) {
	w.reserveSpace(4)
	binary.BigEndian.PutUint32(w.blk[w.cur:], v)
	w.cur += 4
}

func (w *qtWriter) put64(v uint64) {
	w.reserveSpace(8)
	binary.BigEndian.PutUint64(w.blk[w.cur:], v)
	w.cur += 8
}

func (w *qtWriter) putRaw(b []byte) {
	w.reserveSpace(len(b))
	w.cur += copy(w.blk[w.cur:], b)
}

func (w *qtWriter) putString(s string) {
	units := utf16.Encode([]rune(s))
	w.put32(uint32(2 * len(units)))
	w.reserveSpace(2 * len(units))
	for _, u := range units {
		binary.BigEndian.PutUint16(w.blk[w.cur:], u)
		w.cur += 2
	}
}

func (w *qtWriter) putBytes(b []byte) {
	w.put32(uint32(len(b)))
	w.putRaw(b)
}

func (w *qtWriter) putEnum(f *meta.Field, v Value) {
	n := int64(v.Int())
	if v.IsEnumName() {
		n = int64(w.reg.EnumValueByName(f, v.Str()))
	}
	switch f.EnumBits() {
	case 8:
		w.put8(uint8(n))
	case 16:
		w.put16(uint16(n))
	case 64:
		w.put64(uint64(n))
	default:
		w.put32(uint32(n))
	}
}

// arrayLen writes the element count of a scalar array holding n elements
// and returns how many elements go on the wire. A fixedarray field has no
// count and exactly its declared number of elements.
func (w *qtWriter) arrayLen(f *meta.Field, n int) int {
	if fixed, ok := f.FixedArray(); ok {
		return fixed
	}
	w.put32(uint32(n))
	return n
}

func (w *qtWriter) putScalar(f *meta.Field, typ meta.TypeID, v Value) {
	switch typ {
	case meta.TypeBool:
		if v.Bool() {
			w.put8(1)
		} else {
			w.put8(0)
		}
	case meta.TypeInt8, meta.TypeUint8:
		w.put8(uint8(v.Uint()))
	case meta.TypeInt16, meta.TypeUint16:
		w.put16(uint16(v.Uint()))
	case meta.TypeInt32, meta.TypeUint32:
		w.put32(uint32(v.Uint()))
	case meta.TypeInt64, meta.TypeUint64:
		w.put64(v.Uint())
	case meta.TypeFloat, meta.TypeDouble:
		w.put64(math.Float64bits(v.Float()))
	case meta.TypeString:
		w.putString(v.Str())
	case meta.TypeBytes:
		if f.QtType() == "png" {
			b := v.Bytes()
			if len(b) == 0 {
				w.put8(0)
				return
			}
			w.put8(1)
			w.putRaw(b)
			return
		}
		w.putBytes(v.Bytes())
	case meta.TypeEnum:
		w.putEnum(f, v)
	default:
		panic(fmt.Errorf("QtSerializer: field %v of type %v cannot hold a value", f, typ))
	}
}

func (w *qtWriter) EnterValue(f *meta.Field, v Value) {
	if !f.Type().IsArray() {
		w.putScalar(f, f.Type(), v)
		return
	}
	have := v.Len()
	n := w.arrayLen(f, have)
	switch f.Type() {
	case meta.TypeArrayBool:
		size := (n + 7) / 8
		w.reserveSpace(size)
		bits := w.blk[w.cur : w.cur+size]
		clear(bits)
		for i := 0; i < min(n, have); i++ {
			if v.Index(i).Bool() {
				bits[i/8] |= 1 << (i % 8)
			}
		}
		w.cur += size
	case meta.TypeArrayUint8:
		b := v.Bytes()
		if len(b) > n {
			b = b[:n]
		}
		w.putRaw(b)
		for i := len(b); i < n; i++ {
			w.put8(0)
		}
	default:
		elem := f.Elem()
		for i := 0; i < n; i++ {
			if i < have {
				w.putScalar(elem, elem.Type(), v.Index(i))
			} else {
				w.putScalar(elem, elem.Type(), ZeroValue(elem.Type()))
			}
		}
	}
}

func (w *qtWriter) EnterStruct(f *meta.Field) {
	if n := len(w.levels); n > 0 && w.levels[n-1].array {
		w.levels[n-1].count++
	}
	w.levels = append(w.levels, qtLevel{})
}

func (w *qtWriter) ExitStruct(f *meta.Field) {
	n := len(w.levels)
	if n == 0 || w.levels[n-1].array {
		panic(fmt.Errorf("QtSerializer: ExitStruct(%v) without a matching EnterStruct", f))
	}
	w.levels = w.levels[:n-1]
}

// EnterStructNull writes an all-default struct, since the format has no
// notion of absence.
func (w *qtWriter) EnterStructNull(f *meta.Field) {
	w.filler.emitDefaultStruct(f, w.reg.StructOf(f))
}

func (w *qtWriter) EnterArrayStruct(f *meta.Field) {
	l := qtLevel{array: true}
	if _, l.fixed = f.FixedArray(); !l.fixed {
		w.reserveSpace(4)
		l.block, l.off = w.blkIdx, w.cur
		w.cur += 4
	}
	w.levels = append(w.levels, l)
}

func (w *qtWriter) ExitArrayStruct(f *meta.Field) {
	n := len(w.levels)
	if n == 0 || !w.levels[n-1].array {
		panic(fmt.Errorf("QtSerializer: ExitArrayStruct(%v) without a matching EnterArrayStruct", f))
	}
	l := w.levels[n-1]
	w.levels = w.levels[:n-1]
	if !l.fixed {
		binary.BigEndian.PutUint32(w.zb.Blocks()[l.block][l.off:], l.count)
	}
}
