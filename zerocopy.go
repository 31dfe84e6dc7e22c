package structwire

import "io"

// ZeroCopyBuffer is an ordered sequence of byte blocks that serializers
// write into directly. A block handed out by AddBuffer counts as fully used
// until DownsizeLastBuffer reports how much of it was actually written.
//
// Blocks come from a shared pool; Reset returns them.
type ZeroCopyBuffer struct {
	blocks [][]byte
}

// AddBuffer appends a block of at least minSize bytes and returns it with
// its length set to its capacity.
func (zb *ZeroCopyBuffer) AddBuffer(minSize int) []byte {
	b := getBlock(minSize)
	b = b[:cap(b)]
	zb.blocks = append(zb.blocks, b)
	return b
}

// DownsizeLastBuffer sets the number of used bytes in the last block.
func (zb *ZeroCopyBuffer) DownsizeLastBuffer(n int) {
	last := len(zb.blocks) - 1
	if last < 0 {
		if n == 0 {
			return
		}
		panic("DownsizeLastBuffer on empty buffer")
	}
	b := zb.blocks[last]
	if n < 0 || n > cap(b) {
		panic("DownsizeLastBuffer beyond block capacity")
	}
	zb.blocks[last] = b[:n]
}

// RemainingSize returns the unused capacity of the last block.
func (zb *ZeroCopyBuffer) RemainingSize() int {
	if len(zb.blocks) == 0 {
		return 0
	}
	b := zb.blocks[len(zb.blocks)-1]
	return cap(b) - len(b)
}

// Size returns the total number of used bytes.
func (zb *ZeroCopyBuffer) Size() int {
	var n int
	for _, b := range zb.blocks {
		n += len(b)
	}
	return n
}

// Blocks returns the used portion of every block. The slices are invalidated
// by Reset.
func (zb *ZeroCopyBuffer) Blocks() [][]byte {
	return zb.blocks
}

// Bytes returns a freshly allocated copy of the buffer contents.
func (zb *ZeroCopyBuffer) Bytes() []byte {
	result := make([]byte, 0, zb.Size())
	for _, b := range zb.blocks {
		result = append(result, b...)
	}
	return result
}

func (zb *ZeroCopyBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, b := range zb.blocks {
		n, err := w.Write(b)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Reset releases all blocks.
func (zb *ZeroCopyBuffer) Reset() {
	for i, b := range zb.blocks {
		releaseBlock(b)
		zb.blocks[i] = nil
	}
	zb.blocks = zb.blocks[:0]
}
