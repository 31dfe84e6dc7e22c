package structwire

import "sync"

// DefaultBlockSize is the capacity of pooled ZeroCopyBuffer blocks.
const DefaultBlockSize = 1024

var blockPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, DefaultBlockSize)
	},
}

func getBlock(minSize int) []byte {
	if minSize > DefaultBlockSize {
		return make([]byte, 0, minSize)
	}
	return blockPool.Get().([]byte)[:0]
}

func releaseBlock(b []byte) {
	if cap(b) == DefaultBlockSize {
		blockPool.Put(b[:0])
	}
}

var valueBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 65536)
	},
}

func releaseValueBytes(b []byte) {
	valueBytesPool.Put(b[:0])
}
