package pool

import "sync"

// transient record payloads are typically a few KiB
const defaultBufCap = 4096

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, defaultBufCap)
		return &b
	},
}

// GetBuf returns a byte slice of length n backed by the pool. The contents
// are undefined; the caller must fill the slice before reading it.
//
// Pass the slice to PutBuf once the data has been decoded and do not retain
// it afterwards.
func GetBuf(n int) []byte {
	bp, _ := bufPool.Get().(*[]byte)
	if cap(*bp) < n {
		*bp = make([]byte, 0, n)
	}

	return (*bp)[:n]
}

// PutBuf returns a slice obtained from GetBuf to the pool. Grown capacity is
// kept, so a pool cycled through large payloads stops allocating.
func PutBuf(b []byte) {
	b = b[:0]
	bufPool.Put(&b)
}
