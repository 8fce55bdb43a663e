package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is the padding unit for hot counters. 64 bytes fits
// current x86-64 and most arm64 parts.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields into distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is an atomic uint64 occupying a full cache line, so counters
// bumped by different goroutines do not false-share.
type Counter struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Must be exactly one cache line.
var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
