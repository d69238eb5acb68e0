package cpu

import (
	"encoding/binary"
)

const (
	HEAP_LIMIT = 1 << 20 // Default maximum heap size, in bytes.
	WORD_SIZE  = 4       // Bytes per heap word (LOADM/SETM).
)

// Heap is the byte addressable data memory. It only grows, through Preload
// and Alloc, and every access is checked against its current extent.
type Heap struct {
	Limit int // Maximum size in bytes; HEAP_LIMIT if zero.
	Data  []byte
}

func (h *Heap) limit() int {
	if h.Limit <= 0 {
		return HEAP_LIMIT
	}
	return h.Limit
}

// Len returns the allocated extent of the heap.
func (h *Heap) Len() int {
	return len(h.Data)
}

// Alloc grows the heap by size zeroed bytes, and returns the offset of
// the new block.
func (h *Heap) Alloc(size int32) (base uint32, err error) {
	if size < 0 || len(h.Data)+int(size) > h.limit() {
		err = ErrOutOfBounds
		return
	}

	base = uint32(len(h.Data))
	h.Data = append(h.Data, make([]byte, size)...)
	return
}

// Preload copies data to the start of the heap, growing the heap to hold
// it. Bytes past the end of data are kept.
func (h *Heap) Preload(data []byte) (err error) {
	if len(data) > h.limit() {
		err = ErrOutOfBounds
		return
	}

	if len(h.Data) < len(data) {
		h.Data = append(h.Data, make([]byte, len(data)-len(h.Data))...)
	}
	copy(h.Data, data)
	return
}

// Slice returns the heap bytes [offset, offset+size).
// The slice aliases heap memory.
func (h *Heap) Slice(offset int32, size int) (data []byte, err error) {
	if offset < 0 || size < 0 || int64(offset)+int64(size) > int64(len(h.Data)) {
		err = ErrOutOfBounds
		return
	}

	data = h.Data[offset : int(offset)+size]
	return
}

// Load32 reads the little-endian word at offset.
func (h *Heap) Load32(offset int32) (value int32, err error) {
	data, err := h.Slice(offset, WORD_SIZE)
	if err != nil {
		return
	}

	value = int32(binary.LittleEndian.Uint32(data))
	return
}

// Store32 writes the little-endian word at offset.
func (h *Heap) Store32(offset int32, value int32) (err error) {
	data, err := h.Slice(offset, WORD_SIZE)
	if err != nil {
		return
	}

	binary.LittleEndian.PutUint32(data, uint32(value))
	return
}

// CString reads the NUL terminated byte string at offset.
func (h *Heap) CString(offset int32) (str []byte, err error) {
	if offset < 0 || int(offset) >= len(h.Data) {
		err = ErrOutOfBounds
		return
	}

	for n, ch := range h.Data[offset:] {
		if ch == 0 {
			str = h.Data[offset : int(offset)+n]
			return
		}
	}

	err = ErrOutOfBounds
	return
}

// Reset empties the heap.
func (h *Heap) Reset() {
	h.Data = nil
}
