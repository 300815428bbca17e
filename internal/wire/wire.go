// Package wire frames cached responses.
//
//	single: magic(4) | ver(1) | kind(1) | gen(u64) | storedAt(i64 ns) | vlen(u32) | payload
//	bulk:   magic(4) | ver(1) | kind(1) | storedAt(i64 ns) | n(u32) |
//	        { klen(u16) | key | gen(u64) | vlen(u32) | payload } * n
//
// All integers are big endian. Decoders reject trailing bytes. Decoded payloads
// alias the input buffer.
package wire

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	version    byte = 1
	kindSingle byte = 1
	kindBulk   byte = 2

	headerLen = 4 + 1 + 1
	maxKeyLen = 0xFFFF
)

var (
	ErrCorrupt = errors.New("reqrs: corrupt cache entry")
	ErrKey     = errors.New("reqrs: bulk key length must be 1..65535")

	magic = [4]byte{'R', 'Q', 'R', 'S'}
)

// Single is one cached response.
type Single struct {
	Gen      uint64
	StoredAt time.Time
	Payload  []byte
}

// BulkItem is one response inside a bulk entry.
type BulkItem struct {
	Key     string
	Gen     uint64
	Payload []byte
}

func header(kind byte, size int) []byte {
	b := make([]byte, 0, size)
	b = append(b, magic[:]...)
	return append(b, version, kind)
}

func EncodeSingle(s Single) []byte {
	b := header(kindSingle, headerLen+8+8+4+len(s.Payload))
	b = binary.BigEndian.AppendUint64(b, s.Gen)
	b = binary.BigEndian.AppendUint64(b, uint64(s.StoredAt.UnixNano()))
	b = binary.BigEndian.AppendUint32(b, uint32(len(s.Payload)))
	return append(b, s.Payload...)
}

func DecodeSingle(b []byte) (Single, error) {
	r, ok := open(b, kindSingle)
	if !ok {
		return Single{}, ErrCorrupt
	}
	var s Single
	s.Gen = r.u64()
	s.StoredAt = r.time()
	s.Payload = r.bytes(int(r.u32()))
	if !r.done() {
		return Single{}, ErrCorrupt
	}
	return s, nil
}

func EncodeBulk(storedAt time.Time, items []BulkItem) ([]byte, error) {
	size := headerLen + 8 + 4
	for _, it := range items {
		if l := len(it.Key); l == 0 || l > maxKeyLen {
			return nil, ErrKey
		}
		size += 2 + len(it.Key) + 8 + 4 + len(it.Payload)
	}

	b := header(kindBulk, size)
	b = binary.BigEndian.AppendUint64(b, uint64(storedAt.UnixNano()))
	b = binary.BigEndian.AppendUint32(b, uint32(len(items)))
	for _, it := range items {
		b = binary.BigEndian.AppendUint16(b, uint16(len(it.Key)))
		b = append(b, it.Key...)
		b = binary.BigEndian.AppendUint64(b, it.Gen)
		b = binary.BigEndian.AppendUint32(b, uint32(len(it.Payload)))
		b = append(b, it.Payload...)
	}
	return b, nil
}

func DecodeBulk(b []byte) (storedAt time.Time, items []BulkItem, err error) {
	r, ok := open(b, kindBulk)
	if !ok {
		return time.Time{}, nil, ErrCorrupt
	}
	storedAt = r.time()
	n := int(r.u32())
	// every item needs at least 15 bytes; bound n before allocating
	if r.bad || n > r.left()/15 {
		return time.Time{}, nil, ErrCorrupt
	}
	items = make([]BulkItem, 0, n)
	for i := 0; i < n; i++ {
		key := r.bytes(int(r.u16()))
		it := BulkItem{Key: string(key), Gen: r.u64()}
		it.Payload = r.bytes(int(r.u32()))
		if r.bad || len(key) == 0 {
			return time.Time{}, nil, ErrCorrupt
		}
		items = append(items, it)
	}
	if !r.done() {
		return time.Time{}, nil, ErrCorrupt
	}
	return storedAt, items, nil
}

// reader consumes b and latches bad on the first short read.
type reader struct {
	b   []byte
	off int
	bad bool
}

func open(b []byte, kind byte) (*reader, bool) {
	if len(b) < headerLen || [4]byte(b[:4]) != magic || b[4] != version || b[5] != kind {
		return nil, false
	}
	return &reader{b: b, off: headerLen}, true
}

func (r *reader) left() int { return len(r.b) - r.off }

func (r *reader) take(n int) []byte {
	if r.bad || n < 0 || n > r.left() {
		r.bad = true
		return nil
	}
	p := r.b[r.off : r.off+n : r.off+n]
	r.off += n
	return p
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return binary.BigEndian.Uint16(p)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.BigEndian.Uint32(p)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if p := r.take(8); p != nil {
		return binary.BigEndian.Uint64(p)
	}
	return 0
}

func (r *reader) time() time.Time {
	return time.Unix(0, int64(r.u64()))
}

func (r *reader) bytes(n int) []byte {
	p := r.take(n)
	if n == 0 && !r.bad {
		return nil
	}
	return p
}

func (r *reader) done() bool { return !r.bad && r.off == len(r.b) }
