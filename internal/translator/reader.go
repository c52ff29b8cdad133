package translator

import (
	"encoding/binary"
	"fmt"
)

// reader is a bounds-checked cursor over a PDU.
type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) need(n int) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, r.remaining())
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) peek() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.buf[r.pos], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// length reads a BER / A-XDR length: a single octet below 0x80, or 0x8N
// followed by N big-endian octets.
func (r *reader) length() (int, error) {
	first, err := r.u8()
	if err != nil {
		return 0, err
	}
	if first < 0x80 {
		return int(first), nil
	}
	n := int(first & 0x7F)
	if n == 0 || n > 3 {
		return 0, fmt.Errorf("%w: unsupported length form 0x%02X", ErrMalformed, first)
	}
	b, err := r.bytes(n)
	if err != nil {
		return 0, err
	}
	l := 0
	for _, c := range b {
		l = l<<8 | int(c)
	}
	return l, nil
}

// tlv reads a tag, a length and the value that follows.
func (r *reader) tlv() (byte, []byte, error) {
	tag, err := r.u8()
	if err != nil {
		return 0, nil, err
	}
	l, err := r.length()
	if err != nil {
		return 0, nil, err
	}
	v, err := r.bytes(l)
	if err != nil {
		return 0, nil, err
	}
	return tag, v, nil
}

// expectTLV reads a TLV and checks its tag.
func (r *reader) expectTLV(want byte) ([]byte, error) {
	tag, v, err := r.tlv()
	if err != nil {
		return nil, err
	}
	if tag != want {
		return nil, fmt.Errorf("%w: expected tag 0x%02X, got 0x%02X", ErrMalformed, want, tag)
	}
	return v, nil
}
