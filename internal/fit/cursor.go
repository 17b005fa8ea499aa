package fit

import (
	"encoding/binary"
	"fmt"
)

// Cursor reads fixed-width integers from an immutable buffer. Reads never go
// past the end of the buffer; a short read fails with ErrOutOfBounds and does
// not move the position.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Position() int {
	return c.pos
}

func (c *Cursor) Len() int {
	return len(c.buf)
}

func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Seek moves the cursor to an absolute offset. Seeking to Len() is allowed and
// leaves nothing to read.
func (c *Cursor) Seek(offset int) error {
	if offset < 0 || offset > len(c.buf) {
		return fmt.Errorf("seek to %d: %w", offset, ErrOutOfBounds)
	}
	c.pos = offset
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, ErrOutOfBounds
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytes returns a view of the next n bytes. The slice aliases the
// underlying buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadI8() (int8, error) {
	v, err := c.ReadU8()
	return int8(v), err
}

func (c *Cursor) ReadU16(order binary.ByteOrder) (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (c *Cursor) ReadI16(order binary.ByteOrder) (int16, error) {
	v, err := c.ReadU16(order)
	return int16(v), err
}

func (c *Cursor) ReadU32(order binary.ByteOrder) (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (c *Cursor) ReadI32(order binary.ByteOrder) (int32, error) {
	v, err := c.ReadU32(order)
	return int32(v), err
}

func (c *Cursor) ReadU64(order binary.ByteOrder) (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}
