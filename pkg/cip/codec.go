package cip

import (
	"encoding/binary"
	"fmt"
)

// Cursor is a moving read/write position over a byte buffer, the wire-level
// primitive every codec in this package (EPATH, CPF, Message Router
// envelopes, Connection Manager bodies) is built on. All multi-byte
// integers are little-endian on the wire regardless of host endianness.
//
// Reading past the end of the buffer is a programming error: callers must
// validate remaining length before calling, the cursor does not bounds
// check. This matches the single-threaded, allocation-averse core (spec 5)
// where the router's reply buffer is a fixed-size singleton.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for reading from the start.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewWriteCursor wraps a pre-sized buffer for writing from the start; cap
// must be at least as large as anything the caller intends to write.
func NewWriteCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf[:0]}
}

// Pos returns the current cursor offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns everything written or remaining to be read, depending on
// how the cursor was constructed.
func (c *Cursor) Bytes() []byte { return c.buf }

// Rest returns the unread tail without advancing the cursor.
func (c *Cursor) Rest() []byte { return c.buf[c.pos:] }

// Skip advances the cursor n bytes without interpreting them.
func (c *Cursor) Skip(n int) { c.pos += n }

func (c *Cursor) ReadU8() USINT {
	v := c.buf[c.pos]
	c.pos++
	return USINT(v)
}

func (c *Cursor) ReadU16() UINT {
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return UINT(v)
}

func (c *Cursor) ReadU32() UDINT {
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return UDINT(v)
}

func (c *Cursor) ReadU64() ULINT {
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return ULINT(v)
}

func (c *Cursor) ReadI8() SINT  { return SINT(c.ReadU8()) }
func (c *Cursor) ReadI16() INT  { return INT(c.ReadU16()) }
func (c *Cursor) ReadI32() DINT { return DINT(c.ReadU32()) }
func (c *Cursor) ReadI64() LINT { return LINT(c.ReadU64()) }

// ReadBytes returns the next n raw bytes and advances the cursor.
func (c *Cursor) ReadBytes(n int) []byte {
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// ReadString decodes a CIP_STRING: 2-byte length, bytes, 1-byte pad if the
// length is odd.
func (c *Cursor) ReadString() string {
	n := int(c.ReadU16())
	s := string(c.ReadBytes(n))
	if n%2 != 0 {
		c.Skip(1)
	}
	return s
}

// ReadShortString decodes a SHORT_STRING: 1-byte length, bytes, no pad.
func (c *Cursor) ReadShortString() string {
	n := int(c.ReadU8())
	return string(c.ReadBytes(n))
}

func (c *Cursor) WriteU8(v USINT) {
	c.buf = append(c.buf, byte(v))
	c.pos++
}

func (c *Cursor) WriteU16(v UINT) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(v))
	c.buf = append(c.buf, tmp[:]...)
	c.pos += 2
}

func (c *Cursor) WriteU32(v UDINT) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	c.buf = append(c.buf, tmp[:]...)
	c.pos += 4
}

func (c *Cursor) WriteU64(v ULINT) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	c.buf = append(c.buf, tmp[:]...)
	c.pos += 8
}

func (c *Cursor) WriteI8(v SINT)  { c.WriteU8(USINT(v)) }
func (c *Cursor) WriteI16(v INT)  { c.WriteU16(UINT(v)) }
func (c *Cursor) WriteI32(v DINT) { c.WriteU32(UDINT(v)) }
func (c *Cursor) WriteI64(v LINT) { c.WriteU64(ULINT(v)) }

func (c *Cursor) WriteBytes(b []byte) {
	c.buf = append(c.buf, b...)
	c.pos += len(b)
}

// WriteString encodes a CIP_STRING: 2-byte length, bytes, 1-byte pad if odd.
func (c *Cursor) WriteString(s string) {
	c.WriteU16(UINT(len(s)))
	c.WriteBytes([]byte(s))
	if len(s)%2 != 0 {
		c.WriteU8(0)
	}
}

// WriteShortString encodes a SHORT_STRING: 1-byte length, bytes, no pad.
func (c *Cursor) WriteShortString(s string) {
	c.WriteU8(USINT(len(s)))
	c.WriteBytes([]byte(s))
}

// SockAddr is the BSD-style sockaddr_in carried in CPF SocketAddressInfo
// items: family and port are big-endian per BSD convention, the address is
// stored in network order, and the struct is padded to 16 bytes total.
type SockAddr struct {
	Family  int16
	Port    uint16
	Address [4]byte
	Zero    [8]byte
}

// WriteSockAddr encodes a SockAddr with the family/port in big-endian order
// and the address bytes verbatim (already network order), matching BSD
// sockaddr_in layout used by the SocketAddressInfo O->T/T->O CPF items.
func (c *Cursor) WriteSockAddr(a SockAddr) {
	var tmp [16]byte
	binary.BigEndian.PutUint16(tmp[0:2], uint16(a.Family))
	binary.BigEndian.PutUint16(tmp[2:4], a.Port)
	copy(tmp[4:8], a.Address[:])
	copy(tmp[8:16], a.Zero[:])
	c.WriteBytes(tmp[:])
}

// ReadSockAddr decodes a SockAddr per WriteSockAddr's layout.
func (c *Cursor) ReadSockAddr() SockAddr {
	b := c.ReadBytes(16)
	var a SockAddr
	a.Family = int16(binary.BigEndian.Uint16(b[0:2]))
	a.Port = binary.BigEndian.Uint16(b[2:4])
	copy(a.Address[:], b[4:8])
	copy(a.Zero[:], b[8:16])
	return a
}

// RequireRemaining is a convenience bounds check for callers that want to
// fail with a typed CIP error instead of panicking, used at component
// boundaries (ForwardOpen/ForwardClose/EPATH parsing) where the incoming
// buffer is attacker/wire controlled rather than internally constructed.
func (c *Cursor) RequireRemaining(n int) error {
	if c.Remaining() < n {
		return fmt.Errorf("cip: short buffer: need %d, have %d: %w", n, c.Remaining(), ErrShortBuffer)
	}
	return nil
}

// ErrShortBuffer is wrapped by RequireRemaining; internal plumbing errors
// like this never reach the wire, callers convert them to a CIP status at
// the dispatch boundary (spec 7).
var ErrShortBuffer = fmt.Errorf("short buffer")
