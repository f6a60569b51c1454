package codec

import (
	"encoding/binary"
	"net"
)

// WriteUint8 appends a single byte.
func (c *Context) WriteUint8(v uint8) { c.WriteBytes([]byte{v}) }

// ReadUint8 reads a single byte.
func (c *Context) ReadUint8() (uint8, error) {
	b, err := c.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteUint16 appends a big-endian u16.
func (c *Context) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	c.WriteBytes(b[:])
}

// ReadUint16 reads a big-endian u16.
func (c *Context) ReadUint16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// WriteUint32 appends a big-endian u32.
func (c *Context) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	c.WriteBytes(b[:])
}

// ReadUint32 reads a big-endian u32.
func (c *Context) ReadUint32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteUint48 appends the low 48 bits of v, big-endian. Used by TSIG's
// time_signed field.
func (c *Context) WriteUint48(v uint64) {
	var b [6]byte
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
	c.WriteBytes(b[:])
}

// ReadUint48 reads a 48-bit big-endian unsigned integer.
func (c *Context) ReadUint48() (uint64, error) {
	b, err := c.ReadBytes(6)
	if err != nil {
		return 0, err
	}
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5]), nil
}

// WriteIPv4 appends a four-byte IPv4 address.
func (c *Context) WriteIPv4(ip net.IP) error {
	v4 := ip.To4()
	if v4 == nil {
		return NewFormatError("not a valid IPv4 address")
	}
	c.WriteBytes(v4)
	return nil
}

// ReadIPv4 reads four bytes as an IPv4 address.
func (c *Context) ReadIPv4() (net.IP, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip, nil
}

// WriteIPv6 appends a sixteen-byte IPv6 address.
func (c *Context) WriteIPv6(ip net.IP) error {
	v6 := ip.To16()
	if v6 == nil {
		return NewFormatError("not a valid IPv6 address")
	}
	c.WriteBytes(v6)
	return nil
}

// ReadIPv6 reads sixteen bytes as an IPv6 address.
func (c *Context) ReadIPv6() (net.IP, error) {
	b, err := c.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	ip := make(net.IP, 16)
	copy(ip, b)
	return ip, nil
}

// WriteSizedBytesU8 writes a one-byte length prefix followed by data. Used by
// TXT content.
func (c *Context) WriteSizedBytesU8(data []byte) error {
	if len(data) > 0xFF {
		return NewFormatError("sized blob exceeds u8 length")
	}
	c.WriteUint8(uint8(len(data)))
	c.WriteBytes(data)
	return nil
}

// ReadSizedBytesU8 reads a one-byte length prefix then that many bytes.
func (c *Context) ReadSizedBytesU8() ([]byte, error) {
	n, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(int(n))
}

// WriteSizedBytesU16 writes a two-byte length prefix followed by data. Used
// by TSIG's mac and other_data fields and EDNS option values.
func (c *Context) WriteSizedBytesU16(data []byte) error {
	if len(data) > 0xFFFF {
		return NewFormatError("sized blob exceeds u16 length")
	}
	c.WriteUint16(uint16(len(data)))
	c.WriteBytes(data)
	return nil
}

// ReadSizedBytesU16 reads a two-byte length prefix then that many bytes.
func (c *Context) ReadSizedBytesU16() ([]byte, error) {
	n, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(int(n))
}
