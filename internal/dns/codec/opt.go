package codec

// writeOPTRecord encodes the EDNS OPT pseudo-record's special framing: the
// class field carries udp_payload_size, the ttl field carries the packed
// (extended_rcode:u8, version:u8, flags:u16) triple. This MUST NOT go
// through the generic Record.Write path (spec §4.4).
func writeOPTRecord(c *Context, name string, opt OPTContent) error {
	if err := c.WriteName(name); err != nil {
		return err
	}
	c.WriteUint16(uint16(TypeOPT))
	c.WriteUint16(opt.UDPSize)
	ttl := uint32(opt.ExtendedRCode)<<24 | uint32(opt.Version)<<16 | uint32(opt.Flags)
	c.WriteUint32(ttl)

	rdlengthOffset := c.Pos()
	c.WriteUint16(0)
	contentStart := c.Pos()
	if err := opt.Encode(c); err != nil {
		return err
	}
	rdlength := c.Pos() - contentStart
	if rdlength > 0xFFFF {
		return NewFormatError("OPT rdata exceeds 65535 bytes")
	}
	c.WriteByteAt(rdlengthOffset, byte(rdlength>>8))
	c.WriteByteAt(rdlengthOffset+1, byte(rdlength))
	return nil
}

// readOPTRecord decodes an OPT record whose type field has already been
// confirmed to be 41 by the caller (the name and type fields are consumed
// here too, so this replaces the generic ReadRecord call entirely).
func readOPTRecord(c *Context) (name string, opt OPTContent, err error) {
	name, err = c.ReadName()
	if err != nil {
		return "", OPTContent{}, err
	}
	rtype, err := c.ReadUint16()
	if err != nil {
		return "", OPTContent{}, err
	}
	if Type(rtype) != TypeOPT {
		return "", OPTContent{}, NewFormatError("expected OPT record type")
	}
	udpSize, err := c.ReadUint16()
	if err != nil {
		return "", OPTContent{}, err
	}
	ttl, err := c.ReadUint32()
	if err != nil {
		return "", OPTContent{}, err
	}
	rdlength, err := c.ReadUint16()
	if err != nil {
		return "", OPTContent{}, err
	}
	if c.Remaining() < int(rdlength) {
		return "", OPTContent{}, NewFormatError("OPT rdlength exceeds remaining message")
	}
	content, err := decodeOPT(c, int(rdlength))
	if err != nil {
		return "", OPTContent{}, err
	}
	o := content.(OPTContent)
	o.UDPSize = udpSize
	o.ExtendedRCode = uint8(ttl >> 24)
	o.Version = uint8(ttl >> 16)
	o.Flags = uint16(ttl)
	return name, o, nil
}

// peekIsOPT reports whether the record about to be read at the cursor has
// type OPT, without consuming any bytes — used by the additional-section
// dispatch in C6.
func peekIsOPT(c *Context) (bool, error) {
	save := c.Pos()
	defer c.Seek(save)

	if _, err := c.ReadName(); err != nil {
		return false, err
	}
	rtype, err := c.ReadUint16()
	if err != nil {
		return false, err
	}
	return Type(rtype) == TypeOPT, nil
}
