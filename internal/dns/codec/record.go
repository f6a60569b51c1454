package codec

// Question is a single entry in a message's question/zone section.
type Question struct {
	Name  string
	QType Type
	Class Class // defaults to IN
}

func (q Question) Write(c *Context) error {
	if err := c.WriteName(q.Name); err != nil {
		return err
	}
	c.WriteUint16(uint16(q.QType))
	cls := q.Class
	if cls == 0 {
		cls = ClassIN
	}
	c.WriteUint16(uint16(cls))
	return nil
}

func ReadQuestion(c *Context) (Question, error) {
	name, err := c.ReadName()
	if err != nil {
		return Question{}, err
	}
	qtype, err := c.ReadUint16()
	if err != nil {
		return Question{}, err
	}
	qclass, err := c.ReadUint16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, QType: Type(qtype), Class: Class(qclass)}, nil
}

// Record is a resource record: (name, type, class, ttl, content). Type is
// derived from Content's dynamic type when encoding.
type Record struct {
	Name    string
	Class   Class
	TTL     uint32
	Content Content
}

// Write encodes the record header then its content, reserving the rdlength
// field and back-patching it once the content's actual length is known.
func (r Record) Write(c *Context) error {
	if err := c.WriteName(r.Name); err != nil {
		return err
	}
	c.WriteUint16(uint16(r.Content.Type()))
	cls := r.Class
	if cls == 0 {
		cls = ClassIN
	}
	c.WriteUint16(uint16(cls))
	c.WriteUint32(r.TTL)

	rdlengthOffset := c.Pos()
	c.WriteUint16(0) // placeholder, patched below
	contentStart := c.Pos()

	if err := r.Content.Encode(c); err != nil {
		return err
	}
	rdlength := c.Pos() - contentStart
	if rdlength > 0xFFFF {
		return NewFormatError("rdata exceeds 65535 bytes")
	}
	c.WriteByteAt(rdlengthOffset, byte(rdlength>>8))
	c.WriteByteAt(rdlengthOffset+1, byte(rdlength))
	return nil
}

// ReadRecord decodes a record header, then restricts content decoding to
// the rdlength-sized slice immediately following, per spec §4.4.
func ReadRecord(c *Context) (Record, error) {
	name, err := c.ReadName()
	if err != nil {
		return Record{}, err
	}
	rtype, err := c.ReadUint16()
	if err != nil {
		return Record{}, err
	}
	rclass, err := c.ReadUint16()
	if err != nil {
		return Record{}, err
	}
	ttl, err := c.ReadUint32()
	if err != nil {
		return Record{}, err
	}
	rdlength, err := c.ReadUint16()
	if err != nil {
		return Record{}, err
	}
	if c.Remaining() < int(rdlength) {
		return Record{}, NewFormatError("rdlength exceeds remaining message")
	}
	contentStart := c.Pos()
	content, err := DecodeContent(c, Type(rtype), int(rdlength))
	if err != nil {
		return Record{}, err
	}
	if c.Pos() != contentStart+int(rdlength) {
		return Record{}, NewFormatError("rdata length does not match rdlength")
	}
	return Record{Name: name, Class: Class(rclass), TTL: ttl, Content: content}, nil
}
