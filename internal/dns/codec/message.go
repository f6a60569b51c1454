package codec

// Message is a full DNS message: a 16-bit id, flags, and four sections.
// Section counts are derived from slice lengths, never stored
// independently. When Flags.Opcode is OpUpdate, the same four slices carry
// different semantic roles — see Zone/Prerequisite/UpdateRecords below —
// rather than being re-typed; the caller interprets by section, not by
// physical record shape (spec §9, "UPDATE re-typing").
type Message struct {
	ID    uint16
	Flags Flags

	Questions  []Question
	Answers    []Record
	Authority  []Record
	Additional []Record

	// EDNS, when non-nil, is the OPT pseudo-record carried in the
	// additional section. It is always decoded into this distinct slot,
	// never appended to Additional, per spec §4.5.
	EDNS     *OPTContent
	EDNSName string
}

// Zone returns the question-section entries under their UPDATE role name.
func (m *Message) Zone() []Question { return m.Questions }

// Prerequisite returns the answer-section entries under their UPDATE role
// name (RR with class possibly NONE/ANY and ttl 0).
func (m *Message) Prerequisite() []Record { return m.Answers }

// UpdateRecords returns the authority-section entries under their UPDATE
// role name.
func (m *Message) UpdateRecords() []Record { return m.Authority }

// Strict controls whether Decode rejects a message with trailing bytes
// after the declared section counts are satisfied. The library's default
// is strict (spec §4.5).
type DecodeOptions struct {
	Strict bool
}

// DefaultDecodeOptions matches the spec's stated default: strict.
func DefaultDecodeOptions() DecodeOptions { return DecodeOptions{Strict: true} }

// Encode serializes the message to wire format using a fresh Context.
func Encode(m *Message) ([]byte, error) {
	c := NewContext()
	defer c.Release()

	c.WriteUint16(m.ID)
	m.Flags.Write(c)
	c.WriteUint16(uint16(len(m.Questions)))
	c.WriteUint16(uint16(len(m.Answers)))
	c.WriteUint16(uint16(len(m.Authority)))

	arcount := len(m.Additional)
	if m.EDNS != nil {
		arcount++
	}
	c.WriteUint16(uint16(arcount))

	for _, q := range m.Questions {
		if err := q.Write(c); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Answers {
		if err := r.Write(c); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Authority {
		if err := r.Write(c); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Additional {
		if err := r.Write(c); err != nil {
			return nil, err
		}
	}
	if m.EDNS != nil {
		name := m.EDNSName
		if name == "" {
			name = "."
		}
		if err := writeOPTRecord(c, name, *m.EDNS); err != nil {
			return nil, err
		}
	}

	out := make([]byte, c.Len())
	copy(out, c.Bytes())
	return out, nil
}

// Decode parses a wire-format message. Additional-section entries of type
// OPT are decoded into Message.EDNS rather than Message.Additional. When
// opcode is UPDATE, section entries are still parsed as Question/Record —
// only their field names (Zone/Prerequisite/UpdateRecords) carry the
// reinterpretation.
func Decode(data []byte, opts DecodeOptions) (*Message, error) {
	c := NewDecodeContext(data)
	defer c.Release()

	id, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	flags, err := ReadFlags(c)
	if err != nil {
		return nil, err
	}
	qdcount, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	ancount, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	nscount, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	arcount, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}

	m := &Message{ID: id, Flags: flags}

	for i := 0; i < int(qdcount); i++ {
		q, err := ReadQuestion(c)
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, q)
	}
	for i := 0; i < int(ancount); i++ {
		r, err := ReadRecord(c)
		if err != nil {
			return nil, err
		}
		m.Answers = append(m.Answers, r)
	}
	for i := 0; i < int(nscount); i++ {
		r, err := ReadRecord(c)
		if err != nil {
			return nil, err
		}
		m.Authority = append(m.Authority, r)
	}
	for i := 0; i < int(arcount); i++ {
		isOPT, err := peekIsOPT(c)
		if err != nil {
			return nil, err
		}
		if isOPT {
			name, opt, err := readOPTRecord(c)
			if err != nil {
				return nil, err
			}
			o := opt
			m.EDNS = &o
			m.EDNSName = name
			continue
		}
		r, err := ReadRecord(c)
		if err != nil {
			return nil, err
		}
		m.Additional = append(m.Additional, r)
	}

	if opts.Strict && c.Remaining() != 0 {
		return nil, NewFormatError("trailing bytes after declared sections")
	}

	return m, nil
}
