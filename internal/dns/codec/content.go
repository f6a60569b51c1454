package codec

import "net"

// Content is one per-record-type wire payload (C4). Encode writes only the
// rdata bytes; the record-level framing (name/type/class/ttl/rdlength) is
// handled by C5.
type Content interface {
	Type() Type
	Encode(c *Context) error
}

// ---- A / AAAA ----

type AContent struct{ IP net.IP }

func (AContent) Type() Type { return TypeA }
func (a AContent) Encode(c *Context) error {
	return c.WriteIPv4(a.IP)
}
func decodeA(c *Context, _ int) (Content, error) {
	ip, err := c.ReadIPv4()
	if err != nil {
		return nil, err
	}
	return AContent{IP: ip}, nil
}

type AAAAContent struct{ IP net.IP }

func (AAAAContent) Type() Type { return TypeAAAA }
func (a AAAAContent) Encode(c *Context) error {
	return c.WriteIPv6(a.IP)
}
func decodeAAAA(c *Context, _ int) (Content, error) {
	ip, err := c.ReadIPv6()
	if err != nil {
		return nil, err
	}
	return AAAAContent{IP: ip}, nil
}

// ---- NS / CNAME / PTR: single compressible domain name ----

type NSContent struct{ Name string }

func (NSContent) Type() Type { return TypeNS }
func (n NSContent) Encode(c *Context) error { return c.WriteName(n.Name) }
func decodeNS(c *Context, _ int) (Content, error) {
	n, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	return NSContent{Name: n}, nil
}

type CNAMEContent struct{ Name string }

func (CNAMEContent) Type() Type { return TypeCNAME }
func (n CNAMEContent) Encode(c *Context) error { return c.WriteName(n.Name) }
func decodeCNAME(c *Context, _ int) (Content, error) {
	n, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	return CNAMEContent{Name: n}, nil
}

type PTRContent struct{ Name string }

func (PTRContent) Type() Type { return TypePTR }
func (n PTRContent) Encode(c *Context) error { return c.WriteName(n.Name) }
func decodePTR(c *Context, _ int) (Content, error) {
	n, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	return PTRContent{Name: n}, nil
}

// ---- MX ----

type MXContent struct {
	Preference uint16
	Exchange   string
}

func (MXContent) Type() Type { return TypeMX }
func (m MXContent) Encode(c *Context) error {
	c.WriteUint16(m.Preference)
	return c.WriteName(m.Exchange)
}
func decodeMX(c *Context, _ int) (Content, error) {
	pref, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	ex, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	return MXContent{Preference: pref, Exchange: ex}, nil
}

// ---- SOA ----

type SOAContent struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (SOAContent) Type() Type { return TypeSOA }
func (s SOAContent) Encode(c *Context) error {
	if err := c.WriteName(s.MName); err != nil {
		return err
	}
	if err := c.WriteName(s.RName); err != nil {
		return err
	}
	c.WriteUint32(s.Serial)
	c.WriteUint32(s.Refresh)
	c.WriteUint32(s.Retry)
	c.WriteUint32(s.Expire)
	c.WriteUint32(s.Minimum)
	return nil
}
func decodeSOA(c *Context, _ int) (Content, error) {
	mname, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	rname, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	var vals [5]uint32
	for i := range vals {
		v, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return SOAContent{
		MName: mname, RName: rname,
		Serial: vals[0], Refresh: vals[1], Retry: vals[2], Expire: vals[3], Minimum: vals[4],
	}, nil
}

// ---- TXT ----

type TXTContent struct{ Text []byte }

func (TXTContent) Type() Type { return TypeTXT }
func (t TXTContent) Encode(c *Context) error { return c.WriteSizedBytesU8(t.Text) }
func decodeTXT(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	text, err := c.ReadSizedBytesU8()
	if err != nil {
		return nil, err
	}
	if c.Pos() != end {
		return nil, NewFormatError("TXT rdlength mismatch")
	}
	return TXTContent{Text: text}, nil
}

// ---- SRV ----

type SRVContent struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (SRVContent) Type() Type { return TypeSRV }
func (s SRVContent) Encode(c *Context) error {
	c.WriteUint16(s.Priority)
	c.WriteUint16(s.Weight)
	c.WriteUint16(s.Port)
	return c.WriteName(s.Target)
}
func decodeSRV(c *Context, _ int) (Content, error) {
	prio, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	weight, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	port, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	target, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	return SRVContent{Priority: prio, Weight: weight, Port: port, Target: target}, nil
}

// ---- TSIG (RFC 2845) ----

type TSIGContent struct {
	AlgName    string
	TimeSigned uint64 // 48-bit unix seconds
	Fudge      uint16
	MAC        []byte
	OriginalID uint16
	Error      uint16
	OtherData  []byte
}

func (TSIGContent) Type() Type { return TypeTSIG }
func (t TSIGContent) Encode(c *Context) error {
	if err := c.WriteName(t.AlgName); err != nil {
		return err
	}
	c.WriteUint48(t.TimeSigned)
	c.WriteUint16(t.Fudge)
	if err := c.WriteSizedBytesU16(t.MAC); err != nil {
		return err
	}
	c.WriteUint16(t.OriginalID)
	c.WriteUint16(t.Error)
	return c.WriteSizedBytesU16(t.OtherData)
}
func decodeTSIG(c *Context, _ int) (Content, error) {
	alg, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	ts, err := c.ReadUint48()
	if err != nil {
		return nil, err
	}
	fudge, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	mac, err := c.ReadSizedBytesU16()
	if err != nil {
		return nil, err
	}
	origID, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	errCode, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	other, err := c.ReadSizedBytesU16()
	if err != nil {
		return nil, err
	}
	return TSIGContent{
		AlgName: alg, TimeSigned: ts, Fudge: fudge, MAC: mac,
		OriginalID: origID, Error: errCode, OtherData: other,
	}, nil
}

// ---- EDNS OPT (RFC 6891) ----

// EdnsOption is a single (code, length, data) option inside OPT rdata.
// Multiple options are encoded back-to-back; spec §9 requires supporting
// the full list, not just the first.
type EdnsOption struct {
	Code uint16
	Data []byte
}

type OPTContent struct {
	UDPSize       uint16 // carried in the record's class field, not here
	ExtendedRCode uint8  // carried in the record's ttl field, high byte
	Version       uint8
	Flags         uint16 // includes the DO bit (0x8000)
	Options       []EdnsOption
}

func (OPTContent) Type() Type { return TypeOPT }

const EdnsDOBit uint16 = 0x8000

func (o OPTContent) Encode(c *Context) error {
	for _, opt := range o.Options {
		c.WriteUint16(opt.Code)
		if err := c.WriteSizedBytesU16(opt.Data); err != nil {
			return err
		}
	}
	return nil
}

// decodeOPT reads the full back-to-back option list up to rdlength bytes.
func decodeOPT(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	var opts []EdnsOption
	for c.Pos() < end {
		code, err := c.ReadUint16()
		if err != nil {
			return nil, err
		}
		data, err := c.ReadSizedBytesU16()
		if err != nil {
			return nil, err
		}
		opts = append(opts, EdnsOption{Code: code, Data: data})
	}
	if c.Pos() != end {
		return nil, NewFormatError("OPT rdlength mismatch")
	}
	return OPTContent{Options: opts}, nil
}

// ---- DNSSEC wire shapes (RFC 4034) — no cryptography performed ----

type DSContent struct {
	KeyTag     uint16
	Algorithm  uint8
	DigestType uint8
	Digest     []byte
}

func (DSContent) Type() Type { return TypeDS }
func (d DSContent) Encode(c *Context) error {
	c.WriteUint16(d.KeyTag)
	c.WriteUint8(d.Algorithm)
	c.WriteUint8(d.DigestType)
	c.WriteBytes(d.Digest)
	return nil
}
func decodeDS(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	keyTag, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	alg, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	digType, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	digest, err := c.ReadBytes(end - c.Pos())
	if err != nil {
		return nil, err
	}
	return DSContent{KeyTag: keyTag, Algorithm: alg, DigestType: digType, Digest: digest}, nil
}

type RRSIGContent struct {
	TypeCovered Type
	Algorithm   uint8
	Labels      uint8
	OriginalTTL uint32
	Expiration  uint32
	Inception   uint32
	KeyTag      uint16
	SignerName  string
	Signature   []byte
}

func (RRSIGContent) Type() Type { return TypeRRSIG }
func (r RRSIGContent) Encode(c *Context) error {
	c.WriteUint16(uint16(r.TypeCovered))
	c.WriteUint8(r.Algorithm)
	c.WriteUint8(r.Labels)
	c.WriteUint32(r.OriginalTTL)
	c.WriteUint32(r.Expiration)
	c.WriteUint32(r.Inception)
	c.WriteUint16(r.KeyTag)
	// RRSIG's signer name is not compressible per RFC 4034 §3.1, so it is
	// written as literal labels without consulting the compression table.
	for _, label := range splitLabels(r.SignerName) {
		if len(label) > maxLabelLen {
			return NewFormatError("label exceeds 63 octets")
		}
		c.WriteUint8(uint8(len(label)))
		c.WriteBytes([]byte(label))
	}
	c.WriteUint8(0)
	c.WriteBytes(r.Signature)
	return nil
}
func decodeRRSIG(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	typeCovered, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	alg, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	labels, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	origTTL, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	expiration, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	inception, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	keyTag, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	signer, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	sig, err := c.ReadBytes(end - c.Pos())
	if err != nil {
		return nil, err
	}
	return RRSIGContent{
		TypeCovered: Type(typeCovered), Algorithm: alg, Labels: labels,
		OriginalTTL: origTTL, Expiration: expiration, Inception: inception,
		KeyTag: keyTag, SignerName: signer, Signature: sig,
	}, nil
}

// NSECContent's TypeBitmap is encoded/decoded by the C15 bitmap codec in
// nsec.go.
type NSECContent struct {
	NextDomain string
	TypeBitmap []Type
}

func (NSECContent) Type() Type { return TypeNSEC }
func (n NSECContent) Encode(c *Context) error {
	if err := c.WriteName(n.NextDomain); err != nil {
		return err
	}
	return encodeTypeBitmap(c, n.TypeBitmap)
}
func decodeNSEC(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	next, err := c.ReadName()
	if err != nil {
		return nil, err
	}
	types, err := decodeTypeBitmap(c, end-c.Pos())
	if err != nil {
		return nil, err
	}
	return NSECContent{NextDomain: next, TypeBitmap: types}, nil
}

type DNSKEYContent struct {
	Flags     uint16
	Protocol  uint8
	Algorithm uint8
	PublicKey []byte
}

func (DNSKEYContent) Type() Type { return TypeDNSKEY }
func (d DNSKEYContent) Encode(c *Context) error {
	c.WriteUint16(d.Flags)
	c.WriteUint8(d.Protocol)
	c.WriteUint8(d.Algorithm)
	c.WriteBytes(d.PublicKey)
	return nil
}
func decodeDNSKEY(c *Context, rdlength int) (Content, error) {
	end := c.Pos() + rdlength
	flags, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	proto, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	alg, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	key, err := c.ReadBytes(end - c.Pos())
	if err != nil {
		return nil, err
	}
	return DNSKEYContent{Flags: flags, Protocol: proto, Algorithm: alg, PublicKey: key}, nil
}

// ---- NULL / ANY: sentinels for dynamic update, no payload ----

type NULLContent struct{}

func (NULLContent) Type() Type          { return TypeNULL }
func (NULLContent) Encode(*Context) error { return nil }
func decodeNULL(c *Context, rdlength int) (Content, error) {
	if rdlength > 0 {
		if _, err := c.ReadBytes(rdlength); err != nil {
			return nil, err
		}
	}
	return NULLContent{}, nil
}

type ANYContent struct{}

func (ANYContent) Type() Type          { return TypeANY }
func (ANYContent) Encode(*Context) error { return nil }
func decodeANYContent(c *Context, rdlength int) (Content, error) {
	if rdlength > 0 {
		if _, err := c.ReadBytes(rdlength); err != nil {
			return nil, err
		}
	}
	return ANYContent{}, nil
}

// ---- Unknown: opaque fallback preserving exact bytes ----

type UnknownContent struct {
	RRType Type
	Raw    []byte
}

func (u UnknownContent) Type() Type { return u.RRType }
func (u UnknownContent) Encode(c *Context) error {
	c.WriteBytes(u.Raw)
	return nil
}
func decodeUnknown(rrtype Type) func(*Context, int) (Content, error) {
	return func(c *Context, rdlength int) (Content, error) {
		raw, err := c.ReadBytes(rdlength)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return UnknownContent{RRType: rrtype, Raw: cp}, nil
	}
}

// decodeTable maps a wire type to its rdata decoder. Types absent from the
// table decode into UnknownContent, preserving exact bytes for round-trip.
var decodeTable = map[Type]func(*Context, int) (Content, error){
	TypeA:      decodeA,
	TypeNS:     decodeNS,
	TypeCNAME:  decodeCNAME,
	TypeSOA:    decodeSOA,
	TypeNULL:   decodeNULL,
	TypePTR:    decodePTR,
	TypeMX:     decodeMX,
	TypeTXT:    decodeTXT,
	TypeAAAA:   decodeAAAA,
	TypeSRV:    decodeSRV,
	TypeDS:     decodeDS,
	TypeRRSIG:  decodeRRSIG,
	TypeNSEC:   decodeNSEC,
	TypeDNSKEY: decodeDNSKEY,
	TypeTSIG:   decodeTSIG,
	TypeANY:    decodeANYContent,
	// TypeOPT is intentionally absent: OPT framing in the additional section
	// is dispatched specially by the message codec (C6), never through this
	// generic table.
}

// DecodeContent reads rdlength bytes of rdata starting at the cursor,
// dispatching on rrtype via decodeTable, falling back to UnknownContent for
// unrecognized types.
func DecodeContent(c *Context, rrtype Type, rdlength int) (Content, error) {
	decode, ok := decodeTable[rrtype]
	if !ok {
		decode = decodeUnknown(rrtype)
	}
	return decode(c, rdlength)
}
