package codec

import (
	"errors"
	"fmt"
)

// RCode is a DNS response code, including the extended (EDNS) range.
type RCode uint16

// Base and extended response codes (RFC 1035 §4.1.1, RFC 6891 §6.1.3).
const (
	NoError        RCode = 0
	FormatError    RCode = 1
	ServerFailure  RCode = 2
	NoSuchDomain   RCode = 3
	NotImplemented RCode = 4
	Refused        RCode = 5
	YXDomain       RCode = 6
	YXRRSet        RCode = 7
	NXRRSet        RCode = 8
	NotAuthorized  RCode = 9
	NotInZone      RCode = 10

	BadOPTVersion RCode = 16
	BadSig        RCode = 16 // alias: TSIG BADSIG shares the wire value with BADVERS
	BadKey        RCode = 17
	BadTime       RCode = 18
	BadMode       RCode = 19
	BadName       RCode = 20
	BadAlgorithm  RCode = 21
)

// Error is a structured DNS failure that carries the RCODE it should
// surface as, per the C14 taxonomy in spec §7.
type Error struct {
	RCode RCode
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("dns: %s (rcode=%d)", e.Msg, e.RCode)
}

func newError(code RCode, msg string) *Error {
	return &Error{RCode: code, Msg: msg}
}

// NewFormatError builds a FormatError (RCode 1): malformed header, bad label
// length, out-of-range compression pointer.
func NewFormatError(msg string) *Error { return newError(FormatError, msg) }

// NewServerFailure builds a ServerFailure (RCode 2): forwarder exhaustion or
// internal invariant violation.
func NewServerFailure(msg string) *Error { return newError(ServerFailure, msg) }

// NewNotImplemented builds a NotImplemented (RCode 4): unsupported opcode.
func NewNotImplemented(msg string) *Error { return newError(NotImplemented, msg) }

// AsError reports whether err is (or wraps) a *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
