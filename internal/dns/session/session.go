// Package session implements the glue between raw UDP datagrams and the
// backend chain (C13): parse request, invoke the backend for each
// question, assemble and encode the response. The UDP accept loop
// ("bytes arrive; bytes go back") that feeds Handle is Listen in
// listener.go; it is ambient scaffolding, separate from this glue.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poyrazK/godns/internal/dns/backend"
	"github.com/poyrazK/godns/internal/dns/codec"
	"github.com/poyrazK/godns/internal/dns/metrics"
)

// Session holds everything the glue layer needs per datagram: the backend
// chain, the server's advertised EDNS UDP payload size, and ambient
// collaborators (rate limiting, logging, metrics).
type Session struct {
	Backend        backend.Backend
	UDPPayloadSize uint16
	Logger         *slog.Logger
	RateLimiter    *rateLimiter

	// SupportedOpcodes restricts which opcodes this session will answer;
	// anything else yields NotImplemented (C14). Defaults to Query and
	// Update if left nil.
	SupportedOpcodes map[codec.Opcode]bool
}

// New builds a Session over the given backend chain.
func New(b backend.Backend, udpPayloadSize uint16, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Backend:        b,
		UDPPayloadSize: udpPayloadSize,
		Logger:         logger,
		SupportedOpcodes: map[codec.Opcode]bool{
			codec.OpQuery:  true,
			codec.OpUpdate: true,
		},
	}
}

// WithRateLimit enables per-client-IP admission control; requests over
// budget are answered Refused without consulting the backend chain.
func (s *Session) WithRateLimit(ratePerSecond float64, burst int) *Session {
	s.RateLimiter = newRateLimiter(ratePerSecond, burst)
	return s
}

// Handle processes one inbound datagram from clientIP and returns the
// response bytes to send back, or nil if the datagram should be silently
// dropped (spec §7: unparsable input gets no reply).
func (s *Session) Handle(ctx context.Context, data []byte, clientIP string) []byte {
	traceID := uuid.NewString()
	start := time.Now()

	req, err := codec.Decode(data, codec.DefaultDecodeOptions())
	if err != nil {
		s.Logger.Debug("dropping unparsable datagram", "client", clientIP, "trace", traceID, "error", err)
		return nil
	}

	if s.RateLimiter != nil && !s.RateLimiter.Allow(clientIP) {
		resp := s.errorResponse(req, codec.Refused)
		return s.mustEncode(resp, traceID)
	}

	resp := s.handleMessage(ctx, req, traceID)
	out := s.mustEncode(resp, traceID)

	metrics.QueriesTotal.WithLabelValues(primaryQType(req), rcodeLabel(resp.Flags.RCode)).Inc()
	metrics.QueryDuration.WithLabelValues("session").Observe(time.Since(start).Seconds())
	return out
}

func primaryQType(req *codec.Message) string {
	if len(req.Questions) == 0 {
		return "NONE"
	}
	return req.Questions[0].QType.String()
}

func rcodeLabel(r codec.RCode) string {
	switch r {
	case codec.NoError:
		return "NOERROR"
	case codec.FormatError:
		return "FORMERR"
	case codec.ServerFailure:
		return "SERVFAIL"
	case codec.NoSuchDomain:
		return "NXDOMAIN"
	case codec.NotImplemented:
		return "NOTIMP"
	case codec.Refused:
		return "REFUSED"
	default:
		return "OTHER"
	}
}

func (s *Session) handleMessage(ctx context.Context, req *codec.Message, traceID string) *codec.Message {
	supported := s.SupportedOpcodes
	if supported == nil {
		supported = map[codec.Opcode]bool{codec.OpQuery: true, codec.OpUpdate: true}
	}
	if !supported[req.Flags.Opcode] {
		return s.errorResponse(req, codec.NotImplemented)
	}

	if req.Flags.Opcode == codec.OpUpdate {
		return s.handleUpdate(req)
	}
	return s.handleQuery(ctx, req, traceID)
}

func (s *Session) handleQuery(ctx context.Context, req *codec.Message, traceID string) *codec.Message {
	resp := s.baseResponse(req)

	for _, q := range req.Questions {
		answers, err := s.Backend.GetAnswers(ctx, q.Name, q.QType)
		if err != nil {
			if e, ok := codec.AsError(err); ok {
				s.Logger.Warn("backend error", "trace", traceID, "domain", q.Name, "error", e)
				resp.Flags.RCode = e.RCode
				return resp
			}
			s.Logger.Error("unexpected backend error", "trace", traceID, "error", err)
			resp.Flags.RCode = codec.ServerFailure
			return resp
		}
		resp.Answers = append(resp.Answers, answers.Records...)
	}

	if len(resp.Answers) == 0 && s.Backend.IsAuthority(firstQuestionName(req)) {
		resp.Flags.RCode = codec.NoSuchDomain
	}
	return resp
}

func firstQuestionName(req *codec.Message) string {
	if len(req.Questions) == 0 {
		return ""
	}
	return req.Questions[0].Name
}

// baseResponse builds a response reusing the request id, setting
// QR=Response and RA=backend.recursion_available, and echoing the client's
// OPT record with the server's current UDP payload size (spec §4.12).
func (s *Session) baseResponse(req *codec.Message) *codec.Message {
	resp := &codec.Message{
		ID: req.ID,
		Flags: codec.Flags{
			Response:           true,
			Opcode:             req.Flags.Opcode,
			RecursionDesired:   req.Flags.RecursionDesired,
			RecursionAvailable: s.Backend.RecursionAvailable(),
			RCode:              codec.NoError,
		},
		Questions: req.Questions,
	}
	if req.EDNS != nil {
		resp.EDNS = &codec.OPTContent{
			UDPSize: s.UDPPayloadSize,
			Version: 0,
			Flags:   req.EDNS.Flags,
		}
		resp.EDNSName = req.EDNSName
	}
	return resp
}

// handleUpdate validates an RFC 2136 UPDATE message's zone authority and
// prerequisites against the backend chain and maps the result to the
// appropriate RCode (spec §7: NotAuthorized, NotInZone, YXRRSet, NXRRSet).
// No backend in this chain is writable (Memory is immutable once
// constructed, see DESIGN.md), so a passing validation is acknowledged but
// never persisted — there is no zone-mutation side effect to apply.
func (s *Session) handleUpdate(req *codec.Message) *codec.Message {
	resp := s.baseResponse(req)

	zone := req.Zone()
	if len(zone) != 1 {
		resp.Flags.RCode = codec.FormatError
		return resp
	}
	zoneName := zone[0].Name

	if !s.Backend.IsAuthority(zoneName) {
		resp.Flags.RCode = codec.NotAuthorized
		return resp
	}

	ctx := context.Background()
	for _, rr := range req.Prerequisite() {
		rcode, ok := s.checkPrerequisite(ctx, rr)
		if !ok {
			resp.Flags.RCode = rcode
			return resp
		}
	}

	for _, rr := range req.UpdateRecords() {
		if !isSubdomainOf(rr.Name, zoneName) {
			resp.Flags.RCode = codec.NotInZone
			return resp
		}
	}

	return resp
}

// checkPrerequisite evaluates one RFC 2136 §2.4 prerequisite RR: class ANY
// with ttl/rdlength 0 means "this RRset must exist"; class NONE means "this
// RRset must not exist". Prerequisites naming exact rdata are not evaluated
// (no writable store to have diverged from in the first place) and are
// treated as satisfied.
func (s *Session) checkPrerequisite(ctx context.Context, rr codec.Record) (codec.RCode, bool) {
	switch rr.Class {
	case codec.ClassANY:
		answers, err := s.Backend.GetAnswers(ctx, rr.Name, rr.Content.Type())
		if err != nil || len(answers.Records) == 0 {
			return codec.NXRRSet, false
		}
	case codec.ClassNONE:
		answers, err := s.Backend.GetAnswers(ctx, rr.Name, rr.Content.Type())
		if err == nil && len(answers.Records) > 0 {
			return codec.YXRRSet, false
		}
	}
	return codec.NoError, true
}

func isSubdomainOf(name, zone string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	zone = strings.ToLower(strings.TrimSuffix(zone, "."))
	return name == zone || strings.HasSuffix(name, "."+zone)
}

func (s *Session) errorResponse(req *codec.Message, rcode codec.RCode) *codec.Message {
	resp := s.baseResponse(req)
	resp.Flags.RCode = rcode
	if resp.EDNS != nil {
		extended, base := codec.SplitExtendedRCode(rcode)
		resp.EDNS.ExtendedRCode = extended
		resp.Flags.RCode = base
	}
	return resp
}

func (s *Session) mustEncode(resp *codec.Message, traceID string) []byte {
	out, err := codec.Encode(resp)
	if err != nil {
		s.Logger.Error("failed to encode response; truncation is fatal to the current message", "trace", traceID, "error", err)
		return nil
	}
	return out
}
