package session

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/poyrazK/godns/internal/dns/backend"
	"github.com/poyrazK/godns/internal/dns/codec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func encodeQuery(t *testing.T, name string, qtype codec.Type) []byte {
	t.Helper()
	msg := &codec.Message{
		ID:        42,
		Flags:     codec.Flags{Opcode: codec.OpQuery, RecursionDesired: true},
		Questions: []codec.Question{{Name: name, QType: qtype, Class: codec.ClassIN}},
	}
	out, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return out
}

func decodeResponse(t *testing.T, data []byte) *codec.Message {
	t.Helper()
	if data == nil {
		t.Fatal("expected a non-nil response")
	}
	msg, err := codec.Decode(data, codec.DefaultDecodeOptions())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return msg
}

func TestHandleQueryReturnsAnswer(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	resp := decodeResponse(t, s.Handle(context.Background(), encodeQuery(t, "example.com", codec.TypeA), "10.0.0.1"))
	if resp.Flags.RCode != codec.NoError {
		t.Fatalf("expected NoError, got %v", resp.Flags.RCode)
	}
	if !resp.Flags.Response {
		t.Fatal("expected QR bit set on response")
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(resp.Answers))
	}
}

func TestHandleQueryAuthoritativeMissReturnsNXDOMAIN(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	resp := decodeResponse(t, s.Handle(context.Background(), encodeQuery(t, "nowhere.example.com", codec.TypeA), "10.0.0.1"))
	if resp.Flags.RCode != codec.NoSuchDomain {
		t.Fatalf("expected NXDOMAIN for an authoritative miss, got %v", resp.Flags.RCode)
	}
}

func TestHandleDropsUnparsableDatagram(t *testing.T) {
	mem := backend.NewMemory(nil)
	s := New(mem, 4096, testLogger())

	out := s.Handle(context.Background(), []byte{0x01, 0x02}, "10.0.0.1")
	if out != nil {
		t.Fatal("expected a truncated/unparsable datagram to be dropped with no reply")
	}
}

func TestHandleUnsupportedOpcodeReturnsNotImplemented(t *testing.T) {
	mem := backend.NewMemory(nil)
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{ID: 1, Flags: codec.Flags{Opcode: codec.OpStatus}}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.NotImplemented {
		t.Fatalf("expected NotImplemented, got %v", resp.Flags.RCode)
	}
}

func TestHandleRateLimitedClientGetsRefused(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger()).WithRateLimit(1, 1)

	first := decodeResponse(t, s.Handle(context.Background(), encodeQuery(t, "example.com", codec.TypeA), "10.0.0.2"))
	if first.Flags.RCode != codec.NoError {
		t.Fatalf("expected the first request within budget to succeed, got %v", first.Flags.RCode)
	}

	second := decodeResponse(t, s.Handle(context.Background(), encodeQuery(t, "example.com", codec.TypeA), "10.0.0.2"))
	if second.Flags.RCode != codec.Refused {
		t.Fatalf("expected an over-budget client to be Refused, got %v", second.Flags.RCode)
	}
}

func TestHandleEchoesEDNSOPT(t *testing.T) {
	mem := backend.NewMemory(nil)
	s := New(mem, 1280, testLogger())

	msg := &codec.Message{
		ID:        7,
		Flags:     codec.Flags{Opcode: codec.OpQuery},
		Questions: []codec.Question{{Name: "example.com", QType: codec.TypeA, Class: codec.ClassIN}},
		EDNS:      &codec.OPTContent{UDPSize: 4096, Flags: codec.EdnsDOBit},
		EDNSName:  ".",
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.EDNS == nil {
		t.Fatal("expected the response to carry an echoed OPT record")
	}
	if resp.EDNS.UDPSize != 1280 {
		t.Fatalf("expected the server's own advertised UDP size, got %d", resp.EDNS.UDPSize)
	}
	if resp.EDNS.Flags&codec.EdnsDOBit == 0 {
		t.Fatal("expected the DO bit to be echoed back")
	}
}

func TestHandleUpdateNotAuthorityIsRejected(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{
		ID:        1,
		Flags:     codec.Flags{Opcode: codec.OpUpdate},
		Questions: []codec.Question{{Name: "other.com", QType: codec.TypeSOA, Class: codec.ClassIN}},
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.NotAuthorized {
		t.Fatalf("expected NotAuthorized for a zone this server has no authority over, got %v", resp.Flags.RCode)
	}
}

func TestHandleUpdateOutOfZoneRecordIsRejected(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{
		ID:        1,
		Flags:     codec.Flags{Opcode: codec.OpUpdate},
		Questions: []codec.Question{{Name: "example.com", QType: codec.TypeSOA, Class: codec.ClassIN}},
		Authority: []codec.Record{
			{Name: "new.other.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("9.9.9.9").To4()}},
		},
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.NotInZone {
		t.Fatalf("expected NotInZone for a record outside the authorized zone, got %v", resp.Flags.RCode)
	}
}

func TestHandleUpdatePrerequisiteExistsFailsWhenMissing(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{
		ID:        1,
		Flags:     codec.Flags{Opcode: codec.OpUpdate},
		Questions: []codec.Question{{Name: "example.com", QType: codec.TypeSOA, Class: codec.ClassIN}},
		Answers: []codec.Record{
			{Name: "missing.example.com", Class: codec.ClassANY, TTL: 0, Content: codec.AContent{IP: net.ParseIP("0.0.0.0").To4()}},
		},
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.NXRRSet {
		t.Fatalf("expected NXRRSet when an ANY-class prerequisite RRset does not exist, got %v", resp.Flags.RCode)
	}
}

func TestHandleUpdatePrerequisiteAbsentFailsWhenPresent(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{
		ID:        1,
		Flags:     codec.Flags{Opcode: codec.OpUpdate},
		Questions: []codec.Question{{Name: "example.com", QType: codec.TypeSOA, Class: codec.ClassIN}},
		Answers: []codec.Record{
			{Name: "example.com", Class: codec.ClassNONE, TTL: 0, Content: codec.AContent{IP: net.ParseIP("0.0.0.0").To4()}},
		},
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.YXRRSet {
		t.Fatalf("expected YXRRSet when a NONE-class prerequisite RRset does exist, got %v", resp.Flags.RCode)
	}
}

func TestHandleUpdateValidRequestIsAcknowledged(t *testing.T) {
	mem := backend.NewMemory([]codec.Record{
		{Name: "example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("1.2.3.4").To4()}},
	})
	s := New(mem, 4096, testLogger())

	msg := &codec.Message{
		ID:        1,
		Flags:     codec.Flags{Opcode: codec.OpUpdate},
		Questions: []codec.Question{{Name: "example.com", QType: codec.TypeSOA, Class: codec.ClassIN}},
		Authority: []codec.Record{
			{Name: "new.example.com", Class: codec.ClassIN, TTL: 60, Content: codec.AContent{IP: net.ParseIP("9.9.9.9").To4()}},
		},
	}
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	resp := decodeResponse(t, s.Handle(context.Background(), data, "10.0.0.1"))
	if resp.Flags.RCode != codec.NoError {
		t.Fatalf("expected a well-formed in-zone update to validate cleanly, got %v", resp.Flags.RCode)
	}
}

func TestRateLimiterAllowsWithinBurstThenBlocks(t *testing.T) {
	rl := newRateLimiter(1, 2)
	if !rl.Allow("1.1.1.1") {
		t.Fatal("expected first request within burst to be allowed")
	}
	if !rl.Allow("1.1.1.1") {
		t.Fatal("expected second request within burst to be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("expected a third request beyond burst to be denied")
	}
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	rl := newRateLimiter(1, 1)
	if !rl.Allow("1.1.1.1") {
		t.Fatal("expected first client's request to be allowed")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("expected a different client's budget to be independent")
	}
}

func TestRateLimiterCleanupRemovesStaleBuckets(t *testing.T) {
	rl := newRateLimiter(1, 1)
	rl.Allow("1.1.1.1")
	rl.buckets["1.1.1.1"].last = rl.buckets["1.1.1.1"].last.Add(-11 * 60e9)
	rl.Cleanup()
	if _, exists := rl.buckets["1.1.1.1"]; exists {
		t.Fatal("expected a stale bucket to be removed by Cleanup")
	}
}
