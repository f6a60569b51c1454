package backend

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/poyrazK/godns/internal/dns/codec"
	"github.com/poyrazK/godns/internal/dns/metrics"
)

// Forwarder wraps an inner backend (typically Memory) and, on miss, issues
// an outbound UDP query to an ordered list of upstream resolvers (C10).
// Grounded on the teacher's recursive.go for the dial/write/read-with-
// deadline/id-mismatch mechanics, but reshaped from iterative root-walking
// into a flat ordered-fallback forwarder per spec §4.9 — the same shape as
// other_examples' haukened-rr-dns upstream resolver.
type Forwarder struct {
	inner     Backend
	upstreams []string
	timeout   time.Duration
	pool      *connPool
	logger    *slog.Logger
}

// NewForwarder builds a Forwarder over inner, trying each upstream address
// in order. poolSize <= 0 means unbounded mode: a socket is dialed and
// closed per query.
func NewForwarder(inner Backend, upstreams []string, timeout time.Duration, poolSize int, poolMaxAge time.Duration, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Forwarder{inner: inner, upstreams: upstreams, timeout: timeout, logger: logger}
	if poolSize > 0 {
		f.pool = newConnPool(poolSize, poolMaxAge)
	}
	return f
}

func (f *Forwarder) IsAuthority(domain string) bool { return f.inner.IsAuthority(domain) }

// RecursionAvailable is true once a Forwarder is in the chain.
func (f *Forwarder) RecursionAvailable() bool { return true }

// GetAnswers first consults the inner backend; on a non-empty result it
// returns immediately. On miss it tries each upstream in order, discarding
// timeouts, parse failures, and transaction-id mismatches by moving to the
// next upstream; if all fail it surfaces ServerFailure.
func (f *Forwarder) GetAnswers(ctx context.Context, domain string, qtype codec.Type) (Answers, error) {
	inner, err := f.inner.GetAnswers(ctx, domain, qtype)
	if err != nil {
		return Answers{}, err
	}
	if len(inner.Records) > 0 {
		return inner, nil
	}

	var lastErr error
	for _, addr := range f.upstreams {
		records, err := f.query(ctx, addr, domain, qtype)
		if err != nil {
			f.logger.Debug("forwarder upstream failed", "upstream", addr, "domain", domain, "error", err)
			metrics.ForwarderUpstreamFailures.WithLabelValues(addr).Inc()
			lastErr = err
			continue
		}
		return Answers{Records: records, Source: "Forwarder"}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no upstreams configured")
	}
	return Answers{}, codec.NewServerFailure(fmt.Sprintf("all upstreams failed: %v", lastErr))
}

func randomID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (f *Forwarder) query(ctx context.Context, addr, domain string, qtype codec.Type) ([]codec.Record, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}
	req := &codec.Message{
		ID: id,
		Flags: codec.Flags{
			Opcode:           codec.OpQuery,
			RecursionDesired: true,
		},
		Questions: []codec.Question{{Name: domain, QType: qtype, Class: codec.ClassIN}},
	}
	reqBytes, err := codec.Encode(req)
	if err != nil {
		return nil, err
	}

	conn, release, err := f.checkout(addr)
	if err != nil {
		return nil, err
	}
	defer release()

	deadline := time.Now().Add(f.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.Write(reqBytes); err != nil {
		return nil, err
	}

	respBuf := make([]byte, 65535)
	n, err := conn.Read(respBuf)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", addr, err)
	}

	resp, err := codec.Decode(respBuf[:n], codec.DefaultDecodeOptions())
	if err != nil {
		return nil, fmt.Errorf("upstream %s: malformed response: %w", addr, err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("upstream %s: transaction id mismatch", addr)
	}
	return resp.Answers, nil
}

// checkout returns a live *net.UDPConn for addr, along with a release
// function to return it (or close it) afterward. In unbounded mode it
// dials fresh and closes on release; pooled mode delegates to connPool.
func (f *Forwarder) checkout(addr string) (*net.UDPConn, func(), error) {
	if f.pool == nil {
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, nil, err
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { _ = conn.Close() }, nil
	}
	return f.pool.checkout(addr)
}
