package backend

import (
	"context"
	"strings"

	"github.com/poyrazK/godns/internal/dns/codec"
)

// Memory is the authoritative static zone backend (C9). It is populated at
// construction and immutable during serving. Matching is exact: no
// wildcards, no CNAME chasing (that belongs to a higher layer, or to
// original_source's service-level Resolve — deliberately NOT carried into
// this backend, see DESIGN.md). A miss returns empty answers; the caller,
// not this backend, decides whether empty means NXDOMAIN or "try next
// layer".
type Memory struct {
	// zone maps a canonicalized domain name to its records, grouped by
	// type in insertion order.
	zone map[string]map[codec.Type][]codec.Record
	// authoritative tracks every domain name this zone has any record for,
	// used by IsAuthority (for that name and every name below it)
	// independent of a specific query type.
	authoritative map[string]bool
}

// NewMemory builds an immutable zone from the given records. Records sharing
// the same (name, type) accumulate into an ordered list (e.g. multiple A
// records for round-robin).
func NewMemory(records []codec.Record) *Memory {
	m := &Memory{
		zone:          make(map[string]map[codec.Type][]codec.Record),
		authoritative: make(map[string]bool),
	}
	for _, r := range records {
		key := canonicalize(r.Name)
		if m.zone[key] == nil {
			m.zone[key] = make(map[codec.Type][]codec.Record)
		}
		m.zone[key][r.Content.Type()] = append(m.zone[key][r.Content.Type()], r)
		m.authoritative[key] = true
	}
	return m
}

func canonicalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// GetAnswers returns the exact (domain, qtype) match, or empty answers on
// miss.
func (m *Memory) GetAnswers(_ context.Context, domain string, qtype codec.Type) (Answers, error) {
	byType, ok := m.zone[canonicalize(domain)]
	if !ok {
		return Empty("Memory"), nil
	}
	if qtype == codec.TypeANY {
		var all []codec.Record
		for _, recs := range byType {
			all = append(all, recs...)
		}
		return Answers{Records: all, Source: "Memory"}, nil
	}
	recs, ok := byType[qtype]
	if !ok {
		return Empty("Memory"), nil
	}
	return Answers{Records: recs, Source: "Memory"}, nil
}

// IsAuthority reports whether the zone has any record for domain or for
// one of its parent names, so a miss below a zone name counts as an
// authoritative miss.
func (m *Memory) IsAuthority(domain string) bool {
	name := canonicalize(domain)
	for {
		if m.authoritative[name] {
			return true
		}
		_, rest, ok := strings.Cut(name, ".")
		if !ok {
			return false
		}
		name = rest
	}
}

// RecursionAvailable is always false for a pure authoritative store; a
// wrapping Forwarder is what turns recursion on for the chain.
func (m *Memory) RecursionAvailable() bool { return false }
