// Package backend implements the query-resolution pipeline: a shared
// contract (C8) and four composable layers — authoritative memory zone
// (C9), UDP forwarder (C10), TTL cache (C11), and domain blacklist (C12).
// Backends wrap an inner backend and delegate on miss, matching spec §4.7's
// chain-of-responsibility shape.
package backend

import (
	"context"

	"github.com/poyrazK/godns/internal/dns/codec"
)

// Answers is the result of a get_answers call: the matched records plus a
// tag identifying which layer produced them (used for tracing and for the
// blacklist's distinguishing "Blacklist" source).
type Answers struct {
	Records []codec.Record
	Source  string
}

// Empty returns an Answers with no records tagged with the given source.
func Empty(source string) Answers { return Answers{Source: source} }

// Backend is the single shared query contract (C8). Implementations MAY
// wrap an inner Backend and delegate on miss or non-match.
type Backend interface {
	// GetAnswers resolves domain/qtype to a set of records.
	GetAnswers(ctx context.Context, domain string, qtype codec.Type) (Answers, error)

	// IsAuthority reports whether this backend (or one it wraps) has
	// authority over domain.
	IsAuthority(domain string) bool

	// RecursionAvailable is copied into the response flags by the session
	// glue layer.
	RecursionAvailable() bool
}
