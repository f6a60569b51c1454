package backend

import (
	"bufio"
	"context"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/net/idna"

	"github.com/poyrazK/godns/internal/dns/codec"
	"github.com/poyrazK/godns/internal/dns/metrics"
)

// domainExpr matches RFC 1035 label syntax extended with underscores, the
// same shape as original_source/pydns/server/backend/blacklist.py's
// re_expr, used both to validate single domains and to locate the one
// domain-shaped token on an ingestion line.
var domainExpr = regexp.MustCompile(
	`(?i)(?:[a-zA-Z0-9_](?:[a-zA-Z0-9-_]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z0-9][a-zA-Z0-9-_]{0,61}[a-zA-Z]\.?`)

var domainExactExpr = regexp.MustCompile(`^` + domainExpr.String() + `$`)

// Blacklist wraps an inner backend and short-circuits blocked domains with
// empty Answers tagged "Blacklist" (C12). Match algorithm and ingestion
// rules follow spec §4.11, grounded on
// original_source/pydns/server/backend/blacklist.py's Blacklist/DbmBlockDB
// and other_examples' rhole.go ingestion.
type Blacklist struct {
	inner Backend

	mu        sync.RWMutex
	blacklist map[string]bool
	whitelist map[string]bool

	db *BlockDB
}

// NewBlacklist builds a Blacklist over inner from explicit blacklist and
// whitelist domain sets. Per spec's invariant, the whitelist dominates: it
// is subtracted from the blacklist at construction time.
func NewBlacklist(inner Backend, blacklist, whitelist []string, db *BlockDB) *Blacklist {
	b := &Blacklist{
		inner:     inner,
		blacklist: make(map[string]bool, len(blacklist)),
		whitelist: make(map[string]bool, len(whitelist)),
		db:        db,
	}
	for _, w := range whitelist {
		b.whitelist[normalizeDomain(w)] = true
	}
	for _, d := range blacklist {
		n := normalizeDomain(d)
		if b.whitelist[n] {
			continue
		}
		b.blacklist[n] = true
	}
	return b
}

func (b *Blacklist) IsAuthority(domain string) bool { return b.inner.IsAuthority(domain) }
func (b *Blacklist) RecursionAvailable() bool       { return b.inner.RecursionAvailable() }

func (b *Blacklist) GetAnswers(ctx context.Context, domain string, qtype codec.Type) (Answers, error) {
	blocked, source := b.isBlocked(ctx, domain)
	if blocked {
		metrics.BlacklistDecisions.WithLabelValues("blocked", source).Inc()
		return Empty("Blacklist"), nil
	}
	metrics.BlacklistDecisions.WithLabelValues("allowed", source).Inc()
	return b.inner.GetAnswers(ctx, domain, qtype)
}

// splitSuffixes computes the ordered list of proper suffixes of domain that
// still contain a label boundary: "a.b.c" -> ["a.b.c", "b.c"] (spec §4.11
// step 1).
func splitSuffixes(domain string) []string {
	domain = normalizeDomain(domain)
	var suffixes []string
	for strings.Count(domain, ".") > 0 {
		suffixes = append(suffixes, domain)
		_, domain, _ = strings.Cut(domain, ".")
	}
	return suffixes
}

func (b *Blacklist) isBlocked(ctx context.Context, domain string) (blocked bool, source string) {
	suffixes := splitSuffixes(domain)
	if len(suffixes) == 0 {
		return false, "memory"
	}

	b.mu.RLock()
	for _, s := range suffixes {
		if b.whitelist[s] {
			b.mu.RUnlock()
			return false, "memory"
		}
	}
	for _, s := range suffixes {
		if b.blacklist[s] {
			b.mu.RUnlock()
			return true, "memory"
		}
	}
	b.mu.RUnlock()

	if b.db == nil {
		return false, "memory"
	}

	for _, s := range suffixes {
		verdict, ok := b.db.MatchExact(s)
		if !ok {
			continue
		}
		b.mu.Lock()
		if verdict {
			b.blacklist[domain] = true
			b.blacklist[s] = true
		} else {
			b.whitelist[domain] = true
			b.whitelist[s] = true
		}
		b.mu.Unlock()
		return verdict, "store"
	}
	return false, "store"
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		return ascii
	}
	return domain
}

// IsDomain reports whether value is syntactically a full domain name,
// mirroring blacklist.py's is_domain IDNA-normalize-then-match check.
func IsDomain(value string) bool {
	ascii, err := idna.Lookup.ToASCII(value)
	if err != nil {
		return false
	}
	return domainExactExpr.MatchString(ascii)
}

// Rule is one parsed ingestion-line outcome: a domain tagged whitelist or
// blacklist.
type Rule struct {
	Domain    string
	Whitelist bool
}

// ignoreLine reports whether an ingestion line is an adguard path/rule
// block this parser does not understand, per spec §4.11 and
// blacklist.py's ignore_line.
func ignoreLine(line string) bool {
	if strings.Contains(line, "/") || strings.Contains(line, "#") || strings.HasPrefix(line, "^") {
		return true
	}
	if strings.HasPrefix(line, "||") && !strings.HasSuffix(line, "^") {
		return true
	}
	return false
}

// findDomain extracts the single domain-shaped token from line, or "" if
// the line should be skipped (comment, hosts-file-style leading IP, or a
// line that does not contain exactly one domain-shaped token).
func findDomain(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	switch line[0] {
	case '!', '#', '-', '/':
		return ""
	}
	if ignoreLine(line) {
		return ""
	}
	matches := domainExpr.FindAllString(line, -1)
	if len(matches) != 1 {
		return ""
	}
	return matches[0]
}

// ParseRuleset parses an ingestion source into Rules, one per line
// containing a recognizable domain. A leading "@@" marks a whitelist entry
// (adblock exception syntax); everything else is a blacklist entry.
func ParseRuleset(r io.Reader) ([]Rule, error) {
	scanner := bufio.NewScanner(r)
	var rules []Rule
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		domain := findDomain(line)
		if domain == "" {
			continue
		}
		rules = append(rules, Rule{
			Domain:    domain,
			Whitelist: strings.HasPrefix(line, "@@"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// BlockDB is the persistent key-value store backing a Blacklist's dual-tier
// lookup (spec §4.11/§6), implemented over go.etcd.io/bbolt. Keys are
// domain bytes plus two reserved keys: "__sources" (comma-joined source
// names) and a per-file-path key storing the last observed mtime, matching
// blacklist.py's DbmBlockDB layout.
type BlockDB struct {
	db *bolt.DB

	// filter is a probabilistic pre-check over every domain key ever put
	// into the bucket (seeded by scanning at open, kept current on every
	// Ingest): a negative guarantees no entry, letting MatchExact skip the
	// disk read entirely; a positive falls through to the real lookup, so
	// false positives never change the result.
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

var bucketName = []byte("blacklist")

const sourcesKey = "__sources"

// OpenBlockDB opens (creating if absent) a bbolt-backed persistent store at
// path, seeding the pre-check filter from whatever domains are already
// stored.
func OpenBlockDB(path string) (*BlockDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	var keyN int
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		keyN = b.Stats().KeyN
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	blockDB := &BlockDB{db: db, filter: bloom.NewWithEstimates(uint(max(keyN, 1024)), 0.01)}
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			if isReservedKey(k) {
				return nil
			}
			blockDB.filter.Add(k)
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return blockDB, nil
}

func isReservedKey(k []byte) bool {
	return string(k) == sourcesKey || strings.HasPrefix(string(k), "mtime:")
}

func (d *BlockDB) Close() error { return d.db.Close() }

// MatchExact reports whether domain has a stored verdict: (true, true) for
// block, (false, true) for allow, (_, false) for no entry.
func (d *BlockDB) MatchExact(domain string) (blocked bool, ok bool) {
	d.mu.Lock()
	mightExist := d.filter.TestString(domain)
	d.mu.Unlock()
	if !mightExist {
		return false, false
	}

	_ = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(domain))
		if v == nil {
			return nil
		}
		ok = true
		blocked = string(v) == "b"
		return nil
	})
	return blocked, ok
}

// Ingest writes rules into the store under the given source name, then
// records the source in the sources index.
func (d *BlockDB) Ingest(source string, rules []Rule) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, rule := range rules {
			if !IsDomain(rule.Domain) {
				continue
			}
			value := "b"
			if rule.Whitelist {
				value = "w"
			}
			if err := b.Put([]byte(normalizeDomain(rule.Domain)), []byte(value)); err != nil {
				return err
			}
		}
		sources := splitSources(b.Get([]byte(sourcesKey)))
		sources[source] = true
		return b.Put([]byte(sourcesKey), []byte(joinSources(sources)))
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, rule := range rules {
		if IsDomain(rule.Domain) {
			d.filter.AddString(normalizeDomain(rule.Domain))
		}
	}
	d.mu.Unlock()
	return nil
}

// IngestFile ingests fpath's ruleset under name (defaulting to fpath
// itself), skipping re-ingestion if the file's mtime hasn't changed since
// the last ingest, matching blacklist.py's ingest_file.
func (d *BlockDB) IngestFile(fpath, name string) error {
	if name == "" {
		name = fpath
	}
	info, err := os.Stat(fpath)
	if err != nil {
		return err
	}
	mtimeKey := "mtime:" + fpath
	current := strconv.FormatInt(info.ModTime().UnixNano(), 10)

	var unchanged bool
	_ = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(mtimeKey))
		unchanged = v != nil && string(v) == current
		return nil
	})
	if unchanged {
		return nil
	}

	f, err := os.Open(fpath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rules, err := ParseRuleset(f)
	if err != nil {
		return err
	}
	if err := d.Ingest(name, rules); err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(mtimeKey), []byte(current))
	})
}

func splitSources(raw []byte) map[string]bool {
	out := make(map[string]bool)
	if len(raw) == 0 {
		return out
	}
	for _, s := range strings.Split(string(raw), ",") {
		if s != "" {
			out[s] = true
		}
	}
	return out
}

func joinSources(sources map[string]bool) string {
	names := make([]string, 0, len(sources))
	for s := range sources {
		names = append(names, s)
	}
	return strings.Join(names, ",")
}
