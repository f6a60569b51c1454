package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poyrazK/godns/internal/dns/backend"
	"github.com/poyrazK/godns/internal/dns/codec"
	"github.com/poyrazK/godns/internal/dns/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	zone, err := loadZone(os.Getenv("DNS_ZONE_JSON"))
	if err != nil {
		return fmt.Errorf("loading zone: %w", err)
	}
	var chain backend.Backend = backend.NewMemory(zone)

	if upstreams := splitList(os.Getenv("UPSTREAM_ADDRS")); len(upstreams) > 0 {
		timeout := getEnvDuration("UPSTREAM_TIMEOUT", 2*time.Second)
		poolSize := int(getEnvUint32("UPSTREAM_POOL_SIZE", 0))
		poolMaxAge := getEnvDuration("UPSTREAM_POOL_MAX_AGE", 5*time.Minute)
		chain = backend.NewForwarder(chain, upstreams, timeout, poolSize, poolMaxAge, logger)
	}

	var redisTier backend.RedisTier
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rc := backend.NewRedisCache(redisAddr, os.Getenv("REDIS_PASSWORD"), 0)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", redisAddr, err)
		}
		redisTier = rc
		logger.Info("connected to redis cache tier", "addr", redisAddr)
	}

	cacheCapacity := int(getEnvUint32("CACHE_CAPACITY", 10000))
	cacheMinTTL := getEnvDuration("CACHE_MIN_TTL", 5*time.Second)
	cacheMaxTTL := getEnvDuration("CACHE_MAX_TTL", 1*time.Hour)
	cache, err := backend.NewCache(chain, cacheCapacity, cacheMinTTL, cacheMaxTTL, redisTier, logger)
	if err != nil {
		return fmt.Errorf("building cache: %w", err)
	}
	chain = cache

	if dbPath := os.Getenv("BLACKLIST_DB_PATH"); dbPath != "" || os.Getenv("BLACKLIST_FILES") != "" {
		var db *backend.BlockDB
		if dbPath != "" {
			db, err = backend.OpenBlockDB(dbPath)
			if err != nil {
				return fmt.Errorf("opening blacklist store: %w", err)
			}
			defer func() { _ = db.Close() }()

			for _, entry := range splitList(os.Getenv("BLACKLIST_FILES")) {
				name, fpath, found := strings.Cut(entry, "=")
				if !found {
					fpath = name
				}
				if err := db.IngestFile(fpath, name); err != nil {
					logger.Warn("failed to ingest blacklist source", "source", entry, "error", err)
				}
			}
		}
		blacklist := splitList(os.Getenv("BLACKLIST_DOMAINS"))
		whitelist := splitList(os.Getenv("WHITELIST_DOMAINS"))
		chain = backend.NewBlacklist(chain, blacklist, whitelist, db)
	}

	udpPayloadSize := uint16(getEnvUint32("EDNS_UDP_SIZE", 4096))
	sess := session.New(chain, udpPayloadSize, logger)

	if rate := os.Getenv("RATE_LIMIT_PER_SECOND"); rate != "" {
		r, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_PER_SECOND: %w", err)
		}
		burst := int(getEnvUint32("RATE_LIMIT_BURST", 50))
		sess.WithRateLimit(r, burst)
	}

	dnsAddr := os.Getenv("DNS_ADDR")
	if dnsAddr == "" {
		dnsAddr = "127.0.0.1:10053"
	}
	workerCount := int(getEnvUint32("WORKER_COUNT", 0))

	go func() {
		if err := session.Listen(ctx, dnsAddr, sess, workerCount, logger); err != nil {
			logger.Error("dns session stopped", "error", err)
		}
	}()

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9153"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("godns starting", "dns_addr", dnsAddr, "metrics_addr", metricsAddr)

	if dnsAddr == "test-exit" {
		return nil
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	return nil
}

// zoneRecord is the JSON shape accepted by DNS_ZONE_JSON: a flat list of
// records. Deliberately not a zone-file-text format (out of scope) — just a
// minimal ambient way to seed the immutable Memory backend.
type zoneRecord struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	TTL   uint32 `json:"ttl"`
	Value string `json:"value"`
}

func loadZone(path string) ([]codec.Record, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []zoneRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	records := make([]codec.Record, 0, len(raw))
	for _, rr := range raw {
		content, err := contentFor(rr.Type, rr.Value)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rr.Name, err)
		}
		records = append(records, codec.Record{Name: rr.Name, Class: codec.ClassIN, TTL: rr.TTL, Content: content})
	}
	return records, nil
}

func contentFor(qtype, value string) (codec.Content, error) {
	switch strings.ToUpper(qtype) {
	case "A":
		ip := net.ParseIP(value).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q", value)
		}
		return codec.AContent{IP: ip}, nil
	case "AAAA":
		ip := net.ParseIP(value).To16()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv6 address %q", value)
		}
		return codec.AAAAContent{IP: ip}, nil
	case "CNAME":
		return codec.CNAMEContent{Name: value}, nil
	case "NS":
		return codec.NSContent{Name: value}, nil
	case "TXT":
		return codec.TXTContent{Text: []byte(value)}, nil
	case "PTR":
		return codec.PTRContent{Name: value}, nil
	default:
		return nil, fmt.Errorf("unsupported zone-seed type %q", qtype)
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvUint32(key string, def uint32) uint32 {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	u, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return def
	}
	return uint32(u)
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
