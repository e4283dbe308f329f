package redis

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/demandcast/internal/metrics"
)

const (
	defaultNamespace = "demandcast"
	defaultTimeout   = 2 * time.Second
)

// Config holds Redis connection configuration.
type Config struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"timeout"`
	Disabled  bool          `yaml:"disabled"`
}

// Client is a best-effort key/value cache. When the server is unreachable at
// startup the client runs disabled: every read misses and every write is a
// no-op. No method returns an error to the caller.
type Client struct {
	rdb       *redis.Client
	namespace string

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// NewClient connects to Redis. A bad URL or failed ping yields a disabled
// client instead of an error.
func NewClient(cfg Config) *Client {
	c := &Client{namespace: cfg.Namespace}
	if c.namespace == "" {
		c.namespace = defaultNamespace
	}
	if cfg.Disabled || cfg.URL == "" {
		slog.Warn("Cache disabled by configuration")
		return c
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		slog.Warn("Cache disabled: invalid redis URL", "error", err)
		return c
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.MaxRetries = -1

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Cache disabled: redis unreachable", "error", err)
		_ = rdb.Close()
		return c
	}

	slog.Info("Cache connected", "addr", opts.Addr, "namespace", c.namespace)
	c.rdb = rdb
	return c
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{rdb: rdb, namespace: namespace}
}

// Enabled reports whether a server connection is available.
func (c *Client) Enabled() bool { return c != nil && c.rdb != nil }

// Namespace returns the key prefix shared by all entries.
func (c *Client) Namespace() string { return c.namespace }

// Close closes the Redis connection.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// Ping checks server reachability.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("cache disabled")
	}
	return c.rdb.Ping(ctx).Err()
}

// Key derives a namespaced key from an operation prefix, positional
// arguments and named arguments. Named arguments are order-independent.
func (c *Client) Key(prefix string, args []any, kwargs map[string]any) string {
	a, _ := json.Marshal(args)
	k, _ := json.Marshal(kwargs)
	sum := md5.Sum([]byte(prefix + ":" + string(a) + ":" + string(k)))
	return c.namespace + ":" + prefix + ":" + hex.EncodeToString(sum[:])
}

// Get decodes the value at key into dest and reports whether it was found.
func (c *Client) Get(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("get", "disabled").Inc()
		return false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		return false
	}
	if err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		slog.Warn("Cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		slog.Warn("Cache entry undecodable", "key", key, "error", err)
		return false
	}

	c.hits.Add(1)
	metrics.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return true
}

// Set stores value at key for ttl and reports success.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.errs.Add(1)
		slog.Warn("Cache value unencodable", "key", key, "error", err)
		return false
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.errs.Add(1)
		metrics.CacheOperationsTotal.WithLabelValues("set", "error").Inc()
		slog.Warn("Cache write failed", "key", key, "error", err)
		return false
	}
	metrics.CacheOperationsTotal.WithLabelValues("set", "ok").Inc()
	return true
}

// Delete removes key and reports whether something was deleted.
func (c *Client) Delete(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		c.errs.Add(1)
		slog.Warn("Cache delete failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// ClearPattern deletes every key matching the glob pattern and returns the
// number removed.
func (c *Client) ClearPattern(ctx context.Context, pattern string) int {
	if !c.Enabled() {
		return 0
	}
	keys, err := c.scan(ctx, pattern)
	if err != nil {
		c.errs.Add(1)
		slog.Warn("Cache scan failed", "pattern", pattern, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		c.errs.Add(1)
		slog.Warn("Cache clear failed", "pattern", pattern, "error", err)
		return 0
	}
	metrics.CacheOperationsTotal.WithLabelValues("clear", "ok").Add(float64(n))
	return int(n)
}

func (c *Client) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Stats describes cache usage.
type Stats struct {
	Enabled          bool    `json:"enabled"`
	ConnectedClients int     `json:"connected_clients,omitempty"`
	UsedMemoryHuman  string  `json:"used_memory_human,omitempty"`
	ServerHits       int64   `json:"keyspace_hits,omitempty"`
	ServerMisses     int64   `json:"keyspace_misses,omitempty"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Errors           int64   `json:"errors"`
	HitRate          float64 `json:"hit_rate"`
	Keys             int     `json:"total_keys"`
	Error            string  `json:"error,omitempty"`
}

// Stats gathers local counters and server INFO fields.
func (c *Client) Stats(ctx context.Context) Stats {
	s := Stats{
		Enabled: c.Enabled(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errs.Load(),
	}
	s.HitRate = c.HitRate()
	if !s.Enabled {
		return s
	}

	info, err := c.rdb.Info(ctx, "clients", "memory", "stats").Result()
	if err == nil {
		fields := parseInfo(info)
		s.ConnectedClients, _ = strconv.Atoi(fields["connected_clients"])
		s.UsedMemoryHuman = fields["used_memory_human"]
		s.ServerHits, _ = strconv.ParseInt(fields["keyspace_hits"], 10, 64)
		s.ServerMisses, _ = strconv.ParseInt(fields["keyspace_misses"], 10, 64)
	}

	keys, err := c.scan(ctx, c.namespace+":*")
	if err != nil {
		s.Error = err.Error()
		return s
	}
	s.Keys = len(keys)
	return s
}

// HitRate returns local hits over lookups as a percentage.
func (c *Client) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// Keys lists namespaced keys matching pattern.
func (c *Client) Keys(ctx context.Context, pattern string) []string {
	if !c.Enabled() {
		return nil
	}
	keys, err := c.scan(ctx, pattern)
	if err != nil {
		return nil
	}
	return keys
}

func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

// String implements fmt.Stringer for logs.
func (s Stats) String() string {
	return fmt.Sprintf("enabled=%t hits=%d misses=%d hit_rate=%.1f%% keys=%d",
		s.Enabled, s.Hits, s.Misses, s.HitRate, s.Keys)
}
