// Package cache is a content-addressed disk cache for LLM responses with
// per-phase TTLs.
//
// Entries are idempotent: the key is a hash of the request content, the
// phase, and the call parameters, so concurrent writers for the same key
// produce identical files and last-write-wins is safe. Reads self-heal:
// expired or corrupt entries are deleted and reported as misses, never as
// errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/marginalia/internal/cache"

// Config configures the response cache.
type Config struct {
	// Dir is the cache directory, created lazily on first write.
	Dir string `koanf:"dir"`

	// Enabled toggles the cache. When false every operation is a no-op and
	// no directory is created.
	Enabled bool `koanf:"enabled"`

	// TTLs maps phase name to entry lifetime. A zero or missing TTL means
	// entries for that phase never expire.
	TTLs map[string]time.Duration `koanf:"ttls"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		TTLs: map[string]time.Duration{
			"phase1": 24 * time.Hour,
			"phase2": 7 * 24 * time.Hour,
		},
	}
}

// Entry is the on-disk record: one JSON file per entry.
type Entry struct {
	Key       string    `json:"key"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Phase     string    `json:"phase"`
}

// Stats summarizes cache contents.
type Stats struct {
	EntriesPerPhase map[string]int `json:"entries_per_phase"`
	TotalEntries    int            `json:"total_entries"`
	TotalBytes      int64          `json:"total_bytes"`
}

// Cache is the disk-backed response cache.
type Cache struct {
	config Config
	logger *zap.Logger

	meter       metric.Meter
	hitCounter  metric.Int64Counter
	missCounter metric.Int64Counter
	healCounter metric.Int64Counter

	now func() time.Time
}

// New creates a cache. The directory is not created until the first write.
func New(cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.Enabled && cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required when cache is enabled")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		config: cfg,
		logger: logger,
		meter:  otel.Meter(instrumentationName),
		now:    time.Now,
	}
	c.initMetrics()
	return c, nil
}

func (c *Cache) initMetrics() {
	var err error
	c.hitCounter, err = c.meter.Int64Counter(
		"marginalia.cache.hits_total",
		metric.WithDescription("Total cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		c.logger.Warn("failed to create hit counter", zap.Error(err))
	}
	c.missCounter, err = c.meter.Int64Counter(
		"marginalia.cache.misses_total",
		metric.WithDescription("Total cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		c.logger.Warn("failed to create miss counter", zap.Error(err))
	}
	c.healCounter, err = c.meter.Int64Counter(
		"marginalia.cache.self_heals_total",
		metric.WithDescription("Expired or corrupt entries removed on read"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		c.logger.Warn("failed to create heal counter", zap.Error(err))
	}
}

// Key computes the content-addressed key. Parameter order never affects the
// key: params are folded in sorted order.
func Key(content, phase string, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(phase))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write([]byte(params[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached payload for (content, phase, params), or ok=false
// on a miss. Expired and unreadable entries are removed and reported as
// misses.
func (c *Cache) Get(ctx context.Context, content, phase string, params map[string]string) (string, bool) {
	if !c.config.Enabled {
		return "", false
	}

	key := Key(content, phase, params)
	path := c.entryPath(phase, key)

	raw, err := os.ReadFile(path)
	if err != nil {
		c.count(ctx, c.missCounter)
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Key != key {
		c.heal(ctx, path, "corrupt entry")
		return "", false
	}

	if ttl := c.config.TTLs[phase]; ttl > 0 && c.now().Sub(entry.CreatedAt) > ttl {
		c.heal(ctx, path, "expired entry")
		return "", false
	}

	c.count(ctx, c.hitCounter)
	return entry.Data, true
}

// Set stores a payload. Writes are whole-file replace-on-write (temp file +
// rename) so a partial write is never visible to Get.
func (c *Cache) Set(ctx context.Context, content, phase, payload string, params map[string]string) error {
	if !c.config.Enabled {
		return nil
	}

	if err := os.MkdirAll(c.config.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	key := Key(content, phase, params)
	entry := Entry{
		Key:       key,
		Data:      payload,
		CreatedAt: c.now().UTC(),
		Phase:     phase,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	path := c.entryPath(phase, key)
	tmp, err := os.CreateTemp(c.config.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish cache entry: %w", err)
	}

	c.logger.Debug("cache entry written",
		zap.String("phase", phase), zap.String("key", key))
	return nil
}

// Clear removes all entries for one phase.
func (c *Cache) Clear(phase string) error {
	_, err := c.sweep(func(e Entry) bool { return e.Phase == phase })
	return err
}

// ClearAll removes every cache entry.
func (c *Cache) ClearAll() error {
	_, err := c.sweep(func(Entry) bool { return true })
	return err
}

// ClearExpired removes only entries past their phase TTL and returns the
// number removed.
func (c *Cache) ClearExpired() (int, error) {
	return c.sweep(func(e Entry) bool {
		ttl := c.config.TTLs[e.Phase]
		return ttl > 0 && c.now().Sub(e.CreatedAt) > ttl
	})
}

// Stats reports entry counts per phase and total bytes on disk.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{EntriesPerPhase: make(map[string]int)}
	if !c.config.Enabled {
		return stats, nil
	}

	entries, err := os.ReadDir(c.config.Dir)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to read cache dir: %w", err)
	}

	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.config.Dir, de.Name()))
		if err != nil {
			continue
		}
		// Phase comes from the decoded entry, not the filename: phase names
		// may themselves contain the separator.
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		stats.TotalBytes += int64(len(raw))
		stats.TotalEntries++
		stats.EntriesPerPhase[entry.Phase]++
	}
	return stats, nil
}

func (c *Cache) entryPath(phase, key string) string {
	return filepath.Join(c.config.Dir, phase+"_"+key+".json")
}

func (c *Cache) count(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}

func (c *Cache) heal(ctx context.Context, path, reason string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove bad cache entry",
			zap.String("path", path), zap.Error(err))
	}
	c.logger.Debug("cache self-heal", zap.String("path", path), zap.String("reason", reason))
	c.count(ctx, c.healCounter)
	c.count(ctx, c.missCounter)
}

// sweep removes entries matching the predicate and returns how many went.
func (c *Cache) sweep(match func(Entry) bool) (int, error) {
	if !c.config.Enabled {
		return 0, nil
	}

	entries, err := os.ReadDir(c.config.Dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache dir: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.config.Dir, de.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Corrupt files go with any sweep.
			if os.Remove(path) == nil {
				removed++
			}
			continue
		}
		if match(entry) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
