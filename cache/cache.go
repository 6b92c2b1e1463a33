package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"docsum/types"

	"github.com/gofrs/flock"
)

const (
	summariesSuffix = "_summaries.json"
	totalSuffix     = "_total.txt"
	lockSuffix      = ".lock"
)

// Cache is a two-tier (memory + disk) store of analysis results keyed by
// the sha256 of the uploaded bytes. It also owns the per-document summary
// checkpoint and total-count files that live next to each result.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu  sync.RWMutex
	mem map[string]json.RawMessage
}

func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:    dir,
		logger: logger,
		mem:    make(map[string]json.RawMessage),
	}, nil
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether s looks like a hex sha256 digest. Anything else
// is never used to build a file path.
func ValidHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (c *Cache) Dir() string {
	return c.dir
}

// Put stores result in memory and tries to persist it. A failed write is
// logged; the in-memory value stays valid.
func (c *Cache) Put(hash string, result json.RawMessage) {
	c.mu.Lock()
	c.mem[hash] = result
	c.mu.Unlock()

	if !ValidHash(hash) {
		c.logger.Warn("cache.put.skip_disk", "hash", hash, "reason", "invalid hash")
		return
	}
	if err := writeFileAtomic(c.resultPath(hash), result); err != nil {
		c.logger.Warn("cache.put.persist_failed", "hash", hash, "error", err)
	}
}

// Get returns the cached result. A disk entry that fails to parse is a miss.
func (c *Cache) Get(hash string) (json.RawMessage, bool) {
	c.mu.RLock()
	res, ok := c.mem[hash]
	c.mu.RUnlock()
	if ok {
		return res, true
	}
	if !ValidHash(hash) {
		return nil, false
	}

	data, err := os.ReadFile(c.resultPath(hash))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cache.get.read_failed", "hash", hash, "error", err)
		}
		return nil, false
	}
	if !json.Valid(data) {
		c.logger.Warn("cache.get.corrupt", "hash", hash)
		return nil, false
	}

	c.mu.Lock()
	c.mem[hash] = data
	c.mu.Unlock()
	return data, true
}

// LoadSummaries returns the persisted summary record, or an empty record if
// none exists yet.
func (c *Cache) LoadSummaries(hash string) (types.SummaryRecord, error) {
	if !ValidHash(hash) {
		return nil, fmt.Errorf("%w: bad hash %q", types.ErrInput, hash)
	}
	return c.readSummaries(hash)
}

func (c *Cache) readSummaries(hash string) (types.SummaryRecord, error) {
	data, err := os.ReadFile(c.summariesPath(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return types.SummaryRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}

	var record types.SummaryRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode summaries %s: %w", hash, err)
	}
	if record == nil {
		record = types.SummaryRecord{}
	}
	return record, nil
}

// SaveSummaries merges record into the checkpoint file and atomically
// replaces it. The file lock serializes writers across processes sharing the
// cache dir, so entries written by another process are never dropped.
func (c *Cache) SaveSummaries(hash string, record types.SummaryRecord) error {
	if !ValidHash(hash) {
		return fmt.Errorf("%w: bad hash %q", types.ErrInput, hash)
	}

	lock := flock.New(c.summariesPath(hash) + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock summaries: %w", err)
	}
	defer lock.Unlock()

	merged := make(types.SummaryRecord, len(record))
	onDisk, err := c.readSummaries(hash)
	if err != nil {
		c.logger.Warn("cache.summaries.overwrite_unreadable", "hash", hash, "error", err)
	}
	maps.Copy(merged, onDisk)
	maps.Copy(merged, record)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(c.summariesPath(hash), data)
}

// SummariesUpdatedAt returns the checkpoint mtime, zero if absent.
func (c *Cache) SummariesUpdatedAt(hash string) time.Time {
	if !ValidHash(hash) {
		return time.Time{}
	}
	info, err := os.Stat(c.summariesPath(hash))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// LoadTotal returns the recorded segment count, or -1 if unknown.
func (c *Cache) LoadTotal(hash string) int {
	if !ValidHash(hash) {
		return -1
	}
	data, err := os.ReadFile(c.totalPath(hash))
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		c.logger.Warn("cache.total.corrupt", "hash", hash)
		return -1
	}
	return n
}

func (c *Cache) SaveTotal(hash string, total int) error {
	if !ValidHash(hash) {
		return fmt.Errorf("%w: bad hash %q", types.ErrInput, hash)
	}
	return writeFileAtomic(c.totalPath(hash), []byte(strconv.Itoa(total)))
}

func (c *Cache) resultPath(hash string) string {
	return filepath.Join(c.dir, hash+".json")
}

func (c *Cache) summariesPath(hash string) string {
	return filepath.Join(c.dir, hash+summariesSuffix)
}

func (c *Cache) totalPath(hash string) string {
	return filepath.Join(c.dir, hash+totalSuffix)
}
