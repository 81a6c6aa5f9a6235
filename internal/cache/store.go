// Package cache persists translated subtitle payloads as one JSON file per
// key, with TTL expiry and atomic replacement so readers never observe a
// torn record.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sublate/sublate/pkg/log"
)

const (
	// DefaultTTL is how long a record stays servable.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultSweepInterval bounds how often a full sweep may run.
	DefaultSweepInterval = time.Hour

	recordExt = ".json"
)

// RecordEntry is one subtitle line inside a persisted record.
type RecordEntry struct {
	Start int64  `json:"start"`
	Text  string `json:"text"`
}

// Record is the persisted payload for one cache key.
type Record struct {
	Subtitles []RecordEntry `json:"subtitles"`
	Timestamp float64       `json:"timestamp"` // unix seconds at write time
}

// Store is a file-backed key-value store for translated subtitle tracks.
// All operations serialize behind a single store-wide lock.
type Store struct {
	dir           string
	ttl           time.Duration
	sweepInterval time.Duration

	mu        sync.Mutex
	lastSweep time.Time

	now func() time.Time
}

func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		dir:           dir,
		ttl:           ttl,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}, nil
}

// Get returns the record for key, or false when absent. An expired or
// structurally invalid record is deleted and reported as absent.
func (s *Store) Get(key string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Subtitles == nil {
		log.Warn("Removing corrupt cache record %s: %v", key, err)
		_ = os.Remove(path)
		return nil, false
	}

	if s.expired(rec.Timestamp) {
		_ = os.Remove(path)
		return nil, false
	}
	return &rec, true
}

// Put writes the record for key atomically: the payload lands in a temp file
// first and is renamed into place. The record's timestamp is stamped here.
func (s *Store) Put(key string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Timestamp = float64(s.now().UnixNano()) / float64(time.Second)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// Delete removes the record for key if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.path(key))
}

// Sweep walks all persisted records and deletes the expired ones. It runs at
// most once per sweep interval; extra calls are no-ops. A failure on one
// record never aborts the rest. Returns the number of records removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) < s.sweepInterval {
		return 0
	}
	s.lastSweep = now

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error("Cache sweep failed to list %s: %v", s.dir, err)
		return 0
	}

	removed := 0
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), recordExt) {
			continue
		}
		path := filepath.Join(s.dir, de.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Cache sweep failed to read %s: %v", de.Name(), err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			}
			continue
		}
		if s.expired(rec.Timestamp) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
			} else {
				log.Warn("Cache sweep failed to remove %s: %v", de.Name(), rmErr)
			}
		}
	}
	return removed
}

func (s *Store) expired(timestamp float64) bool {
	created := time.Unix(0, int64(timestamp*float64(time.Second)))
	return s.now().Sub(created) > s.ttl
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+recordExt)
}

// sanitizeKey keeps cache keys filename-safe without collapsing distinct keys.
func sanitizeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "_%04x", r)
		}
	}
	return sb.String()
}
