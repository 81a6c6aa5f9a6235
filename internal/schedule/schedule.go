// Package schedule decides translation order: the playback window around the
// viewer's cursor is translated first, everything else in fixed-size chunks
// afterwards.
package schedule

import (
	"time"

	"github.com/sublate/sublate/internal/subtitle"
)

const (
	// DefaultBuffer is how far past the playback cursor the priority batch reaches.
	DefaultBuffer = 2 * time.Minute
	// DefaultCapacity is the chunk size for background batches.
	DefaultCapacity = 15
)

// Batch is an ordered group of entries submitted together for translation.
// Elements point into the caller's entry slice so translations land on the
// original entries.
type Batch []*subtitle.Entry

// Plan partitions entries into priority order.
//
// Batch 0 holds the entries between the cursor and cursor+buffer. The
// remainder is the after-window entries followed by the before-cursor ones
// (still translated, just later), chunked into capacity-sized batches in that
// order. An empty entry set yields an empty plan, never a single empty batch.
func Plan(entries []subtitle.Entry, cursor, buffer time.Duration, capacity int) []Batch {
	if len(entries) == 0 {
		return nil
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	// first entry at or after the cursor
	first := len(entries)
	for i := range entries {
		if entries[i].Start >= cursor {
			first = i
			break
		}
	}

	var window Batch
	var remainder Batch
	for i := first; i < len(entries); i++ {
		if entries[i].Start <= cursor+buffer {
			window = append(window, &entries[i])
		} else {
			remainder = append(remainder, &entries[i])
		}
	}
	// entries before the cursor are translated last
	for i := 0; i < first; i++ {
		remainder = append(remainder, &entries[i])
	}

	plan := []Batch{window}
	for start := 0; start < len(remainder); start += capacity {
		end := min(start+capacity, len(remainder))
		plan = append(plan, remainder[start:end:end])
	}
	return plan
}
