package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log line stored in the ring buffer.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Panel      string         `json:"panel,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries. Entry n (1-based sequence
// number) lives in slot (n-1) mod capacity, so lookups by sequence need no
// scan.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	seq     uint64 // sequence number of the newest entry
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(size, 1))}
}

// Write stamps entry with the next sequence number, stores it over the
// oldest entry when full, and returns the stamped entry.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	rb.entries[rb.slot(rb.seq)] = entry
	return entry
}

// ReadAll returns every kept entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Count returns the number of kept entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(min(rb.seq, uint64(len(rb.entries))))
}

// Since returns the kept entries with a sequence number above seq, oldest
// first. Entries already overwritten are silently skipped.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	from := seq + 1
	if kept := uint64(len(rb.entries)); rb.seq > kept {
		from = max(from, rb.seq-kept+1)
	}
	if from > rb.seq {
		return nil
	}

	out := make([]LogEntry, 0, rb.seq-from+1)
	for n := from; n <= rb.seq; n++ {
		out = append(out, rb.entries[rb.slot(n)])
	}
	return out
}

func (rb *RingBuffer) slot(seq uint64) int {
	return int((seq - 1) % uint64(len(rb.entries)))
}
