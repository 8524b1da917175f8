package log

import (
	"errors"
	"strings"
	"sync"
)

// DefaultRedactedFields are never written in clear text.
var DefaultRedactedFields = []string{"shared_key", "private_key", "signature", "token", "password"}

const redacted = "[REDACTED]"

var allLevels = []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel}

// RedactionHook replaces the values of sensitive fields.
type RedactionHook struct {
	fields map[string]struct{}
}

// NewRedactionHook creates a redaction hook for the given field names, compared case-insensitively.
func NewRedactionHook(fields []string) *RedactionHook {
	h := &RedactionHook{fields: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		h.fields[strings.ToLower(f)] = struct{}{}
	}
	return h
}

// Levels returns the levels this hook should be called for.
func (h *RedactionHook) Levels() []Level { return allLevels }

// Fire redacts matching fields of the entry.
func (h *RedactionHook) Fire(entry *Entry) error {
	for k := range entry.Fields {
		if _, ok := h.fields[strings.ToLower(k)]; ok {
			entry.Fields[k] = redacted
		}
	}
	return nil
}

// SamplingHook keeps the first Initial entries with a given level and message, then one in
// every Thereafter.
type SamplingHook struct {
	mu         sync.Mutex
	counters   map[string]uint64
	initial    uint64
	thereafter uint64
}

// NewSamplingHook creates a new sampling hook.
func NewSamplingHook(initial, thereafter int) *SamplingHook {
	if initial < 0 {
		initial = 0
	}
	if thereafter <= 0 {
		thereafter = 1
	}
	return &SamplingHook{
		counters:   make(map[string]uint64),
		initial:    uint64(initial),
		thereafter: uint64(thereafter),
	}
}

// Levels returns the levels this hook should be called for. Errors are never sampled.
func (h *SamplingHook) Levels() []Level {
	return []Level{DebugLevel, InfoLevel, WarnLevel}
}

// Fire returns ErrEntrySampled for entries that should be dropped.
func (h *SamplingHook) Fire(entry *Entry) error {
	key := entry.Level.String() + ":" + entry.Message

	h.mu.Lock()
	counter := h.counters[key]
	h.counters[key]++
	h.mu.Unlock()

	if counter < h.initial || (counter-h.initial)%h.thereafter == 0 {
		return nil
	}
	return ErrEntrySampled
}

// ErrEntrySampled is returned by a hook to drop an entry.
var ErrEntrySampled = errors.New("entry sampled")
