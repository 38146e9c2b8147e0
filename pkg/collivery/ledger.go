package collivery

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindMissingData      Kind = "missing_data"
	KindInvalidData      Kind = "invalid_data"
	KindTransport        Kind = "transport"
	KindHTTP             Kind = "http"
	KindSOAP             Kind = "soap"
	KindResultUnexpected Kind = "result_unexpected"
	KindAuth             Kind = "auth"
)

// Entry is one recorded failure. Field failures are keyed by field name, transport
// failures by the carrier's error code.
type Entry struct {
	Key     string `json:"key"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Ledger collects the failures of a single client operation. A non-empty ledger
// means the operation's result must not be trusted.
type Ledger struct {
	entries []Entry
}

// Add records an entry, replacing any previous entry with the same key.
func (l *Ledger) Add(kind Kind, key, message string) {
	for i := range l.entries {
		if l.entries[i].Key == key {
			l.entries[i] = Entry{Key: key, Kind: kind, Message: message}
			return
		}
	}
	l.entries = append(l.entries, Entry{Key: key, Kind: kind, Message: message})
}

// Empty reports whether nothing was recorded.
func (l *Ledger) Empty() bool {
	return l == nil || len(l.entries) == 0
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// Has reports whether key was recorded.
func (l *Ledger) Has(key string) bool {
	_, ok := l.Get(key)
	return ok
}

// Get returns the entry recorded under key.
func (l *Ledger) Get(key string) (Entry, bool) {
	if l == nil {
		return Entry{}, false
	}
	for _, e := range l.entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// HasKind reports whether any entry has the given kind.
func (l *Ledger) HasKind(kind Kind) bool {
	if l == nil {
		return false
	}
	for _, e := range l.entries {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Entries returns the entries in insertion order.
func (l *Ledger) Entries() []Entry {
	if l == nil {
		return nil
	}
	return append([]Entry(nil), l.entries...)
}

// Map returns key to message.
func (l *Ledger) Map() map[string]string {
	m := make(map[string]string, l.Len())
	for _, e := range l.Entries() {
		m[e.Key] = e.Message
	}
	return m
}

// Error implements error.
func (l *Ledger) Error() string {
	if l.Empty() {
		return "no carrier errors"
	}
	parts := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		parts = append(parts, fmt.Sprintf("%s %s: %s", e.Kind, e.Key, e.Message))
	}
	return "collivery: " + strings.Join(parts, "; ")
}

func (l *Ledger) clone() *Ledger {
	return &Ledger{entries: l.Entries()}
}

func (l *Ledger) reset() {
	l.entries = l.entries[:0]
}

// AsLedger extracts a ledger from err.
func AsLedger(err error) (*Ledger, bool) {
	var l *Ledger
	if errors.As(err, &l) {
		return l, true
	}
	return nil, false
}
