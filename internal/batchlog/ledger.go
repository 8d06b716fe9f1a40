package batchlog

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/state"
)

// LedgerKey is the state key holding the applied-artifact ledger.
const LedgerKey = ".processed_files"

// Ledger records which artifacts, by name and content identity, have been
// fully applied.
type Ledger struct {
	store state.Store

	mu      sync.Mutex
	entries map[string]string // name -> identity
}

// NewLedger returns a Ledger backed by store. Call Load before use.
func NewLedger(store state.Store) *Ledger {
	return &Ledger{store: store, entries: make(map[string]string)}
}

// Load reads the ledger. A missing, unreadable or damaged ledger is treated
// as empty or partially empty; reapplying an artifact is safe.
func (l *Ledger) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]string)
	data, ok, err := l.store.Get(LedgerKey)
	if err != nil {
		zap.L().Warn("batchlog: ledger unreadable, treating as empty", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, identity, found := strings.Cut(line, "|")
		if !found || !IsArtifact(name) || identity == "" {
			zap.L().Warn("batchlog: skipping malformed ledger line", zap.String("line", line))
			continue
		}
		l.entries[name] = identity
	}
}

// Applied reports whether the artifact with this name and identity has
// already been applied.
func (l *Ledger) Applied(name, identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.entries[name]
	return ok && id == identity
}

// Recorded reports whether name appears in the ledger under any identity.
func (l *Ledger) Recorded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	return ok
}

// Mark records an artifact as applied and persists the ledger. On a
// persistence failure the entry stays in memory for this process.
func (l *Ledger) Mark(name, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[name] = identity
	return l.persistLocked()
}

// Forget drops names from the ledger and persists it.
func (l *Ledger) Forget(names ...string) error {
	if len(names) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range names {
		delete(l.entries, n)
	}
	return l.persistLocked()
}

// Len returns the number of recorded artifacts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) persistLocked() error {
	names := make([]string, 0, len(l.entries))
	for n := range l.entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('|')
		buf.WriteString(l.entries[n])
		buf.WriteByte('\n')
	}
	return l.store.Set(LedgerKey, buf.Bytes())
}
