package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// Ledger records which slots have already run. Claim marks key as run and
// reports whether this caller was the first to do so.
type Ledger interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// MemoryLedger is a process-local ledger for tests and --memory mode.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]bool)}
}

func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

const ledgerPrefix = "slot/"

// PebbleLedger persists claimed slots in a Pebble database so a restart
// within the same slot does not run the job twice.
type PebbleLedger struct {
	db *pebble.DB
	mu sync.Mutex
}

func OpenPebbleLedger(dir string) (*PebbleLedger, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open scheduler ledger at %s: %w", dir, err)
	}
	return &PebbleLedger{db: db}, nil
}

func (l *PebbleLedger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := []byte(ledgerPrefix + key)
	_, closer, err := l.db.Get(k)
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, fmt.Errorf("read ledger slot %s: %w", key, err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := l.db.Set(k, stamp, pebble.Sync); err != nil {
		return false, fmt.Errorf("claim ledger slot %s: %w", key, err)
	}
	return true, nil
}

// ClaimedAt returns when key was claimed, for inspection tools.
func (l *PebbleLedger) ClaimedAt(key string) (time.Time, bool, error) {
	v, closer, err := l.db.Get([]byte(ledgerPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer closer.Close()
	t, err := time.Parse(time.RFC3339, string(v))
	if err != nil {
		return time.Time{}, true, fmt.Errorf("ledger slot %s: %w", key, err)
	}
	return t, true, nil
}

func (l *PebbleLedger) Close() error { return l.db.Close() }
