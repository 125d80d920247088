package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger is the durable set of already-processed event ids. Membership is
// held in memory and backed by an append-only log file, one id per line.
// There is no eviction: admission is gated by the age filter, not ledger
// size. A single mutex serializes set access and the file append so that
// Contains/Record cannot lose an update.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
	file *os.File
	path string
}

// New opens (creating if needed) the log at path and replays it into the
// in-memory set. Blank lines are skipped.
func New(path string) (*Ledger, error) {
	l := &Ledger{
		seen: make(map[string]struct{}),
		path: path,
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		l.seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	// Reposition for appends.
	if _, err := file.Seek(0, 2); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek ledger file: %w", err)
	}

	l.file = file
	logrus.Infof("Loaded %d processed event ids from %s", len(l.seen), path)
	return l, nil
}

// Contains reports whether id has already been recorded.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Record inserts id into the set and appends it to the log. The insert is
// idempotent; an id already present is not re-appended. A failed append is
// logged but non-fatal: the current process will not reprocess the event,
// though a restart before the next successful append may.
func (l *Ledger) Record(id string) {
	if id == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}

	if _, err := fmt.Fprintf(l.file, "%s\n", id); err != nil {
		logrus.Errorf("Failed to append event id %s to ledger: %v", id, err)
	}
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Close closes the underlying log file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
