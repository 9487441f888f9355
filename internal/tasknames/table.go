package tasknames

import (
	"strconv"
	"strings"
	"sync"
)

// Entry is one registered "task_id,name" row.
type Entry struct {
	// Row is the normalized row exactly as registered.
	Row string
	// TaskID is the parsed id; Valid is false when the id did not parse.
	TaskID uint32
	Name   string
	Valid  bool
}

// ParseEntry splits a "task_id,name" row. The name keeps any further commas.
func ParseEntry(row string) Entry {
	e := Entry{Row: row}

	id, name, found := strings.Cut(row, ",")
	if !found {
		return e
	}

	v, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return e
	}

	e.TaskID = uint32(v)
	e.Name = strings.TrimSpace(name)
	e.Valid = true
	return e
}

// Table is the append-only task id to name mapping of a trace session.
// It is safe to peek from another goroutine while a session fills it.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[uint32]int // task id -> index of latest entry
}

// New creates an empty table.
func New() *Table {
	return &Table{
		byID: make(map[uint32]int),
	}
}

// Add registers a row (command). Rows whose id does not parse are kept for
// storage but cannot be looked up.
func (t *Table) Add(row string) Entry {
	e := ParseEntry(row)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, e)
	if e.Valid {
		t.byID[e.TaskID] = len(t.entries) - 1
	}
	return e
}

// Lookup returns the latest name registered for id (query).
func (t *Table) Lookup(id uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.byID[id]
	if !ok {
		return "", false
	}
	return t.entries[i].Name, true
}

// Entries returns a copy of all rows in registration order (query).
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of registered rows (query).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
