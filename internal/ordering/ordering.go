// Package ordering holds the volatile priority index over waiting tokens.
// It is a cache, never the source of truth: the durable store can rebuild
// any line at any time, and every reader must tolerate an empty or missing
// line. Lines expire at the end of their business day.
package ordering

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Entry is one waiting token with its composite score.
type Entry struct {
	TokenID string
	Score   int
}

// Score combines priority rank and ticket number into a single comparable
// value: higher ranks always win, and within a rank earlier ticket numbers
// score higher. band must exceed any plausible daily ticket count.
func Score(band, priorityRank, ticketNumber int) int {
	return priorityRank*band - ticketNumber
}

// line is one department's ordered waiting list for a single business day,
// kept sorted by score descending.
type line struct {
	mu      sync.Mutex
	entries []Entry
}

// Index maps (department, business day) keys to their ordered lines.
type Index struct {
	store *cache.Cache
}

// NewIndex creates an index. Expired lines are purged on the given interval.
func NewIndex(cleanupInterval time.Duration) *Index {
	return &Index{store: cache.New(cache.NoExpiration, cleanupInterval)}
}

func key(departmentID string, day time.Time) string {
	return fmt.Sprintf("%s:%d", departmentID, day.Unix())
}

func (ix *Index) getLine(departmentID string, day time.Time) (*line, bool) {
	v, found := ix.store.Get(key(departmentID, day))
	if !found {
		return nil, false
	}
	return v.(*line), true
}

// Insert adds one entry, creating the line with the given TTL if absent.
// Creation goes through the cache's atomic Add so two concurrent first
// inserts into a cold line cannot overwrite each other's entries.
func (ix *Index) Insert(departmentID string, day time.Time, tokenID string, score int, ttl time.Duration) {
	k := key(departmentID, day)
	var l *line
	for {
		if existing, found := ix.getLine(departmentID, day); found {
			l = existing
			break
		}
		candidate := &line{}
		if err := ix.store.Add(k, candidate, ttl); err == nil {
			l = candidate
			break
		}
		// Lost the creation race; the next Get picks up the winner's line.
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(Entry{TokenID: tokenID, Score: score})
}

// insertLocked keeps entries sorted by score descending.
func (l *line) insertLocked(e Entry) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Score < e.Score
	})
	l.entries = append(l.entries, Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
}

// PopMax removes and returns the highest-scoring token id, if any.
func (ix *Index) PopMax(departmentID string, day time.Time) (string, bool) {
	l, found := ix.getLine(departmentID, day)
	if !found {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "", false
	}
	top := l.entries[0]
	l.entries = l.entries[1:]
	return top.TokenID, true
}

// Remove deletes the entry for a token id. Removing an absent id is a no-op.
func (ix *Index) Remove(departmentID string, day time.Time, tokenID string) {
	l, found := ix.getLine(departmentID, day)
	if !found {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.TokenID == tokenID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Rank returns the zero-based position of a token id in descending score
// order, or false if the line or entry is absent.
func (ix *Index) Rank(departmentID string, day time.Time, tokenID string) (int, bool) {
	l, found := ix.getLine(departmentID, day)
	if !found {
		return 0, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.TokenID == tokenID {
			return i, true
		}
	}
	return 0, false
}

// Snapshot returns the token ids in descending score order.
func (ix *Index) Snapshot(departmentID string, day time.Time) []string {
	l, found := ix.getLine(departmentID, day)
	if !found {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, len(l.entries))
	for i, e := range l.entries {
		ids[i] = e.TokenID
	}
	return ids
}

// Len returns the number of entries in a line.
func (ix *Index) Len(departmentID string, day time.Time) int {
	l, found := ix.getLine(departmentID, day)
	if !found {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RebuildFrom replaces the whole line with a fresh snapshot from the durable
// store. Used to heal after an eviction or restart.
func (ix *Index) RebuildFrom(departmentID string, day time.Time, entries []Entry, ttl time.Duration) {
	l := &line{entries: make([]Entry, len(entries))}
	copy(l.entries, entries)
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].Score > l.entries[j].Score
	})
	ix.store.Set(key(departmentID, day), l, ttl)
}

// Drop discards a line entirely. Tests use it to simulate an eviction.
func (ix *Index) Drop(departmentID string, day time.Time) {
	ix.store.Delete(key(departmentID, day))
}
