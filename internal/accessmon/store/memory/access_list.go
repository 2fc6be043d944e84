package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

// DefaultCapacity is the initial number of unique users an AccessList holds
// before it first grows.
const DefaultCapacity = 5

// AccessList is an in-memory UserStore. Records are kept ascending by last
// access time; equal times keep their relative order. The backing slice
// starts at a fixed capacity and doubles whenever an insert would exceed it.
type AccessList struct {
	mu       sync.RWMutex
	records  []types.AccessRecord
	capacity int
}

func NewAccessList(capacity int) *AccessList {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &AccessList{
		records:  make([]types.AccessRecord, 0, capacity),
		capacity: capacity,
	}
}

func (l *AccessList) Insert(_ context.Context, rec types.AccessRecord) (types.AccessRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(rec.UserID) >= 0 {
		return types.AccessRecord{}, store.ErrUserExists
	}
	return l.appendLocked(rec), nil
}

func (l *AccessList) Upsert(_ context.Context, rec types.AccessRecord) (types.AccessRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexOf(rec.UserID); i >= 0 {
		return l.refreshLocked(i, rec.LastAccessTime), false, nil
	}
	return l.appendLocked(rec), true, nil
}

func (l *AccessList) Touch(_ context.Context, userID string, at time.Time) (types.AccessRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(userID)
	if i < 0 {
		return types.AccessRecord{}, false, nil
	}
	return l.refreshLocked(i, at), true, nil
}

// Remove deletes the record and shifts the rest left; their order is kept.
func (l *AccessList) Remove(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(userID)
	if i < 0 {
		return false, nil
	}
	l.records = slices.Delete(l.records, i, i+1)
	return true, nil
}

func (l *AccessList) Find(_ context.Context, userID string) (types.AccessRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexOf(userID)
	if i < 0 {
		return types.AccessRecord{}, false, nil
	}
	return l.records[i].Clone(), true, nil
}

// List returns a snapshot; later mutations do not affect it.
func (l *AccessList) List(_ context.Context) ([]types.AccessRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.AccessRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (l *AccessList) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *AccessList) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capacity
}

func (l *AccessList) indexOf(userID string) int {
	for i := range l.records {
		if l.records[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (l *AccessList) appendLocked(rec types.AccessRecord) types.AccessRecord {
	l.growLocked()
	rec = rec.Clone()
	l.placeLocked(rec, len(l.records))
	return rec.Clone()
}

// refreshLocked moves record i to its new access time. The time never goes
// backwards for a record.
func (l *AccessList) refreshLocked(i int, at time.Time) types.AccessRecord {
	rec := l.records[i]
	if at.After(rec.LastAccessTime) {
		rec.LastAccessTime = at
	}
	l.records = slices.Delete(l.records, i, i+1)
	l.placeLocked(rec, i)
	return rec.Clone()
}

// growLocked doubles the capacity when the list is full, copying the
// records across in their current order.
func (l *AccessList) growLocked() {
	if len(l.records) < l.capacity {
		return
	}
	next := l.capacity * 2
	grown := make([]types.AccessRecord, len(l.records), next)
	copy(grown, l.records)
	l.records = grown
	l.capacity = next
}

// placeLocked inserts rec into the sorted list. from is the position the
// record held before the mutation (len for a new record): among records
// with an equal access time it lands where a stable sort would put it.
func (l *AccessList) placeLocked(rec types.AccessRecord, from int) {
	t := rec.LastAccessTime
	n := len(l.records)
	lo := sort.Search(n, func(i int) bool { return !l.records[i].LastAccessTime.Before(t) })
	hi := sort.Search(n, func(i int) bool { return l.records[i].LastAccessTime.After(t) })
	pos := min(max(from, lo), hi)
	l.records = slices.Insert(l.records, pos, rec)
}
