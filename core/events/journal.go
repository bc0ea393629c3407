package events

import (
	"sync"

	"tripact/core/types"
)

// Entry is a journalled event together with its position in the emission
// order. Sequence numbers start at 1 and never repeat.
type Entry struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

const subscriberBuffer = 64

// Journal records every emitted event in order and fans live entries out to
// subscribers. The full balance history of an instance can be reconstructed
// from its entries alone.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
	subs    map[uint64]chan Entry
	nextSub uint64
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{subs: make(map[uint64]chan Entry)}
}

// Emit implements the Emitter interface.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{Sequence: uint64(len(j.entries)) + 1, Event: payload}
	j.entries = append(j.entries, entry)
	for _, ch := range j.subs {
		select {
		case ch <- entry:
		default:
			// Slow subscribers miss live entries; they can resync from
			// the cursor they last acknowledged.
		}
	}
}

// Entries returns all journalled entries with a sequence greater than after.
func (j *Journal) Entries(after uint64) []Entry {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if after >= uint64(len(j.entries)) {
		return nil
	}
	backlog := make([]Entry, len(j.entries)-int(after))
	copy(backlog, j.entries[after:])
	return backlog
}

// Subscribe registers a live subscriber and returns the backlog of entries
// recorded after the supplied cursor. The cancel function must be called to
// release the subscription.
func (j *Journal) Subscribe(after uint64) (<-chan Entry, func(), []Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var backlog []Entry
	if after < uint64(len(j.entries)) {
		backlog = make([]Entry, len(j.entries)-int(after))
		copy(backlog, j.entries[after:])
	}
	id := j.nextSub
	j.nextSub++
	ch := make(chan Entry, subscriberBuffer)
	j.subs[id] = ch
	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if existing, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(existing)
		}
	}
	return ch, cancel, backlog
}
