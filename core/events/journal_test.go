package events

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"tripact/core/types"
)

type testEvent struct {
	kind string
	n    int
}

func (e testEvent) EventType() string { return e.kind }

func (e testEvent) Event() *types.Event {
	return &types.Event{
		Type:       e.kind,
		Attributes: map[string]string{"n": strconv.Itoa(e.n)},
	}
}

func TestJournalAssignsSequences(t *testing.T) {
	j := NewJournal()
	for i := 1; i <= 3; i++ {
		j.Emit(testEvent{kind: "test.event", n: i})
	}
	entries := j.Entries(0)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		require.Equal(t, uint64(i+1), entry.Sequence)
		require.Equal(t, strconv.Itoa(i+1), entry.Event.Attributes["n"])
	}

	require.Len(t, j.Entries(2), 1)
	require.Nil(t, j.Entries(3))
	require.Nil(t, j.Entries(99))
}

func TestJournalIgnoresNilPayloads(t *testing.T) {
	j := NewJournal()
	j.Emit(nil)
	require.Nil(t, j.Entries(0))
}

func TestSubscribeReplaysBacklogAndStreamsLive(t *testing.T) {
	j := NewJournal()
	j.Emit(testEvent{kind: "test.event", n: 1})
	j.Emit(testEvent{kind: "test.event", n: 2})

	ch, cancel, backlog := j.Subscribe(1)
	defer cancel()
	require.Len(t, backlog, 1)
	require.Equal(t, uint64(2), backlog[0].Sequence)

	j.Emit(testEvent{kind: "test.event", n: 3})
	live := <-ch
	require.Equal(t, uint64(3), live.Sequence)
	require.Equal(t, "3", live.Event.Attributes["n"])
}

func TestCancelClosesSubscription(t *testing.T) {
	j := NewJournal()
	ch, cancel, _ := j.Subscribe(0)
	cancel()
	// A second cancel is harmless.
	cancel()
	_, open := <-ch
	require.False(t, open)
	// Emitting after cancellation must not panic on the closed channel.
	j.Emit(testEvent{kind: "test.event", n: 1})
}
