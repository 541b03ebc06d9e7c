package chatclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendplex/chat-server/pkg/chatclient"
	"github.com/xtendplex/chat-server/pkg/protocol"
)

func msg(id string, created time.Time) *protocol.Message {
	return &protocol.Message{
		ID:        id,
		RoomID:    "room1",
		UserID:    "alice",
		Content:   "content-" + id,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestTimelineDeduplicatesByID(t *testing.T) {
	tl := chatclient.NewTimeline()
	now := time.Now()

	tl.Add(msg("m1", now))
	tl.Add(msg("m1", now))
	assert.Equal(t, 1, tl.Len())
}

func TestTimelineOrdersByCreatedAtThenID(t *testing.T) {
	tl := chatclient.NewTimeline()
	base := time.Now()

	// Arrival order deliberately scrambled.
	tl.Add(msg("m3", base.Add(2*time.Second)))
	tl.Add(msg("m1", base))
	tl.Add(msg("m2", base.Add(time.Second)))
	// Same timestamp as m2; id breaks the tie.
	twin := msg("m2a", base.Add(time.Second))
	tl.Add(twin)

	got := tl.Messages()
	require.Len(t, got, 4)
	assert.Equal(t, []string{"m1", "m2", "m2a", "m3"},
		[]string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestTimelineLastWriteWins(t *testing.T) {
	tl := chatclient.NewTimeline()
	base := time.Now()

	original := msg("m1", base)
	tl.Add(original)

	newer := msg("m1", base)
	newer.Content = "edited"
	newer.Edited = true
	newer.UpdatedAt = base.Add(time.Second)
	tl.ApplyUpdate(newer)

	// A stale edit arriving late must not clobber the newer one.
	stale := msg("m1", base)
	stale.Content = "stale"
	stale.UpdatedAt = base.Add(500 * time.Millisecond)
	tl.ApplyUpdate(stale)

	got := tl.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Content)
	assert.True(t, got[0].Edited)
}

func TestTimelineUpdateBeforeOriginal(t *testing.T) {
	tl := chatclient.NewTimeline()
	base := time.Now()

	edit := msg("m1", base)
	edit.Content = "edited"
	edit.UpdatedAt = base.Add(time.Second)
	tl.ApplyUpdate(edit)

	// The backfilled original arrives afterwards and must not regress
	// the content.
	tl.Add(msg("m1", base))

	got := tl.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Content)
}

func TestTimelineDeleteTombstones(t *testing.T) {
	tl := chatclient.NewTimeline()
	base := time.Now()

	tl.Add(msg("m1", base))
	tl.ApplyDelete("m1")
	assert.Zero(t, tl.Len())

	// A late copy of the deleted message must not resurrect it.
	tl.Add(msg("m1", base))
	assert.Zero(t, tl.Len())

	// Deleting an id never seen is fine and still tombstones it.
	tl.ApplyDelete("m2")
	tl.Add(msg("m2", base))
	assert.Zero(t, tl.Len())
}

func TestTimelineBackfillOverLiveConverges(t *testing.T) {
	base := time.Now()
	live := []*protocol.Message{msg("m2", base.Add(time.Second)), msg("m3", base.Add(2 * time.Second))}
	backfill := []*protocol.Message{msg("m1", base), msg("m2", base.Add(time.Second))}

	a := chatclient.NewTimeline()
	for _, m := range live {
		a.Add(m)
	}
	for _, m := range backfill {
		a.Add(m)
	}

	b := chatclient.NewTimeline()
	for _, m := range backfill {
		b.Add(m)
	}
	for _, m := range live {
		b.Add(m)
	}

	got, want := a.Messages(), b.Messages()
	require.Equal(t, len(want), len(got))
	for i := range got {
		assert.Equal(t, want[i].ID, got[i].ID)
	}
}
