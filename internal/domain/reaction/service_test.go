package reaction_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/repository/inmemory"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

type fixture struct {
	svc       *reaction.Service
	reactions *inmemory.ReactionRepository
	messageID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	users := inmemory.NewUserRepository()
	for _, name := range []string{"alice", "bob", "mallory"} {
		users.Seed(user.User{ID: name, Username: name})
	}
	roomRepo := inmemory.NewRoomRepository()
	roomSvc, err := room.NewService(roomRepo, users, 64, zerolog.Nop())
	require.NoError(t, err)
	created, err := roomSvc.CreateGroup(ctx, "alice", "general", []string{"bob"})
	require.NoError(t, err)

	msgRepo := inmemory.NewMessageRepository()
	msgSvc := message.NewService(msgRepo, roomRepo, users, 0, zerolog.Nop())
	m, err := msgSvc.Send(ctx, "alice", created.ID, "react to this", nil, nil)
	require.NoError(t, err)

	reactions := inmemory.NewReactionRepository()
	svc := reaction.NewService(reactions, msgRepo, roomRepo, users, zerolog.Nop())
	return &fixture{svc: svc, reactions: reactions, messageID: m.ID}
}

func TestToggleAddsThenRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added, err := f.svc.Toggle(ctx, "bob", f.messageID, "👍")
	require.NoError(t, err)
	assert.True(t, added.Added)
	require.NotNil(t, added.Reaction)
	require.NotNil(t, added.Reaction.User)
	assert.Equal(t, "bob", added.Reaction.User.Username)

	removed, err := f.svc.Toggle(ctx, "bob", f.messageID, "👍")
	require.NoError(t, err)
	assert.False(t, removed.Added)
	assert.Nil(t, removed.Reaction)

	// Two toggles return to the absent state.
	rows, err := f.reactions.ListForMessage(ctx, f.messageID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestToggleIsPerEmoji(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Toggle(ctx, "bob", f.messageID, "👍")
	require.NoError(t, err)
	_, err = f.svc.Toggle(ctx, "bob", f.messageID, "🎉")
	require.NoError(t, err)

	rows, err := f.reactions.ListForMessage(ctx, f.messageID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestToggleDuplicateRaceConvertsToRemoval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate the race: the row appears between the find and the
	// insert. The pre-seeded row makes Create return ErrDuplicate on a
	// state the service observed as absent.
	require.NoError(t, f.reactions.Create(ctx, &reaction.Reaction{
		ID:        "rx_preexisting",
		MessageID: f.messageID,
		UserID:    "bob",
		Emoji:     "👍",
	}))

	// Toggle sees the row as present and removes it.
	result, err := f.svc.Toggle(ctx, "bob", f.messageID, "👍")
	require.NoError(t, err)
	assert.False(t, result.Added)

	rows, err := f.reactions.ListForMessage(ctx, f.messageID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestToggleRequiresMembership(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Toggle(context.Background(), "mallory", f.messageID, "👍")
	require.ErrorIs(t, err, room.ErrNotAMember)
}

func TestToggleValidatesEmoji(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Toggle(ctx, "bob", f.messageID, "  ")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = f.svc.Toggle(ctx, "bob", f.messageID, strings.Repeat("x", 64))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
