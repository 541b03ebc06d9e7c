package message_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/repository/inmemory"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

type fixture struct {
	svc    *message.Service
	rooms  *room.Service
	roomID string
}

// newFixture seeds alice (admin), bob and carol in one group room;
// mallory exists but is not a member.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := inmemory.NewUserRepository()
	for _, name := range []string{"alice", "bob", "carol", "mallory"} {
		users.Seed(user.User{ID: name, Username: name})
	}
	roomRepo := inmemory.NewRoomRepository()
	roomSvc, err := room.NewService(roomRepo, users, 64, zerolog.Nop())
	require.NoError(t, err)

	created, err := roomSvc.CreateGroup(context.Background(), "alice", "general", []string{"bob", "carol"})
	require.NoError(t, err)

	svc := message.NewService(inmemory.NewMessageRepository(), roomRepo, users, 0, zerolog.Nop())
	return &fixture{svc: svc, rooms: roomSvc, roomID: created.ID}
}

func TestSendPersistsAndHydrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "bob", f.roomID, "hello", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "bob", m.UserID)
	require.NotNil(t, m.Author)
	assert.Equal(t, "bob", m.Author.Username)
}

func TestSendRejectsEmptyContent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), "bob", f.roomID, "   \n", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSendAllowsAttachmentOnlyMessage(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.Send(context.Background(), "bob", f.roomID, "", nil, []message.AttachmentInput{
		{FilePath: "uploads/cat.png", FileType: "image/png", FileName: "cat.png", FileSize: 1024},
	})
	require.NoError(t, err)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, m.ID, m.Attachments[0].MessageID)
}

func TestSendRequiresMembership(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), "mallory", f.roomID, "hi", nil, nil)
	require.ErrorIs(t, err, room.ErrNotAMember)
}

func TestSendRejectsCrossRoomParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.rooms.CreateGroup(ctx, "alice", "side-channel", []string{"bob"})
	require.NoError(t, err)
	parent, err := f.svc.Send(ctx, "bob", other.ID, "root", nil, nil)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, "bob", f.roomID, "reply", &parent.ID, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "bob", f.roomID, "draft", nil, nil)
	require.NoError(t, err)

	// A plain member who is not the author cannot edit.
	_, err = f.svc.Update(ctx, "carol", m.ID, "hijacked")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	// The author can.
	edited, err := f.svc.Update(ctx, "bob", m.ID, "final")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.UpdatedAt.After(m.CreatedAt) || edited.UpdatedAt.Equal(m.CreatedAt))

	// So can the room admin.
	_, err = f.svc.Update(ctx, "alice", m.ID, "moderated")
	require.NoError(t, err)
}

func TestDeleteReturnsRoomID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Send(ctx, "bob", f.roomID, "oops", nil, nil)
	require.NoError(t, err)

	roomID, err := f.svc.Delete(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Equal(t, f.roomID, roomID)

	_, err = f.svc.Delete(ctx, "bob", m.ID)
	require.ErrorIs(t, err, message.ErrNotFound)
}

func TestListAfterOrdersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three", "four"} {
		m, err := f.svc.Send(ctx, "bob", f.roomID, text, nil, nil)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	all, err := f.svc.ListAfter(ctx, "carol", f.roomID, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID, "backfill must preserve send order")
		require.NotNil(t, m.Author)
	}

	tail, err := f.svc.ListAfter(ctx, "carol", f.roomID, ids[1], 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, ids[2], tail[0].ID)
	assert.Equal(t, ids[3], tail[1].ID)

	_, err = f.svc.ListAfter(ctx, "mallory", f.roomID, "", 10)
	require.ErrorIs(t, err, room.ErrNotAMember)
}

func TestListAfterDefaultsNonPositiveLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		_, err := f.svc.Send(ctx, "bob", f.roomID, text, nil, nil)
		require.NoError(t, err)
	}

	// A zero or negative limit must page with the default, not return
	// an empty slice.
	for _, limit := range []int{0, -1} {
		msgs, err := f.svc.ListAfter(ctx, "carol", f.roomID, "", limit)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	}
}
