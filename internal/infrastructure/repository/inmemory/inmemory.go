// Package inmemory provides thread-safe repository implementations
// backed by maps. They honor the same sentinel error contracts as the
// PostgreSQL repositories and back the test suites and local demos.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
)

// UserRepository implements user.Repository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]user.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]user.User)}
}

// Seed inserts or replaces a user.
func (r *UserRepository) Seed(u user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = time.Now()
	r.users[u.ID] = u
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByIDs(_ context.Context, ids []string) (map[string]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*user.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			copied := u
			out[id] = &copied
		}
	}
	return out, nil
}

func (r *UserRepository) List(_ context.Context) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*user.User, 0, len(r.users))
	for _, u := range r.users {
		copied := u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *UserRepository) UpdateStatus(_ context.Context, id string, status user.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

// RoomRepository implements room.Repository.
type RoomRepository struct {
	mu      sync.RWMutex
	rooms   map[string]room.Room
	members map[string]map[string]room.Member // roomID -> userID -> member
	byKey   map[string]string                 // direct key -> roomID
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms:   make(map[string]room.Room),
		members: make(map[string]map[string]room.Member),
		byKey:   make(map[string]string),
	}
}

func (r *RoomRepository) Create(_ context.Context, rm *room.Room, members []room.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm.DirectKey != nil {
		if _, taken := r.byKey[*rm.DirectKey]; taken {
			return room.ErrDirectKeyConflict
		}
		r.byKey[*rm.DirectKey] = rm.ID
	}
	now := time.Now()
	stored := *rm
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.rooms[rm.ID] = stored
	r.members[rm.ID] = make(map[string]room.Member, len(members))
	for _, m := range members {
		if m.JoinedAt.IsZero() {
			m.JoinedAt = now
		}
		r.members[rm.ID][m.UserID] = m
	}
	return nil
}

func (r *RoomRepository) GetByID(_ context.Context, id string) (*room.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return &rm, nil
}

func (r *RoomRepository) Update(_ context.Context, rm *room.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rooms[rm.ID]
	if !ok {
		return room.ErrNotFound
	}
	stored.Name = rm.Name
	stored.LastActivityAt = rm.LastActivityAt
	stored.LastMessage = rm.LastMessage
	stored.UpdatedAt = time.Now()
	r.rooms[rm.ID] = stored
	return nil
}

func (r *RoomRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[id]; ok && rm.DirectKey != nil {
		delete(r.byKey, *rm.DirectKey)
	}
	delete(r.rooms, id)
	delete(r.members, id)
	return nil
}

func (r *RoomRepository) ListForUser(_ context.Context, userID string) ([]*room.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*room.Room
	for roomID, members := range r.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		rm := r.rooms[roomID]
		copied := rm
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (r *RoomRepository) FindDirectByMember(_ context.Context, userID string) ([]*room.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*room.Room
	for roomID, members := range r.members {
		rm := r.rooms[roomID]
		if !rm.IsDirect {
			continue
		}
		if _, ok := members[userID]; !ok {
			continue
		}
		copied := rm
		out = append(out, &copied)
	}
	return out, nil
}

func (r *RoomRepository) MemberIDs(_ context.Context, roomID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[roomID]
	if !ok {
		return nil, room.ErrNotFound
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *RoomRepository) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[roomID]
	if !ok {
		return false, nil
	}
	_, isMember := members[userID]
	return isMember, nil
}

func (r *RoomRepository) RoleOf(_ context.Context, roomID, userID string) (room.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[roomID]
	if !ok {
		return "", room.ErrNotAMember
	}
	m, isMember := members[userID]
	if !isMember {
		return "", room.ErrNotAMember
	}
	return m.Role, nil
}

func (r *RoomRepository) AddMember(_ context.Context, m room.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.members[m.RoomID]
	if !ok {
		return room.ErrNotFound
	}
	if _, exists := members[m.UserID]; exists {
		return nil
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	members[m.UserID] = m
	return nil
}

func (r *RoomRepository) RemoveMember(_ context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.members[roomID]; ok {
		delete(members, userID)
	}
	return nil
}

func (r *RoomRepository) TouchActivity(_ context.Context, roomID, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return room.ErrNotFound
	}
	rm.LastActivityAt = at
	rm.LastMessage = preview
	r.rooms[roomID] = rm
	return nil
}

// MessageRepository implements message.Repository.
type MessageRepository struct {
	mu          sync.RWMutex
	messages    map[string]message.Message
	attachments map[string][]message.Attachment
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages:    make(map[string]message.Message),
		attachments: make(map[string][]message.Attachment),
	}
}

func (r *MessageRepository) Create(_ context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *m
	stored.Author = nil
	stored.Attachments = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		m.CreatedAt = stored.CreatedAt
	}
	stored.UpdatedAt = stored.CreatedAt
	m.UpdatedAt = stored.UpdatedAt
	r.messages[m.ID] = stored
	return nil
}

func (r *MessageRepository) CreateAttachments(_ context.Context, attachments []message.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range attachments {
		r.attachments[a.MessageID] = append(r.attachments[a.MessageID], a)
	}
	return nil
}

func (r *MessageRepository) GetByID(_ context.Context, id string) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	m.Attachments = append([]message.Attachment(nil), r.attachments[id]...)
	return &m, nil
}

func (r *MessageRepository) Update(_ context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[m.ID]
	if !ok {
		return message.ErrNotFound
	}
	stored.Content = m.Content
	stored.Edited = m.Edited
	stored.UpdatedAt = m.UpdatedAt
	r.messages[m.ID] = stored
	return nil
}

func (r *MessageRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	delete(r.attachments, id)
	return nil
}

func (r *MessageRepository) ListAfter(_ context.Context, roomID, afterID string, limit int) ([]*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*message.Message
	for _, m := range r.messages {
		if m.RoomID != roomID {
			continue
		}
		if afterID != "" && m.ID <= afterID {
			continue
		}
		copied := m
		copied.Attachments = append([]message.Attachment(nil), r.attachments[m.ID]...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ReactionRepository implements reaction.Repository.
type ReactionRepository struct {
	mu        sync.Mutex
	reactions map[string]reaction.Reaction // "msg|user|emoji" -> row
}

func NewReactionRepository() *ReactionRepository {
	return &ReactionRepository{reactions: make(map[string]reaction.Reaction)}
}

func reactionKey(messageID, userID, emoji string) string {
	return messageID + "|" + userID + "|" + emoji
}

func (r *ReactionRepository) Find(_ context.Context, messageID, userID, emoji string) (*reaction.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.reactions[reactionKey(messageID, userID, emoji)]
	if !ok {
		return nil, reaction.ErrNotFound
	}
	return &row, nil
}

func (r *ReactionRepository) Create(_ context.Context, row *reaction.Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reactionKey(row.MessageID, row.UserID, row.Emoji)
	if _, exists := r.reactions[key]; exists {
		return reaction.ErrDuplicate
	}
	stored := *row
	stored.User = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
		row.CreatedAt = stored.CreatedAt
	}
	r.reactions[key] = stored
	return nil
}

func (r *ReactionRepository) Delete(_ context.Context, messageID, userID, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reactionKey(messageID, userID, emoji)
	if _, exists := r.reactions[key]; !exists {
		return reaction.ErrNotFound
	}
	delete(r.reactions, key)
	return nil
}

func (r *ReactionRepository) ListForMessage(_ context.Context, messageID string) ([]*reaction.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reaction.Reaction
	for _, row := range r.reactions {
		if row.MessageID != messageID {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
