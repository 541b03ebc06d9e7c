package gateway

import (
	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/pkg/protocol"
)

// Domain models never cross the socket directly; these produce the wire
// shapes the protocol package defines.

func wireUser(u user.User) protocol.User {
	return protocol.User{
		ID:        u.ID,
		Username:  u.Username,
		Avatar:    u.Avatar,
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func wireUserRef(u *user.User) *protocol.User {
	if u == nil {
		return nil
	}
	wu := wireUser(*u)
	return &wu
}

func wireMessage(m *message.Message) protocol.Message {
	out := protocol.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		ParentID:  m.ParentID,
		Edited:    m.Edited,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Author:    wireUserRef(m.Author),
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, protocol.Attachment{
			ID:        a.ID,
			MessageID: a.MessageID,
			FilePath:  a.FilePath,
			FileType:  a.FileType,
			FileName:  a.FileName,
			FileSize:  a.FileSize,
		})
	}
	return out
}

func wireReaction(r *reaction.Reaction) protocol.Reaction {
	return protocol.Reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
		User:      wireUserRef(r.User),
	}
}

func attachmentInputs(in []protocol.AttachmentInput) []message.AttachmentInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]message.AttachmentInput, 0, len(in))
	for _, a := range in {
		out = append(out, message.AttachmentInput{
			FilePath: a.FilePath,
			FileType: a.FileType,
			FileName: a.FileName,
			FileSize: a.FileSize,
		})
	}
	return out
}
