package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nzlov/roomsync/chat"
)

// Messages stores chat rows, chat membership and read markers.
type Messages struct {
	db   *gorm.DB
	feed *Feed
	now  func() time.Time
}

func NewMessages(db *gorm.DB, feed *Feed) *Messages {
	return &Messages{db: db, feed: feed, now: func() time.Time { return time.Now().UTC() }}
}

// CreateChat creates a chat with the given participants. Chats of more than
// two users are group chats named GeneralChatName.
func (s *Messages) CreateChat(ctx context.Context, userIDs []string) (string, error) {
	c := Chat{ID: uuid.NewString(), Type: "private", CreatedAt: s.now()}
	if len(userIDs) > 2 {
		c.Type = "group"
		c.Name = GeneralChatName
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		for _, u := range userIDs {
			if err := tx.Create(&ChatParticipant{ChatID: c.ID, UserID: u}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return c.ID, nil
}

func (s *Messages) ChatName(ctx context.Context, chatID string) (string, error) {
	var c Chat
	if err := s.db.WithContext(ctx).Select("name").First(&c, "id = ?", chatID).Error; err != nil {
		return "", notFound(err, "chat name")
	}
	return c.Name, nil
}

func (s *Messages) InsertMessage(ctx context.Context, d chat.Draft) (chat.Message, error) {
	m := fromChat(chat.Message{
		ID:        uuid.NewString(),
		ChatID:    d.ChatID,
		SenderID:  d.SenderID,
		Text:      d.Text,
		File:      d.File,
		ReplyTo:   d.ReplyTo,
		CreatedAt: s.now(),
	})
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	out := m.toChat()
	s.announce(ctx, chat.ChangeInsert, out)
	return out, nil
}

// UpdateMessageText edits a message body and flags it as edited.
func (s *Messages) UpdateMessageText(ctx context.Context, id, text string) (chat.Message, error) {
	var m Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		m.Text = text
		m.IsEdit = true
		return tx.Model(&m).Updates(map[string]interface{}{"text": text, "is_edit": true}).Error
	})
	if err != nil {
		return chat.Message{}, notFound(err, "update message")
	}
	out := m.toChat()
	s.announce(ctx, chat.ChangeUpdate, out)
	return out, nil
}

func (s *Messages) DeleteMessage(ctx context.Context, id string) error {
	var m Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&m).Error
	})
	if err != nil {
		return notFound(err, "delete message")
	}
	s.announce(ctx, chat.ChangeDelete, m.toChat())
	return nil
}

// ListMessages returns up to limit messages of a chat, newest first.
func (s *Messages) ListMessages(ctx context.Context, chatID string, offset, limit int) ([]chat.Message, error) {
	rows := []Message{}
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toChat())
	}
	return out, nil
}

// UnreadCounts counts, for every chat the user participates in, the messages
// from other senders created after the user's read marker.
func (s *Messages) UnreadCounts(ctx context.Context, userID string) ([]chat.UnreadCount, error) {
	db := s.db.WithContext(ctx)
	parts := []ChatParticipant{}
	if err := db.Where("user_id = ?", userID).Order("chat_id").Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	out := make([]chat.UnreadCount, 0, len(parts))
	for _, p := range parts {
		q := db.Model(new(Message)).Where("chat_id = ? and send_by <> ?", p.ChatID, userID)
		if p.LastReadMessageID != "" {
			var marker Message
			err := db.Select("created_at").First(&marker, "id = ?", p.LastReadMessageID).Error
			switch {
			case err == nil:
				q = q.Where("created_at > ?", marker.CreatedAt)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return nil, fmt.Errorf("unread counts: read marker: %w", err)
			}
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("unread counts: %w", err)
		}
		out = append(out, chat.UnreadCount{ChatID: p.ChatID, Count: int(n)})
	}
	return out, nil
}

func (s *Messages) ReadMarker(ctx context.Context, chatID, userID string) (string, error) {
	var p ChatParticipant
	if err := s.db.WithContext(ctx).First(&p, "chat_id = ? and user_id = ?", chatID, userID).Error; err != nil {
		return "", notFound(err, "read marker")
	}
	return p.LastReadMessageID, nil
}

func (s *Messages) SetReadMarker(ctx context.Context, chatID, userID, messageID string) error {
	res := s.db.WithContext(ctx).Model(new(ChatParticipant)).
		Where("chat_id = ? and user_id = ?", chatID, userID).
		Update("last_read_message_id", messageID)
	if res.Error != nil {
		return fmt.Errorf("set read marker: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set read marker: %w", ErrNotFound)
	}
	return nil
}

func (s *Messages) announce(ctx context.Context, t chat.ChangeType, m chat.Message) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, chat.Change{Type: t, Message: m}); err != nil {
		zap.S().With("method", "announce").Errorw("publish change", "type", t, "id", m.ID, "err", err)
	}
}
