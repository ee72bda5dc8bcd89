package store

import (
	"time"

	"github.com/nzlov/roomsync/chat"
)

// GeneralChatName marks the workspace-wide group chat.
const GeneralChatName = chat.GeneralChatName

type Chat struct {
	ID        string `json:"id" gorm:"column:id;primaryKey"`
	Type      string `json:"type" gorm:"column:type"`
	Name      string `json:"name" gorm:"column:name"`
	CreatedAt time.Time
}

type ChatParticipant struct {
	ChatID            string `json:"chat_id" gorm:"column:chat_id;primaryKey"`
	UserID            string `json:"user_id" gorm:"column:user_id;primaryKey;index"`
	LastReadMessageID string `json:"last_read_message_id" gorm:"column:last_read_message_id"`
	UpdatedAt         time.Time
}

type Message struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	ChatID    string    `json:"chat_id" gorm:"column:chat_id;index"`
	SendBy    string    `json:"send_by" gorm:"column:send_by;index"`
	Text      string    `json:"text" gorm:"column:text"`
	FileURL   string    `json:"file_url" gorm:"column:file_url"`
	FileType  string    `json:"file_type" gorm:"column:file_type"`
	ReplyTo   string    `json:"reply_to" gorm:"column:reply_to"`
	IsEdit    bool      `json:"is_edit" gorm:"column:is_edit"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
}

type Doc struct {
	ID            string `json:"id" gorm:"column:id;primaryKey"`
	DocumentTitle string `json:"document_title" gorm:"column:document_title"`
	Content       string `json:"content" gorm:"column:content"`
	Cover         string `json:"cover" gorm:"column:cover"`
	UpdatedAt     time.Time
}

type Blob struct {
	Path        string `gorm:"column:path;primaryKey"`
	Bucket      string `gorm:"column:bucket;index"`
	ContentType string `gorm:"column:content_type"`
	Data        []byte `gorm:"column:data"`
	CreatedAt   time.Time
}

func (m Message) toChat() chat.Message {
	out := chat.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SendBy,
		Text:      m.Text,
		ReplyTo:   m.ReplyTo,
		Edited:    m.IsEdit,
		CreatedAt: m.CreatedAt,
	}
	if m.FileURL != "" {
		out.File = &chat.FileRef{URL: m.FileURL, ContentType: m.FileType}
	}
	return out
}

func fromChat(m chat.Message) Message {
	out := Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SendBy:    m.SenderID,
		Text:      m.Text,
		ReplyTo:   m.ReplyTo,
		IsEdit:    m.Edited,
		CreatedAt: m.CreatedAt,
	}
	if m.File != nil {
		out.FileURL = m.File.URL
		out.FileType = m.File.ContentType
	}
	return out
}
