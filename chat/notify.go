package chat

import (
	"strings"

	"go.uber.org/zap"
)

// GeneralChatName is the stored name of the workspace-wide chat.
const GeneralChatName = "Group Chat"

// Opener opens (or focuses) a tab. An Opener that also implements
// interface{ Focus() } is focused after a notification click.
type Opener interface {
	Open(title, id, chatID string)
}

type Notifier interface {
	Notify(n Notification)
}

// Notification announces a message in a chat the user is not looking at.
type Notification struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	ChatID  string `json:"chat_id"`
	General bool   `json:"general"`

	opener Opener
}

// Target is the tab a click on n opens.
func (n Notification) Target() (title, id string) {
	if n.General {
		return "General", "/livechat"
	}
	return n.Title, n.Title
}

// Click routes to the notification's chat.
func (n Notification) Click() {
	if n.opener == nil {
		return
	}
	title, id := n.Target()
	n.opener.Open(title, id, n.ChatID)
	if f, ok := n.opener.(interface{ Focus() }); ok {
		f.Focus()
	}
}

// DisplayName is the local part of an email, or "Unknown".
func DisplayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	if name == "" {
		return "Unknown"
	}
	return name
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (l LogNotifier) Notify(n Notification) {
	log := l.Log
	if log == nil {
		log = zap.S()
	}
	log.Infow("notification", "title", n.Title, "body", n.Body, "chat", n.ChatID, "general", n.General)
}
