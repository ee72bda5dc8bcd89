package chat

import "strings"

// Member is a chat participant that can be mentioned.
type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Mention struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MentionQuery returns the text typed after the last '@', if any.
func MentionQuery(text string) (string, bool) {
	i := strings.LastIndex(text, "@")
	if i < 0 {
		return "", false
	}
	return text[i+1:], true
}

// MentionCandidates lists members whose username starts with the current
// mention query, case-insensitively. An empty query matches everyone.
func MentionCandidates(text string, members []Member) []Mention {
	q, ok := MentionQuery(text)
	if !ok {
		return nil
	}
	q = strings.ToLower(q)
	var out []Mention
	for _, m := range members {
		name, _, _ := strings.Cut(m.Email, "@")
		if strings.HasPrefix(strings.ToLower(name), q) {
			out = append(out, Mention{ID: m.ID, Name: name})
		}
	}
	return out
}

// CompleteMention replaces the current mention query with username.
func CompleteMention(text, username string) string {
	q, ok := MentionQuery(text)
	if !ok {
		return text
	}
	i := strings.LastIndex(text, "@")
	return text[:i+1] + username + " " + text[i+1+len(q):]
}
