package chatdata

import "time"

// Author describes the sender of a RawMessage.
type Author struct {
	ID UserID
	Username string
	DisplayName string
	ServerNickname string
	GlobalDisplayName string
	Bot bool
}

// Channel describes the channel a RawMessage was posted in.
type Channel struct {
	ID ChannelID
	Name string
	Type string
	Category string
	Position int
}

// Server describes the guild a RawMessage belongs to. Absent (nil) for
// direct messages.
type Server struct {
	ID ServerID
	Name string
	MemberCount int
}

// Attachment describes a single file attached to a message.
type Attachment struct {
	URL string
	Filename string
	ContentType string
}

// RawMessage is the chat-platform boundary's message shape, before
// normalization.
type RawMessage struct {
	ID MessageID
	Content string
	Author Author
	Channel Channel
	Server *Server // nil for direct messages
	CreatedAt time.Time
	CreatedAtRaw string // original platform timestamp string, for diagnostics on parse failure
	EditedAt *time.Time
	ReplyParentID MessageID // empty if not a reply
	Attachments []Attachment
	HasEmbed bool
	Pinned bool
}

// IsDirectMessage reports whether this message was sent outside any server.
func (m RawMessage) IsDirectMessage() bool {
	return m.Server == nil
}

// HasText reports whether the message carries non-empty text content.
func (m RawMessage) HasText() bool {
	return m.Content != ""
}

// HasImages reports whether any attachment looks like an image by content type.
func (m RawMessage) HasImages() bool {
	for _, a := range m.Attachments {
		if isImageContentType(a.ContentType) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the message has no text and no attachments —
// the pipeline skips such messages.
func (m RawMessage) IsEmpty() bool {
	return !m.HasText() && len(m.Attachments) == 0
}

func isImageContentType(ct string) bool {
	switch ct {
	case "image/jpeg", "image/png", "image/gif", "image/bmp", "image/webp":
		return true
	default:
		return false
	}
}
