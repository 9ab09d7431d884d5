package chatdata

import "time"

// ProcessedRecord is the canonical unit stored in a server's vector
// collection, one per RawMessage that survives the pipeline.
type ProcessedRecord struct {
	MessageID MessageID
	ServerID ServerID
	ChannelID ChannelID
	AuthorID UserID

	// Document is message text + extraction summaries + image descriptions,
	// separated by blank lines, trimmed.
	Document string

	// Metadata is flattened to string-valued scalar pairs:
	// all id fields, friendly display name, channel name, server name,
	// ISO timestamp, urls_found, has_link_summaries.
	Metadata map[string]string

	Timestamp time.Time
}

// ID is the vector-store id for this record: "msg_" + message id.
// Re-insertion under the same id is idempotent.
func (r ProcessedRecord) ID() string {
	return "msg_" + string(r.MessageID)
}

// IndexCheckpoint is the per-server resumption marker.
type IndexCheckpoint struct {
	ServerID ServerID
	LastIndexedTimestamp time.Time
	RecordCount int
}

// ConversationRole distinguishes a ConversationTurn's speaker.
type ConversationRole string

const (
	RoleUser ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// DirectMessageServerID is the literal server id used for conversation
// turns/requests that occur outside any server.
const DirectMessageServerID ServerID = "0"

// ConversationTurn is a single append-only entry in the Conversation Log.
type ConversationTurn struct {
	UserID UserID
	ServerID ServerID
	Role ConversationRole
	Content string
	CreatedAt time.Time
	Session string // optional session tag
}

// RequestStatus is a ConversationRequest's lifecycle state.
type RequestStatus string

const (
	StatusQueued RequestStatus = "Queued"
	StatusProcessing RequestStatus = "Processing"
	StatusCompleted RequestStatus = "Completed"
	StatusFailed RequestStatus = "Failed"
)

// StatusHandle lets a worker edit a previously-sent progress message.
// Concrete shape depends on the chat platform; opaque to the queue.
type StatusHandle interface {
	Edit(text string) error
}

// ConversationRequest is a single item in the Conversation Queue.
type ConversationRequest struct {
	ID string
	UserID UserID
	ServerID ServerID
	Channel ChannelID
	Text string
	EnqueuedAt time.Time
	Status RequestStatus
	Handle StatusHandle
}

// OnFailurePolicy is a server's pipeline error-handling choice.
type OnFailurePolicy string

const (
	PolicySkip OnFailurePolicy = "skip"
	PolicyStopPolicy OnFailurePolicy = "stop"
)

// ServerConfig is the per-server configuration row.
type ServerConfig struct {
	ServerID ServerID
	OnFailure OnFailurePolicy
	EmbeddingModelName string // empty => use global default
	CreatedAt time.Time
	UpdatedAt time.Time
}
