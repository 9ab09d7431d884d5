// Package chatdata holds the wire-level data model shared by every
// ingestion and conversation component: identifiers, raw messages from the
// chat platform, and the normalized records the pipeline stores.
package chatdata

// ServerID, ChannelID, UserID and MessageID are opaque stable identifiers
// from the chat platform. They are compared by equality only — never
// parsed or ordered.
type ServerID string
type ChannelID string
type UserID string
type MessageID string
