// Package chatplatform defines the contract the ingestion engine consumes
// from the chat-platform SDK. The SDK itself — message
// fetch, gateway events, channel create/delete, voice I/O — is out of
// scope; this package only fixes the boundary shape so the
// core can be built and tested against a stub.
package chatplatform

import (
	"context"
	"time"

	"github.com/sipeed/boxbot/pkg/chatdata"
)

// ChannelInfo is the minimal shape the ingestion engine needs to decide
// whether and how to fetch a channel.
type ChannelInfo struct {
	ID chatdata.ChannelID
	ServerID chatdata.ServerID
	Name string
	Type string
}

// StatusHandle is returned by SendMessage so the worker can later edit it
// via EditMessage.
type StatusHandle struct {
	Channel chatdata.ChannelID
	Opaque string // platform-specific message id
}

// EditableHandle adapts a Platform + StatusHandle pair into the
// chatdata.StatusHandle interface the Conversation Queue stores, so the
// Queue Worker can edit a status message without importing chatplatform.
type EditableHandle struct {
	Platform Platform
	Handle StatusHandle
}

func (h EditableHandle) Edit(text string) error {
	return h.Platform.EditMessage(context.Background(), h.Handle, text)
}

// Platform is the chat-platform boundary consumed by the Ingestion Engine,
// the Queue Worker (sending/editing status), and the bootstrap command
// surface.
type Platform interface {
	// ListServers reports every server (guild) the platform account
	// currently belongs to, so bootstrap can cold-start each one.
	ListServers(ctx context.Context) ([]chatdata.ServerID, error)

	ListChannels(ctx context.Context, server chatdata.ServerID) ([]ChannelInfo, error)

	// FetchMessages paginates oldest-first, up to limit messages. If after
	// is non-nil, only messages newer than *after are returned.
	FetchMessages(ctx context.Context, channel chatdata.ChannelID, limit int, after *time.Time) ([]chatdata.RawMessage, error)

	// SubscribeEvents delivers every inbound message (server + direct) to
	// handler until ctx is done.
	SubscribeEvents(ctx context.Context, handler func(chatdata.RawMessage)) error

	SendMessage(ctx context.Context, channel chatdata.ChannelID, text string) (StatusHandle, error)
	EditMessage(ctx context.Context, handle StatusHandle, text string) error
}
