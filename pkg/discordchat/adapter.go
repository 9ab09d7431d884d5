// Package discordchat implements chatplatform.Platform over
// github.com/bwmarrin/discordgo.
package discordchat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/chatplatform"
	"github.com/sipeed/boxbot/pkg/logger"
)

// Adapter wraps a discordgo.Session to satisfy chatplatform.Platform.
type Adapter struct {
	session *discordgo.Session
}

// New opens a Discord session authenticated with token ("Bot <token>").
func New(token string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.Transport, "create discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent | discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, boxerr.Wrap(boxerr.Forbidden, "open discord gateway connection", err)
	}
	return &Adapter{session: session}, nil
}

// Close releases the underlying gateway connection.
func (a *Adapter) Close() error {
	return a.session.Close()
}

// ListServers pages through every guild the bot account belongs to via
// discordgo's UserGuilds REST call, cursoring on the last guild id seen
// until a short page ends the walk.
func (a *Adapter) ListServers(ctx context.Context) ([]chatdata.ServerID, error) {
	const pageSize = 200
	var out []chatdata.ServerID
	afterID := ""

	for {
		guilds, err := a.session.UserGuilds(pageSize, "", afterID, false, discordgo.WithContext(ctx))
		if err != nil {
			return out, classifyErr("list guilds", err)
		}
		if len(guilds) == 0 {
			break
		}
		for _, g := range guilds {
			out = append(out, chatdata.ServerID(g.ID))
		}
		afterID = guilds[len(guilds)-1].ID
		if len(guilds) < pageSize {
			break
		}
	}
	return out, nil
}

func (a *Adapter) ListChannels(ctx context.Context, server chatdata.ServerID) ([]chatplatform.ChannelInfo, error) {
	channels, err := a.session.GuildChannels(string(server), discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyErr("list channels", err)
	}

	out := make([]chatplatform.ChannelInfo, 0, len(channels))
	for _, c := range channels {
		if c.Type != discordgo.ChannelTypeGuildText && c.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		out = append(out, chatplatform.ChannelInfo{
			ID: chatdata.ChannelID(c.ID),
			ServerID: server,
			Name: c.Name,
			Type: channelTypeName(c.Type),
		})
	}
	return out, nil
}

func (a *Adapter) FetchMessages(ctx context.Context, channel chatdata.ChannelID, limit int, after *time.Time) ([]chatdata.RawMessage, error) {
	var afterID string
	if after != nil {
		afterID = snowflakeForTime(*after)
	}

	const pageSize = 100
	var all []chatdata.RawMessage
	beforeID := ""

	for len(all) < limit {
		want := pageSize
		if remaining := limit - len(all); remaining < want {
			want = remaining
		}

		msgs, err := a.session.ChannelMessages(string(channel), want, "", afterID, "", discordgo.WithContext(ctx))
		if err != nil {
			return all, classifyErr("fetch messages", err)
		}
		if len(msgs) == 0 {
			break
		}

		// discordgo returns newest-first; the ingestion engine wants
		// oldest-first pagination per channel.
		for i := len(msgs) - 1; i >= 0; i-- {
			all = append(all, toRawMessage(msgs[i]))
		}
		beforeID = msgs[len(msgs)-1].ID

		if len(msgs) < want {
			break
		}
	}

	return all, nil
}

func (a *Adapter) SubscribeEvents(ctx context.Context, handler func(chatdata.RawMessage)) error {
	remove := a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		handler(toRawMessage(m.Message))
	})
	<-ctx.Done()
	remove()
	return nil
}

func (a *Adapter) SendMessage(ctx context.Context, channel chatdata.ChannelID, text string) (chatplatform.StatusHandle, error) {
	msg, err := a.session.ChannelMessageSend(string(channel), text, discordgo.WithContext(ctx))
	if err != nil {
		return chatplatform.StatusHandle{}, classifyErr("send message", err)
	}
	return chatplatform.StatusHandle{Channel: channel, Opaque: msg.ID}, nil
}

func (a *Adapter) EditMessage(ctx context.Context, handle chatplatform.StatusHandle, text string) error {
	_, err := a.session.ChannelMessageEdit(string(handle.Channel), handle.Opaque, text, discordgo.WithContext(ctx))
	if err != nil {
		return classifyErr("edit message", err)
	}
	return nil
}

func toRawMessage(m *discordgo.Message) chatdata.RawMessage {
	raw := chatdata.RawMessage{
		ID: chatdata.MessageID(m.ID),
		Content: m.Content,
		Author: chatdata.Author{
			ID: chatdata.UserID(authorID(m)),
			Username: authorUsername(m),
			GlobalDisplayName: authorGlobalName(m),
		},
		Channel: chatdata.Channel{
			ID: chatdata.ChannelID(m.ChannelID),
		},
		CreatedAtRaw: m.Timestamp.Format(time.RFC3339Nano),
		CreatedAt: m.Timestamp,
		HasEmbed: len(m.Embeds) > 0,
		Pinned: m.Pinned,
	}
	if m.Member != nil {
		raw.Author.ServerNickname = m.Member.Nick
	}
	if m.EditedTimestamp != nil {
		edited := *m.EditedTimestamp
		raw.EditedAt = &edited
	}
	if m.MessageReference != nil {
		raw.ReplyParentID = chatdata.MessageID(m.MessageReference.MessageID)
	}
	if m.GuildID != "" {
		raw.Server = &chatdata.Server{ID: chatdata.ServerID(m.GuildID)}
	}
	for _, att := range m.Attachments {
		raw.Attachments = append(raw.Attachments, chatdata.Attachment{
			URL: att.URL,
			Filename: att.Filename,
			ContentType: att.ContentType,
		})
	}
	return raw
}

func authorID(m *discordgo.Message) string {
	if m.Author != nil {
		return m.Author.ID
	}
	return ""
}

func authorUsername(m *discordgo.Message) string {
	if m.Author != nil {
		return m.Author.Username
	}
	return ""
}

func authorGlobalName(m *discordgo.Message) string {
	if m.Author != nil {
		return m.Author.GlobalName
	}
	return ""
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeDM:
		return "dm"
	default:
		return "unknown"
	}
}

// snowflakeForTime converts a timestamp into a Discord snowflake usable as
// the `after` cursor for ChannelMessages (Discord epoch = 2015-01-01).
var discordEpochMs int64 = 1420070400000

func snowflakeForTime(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMs
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

func classifyErr(op string, err error) error {
	if rerr, ok := err.(*discordgo.RESTError); ok && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case 429:
			retryAfter := 0 * time.Second
			if rerr.RateLimit != nil {
				retryAfter = time.Duration(rerr.RateLimit.RetryAfter * float64(time.Second))
			}
			return boxerr.WrapRateLimited(op, retryAfter, err)
		case 403:
			return boxerr.Wrap(boxerr.Forbidden, op, err)
		case 404:
			return boxerr.Wrap(boxerr.NotFound, op, err)
		}
	}
	logger.WarnCF("discordchat", fmt.Sprintf("%s failed", op), map[string]interface{}{"error": err.Error()})
	return boxerr.Wrap(boxerr.Transport, op, err)
}
