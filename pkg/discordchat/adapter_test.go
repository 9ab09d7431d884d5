package discordchat

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stretchr/testify/assert"

	"github.com/sipeed/boxbot/pkg/boxerr"
)

func TestSnowflakeForTimeMonotonicWithRealTimestamps(t *testing.T) {
	t.Parallel()

	early := snowflakeForTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := snowflakeForTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	earlyID, err := strconv.ParseInt(early, 10, 64)
	assert.NoError(t, err)
	lateID, err := strconv.ParseInt(late, 10, 64)
	assert.NoError(t, err)
	assert.Less(t, earlyID, lateID)
}

func TestSnowflakeForTimeClampsBeforeDiscordEpoch(t *testing.T) {
	t.Parallel()
	before := snowflakeForTime(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "0", before)
}

func TestChannelTypeName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "text", channelTypeName(discordgo.ChannelTypeGuildText))
	assert.Equal(t, "news", channelTypeName(discordgo.ChannelTypeGuildNews))
	assert.Equal(t, "dm", channelTypeName(discordgo.ChannelTypeDM))
	assert.Equal(t, "unknown", channelTypeName(discordgo.ChannelTypeGuildVoice))
}

func TestClassifyErrFallsBackToTransportForUnknownError(t *testing.T) {
	t.Parallel()
	err := classifyErr("fetch messages", errors.New("connection reset"))
	assert.True(t, boxerr.Is(err, boxerr.Transport))
}

func TestToRawMessageHandlesNilAuthor(t *testing.T) {
	t.Parallel()
	m := &discordgo.Message{
		ID:        "123",
		ChannelID: "456",
		Content:   "hi",
		Timestamp: time.Now(),
	}

	raw := toRawMessage(m)
	assert.Equal(t, "", string(raw.Author.ID))
	assert.Equal(t, "hi", raw.Content)
}

func TestToRawMessageCapturesGuildAndAttachments(t *testing.T) {
	t.Parallel()
	m := &discordgo.Message{
		ID:        "123",
		ChannelID: "456",
		GuildID:   "789",
		Content:   "look at this",
		Timestamp: time.Now(),
		Author:    &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/a.png", Filename: "a.png", ContentType: "image/png"},
		},
	}

	raw := toRawMessage(m)
	assert.NotNil(t, raw.Server)
	assert.Equal(t, "789", string(raw.Server.ID))
	assert.Equal(t, "u1", string(raw.Author.ID))
	assert.Equal(t, "Alice", raw.Author.GlobalDisplayName)
	assert.Len(t, raw.Attachments, 1)
	assert.Equal(t, "image/png", raw.Attachments[0].ContentType)
}
