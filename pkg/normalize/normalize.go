// Package normalize implements the Metadata Normalizer: a
// pure function mapping a RawMessage to its canonical metadata map.
package normalize

import (
	"time"

	"github.com/sipeed/boxbot/pkg/chatdata"
)

// Result is the outcome of normalizing one RawMessage.
type Result struct {
	Metadata map[string]string
	Timestamp time.Time
	OK bool // false when the message was dropped (unparseable timestamp)
}

// Normalize maps a RawMessage to its canonical metadata map. Direct
// messages never reach this function — they bypass indexing entirely.
func Normalize(msg chatdata.RawMessage) Result {
	ts, ok := parseTimestamp(msg)
	if !ok {
		return Result{OK: false}
	}

	meta := map[string]string{
		"message_id": string(msg.ID),
		"author_id": string(msg.Author.ID),
		"channel_id": string(msg.Channel.ID),
		"timestamp": ts.UTC().Format(time.RFC3339),
	}

	meta["display_name"] = friendlyName(msg.Author)

	meta["channel_name"] = msg.Channel.Name

	if msg.Server != nil {
		meta["server_id"] = string(msg.Server.ID)
		meta["server_name"] = msg.Server.Name
	}

	return Result{Metadata: meta, Timestamp: ts, OK: true}
}

// friendlyName resolves the display name priority order:
// display-name > global-name > nickname > username > "Unknown".
func friendlyName(a chatdata.Author) string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.GlobalDisplayName != "":
		return a.GlobalDisplayName
	case a.ServerNickname != "":
		return a.ServerNickname
	case a.Username != "":
		return a.Username
	default:
		return "Unknown"
	}
}

// parseTimestamp tries RFC3339 first (the platform's native format), then
// a couple of common fallbacks for timestamps that carry a timezone but
// aren't strictly RFC3339.
func parseTimestamp(msg chatdata.RawMessage) (time.Time, bool) {
	if !msg.CreatedAt.IsZero() {
		return msg.CreatedAt, true
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999-07:00",
		"2006-01-02T15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, msg.CreatedAtRaw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
