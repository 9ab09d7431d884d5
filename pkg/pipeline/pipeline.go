// Package pipeline implements the Processing Pipeline: the
// Ingestion Engine hands it batches of RawMessage, grouped by server, and
// it normalizes, enriches (URL summaries, image descriptions), builds the
// document+metadata pair, and upserts into the Vector Store Facade —
// applying each server's configured on-failure policy along the way.
package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/extract"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/normalize"
	"github.com/sipeed/boxbot/pkg/serverconfig"
	"github.com/sipeed/boxbot/pkg/vectorstore"
	"github.com/sipeed/boxbot/pkg/vision"
)

// Result summarizes one Process call. The Ingestion Engine does not read
// it: it advances its resumption checkpoint from its own fetch counts.
type Result struct {
	Indexed int
	Skipped int
	Stopped []chatdata.ServerID // servers whose Stop policy halted this batch
}

// Pipeline wires normalization, enrichment, and vector indexing together.
type Pipeline struct {
	configs *serverconfig.Store
	vectors *vectorstore.Store
	extractor *extract.Extractor
	describer *vision.Describer
	defaultEmbeddingModel string
}

func New(configs *serverconfig.Store, vectors *vectorstore.Store, extractor *extract.Extractor, describer *vision.Describer, defaultEmbeddingModel string) *Pipeline {
	return &Pipeline{
		configs: configs,
		vectors: vectors,
		extractor: extractor,
		describer: describer,
		defaultEmbeddingModel: defaultEmbeddingModel,
	}
}

// Process normalizes and indexes a batch of raw messages. Messages are
// grouped by server so each server's on-failure policy applies
// independently.
func (p *Pipeline) Process(ctx context.Context, messages []chatdata.RawMessage) (Result, error) {
	byServer := make(map[chatdata.ServerID][]chatdata.RawMessage)
	for _, m := range messages {
		if m.IsDirectMessage() || m.Server == nil {
			continue // DMs never reach the pipeline 
		}
		byServer[m.Server.ID] = append(byServer[m.Server.ID], m)
	}

	var result Result
	for server, msgs := range byServer {
		cfg, configured, err := p.configs.Get(ctx, server)
		if err != nil {
			return result, err
		}
		if !configured {
			logger.WarnCF("pipeline", "dropping messages for unconfigured server", map[string]interface{}{
				"server": server, "count": len(msgs),
			})
			result.Skipped += len(msgs)
			continue
		}

		stopped := false
		for _, msg := range msgs {
			if stopped {
				result.Skipped++
				continue
			}

			indexed, err := p.processOne(ctx, server, cfg, msg)
			if err != nil {
				logger.WarnCF("pipeline", "failed to process message", map[string]interface{}{
					"server": server, "message_id": msg.ID, "error": err.Error(),
				})
				result.Skipped++
				if cfg.OnFailure == chatdata.PolicyStopPolicy {
					stopped = true
					result.Stopped = append(result.Stopped, server)
				}
				continue
			}
			if indexed {
				result.Indexed++
			}
		}
	}

	return result, nil
}

// processOne enriches and upserts msg, reporting whether anything was
// actually indexed (false with a nil error covers empty messages and
// messages whose document ends up empty after enrichment — both count as
// success, not as a skip).
func (p *Pipeline) processOne(ctx context.Context, server chatdata.ServerID, cfg chatdata.ServerConfig, msg chatdata.RawMessage) (bool, error) {
	if msg.IsEmpty() {
		return false, nil
	}

	norm := normalize.Normalize(msg)
	if !norm.OK {
		return false, boxerr.New(boxerr.Parse, "unparseable timestamp")
	}

	var parts []string
	if msg.HasText() {
		parts = append(parts, msg.Content)
	}

	hasURLs := len(extract.URLs(msg.Content)) > 0
	users, channels := extract.Mentions(msg.Content)
	hasMentions := len(users) > 0 || len(channels) > 0

	if (hasURLs || hasMentions) && p.extractor != nil {
		extracted := p.extractor.Extract(ctx, msg.Content)
		if len(extracted.LinkSummaries) > 0 {
			norm.Metadata["has_link_summaries"] = "true"
			norm.Metadata["urls_found"] = strconv.Itoa(len(extracted.URLs))
			for _, s := range extracted.LinkSummaries {
				parts = append(parts, "Link ("+s.URL+"): "+s.Text)
			}
		}
		if mentionCount := len(extracted.UserMentions) + len(extracted.ChannelMentions); mentionCount > 0 {
			norm.Metadata["mentions_found"] = strconv.Itoa(mentionCount)
		}
	}

	if p.describer != nil {
		for _, att := range msg.Attachments {
			desc, err := p.describer.Describe(ctx, att.URL, att.ContentType)
			if err != nil {
				logger.WarnCF("pipeline", "image description skipped", map[string]interface{}{
					"message_id": msg.ID, "error": err.Error(),
				})
				continue
			}
			parts = append(parts, "Image: "+desc)
		}
	}

	document := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if document == "" {
		return false, nil
	}

	rec := chatdata.ProcessedRecord{
		MessageID: msg.ID,
		ServerID: server,
		ChannelID: msg.Channel.ID,
		AuthorID: msg.Author.ID,
		Document: document,
		Metadata: norm.Metadata,
		Timestamp: norm.Timestamp,
	}

	model := cfg.EmbeddingModelName
	if model == "" {
		model = p.defaultEmbeddingModel
	}
	if err := p.vectors.Upsert(ctx, model, rec); err != nil {
		return false, err
	}
	return true, nil
}
