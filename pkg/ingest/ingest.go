// Package ingest implements the Ingestion Engine: walks
// every channel of every server the platform reports, resumes from the
// Resumption Store's checkpoint where possible, and feeds chunks to the
// Processing Pipeline with backpressure so a slow pipeline never lets an
// unbounded backlog of fetched messages pile up in memory.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/chatplatform"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/ratelimit"
	"github.com/sipeed/boxbot/pkg/resume"
)

// Engine drives per-server cold-start and live ingestion. Its downstream
// dependency is a plain process function: hand it a chunk, get back a
// completion signal before fetching the next chunk — usually pipeline.Pipeline.Process adapted to
// discard the richer Result.
type Engine struct {
	platform chatplatform.Platform
	governor *ratelimit.Governor
	resumption *resume.Store
	process func(ctx context.Context, messages []chatdata.RawMessage) error
	messagesPerFetch int
	concurrency int
}

// New builds an Engine. process is called once per fetched chunk and must
// return only after the chunk is durably indexed, since Engine waits for
// it before fetching the next chunk. concurrency bounds how many channels
// ColdStart fetches in parallel through the shared Rate Governor.
func New(platform chatplatform.Platform, governor *ratelimit.Governor, resumption *resume.Store, messagesPerFetch, concurrency int, process func(ctx context.Context, messages []chatdata.RawMessage) error) *Engine {
	if messagesPerFetch <= 0 {
		messagesPerFetch = 1000
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Engine{
		platform: platform,
		governor: governor,
		resumption: resumption,
		process: process,
		messagesPerFetch: messagesPerFetch,
		concurrency: concurrency,
	}
}

// ColdStart walks every channel in server, resuming from the checkpoint
// when one exists and is stale, skipping entirely when the checkpoint is
// fresh.
func (e *Engine) ColdStart(ctx context.Context, server chatdata.ServerID) error {
	status, checkpoint, err := e.resumption.GetStatus(ctx, server)
	if err != nil {
		return err
	}
	if status == resume.StatusUpToDate {
		logger.DebugCF("ingest", "checkpoint fresh, skipping cold start", map[string]interface{}{"server": server})
		return nil
	}

	var after *time.Time
	if status == resume.StatusResumable {
		ts := checkpoint.LastIndexedTimestamp
		after = &ts
	}

	channels, err := e.platform.ListChannels(ctx, server)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		latest time.Time
		total int
	)
	sem := make(chan struct{}, e.concurrency)

	for _, ch := range channels {
		ch := ch
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			n, newest, err := e.fetchChannel(ctx, ch.ID, after)
			if err != nil {
				logger.WarnCF("ingest", "channel fetch failed", map[string]interface{}{
					"server": server, "channel": ch.ID, "error": err.Error(),
				})
				return
			}

			mu.Lock()
			total += n
			if newest.After(latest) {
				latest = newest
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total > 0 {
		if err := e.resumption.Advance(ctx, server, latest, total); err != nil {
			return err
		}
	}

	logger.InfoCF("ingest", "cold start complete", map[string]interface{}{
		"server": server, "indexed": total, "status": status,
	})
	return nil
}

// fetchChannel paginates a channel in chunks of messagesPerFetch, handing
// each chunk to process and waiting for it before fetching the next.
func (e *Engine) fetchChannel(ctx context.Context, channel chatdata.ChannelID, after *time.Time) (int, time.Time, error) {
	var newest time.Time
	total := 0
	cursor := after

	for {
		var msgs []chatdata.RawMessage
		err := e.governor.Execute(ctx, func(ctx context.Context) error {
			var fetchErr error
			msgs, fetchErr = e.platform.FetchMessages(ctx, channel, e.messagesPerFetch, cursor)
			return fetchErr
		})
		if err != nil {
			return total, newest, err
		}
		if len(msgs) == 0 {
			break
		}

		if err := e.process(ctx, msgs); err != nil {
			return total, newest, err
		}

		total += len(msgs)
		last := msgs[len(msgs)-1].CreatedAt
		if last.After(newest) {
			newest = last
		}
		cursor = &last

		if len(msgs) < e.messagesPerFetch {
			break
		}
	}

	return total, newest, nil
}

// StreamLive subscribes to live inbound messages and hands each one to
// process as a single-element chunk; it runs until ctx is done. Direct messages are forwarded to onDirectMessage instead of the
// pipeline, since DMs never get vector-indexed.
func (e *Engine) StreamLive(ctx context.Context, onDirectMessage func(chatdata.RawMessage)) error {
	return e.platform.SubscribeEvents(ctx, func(msg chatdata.RawMessage) {
		if msg.IsDirectMessage() {
			if onDirectMessage != nil {
				onDirectMessage(msg)
			}
			return
		}
		if err := e.process(ctx, []chatdata.RawMessage{msg}); err != nil {
			logger.WarnCF("ingest", "live message processing failed", map[string]interface{}{
				"message_id": msg.ID, "error": err.Error(),
			})
		}
	})
}
