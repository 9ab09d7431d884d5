// Package extract implements the Extractor: scans a message for URLs,
// fetches each one, and asks the text model for a short summary to fold
// into the processed document. Think-tag stripping and the
// LLM-call-then-log pattern mirror the think-tag handling used elsewhere
// in the codebase; this package has no fact-consolidation or memory-graph
// concerns, only per-URL summarization.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/providers"
	"github.com/sipeed/boxbot/pkg/webfetch"
)

// urlRe finds http(s) URLs in raw message text.
var urlRe = regexp.MustCompile(`https?://[^\s<>\[\]()]+`)

// userMentionRe and channelMentionRe match Discord's mention tokens:
// <@id>/<@!id> for a user, <#id> for a channel.
var userMentionRe = regexp.MustCompile(`<@!?(\d+)>`)
var channelMentionRe = regexp.MustCompile(`<#(\d+)>`)

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// summaryTokenCap bounds the completion length for a single URL summary.
const summaryTokenCap = 600

const fetchTimeout = 10 * time.Second

// Extractor turns URLs mentioned in a message into short summaries.
type Extractor struct {
	provider providers.LLMProvider
	model string
	fetcher webfetch.Fetcher
}

// New builds an Extractor that fetches with fetcher and summarizes with
// the given text provider/model.
func New(provider providers.LLMProvider, model string, fetcher webfetch.Fetcher) *Extractor {
	return &Extractor{provider: provider, model: model, fetcher: fetcher}
}

// Summary is one URL's extracted text, keyed by the URL it came from.
type Summary struct {
	URL string
	Text string
}

// Result is everything the Extractor found in a single message's content.
type Result struct {
	URLs []string
	UserMentions []string
	ChannelMentions []string
	LinkSummaries []Summary
}

// URLs returns every http(s) URL found in content, deduplicated while
// preserving first-occurrence order.
func URLs(content string) []string {
	return dedupe(urlRe.FindAllString(content, -1))
}

// Mentions returns the user and channel ids referenced by content's
// platform mention tokens, deduplicated while preserving first-occurrence
// order.
func Mentions(content string) (users, channels []string) {
	return dedupeSubmatch(userMentionRe, content), dedupeSubmatch(channelMentionRe, content)
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func dedupeSubmatch(re *regexp.Regexp, content string) []string {
	matches := re.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return dedupe(ids)
}

// Extract scans content for URLs and mention tokens, then fetches and
// summarizes every URL found, skipping (logging a warning for) any that
// fail to fetch or summarize — a single bad link never fails the whole
// message.
func (e *Extractor) Extract(ctx context.Context, content string) Result {
	urls := URLs(content)
	users, channels := Mentions(content)

	var summaries []Summary
	for _, u := range urls {
		text, err := e.fetcher.Fetch(ctx, u, fetchTimeout)
		if err != nil {
			logger.WarnCF("extract", "web fetch failed, skipping url", map[string]interface{}{
				"url": u, "error": err.Error(),
			})
			continue
		}

		summary, err := e.summarize(ctx, text)
		if err != nil {
			logger.WarnCF("extract", "summarization failed, skipping url", map[string]interface{}{
				"url": u, "error": err.Error(),
			})
			continue
		}

		summaries = append(summaries, Summary{URL: u, Text: summary})
	}

	return Result{URLs: urls, UserMentions: users, ChannelMentions: channels, LinkSummaries: summaries}
}

func (e *Extractor) summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following page content in 2-4 sentences, factually and without speculation:\n\n%s",
		truncate(text, 8000),
	)

	resp, err := e.provider.Chat(ctx, []providers.Message{
		{Role: "user", Content: prompt},
	}, nil, e.model, map[string]interface{}{"max_tokens": summaryTokenCap})
	if err != nil {
		return "", boxerr.Wrap(boxerr.ModelUnavailable, "summarize page", err)
	}

	summary := stripThinkingTags(resp.Content)
	if summary == "" {
		return "", boxerr.New(boxerr.Parse, "empty summary returned")
	}
	return summary, nil
}

func stripThinkingTags(s string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(s, ""))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
