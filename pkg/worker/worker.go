// Package worker implements the Queue Worker: pops a
// ConversationRequest, appends it to the Conversation Log, runs a
// bounded tool-calling loop against the text model with the Search Tool
// bound to the request's own server, and edits the status message along
// the way: per-iteration cap, think-tag stripping, throttled streaming
// status updates.
package worker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/chatplatform"
	"github.com/sipeed/boxbot/pkg/convolog"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/modelmanager"
	"github.com/sipeed/boxbot/pkg/providers"
	"github.com/sipeed/boxbot/pkg/queue"
	"github.com/sipeed/boxbot/pkg/search"
	"github.com/sipeed/boxbot/pkg/statusstream"
	"github.com/sipeed/boxbot/pkg/vectorstore"
)

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)

// maxAnswerChars caps a single DM reply before it must be chunked —
// Discord's per-message length limit.
const maxAnswerChars = 1800

// historyWindow is how many prior turns are folded into context per
// request.
const historyWindow = 20

// Worker pops requests off a Queue and answers them.
type Worker struct {
	q *queue.Queue
	platform chatplatform.Platform
	models *modelmanager.Manager
	vectors *vectorstore.Store
	convolog *convolog.Log
	maxIter int
	timeout time.Duration
}

// New builds a Worker. maxIter bounds tool-calling iterations and timeout
// bounds total wall-clock time per request.
func New(q *queue.Queue, platform chatplatform.Platform, models *modelmanager.Manager, vectors *vectorstore.Store, log *convolog.Log, maxIter int, timeout time.Duration) *Worker {
	return &Worker{q: q, platform: platform, models: models, vectors: vectors, convolog: log, maxIter: maxIter, timeout: timeout}
}

// Run pops and answers requests until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		req, err := w.q.Pop(ctx)
		if err != nil {
			return err
		}
		w.handle(ctx, req)
	}
}

func (w *Worker) handle(parent context.Context, req *chatdata.ConversationRequest) {
	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	notifier := statusstream.New(statusstream.DefaultInterval, func(line string) {
		if req.Handle != nil {
			_ = req.Handle.Edit(line)
		}
	})
	notifier.Set("Processing…")
	defer notifier.Stop()

	if err := w.convolog.Append(ctx, chatdata.ConversationTurn{
		UserID: req.UserID, ServerID: req.ServerID, Role: chatdata.RoleUser, Content: req.Text, CreatedAt: time.Now(),
	}); err != nil {
		logger.WarnCF("worker", "failed to log user turn", map[string]interface{}{"error": err.Error()})
	}

	answer, err := w.answer(ctx, req, notifier)
	switch {
	case err == nil:
		w.finish(ctx, req, answer, chatdata.StatusCompleted)
	case boxerr.Is(err, boxerr.Timeout) || ctx.Err() == context.DeadlineExceeded:
		logger.WarnCF("worker", "request timed out", map[string]interface{}{"user": req.UserID, "server": req.ServerID})
		w.finish(ctx, req, "Request took too long. Try a simpler question.", chatdata.StatusFailed)
	default:
		logger.ErrorCF("worker", "request failed", map[string]interface{}{"user": req.UserID, "error": err.Error()})
		w.finish(ctx, req, "Something went wrong processing your request.", chatdata.StatusFailed)
	}
}

func (w *Worker) finish(ctx context.Context, req *chatdata.ConversationRequest, answer string, status chatdata.RequestStatus) {
	if err := w.convolog.Append(ctx, chatdata.ConversationTurn{
		UserID: req.UserID, ServerID: req.ServerID, Role: chatdata.RoleAssistant, Content: answer, CreatedAt: time.Now(),
	}); err != nil {
		logger.WarnCF("worker", "failed to log assistant turn", map[string]interface{}{"error": err.Error()})
	}

	for _, chunk := range chunkAnswer(answer) {
		if _, err := w.platform.SendMessage(ctx, req.Channel, chunk); err != nil {
			logger.WarnCF("worker", "failed to send answer", map[string]interface{}{"error": err.Error()})
		}
	}

	w.q.Complete(req, status)
}

func (w *Worker) answer(ctx context.Context, req *chatdata.ConversationRequest, notifier *statusstream.Notifier) (string, error) {
	provider, model := w.models.Text()

	history, err := w.convolog.History(ctx, req.UserID, req.ServerID, historyWindow, 0)
	if err != nil {
		return "", err
	}

	messages := make([]providers.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, providers.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Text})

	tool := search.New(w.vectors, req.ServerID, "")
	toolDefs := []providers.ToolDefinition{tool.Definition()}

	for iteration := 0; iteration < w.maxIter; iteration++ {
		select {
		case <-ctx.Done():
			return "", boxerr.Wrap(boxerr.Timeout, "answer request", ctx.Err())
		default:
		}

		resp, err := provider.Chat(ctx, messages, toolDefs, model, map[string]interface{}{"max_tokens": 2048, "temperature": 0.7})
		if err != nil {
			return "", boxerr.Wrap(boxerr.ModelUnavailable, "chat completion", err)
		}
		resp.Content = stripThinkingTags(resp.Content)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			notifier.Set(fmt.Sprintf("Running %s…", tc.Name))
			result, err := tool.Execute(ctx, tc.Arguments)
			if err != nil {
				result = "error: " + err.Error()
			}
			messages = append(messages, providers.Message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}

	return "", boxerr.New(boxerr.PolicyStop, "exceeded maximum tool iterations")
}

func stripThinkingTags(s string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(s, ""))
}

func chunkAnswer(answer string) []string {
	r := []rune(answer)
	if len(r) <= maxAnswerChars {
		return []string{answer}
	}
	var chunks []string
	for len(r) > 0 {
		n := maxAnswerChars
		if n > len(r) {
			n = len(r)
		}
		chunks = append(chunks, string(r[:n]))
		r = r[n:]
	}
	return chunks
}
