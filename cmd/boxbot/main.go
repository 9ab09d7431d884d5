// Command boxbot runs the ingestion/enrichment/Q&A bootstrap: it wires
// the Rate Governor, Ingestion Engine, Processing Pipeline, Conversation
// Queue and Worker, and the Discord adapter, then runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/chatplatform"
	"github.com/sipeed/boxbot/pkg/config"
	"github.com/sipeed/boxbot/pkg/convolog"
	"github.com/sipeed/boxbot/pkg/discordchat"
	"github.com/sipeed/boxbot/pkg/embedregistry"
	"github.com/sipeed/boxbot/pkg/extract"
	"github.com/sipeed/boxbot/pkg/ingest"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/modelmanager"
	"github.com/sipeed/boxbot/pkg/pipeline"
	"github.com/sipeed/boxbot/pkg/providers"
	"github.com/sipeed/boxbot/pkg/queue"
	"github.com/sipeed/boxbot/pkg/ratelimit"
	"github.com/sipeed/boxbot/pkg/resume"
	"github.com/sipeed/boxbot/pkg/serverconfig"
	"github.com/sipeed/boxbot/pkg/vectorstore"
	"github.com/sipeed/boxbot/pkg/vision"
	"github.com/sipeed/boxbot/pkg/webfetch"
	"github.com/sipeed/boxbot/pkg/worker"
)

// Exit codes per the deployment contract: 0 clean shutdown, 1 config
// error, 2 platform connection failure, 3 storage initialization failure.
const (
	exitOK = 0
	exitConfigError = 1
	exitPlatformError = 2
	exitStorageError = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.ErrorCF("boxbot", "config load failed", map[string]interface{}{"error": err.Error()})
		return exitConfigError
	}

	platform, err := discordchat.New(cfg.Token)
	if err != nil {
		logger.ErrorCF("boxbot", "discord connection failed", map[string]interface{}{"error": err.Error()})
		return exitPlatformError
	}
	defer platform.Close()

	registry := embedregistry.New(cfg.OpenAIAPIKey, cfg.OpenRouterAPIKey, cfg.OpenRouterAPIBase)
	registry.Preload([]string{cfg.EmbeddingModelName})

	vectors, err := vectorstore.New(cfg.DatabasesPath()+"/vectors", registry.Get, cfg.EmbeddingModelName)
	if err != nil {
		logger.ErrorCF("boxbot", "vector store init failed", map[string]interface{}{"error": err.Error()})
		return exitStorageError
	}

	configs, err := serverconfig.New(cfg.SharedDBPath(), chatdata.OnFailurePolicy(cfg.OnFailure))
	if err != nil {
		logger.ErrorCF("boxbot", "server config store init failed", map[string]interface{}{"error": err.Error()})
		return exitStorageError
	}
	defer configs.Close()

	log, err := convolog.New(cfg.SharedDBPath())
	if err != nil {
		logger.ErrorCF("boxbot", "conversation log init failed", map[string]interface{}{"error": err.Error()})
		return exitStorageError
	}
	defer log.Close()

	resumption, err := resume.New(cfg.SharedDBPath())
	if err != nil {
		logger.ErrorCF("boxbot", "resumption store init failed", map[string]interface{}{"error": err.Error()})
		return exitStorageError
	}
	defer resumption.Close()

	textProvider := buildTextProvider(cfg)
	visionProvider := buildVisionProvider(cfg)
	models := modelmanager.New(textProvider, visionProvider, cfg.TextModelName, cfg.VisionModelName)

	fetcher := webfetch.New()
	extractor := extract.New(textProvider, cfg.TextModelName, fetcher)

	var describer *vision.Describer
	if visionProvider != nil {
		describer = vision.New(visionProvider, cfg.VisionModelName)
	}

	proc := pipeline.New(configs, vectors, extractor, describer, cfg.EmbeddingModelName)

	governor := ratelimit.New(cfg.RateRPS, cfg.RateBurst, 5)
	engine := ingest.New(platform, governor, resumption, cfg.MessagesPerFetch, cfg.PipelineConcurrentChannels, func(ctx context.Context, msgs []chatdata.RawMessage) error {
		_, err := proc.Process(ctx, msgs)
		return err
	})

	q := queue.New(cfg.QueueCapacity)
	w := worker.New(q, platform, models, vectors, log, cfg.MaxToolIterations, time.Duration(cfg.RequestTimeoutS)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("boxbot", "worker stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	go coldStartAll(ctx, platform, engine)

	go func() {
		err := engine.StreamLive(ctx, func(msg chatdata.RawMessage) {
			handleDirectMessage(ctx, platform, q, log, cfg, msg)
		})
		if err != nil && ctx.Err() == nil {
			logger.ErrorCF("boxbot", "live ingestion stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.InfoCF("boxbot", "bootstrap complete", map[string]interface{}{"command_prefix": cfg.CommandPrefix})

	<-ctx.Done()
	logger.InfoCF("boxbot", "shutting down", nil)
	return exitOK
}

// coldStartAll lists every server the platform account currently belongs
// to and cold starts each one, so history that predates this process gets
// indexed once at boot rather than only from the first live message on.
func coldStartAll(ctx context.Context, platform chatplatform.Platform, engine *ingest.Engine) {
	servers, err := platform.ListServers(ctx)
	if err != nil {
		logger.ErrorCF("boxbot", "list servers failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, server := range servers {
		if ctx.Err() != nil {
			return
		}
		if err := engine.ColdStart(ctx, server); err != nil {
			logger.WarnCF("boxbot", "cold start failed", map[string]interface{}{"server": server, "error": err.Error()})
		}
	}
}

// handleDirectMessage dispatches a DM to one of three commands: "ask
// <server-id> <question>", "status", or "clear-history <server-id>". A bare
// "<prefix><server-id> <question>" is accepted as ask shorthand for
// backward compatibility. Unrecognized input gets usage help instead of
// being queued.
func handleDirectMessage(ctx context.Context, platform chatplatform.Platform, q *queue.Queue, log *convolog.Log, cfg *config.Config, msg chatdata.RawMessage) {
	if !msg.HasText() {
		return
	}

	cmd, rest, ok := parseCommand(msg.Content, cfg.CommandPrefix)
	if !ok {
		reply(ctx, platform, msg.Channel.ID, fmt.Sprintf("Ask with: %sask <server-id> <question>", cfg.CommandPrefix))
		return
	}

	switch cmd {
	case "status":
		handleStatusCommand(ctx, platform, q, msg)
	case "clear-history":
		handleClearHistoryCommand(ctx, platform, log, msg, rest)
	case "ask":
		handleAskCommand(ctx, platform, q, msg, rest)
	default:
		handleAskCommand(ctx, platform, q, msg, cmd+" "+rest)
	}
}

// parseCommand splits "<prefix><command> [rest]" into command and rest.
// ok is false when the prefix is missing or nothing follows it.
func parseCommand(content, prefix string) (cmd, rest string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	body := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if body == "" {
		return "", "", false
	}
	parts := strings.SplitN(body, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return parts[0], "", true
}

// handleAskCommand parses "<server-id> <question>" out of rest and submits
// it to the Conversation Queue.
func handleAskCommand(ctx context.Context, platform chatplatform.Platform, q *queue.Queue, msg chatdata.RawMessage, rest string) {
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		reply(ctx, platform, msg.Channel.ID, "Usage: ask <server-id> <question>")
		return
	}
	server, question := parts[0], parts[1]

	handle, err := platform.SendMessage(ctx, msg.Channel.ID, "Queued…")
	if err != nil {
		logger.WarnCF("boxbot", "failed to send queued status", map[string]interface{}{"error": err.Error()})
		return
	}

	req := &chatdata.ConversationRequest{
		ID: string(msg.ID),
		UserID: msg.Author.ID,
		ServerID: chatdata.ServerID(server),
		Channel: msg.Channel.ID,
		Text: question,
		EnqueuedAt: time.Now(),
		Handle: chatplatform.EditableHandle{Platform: platform, Handle: handle},
	}

	if err := q.Submit(req); err != nil {
		_ = platform.EditMessage(ctx, handle, queueSubmitFailureMessage(err, q, req.UserID))
	}
}

// queueSubmitFailureMessage renders the user-visible reason a Submit
// failed, without leaking internal error text.
func queueSubmitFailureMessage(err error, q *queue.Queue, user chatdata.UserID) string {
	switch boxerr.KindOf(err) {
	case boxerr.CapacityExceeded:
		return "Server is busy."
	case boxerr.AlreadyActive:
		return fmt.Sprintf("You already have a request in flight (position %d).", q.Position(user))
	default:
		return "Something went wrong processing your request."
	}
}

func handleStatusCommand(ctx context.Context, platform chatplatform.Platform, q *queue.Queue, msg chatdata.RawMessage) {
	depth := q.Depth()
	position := q.Position(msg.Author.ID)
	if position > 0 {
		reply(ctx, platform, msg.Channel.ID, fmt.Sprintf("You are at position %d of %d in the queue.", position, depth))
		return
	}
	reply(ctx, platform, msg.Channel.ID, fmt.Sprintf("You have no request queued. %d request(s) waiting.", depth))
}

func handleClearHistoryCommand(ctx context.Context, platform chatplatform.Platform, log *convolog.Log, msg chatdata.RawMessage, server string) {
	server = strings.TrimSpace(server)
	if server == "" {
		reply(ctx, platform, msg.Channel.ID, "Usage: clear-history <server-id>")
		return
	}
	if err := log.Purge(ctx, msg.Author.ID, chatdata.ServerID(server)); err != nil {
		logger.WarnCF("boxbot", "failed to purge conversation history", map[string]interface{}{"error": err.Error()})
		reply(ctx, platform, msg.Channel.ID, "Something went wrong processing your request.")
		return
	}
	reply(ctx, platform, msg.Channel.ID, "Your conversation history for that server has been cleared.")
}

func reply(ctx context.Context, platform chatplatform.Platform, channel chatdata.ChannelID, text string) {
	if _, err := platform.SendMessage(ctx, channel, text); err != nil {
		logger.WarnCF("boxbot", "failed to send reply", map[string]interface{}{"error": err.Error()})
	}
}

func buildTextProvider(cfg *config.Config) providers.LLMProvider {
	if cfg.AnthropicAPIKey != "" {
		return providers.NewClaudeProvider(cfg.AnthropicAPIKey)
	}
	return providers.NewOpenAIProvider(cfg.OpenAIAPIKey, "", cfg.TextModelName)
}

func buildVisionProvider(cfg *config.Config) providers.LLMProvider {
	if cfg.AnthropicAPIKey != "" {
		return providers.NewClaudeProvider(cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		return providers.NewOpenAIProvider(cfg.OpenAIAPIKey, "", cfg.VisionModelName)
	}
	return nil
}
