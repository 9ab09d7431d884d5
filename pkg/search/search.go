// Package search implements the Search Tool: a tool the
// Queue Worker's LLM loop can call to search one server's indexed
// messages, bound to the requesting user's own server so a DM answer can
// never leak another server's content.
package search

import (
	"context"
	"fmt"

	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/providers"
	"github.com/sipeed/boxbot/pkg/vectorstore"
)

// maxLimit caps how many results a single search_messages call can
// request.
const maxLimit = 15

// Tool is bound to exactly one server for the lifetime of a single
// conversation request.
type Tool struct {
	vectors *vectorstore.Store
	server chatdata.ServerID
	embeddingModel string
}

// New binds a Search Tool to server for the current request.
func New(vectors *vectorstore.Store, server chatdata.ServerID, embeddingModel string) *Tool {
	return &Tool{vectors: vectors, server: server, embeddingModel: embeddingModel}
}

func (t *Tool) Name() string { return "search_messages" }

func (t *Tool) Description() string {
	return "Search this server's indexed message history for content relevant to the user's question. Call this whenever answering requires recalling what was said in the server."
}

func (t *Tool) Definition() providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.FunctionSpec{
			Name: t.Name(),
			Description: t.Description(),
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type": "string",
						"description": "Natural language search query",
					},
					"limit": map[string]interface{}{
						"type": "integer",
						"description": fmt.Sprintf("Maximum number of results to return (default 5, max %d)", maxLimit),
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Execute runs the search, returning a formatted text block the Queue
// Worker feeds back as a tool result message.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	limit := 5
	if l, ok := args["limit"].(float64); ok && int(l) > 0 {
		limit = int(l)
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	results, err := t.vectors.Query(ctx, t.server, t.embeddingModel, query, limit)
	if err != nil {
		return "", fmt.Errorf("search_messages failed: %w", err)
	}

	return vectorstore.Format(results), nil
}
