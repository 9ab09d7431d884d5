// Package embedregistry implements the Embedder Registry:
// a named-model cache of chromem.EmbeddingFunc values, constructed once per
// name and reused across servers.
package embedregistry

import (
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/logger"
)

// Registry lazily constructs and caches embedding functions by name.
type Registry struct {
	mu sync.Mutex
	cache map[string]chromem.EmbeddingFunc
	openAIKey string
	openRouterKey string
	openRouterBase string
}

// New builds a registry able to satisfy OpenAI-hosted and OpenRouter
// OpenAI-compatible embedding models: direct OpenAI key first, then
// OpenRouter.
func New(openAIKey, openRouterKey, openRouterBase string) *Registry {
	if openRouterBase == "" {
		openRouterBase = "https://openrouter.ai/api/v1"
	}
	return &Registry{
		cache: make(map[string]chromem.EmbeddingFunc),
		openAIKey: openAIKey,
		openRouterKey: openRouterKey,
		openRouterBase: openRouterBase,
	}
}

// Get returns the cached embedding function for model, constructing it on
// first use.
func (r *Registry) Get(model string) (chromem.EmbeddingFunc, error) {
	if model == "" {
		return nil, boxerr.New(boxerr.ModelUnavailable, "embedding model name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fn, ok := r.cache[model]; ok {
		return fn, nil
	}

	fn, err := r.construct(model)
	if err != nil {
		return nil, err
	}

	r.cache[model] = fn
	logger.InfoCF("embedregistry", "embedder constructed", map[string]interface{}{"model": model})
	return fn, nil
}

// Preload eagerly constructs every model in models, so the first real
// request never pays construction latency.
func (r *Registry) Preload(models []string) {
	for _, m := range models {
		if _, err := r.Get(m); err != nil {
			logger.WarnCF("embedregistry", "preload failed", map[string]interface{}{
				"model": m, "error": err.Error(),
			})
		}
	}
}

func (r *Registry) construct(model string) (chromem.EmbeddingFunc, error) {
	if r.openAIKey != "" {
		return chromem.NewEmbeddingFuncOpenAI(r.openAIKey, chromem.EmbeddingModelOpenAI(model)), nil
	}
	if r.openRouterKey != "" {
		// OpenRouter requires an "openai/" prefix for OpenAI embedding models.
		name := model
		if !strings.Contains(name, "/") {
			name = "openai/" + name
		}
		return chromem.NewEmbeddingFuncOpenAICompat(r.openRouterBase, r.openRouterKey, name, nil), nil
	}
	return nil, boxerr.New(boxerr.ModelUnavailable, "no embedding provider key configured")
}
