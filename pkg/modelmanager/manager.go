// Package modelmanager implements the Model Manager: a
// joint text+vision runtime handle with a health check and idle-retention
// window.
package modelmanager

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/providers"
)

// idleRetention is how long the runtime may go unused before Idle reports
// true. Nothing re-runs HealthCheck automatically when it does.
const idleRetention = 30 * time.Minute

// Manager holds the text and vision model runtimes and reports readiness.
type Manager struct {
	mu sync.Mutex
	text providers.LLMProvider
	vision providers.LLMProvider
	textModel string
	visionModel string
	lastUsed time.Time
	lastHealthy bool
}

// New wires text and vision runtimes configured by name; vision may be nil if the
// deployment has no vision-capable key, in which case Vision callers
// get ModelUnavailable.
func New(text, vision providers.LLMProvider, textModel, visionModel string) *Manager {
	return &Manager{
		text: text,
		vision: vision,
		textModel: textModel,
		visionModel: visionModel,
		lastUsed: time.Now(),
		lastHealthy: true,
	}
}

// Text returns the text-completion provider and configured model name.
func (m *Manager) Text() (providers.LLMProvider, string) {
	m.touch()
	return m.text, m.textModel
}

// Vision returns the vision-capable provider and configured model name.
// Returns boxerr.ModelUnavailable if no vision provider was configured.
func (m *Manager) Vision() (providers.LLMProvider, string, error) {
	m.touch()
	if m.vision == nil {
		return nil, "", boxerr.New(boxerr.ModelUnavailable, "no vision model configured")
	}
	return m.vision, m.visionModel, nil
}

func (m *Manager) touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = time.Now()
}

// HealthCheck runs a minimal completion against the text provider and
// reports whether the runtime is reachable, recording the outcome for
// LastHealthy.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	_, err := m.text.Chat(ctx, []providers.Message{{Role: "user", Content: "ping"}}, nil, m.textModel, map[string]interface{}{"max_tokens": 4})
	m.mu.Lock()
	m.lastHealthy = err == nil
	m.mu.Unlock()
	if err != nil {
		logger.WarnCF("modelmanager", "health check failed", map[string]interface{}{"error": err.Error()})
	}
	return err == nil
}

// Idle reports whether the runtime has gone unused past the retention
// window, a signal the bootstrap surface can use to re-run HealthCheck
// before serving the next request.
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastUsed) > idleRetention
}

// LastHealthy reports the outcome of the most recent HealthCheck call.
func (m *Manager) LastHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHealthy
}
