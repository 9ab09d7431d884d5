package modelmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/providers"
)

type fakeProvider struct {
	err error
}

func (f *fakeProvider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.LLMResponse{Content: "pong"}, nil
}

func (f *fakeProvider) GetDefaultModel() string { return "fake-model" }

func TestTextReturnsConfiguredProviderAndModel(t *testing.T) {
	t.Parallel()
	text := &fakeProvider{}
	m := New(text, nil, "claude-sonnet-4-5", "")

	p, model := m.Text()
	assert.Same(t, text, p)
	assert.Equal(t, "claude-sonnet-4-5", model)
}

func TestVisionReturnsModelUnavailableWhenNotConfigured(t *testing.T) {
	t.Parallel()
	m := New(&fakeProvider{}, nil, "text-model", "")

	_, _, err := m.Vision()
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.ModelUnavailable))
}

func TestVisionReturnsConfiguredProvider(t *testing.T) {
	t.Parallel()
	vision := &fakeProvider{}
	m := New(&fakeProvider{}, vision, "text-model", "vision-model")

	p, model, err := m.Vision()
	require.NoError(t, err)
	assert.Same(t, vision, p)
	assert.Equal(t, "vision-model", model)
}

func TestHealthCheckTracksLastHealthy(t *testing.T) {
	t.Parallel()
	m := New(&fakeProvider{err: errors.New("unreachable")}, nil, "text-model", "")

	ok := m.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.False(t, m.LastHealthy())

	m.text = &fakeProvider{}
	ok = m.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.True(t, m.LastHealthy())
}

func TestIdleReportsPastRetentionWindow(t *testing.T) {
	t.Parallel()
	m := New(&fakeProvider{}, nil, "text-model", "")
	m.lastUsed = time.Now().Add(-idleRetention - time.Minute)

	assert.True(t, m.Idle())

	m.Text() // touches lastUsed
	assert.False(t, m.Idle())
}
