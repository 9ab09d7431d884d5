package vision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/providers"
)

type fakeVisionProvider struct {
	content string
	err     error
	gotURL  string
}

func (f *fakeVisionProvider) Chat(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	if len(messages) > 0 && len(messages[0].ImageURLs) > 0 {
		f.gotURL = messages[0].ImageURLs[0]
	}
	if f.err != nil {
		return nil, f.err
	}
	return &providers.LLMResponse{Content: f.content}, nil
}

func (f *fakeVisionProvider) GetDefaultModel() string { return "fake-vision" }

func TestDescribeRejectsDisallowedContentTypeUpfront(t *testing.T) {
	t.Parallel()
	d := New(&fakeVisionProvider{}, "vision-model")

	_, err := d.Describe(context.Background(), "https://example.com/a.pdf", "application/pdf")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Parse))
}

func TestDescribeReturnsModelDescription(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	t.Cleanup(srv.Close)

	provider := &fakeVisionProvider{content: "A red square on a white background."}
	d := New(provider, "vision-model")

	desc, err := d.Describe(context.Background(), srv.URL, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "A red square on a white background.", desc)
	assert.True(t, strings.HasPrefix(provider.gotURL, "data:image/png;base64,"))
}

func TestDescribeRejectsUnsupportedResponseContentType(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	d := New(&fakeVisionProvider{}, "vision-model")
	_, err := d.Describe(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Parse))
}

func TestDescribeRejectsNon200Status(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	d := New(&fakeVisionProvider{}, "vision-model")
	_, err := d.Describe(context.Background(), srv.URL, "image/png")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Transport))
}

func TestDescribeReturnsParseErrorOnEmptyDescription(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	t.Cleanup(srv.Close)

	d := New(&fakeVisionProvider{content: "   "}, "vision-model")
	_, err := d.Describe(context.Background(), srv.URL, "image/png")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Parse))
}

func TestDescribeRejectsImageOverSizeCap(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, maxImageSize+1))
	}))
	t.Cleanup(srv.Close)

	d := New(&fakeVisionProvider{}, "vision-model")
	_, err := d.Describe(context.Background(), srv.URL, "image/png")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Parse))
}

func TestDescribeAcceptsImageAtSizeCap(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, maxImageSize))
	}))
	t.Cleanup(srv.Close)

	provider := &fakeVisionProvider{content: "a large but allowed image."}
	d := New(provider, "vision-model")
	desc, err := d.Describe(context.Background(), srv.URL, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "a large but allowed image.", desc)
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
