package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/boxbot/pkg/boxerr"
)

func TestFetchReturnsArticleText(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Release notes</title></head>
<body><article><h1>Release notes</h1><p>` + strings.Repeat("This update fixes several bugs and adds new features. ", 20) + `</p></article></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New()
	text, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, text, "fixes several bugs")
}

func TestFetchReturnsParseErrorForEmptyPage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head></head><body></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New()
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Parse))
}

func TestFetchReturnsErrorForUnreachableHost(t *testing.T) {
	t.Parallel()
	f := New()
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1", 2*time.Second)
	require.Error(t, err)
}
