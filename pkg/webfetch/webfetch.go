// Package webfetch implements the Web Fetch boundary used by the
// Extractor: URL in, cleaned article text out, via go-shiori/go-readability.
package webfetch

import (
	"context"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/sipeed/boxbot/pkg/boxerr"
)

// maxChars bounds how much cleaned text a single fetch returns, so one
// huge page can't blow the extractor's summarization budget.
const maxChars = 20000

// Fetcher is the Extractor's boundary to a URL's readable text.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// ReadabilityFetcher implements Fetcher over go-readability's parser.
type ReadabilityFetcher struct{}

func New() *ReadabilityFetcher { return &ReadabilityFetcher{} }

// Fetch downloads url and returns its cleaned article text, truncated to
// maxChars. Non-article pages (parse failure, empty text) return
// boxerr.Parse so the Extractor can skip them. A download failure is
// boxerr.Timeout once the deadline has passed and boxerr.Parse otherwise,
// an unreachable host included.
func (f *ReadabilityFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	article, err := readability.FromURL(url, timeout)
	if err != nil {
		if time.Now().After(deadline) {
			return "", boxerr.Wrap(boxerr.Timeout, "fetch "+url, err)
		}
		return "", boxerr.Wrap(boxerr.Parse, "fetch "+url, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", boxerr.New(boxerr.Parse, "no readable content at "+url)
	}
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

var _ Fetcher = (*ReadabilityFetcher)(nil)
