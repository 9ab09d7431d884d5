// Package vision implements the Vision Describer: downloads
// an attached image, enforces a size/content-type allow-list, and asks the
// vision model for a one-paragraph description.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/logger"
	"github.com/sipeed/boxbot/pkg/providers"
)

// maxImageSize caps a downloaded attachment at 10MB raw.
const maxImageSize = 10 * 1024 * 1024

const downloadTimeout = 10 * time.Second

// allowedContentTypes is the image MIME allow-list.
var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png": true,
	"image/gif": true,
	"image/webp": true,
	"image/bmp": true,
}

// Describer asks a vision-capable provider to describe an image.
type Describer struct {
	provider providers.LLMProvider
	model string
	client *http.Client
}

func New(provider providers.LLMProvider, model string) *Describer {
	return &Describer{provider: provider, model: model, client: &http.Client{Timeout: downloadTimeout}}
}

// Describe downloads attachmentURL and returns a short description, or a
// boxerr (Parse for disallowed/oversized content, Transport for a failed
// download, ModelUnavailable if the vision model errors) the pipeline
// treats as a per-message skip.
func (d *Describer) Describe(ctx context.Context, attachmentURL, contentType string) (string, error) {
	if contentType != "" && !allowedContentTypes[contentType] {
		return "", boxerr.New(boxerr.Parse, "unsupported image content type: "+contentType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachmentURL, nil)
	if err != nil {
		return "", boxerr.Wrap(boxerr.Transport, "build image request", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", boxerr.Wrap(boxerr.Transport, "download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", boxerr.WrapRateLimited("download image", 0, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", boxerr.Wrap(boxerr.Transport, fmt.Sprintf("download image: status %d", resp.StatusCode), nil)
	}

	detected := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(detected, ';'); idx >= 0 {
		detected = detected[:idx]
	}
	if detected != "" && !allowedContentTypes[detected] {
		return "", boxerr.New(boxerr.Parse, "unsupported image content type: "+detected)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return "", boxerr.Wrap(boxerr.Transport, "read image body", err)
	}
	if len(data) > maxImageSize {
		return "", boxerr.New(boxerr.Parse, fmt.Sprintf("image too large: %.1f MB", float64(len(data))/(1024*1024)))
	}

	dataURL := "data:" + firstNonEmpty(detected, contentType, "image/jpeg") + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp2, err := d.provider.Chat(ctx, []providers.Message{
		{Role: "user", Content: "Describe this image in one short paragraph, factually.", ImageURLs: []string{dataURL}},
	}, nil, d.model, map[string]interface{}{"max_tokens": 300})
	if err != nil {
		return "", boxerr.Wrap(boxerr.ModelUnavailable, "describe image", err)
	}

	description := strings.TrimSpace(resp2.Content)
	if description == "" {
		logger.WarnCF("vision", "model returned empty description", map[string]interface{}{"url": attachmentURL})
		return "", boxerr.New(boxerr.Parse, "empty description returned")
	}
	return description, nil
}

func firstNonEmpty(vals...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
