package chatdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDirectMessage(t *testing.T) {
	assert.True(t, RawMessage{}.IsDirectMessage())
	assert.False(t, RawMessage{Server: &Server{ID: "s1"}}.IsDirectMessage())
}

func TestHasText(t *testing.T) {
	assert.True(t, RawMessage{Content: "hi"}.HasText())
	assert.False(t, RawMessage{}.HasText())
}

func TestHasImages(t *testing.T) {
	assert.True(t, RawMessage{Attachments: []Attachment{{ContentType: "image/png"}}}.HasImages())
	assert.False(t, RawMessage{Attachments: []Attachment{{ContentType: "application/pdf"}}}.HasImages())
	assert.False(t, RawMessage{}.HasImages())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, RawMessage{}.IsEmpty())
	assert.False(t, RawMessage{Content: "hi"}.IsEmpty())
	assert.False(t, RawMessage{Attachments: []Attachment{{URL: "a"}}}.IsEmpty())
}

func TestProcessedRecordID(t *testing.T) {
	rec := ProcessedRecord{MessageID: "42"}
	assert.Equal(t, "msg_42", rec.ID())
}
