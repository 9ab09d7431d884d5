package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/philippgille/chromem-go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
)

func fakeEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestStore(t *testing.T, lookup EmbedderLookup) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "vectors"), lookup, "default-embed")
	require.NoError(t, err)
	return s
}

func workingLookup(model string) (chromem.EmbeddingFunc, error) {
	return fakeEmbeddingFunc, nil
}

func TestCollectionCreatesAndCachesPerServer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, workingLookup)

	c1, err := s.Collection("server-1", "")
	require.NoError(t, err)
	require.NotNil(t, c1)

	c2, err := s.Collection("server-1", "")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	c3, err := s.Collection("server-2", "")
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestCollectionFallsBackToDefaultEmbedderOnResolutionFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	lookup := func(model string) (chromem.EmbeddingFunc, error) {
		calls++
		if model == "broken-model" {
			return nil, boxerr.New(boxerr.ModelUnavailable, "no such model")
		}
		return fakeEmbeddingFunc, nil
	}

	s := newTestStore(t, lookup)
	c, err := s.Collection("server-1", "broken-model")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 2, calls) // once for broken-model, once for the default fallback
}

func TestCollectionFailsWhenDefaultEmbedderAlsoUnavailable(t *testing.T) {
	t.Parallel()
	lookup := func(model string) (chromem.EmbeddingFunc, error) {
		return nil, boxerr.New(boxerr.ModelUnavailable, "no key configured")
	}

	s := newTestStore(t, lookup)
	_, err := s.Collection("server-1", "broken-model")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.ModelUnavailable))
}

func TestUpsertAndQueryRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, workingLookup)

	rec := chatdata.ProcessedRecord{
		MessageID: "1",
		ServerID:  "server-1",
		Document:  "the quarterly report is ready",
		Metadata:  map[string]string{"display_name": "alice", "timestamp": "2024-01-01T00:00:00Z"},
	}
	require.NoError(t, s.Upsert(context.Background(), "default-embed", rec))

	count, err := s.Count("server-1", "default-embed")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.Query(context.Background(), "server-1", "default-embed", "quarterly report", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "msg_1", results[0].ID)
	assert.Contains(t, results[0].Document, "quarterly report")
}

func TestUpsertIsIdempotentUnderSameID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, workingLookup)

	rec := chatdata.ProcessedRecord{MessageID: "1", ServerID: "server-1", Document: "first version"}
	require.NoError(t, s.Upsert(context.Background(), "default-embed", rec))

	rec.Document = "second version"
	require.NoError(t, s.Upsert(context.Background(), "default-embed", rec))

	count, err := s.Count("server-1", "default-embed")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueryOnEmptyCollectionReturnsNoResults(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, workingLookup)
	results, err := s.Query(context.Background(), "server-1", "default-embed", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryNeverCrossesServers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, workingLookup)

	require.NoError(t, s.Upsert(context.Background(), "default-embed", chatdata.ProcessedRecord{
		MessageID: "1", ServerID: "server-1", Document: "server one content",
	}))
	require.NoError(t, s.Upsert(context.Background(), "default-embed", chatdata.ProcessedRecord{
		MessageID: "2", ServerID: "server-2", Document: "server two content",
	}))

	results, err := s.Query(context.Background(), "server-2", "default-embed", "content", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "msg_2", results[0].ID)
}

func TestFormatRendersEmptyResultsMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "No matching messages found.", Format(nil))
}

func TestFormatRendersResultLines(t *testing.T) {
	t.Parallel()
	out := Format([]Result{
		{
			Document:  "the deploy finished",
			Timestamp: "2024-03-01T10:00:00Z",
			Metadata:  map[string]string{"display_name": "bob", "channel_name": "ops"},
		},
	})
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "#ops")
	assert.Contains(t, out, "the deploy finished")
	assert.Contains(t, out, "2024-03-01 10:00")
}
