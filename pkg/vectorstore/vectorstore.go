// Package vectorstore implements the Vector Store Facade:
// one persistent chromem-go collection per server, named after the server
// instead of a fixed collection name. The collection is not keyed by
// embedding model: it keeps the embedder resolved on the first Collection
// call for that server for the life of the Store.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/logger"
)

// Result is a single search hit, formatted back to the caller.
type Result struct {
	ID string
	Document string
	Score float32
	Metadata map[string]string
	Timestamp string
}

// EmbedderLookup resolves the named embedding function for a collection,
// satisfied by pkg/embedregistry.Registry.Get.
type EmbedderLookup func(model string) (chromem.EmbeddingFunc, error)

// Store is the per-server vector facade. One Store instance serves every
// server in the deployment; each server gets its own collection.
type Store struct {
	mu sync.RWMutex
	db *chromem.DB
	collections map[chatdata.ServerID]*chromem.Collection
	lookup EmbedderLookup
	defaultFn string
}

// New opens (or creates) the persistent database rooted at dbPath. lookup
// resolves a named embedding model to a usable chromem.EmbeddingFunc;
// defaultModel is used when a server has no EmbeddingModelName configured.
func New(dbPath string, lookup EmbedderLookup, defaultModel string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "create vector db dir", err)
	}

	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "open vector db", err)
	}

	return &Store{
		db: db,
		collections: make(map[chatdata.ServerID]*chromem.Collection),
		lookup: lookup,
		defaultFn: defaultModel,
	}, nil
}

// Collection returns (creating if necessary) server's collection. The
// embedding model (or the default when empty) is resolved only when the
// collection is first opened; later calls get the cached collection
// whatever model they name. On embedder-resolution failure it falls back
// to the deployment default embedder, logging the downgrade.
func (s *Store) Collection(server chatdata.ServerID, embeddingModel string) (*chromem.Collection, error) {
	s.mu.RLock()
	if c, ok := s.collections[server]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[server]; ok {
		return c, nil
	}

	model := embeddingModel
	if model == "" {
		model = s.defaultFn
	}

	fn, err := s.lookup(model)
	if err != nil {
		logger.WarnCF("vectorstore", "embedder unavailable, falling back to default", map[string]interface{}{
			"server": server, "requested_model": model, "error": err.Error(),
		})
		fn, err = s.lookup(s.defaultFn)
		if err != nil {
			return nil, boxerr.Wrap(boxerr.ModelUnavailable, "resolve default embedder", err)
		}
	}

	name := collectionName(server)
	c, err := s.db.GetOrCreateCollection(name, nil, fn)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "create collection "+name, err)
	}
	s.collections[server] = c

	logger.InfoCF("vectorstore", "collection ready", map[string]interface{}{
		"server": server, "collection": name, "count": c.Count(),
	})
	return c, nil
}

func collectionName(server chatdata.ServerID) string {
	return "server_" + string(server)
}

// Upsert writes a ProcessedRecord into its server's collection. Re-upsert
// under the same record id is idempotent.
func (s *Store) Upsert(ctx context.Context, embeddingModel string, rec chatdata.ProcessedRecord) error {
	c, err := s.Collection(rec.ServerID, embeddingModel)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID: rec.ID(),
		Content: rec.Document,
		Metadata: rec.Metadata,
	}
	if err := c.AddDocument(ctx, doc); err != nil {
		return boxerr.Wrap(boxerr.StorageError, "upsert record "+rec.ID(), err)
	}
	return nil
}

// Query searches a single server's collection for the top `limit` matches
// to query, bound to that server only.
func (s *Store) Query(ctx context.Context, server chatdata.ServerID, embeddingModel, query string, limit int) ([]Result, error) {
	c, err := s.Collection(server, embeddingModel)
	if err != nil {
		return nil, err
	}
	if c.Count() == 0 {
		return nil, nil
	}
	if limit > c.Count() {
		limit = c.Count()
	}

	hits, err := c.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "query collection", err)
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			ID: h.ID,
			Document: h.Content,
			Score: h.Similarity,
			Metadata: h.Metadata,
			Timestamp: h.Metadata["timestamp"],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Count reports how many records a server's collection holds.
func (s *Store) Count(server chatdata.ServerID, embeddingModel string) (int, error) {
	c, err := s.Collection(server, embeddingModel)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Format renders results into a human-readable block for DM answers.
func Format(results []Result) string {
	if len(results) == 0 {
		return "No matching messages found."
	}

	var sb strings.Builder
	for _, r := range results {
		date := r.Timestamp
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			date = t.Format("2006-01-02 15:04")
		}
		who := r.Metadata["display_name"]
		channel := r.Metadata["channel_name"]
		loc := ""
		if channel != "" {
			loc = fmt.Sprintf(" in #%s", channel)
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s%s: %s\n", date, who, loc, r.Document))
	}
	return sb.String()
}
