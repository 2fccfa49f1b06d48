// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// SemanticIndex holds a per-search, in-memory chromem-go collection and
// answers query-to-document cosine similarity. Like the lexical index it is
// created per request and dropped with it.
type SemanticIndex struct {
	coll  *chromem.Collection
	added map[string]bool
}

// addConcurrency bounds parallel embedding calls during AddDocuments.
const addConcurrency = 8

// NewSemanticIndex creates the collection with the given embedding function.
func NewSemanticIndex(searchID string, embed chromem.EmbeddingFunc) (*SemanticIndex, error) {
	db := chromem.NewDB()
	coll, err := db.CreateCollection("search-"+searchID, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating semantic collection: %w", err)
	}
	return &SemanticIndex{coll: coll, added: make(map[string]bool)}, nil
}

// Add embeds and stores documents not yet present. Title and abstract are
// concatenated as the embedded content.
func (s *SemanticIndex) Add(ctx context.Context, docs []*types.Document) error {
	var batch []chromem.Document
	for _, d := range docs {
		if d.ID == "" || s.added[d.ID] {
			continue
		}
		content := d.Title
		if d.Abstract != "" {
			content += "\n" + d.Abstract
		}
		if content == "" {
			content = d.ID
		}
		batch = append(batch, chromem.Document{ID: d.ID, Content: content})
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.coll.AddDocuments(ctx, batch, addConcurrency); err != nil {
		return fmt.Errorf("embedding %d documents: %w", len(batch), err)
	}
	for _, d := range batch {
		s.added[d.ID] = true
	}
	return nil
}

// Scores returns doc ID to query similarity in [0,1] for every indexed
// document.
func (s *SemanticIndex) Scores(ctx context.Context, query string) (map[string]float64, error) {
	n := s.coll.Count()
	if n == 0 {
		return map[string]float64{}, nil
	}
	results, err := s.coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying semantic collection: %w", err)
	}
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < 0 {
			sim = 0
		} else if sim > 1 {
			sim = 1
		}
		scores[r.ID] = sim
	}
	return scores, nil
}
