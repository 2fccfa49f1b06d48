// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package score

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// LexicalIndex computes BM25 relevance over the accumulated pool using an
// in-memory SQLite FTS5 table. One index exists per search and dies with
// the request; nothing touches disk.
type LexicalIndex struct {
	db      *sql.DB
	indexed map[string]bool
}

// NewLexicalIndex opens the in-memory FTS5 index.
func NewLexicalIndex() (*LexicalIndex, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory index: %w", err)
	}
	// Title matches weigh double abstract matches in the bm25 call below.
	if _, err := db.Exec(
		`CREATE VIRTUAL TABLE docs_fts USING fts5(doc_id UNINDEXED, title, abstract)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating FTS table: %w", err)
	}
	return &LexicalIndex{db: db, indexed: make(map[string]bool)}, nil
}

// Close releases the in-memory database.
func (ix *LexicalIndex) Close() error { return ix.db.Close() }

// Add indexes documents not yet present. Re-adding an indexed document is a
// no-op, so the caller can pass the whole pool each iteration.
func (ix *LexicalIndex) Add(ctx context.Context, docs []*types.Document) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO docs_fts (doc_id, title, abstract) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if d.ID == "" || ix.indexed[d.ID] {
			continue
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, d.Abstract); err != nil {
			return fmt.Errorf("indexing %s: %w", d.ID, err)
		}
		ix.indexed[d.ID] = true
	}
	return tx.Commit()
}

// Scores runs the query against the index and returns doc ID to a score in
// [0,1]. BM25 rank is negative (more negative is better); scores normalize
// against the best-ranked document. Unmatched documents are absent from the
// map and score zero.
func (ix *LexicalIndex) Scores(ctx context.Context, query string) (map[string]float64, error) {
	match := ftsQuery(query)
	if match == "" {
		return map[string]float64{}, nil
	}

	rows, err := ix.db.QueryContext(ctx,
		`SELECT doc_id, bm25(docs_fts, 0, 2.0, 1.0) AS rank
		 FROM docs_fts WHERE docs_fts MATCH ?
		 ORDER BY rank`, match)
	if err != nil {
		return nil, fmt.Errorf("querying lexical index: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	var best float64
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning rank row: %w", err)
		}
		if best == 0 {
			best = rank
		}
		if best >= 0 {
			// Degenerate corpus (e.g. all-stopword query); treat every
			// match as equally relevant.
			scores[id] = 1.0
			continue
		}
		scores[id] = rank / best
	}
	return scores, rows.Err()
}

// ftsQuery turns free text into an OR-of-quoted-terms MATCH expression,
// which sidesteps FTS5 operator parsing of raw user input.
func ftsQuery(query string) string {
	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var quoted []string
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if len(t) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
