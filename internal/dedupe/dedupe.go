// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedupe merges duplicate documents across sources using an
// identifier-priority key: DOI first, then normalized title, then a
// synthetic key so unidentifiable documents are kept without colliding.
package dedupe

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// maxTitleKeyLen caps normalized-title keys so pathological titles cannot
// blow up the key space.
const maxTitleKeyLen = 120

// Key returns the dedup key for a document. Keys are stable across sources:
// two records for the same paper resolve to the same key whenever either a
// shared DOI or an equivalent title is present.
func Key(d *types.Document) string {
	if doi := NormalizeDOI(d.DOI); doi != "" {
		return "doi:" + doi
	}
	if t := NormalizeTitle(d.Title); t != "" {
		return "title:" + t
	}
	return "synthetic:" + uuid.NewString()
}

// NormalizeDOI lowercases a DOI, strips surrounding whitespace and the
// common resolver prefixes.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

// NormalizeTitle returns a lowercased, punctuation-stripped,
// whitespace-collapsed title key, capped at maxTitleKeyLen.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	key := strings.Join(strings.Fields(b.String()), " ")
	if len(key) > maxTitleKeyLen {
		key = key[:maxTitleKeyLen]
	}
	return key
}

// MergeInto folds src into dst: empty fields are filled, list-valued
// metadata is unioned, and scoring fields follow the higher-scored instance.
func MergeInto(dst, src *types.Document) {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
	}
	if dst.Abstract == "" && src.Abstract != "" {
		dst.Abstract = src.Abstract
	}
	if dst.DOI == "" && src.DOI != "" {
		dst.DOI = src.DOI
	}
	if dst.Year == 0 && src.Year != 0 {
		dst.Year = src.Year
	}
	dst.Authors = unionPreservingOrder(dst.Authors, src.Authors)
	dst.Sources = unionPreservingOrder(dst.Sources, src.Sources)

	// Keep the higher-scored instance's scores. An unscored src never
	// clobbers a scored dst.
	if src.Scored && (!dst.Scored || src.Overall > dst.Overall) {
		dst.Lexical = src.Lexical
		dst.Semantic = src.Semantic
		dst.TopicalFit = src.TopicalFit
		dst.Overall = src.Overall
		dst.Scored = true
	}
	if src.MetadataQuality > dst.MetadataQuality {
		dst.MetadataQuality = src.MetadataQuality
	}
}

// Merge folds docs into pool in place, keyed by Key. New documents are
// inserted with their ID set to the key; duplicates merge via MergeInto.
// It returns the number of documents added and the number merged away.
// Merging an already-merged pool with itself is a no-op.
func Merge(pool map[string]*types.Document, docs []*types.Document) (added, merged int) {
	for _, d := range docs {
		key := d.ID
		if key == "" {
			key = Key(d)
		}
		if existing, ok := pool[key]; ok {
			if existing != d {
				MergeInto(existing, d)
				merged++
			}
			continue
		}
		d.ID = key
		pool[key] = d
		added++
	}
	return added, merged
}

// Dedupe collapses a flat document list into unique documents. Order of
// first appearance is preserved.
func Dedupe(docs []*types.Document) ([]*types.Document, int) {
	pool := make(map[string]*types.Document, len(docs))
	var order []string
	removed := 0
	for _, d := range docs {
		key := d.ID
		if key == "" {
			key = Key(d)
		}
		if existing, ok := pool[key]; ok {
			if existing != d {
				MergeInto(existing, d)
				removed++
			}
			continue
		}
		d.ID = key
		pool[key] = d
		order = append(order, key)
	}
	out := make([]*types.Document, 0, len(order))
	for _, key := range order {
		out = append(out, pool[key])
	}
	return out, removed
}

func unionPreservingOrder(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
