// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the retrieval-engine pipeline.
package types

// Document represents a candidate paper retrieved from a literature source.
// Identity is resolved by the dedupe package: a DOI when the source provides
// one, a normalized title key otherwise, and a synthetic key as the last
// resort so unidentifiable records never collide.
type Document struct {
	// ID is the dedup key: normalized DOI, title key, or synthetic key.
	ID string `json:"id" yaml:"id"`

	// DOI is the document's DOI when the source reported one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year, zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Sources lists the connectors that returned this document.
	Sources []string `json:"sources" yaml:"sources"`

	// Lexical is the BM25-derived relevance score in [0,1].
	Lexical float64 `json:"lexical" yaml:"lexical"`

	// Semantic is the embedding cosine-similarity score in [0,1].
	Semantic float64 `json:"semantic" yaml:"semantic"`

	// TopicalFit is the thematic keyword-coverage score in [0,1].
	TopicalFit float64 `json:"topical_fit" yaml:"topical_fit"`

	// MetadataQuality reflects metadata completeness in [0,1]. It is
	// informational only and never feeds into Overall.
	MetadataQuality float64 `json:"metadata_quality" yaml:"metadata_quality"`

	// Overall is the composite ranking score on a 0-100 scale. It is
	// meaningful only when Scored is true.
	Overall float64 `json:"overall" yaml:"overall"`

	// Scored records that semantic scoring has run and Overall is valid.
	// Filtering must never consider a document with Scored == false.
	Scored bool `json:"scored" yaml:"scored"`
}

// HasIdentifier reports whether the document carries a usable global
// identifier or title for dedup keying.
func (d *Document) HasIdentifier() bool {
	return d.DOI != "" || d.Title != ""
}
