// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// crossrefAPIBase is the Crossref works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefAPIBase = "https://api.crossref.org/works"

// crossrefMaxRows is the API's rows ceiling.
const crossrefMaxRows = 1000

// CrossrefConnector queries the Crossref REST API.
type CrossrefConnector struct {
	Client    *http.Client
	UserAgent string
	// Email is sent as mailto parameter for polite pool access.
	Email string
}

// Name returns the connector identifier.
func (c *CrossrefConnector) Name() string { return "crossref" }

// Search queries Crossref and returns up to limit normalized documents.
func (c *CrossrefConnector) Search(ctx context.Context, query string, limit int) ([]*types.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty Crossref query")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > crossrefMaxRows {
		limit = crossrefMaxRows
	}

	params := url.Values{
		"query": {query},
		"rows":  {fmt.Sprintf("%d", limit)},
	}
	if c.Email != "" {
		params.Set("mailto", c.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crossrefAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Crossref API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Crossref API returned HTTP %d", resp.StatusCode)
	}

	var cr crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing Crossref response: %w", err)
	}

	var docs []*types.Document
	for _, item := range cr.Message.Items {
		d := &types.Document{
			Title:    firstOrEmpty(item.Title),
			Abstract: stripJATS(item.Abstract),
			DOI:      item.DOI,
			Sources:  []string{"crossref"},
		}
		if len(item.Published.DateParts) > 0 && len(item.Published.DateParts[0]) > 0 {
			d.Year = item.Published.DateParts[0][0]
		}
		for _, a := range item.Authors {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name != "" {
				d.Authors = append(d.Authors, name)
			}
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// stripJATS removes the JATS XML tags Crossref wraps abstracts in
// (e.g. <jats:p>...</jats:p>).
func stripJATS(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message crossrefMessage `json:"message"`
}

type crossrefMessage struct {
	TotalResults int            `json:"total-results"`
	Items        []crossrefItem `json:"items"`
}

type crossrefItem struct {
	DOI       string          `json:"DOI"`
	Title     []string        `json:"title"`
	Abstract  string          `json:"abstract"`
	Authors   []crossrefName  `json:"author"`
	Published crossrefPartial `json:"published"`
}

type crossrefName struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefPartial struct {
	DateParts [][]int `json:"date-parts"`
}
