// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// formatTable writes the result set as a human-readable table.
func formatTable(res *types.SearchResult, w io.Writer) {
	if len(res.Documents) == 0 {
		fmt.Fprintln(w, "No results found.")
		fmt.Fprintf(w, "Stopped after %d iteration(s): %s\n", res.Iterations, res.Decision.Reason)
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-6s  %s\n",
		"Rank", "Title", "Authors", "Year", "Score", "Sources")
	fmt.Fprintln(w, strings.Repeat("-", 112))

	for i, d := range res.Documents {
		title := d.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		year := ""
		if d.Year > 0 {
			year = fmt.Sprintf("%d", d.Year)
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-6.1f  %s\n",
			i+1, title, formatAuthors(d.Authors), year, d.Overall, strings.Join(d.Sources, ","))
	}

	fmt.Fprintf(w, "\n%d papers (field %s, final threshold %.0f, %d iteration(s), %s)\n",
		len(res.Documents), res.Field, res.FinalThreshold, res.Iterations, res.Decision.Reason)
}

// formatJSON writes the full result as indented JSON.
func formatJSON(res *types.SearchResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
