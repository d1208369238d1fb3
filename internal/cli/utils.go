// Package cli provides CLI output helpers for Tegami.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one line per hit.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

const excerptWords = 30

// ParseOutputFormat maps a flag value to a format. Unknown values are an error.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, compact or json)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, hit := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n",
				hit.Rank, hit.Score, hit.MatchSource, hit.Message.ID, utils.Truncate(hit.Message.Subject, 80))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms", response.Total, response.QueryTime)
	if !response.SemanticAvailable {
		fmt.Fprint(w, " (keyword only)")
	}
	fmt.Fprint(w, "\n\n")
	for _, hit := range response.Results {
		writeOneResult(w, hit)
	}
}

func writeOneResult(w io.Writer, hit *models.SearchHit) {
	msg := hit.Message
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", hit.MatchSource, hit.Rank, hit.Score)
	fmt.Fprintf(w, "ID: %s  Account: %s\n", msg.ID, msg.AccountID)
	if msg.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", msg.Subject)
	}
	from := msg.SenderAddress
	if msg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", msg.SenderName, msg.SenderAddress)
	}
	fmt.Fprintf(w, "From: %s\n", from)
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(w, "Date: %s\n", msg.ReceivedAt.Format("2006-01-02 15:04"))
	}
	if msg.BodyExcerpt != "" {
		fmt.Fprintf(w, "\n%s\n", TruncateWords(msg.BodyExcerpt, excerptWords))
	}
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
