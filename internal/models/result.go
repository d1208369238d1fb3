package models

// RankedItem is one position in a single source's ordered result list. Rank is 1-based.
type RankedItem struct {
	EmailID string `json:"email_id"`
	Rank    int    `json:"rank"`
}

// MatchSource tells which retrieval path produced a fused result.
type MatchSource string

const (
	MatchKeyword  MatchSource = "keyword"
	MatchSemantic MatchSource = "semantic"
	MatchBoth     MatchSource = "both"
)

// MergedResult is one row of a fused ranking.
type MergedResult struct {
	EmailID     string      `json:"email_id"`
	Score       float64     `json:"score"`
	MatchSource MatchSource `json:"match_source"`
}

// SearchHit is a fused result hydrated with its message.
type SearchHit struct {
	Message     *Message    `json:"message"`
	Score       float64     `json:"score"`
	MatchSource MatchSource `json:"match_source"`
	Rank        int         `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchHit `json:"results"`
	Total     int          `json:"total"`
	QueryTime int64        `json:"query_time_ms"`
	Query     string       `json:"query"`
	// SemanticAvailable is false when the query could not be embedded or the
	// semantic path failed, so results come from the keyword index alone.
	SemanticAvailable bool `json:"semantic_available"`
	// AutoFuzzy is set by callers that retried with fuzzy matching after an empty result.
	AutoFuzzy bool `json:"auto_fuzzy,omitempty"`
}
