package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
	}{
		{"empty query", &SearchQuery{Query: ""}, true},
		{"whitespace query", &SearchQuery{Query: "   "}, true},
		{"valid query", &SearchQuery{Query: "invoice"}, false},
		{"sets default limit", &SearchQuery{Query: "x", Limit: 0}, false},
		{"caps limit at 100", &SearchQuery{Query: "x", Limit: 200}, false},
		{"clamps negative offset", &SearchQuery{Query: "x", Offset: -3}, false},
		{"enables both when both false", &SearchQuery{Query: "x", KeywordEnabled: false, SemanticEnabled: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.Limit == 0 {
				t.Error("expected default limit to be set")
			}
			if tt.query.Limit > 100 {
				t.Errorf("expected limit capped at 100, got %d", tt.query.Limit)
			}
			if tt.query.Offset < 0 {
				t.Errorf("expected offset >= 0, got %d", tt.query.Offset)
			}
			if !tt.query.KeywordEnabled && !tt.query.SemanticEnabled {
				t.Error("expected at least one search path enabled")
			}
		})
	}
}

func TestSearchQuery_ValidateKeepsSingleMode(t *testing.T) {
	q := &SearchQuery{Query: "x", KeywordEnabled: true}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.SemanticEnabled {
		t.Error("semantic should stay disabled when keyword-only was requested")
	}
}

func TestSearchRecord_HasEmbedding(t *testing.T) {
	if (&SearchRecord{}).HasEmbedding() {
		t.Error("nil embedding should report false")
	}
	if !(&SearchRecord{Embedding: []float32{1}}).HasEmbedding() {
		t.Error("non-empty embedding should report true")
	}
}
