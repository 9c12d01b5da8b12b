// Package knowledge retrieves workspace playbook and product snippets for
// grounding live suggestions.
package knowledge

import "context"

// Snippet is one retrieved knowledge-base fragment. Similarity is
// normalized to [0,1] relative to the best hit of the query.
type Snippet struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// Query bounds one retrieval request.
type Query struct {
	WorkspaceID   string
	Text          string
	Limit         int
	MinSimilarity float64
}

// Retriever finds snippets relevant to a query text, ordered by descending
// similarity.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]Snippet, error)
}

// NopRetriever returns no snippets. It stands in when no search backend is
// configured, so suggestions fall back to unsourced answers.
type NopRetriever struct{}

// Retrieve always returns an empty result.
func (NopRetriever) Retrieve(_ context.Context, _ Query) ([]Snippet, error) {
	return nil, nil
}
