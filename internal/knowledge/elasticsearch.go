package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/callsight/callsight/internal/logger"
)

// DefaultIndexPrefix is prepended to the workspace ID to form the index name.
const DefaultIndexPrefix = "knowledge_"

// ESRetriever searches per-workspace Elasticsearch indices.
type ESRetriever struct {
	client      *elasticsearch.Client
	indexPrefix string
	log         logger.Logger
}

// NewESRetriever builds a retriever over the given client.
func NewESRetriever(client *elasticsearch.Client, log logger.Logger) *ESRetriever {
	return &ESRetriever{client: client, indexPrefix: DefaultIndexPrefix, log: log}
}

type searchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Title   string `json:"title"`
				Content string `json:"content"`
				Source  string `json:"source"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Retrieve runs a match query against the workspace index and returns hits
// that clear the similarity floor. A missing index is treated as an empty
// knowledge base, not an error.
func (r *ESRetriever) Retrieve(ctx context.Context, q Query) ([]Snippet, error) {
	body := map[string]any{
		"size": q.Limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"title^2", "content"},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.indexPrefix+q.WorkspaceID),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		r.log.Debug("knowledge index missing", logger.String("workspace_id", q.WorkspaceID))
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("knowledge search: status %s", res.Status())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return decodeSnippets(raw, q)
}

// decodeSnippets parses a search response and converts raw scores to
// similarities relative to the best hit.
func decodeSnippets(raw []byte, q Query) ([]Snippet, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(resp.Hits.Hits) == 0 || resp.Hits.MaxScore <= 0 {
		return nil, nil
	}

	snippets := make([]Snippet, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		similarity := hit.Score / resp.Hits.MaxScore
		if similarity < q.MinSimilarity {
			continue
		}
		snippets = append(snippets, Snippet{
			ID:         hit.ID,
			Title:      hit.Source.Title,
			Content:    hit.Source.Content,
			Source:     hit.Source.Source,
			Similarity: similarity,
		})
	}
	if q.Limit > 0 && len(snippets) > q.Limit {
		snippets = snippets[:q.Limit]
	}
	return snippets, nil
}
