//nolint:testpackage // testing internal helpers directly
package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
	"hits": {
		"max_score": 4.0,
		"hits": [
			{"_id": "doc-1", "_score": 4.0, "_source": {"title": "SSO setup", "content": "SAML and OIDC are supported.", "source": "docs/sso.md"}},
			{"_id": "doc-2", "_score": 2.0, "_source": {"title": "Pricing", "content": "Tiered per seat.", "source": "docs/pricing.md"}},
			{"_id": "doc-3", "_score": 0.4, "_source": {"title": "Changelog", "content": "Minor fixes.", "source": "docs/changelog.md"}}
		]
	}
}`

func TestDecodeSnippets_NormalizesAndFilters(t *testing.T) {
	snippets, err := decodeSnippets([]byte(sampleResponse), Query{Limit: 10, MinSimilarity: 0.3})
	require.NoError(t, err)
	require.Len(t, snippets, 2)

	assert.Equal(t, "doc-1", snippets[0].ID)
	assert.Equal(t, 1.0, snippets[0].Similarity)
	assert.Equal(t, "doc-2", snippets[1].ID)
	assert.Equal(t, 0.5, snippets[1].Similarity)
}

func TestDecodeSnippets_AppliesLimit(t *testing.T) {
	snippets, err := decodeSnippets([]byte(sampleResponse), Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "doc-1", snippets[0].ID)
}

func TestDecodeSnippets_EmptyHits(t *testing.T) {
	snippets, err := decodeSnippets([]byte(`{"hits":{"max_score":0,"hits":[]}}`), Query{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestDecodeSnippets_Malformed(t *testing.T) {
	_, err := decodeSnippets([]byte(`not json`), Query{})
	require.Error(t, err)
}

func TestNopRetriever(t *testing.T) {
	snippets, err := NopRetriever{}.Retrieve(t.Context(), Query{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, snippets)
}
