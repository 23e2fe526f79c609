// Package retrieval provides vector stores for retrieval augmented agents
// and the search_knowledge_base tool bound to one collection.
//
// Stores rank by cosine similarity when an Embedder is configured and fall
// back to keyword overlap otherwise.
package retrieval

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/hupe1980/toolmesh/core"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultCollection = "default"
	DefaultTopK       = 5
)

// Config governs retrieval for one agent.
type Config struct {
	Enabled        bool    `yaml:"enabled"`
	CollectionName string  `yaml:"collection"`
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	// IncludeMetadata renders document metadata next to the content.
	IncludeMetadata bool `yaml:"include_metadata"`
	// StoreRetrievedContext appends the retrieved text to session memory as
	// a synthetic exchange.
	StoreRetrievedContext bool `yaml:"store_retrieved_context"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.CollectionName == "" {
		c.CollectionName = DefaultCollection
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// SearchOptions converts the config into store search options.
func (c Config) SearchOptions() core.SearchOptions {
	c = c.WithDefaults()
	return core.SearchOptions{Limit: c.TopK, MinScore: c.ScoreThreshold}
}

// FormatResults renders results as numbered context blocks. An empty result
// set renders as the empty string.
func FormatResults(results []core.SearchResult, includeMetadata bool) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (score %.2f) %s", i+1, r.Score, r.Content)

		if includeMetadata && len(r.Metadata) > 0 {
			keys := make([]string, 0, len(r.Metadata))
			for k := range r.Metadata {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, r.Metadata[k]))
			}
			fmt.Fprintf(&b, "\n    metadata: %s", strings.Join(pairs, ", "))
		}
	}

	return b.String()
}

// cosine returns the cosine similarity of a and b, 0 for mismatched or zero
// vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordScore is the fraction of distinct query terms found in content.
func keywordScore(query, content string) float64 {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 0
	}

	words := tokenize(content)

	hits := 0
	for _, t := range terms {
		if slices.Contains(words, t) {
			hits++
		}
	}

	return float64(hits) / float64(len(terms))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	slices.Sort(fields)

	return slices.Compact(fields)
}

// rank filters by opts.MinScore, sorts by score descending (stable, so
// insertion order breaks ties) and applies opts.Limit.
func rank(results []core.SearchResult, opts core.SearchOptions) []core.SearchResult {
	out := results[:0]
	for _, r := range results {
		if r.Score <= 0 || r.Score < opts.MinScore {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	return out
}

func copyMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
