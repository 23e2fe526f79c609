package retrieval

import (
	"errors"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/tool"
)

// SearchToolName is the name of the tool injected into retrieval agents.
const SearchToolName = "search_knowledge_base"

// PromptClause is appended to the system prompt of retrieval agents.
const PromptClause = "You have access to a knowledge base. Use the search_knowledge_base tool " +
	"when the question needs facts that are not in the conversation or the provided context."

// NewSearchTool builds the knowledge base search tool bound to the
// collection of cfg.
func NewSearchTool(store core.VectorStore, cfg Config) *tool.FunctionTool {
	cfg = cfg.WithDefaults()

	return tool.NewFunctionTool(
		SearchToolName,
		"Search the "+cfg.CollectionName+" knowledge base for documents relevant to a query.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language search query",
				},
			},
			"required": []string{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, errors.New("query must not be empty")
			}

			results, err := store.Search(tc.Context(), query, cfg.CollectionName, cfg.SearchOptions())
			if err != nil {
				return nil, err
			}

			if len(results) == 0 {
				return "No relevant documents found.", nil
			}

			return FormatResults(results, cfg.IncludeMetadata), nil
		},
	)
}
