package agent

import (
	"context"

	"github.com/hupe1980/toolmesh/retrieval"
)

// invokeWithRetrieval searches the vector store first and injects the
// results as context. A failing search falls back to a plain invocation.
func (a *Agent) invokeWithRetrieval(ctx context.Context, in Input) (Output, error) {
	cfg := a.retrieval

	results, err := a.store.Search(ctx, in.Text, cfg.CollectionName, cfg.SearchOptions())
	if err != nil {
		a.logger.Warn("agent.retrieval.failed", "agent", a.desc.Name, "collection", cfg.CollectionName, "error", err.Error())
		return a.execute(ctx, in, "")
	}

	contextText := retrieval.FormatResults(results, cfg.IncludeMetadata)

	a.logger.Debug("agent.retrieval.done", "agent", a.desc.Name, "collection", cfg.CollectionName, "results", len(results))

	out, err := a.execute(ctx, in, contextText)
	if err != nil {
		return out, err
	}
	out.Context = contextText

	if cfg.StoreRetrievedContext && contextText != "" && a.memory != nil {
		if err := a.memory.AppendHuman(ctx, in.SessionID, "Retrieved context for: "+in.Text); err != nil {
			a.logger.Warn("agent.retrieval.store_failed", "agent", a.desc.Name, "error", err.Error())
			return out, nil
		}
		if err := a.memory.AppendAI(ctx, in.SessionID, contextText); err != nil {
			a.logger.Warn("agent.retrieval.store_failed", "agent", a.desc.Name, "error", err.Error())
		}
	}

	return out, nil
}
