package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/tool"
)

// toolExecutor runs a batch of model-issued tool calls, possibly in parallel.
// It returns exactly one response per call, in call order, and never panics.
type toolExecutor struct {
	agent       string
	tools       map[string]*tool.Envelope
	maxParallel int // 0 or <1 => len(calls)
	logger      logging.Logger
}

func (e *toolExecutor) Execute(ctx context.Context, calls []core.FunctionCall) []core.FunctionResponse {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []core.FunctionResponse{e.executeOne(ctx, calls[0])}
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.FunctionResponse, n)
	sem := make(chan struct{}, maxPar)

	var wg sync.WaitGroup

	batchStart := time.Now()
	for i, fc := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = e.executeOne(ctx, fc)
		}()
	}

	wg.Wait()

	e.logger.Debug(
		"agent.functions.batch.complete",
		"agent", e.agent,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *toolExecutor) executeOne(ctx context.Context, fc core.FunctionCall) (resp core.FunctionResponse) {
	resp = core.FunctionResponse{ID: fc.ID, Name: fc.Name}

	e.logger.Debug("agent.function.start", "agent", e.agent, "function", fc.Name, "function_call_id", fc.ID)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("agent.function.panic", "agent", e.agent, "function", fc.Name, "recover", r)
			resp.Response = fmt.Sprintf("Error: %v", r)
		}

		e.logger.Info(
			"agent.function.executed",
			"agent", e.agent,
			"function", fc.Name,
			"function_call_id", fc.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", strings.HasPrefix(resp.Response, "Error: "),
		)
	}()

	if ctx.Err() != nil {
		resp.Response = "Error: execution cancelled"
		return resp
	}

	env, ok := e.tools[fc.Name]
	if !ok {
		resp.Response = fmt.Sprintf("Error: tool %q not found", fc.Name)
		return resp
	}

	resp.Response = env.ExecuteJSON(ctx, fc.Arguments)

	return resp
}

// toolResultContent packs executor results into one tool-role content.
func toolResultContent(results []core.FunctionResponse) core.Content {
	parts := make([]core.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: r})
	}
	return core.Content{Role: core.RoleTool, Parts: parts}
}
