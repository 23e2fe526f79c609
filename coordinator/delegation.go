package coordinator

import (
	"fmt"

	"github.com/hupe1980/toolmesh/agent"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/logging"
	"github.com/hupe1980/toolmesh/tool"
)

var delegationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"task": map[string]any{
			"type":        "string",
			"description": "The sub-task for the agent, phrased as a self-contained request",
		},
	},
	"required": []string{"task"},
}

// delegatedSession keeps a sub-agent's memory apart from the user's
// conversation, which only the coordinator writes to.
func delegatedSession(sessionID, agentName string) string {
	if sessionID == "" {
		return ""
	}
	return sessionID + "/" + agentName
}

// delegationTool exposes a as a tool. A failing agent never fails the tool:
// the failure is returned as descriptive text for the executor to handle.
func delegationTool(a *agent.Agent, logger logging.Logger) tool.Tool {
	desc := fmt.Sprintf("Ask the %s agent to handle a sub-task.", a.Name())
	if d := a.Description(); d != "" {
		desc += " " + d
	}

	return tool.NewFunctionTool(DelegationToolName(a.Name()), desc, delegationSchema,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			task, _ := args["task"].(string)

			logger.Debug("coordinator.delegation.start", "agent", a.Name(), "execution_id", tc.ExecutionID())

			out, err := a.Invoke(tc.Context(), agent.Input{Text: task, SessionID: delegatedSession(tc.SessionID(), a.Name())})
			if err != nil {
				derr := &core.DelegationError{Agent: a.Name(), Err: err}
				logger.Warn("coordinator.delegation.failed", "agent", a.Name(), "error", err.Error())
				return derr.Error(), nil
			}

			return out.Text, nil
		})
}
