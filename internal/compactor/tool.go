package compactor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/runtime/internal/tools"
)

// FinishDelegationTool is the only tool a compactor aggregate's
// completion requests advertise, mirroring compaction.rs's
// FinishDelegationTool: calling it carries the compacted result, which
// Extension.Handle recognises to emit a Finished marker.
type FinishDelegationTool struct{}

type finishDelegationToolArgs struct {
	Result string `json:"result" jsonschema:"required,description=The compacted error message"`
}

func (FinishDelegationTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        finishDelegationTool,
		Description: "Report the compacted error message and finish this delegation.",
		Schema:      tools.ReflectSchema(finishDelegationToolArgs{}),
	}
}

// NeedsReplay is false: finish_delegation has no sandbox side effect to
// re-run during C7 replay, its only effect is the Finished marker
// Extension.Handle derives from the committed ToolResults.
func (FinishDelegationTool) NeedsReplay() bool { return false }

func (FinishDelegationTool) Execute(_ context.Context, _ tools.RunContext, raw json.RawMessage) (string, error) {
	var args finishDelegationToolArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("finish_delegation: %w", err)
	}
	return args.Result, nil
}

// Register adds FinishDelegationTool to r, for callers wiring a
// toolhandler scoped to the compactor aggregate type.
func Register(r *tools.Registry) error {
	return r.Register(FinishDelegationTool{})
}
