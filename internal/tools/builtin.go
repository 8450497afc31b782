package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentforge/runtime/internal/sandbox"
)

// WriteFileTool overwrites a file inside the sandbox workspace with the
// given content, creating parent directories as needed. Grounded on the
// teacher's tools/sandbox executor pattern of shelling a command into
// the container rather than reaching past the ContainerBackend
// boundary for filesystem access.
type WriteFileTool struct{}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path relative to the workspace root"`
	Content string `json:"content" jsonschema:"description=Full file contents to write"`
}

func (WriteFileTool) Definition() Definition {
	return Definition{
		Name:        "write_file",
		Description: "Write (overwrite) a file in the workspace, creating parent directories as needed.",
		Schema:      ReflectSchema(writeFileArgs{}),
	}
}

func (WriteFileTool) NeedsReplay() bool { return true }

func (WriteFileTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args writeFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	if rc.Access == sandbox.WorkspaceNone {
		return "", fmt.Errorf("write_file: workspace access is disabled for this sandbox")
	}
	if rc.Access != sandbox.WorkspaceReadWrite {
		return "", fmt.Errorf("write_file: sandbox workspace is read-only")
	}

	dir := parentDir(args.Path)
	script := fmt.Sprintf("mkdir -p %s && cat > %s", shQuote(dir), shQuote(args.Path))
	result, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", script}, args.Content)
	if err != nil {
		return "", fmt.Errorf("write_file: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("write_file: exit %d: %s", result.ExitCode, result.Stderr)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// BashTool runs an arbitrary shell command inside the sandbox.
type BashTool struct{}

type bashArgs struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to run via sh -c"`
}

func (BashTool) Definition() Definition {
	return Definition{
		Name:        "bash",
		Description: "Run a shell command inside the sandbox workspace and return its stdout/stderr.",
		Schema:      ReflectSchema(bashArgs{}),
	}
}

func (BashTool) NeedsReplay() bool { return true }

func (BashTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args bashArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("bash: %w", err)
	}
	if rc.Access == sandbox.WorkspaceNone {
		return "", fmt.Errorf("bash: workspace access is disabled for this sandbox")
	}

	result, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", args.Command}, "")
	if err != nil {
		return "", fmt.Errorf("bash: %w", err)
	}
	return formatExecResult(result), nil
}

// EditFileTool replaces the first occurrence of OldText with NewText in
// an existing file, failing if OldText is not found (so a model cannot
// silently no-op an edit it believes it made).
type EditFileTool struct{}

type editFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path relative to the workspace root"`
	OldText string `json:"old_text" jsonschema:"required,description=Exact text to replace"`
	NewText string `json:"new_text" jsonschema:"description=Replacement text"`
}

func (EditFileTool) Definition() Definition {
	return Definition{
		Name:        "edit_file",
		Description: "Replace the first occurrence of old_text with new_text in a file.",
		Schema:      ReflectSchema(editFileArgs{}),
	}
}

func (EditFileTool) NeedsReplay() bool { return true }

func (EditFileTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args editFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("edit_file: %w", err)
	}
	if rc.Access != sandbox.WorkspaceReadWrite {
		return "", fmt.Errorf("edit_file: sandbox workspace is read-only")
	}

	read, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"cat", args.Path}, "")
	if err != nil {
		return "", fmt.Errorf("edit_file: read: %w", err)
	}
	if read.ExitCode != 0 {
		return "", fmt.Errorf("edit_file: read: exit %d: %s", read.ExitCode, read.Stderr)
	}
	if !strings.Contains(read.Stdout, args.OldText) {
		return "", fmt.Errorf("edit_file: old_text not found in %s", args.Path)
	}
	updated := strings.Replace(read.Stdout, args.OldText, args.NewText, 1)

	write, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"sh", "-c", "cat > " + shQuote(args.Path)}, updated)
	if err != nil {
		return "", fmt.Errorf("edit_file: write: %w", err)
	}
	if write.ExitCode != 0 {
		return "", fmt.Errorf("edit_file: write: exit %d: %s", write.ExitCode, write.Stderr)
	}
	return fmt.Sprintf("edited %s", args.Path), nil
}

// RmFileTool deletes a file from the sandbox workspace.
type RmFileTool struct{}

type rmFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path relative to the workspace root"`
}

func (RmFileTool) Definition() Definition {
	return Definition{
		Name:        "rm_file",
		Description: "Delete a file from the workspace.",
		Schema:      ReflectSchema(rmFileArgs{}),
	}
}

func (RmFileTool) NeedsReplay() bool { return true }

func (RmFileTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args rmFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("rm_file: %w", err)
	}
	if rc.Access != sandbox.WorkspaceReadWrite {
		return "", fmt.Errorf("rm_file: sandbox workspace is read-only")
	}

	result, err := rc.Backend.Exec(ctx, rc.Handle, rc.Access, []string{"rm", "-f", args.Path}, "")
	if err != nil {
		return "", fmt.Errorf("rm_file: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("rm_file: exit %d: %s", result.ExitCode, result.Stderr)
	}
	return fmt.Sprintf("removed %s", args.Path), nil
}

// DoneTool carries no sandbox side effect of its own: calling it is how
// an agent signals it considers the task complete. The toolhandler
// recognises a call to "done" and feeds it through the aggregate's
// Finished transition instead of routing its result back as an ordinary
// tool result; Execute exists so the tool is still a well-formed,
// schema-validated entry in a Registry used uniformly by callers that
// don't special-case it.
type DoneTool struct{}

type doneArgs struct {
	Summary string `json:"summary" jsonschema:"description=Short summary of what was accomplished"`
}

func (DoneTool) Definition() Definition {
	return Definition{
		Name:        "done",
		Description: "Signal that the task is complete.",
		Schema:      ReflectSchema(doneArgs{}),
	}
}

func (DoneTool) NeedsReplay() bool { return false }

func (DoneTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args doneArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("done: %w", err)
	}
	return args.Summary, nil
}

// waitOutput is the canned content every user-interaction tool below
// returns: these tools' whole purpose is to surface a wait_type marker
// in the tool result immediately, the way the teacher's gateway layer
// hands a request off to a human channel rather than blocking the
// handler goroutine on one. Routing that marker to an operator and
// feeding their reply back in is an outer-surface concern (a CLI
// prompt, a chat bridge) outside the toolhandler.
type waitOutput struct {
	Status   string `json:"status"`
	WaitType string `json:"wait_type"`
}

// RequestMultiChoiceTool asks the operator to choose among options,
// mirroring user_interaction.rs's MultiChoiceTool.
type RequestMultiChoiceTool struct{}

type requestMultiChoiceArgs struct {
	Prompt        string   `json:"prompt" jsonschema:"required,description=The question or prompt for the user"`
	Options       []string `json:"options" jsonschema:"required,description=List of options for the user to choose from"`
	AllowMultiple bool     `json:"allow_multiple,omitempty" jsonschema:"description=Whether to allow multiple selections"`
}

func (RequestMultiChoiceTool) Definition() Definition {
	return Definition{
		Name:        "request_multi_choice",
		Description: "Request user to select from multiple options.",
		Schema:      ReflectSchema(requestMultiChoiceArgs{}),
	}
}

func (RequestMultiChoiceTool) NeedsReplay() bool { return false }

func (RequestMultiChoiceTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args requestMultiChoiceArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("request_multi_choice: %w", err)
	}
	return marshalWait("multi_choice")
}

// RequestClarificationTool asks the operator a clarifying question,
// mirroring user_interaction.rs's ClarificationTool.
type RequestClarificationTool struct{}

type requestClarificationArgs struct {
	Question string `json:"question" jsonschema:"required,description=The clarification question"`
	Context  string `json:"context,omitempty" jsonschema:"description=Optional context about what needs clarification"`
}

func (RequestClarificationTool) Definition() Definition {
	return Definition{
		Name:        "request_clarification",
		Description: "Request clarification from the user when something is unclear.",
		Schema:      ReflectSchema(requestClarificationArgs{}),
	}
}

func (RequestClarificationTool) NeedsReplay() bool { return false }

func (RequestClarificationTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args requestClarificationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("request_clarification: %w", err)
	}
	return marshalWait("clarification")
}

// RequestConfirmationTool asks the operator for yes/no confirmation,
// mirroring user_interaction.rs's ConfirmationTool.
type RequestConfirmationTool struct{}

type requestConfirmationArgs struct {
	Prompt string `json:"prompt" jsonschema:"required,description=The confirmation prompt"`
}

func (RequestConfirmationTool) Definition() Definition {
	return Definition{
		Name:        "request_confirmation",
		Description: "Request yes/no confirmation from the user.",
		Schema:      ReflectSchema(requestConfirmationArgs{}),
	}
}

func (RequestConfirmationTool) NeedsReplay() bool { return false }

func (RequestConfirmationTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args requestConfirmationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("request_confirmation: %w", err)
	}
	return marshalWait("confirmation")
}

// ContinueGenerationTool lets the model flag that it hit a length limit
// mid-task and needs a fresh completion to continue, mirroring
// user_interaction.rs's ContinueTool.
type ContinueGenerationTool struct{}

type continueGenerationArgs struct {
	Reason          string `json:"reason" jsonschema:"required,description=Why continuation is needed"`
	ProgressSummary string `json:"progress_summary,omitempty" jsonschema:"description=Summary of progress so far"`
}

type continueOutput struct {
	Status           string `json:"status"`
	NeedContinuation bool   `json:"need_continuation"`
}

func (ContinueGenerationTool) Definition() Definition {
	return Definition{
		Name:        "continue_generation",
		Description: "Indicate that generation needs to continue due to length limits.",
		Schema:      ReflectSchema(continueGenerationArgs{}),
	}
}

func (ContinueGenerationTool) NeedsReplay() bool { return false }

func (ContinueGenerationTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args continueGenerationArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("continue_generation: %w", err)
	}
	data, err := json.Marshal(continueOutput{Status: "need_continuation", NeedContinuation: true})
	if err != nil {
		return "", fmt.Errorf("continue_generation: marshal result: %w", err)
	}
	return string(data), nil
}

func marshalWait(waitType string) (string, error) {
	data, err := json.Marshal(waitOutput{Status: "waiting_for_user", WaitType: waitType})
	if err != nil {
		return "", fmt.Errorf("marshal wait result: %w", err)
	}
	return string(data), nil
}

func formatExecResult(result sandbox.ExecResult) string {
	if result.ExitCode == 0 && result.Stderr == "" {
		return result.Stdout
	}
	return fmt.Sprintf("exit %d\nstdout:\n%s\nstderr:\n%s", result.ExitCode, result.Stdout, result.Stderr)
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}

// shQuote wraps s in single quotes for use inside a `sh -c` script,
// escaping any single quote s already contains.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
