package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// validateProjectTimeout bounds how long an external validator process
// may run before it is killed. spec.md's resolution for validate_project
// is explicit: a single external process call under a fixed timeout, not
// a ported pipeline with interleaved screenshot/timeout stages.
const validateProjectTimeout = 2 * time.Minute

// ValidateProjectTool shells out to an external validator binary against
// the sandbox's host directory. Unlike the other built-ins it does not
// go through a ContainerBackend: the validator runs once per call against
// the materialized workspace directory on the host, since spec.md treats
// it as an opaque external check rather than an in-sandbox tool.
type ValidateProjectTool struct {
	// validatorPath is the executable to run; defaults to "true" (a
	// stdlib-available no-op success) when empty, so a Registry can be
	// constructed before a real validator binary is configured.
	validatorPath string
}

// NewValidateProjectTool returns a ValidateProjectTool that invokes
// validatorPath. An empty path defers to "true", a harmless stand-in
// until deployment configuration supplies a real validator.
func NewValidateProjectTool(validatorPath string) ValidateProjectTool {
	if validatorPath == "" {
		validatorPath = "true"
	}
	return ValidateProjectTool{validatorPath: validatorPath}
}

type validateProjectArgs struct {
	WorkspaceDir string `json:"workspace_dir" jsonschema:"required,description=Host directory to validate"`
}

func (ValidateProjectTool) Definition() Definition {
	return Definition{
		Name:        "validate_project",
		Description: "Run the external project validator against the workspace directory.",
		Schema:      ReflectSchema(validateProjectArgs{}),
	}
}

// NeedsReplay is false: validate_project runs against the host directory
// directly rather than mutating sandbox state, so there's nothing for C7
// replay to re-apply.
func (ValidateProjectTool) NeedsReplay() bool { return false }

func (t ValidateProjectTool) Execute(ctx context.Context, rc RunContext, raw json.RawMessage) (string, error) {
	var args validateProjectArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("validate_project: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, validateProjectTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.validatorPath, args.WorkspaceDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return "", fmt.Errorf("validate_project: timed out after %s", validateProjectTimeout)
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Sprintf("validation failed (exit %d)\nstdout:\n%s\nstderr:\n%s", exitErr.ExitCode(), stdout.String(), stderr.String()), nil
	}
	if err != nil {
		return "", fmt.Errorf("validate_project: %w", err)
	}
	return stdout.String(), nil
}
