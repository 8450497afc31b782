// Package tools implements the built-in Tool alphabet the toolhandler
// dispatches against: write_file, bash, edit_file, rm_file, done, the
// opaque validate_project validator, and the four user-interaction
// tools (request_multi_choice, request_clarification,
// request_confirmation, continue_generation). The task-plan toolset
// (create_plan and friends) lives in the sibling internal/planningtools
// package instead, since it needs internal/planning's Extension, which
// this package's RunContext already depends on. Each tool's JSON argument schema is
// reflected from its Args struct via github.com/invopop/jsonschema, the
// same way the teacher's internal/config/schema.go reflects Config into
// a JSON Schema document; incoming call arguments are validated against
// that schema with github.com/santhosh-tekuri/jsonschema/v5 before
// Execute ever sees them, grounded on the teacher's
// pkg/pluginsdk/validation.go compile-then-validate pattern.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	ischema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentforge/runtime/internal/llmclient"
	"github.com/agentforge/runtime/internal/planning"
	"github.com/agentforge/runtime/internal/sandbox"
)

// Definition describes one tool in the provider-portable shape spec.md
// §6 specifies: name, description, and a JSON Schema for its parameters.
type Definition struct {
	Name        string
	Description string
	Schema      []byte
}

// RunContext bundles what a Tool needs to act on a sandbox without
// pulling in sandbox.Manager: the backend driving execution, the
// sandbox's backend handle, and its workspace access mode. Plan carries
// the aggregate's current task-plan snapshot (nil when the aggregate's
// Extension doesn't track one) for internal/planningtools; built-in
// sandbox tools ignore it.
type RunContext struct {
	Backend sandbox.ContainerBackend
	Handle  sandbox.BackendHandle
	Access  sandbox.WorkspaceAccessMode
	Plan    *planning.State
}

// Tool is one built-in capability the LLM handler's completion requests
// advertise and the toolhandler dispatches tool calls against.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, rc RunContext, args json.RawMessage) (string, error)

	// NeedsReplay reports whether this tool's effect must be re-applied
	// to a freshly created sandbox during C7 replay (spec.md's fresh
	// sandbox, no LLM calls, mutating tool calls re-run). File-mutating
	// tools return true; read-only and external tools return false.
	NeedsReplay() bool
}

// reflectSchema builds the JSON Schema document for an Args struct,
// tagged the way tool argument structs in this package are: plain JSON
// field names via the struct's json tags. Exported so sibling packages
// defining their own Tool implementations (internal/planningtools,
// internal/compactor) can reflect their Args structs the same way
// instead of reimplementing it.
func ReflectSchema(args any) []byte {
	r := &ischema.Reflector{
		ExpandedStruct: true,
	}
	schema := r.Reflect(args)
	data, err := json.Marshal(schema)
	if err != nil {
		// Args types in this package are always plain structs of
		// strings/ints; a reflection failure here means a built-in tool
		// was defined wrong, which table-driven tests over Registry
		// catch immediately.
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	return data
}

// Registry holds the tools available to one agent, keyed by name.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t to the registry, compiling its schema up front so a
// malformed built-in tool fails at startup rather than on first call.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	compiled, err := jsonschema.CompileString(def.Name+".schema.json", string(def.Schema))
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", def.Name, err)
	}
	r.tools[def.Name] = t
	r.schemas[def.Name] = compiled
	return nil
}

// Get returns the tool registered under name, or false.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the registered tool's compiled schema.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("tools: unknown tool %q", name)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("tools: decode arguments for %s: %w", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tools: %s: invalid arguments: %w", name, err)
	}
	return nil
}

// Definitions returns every registered tool's Definition translated to
// llmclient.ToolDefinition, the shape a CompletionRequest advertises to
// a provider.
func (r *Registry) Definitions() []llmclient.ToolDefinition {
	defs := make([]llmclient.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		d := t.Definition()
		defs = append(defs, llmclient.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return defs
}

// NeedsReplay reports whether the named tool must be re-run during C7
// replay. Unknown names report false: nothing to replay for a tool that
// no longer exists.
func (r *Registry) NeedsReplay(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	return t.NeedsReplay()
}

// Execute validates args against name's schema, then dispatches to the
// registered tool.
func (r *Registry) Execute(ctx context.Context, rc RunContext, name string, args json.RawMessage) (string, error) {
	if err := r.Validate(name, args); err != nil {
		return "", err
	}
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("tools: unknown tool %q", name)
	}
	return t.Execute(ctx, rc, args)
}

// NewDefaultRegistry returns a Registry with every built-in tool
// registered. The error return exists for symmetry with Register; none
// of the built-ins can actually fail to compile their own schema.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, t := range []Tool{
		WriteFileTool{},
		BashTool{},
		EditFileTool{},
		RmFileTool{},
		DoneTool{},
		NewValidateProjectTool(""),
		RequestMultiChoiceTool{},
		RequestClarificationTool{},
		RequestConfirmationTool{},
		ContinueGenerationTool{},
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
