// Package sandbox implements the Sandbox lifecycle: a per-aggregate
// isolated workspace a ContainerBackend executes tool commands inside,
// and a Manager that creates/caches sandboxes behind a single
// serialising goroutine.
//
// Grounded on _examples/original_source/dabgent/dabgent_sandbox/src/manager.rs
// (an actor task draining a bounded mpsc channel of
// create/get/set/shutdown messages against a registry keyed by sandbox
// id) and the teacher's internal/tools/sandbox package for Go-idiomatic
// executor/workspace-access shapes (RuntimeExecutor, WorkspaceAccessMode,
// ParseWorkspaceAccess).
package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentforge/runtime/internal/config"
)

// ErrNotFound is returned by Manager.Get when no sandbox is registered
// under the requested id.
var ErrNotFound = errors.New("sandbox: not found")

// ErrManagerClosed is returned by every Manager method once Shutdown has
// completed.
var ErrManagerClosed = errors.New("sandbox: manager closed")

// WorkspaceAccessMode controls how a sandbox's workspace directory is
// exposed to a ContainerBackend.
type WorkspaceAccessMode string

const (
	// WorkspaceNone means no workspace is mounted (most secure; a
	// backend copies files in/out explicitly instead).
	WorkspaceNone WorkspaceAccessMode = "none"

	// WorkspaceReadOnly mounts the workspace read-only (default).
	WorkspaceReadOnly WorkspaceAccessMode = "ro"

	// WorkspaceReadWrite mounts the workspace read-write.
	WorkspaceReadWrite WorkspaceAccessMode = "rw"
)

// ParseWorkspaceAccess converts a config string to a WorkspaceAccessMode,
// defaulting to read-only for anything unrecognised.
func ParseWorkspaceAccess(raw string) WorkspaceAccessMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rw", "readwrite", "read-write", "write":
		return WorkspaceReadWrite
	case "none", "disabled":
		return WorkspaceNone
	case "ro", "readonly", "read-only", "":
		return WorkspaceReadOnly
	default:
		return WorkspaceReadOnly
	}
}

// Sandbox is one isolated workspace, identified by the aggregate id it
// was created for.
type Sandbox struct {
	ID              string
	HostDir         string
	Template        config.TemplateConfig
	Access          WorkspaceAccessMode
	RestrictedFiles []string
	CreatedAt       time.Time

	handle BackendHandle
}

// Handle returns the backend-specific opaque handle, for callers that
// need to pass it back into the owning ContainerBackend directly (e.g.
// the tool handler's Exec path).
func (s *Sandbox) Handle() BackendHandle { return s.handle }

// BackendHandle is an opaque reference a ContainerBackend hands back
// from CreateFromDirectory and expects on later Exec/Close calls. Its
// concrete type is backend-specific (a container id, a dagger session,
// …); callers never inspect it.
type BackendHandle any

// ExecResult is the outcome of running one command inside a sandbox.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ContainerBackend builds and drives the actual isolation mechanism
// behind a Sandbox. Concrete implementations wrap a real container
// runtime (Docker, Firecracker, Dagger, …); fakeBackend in this package
// is the in-process, no-dependency implementation used by tests and by
// CreateFromDirectory when no real backend is configured.
type ContainerBackend interface {
	// CreateFromDirectory builds a fresh sandbox rooted at hostDir per
	// tmpl, restricting read-write access to everything except
	// restrictedFiles, and returns the backend handle for it.
	CreateFromDirectory(ctx context.Context, id, hostDir string, tmpl config.TemplateConfig, restrictedFiles []string) (BackendHandle, error)

	// Exec runs one command inside the sandbox identified by handle.
	Exec(ctx context.Context, handle BackendHandle, access WorkspaceAccessMode, cmd []string, stdin string) (ExecResult, error)

	// ExportDirectory copies containerDir out of the sandbox to hostDest
	// on the host filesystem, the C7 export step's final move (spec.md's
	// "export the sandbox's /output to an artifact directory").
	ExportDirectory(ctx context.Context, handle BackendHandle, containerDir, hostDest string) error

	// Close releases any resources CreateFromDirectory allocated.
	Close(handle BackendHandle) error
}
