package toolhandler

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentforge/runtime/internal/sandbox"
)

// HostDirFunc returns the host directory an agent aggregate's workspace
// should be materialised from. Agent-variant packages supply this:
// planner/worker aggregates know their own working directory from their
// extension state; tests can use a fixed directory.
type HostDirFunc func(aggregateID string) (hostDir string, access sandbox.WorkspaceAccessMode, restrictedFiles []string, err error)

// ManagerResolver is the default WorkspaceResolver: it looks a sandbox up
// in a sandbox.Manager, creating it on first use via hostDirFor.
type ManagerResolver struct {
	Manager   *sandbox.Manager
	HostDirOf HostDirFunc
}

// NewManagerResolver returns a ManagerResolver backed by mgr, deriving
// each aggregate's host directory via hostDirOf.
func NewManagerResolver(mgr *sandbox.Manager, hostDirOf HostDirFunc) *ManagerResolver {
	return &ManagerResolver{Manager: mgr, HostDirOf: hostDirOf}
}

// Resolve implements WorkspaceResolver.
func (r *ManagerResolver) Resolve(ctx context.Context, aggregateID string) (*sandbox.Sandbox, sandbox.WorkspaceAccessMode, error) {
	sb, err := r.Manager.Get(ctx, aggregateID)
	if err == nil {
		return sb, sb.Access, nil
	}
	if !errors.Is(err, sandbox.ErrNotFound) {
		return nil, "", fmt.Errorf("toolhandler: get sandbox: %w", err)
	}

	hostDir, access, restricted, err := r.HostDirOf(aggregateID)
	if err != nil {
		return nil, "", fmt.Errorf("toolhandler: resolve host dir for %s: %w", aggregateID, err)
	}

	sb, err = r.Manager.CreateFromDirectory(ctx, aggregateID, hostDir, restricted)
	if err != nil {
		return nil, "", fmt.Errorf("toolhandler: create sandbox for %s: %w", aggregateID, err)
	}
	sb.Access = access
	if err := r.Manager.Set(ctx, sb); err != nil {
		return nil, "", fmt.Errorf("toolhandler: register sandbox access for %s: %w", aggregateID, err)
	}
	return sb, access, nil
}
