package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/agentforge/runtime/internal/config"
	"github.com/google/uuid"
)

// FakeBackend is an in-process ContainerBackend that runs commands
// directly against a copy of the host directory instead of a real
// container runtime. It exists for tests and for local development
// without Docker/Firecracker/Dagger installed; spec.md §6 treats
// ContainerBackend as an external collaborator, so this is the only
// concrete backend implemented in this repository.
type FakeBackend struct {
	mu   sync.Mutex
	dirs map[string]string
}

// NewFakeBackend returns a ready-to-use FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{dirs: make(map[string]string)}
}

// CreateFromDirectory copies hostDir into a fresh temp directory that
// stands in for the sandbox's isolated filesystem; restrictedFiles are
// chmod'd read-only within the copy.
func (b *FakeBackend) CreateFromDirectory(ctx context.Context, id, hostDir string, tmpl config.TemplateConfig, restrictedFiles []string) (BackendHandle, error) {
	root, err := os.MkdirTemp("", "sandbox-"+sanitizeID(id)+"-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: fake backend: %w", err)
	}

	if hostDir != "" {
		if err := copyDir(hostDir, root); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("sandbox: fake backend: copy workspace: %w", err)
		}
	}

	for _, rel := range restrictedFiles {
		path := filepath.Join(root, rel)
		if info, err := os.Stat(path); err == nil {
			os.Chmod(path, info.Mode()&^0o222)
		}
	}

	handle := uuid.NewString()
	b.mu.Lock()
	b.dirs[handle] = root
	b.mu.Unlock()
	return handle, nil
}

// Exec runs cmd with its working directory set to the sandbox's copied
// directory. Access mode is honored only to the extent of refusing
// execution under WorkspaceNone, since the fake backend has no real
// mount boundary to enforce read-only at.
func (b *FakeBackend) Exec(ctx context.Context, handle BackendHandle, access WorkspaceAccessMode, cmd []string, stdin string) (ExecResult, error) {
	if len(cmd) == 0 {
		return ExecResult{}, fmt.Errorf("sandbox: fake backend: empty command")
	}
	dir, ok := b.lookup(handle)
	if !ok {
		return ExecResult{}, fmt.Errorf("sandbox: fake backend: unknown handle")
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = dir
	if stdin != "" {
		c.Stdin = bytes.NewBufferString(stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("sandbox: fake backend: exec: %w", err)
	}
	return result, nil
}

// ExportDirectory copies containerDir (relative to the sandbox's copied
// root, or absolute within it) to hostDest on the real host filesystem.
func (b *FakeBackend) ExportDirectory(ctx context.Context, handle BackendHandle, containerDir, hostDest string) error {
	dir, ok := b.lookup(handle)
	if !ok {
		return fmt.Errorf("sandbox: fake backend: unknown handle")
	}
	src := filepath.Join(dir, containerDir)
	if err := os.MkdirAll(hostDest, 0o755); err != nil {
		return fmt.Errorf("sandbox: fake backend: export: %w", err)
	}
	return copyDir(src, hostDest)
}

// Close removes the sandbox's temp directory.
func (b *FakeBackend) Close(handle BackendHandle) error {
	b.mu.Lock()
	dir, ok := b.dirs[handle.(string)]
	delete(b.dirs, handle.(string))
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return os.RemoveAll(dir)
}

func (b *FakeBackend) lookup(handle BackendHandle) (string, bool) {
	key, ok := handle.(string)
	if !ok {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	dir, ok := b.dirs[key]
	return dir, ok
}

func sanitizeID(id string) string {
	return filepath.Base(id)
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
