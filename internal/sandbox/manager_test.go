package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentforge/runtime/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateGetRoundTrip(t *testing.T) {
	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "main.py"), []byte("print('hi')"), 0o644))

	m := NewManager(NewFakeBackend(), config.TemplateConfig{Name: "python-3.12", SourceDir: hostDir})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sb, err := m.CreateFromDirectory(ctx, "agent-1", hostDir, nil)
	require.NoError(t, err)
	require.NotNil(t, sb)
	assert.Equal(t, "agent-1", sb.ID)

	fetched, err := m.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Same(t, sb, fetched)
}

func TestManager_GetUnknownReturnsNotFound(t *testing.T) {
	m := NewManager(NewFakeBackend(), config.TemplateConfig{})
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_SetOverwritesRegistry(t *testing.T) {
	m := NewManager(NewFakeBackend(), config.TemplateConfig{})
	ctx := context.Background()

	sb := &Sandbox{ID: "agent-2", HostDir: "/tmp/whatever"}
	require.NoError(t, m.Set(ctx, sb))

	fetched, err := m.Get(ctx, "agent-2")
	require.NoError(t, err)
	assert.Same(t, sb, fetched)
}

func TestManager_ShutdownRejectsSubsequentCalls(t *testing.T) {
	m := NewManager(NewFakeBackend(), config.TemplateConfig{})
	ctx := context.Background()

	require.NoError(t, m.Shutdown(ctx))

	_, err := m.Get(ctx, "anything")
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestFakeBackend_ExecRunsInsideCopiedWorkspace(t *testing.T) {
	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "greeting.txt"), []byte("hello"), 0o644))

	backend := NewFakeBackend()
	ctx := context.Background()
	handle, err := backend.CreateFromDirectory(ctx, "x", hostDir, config.TemplateConfig{}, nil)
	require.NoError(t, err)
	defer backend.Close(handle)

	result, err := backend.Exec(ctx, handle, WorkspaceReadWrite, []string{"cat", "greeting.txt"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello", result.Stdout)
}

func TestParseWorkspaceAccess(t *testing.T) {
	tests := []struct {
		raw  string
		want WorkspaceAccessMode
	}{
		{"rw", WorkspaceReadWrite},
		{"read-write", WorkspaceReadWrite},
		{"none", WorkspaceNone},
		{"ro", WorkspaceReadOnly},
		{"", WorkspaceReadOnly},
		{"garbage", WorkspaceReadOnly},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseWorkspaceAccess(tt.raw), tt.raw)
	}
}
