package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/agentforge/runtime/internal/config"
)

// Manager serialises all sandbox registry mutations through a single
// goroutine draining a buffered request channel, the Go counterpart of
// manager.rs's actor task draining an mpsc channel of
// CreateFromDirectory/Get/Set/Shutdown messages. Every exported method
// sends a request and blocks on its own response channel, so the
// registry itself never needs a mutex.
type Manager struct {
	backend  ContainerBackend
	template config.TemplateConfig
	requests chan managerRequest
	done     chan struct{}
}

type managerOp int

const (
	opCreateFromDirectory managerOp = iota
	opGet
	opSet
	opShutdown
)

type managerRequest struct {
	op   managerOp
	resp chan managerResponse

	id              string
	hostDir         string
	restrictedFiles []string
	sandbox         *Sandbox
}

type managerResponse struct {
	sandbox *Sandbox
	ok      bool
	err     error
}

// requestQueueSize mirrors manager.rs's mpsc::channel(32).
const requestQueueSize = 32

// NewManager starts the serialising goroutine and returns a Manager
// bound to backend and the sandbox template every CreateFromDirectory
// call uses.
func NewManager(backend ContainerBackend, template config.TemplateConfig) *Manager {
	m := &Manager{
		backend:  backend,
		template: template,
		requests: make(chan managerRequest, requestQueueSize),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	registry := make(map[string]*Sandbox)

	for req := range m.requests {
		switch req.op {
		case opCreateFromDirectory:
			sb, err := m.createSandbox(req.id, req.hostDir, req.restrictedFiles)
			if err == nil {
				registry[req.id] = sb
			}
			req.resp <- managerResponse{sandbox: sb, err: err}

		case opGet:
			sb, ok := registry[req.id]
			req.resp <- managerResponse{sandbox: sb, ok: ok}

		case opSet:
			registry[req.id] = req.sandbox
			req.resp <- managerResponse{ok: true}

		case opShutdown:
			req.resp <- managerResponse{ok: true}
			return
		}
	}
}

func (m *Manager) createSandbox(id, hostDir string, restrictedFiles []string) (*Sandbox, error) {
	handle, err := m.backend.CreateFromDirectory(context.Background(), id, hostDir, m.template, restrictedFiles)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create %s: %w", id, err)
	}
	return &Sandbox{
		ID:              id,
		HostDir:         hostDir,
		Template:        m.template,
		Access:          WorkspaceReadOnly,
		RestrictedFiles: restrictedFiles,
		CreatedAt:       time.Now(),
		handle:          handle,
	}, nil
}

// CreateFromDirectory builds a sandbox from hostDir and registers it
// under id, replacing any prior sandbox registered under the same id
// (its backend resources are not released automatically — call Close
// first if that matters).
func (m *Manager) CreateFromDirectory(ctx context.Context, id, hostDir string, restrictedFiles []string) (*Sandbox, error) {
	resp, err := m.send(ctx, managerRequest{
		op:              opCreateFromDirectory,
		id:              id,
		hostDir:         hostDir,
		restrictedFiles: restrictedFiles,
	})
	if err != nil {
		return nil, err
	}
	return resp.sandbox, resp.err
}

// Get returns the sandbox registered under id, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Sandbox, error) {
	resp, err := m.send(ctx, managerRequest{op: opGet, id: id})
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		return nil, ErrNotFound
	}
	return resp.sandbox, nil
}

// Set registers sb under its own ID, overwriting any existing entry.
func (m *Manager) Set(ctx context.Context, sb *Sandbox) error {
	_, err := m.send(ctx, managerRequest{op: opSet, id: sb.ID, sandbox: sb})
	return err
}

// Shutdown stops the serialising goroutine. Every method called after
// Shutdown returns ErrManagerClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, err := m.send(ctx, managerRequest{op: opShutdown})
	return err
}

func (m *Manager) send(ctx context.Context, req managerRequest) (managerResponse, error) {
	select {
	case <-m.done:
		return managerResponse{}, ErrManagerClosed
	default:
	}

	req.resp = make(chan managerResponse, 1)

	select {
	case m.requests <- req:
	case <-m.done:
		return managerResponse{}, ErrManagerClosed
	case <-ctx.Done():
		return managerResponse{}, ctx.Err()
	}

	select {
	case resp := <-req.resp:
		return resp, nil
	case <-ctx.Done():
		return managerResponse{}, ctx.Err()
	}
}
