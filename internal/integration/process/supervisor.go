package process

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Supervisor tracks every Process started through it, so a single
// process-wide Shutdown can reach all of them regardless of which
// session or request spawned each one.
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process

	closed atomic.Bool

	// onProcessExit is called when a tracked process exits.
	onProcessExit func(p *Process)
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithProcessExitCallback sets a callback invoked from a dedicated
// per-process goroutine whenever a tracked process exits, whatever the
// cause (clean exit, killed by signal, or KillGroup reaching it from
// outside the Process's own Signal/Kill).
func WithProcessExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onProcessExit = fn
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start starts a new managed process, piping its stdin/stdout/stderr
// unless cmd already configured them itself.
//
// Returns ErrSupervisorShutdown if the supervisor is shutting down.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}

	proc := NewProcess(id, name, cmd)

	var createdPipes []interface{ Close() error }
	cleanupPipes := func() {
		for _, p := range createdPipes {
			_ = p.Close()
		}
	}

	if cmd.Stdin == nil {
		stdinPipe, err := cmd.StdinPipe()
		if err != nil {
			cleanupPipes()
			return nil, fmt.Errorf("create stdin pipe: %w", err)
		}
		proc.Stdin = stdinPipe
		createdPipes = append(createdPipes, stdinPipe)
	}

	if cmd.Stdout == nil {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			cleanupPipes()
			return nil, fmt.Errorf("create stdout pipe: %w", err)
		}
		proc.Stdout = stdoutPipe
		createdPipes = append(createdPipes, stdoutPipe)
	}

	if cmd.Stderr == nil {
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			cleanupPipes()
			return nil, fmt.Errorf("create stderr pipe: %w", err)
		}
		proc.Stderr = stderrPipe
		createdPipes = append(createdPipes, stderrPipe)
	}

	// Start the process before tracking it, so a failed start never
	// appears in processes.
	if err := proc.start(); err != nil {
		cleanupPipes()
		return nil, err
	}

	s.processes[id] = proc
	go s.monitorProcess(proc)

	return proc, nil
}

// monitorProcess watches for process exit and cleans up.
func (s *Supervisor) monitorProcess(proc *Process) {
	<-proc.Done()

	if s.onProcessExit != nil {
		func() {
			defer func() { recover() }() //nolint:errcheck // a panicking callback must not affect the supervisor
			s.onProcessExit(proc)
		}()
	}

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()
}

// Get returns a process by ID, or nil if not found. Used by tests; the
// production path never needs to look a command source back up by id.
func (s *Supervisor) Get(id string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[id]
}

// Shutdown gracefully shuts down every tracked process: it sends
// SIGTERM to each, waits up to timeout for them to exit, then escalates
// to SIGKILL for anything still running. Shutdown blocks until every
// process has exited and been removed from tracking, and it is
// idempotent — a second call is a no-op.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}

	s.mu.RLock()
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.RUnlock()

	if len(procs) == 0 {
		return
	}

	for _, p := range procs {
		if p.IsRunning() {
			_ = p.Terminate()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, p := range procs {
			<-p.Done()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, p := range procs {
			if p.IsRunning() {
				_ = p.Kill()
			}
		}
		<-done
	}

	s.waitForCleanup()
}

// waitForCleanup waits for every monitorProcess goroutine to finish
// removing its process from the map.
func (s *Supervisor) waitForCleanup() {
	for {
		s.mu.RLock()
		count := len(s.processes)
		s.mu.RUnlock()
		if count == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// ErrSupervisorShutdown is returned when the supervisor is shutting down.
var ErrSupervisorShutdown = fmt.Errorf("supervisor is shutting down")
