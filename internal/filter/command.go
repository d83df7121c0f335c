package filter

import (
	"bufio"
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/dshills/clapfilter/internal/integration/process"
	"github.com/dshills/clapfilter/internal/match"
)

// CommandGracePeriod is how long a canceled Command source lets its
// child keep running (with output dropped) before the whole process
// group is signaled, giving the shell a chance to flush buffers rather
// than dying mid-write.
const CommandGracePeriod = 200 * time.Millisecond

// CommandSource streams one Item per line of a spawned child's stdout.
// The child runs in its own process group (via the supervisor's
// grouped-process support) so a cancel reaches any subprocess it forks.
type CommandSource struct {
	proc      *process.Process
	lines     chan string
	errCh     chan error
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewCommandSource spawns shellCommand via `sh -c` in dir under the
// given Supervisor and begins streaming its stdout in a background
// goroutine. A process is named after the command it runs (truncated)
// so the daemon's shared Supervisor can tell sessions' command sources
// apart in its process list and exit logging.
//
// supervisor is almost always the one long-lived Supervisor the daemon
// (or batch run) constructed at startup, not a fresh one per source: a
// shared Supervisor is what lets process-wide shutdown reach every
// still-running shell command a session ever spawned, not just the one
// most recently started.
func NewCommandSource(ctx context.Context, supervisor *process.Supervisor, shellCommand, dir string) (*CommandSource, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCommand)
	cmd.Dir = dir
	cmd.SysProcAttr = process.GroupAttr()

	proc, err := supervisor.Start(commandSourceName(shellCommand), cmd)
	if err != nil {
		cancel()
		return nil, err
	}

	cs := &CommandSource{
		proc:   proc,
		lines:  make(chan string, 256),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}

	go cs.pump()
	go cs.reapOnCancel(ctx)

	return cs, nil
}

// commandSourceName derives a short Supervisor process name from the
// shell command being run, for diagnostics such as the daemon's exit
// logging; it is not parsed back out of anywhere.
func commandSourceName(shellCommand string) string {
	const maxLen = 40
	if len(shellCommand) <= maxLen {
		return shellCommand
	}
	return shellCommand[:maxLen] + "…"
}

func (cs *CommandSource) pump() {
	scanner := bufio.NewScanner(cs.proc.Stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		cs.lines <- toValidUTF8(scanner.Text())
	}
	cs.closeOnce.Do(func() {
		close(cs.lines)
		cs.errCh <- scanner.Err()
		close(cs.errCh)
	})
}

func (cs *CommandSource) reapOnCancel(ctx context.Context) {
	<-ctx.Done()
	select {
	case <-cs.proc.Done():
		return
	case <-time.After(CommandGracePeriod):
	}
	_ = cs.proc.KillGroup(syscall.SIGTERM)
}

// Next implements Source.
func (cs *CommandSource) Next(ctx context.Context) (match.Item, bool, error) {
	select {
	case <-ctx.Done():
		return match.Item{}, false, ctx.Err()
	case line, ok := <-cs.lines:
		if !ok {
			return match.Item{}, false, <-cs.errCh
		}
		return match.Item{RawText: line, MatchText: line}, true, nil
	}
}

// Close cancels the child process and releases its I/O handles.
func (cs *CommandSource) Close() error {
	cs.cancel()
	return cs.proc.Close()
}
