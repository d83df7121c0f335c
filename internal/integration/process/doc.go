// Package process spawns and tracks the shell commands a provider
// source runs on the user's behalf — the "command" case of a provider's
// descriptor (see package provider's runCommandSource), plus the
// equivalent one-shot spawn behind the -batch flag.
//
// # Supervisor
//
// clapfilterd constructs exactly one Supervisor at startup and shares it
// across every session for the life of the process, so its shutdown
// path can reach every command any session ever spawned, not just the
// most recent one:
//
//	supervisor := process.NewSupervisor(process.WithProcessExitCallback(logExit))
//	defer supervisor.Shutdown(2 * time.Second)
//
//	cmd := exec.CommandContext(ctx, "sh", "-c", shellCommand)
//	cmd.SysProcAttr = process.GroupAttr()
//	proc, err := supervisor.Start(shellCommand, cmd)
//
// # Process groups
//
// Supervisor.Start does not set a process group itself; a caller puts
// a command in its own process group by setting cmd.SysProcAttr to
// GroupAttr() before Start, as filter.CommandSource does, so that
// KillGroup reaches a shell pipeline's children too,
// not just the immediate `sh` it spawned — the grace-period escalation
// filter.CommandSource performs on cancel relies on this to actually
// stop work, not just detach from it.
//
// # Thread safety
//
// Both Supervisor and Process are safe for concurrent use.
package process
