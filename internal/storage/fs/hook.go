package fs

import (
	"context"
	"os/exec"
	"sync"
	"syscall"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

// hookRunner spawns the configured storage hook after each successful
// item write or item delete (PutItem, DeleteItem), under the exclusive
// lock. Collection creation, property patches, collection moves and
// collection deletes do not run the hook. The command line is
// split shellwords-style with go-shellquote rather than handed to
// /bin/sh -c, avoiding an extra shell process and its injection surface
// while still letting operators write a normal-looking command line in
// config.
type hookRunner struct {
	argv []string
	cwd  string
	log  zerolog.Logger

	mu      sync.Mutex
	running map[*exec.Cmd]struct{}
}

func newHookRunner(command, cwd string, log zerolog.Logger) *hookRunner {
	argv, err := shellquote.Split(command)
	if err != nil || len(argv) == 0 {
		log.Warn().Err(err).Str("command", command).Msg("storage hook command could not be parsed, disabling")
		return nil
	}
	return &hookRunner{argv: argv, cwd: cwd, log: log, running: map[*exec.Cmd]struct{}{}}
}

// Run executes the hook with the storage root as CWD and the
// authenticated user in its environment, blocking until it exits: the
// hook runs under the caller's exclusive lock (spec.md §4.2), so the next
// request must wait for it. Non-zero exit is logged, never fails the
// request.
func (h *hookRunner) Run(ctx context.Context, verb, user string) {
	if h == nil {
		return
	}
	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)
	cmd.Dir = h.cwd
	cmd.Env = append(cmd.Environ(), "CALDAVD_VERB="+verb, "CALDAVD_USER="+user)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h.mu.Lock()
	h.running[cmd] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.running, cmd)
		h.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		h.log.Warn().Err(err).Msg("storage hook exited non-zero")
	}
}

// Shutdown kills every still-running hook's process group.
func (h *hookRunner) Shutdown() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for cmd := range h.running {
		if cmd.Process == nil {
			continue
		}
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}
