package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrStartup wraps every failure to launch a player. It is fatal for the run.
var ErrStartup = errors.New("startup failure")

// DefaultKillTimeout is how long a player gets to exit after SIGTERM.
const DefaultKillTimeout = 3 * time.Second

// CommandFunc builds an unstarted command. exec.Command by default.
type CommandFunc func(name string, args ...string) *exec.Cmd

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Binary   string
	Filename string
	// Verbose keeps the player's RC console output.
	Verbose bool
	// KillTimeout is the wait between SIGTERM and SIGKILL.
	KillTimeout time.Duration
	Command     CommandFunc
}

// Supervisor owns exactly one player process. Start acquires it; Run
// releases it when the shutdown context is cancelled.
type Supervisor struct {
	instance Instance
	opts     SupervisorOptions
	registry *Registry
	log      *slog.Logger

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewSupervisor returns a supervisor for one instance.
func NewSupervisor(in Instance, opts SupervisorOptions, registry *Registry, log *slog.Logger) *Supervisor {
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.Command == nil {
		opts.Command = exec.Command
	}
	return &Supervisor{
		instance: in,
		opts:     opts,
		registry: registry,
		log:      log.With("instance", in.Index, "addr", in.Addr()),
	}
}

// Start launches the player. The child is put in its own process group so
// an operator's Ctrl-C reaches only the orchestrator.
func (s *Supervisor) Start() error {
	args, err := BuildLaunchArgs(s.instance, s.opts.Filename, s.opts.Verbose)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	cmd := s.opts.Command(s.opts.Binary, args...)
	configureProcess(cmd)
	cmd.Stdout = &lineLogger{log: s.log, stream: "stdout"}
	cmd.Stderr = &lineLogger{log: s.log, stream: "stderr"}
	cmd.WaitDelay = s.opts.KillTimeout

	s.log.Info("starting player", "binary", s.opts.Binary, "args", args)
	if err := cmd.Start(); err != nil {
		s.registry.SetProcess(s.instance.Index, ProcessExited, 0, err)
		return fmt.Errorf("%w: instance %d: %w", ErrStartup, s.instance.Index, err)
	}

	s.cmd = cmd
	s.done = make(chan struct{})
	s.registry.SetProcess(s.instance.Index, ProcessRunning, cmd.Process.Pid, nil)
	go s.wait()
	return nil
}

// Run blocks until ctx is cancelled, then terminates the player. It
// returns early if the player exits on its own.
func (s *Supervisor) Run(ctx context.Context) {
	if s.cmd == nil {
		return
	}

	select {
	case <-ctx.Done():
	case <-s.done:
		s.log.Error("player exited before shutdown", "error", s.waitErr)
		return
	}

	s.log.Info("stopping player", "pid", s.cmd.Process.Pid)
	if err := terminate(s.cmd.Process); err != nil {
		s.log.Debug("terminate failed", "error", err)
	}

	select {
	case <-s.done:
	case <-time.After(s.opts.KillTimeout):
		s.log.Warn("player ignored SIGTERM, killing", "pid", s.cmd.Process.Pid)
		if err := kill(s.cmd.Process); err != nil {
			s.log.Debug("kill failed", "error", err)
		}
		<-s.done
	}
	s.registry.SetProcess(s.instance.Index, ProcessStopped, 0, nil)
}

// Done is closed once the player process has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// wait reaps the child so it never lingers as a zombie.
func (s *Supervisor) wait() {
	defer close(s.done)
	s.waitErr = s.cmd.Wait()
	s.registry.SetProcess(s.instance.Index, ProcessExited, 0, s.waitErr)
	s.log.Debug("player process exited", "pid", s.cmd.Process.Pid, "error", s.waitErr)
}

// lineLogger relays player output line by line at debug level.
type lineLogger struct {
	log    *slog.Logger
	stream string
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		if len(line) > 0 {
			w.log.Debug("player output", "stream", w.stream, "line", string(line))
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxResponseBuffer {
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
