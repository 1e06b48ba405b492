// Package supervisor implements the prefork supervisor of spec §4.6: it
// owns a fixed-size pool of worker slots, forks (via exec of the current
// binary) to fill them, and polls per-slot heartbeats to detect and
// replace stalled workers. Grounded on the teacher's server.Lifecycle
// state machine, generalized from "ready/draining" to the supervisor's
// richer fork/supervise/drain cycle, and on the pack's FD-inheritance
// fork+exec pattern since a bare fork() is unavailable once goroutines
// exist.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ripta/corehttp/internal/audit"
	"github.com/ripta/corehttp/internal/corerr"
	"github.com/ripta/corehttp/internal/metrics"
)

// State is the supervisor's lifecycle state.
type State int32

const (
	StateStarting State = iota
	StatePreFork
	StateForking
	StateSupervising
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StatePreFork:
		return "pre_fork"
	case StateForking:
		return "forking"
	case StateSupervising:
		return "supervising"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Environment variable names a forked worker inspects to reconstruct its
// inherited resources (spec §4.6's pre-fork phase).
const (
	EnvWorkerSlot  = "COREHTTP_WORKER_SLOT"
	EnvWorkerSlots = "COREHTTP_WORKER_SLOTS"
	EnvListenerFD  = "COREHTTP_LISTENER_FD"
	EnvHeartbeatFD = "COREHTTP_HEARTBEAT_FD"
)

// Config configures a Supervisor.
type Config struct {
	// Slots is the target worker count N.
	Slots int
	// Interval is the supervising-loop sleep, default 2s, minimum 1s
	// (spec §4.6).
	Interval time.Duration
	// ListenAddress is bound once in PreFork and inherited by every
	// forked HTTP worker. Leave empty for a queue-mode deployment, which
	// opens its own sockets per child (spec §4.6).
	ListenAddress string
	// Executable is the binary re-exec'd for each worker; defaults to
	// os.Args[0].
	Executable string
	// Args are passed to each forked worker in addition to Executable.
	Args []string
	// Env is appended to each forked worker's environment, in addition
	// to the COREHTTP_WORKER_* variables the supervisor sets itself.
	Env   []string
	Clock clockwork.Clock
	// Recorder, if non-nil, is notified of spawn/respawn/crash/kill
	// events for each worker slot. Optional; a nil Recorder is a no-op.
	Recorder *audit.Recorder
}

type exitEvent struct {
	slot int
	err  error
}

// Supervisor is the root process of a prefork deployment.
type Supervisor struct {
	cfg       Config
	state     State
	mu        sync.Mutex
	slots     []Slot
	listener  *net.TCPListener
	listenerF *os.File
	heartbeat *HeartbeatBlock
	exited    chan exitEvent
	wg        sync.WaitGroup
}

// New constructs a Supervisor from cfg, filling in defaults.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Slots <= 0 {
		return nil, fmt.Errorf("supervisor: Slots must be positive, got %d", cfg.Slots)
	}
	if cfg.Interval < time.Second {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Executable == "" {
		cfg.Executable = os.Args[0]
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &Supervisor{
		cfg:    cfg,
		slots:  make([]Slot, cfg.Slots),
		exited: make(chan exitEvent, cfg.Slots),
	}
	for i := range s.slots {
		s.slots[i].Index = i
	}
	return s, nil
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	for _, name := range []State{StateStarting, StatePreFork, StateForking, StateSupervising, StateDraining, StateStopped} {
		v := 0.0
		if name == st {
			v = 1.0
		}
		metrics.SupervisorState.WithLabelValues(name.String()).Set(v)
	}
}

// Run drives the full lifecycle: PreFork, Forking, Supervising until ctx
// is cancelled (soft shutdown signal), then Draining until every worker
// has exited. Returns a non-zero-exit-worthy error on fork or bind
// failure; nil on a clean drain.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(StatePreFork)
	if err := s.preFork(); err != nil {
		return err
	}
	defer s.heartbeat.Close()
	if s.listener != nil {
		defer s.listener.Close()
	}

	s.setState(StateForking)
	if err := s.forkAll(); err != nil {
		return err
	}

	s.setState(StateSupervising)
	s.superviseUntil(ctx)

	s.setState(StateDraining)
	s.drain()

	s.setState(StateStopped)
	return nil
}

func (s *Supervisor) preFork() error {
	hb, err := NewHeartbeatBlock(s.cfg.Slots)
	if err != nil {
		return err
	}
	s.heartbeat = hb

	if s.cfg.ListenAddress == "" {
		return nil // queue worker: each child opens its own transport sockets.
	}

	addr, err := net.ResolveTCPAddr("tcp", s.cfg.ListenAddress)
	if err != nil {
		return &corerr.SocketUnavailable{Address: s.cfg.ListenAddress, Message: err.Error()}
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return &corerr.SocketUnavailable{Address: s.cfg.ListenAddress, Message: err.Error()}
	}
	f, err := ln.File()
	if err != nil {
		ln.Close()
		return &corerr.SocketUnavailable{Address: s.cfg.ListenAddress, Message: err.Error()}
	}
	s.listener = ln
	s.listenerF = f
	return nil
}

func (s *Supervisor) forkAll() error {
	for i := range s.slots {
		if err := s.forkSlot(i); err != nil {
			return err
		}
	}
	return nil
}

// forkSlot execs a fresh copy of the supervisor binary into slot i,
// inheriting the listening socket (if any) and the heartbeat segment via
// ExtraFiles. The child runs with COREHTTP_WORKER_SLOT set, which
// cmd/corehttp/main.go inspects to take the "I am a forked worker" path
// instead of starting a supervisor of its own.
func (s *Supervisor) forkSlot(i int) error {
	cmd := exec.Command(s.cfg.Executable, s.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("%s=%d", EnvWorkerSlot, i),
		fmt.Sprintf("%s=%d", EnvWorkerSlots, s.cfg.Slots),
	)

	extraFiles := make([]*os.File, 0, 2)
	if s.listenerF != nil {
		extraFiles = append(extraFiles, s.listenerF)
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", EnvListenerFD, fdIndex(len(extraFiles)-1)))
	}
	hbFile := os.NewFile(uintptr(s.heartbeat.FD()), "corehttp-heartbeat")
	extraFiles = append(extraFiles, hbFile)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", EnvHeartbeatFD, fdIndex(len(extraFiles)-1)))
	cmd.ExtraFiles = extraFiles

	if err := cmd.Start(); err != nil {
		return &corerr.ForkFailed{Slot: i, Err: err}
	}

	s.slots[i].PID = cmd.Process.Pid
	s.slots[i].Birth = s.cfg.Clock.Now()
	s.slots[i].lastBeatAt = s.cfg.Clock.Now()

	event := audit.EventSpawned
	if s.slots[i].everSpawned {
		event = audit.EventRespawned
		metrics.WorkerRespawnsTotal.WithLabelValues(fmt.Sprintf("%d", i)).Inc()
	}
	s.slots[i].everSpawned = true
	s.cfg.Recorder.Record(i, cmd.Process.Pid, event, "")

	s.wg.Add(1)
	go func(i int, cmd *exec.Cmd) {
		defer s.wg.Done()
		err := cmd.Wait()
		s.exited <- exitEvent{slot: i, err: err}
	}(i, cmd)

	return nil
}

// fdIndex converts an ExtraFiles slice position into the inherited child
// file descriptor number (stdin=0, stdout=1, stderr=2, then ExtraFiles in
// order starting at 3).
func fdIndex(extraFilesPos int) int { return 3 + extraFilesPos }

// superviseUntil runs the supervising loop (reap, kill-stale, refill)
// until ctx is cancelled by a soft shutdown signal.
func (s *Supervisor) superviseUntil(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.exited:
			s.handleExit(ev)
			s.refill()
		case <-s.cfg.Clock.After(s.cfg.Interval):
			s.drainExitedNonBlocking()
			s.killStale()
			s.refill()
		}
	}
}

func (s *Supervisor) drainExitedNonBlocking() {
	for {
		select {
		case ev := <-s.exited:
			s.handleExit(ev)
		default:
			return
		}
	}
}

func (s *Supervisor) handleExit(ev exitEvent) {
	pid := s.slots[ev.slot].PID
	if ev.err != nil {
		slog.Warn("worker exited", "slot", ev.slot, "error", ev.err)
		s.cfg.Recorder.Record(ev.slot, pid, audit.EventCrashed, ev.err.Error())
	} else {
		slog.Info("worker exited", "slot", ev.slot)
		s.cfg.Recorder.Record(ev.slot, pid, audit.EventExited, "")
	}
	s.slots[ev.slot].Reset()
}

// killStale sends a kill signal to any slot whose heartbeat cell has not
// advanced since the last check and whose age exceeds interval/2 (spec
// §4.6). The supervisor reaps the kill on the next cycle via the exited
// channel rather than blocking here.
func (s *Supervisor) killStale() {
	budget := s.cfg.Interval / 2
	now := s.cfg.Clock.Now()
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.Free() {
			continue
		}
		cell := s.heartbeat.Read(i)
		if cell != slot.LastBeat {
			slot.LastBeat = cell
			slot.lastBeatAt = now
			metrics.WorkerHeartbeatAgeSeconds.WithLabelValues(fmt.Sprintf("%d", i)).Set(0)
			continue
		}
		age := now.Sub(slot.lastBeatAt)
		metrics.WorkerHeartbeatAgeSeconds.WithLabelValues(fmt.Sprintf("%d", i)).Set(age.Seconds())
		if age > budget {
			slog.Warn("worker heartbeat stalled, killing", "slot", i, "pid", slot.PID, "budget", budget)
			s.cfg.Recorder.Record(i, slot.PID, audit.EventKilled, fmt.Sprintf("stalled %s", age))
			_ = syscall.Kill(slot.PID, syscall.SIGKILL)
		}
	}
}

func (s *Supervisor) refill() {
	for i := range s.slots {
		if s.slots[i].Free() {
			if err := s.forkSlot(i); err != nil {
				slog.Error("failed to refill worker slot", "slot", i, "error", err)
			}
		}
	}
}

// drain sends SIGTERM to every live worker and waits for all workers to
// exit. Called after Run's context is cancelled by a soft shutdown signal.
// There is no escalation to SIGKILL: neither drain nor
// cmd/corehttp/main.go acts on a second signal received while draining,
// and drain waits for every worker however long it takes.
func (s *Supervisor) drain() {
	for i := range s.slots {
		if !s.slots[i].Free() {
			_ = syscall.Kill(s.slots[i].PID, syscall.SIGTERM)
		}
	}
	s.wg.Wait()
	for {
		select {
		case ev := <-s.exited:
			s.handleExit(ev)
		default:
			return
		}
	}
}
