package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// WorkerInit holds the resources a forked worker process reconstructs from
// its inherited environment and file descriptors (spec §4.6's pre-fork
// phase: "the listening socket is inherited ... when invoked standalone,
// the worker creates one itself").
type WorkerInit struct {
	Slot      int
	Slots     int
	Listener  net.Listener // nil in queue-worker mode
	Heartbeat *HeartbeatBlock
}

// IsForkedWorker reports whether the current process was exec'd by a
// Supervisor (i.e. COREHTTP_WORKER_SLOT is set), as opposed to running
// standalone.
func IsForkedWorker() bool {
	_, ok := os.LookupEnv(EnvWorkerSlot)
	return ok
}

// LoadWorkerInit reconstructs a WorkerInit from the environment variables
// and inherited file descriptors a Supervisor sets for a forked child.
func LoadWorkerInit() (*WorkerInit, error) {
	slot, err := envInt(EnvWorkerSlot)
	if err != nil {
		return nil, err
	}
	slots, err := envInt(EnvWorkerSlots)
	if err != nil {
		return nil, err
	}

	hbFD, err := envInt(EnvHeartbeatFD)
	if err != nil {
		return nil, err
	}
	hb, err := OpenHeartbeatBlock(hbFD, slots)
	if err != nil {
		return nil, fmt.Errorf("supervisor: worker could not attach heartbeat segment: %w", err)
	}

	w := &WorkerInit{Slot: slot, Slots: slots, Heartbeat: hb}

	if fdStr, ok := os.LookupEnv(EnvListenerFD); ok {
		fd, err := strconv.Atoi(fdStr)
		if err != nil {
			return nil, fmt.Errorf("supervisor: invalid %s: %w", EnvListenerFD, err)
		}
		f := os.NewFile(uintptr(fd), "corehttp-listener")
		ln, err := net.FileListener(f)
		if err != nil {
			return nil, fmt.Errorf("supervisor: worker could not reconstruct inherited listener: %w", err)
		}
		w.Listener = ln
	}

	return w, nil
}

// HeartbeatFunc returns a callback suitable for HTTPWorkerConfig.Heartbeat
// / QueueWorkerConfig.Heartbeat that writes the current time to this
// worker's own heartbeat cell.
func (w *WorkerInit) HeartbeatFunc() func(time.Time) {
	return func(t time.Time) {
		w.Heartbeat.Write(w.Slot, uint32(t.Unix()))
	}
}

func envInt(key string) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, fmt.Errorf("supervisor: missing required environment variable %s", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("supervisor: invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}
