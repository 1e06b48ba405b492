package supervisor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// cellSize is the width in bytes of one slot's heartbeat cell (spec §4.6:
// "one integer-sized cell per slot").
const cellSize = 4

// HeartbeatBlock is a fixed-size shared-memory segment holding one
// monotonic-seconds cell per worker slot (spec §3's Heartbeat block). It is
// created by the supervisor in PreFork and inherited by forked children via
// the same backing file descriptor, so writes from a child are visible to
// the parent without any IPC beyond the mapping itself.
type HeartbeatBlock struct {
	mem  []byte
	fd   int
	size int
}

// NewHeartbeatBlock creates an anonymous, shared memory-mapped region sized
// for slots cells and returns a handle to it. The handle's FD is the file
// descriptor to pass to forked children via os/exec.Cmd.ExtraFiles.
func NewHeartbeatBlock(slots int) (*HeartbeatBlock, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("supervisor: heartbeat block requires at least one slot, got %d", slots)
	}
	size := slots * cellSize

	fd, err := unix.MemfdCreate("corehttp-heartbeat", 0)
	if err != nil {
		return nil, fmt.Errorf("supervisor: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("supervisor: ftruncate heartbeat segment: %w", err)
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("supervisor: mmap heartbeat segment: %w", err)
	}

	return &HeartbeatBlock{mem: mem, fd: fd, size: size}, nil
}

// OpenHeartbeatBlock maps an inherited heartbeat file descriptor (used by a
// forked worker process to attach to the parent's segment). slots must
// match the value the parent used to create the block.
func OpenHeartbeatBlock(fd, slots int) (*HeartbeatBlock, error) {
	size := slots * cellSize
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("supervisor: mmap inherited heartbeat segment: %w", err)
	}
	return &HeartbeatBlock{mem: mem, fd: fd, size: size}, nil
}

// FD returns the file descriptor backing the mapping, for inheritance via
// ExtraFiles.
func (h *HeartbeatBlock) FD() int { return h.fd }

// Write stores seconds into slot's cell. Called by a worker immediately
// before dispatching each request (spec §4.6).
func (h *HeartbeatBlock) Write(slot int, seconds uint32) {
	off := slot * cellSize
	binary.LittleEndian.PutUint32(h.mem[off:off+cellSize], seconds)
}

// Read returns the last monotonic-seconds value written to slot's cell.
func (h *HeartbeatBlock) Read(slot int) uint32 {
	off := slot * cellSize
	return binary.LittleEndian.Uint32(h.mem[off : off+cellSize])
}

// Close unmaps the segment and closes the backing descriptor.
func (h *HeartbeatBlock) Close() error {
	if err := unix.Munmap(h.mem); err != nil {
		return err
	}
	return unix.Close(h.fd)
}
