package supervisor

import "time"

// Slot is a supervisor-owned record of one worker process (spec §3). A
// slot is free when PID is zero; the slot is reused across respawns and
// each respawn stores the new child's PID in it, so a slot's index (not
// its PID) is its stable identity for the lifetime of the supervisor.
type Slot struct {
	Index      int
	PID        int
	Birth      time.Time
	LastBeat   uint32
	lastBeatAt time.Time
	// everSpawned distinguishes a slot's first fork (spawned) from every
	// subsequent refill (respawned), for audit/metrics purposes only.
	everSpawned bool
}

// Free reports whether the slot currently holds no live child.
func (s *Slot) Free() bool { return s.PID == 0 }

// Reset clears a slot back to free after its child has been reaped.
func (s *Slot) Reset() {
	s.PID = 0
	s.Birth = time.Time{}
	s.LastBeat = 0
	s.lastBeatAt = time.Time{}
}
