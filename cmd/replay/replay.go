package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	persistlog "toolsync.ai/internal/persistence/log"
	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/world"
)

var errStop = errors.New("stop")

type toolCounters struct {
	Pickups      int
	Drops        int
	Fires        int
	Respawns     int
	OwnerChanges int
	Rejected     int
}

type summary struct {
	Runs    int
	Checked uint64
	Tools   map[string]*toolCounters
}

func (s *summary) count(ev protocol.Event) {
	if ev.ToolID == "" {
		return
	}
	c := s.Tools[ev.ToolID]
	if c == nil {
		c = &toolCounters{}
		s.Tools[ev.ToolID] = c
	}
	switch ev.Type {
	case protocol.EventPickup:
		c.Pickups++
	case protocol.EventDrop:
		c.Drops++
	case protocol.EventFire:
		c.Fires++
	case protocol.EventRespawn:
		c.Respawns++
	case protocol.EventOwner:
		c.OwnerChanges++
	case protocol.EventRejected:
		c.Rejected++
	}
}

func (s *summary) toolIDs() []string {
	ids := make([]string, 0, len(s.Tools))
	for id := range s.Tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// replay re-runs every logged tick, checking each digest when verify is set.
// Every server process starts again at tick 0, so a tick 0 after the first
// entry begins a new run on a world from newWorld. toTick applies within a
// run and ends the whole replay. Counters are taken from the logged events.
func replay(newWorld func() (*world.World, error), files []string, toTick uint64, verify bool) (summary, error) {
	s := summary{Tools: map[string]*toolCounters{}}
	var w *world.World
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(entry world.TickLogEntry) error {
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if w == nil || (entry.Tick == 0 && w.CurrentTick() > 0) {
				nw, err := newWorld()
				if err != nil {
					return fmt.Errorf("run %d: %w", s.Runs+1, err)
				}
				w = nw
				s.Runs++
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("run %d: tick mismatch: want=%d got=%d (file=%s)", s.Runs, w.CurrentTick(), entry.Tick, filepath.Base(path))
			}

			joins := make([]world.JoinRequest, 0, len(entry.Joins))
			for _, j := range entry.Joins {
				joins = append(joins, world.JoinRequest{Name: j.Name})
			}
			tick, digest := w.StepOnce(joins, entry.Leaves, entry.Inputs)
			if verify && digest != entry.Digest {
				return fmt.Errorf("run %d: digest mismatch at tick %d: got=%s want=%s", s.Runs, tick, digest, entry.Digest)
			}
			s.Checked++
			for _, ev := range entry.Events {
				s.count(ev)
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return s, err
		}
	}
	return s, nil
}
