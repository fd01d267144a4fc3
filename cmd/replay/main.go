package main

import (
	"flag"
	"fmt"
	"os"

	persistlog "toolsync.ai/internal/persistence/log"
	"toolsync.ai/internal/sim/tuning"
	"toolsync.ai/internal/sim/world"
)

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml the server ran with")
		worldID    = flag.String("world", "world_1", "world id")
		toTick     = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
		noVerify   = flag.Bool("no_verify", false, "only count events; skip digest checks")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	cfg := world.ConfigFromTuning(*worldID, tune)
	newWorld := func() (*world.World, error) { return world.New(cfg) }

	files, err := persistlog.ListFiles(*eventsDir, "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	s, err := replay(newWorld, files, *toTick, !*noVerify)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	for _, id := range s.toolIDs() {
		c := s.Tools[id]
		fmt.Printf("tool=%s pickups=%d drops=%d fires=%d respawns=%d owner_changes=%d rejected=%d\n",
			id, c.Pickups, c.Drops, c.Fires, c.Respawns, c.OwnerChanges, c.Rejected)
	}
	fmt.Printf("replay ok: runs=%d checked=%d ticks\n", s.Runs, s.Checked)
}
