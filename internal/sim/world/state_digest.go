package world

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// stateDigest hashes everything replay must reproduce: clock, actors and
// every tool's host and proxy state.
func (w *World) stateDigest(tick uint64) string {
	h := sha256.New()
	fmt.Fprintf(h, "tick=%d now=%d pending=%d\n", tick, w.clock.Now(), w.clock.Len())

	ids := make([]string, 0, len(w.actors))
	for id := range w.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(h, "actor=%s\n", id)
	}

	for _, id := range w.toolIDs {
		t := w.tools[id]
		st := t.proxy.State()
		fmt.Fprintf(h, "tool=%s holder=%s owner=%s pickupable=%t origin=%t ind=%t fires=%d respawns=%d owners=%d\n",
			t.id, t.holder, t.owner, t.pickupable, t.atOrigin, t.indicator, t.fires, t.respawns, t.ownerChanges)
		fmt.Fprintf(h, "  cooled=%t cooling=%t ce=%d wopen=%t wopening=%t we=%d queued=%t latched=%t dto=%t de=%d\n",
			st.IsCooled, st.CoolingDown, st.CooldownEpoch,
			st.QueueWindowOpen, st.QueueWindowOpening, st.QueueWindowEpoch, st.QueuedFire,
			st.UseLatched, st.DroppedTimingOut, st.DroppedEpoch)
	}
	return hex.EncodeToString(h.Sum(nil))
}
