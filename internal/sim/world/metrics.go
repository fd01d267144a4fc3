package world

import "time"

type WorldMetrics struct {
	Tick          uint64        `json:"tick"`
	Actors        int           `json:"actors"`
	Clients       int           `json:"clients"`
	PendingTimers int           `json:"pending_timers"`
	StepMS        float64       `json:"step_ms"`
	QueueDepths   QueueDepths   `json:"queue_depths"`
	Tools         []ToolMetrics `json:"tools"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

type ToolMetrics struct {
	ID           string `json:"id"`
	Holder       string `json:"holder,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Pickupable   bool   `json:"pickupable"`
	AtOrigin     bool   `json:"at_origin"`
	Cooled       bool   `json:"cooled"`
	Fires        uint64 `json:"fires"`
	Respawns     uint64 `json:"respawns"`
	OwnerChanges uint64 `json:"owner_changes"`
}

// Metrics returns the snapshot published after the last step. Safe from any goroutine.
func (w *World) Metrics() WorldMetrics {
	if m := w.metrics.Load(); m != nil {
		return *m
	}
	return WorldMetrics{}
}

func (w *World) publishMetrics(stepDur time.Duration) {
	m := &WorldMetrics{
		Tick:          w.tick.Load(),
		Actors:        len(w.actors),
		PendingTimers: w.clock.Len(),
		StepMS:        float64(stepDur.Microseconds()) / 1000.0,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
	}
	for _, a := range w.actors {
		if a.Out != nil {
			m.Clients++
		}
	}
	for _, id := range w.toolIDs {
		t := w.tools[id]
		m.Tools = append(m.Tools, ToolMetrics{
			ID:           t.id,
			Holder:       string(t.holder),
			Owner:        string(t.owner),
			Pickupable:   t.pickupable,
			AtOrigin:     t.atOrigin,
			Cooled:       t.proxy.State().IsCooled,
			Fires:        t.fires,
			Respawns:     t.respawns,
			OwnerChanges: t.ownerChanges,
		})
	}
	w.metrics.Store(m)
}
