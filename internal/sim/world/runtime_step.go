package world

import (
	"time"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/pickup"
)

// step applies one tick: joins, leaves, inputs in arrival order, then every
// timer callback due before the next tick boundary.
func (w *World) step(joins []JoinRequest, leaves []string, inputs []InputEnvelope) string {
	start := time.Now()
	tick := w.tick.Load()
	w.events = nil

	var recordedJoins []RecordedJoin
	for _, req := range joins {
		resp := w.joinActor(req.Name, req.Out)
		recordedJoins = append(recordedJoins, RecordedJoin{ActorID: resp.Welcome.ActorID, Name: req.Name})
		if req.Resp != nil {
			req.Resp <- resp
		}
	}
	var recordedLeaves []string
	for _, id := range leaves {
		if _, ok := w.actors[id]; ok {
			recordedLeaves = append(recordedLeaves, id)
		}
		w.leaveActor(id)
	}
	var recordedInputs []InputEnvelope
	for _, in := range inputs {
		recordedInputs = append(recordedInputs, in)
		w.applyInput(in)
	}

	w.clock.Advance(time.Duration(tick+1) * w.tickInterval())

	events := w.events
	w.events = nil
	digest := w.stateDigest(tick)

	w.broadcast(tick, events)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:   tick,
			AtMs:   w.nowMs(),
			Joins:  recordedJoins,
			Leaves: recordedLeaves,
			Inputs: recordedInputs,
			Events: events,
			Digest: digest,
		})
	}

	w.tick.Add(1)
	w.publishMetrics(time.Since(start))
	return digest
}

func (w *World) reject(in InputEnvelope, code string) {
	w.emit(protocol.Event{
		Type:   protocol.EventRejected,
		ToolID: in.ToolID,
		Actor:  in.ActorID,
		Code:   code,
		Input:  in.Input,
	})
}

func (w *World) applyInput(in InputEnvelope) {
	t := w.tools[in.ToolID]
	if t == nil {
		w.reject(in, protocol.ErrNoTool)
		return
	}

	switch in.Input {
	case InputEnableInteract:
		t.proxy.EnableInteract()
		return
	case InputDisableInteract:
		t.proxy.DisableInteract()
		return
	}

	if _, ok := w.actors[in.ActorID]; !ok {
		w.reject(in, protocol.ErrUnknownActor)
		return
	}
	a := pickup.ActorID(in.ActorID)

	switch in.Input {
	case protocol.InputPickup:
		if t.holder.Valid() {
			w.reject(in, protocol.ErrHeld)
			return
		}
		if !t.pickupable {
			w.reject(in, protocol.ErrNotPickupable)
			return
		}
		t.grab(a)

	case protocol.InputDrop:
		if t.holder != a {
			w.reject(in, protocol.ErrNotHolder)
			return
		}
		t.release(a)

	case protocol.InputUseDown:
		if t.holder != a {
			w.reject(in, protocol.ErrNotHolder)
			return
		}
		t.proxy.OnUseDown(a)

	case protocol.InputUseUp:
		if t.holder != a {
			w.reject(in, protocol.ErrNotHolder)
			return
		}
		t.proxy.OnUseUp(a)

	case protocol.InputDropRespawn:
		w.audit("DROP_RESPAWN", in.ActorID, t.id, "")
		t.proxy.DropRespawn(a)

	default:
		w.reject(in, protocol.ErrBadInput)
	}
}
