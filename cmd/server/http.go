package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"toolsync.ai/internal/persistence/eventbus"
	"toolsync.ai/internal/sim/world"
)

func healthz(rw http.ResponseWriter, r *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func metricsHandler(w *world.World, idx runtimeIndex, bus *eventbus.Publisher) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.ID(), w.Metrics(), idx, bus)
	}
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(out io.Writer, worldID string, m world.WorldMetrics, idx runtimeIndex, bus *eventbus.Publisher) {
	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	}

	gauge("toolsync_world_tick", "Current world tick.")
	fmt.Fprintf(out, "toolsync_world_tick{world=%q} %d\n", worldID, m.Tick)

	gauge("toolsync_world_actors", "Actors currently joined.")
	fmt.Fprintf(out, "toolsync_world_actors{world=%q} %d\n", worldID, m.Actors)

	gauge("toolsync_world_clients", "Connected websocket clients.")
	fmt.Fprintf(out, "toolsync_world_clients{world=%q} %d\n", worldID, m.Clients)

	gauge("toolsync_world_pending_timers", "Scheduled callbacks not yet run.")
	fmt.Fprintf(out, "toolsync_world_pending_timers{world=%q} %d\n", worldID, m.PendingTimers)

	gauge("toolsync_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "toolsync_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "toolsync_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "toolsync_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	gauge("toolsync_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "toolsync_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	gauge("toolsync_tool_held", "1 while someone holds the tool.")
	for _, t := range m.Tools {
		fmt.Fprintf(out, "toolsync_tool_held{world=%q,tool=%q} %d\n", worldID, t.ID, b2i(t.Holder != ""))
	}
	gauge("toolsync_tool_cooled", "1 when the tool can fire immediately.")
	for _, t := range m.Tools {
		fmt.Fprintf(out, "toolsync_tool_cooled{world=%q,tool=%q} %d\n", worldID, t.ID, b2i(t.Cooled))
	}
	counter("toolsync_tool_fires_total", "Shots fired.")
	for _, t := range m.Tools {
		fmt.Fprintf(out, "toolsync_tool_fires_total{world=%q,tool=%q} %d\n", worldID, t.ID, t.Fires)
	}
	counter("toolsync_tool_respawns_total", "Returns to origin.")
	for _, t := range m.Tools {
		fmt.Fprintf(out, "toolsync_tool_respawns_total{world=%q,tool=%q} %d\n", worldID, t.ID, t.Respawns)
	}
	counter("toolsync_tool_owner_changes_total", "Ownership transfers.")
	for _, t := range m.Tools {
		fmt.Fprintf(out, "toolsync_tool_owner_changes_total{world=%q,tool=%q} %d\n", worldID, t.ID, t.OwnerChanges)
	}

	if idx != nil {
		s := idx.Stats()
		gauge("toolsync_index_queue_depth", "Index writer queue depth.")
		fmt.Fprintf(out, "toolsync_index_queue_depth %d\n", s.QueueDepth)
		counter("toolsync_index_dropped_total", "Index rows dropped on backpressure.")
		fmt.Fprintf(out, "toolsync_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(out, "toolsync_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	}
	if bus != nil {
		s := bus.Stats()
		counter("toolsync_eventbus_ticks_total", "Ticks handed to redis, by outcome.")
		fmt.Fprintf(out, "toolsync_eventbus_ticks_total{outcome=%q} %d\n", "published", s.Published)
		fmt.Fprintf(out, "toolsync_eventbus_ticks_total{outcome=%q} %d\n", "failed", s.Failed)
		fmt.Fprintf(out, "toolsync_eventbus_ticks_total{outcome=%q} %d\n", "dropped", s.Dropped)
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Local-only admin endpoints.

func adminStateHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		})
	}
}

// adminInteractHandler toggles whether a tool can be picked up:
// POST /admin/v1/interact?tool=<id>&on=<bool>.
func adminInteractHandler(inbox chan<- world.InputEnvelope) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		toolID := strings.TrimSpace(r.URL.Query().Get("tool"))
		on, err := strconv.ParseBool(r.URL.Query().Get("on"))
		if toolID == "" || err != nil {
			http.Error(rw, "need tool and on=true|false", http.StatusBadRequest)
			return
		}
		in := world.InputEnvelope{ToolID: toolID, Input: world.InputDisableInteract}
		if on {
			in.Input = world.InputEnableInteract
		}
		select {
		case inbox <- in:
		case <-r.Context().Done():
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tool": toolID, "on": on})
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
