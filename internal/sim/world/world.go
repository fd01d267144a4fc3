package world

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/pickup"
	"toolsync.ai/internal/sim/timer"
)

// World is a single-threaded host for pickup tools.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig

	tick  atomic.Uint64
	clock *timer.Queue
	rng   *rand.Rand

	actors  map[string]*actor
	tools   map[string]*tool
	toolIDs []string

	inbox chan InputEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}
	done  chan struct{}

	doneOnce     sync.Once
	nextActorNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Events emitted during the current step.
	events []protocol.Event

	metrics atomic.Pointer[WorldMetrics]
}

type actor struct {
	ID   string
	Name string
	Out  chan []byte
}

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	w := &World{
		cfg:    cfg,
		clock:  timer.NewQueue(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		actors: map[string]*actor{},
		tools:  map[string]*tool{},
		inbox:  make(chan InputEnvelope, 1024),
		join:   make(chan JoinRequest, 64),
		leave:  make(chan string, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, tc := range cfg.Tools {
		t := &tool{w: w, id: tc.ID, pickupable: true, atOrigin: true}
		p, err := pickup.New(tc.Proxy, pickup.Deps{
			Target:    t,
			Ownership: t,
			Pickup:    t,
			Respawner: t,
			Scheduler: w.clock,
			Indicator: t,
		})
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.ID, err)
		}
		t.proxy = p
		w.tools[tc.ID] = t
		w.toolIDs = append(w.toolIDs, tc.ID)
	}
	sort.Strings(w.toolIDs)
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) Inbox() chan<- InputEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest    { return w.join }
func (w *World) Leave() chan<- string        { return w.leave }

// Done is closed once Run has returned; nothing drains Join, Leave or Inbox after that.
func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) tickInterval() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}

func (w *World) nowMs() int64 { return w.clock.Now().Milliseconds() }

func (w *World) emit(ev protocol.Event) {
	ev.Tick = w.tick.Load()
	ev.AtMs = w.nowMs()
	w.events = append(w.events, ev)
}

func (w *World) audit(action, actorID, toolID, reason string) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:   w.tick.Load(),
		AtMs:   w.nowMs(),
		Actor:  actorID,
		Action: action,
		ToolID: toolID,
		Reason: reason,
	})
}

func (w *World) joinActor(name string, out chan []byte) JoinResponse {
	if name == "" {
		name = "player"
	}
	id := fmt.Sprintf("P%d", w.nextActorNum.Add(1))
	w.actors[id] = &actor{ID: id, Name: name, Out: out}
	w.emit(protocol.Event{Type: protocol.EventJoin, Actor: id})

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       protocol.NewSessionID(),
		ActorID:         id,
		WorldID:         w.cfg.ID,
		TickRateHz:      w.cfg.TickRateHz,
		Tools:           w.toolInfos(),
	}}
}

// leaveActor releases everything the actor holds before removing it.
func (w *World) leaveActor(id string) {
	if _, ok := w.actors[id]; !ok {
		return
	}
	aid := pickup.ActorID(id)
	for _, tid := range w.toolIDs {
		t := w.tools[tid]
		if t.holder == aid {
			t.release(aid)
		}
		if t.owner == aid {
			t.owner = ""
		}
	}
	delete(w.actors, id)
	w.emit(protocol.Event{Type: protocol.EventLeave, Actor: id})
}

func (w *World) toolInfos() []protocol.ToolInfo {
	out := make([]protocol.ToolInfo, 0, len(w.toolIDs))
	for _, id := range w.toolIDs {
		out = append(out, w.tools[id].info())
	}
	return out
}

func (w *World) broadcast(tick uint64, events []protocol.Event) {
	if len(events) == 0 || len(w.actors) == 0 {
		return
	}
	b, err := json.Marshal(protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Events:          events,
	})
	if err != nil {
		return
	}
	for _, a := range w.actors {
		if a.Out != nil {
			sendLatest(a.Out, b)
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
