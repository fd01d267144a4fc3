// Package eventbus mirrors world events to Redis for consumers outside the
// server: a pub/sub channel per world and per-tool counters in hashes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/world"
)

type Options struct {
	URL     string
	WorldID string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	Logger *log.Logger
}

// Publisher implements world.TickLogger. Ticks are queued and published by
// one goroutine; a full queue drops the tick rather than stall the world.
type Publisher struct {
	client  *redis.Client
	worldID string
	channel string
	timeout time.Duration
	log     *log.Logger

	ch     chan world.TickLogEntry
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped   atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

func Open(opts Options) (*Publisher, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("eventbus: empty redis url")
	}
	if opts.WorldID == "" {
		opts.WorldID = "world_1"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parse redis url: %w", err)
	}
	ro.DialTimeout = opts.ConnectTimeout
	ro.WriteTimeout = opts.WriteTimeout
	client := redis.NewClient(ro)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}

	p := &Publisher{
		client:  client,
		worldID: opts.WorldID,
		channel: Channel(opts.WorldID),
		timeout: opts.WriteTimeout,
		log:     opts.Logger,
		ch:      make(chan world.TickLogEntry, 4096),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p, nil
}

// Channel is the pub/sub channel carrying EVENTS messages for a world.
func Channel(worldID string) string { return "toolsync:" + worldID + ":events" }

// CounterKey is the hash holding per-event-type counts for one tool.
func CounterKey(worldID, toolID string) string { return "toolsync:" + worldID + ":tool:" + toolID }

func (p *Publisher) WriteTick(e world.TickLogEntry) error {
	if p == nil || p.closed.Load() || len(e.Events) == 0 {
		return nil
	}
	select {
	case p.ch <- e:
	default:
		p.dropped.Add(1)
	}
	return nil
}

type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{Published: p.published.Load(), Failed: p.failed.Load(), Dropped: p.dropped.Load()}
}

// Close publishes what is queued and closes the connection.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		err = p.client.Close()
	})
	return err
}

func (p *Publisher) loop() {
	for e := range p.ch {
		if err := p.publish(e); err != nil {
			p.failed.Add(1)
			if p.log != nil {
				p.log.Printf("eventbus: tick %d: %v", e.Tick, err)
			}
			continue
		}
		p.published.Add(1)
	}
}

func (p *Publisher) publish(e world.TickLogEntry) error {
	payload, err := json.Marshal(protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            e.Tick,
		Events:          e.Events,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.channel, payload)
	for _, ev := range e.Events {
		if ev.ToolID == "" {
			continue
		}
		pipe.HIncrBy(ctx, CounterKey(p.worldID, ev.ToolID), strings.ToLower(ev.Type), 1)
	}
	_, err = pipe.Exec(ctx)
	return err
}
