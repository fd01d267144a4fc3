package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"toolsync.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "actor name")
		toolID   = flag.String("tool", "", "tool to grab (default: first tool in WELCOME)")
		interval = flag.Duration("interval", 250*time.Millisecond, "trigger pull interval")
		hold     = flag.Duration("hold", 50*time.Millisecond, "how long each pull is held")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || len(welcome.Tools) == 0 {
		logger.Fatalf("unexpected WELCOME: %+v", welcome)
	}
	tool := *toolID
	if tool == "" {
		tool = welcome.Tools[0].ID
	}
	logger.Printf("WELCOME actor_id=%s world=%s tick_rate=%d tool=%s", welcome.ActorID, welcome.WorldID, welcome.TickRateHz, tool)

	// Reader logs events for our tool; every write stays on this goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			var evs protocol.EventsMsg
			if err := json.Unmarshal(msg, &evs); err != nil || evs.Type != protocol.TypeEvents {
				continue
			}
			for _, ev := range evs.Events {
				if ev.ToolID != tool {
					continue
				}
				logger.Printf("tick=%d at=%dms %s actor=%s %s", evs.Tick, ev.AtMs, ev.Type, ev.Actor, ev.Code)
			}
		}
	}()

	send := func(input string) {
		_ = conn.WriteJSON(protocol.InputMsg{
			Type:            protocol.TypeInput,
			ProtocolVersion: protocol.Version,
			ToolID:          tool,
			Input:           input,
		})
	}
	send(protocol.InputPickup)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			send(protocol.InputDrop)
			return
		case <-done:
			return
		case <-ticker.C:
			send(protocol.InputUseDown)
			time.Sleep(*hold)
			send(protocol.InputUseUp)
		}
	}
}
