package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"toolsync.ai/internal/protocol"
	"toolsync.ai/internal/sim/world"
)

const (
	defaultMaxQueue = 8
	maxMaxQueue     = 64
	readTimeout     = 60 * time.Second
	writeTimeout    = 5 * time.Second
	helloTimeout    = 5 * time.Second
)

// Server bridges websocket clients to a World: one actor per connection.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		actorID, out := s.handshake(r.Context(), conn)
		if actorID == "" {
			return
		}
		s.logf("join actor=%s remote=%s", actorID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			in, ok := decodeInput(msg)
			if !ok {
				continue
			}
			in.ActorID = actorID
			select {
			case s.world.Inbox() <- in:
			case <-ctx.Done():
			case <-s.world.Done():
			}
		}

		cancel()
		s.leave(actorID)
		s.logf("leave actor=%s", actorID)
	}
}

// decodeInput accepts only well-formed INPUT messages of the current
// protocol version carrying a client input kind.
func decodeInput(msg []byte) (world.InputEnvelope, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeInput {
		return world.InputEnvelope{}, false
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return world.InputEnvelope{}, false
	}
	if in.ProtocolVersion != protocol.Version || in.ToolID == "" || !protocol.IsKnownInput(in.Input) {
		return world.InputEnvelope{}, false
	}
	return world.InputEnvelope{ToolID: in.ToolID, Input: in.Input}, true
}

// leave waits for the world to take the leave unless its loop has exited.
func (s *Server) leave(actorID string) {
	select {
	case s.world.Leave() <- actorID:
	case <-s.world.Done():
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (actorID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultMaxQueue
	}
	if maxQ > maxMaxQueue {
		maxQ = maxMaxQueue
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Name: hello.ActorName, Out: out, Resp: respCh}:
	case <-ctx.Done():
		return "", nil
	case <-s.world.Done():
		closeWith(conn, websocket.CloseGoingAway, "world stopped")
		return "", nil
	}
	// A queued join is always answered while the loop runs; the actor it
	// creates must be matched by a leave, so only a stopped world ends the wait.
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-s.world.Done():
		closeWith(conn, websocket.CloseGoingAway, "world stopped")
		return "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(resp.Welcome.ActorID)
		return "", nil
	}
	return resp.Welcome.ActorID, out
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
