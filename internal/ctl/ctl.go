// Package ctl serves the control socket: a WebSocket endpoint that streams
// assistant events as JSON and accepts a small command set, for local
// dashboards and debugging.
//
// Every server frame is a [Message]: "event" frames carry one phase
// transition, "result" frames answer a command, "status" frames carry a
// snapshot. Clients send [Command] frames. Event delivery never stalls the
// voice loop: a subscriber that cannot keep up loses events.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/MrWong99/auricle/internal/assistant"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/coder/websocket"
)

// subscriberQueueSize is the per-client event buffer. Events beyond it are
// dropped for that client.
const subscriberQueueSize = 16

// Frame types sent by the server.
const (
	MessageEvent  = "event"
	MessageResult = "result"
	MessageStatus = "status"
)

// Commands accepted from clients.
const (
	CmdPause  = "pause"
	CmdResume = "resume"
	CmdSay    = "say"
	CmdStatus = "status"
)

// Command is one client request frame.
type Command struct {
	// Cmd is one of the Cmd* constants.
	Cmd string `json:"cmd"`

	// Text is the sentence to speak for [CmdSay].
	Text string `json:"text,omitempty"`
}

// Message is one server frame. Type selects which of the payload fields is
// set.
type Message struct {
	Type   string           `json:"type"`
	Event  *assistant.Event `json:"event,omitempty"`
	Result *Result          `json:"result,omitempty"`
	Status *Status          `json:"status,omitempty"`
}

// Result reports the outcome of one command.
type Result struct {
	Cmd   string `json:"cmd"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the assistant.
type Status struct {
	Phase       string `json:"phase"`
	Wakeword    string `json:"wakeword"`
	Model       bool   `json:"model"`
	CaptureOpen bool   `json:"capture_open"`
}

// Controller is the assistant surface the control socket drives.
// [assistant.Assistant] satisfies it.
type Controller interface {
	Speak(ctx context.Context, text string) error
	Phase() assistant.Phase
	Wakeword() string
	ModelEnabled() bool
}

// Compile-time assertions.
var _ Controller = (*assistant.Assistant)(nil)
var _ http.Handler = (*Server)(nil)

// Server accepts control-socket connections and fans assistant events out to
// them. Wire [Server.Notify] as the assistant's notifier and mount the
// Server on the HTTP listener.
type Server struct {
	controller Controller
	gate       *audio.Gate

	mu      sync.Mutex
	subs    map[chan assistant.Event]struct{}
	dropped uint64
}

// NewServer creates a Server controlling the given assistant and capture
// gate.
func NewServer(controller Controller, gate *audio.Gate) *Server {
	return &Server{
		controller: controller,
		gate:       gate,
		subs:       make(map[chan assistant.Event]struct{}),
	}
}

// Notify fans e out to every connected client and returns without blocking.
// It runs on the interaction goroutine, so a slow client drops events rather
// than delaying the assistant.
func (s *Server) Notify(e assistant.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.dropped++
			slog.Debug("ctl: dropped event for slow subscriber", "dropped", s.dropped)
		}
	}
}

// ServeHTTP upgrades the connection and serves it until the client
// disconnects: a status snapshot first, then live events, answering command
// frames as they arrive.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The listener serves loopback dashboards; no origin allowlist.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("ctl: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "abandoned")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("ctl: client connected", "remote", r.RemoteAddr)

	// Subscribe before the opening snapshot: once the client has read the
	// snapshot, no later event can be missed.
	events, unsubscribe := s.subscribe()
	defer unsubscribe()

	if err := writeJSON(ctx, conn, Message{Type: MessageStatus, Status: s.snapshot()}); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				if err := writeJSON(ctx, conn, Message{Type: MessageEvent, Event: &e}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("ctl: client disconnected", "remote", r.RemoteAddr)
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, fmt.Errorf("bad command frame: %w", err)))
			continue
		}
		s.execute(ctx, conn, cmd)
	}
}

// execute runs one command and writes its answer frame. Write failures are
// left to the read loop, which notices the dead connection next iteration.
func (s *Server) execute(ctx context.Context, conn *websocket.Conn, cmd Command) {
	slog.Debug("ctl: command", "cmd", cmd.Cmd)
	switch cmd.Cmd {
	case CmdPause:
		s.gate.Close()
		_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, nil))
	case CmdResume:
		s.gate.Open()
		_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, nil))
	case CmdSay:
		if strings.TrimSpace(cmd.Text) == "" {
			_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, errors.New("say needs text")))
			return
		}
		_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, s.controller.Speak(ctx, cmd.Text)))
	case CmdStatus:
		_ = writeJSON(ctx, conn, Message{Type: MessageStatus, Status: s.snapshot()})
	default:
		_ = writeJSON(ctx, conn, resultMessage(cmd.Cmd, fmt.Errorf("unknown command %q", cmd.Cmd)))
	}
}

func (s *Server) snapshot() *Status {
	return &Status{
		Phase:       s.controller.Phase().String(),
		Wakeword:    s.controller.Wakeword(),
		Model:       s.controller.ModelEnabled(),
		CaptureOpen: s.gate.IsOpen(),
	}
}

func (s *Server) subscribe() (chan assistant.Event, func()) {
	ch := make(chan assistant.Event, subscriberQueueSize)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	n := len(s.subs)
	s.mu.Unlock()
	slog.Debug("ctl: subscriber added", "subscribers", n)
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func resultMessage(cmd string, err error) Message {
	r := &Result{Cmd: cmd, OK: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	return Message{Type: MessageResult, Result: r}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ctl: marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
