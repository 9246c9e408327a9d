package ctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/auricle/internal/assistant"
	"github.com/MrWong99/auricle/internal/ctl"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/coder/websocket"
)

// controllerStub satisfies ctl.Controller with canned state.
type controllerStub struct {
	mu       sync.Mutex
	spoken   []string
	speakErr error

	phase    assistant.Phase
	wakeword string
	model    bool
}

func (c *controllerStub) Speak(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speakErr != nil {
		return c.speakErr
	}
	c.spoken = append(c.spoken, text)
	return nil
}

func (c *controllerStub) Phase() assistant.Phase { return c.phase }
func (c *controllerStub) Wakeword() string       { return c.wakeword }
func (c *controllerStub) ModelEnabled() bool     { return c.model }

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects a test client to the server and closes it with the test.
func dial(t *testing.T, s *ctl.Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readMessage reads and decodes one server frame.
func readMessage(t *testing.T, conn *websocket.Conn) ctl.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg ctl.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return msg
}

// send writes one command frame.
func send(t *testing.T, conn *websocket.Conn, cmd ctl.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(cmd)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestConnect_SendsStatusSnapshot(t *testing.T) {
	t.Parallel()

	stub := &controllerStub{phase: assistant.PhaseListening, wakeword: "computer", model: true}
	s := ctl.NewServer(stub, audio.NewGate(true))
	conn := dial(t, s)

	msg := readMessage(t, conn)
	if msg.Type != ctl.MessageStatus {
		t.Fatalf("first frame type = %q, want %q", msg.Type, ctl.MessageStatus)
	}
	if msg.Status.Phase != "listening" {
		t.Errorf("status phase = %q, want %q", msg.Status.Phase, "listening")
	}
	if msg.Status.Wakeword != "computer" {
		t.Errorf("status wakeword = %q, want %q", msg.Status.Wakeword, "computer")
	}
	if !msg.Status.Model {
		t.Error("status model = false, want true")
	}
	if !msg.Status.CaptureOpen {
		t.Error("status capture_open = false, want true")
	}
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	gate := audio.NewGate(true)
	s := ctl.NewServer(&controllerStub{}, gate)
	conn := dial(t, s)
	readMessage(t, conn) // opening snapshot

	send(t, conn, ctl.Command{Cmd: ctl.CmdPause})
	msg := readMessage(t, conn)
	if msg.Type != ctl.MessageResult || !msg.Result.OK {
		t.Fatalf("pause result = %+v, want ok", msg)
	}
	if gate.IsOpen() {
		t.Error("gate still open after pause")
	}

	send(t, conn, ctl.Command{Cmd: ctl.CmdResume})
	msg = readMessage(t, conn)
	if msg.Type != ctl.MessageResult || !msg.Result.OK {
		t.Fatalf("resume result = %+v, want ok", msg)
	}
	if !gate.IsOpen() {
		t.Error("gate still closed after resume")
	}
}

func TestSay_SpeaksThroughController(t *testing.T) {
	t.Parallel()

	stub := &controllerStub{}
	s := ctl.NewServer(stub, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: ctl.CmdSay, Text: "hello there"})
	msg := readMessage(t, conn)
	if !msg.Result.OK {
		t.Fatalf("say result = %+v, want ok", msg.Result)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.spoken) != 1 || stub.spoken[0] != "hello there" {
		t.Errorf("spoken = %v, want [hello there]", stub.spoken)
	}
}

func TestSay_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: ctl.CmdSay})
	msg := readMessage(t, conn)
	if msg.Result.OK {
		t.Error("say with no text accepted, want error result")
	}
	if msg.Result.Error == "" {
		t.Error("error result carries no message")
	}
}

func TestSay_ControllerErrorReported(t *testing.T) {
	t.Parallel()

	stub := &controllerStub{speakErr: errors.New("playback device gone")}
	s := ctl.NewServer(stub, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: ctl.CmdSay, Text: "hello"})
	msg := readMessage(t, conn)
	if msg.Result.OK {
		t.Error("say result ok despite controller error")
	}
	if !strings.Contains(msg.Result.Error, "playback device gone") {
		t.Errorf("error = %q, want the controller failure", msg.Result.Error)
	}
}

func TestStatusCommand_ReflectsGate(t *testing.T) {
	t.Parallel()

	gate := audio.NewGate(true)
	s := ctl.NewServer(&controllerStub{wakeword: "barry"}, gate)
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: ctl.CmdPause})
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: ctl.CmdStatus})
	msg := readMessage(t, conn)
	if msg.Type != ctl.MessageStatus {
		t.Fatalf("frame type = %q, want %q", msg.Type, ctl.MessageStatus)
	}
	if msg.Status.CaptureOpen {
		t.Error("capture_open = true after pause, want false")
	}
	if msg.Status.Wakeword != "barry" {
		t.Errorf("wakeword = %q, want %q", msg.Status.Wakeword, "barry")
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, ctl.Command{Cmd: "dance"})
	msg := readMessage(t, conn)
	if msg.Result.OK {
		t.Error("unknown command accepted, want error result")
	}
	if !strings.Contains(msg.Result.Error, "unknown command") {
		t.Errorf("error = %q, want unknown command", msg.Result.Error)
	}
}

func TestNotify_StreamsEventsToClient(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn) // snapshot read means the subscription is live

	s.Notify(assistant.Event{Phase: assistant.PhaseSpeaking, Answer: "hi", Time: time.Now()})

	msg := readMessage(t, conn)
	if msg.Type != ctl.MessageEvent {
		t.Fatalf("frame type = %q, want %q", msg.Type, ctl.MessageEvent)
	}
	if msg.Event.Phase != assistant.PhaseSpeaking {
		t.Errorf("event phase = %v, want %v", msg.Event.Phase, assistant.PhaseSpeaking)
	}
	if msg.Event.Answer != "hi" {
		t.Errorf("event answer = %q, want %q", msg.Event.Answer, "hi")
	}
}

func TestNotify_FansOutToAllClients(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	first := dial(t, s)
	second := dial(t, s)
	readMessage(t, first)
	readMessage(t, second)

	s.Notify(assistant.Event{Phase: assistant.PhaseWakewordMatched, Prompt: "what time is it"})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		if msg.Type != ctl.MessageEvent || msg.Event.Phase != assistant.PhaseWakewordMatched {
			t.Errorf("frame = %+v, want the wakeword event", msg)
		}
	}
}

// TestNotify_NeverBlocks floods a subscriber that reads nothing. Notify must
// keep returning immediately, dropping what the client cannot take.
func TestNotify_NeverBlocks(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.Notify(assistant.Event{Phase: assistant.PhaseListening})
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Notify blocked on a slow subscriber")
	}
}

func TestNotify_NoSubscribers(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	s.Notify(assistant.Event{Phase: assistant.PhaseListening})
}

func TestBadFrame_AnswersWithError(t *testing.T) {
	t.Parallel()

	s := ctl.NewServer(&controllerStub{}, audio.NewGate(true))
	conn := dial(t, s)
	readMessage(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Result == nil || msg.Result.OK {
		t.Errorf("frame = %+v, want an error result", msg)
	}
}
