package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"socialsim/server/internal/audio"
	"socialsim/server/internal/model"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// newTestHub 启动一个挂着 Hub 的测试服务器并连上一个客户端。
func newTestHub(t *testing.T, handler EventHandler) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(Config{PingInterval: time.Second}, quietLogger())
	hub.SetEventHandler(handler)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read server message: %v", err)
	}
	return msg
}

func TestHub_ForwardsClientMessages(t *testing.T) {
	got := make(chan *ClientMessage, 1)
	handler := func(ctx context.Context, msg *ClientMessage) error {
		got <- msg
		return nil
	}
	_, conn := newTestHub(t, handler)

	if err := conn.WriteJSON(ClientMessage{Type: EventTypeSendMessage, EventID: "e1", Text: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-got:
		if msg.Type != EventTypeSendMessage || msg.Text != "hello" || msg.EventID != "e1" {
			t.Fatalf("unexpected message %+v", msg)
		}
		if msg.ClientTS.IsZero() {
			t.Fatalf("expected client timestamp filled in")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never called")
	}
}

func TestHub_PublishBroadcastsEvents(t *testing.T) {
	hub, conn := newTestHub(t, nil)

	hub.Publish(model.Event{Seq: 7, SessionID: "sess_1", Type: model.EventModelMessage, Rapport: 55})
	hub.Publish(model.Event{Seq: 8, SessionID: "sess_1", Type: model.EventHintReady, Text: "try this"})

	first := readServerMessage(t, conn)
	second := readServerMessage(t, conn)
	if first.Type != EventTypeEvent || first.Event == nil || first.Event.Type != model.EventModelMessage || first.Event.Rapport != 55 {
		t.Fatalf("unexpected first message %+v", first)
	}
	if second.Event == nil || second.Event.Text != "try this" {
		t.Fatalf("unexpected second message %+v", second)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing stream seq, got %d then %d", first.Seq, second.Seq)
	}
}

func TestHub_HandlerErrorReturnedToClient(t *testing.T) {
	handler := func(ctx context.Context, msg *ClientMessage) error {
		return errors.New("scenario required")
	}
	_, conn := newTestHub(t, handler)

	if err := conn.WriteJSON(ClientMessage{Type: EventTypeRequestHint}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readServerMessage(t, conn)
	if msg.Type != EventTypeError || msg.Error != "scenario required" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestHub_InvalidJSONKeepsConnection(t *testing.T) {
	got := make(chan *ClientMessage, 1)
	handler := func(ctx context.Context, msg *ClientMessage) error {
		got <- msg
		return nil
	}
	_, conn := newTestHub(t, handler)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readServerMessage(t, conn); msg.Type != EventTypeError {
		t.Fatalf("expected error message, got %+v", msg)
	}

	// 连接仍然可用
	if err := conn.WriteJSON(ClientMessage{Type: EventTypeReset}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case msg := <-got:
		if msg.Type != EventTypeReset {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never called")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, conn := newTestHub(t, nil)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection closed")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients after close, got %d", hub.Clients())
	}
}

func TestStreamEngine_BroadcastsAudio(t *testing.T) {
	hub, conn := newTestHub(t, nil)
	engine := NewStreamEngine(hub)

	pcm := make([]byte, 481) // 240 个样本 = 10ms，末尾奇数字节丢弃
	pcm[0], pcm[1] = 0x00, 0x40
	clip := audio.DecodePCM16(pcm)

	if err := engine.Play(context.Background(), clip); err != nil {
		t.Fatalf("play: %v", err)
	}

	msg := readServerMessage(t, conn)
	if msg.Type != EventTypeAudio || msg.SampleRate != audio.SampleRate || msg.Channels != audio.Channels {
		t.Fatalf("unexpected audio frame %+v", msg)
	}
	if !bytes.Equal(msg.AudioData, pcm[:480]) {
		t.Fatalf("expected raw pcm forwarded, got %d bytes", len(msg.AudioData))
	}
	if msg.DurationMS != 10 {
		t.Fatalf("expected 10ms clip, got %d", msg.DurationMS)
	}
}

func TestStreamEngine_StopNotifiesClients(t *testing.T) {
	hub, conn := newTestHub(t, nil)
	engine := NewStreamEngine(hub)
	clip := audio.DecodePCM16(make([]byte, 2*audio.SampleRate)) // 1s

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Play(ctx, clip) }()

	if msg := readServerMessage(t, conn); msg.Type != EventTypeAudio {
		t.Fatalf("expected audio frame first, got %s", msg.Type)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if msg := readServerMessage(t, conn); msg.Type != EventTypeAudioStop {
		t.Fatalf("expected audio_stop, got %s", msg.Type)
	}
}
