package roomrelay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

func TestConnectorJoinsRoom(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, _ := relay.connect(t, Config{})

	if room.LocalIdentity() != "me" {
		t.Fatalf("unexpected identity: %s", room.LocalIdentity())
	}
	participants := room.Participants()
	if len(participants) != 2 || participants[1].Kind != ports.ParticipantKindAgent {
		t.Fatalf("unexpected participants: %+v", participants)
	}
	if got := <-relay.auth; got != "Bearer tok-123" {
		t.Fatalf("unexpected authorization header: %q", got)
	}
	join := relay.joins()
	if join.Token != "tok-123" || join.Room != "kitchen" {
		t.Fatalf("unexpected join frame: %+v", join)
	}
}

func TestConnectorJoinRejected(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	relay.reject = "room is full"

	_, err := NewConnector(Config{}).Connect(context.Background(), relay.creds(), newRecordingHandler())
	if err == nil || !strings.Contains(err.Error(), "room is full") {
		t.Fatalf("expected join rejection, got %v", err)
	}
}

func TestConnectorRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewConnector(Config{URL: "ws://localhost:1"}).Connect(context.Background(), ports.Credentials{}, newRecordingHandler())
	if err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestRoomPublishData(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, _ := relay.connect(t, Config{})

	payload := []byte(`{"type":"ui_step_change","action":"next","step_index":1}`)
	if err := room.PublishData(context.Background(), payload, ports.PublishOptions{Reliable: true}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	frame := relay.waitFrame(t, opData)
	if frame["reliable"] != true {
		t.Fatalf("expected reliable frame: %+v", frame)
	}
	if got := decodePayload(t, frame); string(got) != string(payload) {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestRoomDeliversInboundFrames(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	_, handler := relay.connect(t, Config{})
	chef := ports.Participant{Identity: "chef", Kind: ports.ParticipantKindAgent}

	relay.push <- serverFrame{Op: opData, From: chef, Payload: []byte(`{"type":"timer"}`)}
	relay.push <- serverFrame{Op: opTranscription, From: chef, Segments: []ports.TranscriptionSegment{{ID: "s1", Text: "hello", Final: true}}}
	relay.push <- serverFrame{Op: opAgentState, State: "speaking"}
	relay.push <- serverFrame{Op: opAgentState, State: "dancing"}

	select {
	case got := <-handler.data:
		if string(got.payload) != `{"type":"timer"}` || got.from.Identity != "chef" {
			t.Fatalf("unexpected data event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for data")
	}
	select {
	case segments := <-handler.transcripts:
		if len(segments) != 1 || segments[0].ID != "s1" || !segments[0].Final {
			t.Fatalf("unexpected segments: %+v", segments)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcription")
	}
	select {
	case state := <-handler.agent:
		if state != domain.AgentStateSpeaking {
			t.Fatalf("unexpected agent state: %s", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for agent state")
	}
	select {
	case state := <-handler.agent:
		t.Fatalf("expected unknown agent state to be dropped, got %s", state)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoomTracksParticipants(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, handler := relay.connect(t, Config{})

	relay.push <- serverFrame{Op: opParticipantLeave, Participant: &ports.Participant{Identity: "chef"}}
	relay.push <- serverFrame{Op: opParticipantJoin, Participant: &ports.Participant{Identity: "sous", Kind: ports.ParticipantKindAgent}}
	relay.push <- serverFrame{Op: opData, Payload: []byte("sync")}
	<-handler.data

	participants := room.Participants()
	if len(participants) != 2 || participants[1].Identity != "sous" {
		t.Fatalf("unexpected participants: %+v", participants)
	}
}

func TestRoomPerformRPC(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, _ := relay.connect(t, Config{RPCTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	response, err := room.PerformRPC(ctx, ports.RPCRequest{Destination: "chef", Method: "echo", Payload: `{"filename":"a.pdf"}`})
	if err != nil {
		t.Fatalf("rpc failed: %v", err)
	}
	if response != `{"filename":"a.pdf"}` {
		t.Fatalf("unexpected response: %s", response)
	}
	request := relay.waitFrame(t, opRPCRequest)
	if request["destination"] != "chef" || request["response_timeout_ms"] != float64(100) {
		t.Fatalf("unexpected rpc frame: %+v", request)
	}

	_, err = room.PerformRPC(ctx, ports.RPCRequest{Destination: "chef", Method: "fail"})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Method != "fail" || remote.Message != "boom" {
		t.Fatalf("expected remote error, got %v", err)
	}

	_, err = room.PerformRPC(ctx, ports.RPCRequest{Destination: "chef", Method: "slow"})
	if !errors.Is(err, ports.ErrRPCTimeout) {
		t.Fatalf("expected ErrRPCTimeout, got %v", err)
	}
}

func TestRoomRemoteCloseReportsDisconnect(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, handler := relay.connect(t, Config{})

	relay.push <- closeConn{}

	select {
	case state := <-handler.states:
		if state != domain.ConnectionStateDisconnected {
			t.Fatalf("unexpected state: %s", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disconnect")
	}
	if _, err := room.PerformRPC(context.Background(), ports.RPCRequest{Method: "echo"}); !errors.Is(err, ports.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := room.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect after remote close failed: %v", err)
	}
}

func TestRoomDisconnectSendsLeave(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, handler := relay.connect(t, Config{})

	if err := room.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	relay.waitFrame(t, opLeave)

	select {
	case state := <-handler.states:
		t.Fatalf("expected no state callback on local leave, got %s", state)
	case <-time.After(50 * time.Millisecond):
	}
	if err := room.PublishData(context.Background(), []byte("x"), ports.PublishOptions{}); !errors.Is(err, ports.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestRoomPublishAudio(t *testing.T) {
	t.Parallel()

	relay := newFakeRelay(t)
	room, _ := relay.connect(t, Config{ChunkSize: 512})

	track, err := room.PublishAudio(context.Background(), strings.NewReader("pcm-samples"))
	if err != nil {
		t.Fatalf("publish audio failed: %v", err)
	}
	publish := relay.waitFrame(t, opTrackPublish)
	if publish["track_id"] != track.ID() || publish["kind"] != "audio" {
		t.Fatalf("unexpected publish frame: %+v", publish)
	}

	select {
	case chunk := <-relay.binary:
		if string(chunk) != "pcm-samples" {
			t.Fatalf("unexpected audio chunk: %q", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio")
	}

	if err := track.SetMuted(true); err != nil {
		t.Fatalf("mute failed: %v", err)
	}
	mute := relay.waitFrame(t, opTrackMute)
	if mute["muted"] != true {
		t.Fatalf("unexpected mute frame: %+v", mute)
	}

	if err := room.Unpublish(context.Background(), track); err != nil {
		t.Fatalf("unpublish failed: %v", err)
	}
	relay.waitFrame(t, opTrackUnpublish)
	if err := track.SetMuted(false); err == nil {
		t.Fatalf("expected stopped track to reject mute")
	}
}

func TestRelayURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://localhost:7880/relay": "ws://localhost:7880/relay",
		"https://relay.example.com":   "wss://relay.example.com",
		"wss://relay.example.com/rtc": "wss://relay.example.com/rtc",
	}
	for in, want := range cases {
		got, err := relayURL(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
	for _, bad := range []string{"", "ftp://x", "ws://", "::"} {
		if _, err := relayURL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

type closeConn struct{}

type fakeRelay struct {
	server *httptest.Server
	reject string

	auth   chan string
	join   chan joinFrame
	frames chan map[string]any
	binary chan []byte
	push   chan any
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{
		auth:   make(chan string, 1),
		join:   make(chan joinFrame, 1),
		frames: make(chan map[string]any, 64),
		binary: make(chan []byte, 64),
		push:   make(chan any, 16),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRelay) creds() ports.Credentials {
	return ports.Credentials{ServerURL: f.server.URL, Token: "tok-123", Room: "kitchen"}
}

func (f *fakeRelay) connect(t *testing.T, cfg Config) (ports.Room, *recordingHandler) {
	t.Helper()
	handler := newRecordingHandler()
	room, err := NewConnector(cfg).Connect(context.Background(), f.creds(), handler)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { _ = room.Disconnect(context.Background()) })
	return room, handler
}

func (f *fakeRelay) joins() joinFrame {
	return <-f.join
}

func (f *fakeRelay) waitFrame(t *testing.T, op string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-f.frames:
			if frame["op"] == op {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", op)
		}
	}
}

func (f *fakeRelay) serve(w http.ResponseWriter, r *http.Request) {
	select {
	case f.auth <- r.Header.Get("Authorization"):
	default:
	}
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var join joinFrame
	if err := conn.ReadJSON(&join); err != nil {
		return
	}
	f.join <- join
	if f.reject != "" {
		_ = conn.WriteJSON(serverFrame{Op: opError, Message: f.reject})
		return
	}
	_ = conn.WriteJSON(serverFrame{
		Op:       opJoined,
		Identity: "me",
		Participants: []ports.Participant{
			{Identity: "me", Kind: ports.ParticipantKindStandard},
			{Identity: "chef", Kind: ports.ParticipantKindAgent},
		},
	})

	var writeMu sync.Mutex
	write := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case msg := <-f.push:
				if _, ok := msg.(closeConn); ok {
					_ = conn.Close()
					return
				}
				write(msg)
			case <-done:
				return
			}
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.BinaryMessage {
			f.binary <- payload
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		f.frames <- frame
		if frame["op"] != opRPCRequest {
			continue
		}
		id, _ := frame["id"].(string)
		switch frame["method"] {
		case "echo":
			body, _ := base64.StdEncoding.DecodeString(frame["payload"].(string))
			write(serverFrame{Op: opRPCResponse, ID: id, Payload: body})
		case "fail":
			write(serverFrame{Op: opRPCResponse, ID: id, Error: "boom"})
		}
	}
}

func decodePayload(t *testing.T, frame map[string]any) []byte {
	t.Helper()
	encoded, _ := frame["payload"].(string)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("invalid base64 payload: %v", err)
	}
	return data
}

type dataEvent struct {
	payload []byte
	from    ports.Participant
}

type recordingHandler struct {
	states      chan domain.ConnectionState
	agent       chan domain.AgentState
	data        chan dataEvent
	transcripts chan []ports.TranscriptionSegment
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		states:      make(chan domain.ConnectionState, 16),
		agent:       make(chan domain.AgentState, 16),
		data:        make(chan dataEvent, 16),
		transcripts: make(chan []ports.TranscriptionSegment, 16),
	}
}

func (h *recordingHandler) ConnectionStateChanged(state domain.ConnectionState) {
	h.states <- state
}

func (h *recordingHandler) AgentStateChanged(state domain.AgentState) {
	h.agent <- state
}

func (h *recordingHandler) DataReceived(payload []byte, from ports.Participant) {
	h.data <- dataEvent{payload: payload, from: from}
}

func (h *recordingHandler) TranscriptionReceived(segments []ports.TranscriptionSegment, from ports.Participant) {
	h.transcripts <- segments
}
