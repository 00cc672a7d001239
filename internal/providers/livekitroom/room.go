package livekitroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

const (
	agentStateAttribute = "lk.agent.state"
	microphoneTrackName = "microphone"
	opusFrameDuration   = 20 * time.Millisecond
)

type room struct {
	handler    ports.RoomHandler
	rpcTimeout time.Duration
	logger     *slog.Logger

	// SDK callbacks arrive on several goroutines; the handler sees them one
	// at a time.
	deliverMu sync.Mutex

	mu      sync.Mutex
	lk      *lksdk.Room
	agent   domain.AgentState
	leaving bool
	closed  bool
}

func newRoom(handler ports.RoomHandler, cfg Config) *room {
	return &room{
		handler:    handler,
		rpcTimeout: cfg.RPCTimeout,
		logger:     cfg.Logger,
		agent:      domain.AgentStateIdle,
	}
}

func (r *room) callbacks() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket:            r.onDataPacket,
			OnTranscriptionReceived: r.onTranscription,
			OnAttributesChanged:     r.onAttributesChanged,
		},
		OnParticipantConnected: r.onParticipantConnected,
		OnDisconnected:         r.onDisconnected,
		OnReconnecting: func() {
			r.deliver(func(h ports.RoomHandler) { h.ConnectionStateChanged(domain.ConnectionStateConnecting) })
		},
		OnReconnected: func() {
			r.deliver(func(h ports.RoomHandler) { h.ConnectionStateChanged(domain.ConnectionStateConnected) })
		},
	}
}

// attach binds the joined SDK room and reports the state of an agent that
// was already present.
func (r *room) attach(lk *lksdk.Room) {
	r.mu.Lock()
	r.lk = lk
	r.mu.Unlock()

	for _, rp := range lk.GetRemoteParticipants() {
		if rp.Kind() == lksdk.ParticipantAgent {
			r.reportAgentState(rp.Attributes()[agentStateAttribute])
		}
	}
}

func (r *room) sdk() (*lksdk.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lk == nil || r.leaving || r.closed {
		return nil, ports.ErrNotConnected
	}
	return r.lk, nil
}

func (r *room) LocalIdentity() string {
	r.mu.Lock()
	lk := r.lk
	r.mu.Unlock()
	if lk == nil {
		return ""
	}
	return lk.LocalParticipant.Identity()
}

func (r *room) Participants() []ports.Participant {
	r.mu.Lock()
	lk := r.lk
	r.mu.Unlock()
	if lk == nil {
		return nil
	}
	remote := lk.GetRemoteParticipants()
	out := make([]ports.Participant, 0, len(remote))
	for _, rp := range remote {
		out = append(out, participantFrom(rp))
	}
	return out
}

func (r *room) PublishData(_ context.Context, payload []byte, opts ports.PublishOptions) error {
	lk, err := r.sdk()
	if err != nil {
		return err
	}
	if err := lk.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), lksdk.WithDataPublishReliable(opts.Reliable)); err != nil {
		return fmt.Errorf("publish data: %w", err)
	}
	return nil
}

type rpcReply struct {
	payload *string
	err     error
}

// PerformRPC waits at most the configured timeout, or less when ctx ends
// sooner.
func (r *room) PerformRPC(ctx context.Context, req ports.RPCRequest) (string, error) {
	lk, err := r.sdk()
	if err != nil {
		return "", err
	}
	timeout := r.rpcTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	done := make(chan rpcReply, 1)
	go func() {
		payload, err := lk.LocalParticipant.PerformRpc(lksdk.PerformRpcParams{
			DestinationIdentity: req.Destination,
			Method:              req.Method,
			Payload:             req.Payload,
			ResponseTimeout:     &timeout,
		})
		done <- rpcReply{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case reply := <-done:
		if reply.err != nil {
			return "", rpcError(req.Method, reply.err)
		}
		if reply.payload == nil {
			return "", nil
		}
		return *reply.payload, nil
	}
}

// PublishAudio publishes an Ogg/Opus stream as the microphone track.
func (r *room) PublishAudio(_ context.Context, source io.Reader) (ports.LocalTrack, error) {
	lk, err := r.sdk()
	if err != nil {
		return nil, err
	}
	reader, ok := source.(io.ReadCloser)
	if !ok {
		reader = io.NopCloser(source)
	}

	track, err := lksdk.NewLocalReaderTrack(reader, webrtc.MimeTypeOpus, lksdk.ReaderTrackWithFrameDuration(opusFrameDuration))
	if err != nil {
		return nil, fmt.Errorf("create microphone track: %w", err)
	}
	publication, err := lk.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   microphoneTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, fmt.Errorf("publish microphone track: %w", err)
	}
	r.logger.Info("published microphone", "track", publication.SID())
	return newAudioTrack(publication), nil
}

func (r *room) Unpublish(_ context.Context, track ports.LocalTrack) error {
	t, ok := track.(*audioTrack)
	if !ok {
		return fmt.Errorf("track %s was not published by this room", track.ID())
	}
	_ = t.Stop()
	lk, err := r.sdk()
	if err != nil {
		return err
	}
	if err := lk.LocalParticipant.UnpublishTrack(t.ID()); err != nil {
		return fmt.Errorf("unpublish %s: %w", t.ID(), err)
	}
	return nil
}

// Disconnect leaves the room. Leaving twice, or after the server closed the
// room, is a no-op.
func (r *room) Disconnect(_ context.Context) error {
	r.mu.Lock()
	lk := r.lk
	skip := r.leaving || r.closed
	r.leaving = true
	r.mu.Unlock()

	if lk == nil || skip {
		return nil
	}
	lk.Disconnect()
	r.logger.Info("left room")
	return nil
}

func (r *room) onDisconnected() {
	r.mu.Lock()
	leaving := r.leaving
	r.closed = true
	r.mu.Unlock()
	if leaving {
		return
	}
	r.logger.Info("room closed by server")
	r.deliver(func(h ports.RoomHandler) { h.ConnectionStateChanged(domain.ConnectionStateDisconnected) })
}

func (r *room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	if rp.Kind() != lksdk.ParticipantAgent {
		return
	}
	r.logger.Debug("agent joined", "identity", rp.Identity())
	r.reportAgentState(rp.Attributes()[agentStateAttribute])
}

func (r *room) onDataPacket(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	payload, ok := userPayload(data)
	if !ok {
		return
	}
	from := r.participant(params.SenderIdentity)
	r.deliver(func(h ports.RoomHandler) { h.DataReceived(payload, from) })
}

func (r *room) onTranscription(segments []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
	converted := transcriptionSegments(segments)
	if len(converted) == 0 {
		return
	}
	identity := ""
	if p != nil {
		identity = p.Identity()
	}
	from := r.participant(identity)
	r.deliver(func(h ports.RoomHandler) { h.TranscriptionReceived(converted, from) })
}

func (r *room) onAttributesChanged(changed map[string]string, _ lksdk.Participant) {
	if raw, ok := changed[agentStateAttribute]; ok {
		r.reportAgentState(raw)
	}
}

func (r *room) reportAgentState(raw string) {
	state, ok := agentState(raw)
	if !ok {
		return
	}
	r.mu.Lock()
	if r.agent == state {
		r.mu.Unlock()
		return
	}
	r.agent = state
	r.mu.Unlock()
	r.deliver(func(h ports.RoomHandler) { h.AgentStateChanged(state) })
}

// participant resolves an identity to a room member; unknown identities are
// treated as standard participants.
func (r *room) participant(identity string) ports.Participant {
	r.mu.Lock()
	lk := r.lk
	r.mu.Unlock()
	if lk != nil && identity != "" {
		if rp := lk.GetParticipantByIdentity(identity); rp != nil {
			return participantFrom(rp)
		}
	}
	return ports.Participant{Identity: identity, Kind: ports.ParticipantKindStandard}
}

func (r *room) deliver(fn func(ports.RoomHandler)) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()
	fn(r.handler)
}

func participantFrom(rp *lksdk.RemoteParticipant) ports.Participant {
	kind := ports.ParticipantKindStandard
	if rp.Kind() == lksdk.ParticipantAgent {
		kind = ports.ParticipantKindAgent
	}
	return ports.Participant{Identity: rp.Identity(), Kind: kind}
}

func userPayload(data lksdk.DataPacket) ([]byte, bool) {
	user, ok := data.(*lksdk.UserDataPacket)
	if !ok || user == nil || len(user.Payload) == 0 {
		return nil, false
	}
	return user.Payload, true
}

func transcriptionSegments(segments []*lksdk.TranscriptionSegment) []ports.TranscriptionSegment {
	out := make([]ports.TranscriptionSegment, 0, len(segments))
	for _, segment := range segments {
		if segment == nil || strings.TrimSpace(segment.ID) == "" {
			continue
		}
		out = append(out, ports.TranscriptionSegment{
			ID:    segment.ID,
			Text:  segment.Text,
			Final: segment.Final,
		})
	}
	return out
}

// agentState maps the agent framework's state attribute. "initializing" is
// shown as idle.
func agentState(raw string) (domain.AgentState, bool) {
	switch strings.TrimSpace(raw) {
	case "initializing", "idle":
		return domain.AgentStateIdle, true
	case "listening":
		return domain.AgentStateListening, true
	case "thinking":
		return domain.AgentStateThinking, true
	case "speaking":
		return domain.AgentStateSpeaking, true
	default:
		return "", false
	}
}

// rpcError keeps the SDK error reachable and marks timeouts with
// ports.ErrRPCTimeout.
func rpcError(method string, err error) error {
	var remote *lksdk.RpcError
	if errors.As(err, &remote) {
		switch remote.Code {
		case lksdk.RpcResponseTimeout, lksdk.RpcConnectionTimeout:
			return fmt.Errorf("rpc %s: %w: %w", method, ports.ErrRPCTimeout, err)
		}
	}
	return fmt.Errorf("rpc %s: %w", method, err)
}
