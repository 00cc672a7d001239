package roomrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

// RemoteError is a failure reported by the procedure's target.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s failed remotely: %s", e.Method, e.Message)
}

type rpcReply struct {
	payload []byte
	err     error
}

type room struct {
	conn       *websocket.Conn
	handler    ports.RoomHandler
	identity   string
	rpcTimeout time.Duration
	chunkSize  int
	logger     *slog.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	participants []ports.Participant
	pending      map[string]chan rpcReply
	closed       bool
	leaving      bool

	done      chan struct{}
	closeOnce sync.Once
}

func newRoom(conn *websocket.Conn, handler ports.RoomHandler, joined serverFrame, cfg Config) *room {
	r := &room{
		conn:       conn,
		handler:    handler,
		identity:   joined.Identity,
		rpcTimeout: cfg.RPCTimeout,
		chunkSize:  cfg.ChunkSize,
		logger:     cfg.Logger,
		pending:    make(map[string]chan rpcReply),
		done:       make(chan struct{}),
	}
	for _, p := range joined.Participants {
		r.addParticipant(p)
	}
	return r
}

func (r *room) LocalIdentity() string {
	return r.identity
}

func (r *room) Participants() []ports.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *room) PublishData(_ context.Context, payload []byte, opts ports.PublishOptions) error {
	return r.writeJSON(dataFrame{Op: opData, Reliable: opts.Reliable, Payload: payload})
}

// PerformRPC sends a request and waits for the correlated response, the
// relay timeout, or ctx, whichever comes first.
func (r *room) PerformRPC(ctx context.Context, req ports.RPCRequest) (string, error) {
	id := uuid.NewString()
	reply := make(chan rpcReply, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ports.ErrNotConnected
	}
	r.pending[id] = reply
	r.mu.Unlock()
	defer r.forget(id)

	err := r.writeJSON(rpcRequestFrame{
		Op:                opRPCRequest,
		ID:                id,
		Destination:       req.Destination,
		Method:            req.Method,
		Payload:           []byte(req.Payload),
		ResponseTimeoutMS: r.rpcTimeout.Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(r.rpcTimeout)
	defer timer.Stop()
	select {
	case res := <-reply:
		var remote *RemoteError
		if errors.As(res.err, &remote) {
			remote.Method = req.Method
		}
		if res.err != nil {
			return "", res.err
		}
		return string(res.payload), nil
	case <-timer.C:
		return "", fmt.Errorf("rpc %s: %w", req.Method, ports.ErrRPCTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *room) PublishAudio(ctx context.Context, source io.Reader) (ports.LocalTrack, error) {
	if source == nil {
		return nil, errors.New("audio source is nil")
	}
	t := newAudioTrack(r, "mic-"+uuid.NewString())
	if err := r.writeJSON(trackFrame{Op: opTrackPublish, TrackID: t.id, Kind: "audio"}); err != nil {
		return nil, err
	}
	go t.pump(source, r.chunkSize)
	r.logger.Debug("published audio track", "track", t.id)
	return t, nil
}

func (r *room) Unpublish(_ context.Context, track ports.LocalTrack) error {
	if track == nil {
		return nil
	}
	_ = track.Stop()
	return r.writeJSON(trackFrame{Op: opTrackUnpublish, TrackID: track.ID()})
}

// Disconnect leaves the room. Pending RPCs fail with ErrNotConnected.
func (r *room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	r.leaving = true
	r.mu.Unlock()

	leaveErr := r.writeJSON(leaveFrame{Op: opLeave})
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"),
		time.Now().Add(time.Second))
	r.writeMu.Unlock()
	r.shutdown()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if leaveErr != nil && !errors.Is(leaveErr, ports.ErrNotConnected) {
		return leaveErr
	}
	return nil
}

func (r *room) shutdown() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		pending := r.pending
		r.pending = make(map[string]chan rpcReply)
		r.mu.Unlock()

		for _, reply := range pending {
			reply <- rpcReply{err: ports.ErrNotConnected}
		}
		_ = r.conn.Close()
	})
}

func (r *room) writeJSON(v any) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ports.ErrNotConnected
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write relay frame: %w", err)
	}
	return nil
}

func (r *room) writeAudio(chunk []byte) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ports.ErrNotConnected
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (r *room) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *room) readLoop() {
	defer close(r.done)

	for {
		messageType, payload, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			leaving := r.leaving
			r.mu.Unlock()
			r.shutdown()
			if !leaving {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.logger.Warn("relay connection lost", "error", err)
				}
				r.handler.ConnectionStateChanged(domain.ConnectionStateDisconnected)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame serverFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			r.logger.Debug("dropping relay frame", "error", err)
			continue
		}
		r.handle(frame)
	}
}

func (r *room) handle(frame serverFrame) {
	switch frame.Op {
	case opData:
		r.handler.DataReceived(frame.Payload, frame.From)
	case opTranscription:
		if len(frame.Segments) > 0 {
			r.handler.TranscriptionReceived(frame.Segments, frame.From)
		}
	case opParticipantJoin:
		if frame.Participant != nil {
			r.addParticipant(*frame.Participant)
		}
	case opParticipantLeave:
		if frame.Participant != nil {
			r.removeParticipant(frame.Participant.Identity)
		}
	case opRPCResponse:
		r.resolve(frame)
	case opAgentState:
		if state, ok := agentState(frame.State); ok {
			r.handler.AgentStateChanged(state)
		}
	case opError:
		r.logger.Warn("relay reported error", "message", frame.Message)
	default:
		r.logger.Debug("ignoring relay frame", "op", frame.Op)
	}
}

func (r *room) resolve(frame serverFrame) {
	r.mu.Lock()
	reply, ok := r.pending[frame.ID]
	delete(r.pending, frame.ID)
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("rpc response without request", "id", frame.ID)
		return
	}
	if frame.Error != "" {
		reply <- rpcReply{err: &RemoteError{Message: frame.Error}}
		return
	}
	reply <- rpcReply{payload: frame.Payload}
}

func (r *room) addParticipant(p ports.Participant) {
	if p.Identity == "" {
		return
	}
	if p.Kind == "" {
		p.Kind = ports.ParticipantKindStandard
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.participants {
		if r.participants[i].Identity == p.Identity {
			r.participants[i] = p
			return
		}
	}
	r.participants = append(r.participants, p)
}

func (r *room) removeParticipant(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.participants {
		if r.participants[i].Identity == identity {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return
		}
	}
}

func agentState(raw string) (domain.AgentState, bool) {
	switch state := domain.AgentState(raw); state {
	case domain.AgentStateIdle, domain.AgentStateListening, domain.AgentStateThinking, domain.AgentStateSpeaking:
		return state, true
	default:
		return "", false
	}
}
