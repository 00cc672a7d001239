package ports

import (
	"context"
	"errors"
	"io"

	"souschef/internal/domain"
)

var (
	// ErrRPCTimeout is returned by Room.PerformRPC when no response arrives in time.
	ErrRPCTimeout = errors.New("rpc response timed out")
	// ErrNotConnected is returned by Room operations after the room is left.
	ErrNotConnected = errors.New("room is not connected")
	// ErrNoVideo is returned by VideoLookup when nothing matches the instruction.
	ErrNoVideo = errors.New("no video found")
)

// Credentials are handed to the transport unchanged.
type Credentials struct {
	ServerURL string
	Token     string
	Room      string
}

// ParticipantKind distinguishes the remote agent from human participants.
type ParticipantKind string

const (
	ParticipantKindStandard ParticipantKind = "standard"
	ParticipantKindAgent    ParticipantKind = "agent"
)

// Participant identifies a room member.
type Participant struct {
	Identity string          `json:"identity"`
	Kind     ParticipantKind `json:"kind"`
}

// TranscriptionSegment is an incremental unit of transcribed speech.
type TranscriptionSegment struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// PublishOptions controls data packet delivery.
type PublishOptions struct {
	Reliable bool
}

// RPCRequest targets a method on a remote participant.
type RPCRequest struct {
	Destination string
	Method      string
	Payload     string
}

// RoomHandler receives transport callbacks, one at a time.
type RoomHandler interface {
	ConnectionStateChanged(state domain.ConnectionState)
	AgentStateChanged(state domain.AgentState)
	DataReceived(payload []byte, from Participant)
	TranscriptionReceived(segments []TranscriptionSegment, from Participant)
}

// LocalTrack is a locally produced media track published to the room.
type LocalTrack interface {
	ID() string
	SetMuted(muted bool) error
	Stop() error
}

// Room is a joined realtime room.
type Room interface {
	LocalIdentity() string
	Participants() []Participant
	PublishData(ctx context.Context, payload []byte, opts PublishOptions) error
	PerformRPC(ctx context.Context, req RPCRequest) (string, error)
	PublishAudio(ctx context.Context, source io.Reader) (LocalTrack, error)
	Unpublish(ctx context.Context, track LocalTrack) error
	Disconnect(ctx context.Context) error
}

// RoomConnector joins rooms.
type RoomConnector interface {
	Connect(ctx context.Context, creds Credentials, handler RoomHandler) (Room, error)
}

// TokenIssuer mints room credentials for a voice preference.
type TokenIssuer interface {
	Issue(ctx context.Context, voice string) (Credentials, error)
}

// Uploader transfers source material to the ingestion endpoint.
type Uploader interface {
	Upload(ctx context.Context, filename string, content io.Reader) (domain.UploadResult, error)
}

// VideoLookup maps an instruction to a how-to video.
type VideoLookup interface {
	Lookup(ctx context.Context, instruction string) (domain.Video, error)
}

// TextTransformer rewrites transcript text for display.
type TextTransformer interface {
	Apply(text string) (string, error)
}

// AudioEncoding is the byte format a capture session produces.
type AudioEncoding string

const (
	AudioEncodingPCM     AudioEncoding = "pcm_s16le"
	AudioEncodingOggOpus AudioEncoding = "ogg_opus"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Encoding    AudioEncoding
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// EventSink emits session state to the UI.
type EventSink interface {
	ViewChanged(view domain.SessionView)
	SessionError(code domain.ErrorCode, detail string)
}
