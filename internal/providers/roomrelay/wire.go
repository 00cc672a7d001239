package roomrelay

import "souschef/internal/ports"

// Operation names on the relay socket. Text frames carry one JSON object
// with an op discriminator; binary frames carry microphone PCM.
const (
	opJoin           = "join"
	opData           = "data"
	opRPCRequest     = "rpc_request"
	opTrackPublish   = "track_publish"
	opTrackMute      = "track_mute"
	opTrackUnpublish = "track_unpublish"
	opLeave          = "leave"

	opJoined           = "joined"
	opParticipantJoin  = "participant_joined"
	opParticipantLeave = "participant_left"
	opTranscription    = "transcription"
	opRPCResponse      = "rpc_response"
	opAgentState       = "agent_state"
	opError            = "error"
)

type joinFrame struct {
	Op    string `json:"op"`
	Token string `json:"token"`
	Room  string `json:"room"`
}

type dataFrame struct {
	Op       string `json:"op"`
	Reliable bool   `json:"reliable"`
	Payload  []byte `json:"payload"`
}

type rpcRequestFrame struct {
	Op                string `json:"op"`
	ID                string `json:"id"`
	Destination       string `json:"destination"`
	Method            string `json:"method"`
	Payload           []byte `json:"payload"`
	ResponseTimeoutMS int64  `json:"response_timeout_ms"`
}

type trackFrame struct {
	Op      string `json:"op"`
	TrackID string `json:"track_id"`
	Kind    string `json:"kind,omitempty"`
	Muted   *bool  `json:"muted,omitempty"`
}

type leaveFrame struct {
	Op string `json:"op"`
}

// serverFrame is the union of every relay-to-client frame.
type serverFrame struct {
	Op           string                       `json:"op"`
	Identity     string                       `json:"identity,omitempty"`
	Participants []ports.Participant          `json:"participants,omitempty"`
	Participant  *ports.Participant           `json:"participant,omitempty"`
	From         ports.Participant            `json:"from"`
	Payload      []byte                       `json:"payload,omitempty"`
	Segments     []ports.TranscriptionSegment `json:"segments,omitempty"`
	ID           string                       `json:"id,omitempty"`
	Error        string                       `json:"error,omitempty"`
	State        string                       `json:"state,omitempty"`
	Message      string                       `json:"message,omitempty"`
}
