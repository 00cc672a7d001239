package usecase

import (
	"time"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

// activeSession is everything scoped to one connection. It is created on
// Connect and dropped whole on disconnect; nothing carries over.
type activeSession struct {
	id     string
	cancel func()

	room          ports.Room
	localIdentity string
	track         ports.LocalTrack
	capture       ports.AudioSession

	connection  domain.ConnectionState
	agent       domain.AgentState
	connectedAt time.Time
	muted       bool

	stores sessionStores

	videoCache map[string]domain.VideoResult
	stopTicker chan struct{}
	tickerDone chan struct{}
}

func (s *activeSession) isLocal(identity string) bool {
	return s.localIdentity != "" && identity == s.localIdentity
}

// uploadTracker is the cookbook upload status. It belongs to the controller
// rather than a session so recipes can be uploaded before joining a room.
type uploadTracker struct {
	status     domain.UploadStatus
	gen        int
	readyTimer *time.Timer
}

func (u *uploadTracker) busy() bool {
	switch u.status.State {
	case domain.UploadStateUploading, domain.UploadStateProcessing, domain.UploadStateClearing:
		return true
	default:
		return false
	}
}

func (u *uploadTracker) cancelReadyHold() {
	u.gen++
	if u.readyTimer != nil {
		u.readyTimer.Stop()
		u.readyTimer = nil
	}
}

// reset forgets uploaded files once the session they fed has ended. An
// upload still in flight keeps its status.
func (u *uploadTracker) reset() bool {
	if u.busy() {
		return false
	}
	u.cancelReadyHold()
	if u.status == (domain.UploadStatus{State: domain.UploadStateIdle}) {
		return false
	}
	u.status = domain.UploadStatus{State: domain.UploadStateIdle}
	return true
}

// roomEvents binds transport callbacks to the session that created them.
// Callbacks from a room whose session has ended are dropped.
type roomEvents struct {
	controller *SessionController
	session    *activeSession
}

func (h roomEvents) ConnectionStateChanged(state domain.ConnectionState) {
	h.controller.onConnectionState(h.session, state)
}

func (h roomEvents) AgentStateChanged(state domain.AgentState) {
	_ = h.controller.update(h.session, func(active *activeSession) (bool, error) {
		if active.agent == state {
			return false, nil
		}
		active.agent = state
		return true, nil
	})
}

func (h roomEvents) DataReceived(payload []byte, _ ports.Participant) {
	_ = h.controller.update(h.session, func(active *activeSession) (bool, error) {
		return h.controller.dispatcher.Dispatch(&active.stores, payload), nil
	})
}

func (h roomEvents) TranscriptionReceived(segments []ports.TranscriptionSegment, from ports.Participant) {
	_ = h.controller.update(h.session, func(active *activeSession) (bool, error) {
		return active.stores.transcript.Ingest(segments, from, active.isLocal), nil
	})
}
