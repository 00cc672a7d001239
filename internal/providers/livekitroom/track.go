package livekitroom

import (
	"sync"

	"souschef/internal/ports"
)

// publication is the part of *lksdk.LocalTrackPublication the track needs.
type publication interface {
	SID() string
	SetMuted(muted bool)
}

type audioTrack struct {
	publication publication

	mu      sync.Mutex
	muted   bool
	stopped bool
}

func newAudioTrack(p publication) *audioTrack {
	return &audioTrack{publication: p}
}

func (t *audioTrack) ID() string {
	return t.publication.SID()
}

func (t *audioTrack) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ports.ErrNotConnected
	}
	if t.muted == muted {
		return nil
	}
	t.publication.SetMuted(muted)
	t.muted = muted
	return nil
}

// Stop marks the track finished. The stream itself ends when the capture
// source is closed or the track is unpublished.
func (t *audioTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}
