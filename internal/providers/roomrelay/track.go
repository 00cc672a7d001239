package roomrelay

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// audioTrack forwards a PCM reader to the relay as binary frames. Muting keeps
// draining the source so the capture process never blocks.
type audioTrack struct {
	id   string
	room *room

	muted    atomic.Bool
	stopped  chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newAudioTrack(r *room, id string) *audioTrack {
	return &audioTrack{
		id:      id,
		room:    r,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (t *audioTrack) ID() string {
	return t.id
}

func (t *audioTrack) SetMuted(muted bool) error {
	if t.isStopped() {
		return errors.New("audio track is stopped")
	}
	if t.muted.Swap(muted) == muted {
		return nil
	}
	return t.room.writeJSON(trackFrame{Op: opTrackMute, TrackID: t.id, Muted: &muted})
}

// Stop ends forwarding. The pump exits after its current read returns, so
// callers stop the source afterwards to unblock it.
func (t *audioTrack) Stop() error {
	t.stopOnce.Do(func() {
		close(t.stopped)
	})
	return nil
}

func (t *audioTrack) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *audioTrack) pump(source io.Reader, chunkSize int) {
	defer close(t.done)

	buf := make([]byte, chunkSize)
	for {
		n, err := source.Read(buf)
		if t.isStopped() {
			return
		}
		if n > 0 && !t.muted.Load() {
			if writeErr := t.room.writeAudio(buf[:n]); writeErr != nil {
				t.room.logger.Debug("audio forwarding stopped", "track", t.id, "error", writeErr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.room.logger.Warn("audio source failed", "track", t.id, "error", err)
			}
			return
		}
	}
}
