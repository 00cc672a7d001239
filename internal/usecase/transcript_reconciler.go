package usecase

import (
	"strings"
	"time"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

// transcriptReconciler merges transcription segments into an ordered transcript.
// Entries are keyed by segment id: the first sighting appends, later sightings
// update text in place until the entry is final. An entry whose text is still
// empty holds its position but stays out of the view.
type transcriptReconciler struct {
	entries []domain.TranscriptEntry
	index   map[string]int
	rewrite ports.TextTransformer
	now     func() time.Time
}

func newTranscriptReconciler(rewrite ports.TextTransformer, now func() time.Time) *transcriptReconciler {
	if now == nil {
		now = time.Now
	}
	return &transcriptReconciler{
		index:   make(map[string]int),
		rewrite: rewrite,
		now:     now,
	}
}

// Ingest applies a batch of segments from one participant. It reports whether
// the transcript changed.
func (r *transcriptReconciler) Ingest(segments []ports.TranscriptionSegment, from ports.Participant, isLocal func(identity string) bool) bool {
	speaker := domain.SpeakerAgent
	if isLocal != nil && isLocal(from.Identity) {
		speaker = domain.SpeakerUser
	}

	changed := false
	for _, segment := range segments {
		id := strings.TrimSpace(segment.ID)
		if id == "" {
			continue
		}
		text := r.displayText(segment.Text)

		if pos, ok := r.index[id]; ok {
			entry := &r.entries[pos]
			if entry.IsFinal {
				continue
			}
			if entry.Text != text || entry.IsFinal != segment.Final {
				entry.Text = text
				entry.IsFinal = segment.Final
				changed = true
			}
			continue
		}

		r.index[id] = len(r.entries)
		r.entries = append(r.entries, domain.TranscriptEntry{
			ID:         id,
			Speaker:    speaker,
			Text:       text,
			IsFinal:    segment.Final,
			ReceivedAt: r.now(),
		})
		if text != "" {
			changed = true
		}
	}
	return changed
}

func (r *transcriptReconciler) displayText(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || r.rewrite == nil {
		return text
	}
	rewritten, err := r.rewrite.Apply(text)
	if err != nil {
		return text
	}
	return rewritten
}

// Entries returns a copy of the visible transcript in arrival order.
func (r *transcriptReconciler) Entries() []domain.TranscriptEntry {
	out := make([]domain.TranscriptEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Text != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Latest returns the live (most recently created) visible line.
func (r *transcriptReconciler) Latest() (domain.TranscriptEntry, bool) {
	return r.visibleFromEnd(0)
}

// Previous returns the line shown faded above the live one.
func (r *transcriptReconciler) Previous() (domain.TranscriptEntry, bool) {
	return r.visibleFromEnd(1)
}

func (r *transcriptReconciler) visibleFromEnd(skip int) (domain.TranscriptEntry, bool) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Text == "" {
			continue
		}
		if skip == 0 {
			return r.entries[i], true
		}
		skip--
	}
	return domain.TranscriptEntry{}, false
}
