package usecase

import (
	"time"

	"github.com/google/uuid"

	"souschef/internal/domain"
)

type timerRecord struct {
	id           string
	label        string
	totalSeconds int
	startedAt    time.Time
}

// timerRegistry holds countdowns. Remaining time is always derived from the
// start instant, so a missed tick never skews the display.
type timerRegistry struct {
	timers []timerRecord
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{}
}

// Start inserts a countdown, replacing any timer with the same id in place.
func (r *timerRegistry) Start(id, label string, seconds int, now time.Time) string {
	if id == "" {
		id = "timer-" + uuid.NewString()
	}
	if label == "" {
		label = "Timer"
	}
	if seconds < 0 {
		seconds = 0
	}
	record := timerRecord{id: id, label: label, totalSeconds: seconds, startedAt: now}
	for i := range r.timers {
		if r.timers[i].id == id {
			r.timers[i] = record
			return id
		}
	}
	r.timers = append(r.timers, record)
	return id
}

// Remove dismisses one timer. It reports whether the timer existed.
func (r *timerRegistry) Remove(id string) bool {
	for i := range r.timers {
		if r.timers[i].id == id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every timer and reports whether any existed.
func (r *timerRegistry) Clear() bool {
	had := len(r.timers) > 0
	r.timers = nil
	return had
}

func (r *timerRegistry) Len() int {
	return len(r.timers)
}

// Snapshot samples every timer at now.
func (r *timerRegistry) Snapshot(now time.Time) []domain.Timer {
	out := make([]domain.Timer, 0, len(r.timers))
	for _, t := range r.timers {
		out = append(out, domain.Timer{
			ID:               t.id,
			Label:            t.label,
			TotalSeconds:     t.totalSeconds,
			StartedAt:        t.startedAt,
			RemainingSeconds: remainingSeconds(t.totalSeconds, t.startedAt, now),
		})
	}
	return out
}

func remainingSeconds(total int, startedAt, now time.Time) int {
	elapsed := int(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := total - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
