package usecase

import (
	"log/slog"
	"time"

	"souschef/internal/protocol"
)

// sessionStores groups the per-session state the dispatcher may mutate.
type sessionStores struct {
	transcript *transcriptReconciler
	timers     *timerRegistry
	shopping   *shoppingList
	cooking    cookingState
}

// eventDispatcher is the single ingress for inbound data packets. Every
// decoded message is routed to exactly one store; malformed and unknown
// packets are dropped without error.
type eventDispatcher struct {
	logger *slog.Logger
	now    func() time.Time
}

func newEventDispatcher(logger *slog.Logger, now func() time.Time) eventDispatcher {
	if now == nil {
		now = time.Now
	}
	return eventDispatcher{logger: logger, now: now}
}

// Dispatch applies one packet and reports whether any store changed.
func (d eventDispatcher) Dispatch(stores *sessionStores, payload []byte) bool {
	msg, err := protocol.Decode(payload)
	if err != nil {
		d.logger.Debug("dropping data packet", "error", err, "bytes", len(payload))
		return false
	}

	switch m := msg.(type) {
	case protocol.TimerStart:
		id := stores.timers.Start(m.ID, m.Label, m.Seconds, d.now())
		d.logger.Info("timer started", "id", id, "label", m.Label, "seconds", m.Seconds)
		return true
	case protocol.TimerClearAll:
		return stores.timers.Clear()
	case protocol.ShoppingListUpdate:
		stores.shopping.Replace(m.Items)
		return true
	case protocol.ShoppingListClear:
		stores.shopping.Replace(nil)
		return true
	case protocol.RecipePlanReady:
		stores.cooking = stores.cooking.PlanReady(m.Plan)
		d.logger.Info("recipe plan received", "plan", m.Plan.ID, "steps", len(m.Plan.Steps))
		return true
	case protocol.RecipePlanStarted:
		stores.cooking = stores.cooking.PlanStarted()
		return true
	case protocol.CookingModeStart:
		stores.cooking = stores.cooking.CookingStarted()
		return true
	case protocol.CookingModeComplete:
		d.logger.Info("agent reported cooking complete")
		return false
	case protocol.StepUpdate:
		next, ok := stores.cooking.RemoteStep(m.StepIndex)
		if !ok {
			d.logger.Debug("ignoring step_update outside plan", "step_index", m.StepIndex)
			return false
		}
		stores.cooking = next
		return true
	case protocol.Unknown:
		d.logger.Debug("ignoring unknown data packet", "type", m.Type, "action", m.Action)
		return false
	default:
		typ, action := protocol.Describe(msg)
		d.logger.Debug("unhandled data packet", "type", typ, "action", action)
		return false
	}
}
