package usecase

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"souschef/internal/domain"
)

func newTestStores() *sessionStores {
	return &sessionStores{
		transcript: newTranscriptReconciler(nil, nil),
		timers:     newTimerRegistry(),
		shopping:   newShoppingList(),
	}
}

func newTestDispatcher(now time.Time) (eventDispatcher, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return newEventDispatcher(logger, fixedClock(now)), &buf
}

func TestDispatcherRoutesTimers(t *testing.T) {
	t.Parallel()

	now := time.Unix(500, 0)
	d, _ := newTestDispatcher(now)
	stores := newTestStores()

	if !d.Dispatch(stores, []byte(`{"type":"timer","action":"start","id":"t1","label":"Rice","seconds":90}`)) {
		t.Fatalf("expected timer start to change state")
	}
	timers := stores.timers.Snapshot(now)
	if len(timers) != 1 || timers[0].ID != "t1" || timers[0].RemainingSeconds != 90 {
		t.Fatalf("unexpected timers: %+v", timers)
	}

	if !d.Dispatch(stores, []byte(`{"type":"timer","action":"clear_all"}`)) {
		t.Fatalf("expected clear_all to change state")
	}
	if stores.timers.Len() != 0 {
		t.Fatalf("expected timers cleared")
	}
}

func TestDispatcherShoppingListFullReplace(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(time.Now())
	stores := newTestStores()

	d.Dispatch(stores, []byte(`{"type":"shopping_list","action":"update","items":[{"id":"a","name":"Flour","quantity":1},{"id":"b","name":"Sugar","quantity":2}]}`))
	d.Dispatch(stores, []byte(`{"type":"shopping_list","action":"update","items":[{"id":"c","name":"Butter","quantity":1}]}`))

	items := stores.shopping.Items()
	if len(items) != 1 || items[0].ID != "c" {
		t.Fatalf("expected exactly the second list, got %+v", items)
	}

	d.Dispatch(stores, []byte(`{"type":"shopping_list","action":"clear"}`))
	if len(stores.shopping.Items()) != 0 {
		t.Fatalf("expected empty list after clear")
	}
}

func TestDispatcherCookingScenario(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(time.Now())
	stores := newTestStores()

	d.Dispatch(stores, []byte(`{"type":"recipe_plan_status","action":"started"}`))
	if got := stores.cooking.Phase(); got != domain.CookingPhaseGenerating {
		t.Fatalf("expected plan_generating, got %s", got)
	}

	d.Dispatch(stores, []byte(`{"type":"recipe_plan","plan":{"id":"p","title":"Soup","steps":[{"step_number":1,"instruction":"a"},{"step_number":2,"instruction":"b"},{"step_number":3,"instruction":"c"}]}}`))
	if got := stores.cooking.Phase(); got != domain.CookingPhaseReady {
		t.Fatalf("expected plan_ready, got %s", got)
	}
	if stores.cooking.plan.CurrentStepIndex != 0 {
		t.Fatalf("expected index 0, got %d", stores.cooking.plan.CurrentStepIndex)
	}

	d.Dispatch(stores, []byte(`{"type":"cooking_mode","action":"start"}`))
	if got := stores.cooking.Phase(); got != domain.CookingPhaseActive {
		t.Fatalf("expected cooking_active, got %s", got)
	}

	if d.Dispatch(stores, []byte(`{"type":"cooking_mode","action":"complete"}`)) {
		t.Fatalf("expected complete to leave state unchanged")
	}

	d.Dispatch(stores, []byte(`{"type":"step_update","step_index":2}`))
	if stores.cooking.plan.CurrentStepIndex != 2 {
		t.Fatalf("expected step 2, got %d", stores.cooking.plan.CurrentStepIndex)
	}
	if d.Dispatch(stores, []byte(`{"type":"step_update","step_index":5}`)) {
		t.Fatalf("expected out of range step_update to be ignored")
	}
	if stores.cooking.plan.CurrentStepIndex != 2 {
		t.Fatalf("expected prior index retained, got %d", stores.cooking.plan.CurrentStepIndex)
	}
}

func TestDispatcherMalformedPayloadChangesNothing(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	d, logs := newTestDispatcher(now)
	stores := newTestStores()
	d.Dispatch(stores, []byte(`{"type":"timer","action":"start","id":"keep","seconds":30}`))
	d.Dispatch(stores, []byte(`{"type":"shopping_list","action":"update","items":[{"id":"keep"}]}`))
	before := stores.cooking

	payloads := []string{
		`{"type":"timer","action":"sta`,
		`not json`,
		``,
		`[]`,
		`{"action":"start"}`,
		`{"type":"recipe_plan"}`,
		`{"type":"step_update"}`,
		`{"type":"mystery","action":"boom"}`,
		`{"type":"timer","action":"pause"}`,
	}
	for _, payload := range payloads {
		if d.Dispatch(stores, []byte(payload)) {
			t.Fatalf("expected no change for %q", payload)
		}
	}

	if stores.timers.Len() != 1 || len(stores.shopping.Items()) != 1 || stores.cooking != before {
		t.Fatalf("malformed payload mutated a store")
	}
	if !bytes.Contains(logs.Bytes(), []byte("dropping data packet")) {
		t.Fatalf("expected debug log for malformed packet")
	}
}
