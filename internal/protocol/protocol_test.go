package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTimerStart(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"timer","action":"start","minutes":5,"seconds":300,"label":"pasta","id":"timer-1"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	start, ok := msg.(TimerStart)
	if !ok {
		t.Fatalf("decoded type = %T, want TimerStart", msg)
	}
	if start.ID != "timer-1" || start.Label != "pasta" || start.Seconds != 300 {
		t.Fatalf("unexpected timer: %+v", start)
	}
}

func TestDecodeTimerStartFallsBackToMinutes(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"timer","action":"start","minutes":2,"id":"t"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := msg.(TimerStart).Seconds; got != 120 {
		t.Fatalf("expected 120 seconds, got %d", got)
	}
}

func TestDecodeVariants(t *testing.T) {
	t.Parallel()

	cases := map[string]Message{
		`{"type":"timer","action":"clear_all"}`:             TimerClearAll{},
		`{"type":"shopping_list","action":"clear"}`:         ShoppingListClear{},
		`{"type":"recipe_plan_status","action":"started"}`:  RecipePlanStarted{},
		`{"type":"cooking_mode","action":"start"}`:          CookingModeStart{},
		`{"type":"cooking_mode","action":"complete"}`:       CookingModeComplete{},
		`{"type":"step_update","step_index":2}`:             StepUpdate{StepIndex: 2},
		`{"type":"weather","action":"sunny"}`:               Unknown{Type: "weather", Action: "sunny"},
		`{"type":"timer","action":"pause"}`:                 Unknown{Type: "timer", Action: "pause"},
		`{"type":"recipe_plan_status","action":"finished"}`: Unknown{Type: "recipe_plan_status", Action: "finished"},
	}

	for raw, want := range cases {
		raw := raw
		want := want
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(raw))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got != want {
				t.Fatalf("decoded %#v, want %#v", got, want)
			}
		})
	}
}

func TestDecodeShoppingListUpdate(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"shopping_list","action":"update","items":[
		{"id":"item-1","name":"eggs","category":"Dairy","emoji":"🥚","quantity":12},
		{"id":"item-2","name":"flour","category":"Pantry","emoji":"🌾","quantity":-3,"estimated_price":2.5}
	]}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	update, ok := msg.(ShoppingListUpdate)
	if !ok {
		t.Fatalf("decoded type = %T", msg)
	}
	if len(update.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(update.Items))
	}
	if update.Items[0].Quantity != 12 || update.Items[0].Category != "Dairy" {
		t.Fatalf("unexpected first item: %+v", update.Items[0])
	}
	if update.Items[1].Quantity != 0 {
		t.Fatalf("expected negative quantity clamped to 0, got %d", update.Items[1].Quantity)
	}
	if update.Items[1].EstimatedPrice == nil || *update.Items[1].EstimatedPrice != 2.5 {
		t.Fatalf("expected estimated price")
	}
}

func TestDecodeShoppingListUpdateWithoutItems(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"shopping_list","action":"update"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	update := msg.(ShoppingListUpdate)
	if update.Items == nil || len(update.Items) != 0 {
		t.Fatalf("expected empty non-nil item list, got %#v", update.Items)
	}
}

func TestDecodeRecipePlan(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type":"recipe_plan","plan":{
		"id":"plan-1","name":"Eggs Benedict","servings":"2 servings",
		"ingredients":[{"name":"eggs","quantity":"4","emoji":"🥚"}],
		"steps":[
			{"step_number":1,"instruction":"Poach eggs","duration_minutes":4},
			{"step_number":2,"instruction":"Toast muffins","tips":"watch closely"}
		],
		"current_step_index":0
	}}`)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ready, ok := msg.(RecipePlanReady)
	if !ok {
		t.Fatalf("decoded type = %T", msg)
	}
	plan := ready.Plan
	if plan.Title != "Eggs Benedict" {
		t.Fatalf("expected title to fall back to name, got %q", plan.Title)
	}
	if len(plan.Steps) != 2 || plan.Steps[1].Tips != "watch closely" {
		t.Fatalf("unexpected steps: %+v", plan.Steps)
	}
	if plan.TotalMinutes() != 4 {
		t.Fatalf("expected 4 total minutes, got %d", plan.TotalMinutes())
	}
	if len(plan.Ingredients) != 1 || plan.Ingredients[0].Quantity != "4" {
		t.Fatalf("unexpected ingredients: %+v", plan.Ingredients)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"type":"timer","action":"sta`,
		`not json at all`,
		`[]`,
		`{"action":"start"}`,
		`{"type":"step_update"}`,
		`{"type":"step_update","step_index":"two"}`,
		`{"type":"recipe_plan"}`,
		`{"type":"shopping_list","action":"update","items":"eggs"}`,
	}
	for _, raw := range cases {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			msg, err := Decode([]byte(raw))
			if err == nil {
				t.Fatalf("expected error, decoded %#v", msg)
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) || decErr.Code != "bad_request" {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	typ, action := Describe(ShoppingListUpdate{})
	if typ != TypeShoppingList || action != "update" {
		t.Fatalf("unexpected describe: %s/%s", typ, action)
	}
	typ, action = Describe(Unknown{Type: "x", Action: "y"})
	if typ != "x" || action != "y" {
		t.Fatalf("unexpected unknown describe: %s/%s", typ, action)
	}
}

func TestEncodeStepChange(t *testing.T) {
	t.Parallel()

	data, err := EncodeStepChange(StepNext, 3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["type"] != "ui_step_change" || decoded["action"] != "next" || decoded["step_index"] != float64(3) {
		t.Fatalf("unexpected packet: %s", data)
	}
}

func TestEncodeRPCPayload(t *testing.T) {
	t.Parallel()

	empty, err := EncodeRPCPayload(nil)
	if err != nil || empty != "{}" {
		t.Fatalf("unexpected empty payload: %q %v", empty, err)
	}
	reload, err := EncodeRPCPayload(ReloadPayload{Filename: "book.pdf"})
	if err != nil || reload != `{"filename":"book.pdf"}` {
		t.Fatalf("unexpected reload payload: %q %v", reload, err)
	}
}
