// Package protocol defines the data-channel envelopes exchanged with the
// cooking agent and the remote procedures the client may invoke.
//
// Inbound packets are JSON objects carrying a "type" discriminator and, for
// most types, an "action". Decode turns a packet into exactly one variant of
// the Message sum type; packets the client does not understand decode to
// Unknown rather than failing, so the caller can ignore them explicitly.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"souschef/internal/domain"
)

// Inbound envelope types.
const (
	TypeTimer            = "timer"
	TypeShoppingList     = "shopping_list"
	TypeRecipePlan       = "recipe_plan"
	TypeRecipePlanStatus = "recipe_plan_status"
	TypeCookingMode      = "cooking_mode"
	TypeStepUpdate       = "step_update"
)

// Outbound envelope types.
const (
	TypeUIStepChange = "ui_step_change"
)

// Remote procedures exposed by the agent.
const (
	MethodReloadCookbook      = "reload_cookbook"
	MethodClearCookbook       = "clear_cookbook"
	MethodClearCookbookSilent = "clear_cookbook_silent"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Message is an inbound envelope. The set of implementations is closed.
type Message interface {
	envelope() (typ string, action string)
}

type TimerStart struct {
	ID      string
	Label   string
	Seconds int
}

type TimerClearAll struct{}

type ShoppingListUpdate struct {
	Items []domain.ShoppingItem
}

type ShoppingListClear struct{}

type RecipePlanReady struct {
	Plan domain.RecipePlan
}

type RecipePlanStarted struct{}

type CookingModeStart struct{}

type CookingModeComplete struct{}

type StepUpdate struct {
	StepIndex int
}

// Unknown is any well-formed envelope whose type/action pair is not recognized.
type Unknown struct {
	Type   string
	Action string
}

func (TimerStart) envelope() (string, string)          { return TypeTimer, "start" }
func (TimerClearAll) envelope() (string, string)       { return TypeTimer, "clear_all" }
func (ShoppingListUpdate) envelope() (string, string)  { return TypeShoppingList, "update" }
func (ShoppingListClear) envelope() (string, string)   { return TypeShoppingList, "clear" }
func (RecipePlanReady) envelope() (string, string)     { return TypeRecipePlan, "" }
func (RecipePlanStarted) envelope() (string, string)   { return TypeRecipePlanStatus, "started" }
func (CookingModeStart) envelope() (string, string)    { return TypeCookingMode, "start" }
func (CookingModeComplete) envelope() (string, string) { return TypeCookingMode, "complete" }
func (StepUpdate) envelope() (string, string)          { return TypeStepUpdate, "" }
func (u Unknown) envelope() (string, string)           { return u.Type, u.Action }

// Describe returns the wire type and action of a decoded message.
func Describe(msg Message) (typ string, action string) {
	if msg == nil {
		return "", ""
	}
	return msg.envelope()
}

type wireTimer struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Seconds *float64 `json:"seconds"`
	Minutes *float64 `json:"minutes"`
}

type wireShoppingItem struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Emoji          string   `json:"emoji"`
	Quantity       float64  `json:"quantity"`
	EstimatedPrice *float64 `json:"estimated_price,omitempty"`
}

type wireShoppingList struct {
	Items []wireShoppingItem `json:"items"`
}

type wireIngredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Emoji    string `json:"emoji"`
}

type wireStep struct {
	StepNumber      int    `json:"step_number"`
	Instruction     string `json:"instruction"`
	Duration        string `json:"duration,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Tips            string `json:"tips,omitempty"`
}

type wirePlan struct {
	ID               string           `json:"id"`
	Title            string           `json:"title,omitempty"`
	Name             string           `json:"name,omitempty"`
	Servings         string           `json:"servings,omitempty"`
	PrepTime         string           `json:"prep_time,omitempty"`
	CookTime         string           `json:"cook_time,omitempty"`
	Ingredients      []wireIngredient `json:"ingredients"`
	Steps            []wireStep       `json:"steps"`
	CurrentStepIndex int              `json:"current_step_index"`
}

type wireRecipePlan struct {
	Plan *wirePlan `json:"plan"`
}

type wireStepUpdate struct {
	StepIndex *int `json:"step_index"`
}

// Decode parses one inbound data packet.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type   string `json:"type"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json payload", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}
	action := strings.TrimSpace(envelope.Action)

	switch typ {
	case TypeTimer:
		switch action {
		case "start":
			var msg wireTimer
			if err := json.Unmarshal(data, &msg); err != nil {
				return nil, badRequest("invalid timer", "")
			}
			return TimerStart{
				ID:      strings.TrimSpace(msg.ID),
				Label:   msg.Label,
				Seconds: timerSeconds(msg),
			}, nil
		case "clear_all":
			return TimerClearAll{}, nil
		}
	case TypeShoppingList:
		switch action {
		case "update":
			var msg wireShoppingList
			if err := json.Unmarshal(data, &msg); err != nil {
				return nil, badRequest("invalid shopping_list", "items")
			}
			return ShoppingListUpdate{Items: shoppingItems(msg.Items)}, nil
		case "clear":
			return ShoppingListClear{}, nil
		}
	case TypeRecipePlan:
		var msg wireRecipePlan
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid recipe_plan", "plan")
		}
		if msg.Plan == nil {
			return nil, badRequest("recipe_plan.plan is required", "plan")
		}
		return RecipePlanReady{Plan: recipePlan(*msg.Plan)}, nil
	case TypeRecipePlanStatus:
		if action == "started" {
			return RecipePlanStarted{}, nil
		}
	case TypeCookingMode:
		switch action {
		case "start":
			return CookingModeStart{}, nil
		case "complete":
			return CookingModeComplete{}, nil
		}
	case TypeStepUpdate:
		var msg wireStepUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid step_update", "step_index")
		}
		if msg.StepIndex == nil {
			return nil, badRequest("step_update.step_index is required", "step_index")
		}
		return StepUpdate{StepIndex: *msg.StepIndex}, nil
	}
	return Unknown{Type: typ, Action: action}, nil
}

func timerSeconds(msg wireTimer) int {
	var seconds float64
	switch {
	case msg.Seconds != nil:
		seconds = *msg.Seconds
	case msg.Minutes != nil:
		seconds = *msg.Minutes * 60
	}
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int(math.Round(seconds))
}

func shoppingItems(in []wireShoppingItem) []domain.ShoppingItem {
	out := make([]domain.ShoppingItem, 0, len(in))
	for _, item := range in {
		quantity := int(math.Round(item.Quantity))
		if quantity < 0 {
			quantity = 0
		}
		out = append(out, domain.ShoppingItem{
			ID:             item.ID,
			Name:           item.Name,
			Category:       item.Category,
			Emoji:          item.Emoji,
			Quantity:       quantity,
			EstimatedPrice: item.EstimatedPrice,
		})
	}
	return out
}

func recipePlan(in wirePlan) domain.RecipePlan {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSpace(in.Name)
	}
	plan := domain.RecipePlan{
		ID:               in.ID,
		Title:            title,
		Servings:         in.Servings,
		PrepTime:         in.PrepTime,
		CookTime:         in.CookTime,
		Ingredients:      make([]domain.Ingredient, 0, len(in.Ingredients)),
		Steps:            make([]domain.RecipeStep, 0, len(in.Steps)),
		CurrentStepIndex: in.CurrentStepIndex,
	}
	for _, ing := range in.Ingredients {
		plan.Ingredients = append(plan.Ingredients, domain.Ingredient{Name: ing.Name, Quantity: ing.Quantity, Emoji: ing.Emoji})
	}
	for _, step := range in.Steps {
		plan.Steps = append(plan.Steps, domain.RecipeStep{
			StepNumber:      step.StepNumber,
			Instruction:     step.Instruction,
			Duration:        step.Duration,
			DurationMinutes: step.DurationMinutes,
			Tips:            step.Tips,
		})
	}
	return plan
}

// StepDirection is the user navigation action reported to the agent.
type StepDirection string

const (
	StepNext     StepDirection = "next"
	StepPrevious StepDirection = "previous"
)

// UIStepChange informs the agent of a user-driven step change.
type UIStepChange struct {
	Type      string        `json:"type"`
	Action    StepDirection `json:"action"`
	StepIndex int           `json:"step_index"`
}

// EncodeStepChange builds the outbound ui_step_change packet.
func EncodeStepChange(direction StepDirection, index int) ([]byte, error) {
	return json.Marshal(UIStepChange{Type: TypeUIStepChange, Action: direction, StepIndex: index})
}

// ReloadPayload is the argument of reload_cookbook.
type ReloadPayload struct {
	Filename string `json:"filename"`
}

// EncodeRPCPayload marshals an RPC argument; nil becomes an empty object.
func EncodeRPCPayload(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal rpc payload: %w", err)
	}
	return string(data), nil
}
