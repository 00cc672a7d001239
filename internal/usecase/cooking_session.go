package usecase

import (
	"errors"

	"souschef/internal/domain"
	"souschef/internal/protocol"
)

var (
	ErrNoPlan         = errors.New("no recipe plan")
	ErrStepOutOfRange = errors.New("step index out of range")
)

// cookingState is the recipe/cooking reducer state. Transitions are pure:
// each returns a new value and never touches the transport.
//
// The step pointer has two writers. Local moves are speculative and are
// reported to the agent; remote step_update writes are authoritative and
// always replace whatever the pointer holds. There is no arbitration beyond
// last write wins.
type cookingState struct {
	plan        *domain.RecipePlan
	generating  bool
	cookingMode bool
	lastWriter  domain.StepWriter
}

// stepMove is the outbound notice produced by a local navigation.
type stepMove struct {
	Direction protocol.StepDirection
	Index     int
}

func (s cookingState) Phase() domain.CookingPhase {
	switch {
	case s.plan != nil && s.cookingMode:
		return domain.CookingPhaseActive
	case s.generating:
		return domain.CookingPhaseGenerating
	case s.plan != nil:
		return domain.CookingPhaseReady
	default:
		return domain.CookingPhaseNoPlan
	}
}

// PlanStarted marks a plan as being generated.
func (s cookingState) PlanStarted() cookingState {
	s.generating = true
	return s
}

// PlanReady replaces the plan wholesale. Replacing an existing plan leaves
// cooking mode; a first plan keeps a cooking start that arrived early.
func (s cookingState) PlanReady(plan domain.RecipePlan) cookingState {
	if plan.CurrentStepIndex < 0 || plan.CurrentStepIndex >= len(plan.Steps) {
		plan.CurrentStepIndex = 0
	}
	if s.plan != nil {
		s.cookingMode = false
	}
	s.plan = &plan
	s.generating = false
	s.lastWriter = domain.StepWriterNone
	return s
}

// CookingStarted enters cooking mode.
func (s cookingState) CookingStarted() cookingState {
	s.cookingMode = true
	s.generating = false
	return s
}

// Finished leaves cooking mode at the user's request. The plan is kept.
func (s cookingState) Finished() cookingState {
	s.cookingMode = false
	return s
}

// LocalStep moves the pointer one step optimistically.
func (s cookingState) LocalStep(direction protocol.StepDirection) (cookingState, stepMove, error) {
	if s.plan == nil {
		return s, stepMove{}, ErrNoPlan
	}
	next := s.plan.CurrentStepIndex
	switch direction {
	case protocol.StepNext:
		next++
	case protocol.StepPrevious:
		next--
	default:
		return s, stepMove{}, errors.New("unknown step direction")
	}
	if next < 0 || next >= len(s.plan.Steps) {
		return s, stepMove{}, ErrStepOutOfRange
	}
	s = s.withIndex(next, domain.StepWriterLocal)
	return s, stepMove{Direction: direction, Index: next}, nil
}

// RemoteStep applies an authoritative step_update. Indices outside the plan
// are ignored and the prior index is retained.
func (s cookingState) RemoteStep(index int) (cookingState, bool) {
	if s.plan == nil || index < 0 || index >= len(s.plan.Steps) {
		return s, false
	}
	return s.withIndex(index, domain.StepWriterRemote), true
}

func (s cookingState) withIndex(index int, writer domain.StepWriter) cookingState {
	plan := *s.plan
	plan.CurrentStepIndex = index
	s.plan = &plan
	s.lastWriter = writer
	return s
}

func (s cookingState) View() domain.CookingView {
	view := domain.CookingView{
		Phase:          s.Phase(),
		Generating:     s.generating,
		CookingMode:    s.cookingMode,
		LastStepWriter: s.lastWriter,
	}
	if s.plan != nil {
		plan := *s.plan
		view.Plan = &plan
	}
	return view
}
