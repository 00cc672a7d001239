package domain

import "time"

// ConnectionState models the room connection lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// AgentState is the remote agent's conversational state as reported by the transport.
type AgentState string

const (
	AgentStateIdle      AgentState = "idle"
	AgentStateListening AgentState = "listening"
	AgentStateThinking  AgentState = "thinking"
	AgentStateSpeaking  AgentState = "speaking"
)

// UploadState tracks the upload-to-ingestion workflow.
type UploadState string

const (
	UploadStateIdle       UploadState = "idle"
	UploadStateUploading  UploadState = "uploading"
	UploadStateProcessing UploadState = "processing"
	UploadStateClearing   UploadState = "clearing"
	UploadStateSucceeded  UploadState = "succeeded"
)

// ErrorCode identifies user-visible failures.
type ErrorCode string

const (
	ErrorCodeStartup ErrorCode = "startup"
	ErrorCodeConnect ErrorCode = "connect"
	ErrorCodeUpload  ErrorCode = "upload"
	ErrorCodeIngest  ErrorCode = "ingest"
	ErrorCodeClear   ErrorCode = "clear"
	ErrorCodePublish ErrorCode = "publish"
	ErrorCodeAudio   ErrorCode = "audio"
	ErrorCodeVideo   ErrorCode = "video"
)

// Speaker attributes a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one utterance in the session transcript.
type TranscriptEntry struct {
	ID         string    `json:"id"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Timer is a named countdown. Remaining is derived at sampling time.
type Timer struct {
	ID               string    `json:"id"`
	Label            string    `json:"label"`
	TotalSeconds     int       `json:"totalSeconds"`
	StartedAt        time.Time `json:"startedAt"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

// Done reports whether the countdown has reached zero.
func (t Timer) Done() bool {
	return t.RemainingSeconds <= 0
}

// ShoppingItem is one entry in the shopping list.
type ShoppingItem struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Emoji          string   `json:"emoji"`
	Quantity       int      `json:"quantity"`
	EstimatedPrice *float64 `json:"estimatedPrice,omitempty"`
}

// Ingredient is a recipe ingredient with a human-style quantity.
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Emoji    string `json:"emoji"`
}

// RecipeStep is one instruction in a recipe plan.
type RecipeStep struct {
	StepNumber      int    `json:"stepNumber"`
	Instruction     string `json:"instruction"`
	Duration        string `json:"duration,omitempty"`
	DurationMinutes *int   `json:"durationMinutes,omitempty"`
	Tips            string `json:"tips,omitempty"`
}

// RecipePlan is the step plan pushed by the agent.
type RecipePlan struct {
	ID               string       `json:"id"`
	Title            string       `json:"title,omitempty"`
	Servings         string       `json:"servings,omitempty"`
	PrepTime         string       `json:"prepTime,omitempty"`
	CookTime         string       `json:"cookTime,omitempty"`
	Ingredients      []Ingredient `json:"ingredients"`
	Steps            []RecipeStep `json:"steps"`
	CurrentStepIndex int          `json:"currentStepIndex"`
}

// TotalMinutes sums the known step durations.
func (p RecipePlan) TotalMinutes() int {
	total := 0
	for _, step := range p.Steps {
		if step.DurationMinutes != nil {
			total += *step.DurationMinutes
		}
	}
	return total
}

// CurrentStep returns the step under the pointer.
func (p RecipePlan) CurrentStep() (RecipeStep, bool) {
	if p.CurrentStepIndex < 0 || p.CurrentStepIndex >= len(p.Steps) {
		return RecipeStep{}, false
	}
	return p.Steps[p.CurrentStepIndex], true
}

// IsLastStep reports whether the pointer is on the final step.
func (p RecipePlan) IsLastStep() bool {
	return len(p.Steps) > 0 && p.CurrentStepIndex == len(p.Steps)-1
}

// CookingPhase is the derived recipe/cooking state.
type CookingPhase string

const (
	CookingPhaseNoPlan     CookingPhase = "no_plan"
	CookingPhaseGenerating CookingPhase = "plan_generating"
	CookingPhaseReady      CookingPhase = "plan_ready"
	CookingPhaseActive     CookingPhase = "cooking_active"
)

// StepWriter records who last moved the step pointer.
type StepWriter string

const (
	StepWriterNone   StepWriter = ""
	StepWriterLocal  StepWriter = "local"
	StepWriterRemote StepWriter = "remote"
)

// UploadResult is the ingestion endpoint's structured reply.
type UploadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Video is a how-to clip matched to a step instruction.
type Video struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// VideoResult carries a lookup outcome; Found=false is the "no video" fallback.
type VideoResult struct {
	Found       bool   `json:"found"`
	Instruction string `json:"instruction"`
	Video       Video  `json:"video"`
}

// UploadStatus summarizes the upload workflow for the UI.
type UploadStatus struct {
	State        UploadState `json:"state"`
	Error        string      `json:"error,omitempty"`
	FileCount    int         `json:"fileCount"`
	LastFilename string      `json:"lastFilename,omitempty"`
}

// CookingView is the recipe part of the session view.
type CookingView struct {
	Phase          CookingPhase `json:"phase"`
	Plan           *RecipePlan  `json:"plan,omitempty"`
	Generating     bool         `json:"generating"`
	CookingMode    bool         `json:"cookingMode"`
	LastStepWriter StepWriter   `json:"lastStepWriter,omitempty"`
}

// SessionView is the consolidated, read-only view model.
type SessionView struct {
	SessionID    string            `json:"sessionId,omitempty"`
	Connection   ConnectionState   `json:"connection"`
	Agent        AgentState        `json:"agent"`
	AgentActive  bool              `json:"agentActive"`
	Muted        bool              `json:"muted"`
	CallDuration time.Duration     `json:"callDuration"`
	Upload       UploadStatus      `json:"upload"`
	Transcript   []TranscriptEntry `json:"transcript"`
	CurrentLine  *TranscriptEntry  `json:"currentLine,omitempty"`
	PreviousLine *TranscriptEntry  `json:"previousLine,omitempty"`
	Timers       []Timer           `json:"timers"`
	ShoppingList []ShoppingItem    `json:"shoppingList"`
	Cooking      CookingView       `json:"cooking"`
}
