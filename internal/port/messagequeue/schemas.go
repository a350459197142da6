package messagequeue

// Envelope is the wire shape every published event shares. Payload is
// the event-type-specific body; the structs below describe the bodies
// the engine emits.
type Envelope struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	TurnID    string `json:"turn_id"`
	Type      string `json:"type"`
}

// TurnPayload is the body of workflow.turn_started events.
type TurnPayload struct {
	Intent string `json:"intent"`
	Steps  int    `json:"steps"`
}

// StepPayload is the body of workflow.step_* events.
type StepPayload struct {
	StepID          string `json:"step_id"`
	Tool            string `json:"tool"`
	Success         bool   `json:"success"`
	CreditsConsumed int64  `json:"credits_consumed"`
	Attempts        int    `json:"attempts"`
	Error           string `json:"error,omitempty"`
}

// SuspensionPayload is the body of workflow.suspended events.
type SuspensionPayload struct {
	StepID      string `json:"step_id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	ExpiresAt   string `json:"expires_at"`
}

// DecisionPayload is the body of workflow.resumed and
// workflow.cancelled events resolved through the confirmation gate.
type DecisionPayload struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// OutcomePayload is the body of workflow.completed and workflow.failed
// events.
type OutcomePayload struct {
	Steps           int    `json:"steps"`
	Succeeded       int    `json:"succeeded"`
	CreditsConsumed int64  `json:"credits_consumed"`
	Error           string `json:"error,omitempty"`
}

// CreditPayload is the body of credit.* events.
type CreditPayload struct {
	OperationID string `json:"operation_id"`
	StepID      string `json:"step_id"`
	Tool        string `json:"tool"`
	Estimated   int64  `json:"estimated"`
	Actual      int64  `json:"actual"`
	Status      string `json:"status"`
}
