// Package apitypes is the SDK's leaf data-model package: it has no
// dependency on transport, storage, queue, or the root package, so every
// other internal package — and the root package itself — can depend on it
// without cycles.
package apitypes

// Priority governs drain order within the batch queue; High also forces an
// immediate drain on enqueue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank implements the stable sort order used to drain the queue: high (0),
// normal (1), low (2). Anything else (the zero value included) is treated
// as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// MonitorPayload is one observation of a wrapped function call.
type MonitorPayload struct {
	Email        string   `json:"email"`
	ChatID       string   `json:"chatId"`
	Prompt       any      `json:"prompt"`
	Response     any      `json:"response"`
	Blocked      bool     `json:"blocked"`
	Tokens       int      `json:"tokens"`
	RequestTime  int64    `json:"requestTime"`
	Task         *string  `json:"task,omitempty"`
	SubTask      *string  `json:"subTask,omitempty"`
	ErrorMessage *string  `json:"errorMessage,omitempty"`
	Sensitivity  []string `json:"sensitivity,omitempty"`
}

// ControlPayload is the pre-call gating request.
type ControlPayload struct {
	Email                   string   `json:"email"`
	ChatID                  string   `json:"chatId"`
	Prompt                  any      `json:"prompt"`
	Task                    *string  `json:"task,omitempty"`
	SubTask                 *string  `json:"subTask,omitempty"`
	Tokens                  int      `json:"tokens"`
	OverrideControlCriteria []string `json:"overrideControlCriteria,omitempty"`
}

// ControlDetails carries the server's sensitivity/persona assessment.
type ControlDetails struct {
	DetectedSensitivity []string `json:"detectedSensitivity"`
	IsAllowedPersona    bool     `json:"isAllowedPersona"`
}

// ControlResponse is the gating decision.
type ControlResponse struct {
	Allowed bool           `json:"allowed"`
	Details ControlDetails `json:"details"`
	Message *string        `json:"message,omitempty"`
}

// MonitoringResult is one index-aligned entry of a MonitoringResponse.
type MonitoringResult struct {
	Index           int     `json:"index"`
	Success         bool    `json:"success"`
	PromptRequestID *string `json:"promptRequestId,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// MonitoringResponse is the server's reply to a batch monitoring POST. A
// nil/absent Results means every item in the batch should be treated as
// failed together.
type MonitoringResponse struct {
	Success       bool               `json:"success"`
	TotalRequests int                `json:"totalRequests"`
	SuccessCount  int                `json:"successCount"`
	FailureCount  int                `json:"failureCount"`
	Results       []MonitoringResult `json:"results"`
	Message       *string            `json:"message,omitempty"`
}

// BatchRequest is one unit of the persisted/in-memory queue. All
// payloads in a batch share a single retry counter, since the server's
// per-item results are only meaningful relative to one submitted batch.
type BatchRequest struct {
	ID        string           `json:"id"`
	Payload   []MonitorPayload `json:"payload"`
	Timestamp int64            `json:"timestamp"`
	Retries   int              `json:"retries"`
	Priority  Priority         `json:"priority"`
}
