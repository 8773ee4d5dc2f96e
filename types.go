package olakai

import "github.com/olakai-ai/olakai-sdk-go/internal/apitypes"

// Priority governs drain order within the batch queue; High also forces an
// immediate drain on enqueue.
type Priority = apitypes.Priority

const (
	PriorityLow    = apitypes.PriorityLow
	PriorityNormal = apitypes.PriorityNormal
	PriorityHigh   = apitypes.PriorityHigh
)

// MonitorPayload is one observation of a wrapped function call.
type MonitorPayload = apitypes.MonitorPayload

// ControlPayload is the pre-call gating request.
type ControlPayload = apitypes.ControlPayload

// ControlDetails carries the server's sensitivity/persona assessment.
type ControlDetails = apitypes.ControlDetails

// ControlResponse is the gating decision.
type ControlResponse = apitypes.ControlResponse

// MonitoringResult is one index-aligned entry of a MonitoringResponse.
type MonitoringResult = apitypes.MonitoringResult

// MonitoringResponse is the server's reply to a batch monitoring POST.
type MonitoringResponse = apitypes.MonitoringResponse

// BatchRequest is one unit of the persisted/in-memory queue.
type BatchRequest = apitypes.BatchRequest

// CaptureFunc extracts the (input, output) pair to record for a successful
// call. args is whatever the caller passed to the enclosing Supervise call
// (typically the wrapped function's argument struct); result is the wrapped
// function's return value.
type CaptureFunc func(args any, result any) (input any, output any)

// StringOrFunc models a field that's either a constant string or a thunk
// producing one (an email or chat ID, for instance). The zero value
// resolves to the fallback passed to Resolve.
type StringOrFunc struct {
	Value string
	Func  func() (string, error)
}

// Resolve returns the static value, or invokes Func and falls back to
// fallback if Func errors or returns an empty string.
func (s StringOrFunc) Resolve(fallback string) string {
	if s.Func != nil {
		v, err := s.Func()
		if err != nil || v == "" {
			return fallback
		}
		return v
	}
	if s.Value == "" {
		return fallback
	}
	return s.Value
}

// MonitorOptions configures one Supervise call.
type MonitorOptions struct {
	// Capture extracts (input, output) for the monitoring payload. If nil,
	// defaultCapture is used.
	Capture CaptureFunc
	// Sanitize enables pattern-based redaction of the captured input/output.
	Sanitize bool
	// SendOnFunctionError controls whether a MonitorPayload is emitted when
	// the wrapped function itself errors. Defaults to true.
	SendOnFunctionError *bool
	// Priority is used when enqueuing the success/error MonitorPayload.
	Priority Priority
	Email    StringOrFunc
	ChatID   StringOrFunc
	Task     *string
	SubTask  *string
	// OverrideControlCriteria is threaded into the ControlPayload sent to
	// the control endpoint for gating.
	OverrideControlCriteria []string
}

func (o MonitorOptions) sendOnFunctionError() bool {
	if o.SendOnFunctionError == nil {
		return true
	}
	return *o.SendOnFunctionError
}

// Middleware is an ordered hook applied around every supervised call. All
// three stages are optional.
type Middleware struct {
	Name string
	// BeforeCall may replace args prior to invoking the wrapped function. A
	// returned error aborts only the pre-pass: the last successful
	// transform is used, and the call still proceeds.
	BeforeCall func(args any) (any, error)
	// AfterCall may replace result after the wrapped function returns
	// successfully.
	AfterCall func(result any, args any) (any, error)
	// OnError observes (but cannot suppress) a wrapped function's error.
	OnError func(err error, args any)
}

// SanitizePattern is one ordered redaction rule. Exactly one of
// Regex or Key should be set: Regex patterns match against the stringified
// value; Key patterns match only the payload field name currently being
// sanitized.
type SanitizePattern struct {
	Regex       string
	Key         string
	Replacement string
}
