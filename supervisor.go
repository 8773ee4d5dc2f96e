package olakai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olakai-ai/olakai-sdk-go/internal/apitypes"
	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
	"github.com/olakai-ai/olakai-sdk-go/internal/sanitize"
)

const (
	defaultEmail    = "anonymous@olakai.ai"
	defaultChatID   = "anonymous"
	blockedMessage  = "Function execution blocked by Olakai"
)

// Supervise wraps fn with pre-call gating, execution, and post-call
// monitoring. ctx governs only the synchronous control-gate call; it is not
// passed through to fn, and monitoring sends run without it.
//
// Go has no cooperative/preemptive scheduler distinction to dispatch on, so
// Supervise and SuperviseSync share one implementation: both block the
// caller for the control decision, and both dispatch post-call monitoring
// to the client's background worker pool so the caller never pays
// monitoring latency.
func Supervise[A, R any](c *Client, fn func(A) (R, error), opts MonitorOptions) func(context.Context, A) (R, error) {
	return func(ctx context.Context, args A) (R, error) {
		var zero R
		result, err := c.supervise(ctx, args, func(a any) (any, error) {
			typed, _ := a.(A)
			return fn(typed)
		}, opts)
		if err != nil {
			return zero, err
		}
		r, _ := result.(R)
		return r, nil
	}
}

// SuperviseSync is identical to Supervise. It exists as a separate named
// entry point purely so call sites can declare "this caller is a plain
// blocking thread", even though Go's goroutines make the distinction moot
// at the implementation level.
func SuperviseSync[A, R any](c *Client, fn func(A) (R, error), opts MonitorOptions) func(context.Context, A) (R, error) {
	return Supervise(c, fn, opts)
}

// supervise is the untyped core of Supervise/SuperviseSync: gating,
// middleware, capture, sanitize, and background dispatch, independent of
// fn's concrete argument/result types.
func (c *Client) supervise(ctx context.Context, args any, invoke func(args any) (any, error), opts MonitorOptions) (any, error) {
	email := opts.Email.Resolve(defaultEmail)
	chatID := opts.ChatID.Resolve(defaultChatID)
	prompt := encodeCapture(args)

	allowed, details := c.gate(ctx, apitypes.ControlPayload{
		Email:                   email,
		ChatID:                  chatID,
		Prompt:                  prompt,
		Task:                    opts.Task,
		SubTask:                 opts.SubTask,
		OverrideControlCriteria: opts.OverrideControlCriteria,
	})
	if !allowed {
		c.dispatchMonitor(apitypes.MonitorPayload{
			Email:       email,
			ChatID:      chatID,
			Prompt:      prompt,
			Response:    blockedMessage,
			Blocked:     true,
			Sensitivity: details.DetectedSensitivity,
		}, apitypes.PriorityHigh)
		return nil, &BlockedError{Message: blockedMessage, Details: details}
	}

	finalArgs := args
	for _, m := range c.middlewareSnapshot() {
		if m.BeforeCall == nil {
			continue
		}
		replaced, err := m.BeforeCall(finalArgs)
		if err != nil {
			c.logger.Debug("middleware beforeCall failed", logging.Str("middleware", m.Name), logging.Err(err))
			break
		}
		finalArgs = replaced
	}

	start := time.Now()
	result, fnErr := invoke(finalArgs)
	elapsedMs := time.Since(start).Milliseconds()

	if fnErr != nil {
		c.runOnError(fnErr, finalArgs)
		if opts.sendOnFunctionError() {
			msg := fnErr.Error()
			c.dispatchMonitor(apitypes.MonitorPayload{
				Email:        email,
				ChatID:       chatID,
				Prompt:       "",
				Response:     "",
				RequestTime:  elapsedMs,
				ErrorMessage: &msg,
				Task:         opts.Task,
				SubTask:      opts.SubTask,
			}, apitypes.PriorityHigh)
		}
		return nil, fnErr
	}

	finalResult := result
	for _, m := range c.middlewareSnapshot() {
		if m.AfterCall == nil {
			continue
		}
		replaced, err := m.AfterCall(finalResult, finalArgs)
		if err != nil {
			c.logger.Debug("middleware afterCall failed", logging.Str("middleware", m.Name), logging.Err(err))
			continue
		}
		finalResult = replaced
	}

	capture := opts.Capture
	if capture == nil {
		capture = defaultCapture
	}
	input, output := capture(finalArgs, finalResult)

	if opts.Sanitize {
		input = sanitize.Value(input, c.sanitizePatterns, func(err error) {
			c.logger.Debug("sanitization of input failed", logging.Err(err))
		})
		output = sanitize.Value(output, c.sanitizePatterns, func(err error) {
			c.logger.Debug("sanitization of output failed", logging.Err(err))
		})
	}

	priority := opts.Priority
	if priority == "" {
		priority = apitypes.PriorityNormal
	}
	c.dispatchMonitor(apitypes.MonitorPayload{
		Email:       email,
		ChatID:      chatID,
		Prompt:      input,
		Response:    output,
		RequestTime: elapsedMs,
		Task:        opts.Task,
		SubTask:     opts.SubTask,
	}, priority)

	return finalResult, nil
}

// gate performs the pre-call control decision. A transport-level failure
// is resolved per Config.FailOpenOnControlError: fail-open (the default)
// logs and proceeds as allowed; fail-closed treats the call as denied
// with no sensitivity details.
func (c *Client) gate(ctx context.Context, payload apitypes.ControlPayload) (bool, apitypes.ControlDetails) {
	resp, err := c.transport.SendControl(ctx, payload)
	if err != nil {
		c.logger.Debug("control call failed", logging.Err(&ControlServiceError{Cause: err}))
		if c.cfg.FailOpenOnControlError {
			return true, apitypes.ControlDetails{}
		}
		return false, apitypes.ControlDetails{}
	}
	return resp.Allowed, resp.Details
}

// runOnError applies registered OnError middleware hooks, recovering any
// panic so a misbehaving hook can't crash the supervised call. A middleware
// error is logged at debug and the call proceeds regardless.
func (c *Client) runOnError(fnErr error, args any) {
	for _, m := range c.middlewareSnapshot() {
		if m.OnError == nil {
			continue
		}
		func(m Middleware) {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Debug("middleware onError panicked", logging.Str("middleware", m.Name))
				}
			}()
			m.OnError(fnErr, args)
		}(m)
	}
}

// dispatchMonitor hands payload off to the background worker pool, so
// neither the queue's Enqueue nor a direct one-shot send ever sits on the
// supervised call's critical path.
func (c *Client) dispatchMonitor(payload apitypes.MonitorPayload, priority apitypes.Priority) {
	c.pool.Submit(func() {
		if c.cfg.BatchingEnabled {
			c.queue.Enqueue(payload, 0, priority)
			return
		}
		if _, err := c.transport.SendMonitoring(context.Background(), []apitypes.MonitorPayload{payload}); err != nil {
			c.logger.Debug("direct monitoring send failed", logging.Err(err))
		}
	})
}

// defaultCapture is the default (input, output) extraction: the argument
// value JSON round-tripped (falling back to a Go-syntax dump on marshal
// failure), paired with the raw result.
func defaultCapture(args any, result any) (any, any) {
	return encodeCapture(args), result
}

func encodeCapture(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	var tree any
	if err := json.Unmarshal(b, &tree); err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return tree
}
