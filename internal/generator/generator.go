// Package generator wraps the external text-generation service behind a typed
// request/response contract.
//
// Every call carries a fixed system instruction (one per stage purpose) and a
// user prompt. Replies are returned as trimmed text; interpreting them is the
// caller's business.
package generator

import (
	"context"
	"errors"
	"fmt"
)

// Purpose identifies which stage a request comes from.
type Purpose string

const (
	// PurposeGoal is the goal-analysis request
	PurposeGoal Purpose = "goal"

	// PurposeStrategy is the strategy-generation request
	PurposeStrategy Purpose = "strategy"
)

// System instructions sent with each purpose.
const (
	GoalSystemPrompt     = "You are a production goal optimization assistant responsible for analyzing historical data and providing strategies."
	StrategySystemPrompt = "You are a production line strategy optimization assistant responsible for generating strategies based on data and historical analysis."
)

// ErrEmptyResponse is returned when the service answers without any content.
var ErrEmptyResponse = errors.New("no completion returned")

// Request is a single text-generation call.
type Request struct {
	Purpose Purpose
	System  string
	Prompt  string
}

// NewRequest builds a request with the system instruction for purpose.
func NewRequest(purpose Purpose, prompt string) Request {
	return Request{
		Purpose: purpose,
		System:  SystemPromptFor(purpose),
		Prompt:  prompt,
	}
}

// SystemPromptFor returns the fixed system instruction for purpose.
func SystemPromptFor(purpose Purpose) string {
	switch purpose {
	case PurposeGoal:
		return GoalSystemPrompt
	case PurposeStrategy:
		return StrategySystemPrompt
	default:
		return ""
	}
}

// Response is the service's reply.
type Response struct {
	Text  string
	Model string
}

// Generator is the text-generation service.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Unavailable returns a Generator that fails every call with err.
// Used when a provider cannot be constructed, so that the pipeline still runs
// and each stage degrades the way it would on a service error.
func Unavailable(err error) Generator {
	return Func(func(ctx context.Context, req Request) (*Response, error) {
		return nil, fmt.Errorf("generator unavailable: %w", err)
	})
}

// APIError is a non-success HTTP status returned by the service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying. Transport errors are
// retryable; API errors are retryable for 429 and 5xx; context cancellation
// never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	return true
}
