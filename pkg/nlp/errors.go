package nlp

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimit matches any reply throttled by the provider.
	ErrRateLimit = errors.New("vision model rate limited")

	// ErrInvalidModel indicates an invalid model was specified
	ErrInvalidModel = errors.New("invalid model specified")

	// ErrRefused matches a model that declined to describe a frame.
	ErrRefused = errors.New("model refused to describe the frame")

	// ErrEmptyReply matches a reply with nothing to decode.
	ErrEmptyReply = errors.New("model returned no description")
)

// RateLimitError carries the provider's explanation for a 429.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Provider, ErrRateLimit)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, ErrRateLimit, e.Message)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimit }

// RefusalError holds the refusal text the model sent instead of a
// description.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return "model refused: " + e.Reason
}

func (e *RefusalError) Unwrap() error { return ErrRefused }

// EmptyResponseError reports a reply that had no choices or only whitespace.
type EmptyResponseError struct {
	Provider  string
	NoChoices bool
}

func (e *EmptyResponseError) Error() string {
	if e.NoChoices {
		return e.Provider + " returned no choices"
	}
	return e.Provider + " returned blank content"
}

func (e *EmptyResponseError) Unwrap() error { return ErrEmptyReply }
