package providers

import (
	"net/http"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// errorClass buckets upstream failures into the few categories users see.
type errorClass string

const (
	errorClassInvalidRequest errorClass = "invalid-request"
	errorClassUnauthorized   errorClass = "unauthorized"
	errorClassRateLimited    errorClass = "rate-limited"
	errorClassServerError    errorClass = "server-error"
	errorClassUnknown        errorClass = "unknown"
)

// User-facing messages. Short, generic, and never leaking upstream bodies.
const (
	msgInvalidRequest = "Invalid request. Please try again."
	msgUnauthorized   = "Authentication with the model provider failed."
	msgRateLimited    = "Rate limit exceeded. Please try again later."
	msgServerError    = "The model provider is currently unavailable. Please try again later."
	msgUnknown        = "Something went wrong while generating a response. Please try again."

	msgContentFiltered = "The response was blocked by the provider's content filter."
	msgToolCalls       = "The model attempted an unsupported tool call."
)

func (c errorClass) userMessage() string {
	switch c {
	case errorClassInvalidRequest:
		return msgInvalidRequest
	case errorClassUnauthorized:
		return msgUnauthorized
	case errorClassRateLimited:
		return msgRateLimited
	case errorClassServerError:
		return msgServerError
	default:
		return msgUnknown
	}
}

func classifyStatusCode(status int) errorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return errorClassRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errorClassUnauthorized
	case status >= 500:
		return errorClassServerError
	case status >= 400:
		return errorClassInvalidRequest
	default:
		return errorClassUnknown
	}
}

// classifyOpenAIError maps go-openai transport/API errors onto an errorClass.
func classifyOpenAIError(err error) errorClass {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatusCode(apiErr.HTTPStatusCode)
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatusCode(reqErr.HTTPStatusCode)
	}
	return errorClassUnknown
}

// classifyGeminiError maps genai SDK errors onto an errorClass.
func classifyGeminiError(err error) errorClass {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatusCode(apiErr.Code)
	}
	return errorClassUnknown
}
