package apierror

import "fmt"

// RenderOpenAI formats e the way the OpenAI Chat Completions and Responses
// APIs format errors: {"error":{"message","type","code"}}.
func RenderOpenAI(e *Error) string {
	typ := "server_error"
	switch e.Kind {
	case InvalidRequest:
		typ = "invalid_request_error"
	case RateLimit:
		typ = "rate_limit_error"
	case UpstreamError:
		typ = "api_error"
	case StreamAborted:
		typ = "api_error"
	}
	return fmt.Sprintf(`{"error":{"message":%q,"type":%q,"code":%q}}`, e.Message, typ, string(e.Kind))
}

// RenderAnthropic formats e the way the Anthropic Messages API formats
// errors: {"type":"error","error":{"type","message"}}.
func RenderAnthropic(e *Error) string {
	typ := "api_error"
	switch e.Kind {
	case InvalidRequest:
		typ = "invalid_request_error"
	case RateLimit:
		typ = "rate_limit_error"
	case StreamAborted:
		typ = "overloaded_error"
	}
	return fmt.Sprintf(`{"type":"error","error":{"type":%q,"message":%q}}`, typ, e.Message)
}

// AnthropicSSEEvent formats e as the "error" SSE event the Anthropic
// streaming dialect sends when a stream aborts mid-response.
func AnthropicSSEEvent(e *Error) string {
	return fmt.Sprintf("event: error\ndata: %s\n\n", RenderAnthropic(e))
}

// ResponsesSSEEvent formats e as the OpenAI Responses API's "error" SSE
// event.
func ResponsesSSEEvent(e *Error) string {
	return fmt.Sprintf("event: error\ndata: %s\n\n", RenderOpenAI(e))
}
