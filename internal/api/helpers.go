package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
)

// setSSEHeaders sets the headers every streaming handler needs and returns
// the http.Flusher, grounded on the teacher's handleStreamingResponse.
func setSSEHeaders(c *gin.Context) (http.Flusher, bool) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	flusher, ok := c.Writer.(http.Flusher)
	return flusher, ok
}

// asAPIError normalizes any error into *apierror.Error, wrapping anything
// that isn't already one as an UpstreamError (spec.md §7).
func asAPIError(err error) *apierror.Error {
	if err == nil {
		return apierror.New(apierror.UpstreamError, "unknown error")
	}
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}
	return apierror.Wrap(apierror.UpstreamError, err.Error(), err)
}

// openAIErrorBody renders apiErr per spec.md §7's OpenAI surface: RateLimit
// always becomes HTTP 500 (everything else keeps its own status).
func openAIErrorBody(apiErr *apierror.Error) (int, string) {
	status := apiErr.StatusCode
	if apiErr.Kind == apierror.RateLimit {
		status = http.StatusInternalServerError
	}
	return status, apierror.RenderOpenAI(apiErr)
}

// anthropicErrorBody renders apiErr per spec.md §7's Anthropic surface:
// RateLimit is remapped to an invalid_request_error at HTTP 400, so the
// client doesn't infinite-retry a bare 429/500 (spec.md §8 scenario S3).
// The underlying cooldown bookkeeping already happened in the fallback
// controller; this remapping only changes how the error is rendered.
func anthropicErrorBody(apiErr *apierror.Error) (int, string) {
	if apiErr.Kind == apierror.RateLimit {
		remapped := apierror.New(apierror.InvalidRequest, apiErr.Message)
		return http.StatusBadRequest, apierror.RenderAnthropic(remapped)
	}
	return apiErr.StatusCode, apierror.RenderAnthropic(apiErr)
}

// writeOpenAIError writes apiErr as a non-streamed OpenAI-dialect JSON
// error response.
func writeOpenAIError(c *gin.Context, apiErr *apierror.Error) {
	status, body := openAIErrorBody(apiErr)
	c.Data(status, "application/json", []byte(body))
}

// writeAnthropicError writes apiErr as a non-streamed Anthropic-dialect
// JSON error response.
func writeAnthropicError(c *gin.Context, apiErr *apierror.Error) {
	status, body := anthropicErrorBody(apiErr)
	c.Data(status, "application/json", []byte(body))
}
