package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/valerka1292/gemini-cli-proxy/internal/apierror"
	"github.com/valerka1292/gemini-cli-proxy/internal/modelresolver"
	oaichat "github.com/valerka1292/gemini-cli-proxy/internal/translator/openai"
	oairesponses "github.com/valerka1292/gemini-cli-proxy/internal/translator/responses"
)

// openAIHandler implements the /openai/v1/* endpoints (spec.md §6),
// grounded on the teacher's OpenAIAPIHandler (stream/non-stream dispatch
// on the "stream" field) but rewritten against internal/chunk.Stream and
// internal/fallback.Controller instead of a raw []byte channel pair.
type openAIHandler struct {
	deps *handlerDeps
}

// ChatCompletions handles POST /openai/v1/chat/completions.
func (h *openAIHandler) ChatCompletions(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeOpenAIError(c, apierror.New(apierror.InvalidRequest, fmt.Sprintf("invalid request: %v", err)))
		return
	}

	geminiReq, apiErr := oaichat.BuildGeminiRequest(raw)
	if apiErr != nil {
		writeOpenAIError(c, apiErr)
		return
	}
	c.Set("API_REQUEST", geminiReq)

	requestedModel := gjson.GetBytes(raw, "model").String()
	model := h.deps.fallback.ResolveThenFallback(requestedModel)
	chatID := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()

	if gjson.GetBytes(raw, "stream").Bool() {
		h.streamChatCompletions(c, geminiReq, model, chatID, created)
	} else {
		h.nonStreamChatCompletions(c, geminiReq, model, chatID, created)
	}
}

func (h *openAIHandler) nonStreamChatCompletions(c *gin.Context, geminiReq []byte, model, chatID string, created int64) {
	ctx := c.Request.Context()
	var body []byte

	_, _, runErr := h.deps.fallback.WrapNonStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), chatID, geminiReq)
		result, apiErr := oaichat.Accumulate(s, chatID, candidate, created)
		if apiErr != nil {
			return apiErr.StatusCode, apiErr
		}
		body = result
		return http.StatusOK, nil
	})

	if body == nil {
		writeOpenAIError(c, asAPIError(runErr))
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *openAIHandler) streamChatCompletions(c *gin.Context, geminiReq []byte, model, chatID string, created int64) {
	flusher, ok := setSSEHeaders(c)
	if !ok {
		writeOpenAIError(c, apierror.New(apierror.UpstreamError, "streaming not supported").WithStatus(http.StatusInternalServerError))
		return
	}
	ctx := c.Request.Context()
	wroteAny := false

	_, _, runErr := h.deps.fallback.WrapStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), chatID, geminiReq)
		emitter := oaichat.NewEmitter(chatID, candidate, created)

		for ch := range s.Chunks {
			if frame := emitter.Emit(ch); len(frame) > 0 {
				_, _ = c.Writer.Write(frame)
				flusher.Flush()
				wroteAny = true
			}
		}

		streamErr := <-s.Err
		if streamErr == nil {
			_, _ = c.Writer.Write(emitter.Done())
			flusher.Flush()
			return http.StatusOK, nil
		}

		apiErr := asAPIError(streamErr)
		if !wroteAny {
			// Nothing has reached the client yet: safe to let the fallback
			// controller retry against the next candidate model.
			return apiErr.StatusCode, apiErr
		}
		// Headers and partial content are already flushed (spec.md §7
		// "StreamAborted"): surface the failure inline and stop retrying.
		_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", apierror.RenderOpenAI(apiErr))))
		flusher.Flush()
		return http.StatusOK, nil
	})

	if !wroteAny && runErr != nil {
		status, payload := openAIErrorBody(asAPIError(runErr))
		c.Status(status)
		_, _ = c.Writer.Write([]byte(payload))
		flusher.Flush()
	}
}

// Responses handles POST /openai/v1/responses.
func (h *openAIHandler) Responses(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeOpenAIError(c, apierror.New(apierror.InvalidRequest, fmt.Sprintf("invalid request: %v", err)))
		return
	}

	geminiReq, apiErr := oairesponses.BuildGeminiRequest(raw)
	if apiErr != nil {
		writeOpenAIError(c, apiErr)
		return
	}
	c.Set("API_REQUEST", geminiReq)

	requestedModel := gjson.GetBytes(raw, "model").String()
	model := h.deps.fallback.ResolveThenFallback(requestedModel)
	responseID := "resp_" + uuid.New().String()

	if gjson.GetBytes(raw, "stream").Bool() {
		h.streamResponses(c, geminiReq, model, responseID)
	} else {
		h.nonStreamResponses(c, geminiReq, model, responseID)
	}
}

func (h *openAIHandler) nonStreamResponses(c *gin.Context, geminiReq []byte, model, responseID string) {
	ctx := c.Request.Context()
	var body []byte

	_, _, runErr := h.deps.fallback.WrapNonStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), responseID, geminiReq)
		result, apiErr := oairesponses.Accumulate(s, responseID, candidate)
		if apiErr != nil {
			return apiErr.StatusCode, apiErr
		}
		body = result
		return http.StatusOK, nil
	})

	if body == nil {
		writeOpenAIError(c, asAPIError(runErr))
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *openAIHandler) streamResponses(c *gin.Context, geminiReq []byte, model, responseID string) {
	flusher, ok := setSSEHeaders(c)
	if !ok {
		writeOpenAIError(c, apierror.New(apierror.UpstreamError, "streaming not supported").WithStatus(http.StatusInternalServerError))
		return
	}
	ctx := c.Request.Context()
	wroteAny := false

	_, _, runErr := h.deps.fallback.WrapStreaming(model, func(candidate string) (int, error) {
		s := h.deps.gemini.Stream(ctx, candidate, h.deps.auth.ProjectID(), responseID, geminiReq)
		emitter := oairesponses.NewEmitter(responseID, candidate)

		_, _ = c.Writer.Write(emitter.Start())
		flusher.Flush()
		wroteAny = true

		for ch := range s.Chunks {
			if frame := emitter.Emit(ch); len(frame) > 0 {
				_, _ = c.Writer.Write(frame)
				flusher.Flush()
			}
		}

		streamErr := <-s.Err
		if streamErr == nil {
			return http.StatusOK, nil
		}

		apiErr := asAPIError(streamErr)
		_, _ = c.Writer.Write([]byte(apierror.ResponsesSSEEvent(apiErr)))
		flusher.Flush()
		return http.StatusOK, nil
	})

	if !wroteAny && runErr != nil {
		status, payload := openAIErrorBody(asAPIError(runErr))
		c.Status(status)
		_, _ = c.Writer.Write([]byte(payload))
		flusher.Flush()
	}
}

// Models handles GET /openai/v1/models.
func (h *openAIHandler) Models(c *gin.Context) {
	ids := modelresolver.CanonicalModels()
	data := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  0,
			"owned_by": "google",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
